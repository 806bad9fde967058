package uiprotect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	loginPath    = "/api/auth/login"
	csrfHeader   = "X-CSRF-Token"
	apiKeyHeader = "X-API-KEY"
	tokenCookie  = "TOKEN"
	csrfSeedPath = "/"
	expiryMargin = 60 * time.Second
)

// authenticator owns the cookie session against the controller's
// private API: login, CSRF token tracking and expiry detection from the
// TOKEN cookie's JWT claims.
type authenticator struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger

	mu        sync.Mutex
	csrfToken string
	expiresAt time.Time
	loggedIn  bool
}

func newAuthenticator(cfg Config, log zerolog.Logger) (*authenticator, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.verify()},
	}
	return &authenticator{
		cfg: cfg,
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		log: log.With().Str("component", "auth").Logger(),
	}, nil
}

// seedCSRF fetches the controller landing page once to obtain an
// initial CSRF token. Newer firmware issues one on the login response
// itself, so a failure here is not fatal.
func (a *authenticator) seedCSRF(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.baseURL()+csrfSeedPath, nil)
	if err != nil {
		return
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Debug().Err(err).Msg("csrf seed request failed")
		return
	}
	defer resp.Body.Close()
	a.captureCSRF(resp)
}

func (a *authenticator) captureCSRF(resp *http.Response) {
	token := resp.Header.Get(csrfHeader)
	if token == "" {
		for _, c := range resp.Cookies() {
			if c.Name == "csrf-token" {
				token = c.Value
				break
			}
		}
	}
	if token != "" {
		a.mu.Lock()
		a.csrfToken = token
		a.mu.Unlock()
	}
}

// login authenticates with username and password and records the
// session expiry from the TOKEN cookie.
func (a *authenticator) login(ctx context.Context) error {
	if a.cfg.Username == "" || a.cfg.Password == "" {
		return fmt.Errorf("%w: no credentials configured", ErrAuthentication)
	}

	a.mu.Lock()
	csrf := a.csrfToken
	a.mu.Unlock()
	if csrf == "" {
		a.seedCSRF(ctx)
	}

	body, err := json.Marshal(map[string]any{
		"username":   a.cfg.Username,
		"password":   a.cfg.Password,
		"rememberMe": true,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.baseURL()+loginPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	a.mu.Lock()
	if a.csrfToken != "" {
		req.Header.Set(csrfHeader, a.csrfToken)
	}
	a.mu.Unlock()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	a.captureCSRF(resp)

	if resp.StatusCode != http.StatusOK {
		msg := readErrorMessage(resp)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return &APIError{Kind: ErrAuthentication, StatusCode: resp.StatusCode, Message: msg}
		}
		return errorFromStatus(resp.StatusCode, msg)
	}

	a.mu.Lock()
	a.loggedIn = true
	a.expiresAt = time.Time{}
	a.mu.Unlock()
	a.recordExpiry(resp)
	a.log.Info().Time("expires", a.expiry()).Msg("logged in")
	return nil
}

// recordExpiry pulls the exp claim out of the TOKEN cookie. The token
// is not verified: the controller signed it and only the deadline
// matters here.
func (a *authenticator) recordExpiry(resp *http.Response) {
	for _, c := range resp.Cookies() {
		if c.Name != tokenCookie || c.Value == "" {
			continue
		}
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(c.Value, claims); err != nil {
			a.log.Debug().Err(err).Msg("unparseable session token")
			continue
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			continue
		}
		a.mu.Lock()
		a.expiresAt = exp.Time
		a.mu.Unlock()
		return
	}
}

func (a *authenticator) expiry() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expiresAt
}

// valid reports whether the session cookie is present and not about to
// expire.
func (a *authenticator) valid() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.loggedIn {
		return false
	}
	if a.expiresAt.IsZero() {
		return true
	}
	return time.Now().Add(expiryMargin).Before(a.expiresAt)
}

// ensure logs in when the session is missing or near expiry. A config
// carrying only an API key has no cookie session to maintain: every
// request authenticates itself through decorate.
func (a *authenticator) ensure(ctx context.Context) error {
	if a.cfg.Username == "" && a.cfg.Password == "" && a.cfg.APIKey != "" {
		return nil
	}
	if a.valid() {
		return nil
	}
	return a.login(ctx)
}

// invalidate forces the next ensure to log in again.
func (a *authenticator) invalidate() {
	a.mu.Lock()
	a.loggedIn = false
	a.mu.Unlock()
}

// decorate adds the session headers to an outgoing request. Cookies
// ride along via the jar.
func (a *authenticator) decorate(req *http.Request) {
	a.mu.Lock()
	if a.csrfToken != "" {
		req.Header.Set(csrfHeader, a.csrfToken)
	}
	a.mu.Unlock()
	if a.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, a.cfg.APIKey)
	}
}

// wsHeader builds the upgrade headers for the event stream, carrying
// the session cookies explicitly since the websocket dialer has no jar.
func (a *authenticator) wsHeader() (http.Header, error) {
	base, err := url.Parse(a.cfg.baseURL())
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	for _, c := range a.client.Jar.Cookies(base) {
		header.Add("Cookie", c.String())
	}
	a.mu.Lock()
	if a.csrfToken != "" {
		header.Set(csrfHeader, a.csrfToken)
	}
	a.mu.Unlock()
	return header, nil
}

func readErrorMessage(resp *http.Response) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}
