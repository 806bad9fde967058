package uiprotect

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthenticator(t *testing.T) *authenticator {
	t.Helper()
	nop := zerolog.Nop()
	cfg := (&Config{
		Address: "controller.local", Username: "u", Password: "p", Logger: &nop,
	}).withDefaults()
	a, err := newAuthenticator(cfg, nop)
	require.NoError(t, err)
	return a
}

func tokenResponse(t *testing.T, exp time.Time) *http.Response {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	header := http.Header{}
	header.Add("Set-Cookie", (&http.Cookie{Name: "TOKEN", Value: token}).String())
	return &http.Response{Header: header}
}

func TestRecordExpiryFromTokenCookie(t *testing.T) {
	a := testAuthenticator(t)
	exp := time.Now().Add(2 * time.Hour)

	a.recordExpiry(tokenResponse(t, exp))
	assert.Equal(t, exp.Unix(), a.expiry().Unix())
}

func TestValidRespectsExpiryMargin(t *testing.T) {
	a := testAuthenticator(t)
	a.loggedIn = true

	a.recordExpiry(tokenResponse(t, time.Now().Add(2*time.Hour)))
	assert.True(t, a.valid())

	// Inside the renewal margin counts as expired.
	a.recordExpiry(tokenResponse(t, time.Now().Add(10*time.Second)))
	assert.False(t, a.valid())

	a.invalidate()
	assert.False(t, a.valid())
}

func TestValidWithoutLogin(t *testing.T) {
	a := testAuthenticator(t)
	assert.False(t, a.valid())
}

func TestCaptureCSRFFromHeader(t *testing.T) {
	a := testAuthenticator(t)

	header := http.Header{}
	header.Set("X-CSRF-Token", "tok1")
	a.captureCSRF(&http.Response{Header: header})

	req, err := http.NewRequest(http.MethodGet, "https://controller.local/x", nil)
	require.NoError(t, err)
	a.decorate(req)
	assert.Equal(t, "tok1", req.Header.Get("X-CSRF-Token"))
}

func TestCaptureCSRFFromCookieFallback(t *testing.T) {
	a := testAuthenticator(t)

	header := http.Header{}
	header.Add("Set-Cookie", (&http.Cookie{Name: "csrf-token", Value: "tok2"}).String())
	a.captureCSRF(&http.Response{Header: header})

	hdr, err := a.wsHeader()
	require.NoError(t, err)
	assert.Equal(t, "tok2", hdr.Get("X-CSRF-Token"))
}

func TestDecorateAddsAPIKey(t *testing.T) {
	nop := zerolog.Nop()
	cfg := (&Config{Address: "controller.local", APIKey: "key1", Logger: &nop}).withDefaults()
	a, err := newAuthenticator(cfg, nop)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://controller.local/x", nil)
	require.NoError(t, err)
	a.decorate(req)
	assert.Equal(t, "key1", req.Header.Get("X-API-KEY"))
}

func TestErrorFromStatus(t *testing.T) {
	assert.ErrorIs(t, errorFromStatus(401, ""), ErrAuthentication)
	assert.ErrorIs(t, errorFromStatus(403, ""), ErrPermission)
	assert.ErrorIs(t, errorFromStatus(404, ""), ErrNotFound)
	assert.ErrorIs(t, errorFromStatus(422, "bad field"), ErrBadRequest)
	assert.ErrorIs(t, errorFromStatus(502, ""), ErrTransport)

	var apiErr *APIError
	err := errorFromStatus(403, "nope")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "nope")
}
