package uiprotect

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/uilibs/uiprotect/data"
)

// Environment variables the client understands.
const (
	EnvUsername  = "UFP_USERNAME"
	EnvPassword  = "UFP_PASSWORD"
	EnvAddress   = "UFP_ADDRESS"
	EnvPort      = "UFP_PORT"
	EnvSSLVerify = "UFP_SSL_VERIFY"
	EnvAPIKey    = "UFP_API_KEY"
)

// Defaults.
const (
	DefaultPort           = 443
	DefaultRequestTimeout = 30 * time.Second
	DefaultIgnoreTTL      = 2 * time.Second
)

// Config carries everything the client needs at construction. There is
// no module-level state: logger, timezone rendering and tuning all flow
// through here.
type Config struct {
	// Address is the controller host or IP (no scheme).
	Address string
	// Port defaults to 443.
	Port int

	Username string
	Password string

	// APIKey, when set, authenticates requests with the X-API-KEY
	// header. Alone it covers the public integration API; the private
	// API and the event stream still need username/password cookies,
	// so for a full client the key supplements them.
	APIKey string

	// VerifySSL defaults to true. Controllers ship self-signed
	// certificates, so turning this off is common on LANs.
	VerifySSL *bool

	// RequestTimeout bounds individual HTTP requests. Websocket reads
	// are exempt.
	RequestTimeout time.Duration

	// IgnoreTTL is how long an echo-suppression entry lives. The
	// controller normally echoes a write well inside a second.
	IgnoreTTL time.Duration

	// RingReset clears a camera's ringing flag when the controller
	// never sends the ring end packet.
	RingReset time.Duration

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// ConfigFromEnv builds a Config from the UFP_* environment variables.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Address:  os.Getenv(EnvAddress),
		Username: os.Getenv(EnvUsername),
		Password: os.Getenv(EnvPassword),
		APIKey:   os.Getenv(EnvAPIKey),
		Port:     DefaultPort,
	}
	if raw := os.Getenv(EnvPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid %s %q", EnvPort, raw)
		}
		cfg.Port = port
	}
	if raw := os.Getenv(EnvSSLVerify); raw != "" {
		verify, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q", EnvSSLVerify, raw)
		}
		cfg.VerifySSL = &verify
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address is required", ErrState)
	}
	if c.APIKey == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("%w: username/password or API key required", ErrState)
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Port == 0 {
		out.Port = DefaultPort
	}
	if out.RequestTimeout == 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	if out.IgnoreTTL == 0 {
		out.IgnoreTTL = DefaultIgnoreTTL
	}
	if out.RingReset == 0 {
		out.RingReset = data.DefaultRingReset
	}
	if out.Logger == nil {
		nop := zerolog.Nop()
		out.Logger = &nop
	}
	return out
}

func (c *Config) verify() bool {
	return c.VerifySSL == nil || *c.VerifySSL
}

func (c *Config) baseURL() string {
	return fmt.Sprintf("https://%s:%d", c.Address, c.Port)
}

func (c *Config) wsURL() string {
	return fmt.Sprintf("wss://%s:%d", c.Address, c.Port)
}
