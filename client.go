package uiprotect

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/uilibs/uiprotect/data"
	"github.com/uilibs/uiprotect/internal/metrics"
	"github.com/uilibs/uiprotect/ws"
)

const (
	bootstrapPath = apiPath + "/bootstrap"
	updatesPath   = "/proxy/protect/ws/updates"
)

// Client keeps a live mirror of a UniFi Protect controller's device
// graph. Construct with New, call Start to connect, read state through
// Bootstrap and the typed getters, and receive push updates through
// Subscribe.
//
// All methods are safe for concurrent use. Snapshots handed to
// subscribers are immutable: the diff engine replaces device objects
// instead of mutating them.
type Client struct {
	cfg  Config
	log  zerolog.Logger
	auth *authenticator

	sm      *stateMachine
	subs    *subscriptions
	ignore  *ignoreTable
	session *ws.Session

	mu        sync.RWMutex
	bootstrap *data.Bootstrap

	runCancel context.CancelFunc
	runDone   chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// New builds a client. It performs no I/O; Start connects.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	log := cfg.Logger.With().Str("component", "uiprotect").Logger()

	auth, err := newAuthenticator(cfg, log)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		log:    log,
		auth:   auth,
		subs:   newSubscriptions(log),
		ignore: newIgnoreTable(cfg.IgnoreTTL),
	}
	c.sm = newStateMachine(c.subs.publishState)
	return c, nil
}

// NewFromEnv builds a client from the UFP_* environment variables.
func NewFromEnv() (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// State returns the current session state.
func (c *Client) State() SessionState { return c.sm.get() }

// Bootstrap returns the live device graph. Reads on it take its own
// lock; objects returned from its getters are snapshots.
func (c *Client) Bootstrap() *data.Bootstrap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bootstrap
}

// Subscribe registers fn for every graph mutation, called on the
// stream reader goroutine in apply order. The returned function
// unsubscribes and is idempotent.
func (c *Client) Subscribe(fn MessageFunc) func() {
	return c.subs.subscribe(fn)
}

// SubscribeState registers for session state transitions. A subscriber
// that stops draining its channel is dropped and its channel closed.
func (c *Client) SubscribeState() (<-chan SessionState, func()) {
	return c.subs.subscribeState()
}

// Start authenticates, loads the bootstrap and launches the event
// stream. It returns once the initial graph is ready; the stream keeps
// running in the background until Close.
func (c *Client) Start(ctx context.Context) error {
	var err error
	started := false
	c.startOnce.Do(func() {
		started = true
		err = c.start(ctx)
	})
	if !started {
		return fmt.Errorf("%w: client already started", ErrState)
	}
	return err
}

func (c *Client) start(ctx context.Context) error {
	if err := c.sm.to(StateAuthenticating); err != nil {
		return err
	}
	if err := c.auth.ensure(ctx); err != nil {
		c.fail()
		return err
	}

	if err := c.sm.to(StateBootstrapping); err != nil {
		return err
	}
	boot, err := c.fetchBootstrap(ctx)
	if err != nil {
		c.fail()
		return err
	}
	c.mu.Lock()
	c.bootstrap = boot
	c.mu.Unlock()

	if err := c.sm.to(StateConnecting); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	c.runDone = make(chan struct{})
	c.session = c.newSession()
	go func() {
		defer close(c.runDone)
		if err := c.session.Run(runCtx); err != nil {
			c.log.Debug().Err(err).Msg("event stream stopped")
		}
	}()
	return nil
}

func (c *Client) fail() {
	if err := c.sm.to(StateFailed); err != nil {
		c.log.Debug().Err(err).Msg("state transition rejected")
	}
}

// fetchBootstrap downloads and parses the full device graph.
func (c *Client) fetchBootstrap(ctx context.Context) (*data.Bootstrap, error) {
	raw, err := c.get(ctx, bootstrapPath)
	if err != nil {
		return nil, err
	}
	boot, err := data.ParseBootstrap(raw, c.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	boot.RingReset = c.cfg.RingReset
	boot.OnDerived = c.publishDerived
	return boot, nil
}

func (c *Client) newSession() *ws.Session {
	return &ws.Session{
		URL:    c.streamURL,
		Header: c.auth.wsHeader,
		Dialer: &websocket.Dialer{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !c.cfg.verify()},
		},
		OnPacket:      c.onPacket,
		OnConnect:     c.onConnect,
		OnDisconnect:  c.onDisconnect,
		OnAuthExpired: c.onAuthExpired,
		Log:           c.log,
	}
}

func (c *Client) streamURL() (string, error) {
	u := c.cfg.wsURL() + updatesPath
	boot := c.Bootstrap()
	if boot != nil {
		if id := boot.UpdateID(); id != "" {
			u += "?lastUpdateId=" + url.QueryEscape(id)
		}
	}
	return u, nil
}

// onConnect fires on first read of every connection, including
// redials, so a reconnect steps back through connecting first.
func (c *Client) onConnect() {
	if c.sm.get() == StateReconnecting {
		if err := c.sm.to(StateConnecting); err != nil {
			c.log.Debug().Err(err).Msg("state transition rejected")
		}
	}
	if err := c.sm.to(StateConnected); err != nil {
		c.log.Debug().Err(err).Msg("state transition rejected")
	}
}

func (c *Client) onDisconnect(err error) {
	if terr := c.sm.to(StateReconnecting); terr != nil {
		c.log.Debug().Err(terr).Msg("state transition rejected")
		return
	}
	c.log.Warn().Err(err).Msg("event stream disconnected")
}

func (c *Client) onAuthExpired(ctx context.Context) error {
	c.auth.invalidate()
	return c.auth.ensure(ctx)
}

// onPacket runs on the stream reader goroutine, in wire order.
func (c *Client) onPacket(pkt *ws.Packet) {
	boot := c.Bootstrap()
	if boot == nil {
		return
	}
	changes, diverged, err := boot.ApplyPacket(pkt, c.ignore)
	if err != nil {
		c.log.Warn().Err(err).Msg("packet apply failed")
		return
	}
	for _, ch := range changes {
		c.subs.publish(messageFromChange(ch))
	}
	if diverged {
		c.log.Warn().Msg("stream diverged from graph, re-bootstrapping")
		if err := c.Refresh(context.Background()); err != nil {
			c.log.Error().Err(err).Msg("re-bootstrap failed")
		}
	}
}

// publishDerived carries timer-driven changes (ring reset) to
// subscribers outside the packet path.
func (c *Client) publishDerived(ch data.Change) {
	c.subs.publish(messageFromChange(ch))
}

func messageFromChange(ch data.Change) Message {
	return Message{
		Action:  ch.Action,
		Model:   ch.Model,
		ID:      ch.ID,
		Object:  ch.Object,
		Old:     ch.Old,
		Changed: ch.Changed,
		Packet:  ch.Packet,
	}
}

// Refresh discards the graph and loads a fresh bootstrap. Subscribers
// get one Reset message; state read after it reflects the new graph.
func (c *Client) Refresh(ctx context.Context) error {
	boot, err := c.fetchBootstrap(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.bootstrap
	c.bootstrap = boot
	c.mu.Unlock()
	if old != nil {
		old.Close()
	}
	metrics.RecordRebootstrap()
	c.subs.publish(Message{Reset: true})
	return nil
}

// Close tears the client down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if err := c.sm.to(StateClosing); err != nil {
			c.log.Debug().Err(err).Msg("state transition rejected")
		}
		if c.runCancel != nil {
			c.runCancel()
			<-c.runDone
		}
		if boot := c.Bootstrap(); boot != nil {
			boot.Close()
		}
		if err := c.sm.to(StateClosed); err != nil {
			c.log.Debug().Err(err).Msg("state transition rejected")
		}
		c.subs.close()
	})
	return nil
}
