package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/uilibs/uiprotect/internal/metrics"
)

// Default reconnect backoff per the session contract: base 1s, cap 60s,
// jitter +/-20%.
const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 60 * time.Second
	defaultRandFactor  = 0.2
)

// Session owns the long-lived websocket connection to /api/ws/updates.
// A single reader goroutine dials, reads binary messages in order,
// decodes them and hands packets to OnPacket on the same goroutine.
// Reconnects use exponential backoff; the backoff resets after the
// first successful read of a connection.
type Session struct {
	// URL returns the full websocket URL including the current
	// lastUpdateId query parameter. Called before every dial.
	URL func() (string, error)

	// Header returns the headers for the upgrade request (session
	// cookies and CSRF token). Called before every dial.
	Header func() (http.Header, error)

	// OnPacket receives every decoded packet, in wire order.
	OnPacket func(*Packet)

	// OnConnect fires after the first message of a connection is read.
	OnConnect func()

	// OnDisconnect fires when a connection is lost, before backoff.
	OnDisconnect func(err error)

	// OnAuthExpired fires when the upgrade is rejected with 401. The
	// callback should refresh the login; the dial is retried after.
	OnAuthExpired func(ctx context.Context) error

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Log zerolog.Logger

	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// ErrSessionClosed is returned from Run when the context is canceled.
var ErrSessionClosed = errors.New("ws: session closed")

func (s *Session) dialer() *websocket.Dialer {
	if s.Dialer != nil {
		return s.Dialer
	}
	return websocket.DefaultDialer
}

func (s *Session) newBackoff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.BackoffBase
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = DefaultBackoffBase
	}
	bo.MaxInterval = s.BackoffCap
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = DefaultBackoffCap
	}
	bo.RandomizationFactor = defaultRandFactor
	bo.MaxElapsedTime = 0 // retry until canceled
	return backoff.WithContext(bo, ctx)
}

// Run blocks, maintaining the connection until ctx is canceled. It
// always returns ErrSessionClosed wrapped over the context error.
func (s *Session) Run(ctx context.Context) error {
	bo := s.newBackoff(ctx)
	for {
		err := s.connectOnce(ctx, bo)
		if ctx.Err() != nil {
			return errors.Join(ErrSessionClosed, ctx.Err())
		}
		if s.OnDisconnect != nil {
			s.OnDisconnect(err)
		}
		metrics.RecordReconnect()

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return errors.Join(ErrSessionClosed, ctx.Err())
		}
		s.Log.Info().Err(err).Dur("backoff", wait).Msg("websocket reconnecting")
		select {
		case <-ctx.Done():
			return errors.Join(ErrSessionClosed, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// connectOnce dials and runs the read loop until the connection fails.
func (s *Session) connectOnce(ctx context.Context, bo backoff.BackOff) error {
	url, err := s.URL()
	if err != nil {
		return err
	}
	header, err := s.Header()
	if err != nil {
		return err
	}

	connID := uuid.NewString()
	log := s.Log.With().Str("conn_id", connID).Logger()

	conn, resp, err := s.dialer().DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized && s.OnAuthExpired != nil {
			log.Warn().Msg("websocket upgrade rejected, refreshing auth")
			if authErr := s.OnAuthExpired(ctx); authErr != nil {
				return authErr
			}
		}
		return err
	}
	defer conn.Close()
	log.Debug().Str("url", url).Msg("websocket dialed")

	// ReadMessage does not watch the context; close the connection to
	// unblock it on cancel.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readDone:
		}
	}()

	seen := false
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !seen {
			seen = true
			bo.Reset()
			if s.OnConnect != nil {
				s.OnConnect()
			}
		}
		if msgType != websocket.BinaryMessage {
			log.Debug().Int("type", msgType).Msg("ignoring non-binary websocket message")
			continue
		}

		pkt, err := Decode(data)
		if err != nil {
			// Malformed frames are dropped, not fatal. The diff
			// engine tracks divergence separately.
			metrics.RecordDecodeError()
			log.Warn().Err(err).Int("size", len(data)).Msg("dropping undecodable packet")
			continue
		}
		metrics.RecordPacket(pkt.Action.ModelKey, string(pkt.Action.Action), pkt.Size())
		if s.OnPacket != nil {
			s.OnPacket(pkt)
		}
	}
}
