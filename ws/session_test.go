package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/uilibs/uiprotect/ws"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func encodePacket(t *testing.T, action ws.ActionFrame, payload []byte) []byte {
	t.Helper()
	wire, err := (&ws.Packet{Action: action, Payload: payload}).Encode()
	require.NoError(t, err)
	return wire
}

func TestSessionReceivesPackets(t *testing.T) {
	defer goleak.VerifyNone(t)

	wire := encodePacket(t, ws.ActionFrame{
		Action: ws.ActionUpdate, ModelKey: "camera", ID: "cam1", NewUpdateID: "u1",
	}, []byte(`{"name":"porch"}`))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, wire)
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *ws.Packet, 1)
	session := &ws.Session{
		URL:    func() (string, error) { return wsURL(srv), nil },
		Header: func() (http.Header, error) { return nil, nil },
		OnPacket: func(pkt *ws.Packet) {
			select {
			case got <- pkt:
			default:
			}
		},
		Log: zerolog.Nop(),
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	select {
	case pkt := <-got:
		assert.Equal(t, "cam1", pkt.Action.ID)
		assert.Equal(t, "u1", pkt.Action.NewUpdateID)
	case <-time.After(5 * time.Second):
		t.Fatal("no packet received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ws.ErrSessionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSessionReconnects(t *testing.T) {
	defer goleak.VerifyNone(t)

	wire := encodePacket(t, ws.ActionFrame{
		Action: ws.ActionAdd, ModelKey: "event", ID: "ev1",
	}, []byte(`{"type":"motion"}`))

	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// First connection dies immediately to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, wire)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan struct{}, 1)
	var disconnects atomic.Int32
	session := &ws.Session{
		URL:    func() (string, error) { return wsURL(srv), nil },
		Header: func() (http.Header, error) { return nil, nil },
		OnPacket: func(*ws.Packet) {
			select {
			case got <- struct{}{}:
			default:
			}
		},
		OnDisconnect: func(error) { disconnects.Add(1) },
		BackoffBase:  10 * time.Millisecond,
		BackoffCap:   50 * time.Millisecond,
		Log:          zerolog.Nop(),
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no packet after reconnect")
	}
	assert.GreaterOrEqual(t, dials.Load(), int32(2))
	assert.GreaterOrEqual(t, disconnects.Load(), int32(1))

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSessionAuthExpired(t *testing.T) {
	defer goleak.VerifyNone(t)

	var authorized atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized.Load() {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	refreshed := make(chan struct{}, 1)
	session := &ws.Session{
		URL:    func() (string, error) { return wsURL(srv), nil },
		Header: func() (http.Header, error) { return nil, nil },
		OnAuthExpired: func(context.Context) error {
			authorized.Store(true)
			select {
			case refreshed <- struct{}{}:
			default:
			}
			return nil
		},
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  50 * time.Millisecond,
		Log:         zerolog.Nop(),
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("auth refresh never fired")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
}
