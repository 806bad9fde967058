package uiprotect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uilibs/uiprotect/data"
	"github.com/uilibs/uiprotect/ws"
)

const fakeBootstrap = `{
	"authUserId": "user1",
	"lastUpdateId": "11111111-2222-3333-4444-555555555555",
	"nvr": {"id": "nvr1", "mac": "00:11:22:33:44:55", "name": "Fake NVR"},
	"cameras": [
		{"id": "cam1", "mac": "AA:BB:CC:00:00:01", "name": "Front Door", "state": "CONNECTED",
		 "recordingSettings": {"mode": "always"}}
	],
	"lights": [], "sensors": [], "viewers": [], "chimes": [], "bridges": [], "liveviews": []
}`

// fakeController is a minimal Protect controller: cookie login, a
// bootstrap document and the binary update stream.
type fakeController struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu              sync.Mutex
	conns           []*websocket.Conn
	patchBodies     map[string][]byte
	snapshotQueries []url.Values
	logins          atomic.Int32
	bootErrs        atomic.Int32
	rejectLogin     atomic.Bool
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()
	f := &fakeController{patchBodies: map[string][]byte{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.logins.Add(1)
		if f.rejectLogin.Load() {
			http.Error(w, `{"error":"bad credentials"}`, http.StatusUnauthorized)
			return
		}
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" {
			http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
			return
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte("controller-secret"))
		require.NoError(t, err)
		http.SetCookie(w, &http.Cookie{Name: "TOKEN", Value: token, Path: "/"})
		w.Header().Set("X-CSRF-Token", "csrf123")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /proxy/protect/api/bootstrap", func(w http.ResponseWriter, r *http.Request) {
		if f.bootErrs.Load() > 0 {
			f.bootErrs.Add(-1)
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		if c, err := r.Cookie("TOKEN"); err != nil || c.Value == "" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, fakeBootstrap)
	})
	mux.HandleFunc("/proxy/protect/ws/updates", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("TOKEN"); err != nil || c.Value == "" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("GET /proxy/protect/api/cameras/{id}/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("TOKEN"); err != nil || c.Value == "" {
			http.Error(w, "no session", http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.snapshotQueries = append(f.snapshotQueries, r.URL.Query())
		f.mu.Unlock()
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff, 0xd9})
	})
	mux.HandleFunc("GET /proxy/protect/integration/v1/meta/info", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") == "" {
			http.Error(w, `{"error":"missing api key"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"applicationVersion":"5.0.34"}`)
	})
	mux.HandleFunc("PATCH /proxy/protect/api/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.patchBodies[r.URL.Path] = body
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{}`)
	})

	f.srv = httptest.NewTLSServer(mux)
	t.Cleanup(func() {
		f.mu.Lock()
		for _, c := range f.conns {
			c.Close()
		}
		f.mu.Unlock()
		f.srv.Close()
	})
	return f
}

// push writes a packet on every open stream connection.
func (f *fakeController) push(t *testing.T, pkt *ws.Packet) {
	t.Helper()
	wire, err := pkt.Encode()
	require.NoError(t, err)
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.conns, "no stream connection")
	for _, c := range f.conns {
		_ = c.WriteMessage(websocket.BinaryMessage, wire)
	}
}

func (f *fakeController) config(t *testing.T) Config {
	t.Helper()
	host, portStr, err := net.SplitHostPort(f.srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	verify := false
	nop := zerolog.Nop()
	return Config{
		Address:   host,
		Port:      port,
		Username:  "tester",
		Password:  "hunter2",
		VerifySSL: &verify,
		Logger:    &nop,
	}
}

func startedClient(t *testing.T, f *fakeController) *Client {
	t.Helper()
	client, err := New(f.config(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Start(ctx))
	return client
}

func waitForState(t *testing.T, ch <-chan SessionState, want SessionState) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case state, ok := <-ch:
			if !ok {
				t.Fatalf("state channel closed waiting for %s", want)
			}
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestClientStartLoadsBootstrap(t *testing.T) {
	f := newFakeController(t)
	client := startedClient(t, f)

	boot := client.Bootstrap()
	require.NotNil(t, boot)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", boot.UpdateID())

	cam, ok := boot.GetCamera("cam1")
	require.True(t, ok)
	assert.Equal(t, "Front Door", cam.Name)
	assert.EqualValues(t, 1, f.logins.Load())
}

func TestClientStreamNotifies(t *testing.T) {
	f := newFakeController(t)
	client, err := New(f.config(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	states, unsubStates := client.SubscribeState()
	defer unsubStates()

	msgs := make(chan Message, 16)
	unsub := client.Subscribe(func(msg Message) { msgs <- msg })
	defer unsub()

	require.NoError(t, client.Start(context.Background()))
	waitForState(t, states, StateConnected)

	f.push(t, &ws.Packet{
		Action: ws.ActionFrame{
			Action: ws.ActionUpdate, ModelKey: "camera", ID: "cam1", NewUpdateID: "u-next",
		},
		Payload: []byte(`{"name":"Renamed"}`),
	})

	select {
	case msg := <-msgs:
		assert.Equal(t, data.ModelCamera, msg.Model)
		assert.Equal(t, "cam1", msg.ID)
		assert.True(t, msg.Changed.Has("name"))
	case <-time.After(10 * time.Second):
		t.Fatal("no message from stream")
	}

	cam, _ := client.Bootstrap().GetCamera("cam1")
	assert.Equal(t, "Renamed", cam.Name)
	assert.Equal(t, "u-next", client.Bootstrap().UpdateID())
}

func TestClientWriteThenEchoSuppressed(t *testing.T) {
	f := newFakeController(t)
	client, err := New(f.config(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	states, unsubStates := client.SubscribeState()
	defer unsubStates()
	msgs := make(chan Message, 16)
	unsub := client.Subscribe(func(msg Message) { msgs <- msg })
	defer unsub()

	require.NoError(t, client.Start(context.Background()))
	waitForState(t, states, StateConnected)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.SetRecordingMode(ctx, "cam1", data.RecordingModeNever))

	// The PATCH body carries only the changed field.
	f.mu.Lock()
	body := f.patchBodies["/proxy/protect/api/cameras/cam1"]
	f.mu.Unlock()
	assert.JSONEq(t, `{"recordingSettings":{"mode":"never"}}`, string(body))

	// The local graph reflects the write immediately.
	cam, _ := client.Bootstrap().GetCamera("cam1")
	assert.Equal(t, data.RecordingModeNever, cam.RecordingSettings.Mode)

	// The controller echoes the write; no notification must surface.
	f.push(t, &ws.Packet{
		Action: ws.ActionFrame{
			Action: ws.ActionUpdate, ModelKey: "camera", ID: "cam1", NewUpdateID: "u-echo",
		},
		Payload: []byte(`{"recordingSettings":{"mode":"never"}}`),
	})

	select {
	case msg := <-msgs:
		t.Fatalf("echo surfaced as notification: %+v", msg)
	case <-time.After(500 * time.Millisecond):
	}
	assert.Equal(t, "u-echo", client.Bootstrap().UpdateID())
}

// A redial after a lost connection must walk the session back through
// connecting to connected, not strand it in reconnecting.
func TestClientReconnectStateSequence(t *testing.T) {
	nop := zerolog.Nop()
	client, err := New(Config{Address: "controller.local", Username: "u", Password: "p", Logger: &nop})
	require.NoError(t, err)

	states, unsub := client.SubscribeState()
	defer unsub()

	require.NoError(t, client.sm.to(StateAuthenticating))
	require.NoError(t, client.sm.to(StateBootstrapping))
	require.NoError(t, client.sm.to(StateConnecting))
	client.onConnect()
	client.onDisconnect(errors.New("connection reset"))
	client.onConnect()

	want := []SessionState{
		StateAuthenticating, StateBootstrapping, StateConnecting,
		StateConnected, StateReconnecting, StateConnecting, StateConnected,
	}
	for _, expected := range want {
		select {
		case got := <-states:
			assert.Equal(t, expected, got)
		case <-time.After(time.Second):
			t.Fatalf("missing state %s", expected)
		}
	}
	assert.Equal(t, StateConnected, client.State())
}

func TestClientAPIKeyOnly(t *testing.T) {
	f := newFakeController(t)
	cfg := f.config(t)
	cfg.Username, cfg.Password = "", ""
	cfg.APIKey = "key123"

	client, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := client.GetMetaInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5.0.34", info.ApplicationVersion)
	assert.EqualValues(t, 0, f.logins.Load(), "key-only config must not cookie-login")
}

func TestClientSnapshotHighQuality(t *testing.T) {
	f := newFakeController(t)
	client := startedClient(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := client.GetCameraSnapshot(ctx, "cam1", 0, 0)
	require.NoError(t, err)
	_, err = client.GetCameraSnapshot(ctx, "cam1", 640, 360)
	require.NoError(t, err)

	f.mu.Lock()
	queries := f.snapshotQueries
	f.mu.Unlock()
	require.Len(t, queries, 2)
	assert.Equal(t, "true", queries[0].Get("highQuality"))
	assert.NotEmpty(t, queries[0].Get("ts"))
	assert.Empty(t, queries[1].Get("highQuality"))
	assert.Equal(t, "640", queries[1].Get("w"))
	assert.Equal(t, "360", queries[1].Get("h"))
}

func TestClientLoginRejected(t *testing.T) {
	f := newFakeController(t)
	f.rejectLogin.Store(true)

	client, err := New(f.config(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	err = client.Start(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, StateFailed, client.State())
}

func TestClientBootstrapRetries(t *testing.T) {
	f := newFakeController(t)
	f.bootErrs.Store(2)

	client := startedClient(t, f)
	assert.NotNil(t, client.Bootstrap())
}

func TestClientRefreshEmitsReset(t *testing.T) {
	f := newFakeController(t)
	client := startedClient(t, f)

	msgs := make(chan Message, 16)
	unsub := client.Subscribe(func(msg Message) { msgs <- msg })
	defer unsub()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Refresh(ctx))

	select {
	case msg := <-msgs:
		assert.True(t, msg.Reset)
	case <-time.After(5 * time.Second):
		t.Fatal("no reset message")
	}
}

func TestClientStartTwice(t *testing.T) {
	f := newFakeController(t)
	client := startedClient(t, f)

	err := client.Start(context.Background())
	assert.ErrorIs(t, err, ErrState)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	f := newFakeController(t)
	client := startedClient(t, f)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.Equal(t, StateClosed, client.State())
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrState)

	_, err = New(Config{Address: "example.local"})
	assert.ErrorIs(t, err, ErrState)

	nop := zerolog.Nop()
	_, err = New(Config{Address: "example.local", APIKey: "k", Logger: &nop})
	assert.NoError(t, err)
}
