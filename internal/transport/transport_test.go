package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"voco/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer runs handler once per accepted connection and returns the ws URL.
func wsServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitStatus(t *testing.T, ch <-chan Status, want Status) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestBackoffSchedule(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	require.Equal(t, 1*time.Second, Backoff(0, base, max))
	require.Equal(t, 2*time.Second, Backoff(1, base, max))
	require.Equal(t, 4*time.Second, Backoff(2, base, max))
	require.Equal(t, 8*time.Second, Backoff(3, base, max))

	// Capped at max once the doubling passes it.
	require.Equal(t, max, Backoff(5, base, max))
	require.Equal(t, max, Backoff(20, base, max))

	// A max below base clamps every delay.
	require.Equal(t, 500*time.Millisecond, Backoff(0, time.Second, 500*time.Millisecond))
	require.Equal(t, 500*time.Millisecond, Backoff(4, time.Second, 500*time.Millisecond))
}

func TestConnectDeliversMessages(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		err := conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"status","status":"ready"}`))
		require.NoError(t, err)
		// Hold the connection open until the client walks away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tr := New(Config{Endpoint: url}, nil)
	statuses := make(chan Status, 16)
	messages := make(chan protocol.Message, 16)
	tr.OnStatus(func(s Status) { statuses <- s })
	tr.OnMessage(func(m protocol.Message) { messages <- m })

	require.NoError(t, tr.Connect())
	waitStatus(t, statuses, StatusConnected)

	select {
	case msg := <-messages:
		status, ok := msg.(protocol.Status)
		require.True(t, ok)
		require.Equal(t, "ready", status.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("no message delivered")
	}

	require.NoError(t, tr.Close())
}

func TestSendWhileDisconnectedDrops(t *testing.T) {
	received := make(chan []byte, 16)
	url := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	})

	tr := New(Config{Endpoint: url}, nil)
	statuses := make(chan Status, 16)
	tr.OnStatus(func(s Status) { statuses <- s })

	// Dropped, not queued: nothing may surface after we connect.
	require.NoError(t, tr.Send(protocol.NewTextInput("before connect")))

	require.NoError(t, tr.Connect())
	waitStatus(t, statuses, StatusConnected)
	require.NoError(t, tr.Send(protocol.NewTextInput("after connect")))

	select {
	case data := <-received:
		require.Contains(t, string(data), "after connect")
	case <-time.After(3 * time.Second):
		t.Fatal("connected send not received")
	}
	select {
	case data := <-received:
		t.Fatalf("unexpected extra frame: %s", data)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, tr.Close())
}

func TestReconnectAfterUncleanClose(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	url := wsServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()
		if first {
			// Drop the first connection without a close handshake.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tr := New(Config{
		Endpoint:      url,
		ReconnectBase: 20 * time.Millisecond,
		ReconnectMax:  100 * time.Millisecond,
	}, nil)
	statuses := make(chan Status, 64)
	tr.OnStatus(func(s Status) { statuses <- s })

	require.NoError(t, tr.Connect())
	waitStatus(t, statuses, StatusConnected)
	waitStatus(t, statuses, StatusDisconnected)
	waitStatus(t, statuses, StatusConnected)

	mu.Lock()
	require.GreaterOrEqual(t, accepted, 2)
	mu.Unlock()

	require.NoError(t, tr.Close())
}

func TestCloseStopsReconnect(t *testing.T) {
	var mu sync.Mutex
	accepted := 0
	url := wsServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		accepted++
		mu.Unlock()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tr := New(Config{
		Endpoint:      url,
		ReconnectBase: 20 * time.Millisecond,
		ReconnectMax:  100 * time.Millisecond,
	}, nil)
	statuses := make(chan Status, 16)
	tr.OnStatus(func(s Status) { statuses <- s })

	require.NoError(t, tr.Connect())
	waitStatus(t, statuses, StatusConnected)
	require.NoError(t, tr.Close())

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	require.Equal(t, 1, accepted)
	mu.Unlock()
	require.Equal(t, StatusDisconnected, tr.Status())

	require.ErrorIs(t, tr.Connect(), ErrClosed)
}

func TestConnectIsIdempotent(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tr := New(Config{Endpoint: url}, nil)
	statuses := make(chan Status, 16)
	tr.OnStatus(func(s Status) { statuses <- s })

	require.NoError(t, tr.Connect())
	waitStatus(t, statuses, StatusConnected)
	require.NoError(t, tr.Connect())
	require.Equal(t, StatusConnected, tr.Status())

	require.NoError(t, tr.Close())
}

func TestMalformedFrameDoesNotKillConnection(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json at all {{{`)))
		require.NoError(t, conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"status","status":"ready"}`)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tr := New(Config{Endpoint: url}, nil)
	messages := make(chan protocol.Message, 16)
	tr.OnMessage(func(m protocol.Message) { messages <- m })

	require.NoError(t, tr.Connect())

	select {
	case msg := <-messages:
		require.Equal(t, protocol.TypeStatus, msg.MessageType())
	case <-time.After(3 * time.Second):
		t.Fatal("valid frame after garbage was not delivered")
	}

	require.NoError(t, tr.Close())
}
