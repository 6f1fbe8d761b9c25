package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lmercier/crucible/internal/config"
	"github.com/lmercier/crucible/internal/gameserver"
)

// echoHandler records lifecycle calls and echoes every message back through
// the registry.
type echoHandler struct {
	registry *gameserver.Registry

	mu            sync.Mutex
	connects      []uint64
	disconnects   []uint64
	messages      [][]byte
	lastMessageID uint64
}

func (h *echoHandler) HandleConnect(connID uint64) {
	h.mu.Lock()
	h.connects = append(h.connects, connID)
	h.mu.Unlock()
}

func (h *echoHandler) HandleMessage(ctx context.Context, connID uint64, raw []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, append([]byte(nil), raw...))
	h.lastMessageID = connID
	h.mu.Unlock()
	h.registry.Send(connID, raw)
}

func (h *echoHandler) HandleDisconnect(connID uint64) {
	h.mu.Lock()
	h.disconnects = append(h.disconnects, connID)
	h.mu.Unlock()
}

func (h *echoHandler) snapshot() (connects, disconnects []uint64, messages [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.connects...),
		append([]uint64(nil), h.disconnects...),
		append([][]byte(nil), h.messages...)
}

func startAcceptor(t *testing.T) (*Acceptor, *echoHandler) {
	t.Helper()

	cfg := config.ServerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  time.Minute,
		WriteTimeout: 10 * time.Second,
	}
	registry := gameserver.NewRegistry(16, zap.NewNop())
	handler := &echoHandler{registry: registry}
	a := NewAcceptor(cfg, registry, handler, zap.NewNop())

	go func() {
		if err := a.ListenAndServe(); err != nil {
			t.Errorf("acceptor: %v", err)
		}
	}()
	t.Cleanup(a.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for a.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("acceptor never started listening")
		}
		time.Sleep(2 * time.Millisecond)
	}
	return a, handler
}

func dial(t *testing.T, a *Acceptor) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+a.Addr()+"/ws", nil)
	require.NoError(t, err)
	return conn
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAcceptor_ConnectEchoDisconnect(t *testing.T) {
	a, handler := startAcceptor(t)

	conn := dial(t, a)
	waitUntil(t, func() bool {
		connects, _, _ := handler.snapshot()
		return len(connects) == 1
	})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, echoed, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"type":"ping"}`), echoed)

	require.NoError(t, conn.Close())
	waitUntil(t, func() bool {
		_, disconnects, _ := handler.snapshot()
		return len(disconnects) == 1
	})

	connects, disconnects, messages := handler.snapshot()
	assert.Equal(t, connects, disconnects, "cleanup runs for the same connection id")
	require.Len(t, messages, 1)
}

func TestAcceptor_ConnectionsGetDistinctIDs(t *testing.T) {
	a, handler := startAcceptor(t)

	conn1 := dial(t, a)
	defer conn1.Close()
	conn2 := dial(t, a)
	defer conn2.Close()

	waitUntil(t, func() bool {
		connects, _, _ := handler.snapshot()
		return len(connects) == 2
	})
	connects, _, _ := handler.snapshot()
	assert.NotEqual(t, connects[0], connects[1])
}

func TestAcceptor_AbruptCloseRunsCleanup(t *testing.T) {
	a, handler := startAcceptor(t)

	conn := dial(t, a)
	waitUntil(t, func() bool {
		connects, _, _ := handler.snapshot()
		return len(connects) == 1
	})

	// Kill the TCP connection without a close handshake.
	require.NoError(t, conn.UnderlyingConn().Close())

	waitUntil(t, func() bool {
		_, disconnects, _ := handler.snapshot()
		return len(disconnects) == 1
	})
}

func TestAcceptor_RejectsPlainHTTP(t *testing.T) {
	a, _ := startAcceptor(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+a.Addr()+"/nope", nil)
	require.Error(t, err)
	if resp != nil {
		resp.Body.Close()
	}
}
