// Package ws exposes the game protocol over websockets: an HTTP acceptor
// that upgrades connections and runs one read and one write pump per client.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lmercier/crucible/internal/config"
)

// EventHandler processes the lifecycle of one connection. The event router
// implements it.
type EventHandler interface {
	HandleConnect(connID uint64)
	HandleMessage(ctx context.Context, connID uint64, raw []byte)
	HandleDisconnect(connID uint64)
}

// ConnectionBroker allocates connection ids and outbound queues. The
// connection registry implements it.
type ConnectionBroker interface {
	Register() (uint64, <-chan []byte)
	Unregister(id uint64)
}

// Acceptor listens for websocket upgrades and dispatches each connection's
// inbound messages to the EventHandler while draining its outbound queue.
type Acceptor struct {
	cfg      config.ServerConfig
	broker   ConnectionBroker
	handler  EventHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	server *http.Server
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	running  bool
}

// NewAcceptor creates a websocket acceptor with the given configuration.
//
// Precondition: broker, handler, and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, broker ConnectionBroker, handler EventHandler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		broker:  broker,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser client is served from a different origin in
			// development; session authority lives in the event protocol.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe starts the HTTP listener and serves websocket upgrades on
// /ws until Stop is called. This method blocks.
//
// Precondition: The acceptor must not already be running.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.serveWS)
	server := &http.Server{Handler: mux}

	a.mu.Lock()
	a.listener = listener
	a.server = server
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving websocket connections: %w", err)
	}
	return nil
}

// serveWS upgrades one HTTP request and runs its pumps.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	id, outbound := a.broker.Register()
	a.logger.Info("client connected",
		zap.Uint64("conn_id", id),
		zap.String("remote_addr", r.RemoteAddr),
	)

	a.wg.Add(1)
	go a.writePump(conn, id, outbound)

	a.handler.HandleConnect(id)

	a.wg.Add(1)
	go a.readPump(conn, id)
}

// readPump drives the receive loop. Any read failure, graceful close
// included, runs the identical cleanup path: disconnect handling first, then
// unregistration, which closes the outbound queue and stops the write pump.
func (a *Acceptor) readPump(conn *websocket.Conn, id uint64) {
	defer a.wg.Done()
	start := time.Now()

	defer func() {
		a.handler.HandleDisconnect(id)
		a.broker.Unregister(id)
		a.logger.Info("client disconnected",
			zap.Uint64("conn_id", id),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	if a.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		})
	}

	ctx := context.Background()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Debug("read failed", zap.Uint64("conn_id", id), zap.Error(err))
			}
			return
		}
		if a.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		}
		a.handler.HandleMessage(ctx, id, msg)
	}
}

// writePump drains the outbound queue onto the socket and pings to keep the
// read deadline alive. It owns all writes to the connection.
func (a *Acceptor) writePump(conn *websocket.Conn, id uint64, outbound <-chan []byte) {
	defer a.wg.Done()
	defer conn.Close()

	pingPeriod := a.cfg.ReadTimeout * 9 / 10
	var pings <-chan time.Time
	if pingPeriod > 0 {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case msg, ok := <-outbound:
			if !ok {
				_ = a.write(conn, websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := a.write(conn, websocket.TextMessage, msg); err != nil {
				a.logger.Debug("write failed", zap.Uint64("conn_id", id), zap.Error(err))
				return
			}
		case <-pings:
			if err := a.write(conn, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (a *Acceptor) write(conn *websocket.Conn, messageType int, data []byte) error {
	if a.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	}
	return conn.WriteMessage(messageType, data)
}

// Stop gracefully stops the acceptor, closing the listener and waiting for
// all pumps to finish.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	server := a.server
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Warn("websocket server shutdown", zap.Error(err))
	}

	// Shutdown does not close upgraded connections; give the pumps a bounded
	// window to observe their peers going away.
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		a.logger.Warn("timed out waiting for connection pumps")
	}

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet
// listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}
