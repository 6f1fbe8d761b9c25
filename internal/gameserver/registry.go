package gameserver

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Registry tracks every open connection and its outbound message queue.
// Connection ids are process-unique and monotonically increasing.
//
// Sends are non-blocking: a message for a full or unknown queue is dropped
// with a log entry. A slow client can therefore never stall a mutation path
// or another connection.
type Registry struct {
	queueSize int
	logger    *zap.Logger

	nextID atomic.Uint64

	mu    sync.RWMutex
	conns map[uint64]chan []byte
}

// NewRegistry creates an empty Registry whose outbound queues hold up to
// queueSize messages each.
//
// Precondition: queueSize must be > 0.
func NewRegistry(queueSize int, logger *zap.Logger) *Registry {
	if queueSize <= 0 {
		panic("gameserver.NewRegistry: queueSize must be > 0")
	}
	return &Registry{
		queueSize: queueSize,
		logger:    logger,
		conns:     make(map[uint64]chan []byte),
	}
}

// Register allocates a connection id and its outbound queue. The caller's
// write loop drains the returned channel until it is closed by Unregister.
func (r *Registry) Register() (uint64, <-chan []byte) {
	id := r.nextID.Add(1)
	out := make(chan []byte, r.queueSize)

	r.mu.Lock()
	r.conns[id] = out
	r.mu.Unlock()

	r.logger.Debug("connection registered", zap.Uint64("conn_id", id))
	return id, out
}

// Unregister removes a connection and closes its outbound queue. Idempotent.
//
// Postcondition: subsequent Sends to the id are dropped.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	out, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		close(out)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Debug("connection unregistered", zap.Uint64("conn_id", id))
	}
}

// Send enqueues one message for a connection. Returns false when the message
// was dropped because the connection is unknown or its queue is full.
func (r *Registry) Send(id uint64, msg []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out, ok := r.conns[id]
	if !ok {
		r.logger.Debug("dropping message for unknown connection", zap.Uint64("conn_id", id))
		return false
	}
	select {
	case out <- msg:
		return true
	default:
		r.logger.Warn("outbound queue full, dropping message", zap.Uint64("conn_id", id))
		return false
	}
}

// Broadcast sends one message to every listed connection. Per-connection
// drops are independent; one full queue never blocks the rest.
func (r *Registry) Broadcast(ids []uint64, msg []byte) {
	for _, id := range ids {
		r.Send(id, msg)
	}
}

// BroadcastAll sends one message to every open connection, with the same
// per-connection drop semantics as Send.
func (r *Registry) BroadcastAll(msg []byte) {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Send(id, msg)
	}
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
