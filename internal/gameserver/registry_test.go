package gameserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_RegisterAssignsMonotonicIDs(t *testing.T) {
	r := NewRegistry(4, zap.NewNop())

	id1, _ := r.Register()
	id2, _ := r.Register()
	assert.Greater(t, id2, id1)
	assert.Equal(t, 2, r.Count())
}

func TestRegistry_SendDelivers(t *testing.T) {
	r := NewRegistry(4, zap.NewNop())
	id, out := r.Register()

	require.True(t, r.Send(id, []byte("hello")))
	assert.Equal(t, []byte("hello"), <-out)
}

func TestRegistry_SendUnknownConnectionDrops(t *testing.T) {
	r := NewRegistry(4, zap.NewNop())
	assert.False(t, r.Send(99, []byte("hello")))
}

func TestRegistry_SendFullQueueDrops(t *testing.T) {
	r := NewRegistry(1, zap.NewNop())
	id, out := r.Register()

	require.True(t, r.Send(id, []byte("first")))
	assert.False(t, r.Send(id, []byte("second")), "full queue drops instead of blocking")

	assert.Equal(t, []byte("first"), <-out)
}

func TestRegistry_UnregisterClosesQueue(t *testing.T) {
	r := NewRegistry(4, zap.NewNop())
	id, out := r.Register()

	r.Unregister(id)
	_, open := <-out
	assert.False(t, open)
	assert.False(t, r.Send(id, []byte("late")))
	assert.Equal(t, 0, r.Count())

	// Idempotent.
	r.Unregister(id)
}

func TestRegistry_BroadcastAllReachesEveryConnection(t *testing.T) {
	r := NewRegistry(4, zap.NewNop())
	_, out1 := r.Register()
	_, out2 := r.Register()
	id3, _ := r.Register()
	r.Unregister(id3)

	r.BroadcastAll([]byte("refresh"))
	assert.Equal(t, []byte("refresh"), <-out1)
	assert.Equal(t, []byte("refresh"), <-out2)
}

func TestRegistry_BroadcastSkipsDeadConnections(t *testing.T) {
	r := NewRegistry(4, zap.NewNop())
	id1, out1 := r.Register()
	id2, out2 := r.Register()
	r.Unregister(id2)

	r.Broadcast([]uint64{id1, id2, 777}, []byte("tick"))
	assert.Equal(t, []byte("tick"), <-out1)
	_, open := <-out2
	assert.False(t, open)
}
