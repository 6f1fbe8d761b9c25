package gameserver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// turnRecorder counts automated turns per session.
type turnRecorder struct {
	mu       sync.Mutex
	turns    map[string]int
	stopWhen int
}

func newTurnRecorder(stopWhen int) *turnRecorder {
	return &turnRecorder{turns: make(map[string]int), stopWhen: stopWhen}
}

func (c *turnRecorder) run(sessionName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns[sessionName]++
	return c.stopWhen == 0 || c.turns[sessionName] < c.stopWhen
}

func (c *turnRecorder) count(sessionName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turns[sessionName]
}

func waitFor(t *testing.T, cond func() bool) {
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

func TestScheduler_RunsRequestedTurns(t *testing.T) {
	rec := newTurnRecorder(0)
	s := NewScheduler(5*time.Millisecond, rec.run, zap.NewNop())
	defer s.Stop()

	s.Schedule("Alice", 3)
	waitFor(t, func() bool { return rec.count("Alice") == 3 })

	// No extra turns after the count is exhausted.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, rec.count("Alice"))
}

func TestScheduler_StopsWhenRunSaysSo(t *testing.T) {
	rec := newTurnRecorder(2)
	s := NewScheduler(5*time.Millisecond, rec.run, zap.NewNop())
	defer s.Stop()

	s.Schedule("Alice", 10)
	waitFor(t, func() bool { return rec.count("Alice") == 2 })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, rec.count("Alice"))
}

func TestScheduler_CancelStopsSequence(t *testing.T) {
	rec := newTurnRecorder(0)
	s := NewScheduler(50*time.Millisecond, rec.run, zap.NewNop())
	defer s.Stop()

	s.Schedule("Alice", 5)
	s.Cancel("Alice")

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, rec.count("Alice"), "cancelled before the first delay elapsed")
}

func TestScheduler_CancelUnknownSessionIsNoop(t *testing.T) {
	s := NewScheduler(time.Millisecond, func(string) bool { return false }, zap.NewNop())
	defer s.Stop()
	s.Cancel("ghost")
}

func TestScheduler_RescheduleReplacesSequence(t *testing.T) {
	rec := newTurnRecorder(0)
	s := NewScheduler(5*time.Millisecond, rec.run, zap.NewNop())
	defer s.Stop()

	s.Schedule("Alice", 100)
	s.Schedule("Alice", 2)

	waitFor(t, func() bool { return rec.count("Alice") >= 2 })
	final := rec.count("Alice")
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, rec.count("Alice"), final+1,
		"replaced sequence must not keep ticking toward its old count")
}

func TestScheduler_SessionsRunIndependently(t *testing.T) {
	rec := newTurnRecorder(0)
	s := NewScheduler(5*time.Millisecond, rec.run, zap.NewNop())
	defer s.Stop()

	s.Schedule("Alice", 2)
	s.Schedule("Bob", 3)

	waitFor(t, func() bool { return rec.count("Alice") == 2 && rec.count("Bob") == 3 })
}

func TestScheduler_ZeroTurnsIsNoop(t *testing.T) {
	rec := newTurnRecorder(0)
	s := NewScheduler(time.Millisecond, rec.run, zap.NewNop())
	defer s.Stop()

	s.Schedule("Alice", 0)
	time.Sleep(10 * time.Millisecond)
	require.Zero(t, rec.count("Alice"))
}
