package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// turnSequence is one in-flight automated-turn run for a session.
type turnSequence struct {
	cancel context.CancelFunc
}

// Scheduler runs automated-turn sequences. One cancellable handle exists per
// session: scheduling a new sequence for a session replaces any in-flight
// one, and session teardown cancels its handle deterministically instead of
// waiting for the sequence to observe the ended state on its own.
//
// The scheduler never mutates session state itself; each turn funnels
// through the run callback, which is the router's exclusion-protected
// mutation path. A sequence runs outside any connection's receive loop so a
// slow or idle client cannot delay automated turns.
type Scheduler struct {
	delay  time.Duration
	run    func(sessionName string) bool
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*turnSequence
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler that waits delay between automated turns.
// run resolves one automated turn and reports whether the sequence should
// continue.
//
// Precondition: delay must be > 0 and run must be non-nil.
func NewScheduler(delay time.Duration, run func(sessionName string) bool, logger *zap.Logger) *Scheduler {
	if delay <= 0 {
		panic("gameserver.NewScheduler: delay must be > 0")
	}
	return &Scheduler{
		delay:   delay,
		run:     run,
		logger:  logger,
		handles: make(map[string]*turnSequence),
	}
}

// Schedule starts an automated-turn sequence of up to turns steps for the
// session, replacing any sequence already running for it.
func (s *Scheduler) Schedule(sessionName string, turns int) {
	if turns <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	seq := &turnSequence{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.handles[sessionName]; ok {
		prev.cancel()
	}
	s.handles[sessionName] = seq
	s.mu.Unlock()

	s.logger.Debug("scheduling automated turns",
		zap.String("session", sessionName),
		zap.Int("turns", turns),
	)

	s.wg.Add(1)
	go s.sequence(ctx, seq, sessionName, turns)
}

func (s *Scheduler) sequence(ctx context.Context, seq *turnSequence, sessionName string, turns int) {
	defer s.wg.Done()
	defer s.release(sessionName, seq)

	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	for remaining := turns; remaining > 0; remaining-- {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !s.run(sessionName) {
			return
		}
		timer.Reset(s.delay)
	}
}

// release removes the session's handle, but only if it still points at this
// sequence; a replacement scheduled meanwhile must keep its own handle.
func (s *Scheduler) release(sessionName string, seq *turnSequence) {
	seq.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles[sessionName] == seq {
		delete(s.handles, sessionName)
	}
}

// Cancel stops any automated-turn sequence running for the session.
func (s *Scheduler) Cancel(sessionName string) {
	s.mu.Lock()
	seq, ok := s.handles[sessionName]
	if ok {
		delete(s.handles, sessionName)
	}
	s.mu.Unlock()

	if ok {
		seq.cancel()
		s.logger.Debug("cancelled automated turns", zap.String("session", sessionName))
	}
}

// Stop cancels every sequence and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for name, seq := range s.handles {
		seq.cancel()
		delete(s.handles, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
