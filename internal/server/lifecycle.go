// Package server coordinates startup and shutdown of the application's
// long-running components.
package server

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Service is a long-running component. Start blocks until the service exits
// or fails; Stop asks it to exit.
type Service interface {
	Start() error
	Stop()
}

// FuncService adapts a start/stop function pair into a Service.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

// Start calls StartFn.
func (f *FuncService) Start() error { return f.StartFn() }

// Stop calls StopFn.
func (f *FuncService) Stop() { f.StopFn() }

// Lifecycle runs registered services and stops them in reverse registration
// order when a termination signal arrives, the context is cancelled, or any
// service fails.
type Lifecycle struct {
	logger *zap.Logger
	names  []string
	svcs   []Service
}

// NewLifecycle creates an empty Lifecycle.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a named service. Later registrations stop earlier.
//
// Precondition: must not be called once Run has started.
func (l *Lifecycle) Add(name string, svc Service) {
	l.names = append(l.names, name)
	l.svcs = append(l.svcs, svc)
}

// Run starts every registered service and blocks until SIGINT, SIGTERM,
// context cancellation, or a service failure, then stops all services in
// reverse order.
//
// Postcondition: every service's Stop has been called when Run returns.
func (l *Lifecycle) Run(ctx context.Context) error {
	began := time.Now()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failures := make(chan error, len(l.svcs))
	for i := range l.svcs {
		name, svc := l.names[i], l.svcs[i]
		go func() {
			l.logger.Info("service starting", zap.String("service", name))
			if err := svc.Start(); err != nil {
				l.logger.Error("service failed",
					zap.String("service", name),
					zap.Error(err),
				)
				failures <- fmt.Errorf("service %s: %w", name, err)
			}
		}()
	}
	l.logger.Info("services running",
		zap.Int("count", len(l.svcs)),
		zap.Duration("startup", time.Since(began)),
	)

	select {
	case <-ctx.Done():
		l.logger.Info("shutdown requested")
	case err := <-failures:
		l.logger.Error("shutting down after service failure", zap.Error(err))
	}

	for i := len(l.svcs) - 1; i >= 0; i-- {
		stopBegan := time.Now()
		l.svcs[i].Stop()
		l.logger.Info("service stopped",
			zap.String("service", l.names[i]),
			zap.Duration("elapsed", time.Since(stopBegan)),
		)
	}
	l.logger.Info("shutdown complete", zap.Duration("uptime", time.Since(began)))
	return nil
}
