package service

import (
	"context"
	"errors"
	"sync"

	"github.com/arvo-net/arvo/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")

	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
)

// Service defines a service that can be started and stopped.
type Service interface {
	// Start is called to start the service, which should run until the
	// context terminates. If the service is already running, Start must
	// report an error.
	Start(context.Context) error

	// IsRunning returns true if the service is running.
	IsRunning() bool

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the BaseService wraps.
type Implementation interface {
	// OnStart is called by the service's Start method.
	OnStart(context.Context) error

	// OnStop is called when the service's context is canceled or when it
	// is explicitly stopped.
	OnStop()
}

// BaseService provides the guts of the Service lifecycle: a service can be
// started once, runs until its context terminates, and is stopped exactly
// once. Concrete services embed a BaseService and supply OnStart/OnStop.
//
// Typical usage:
//
//	type FooService struct {
//		BaseService
//		// private fields
//	}
//
//	func NewFooService(logger log.Logger) *FooService {
//		fs := &FooService{
//			// init
//		}
//		fs.BaseService = *NewBaseService(logger, "FooService", fs)
//		return fs
//	}
//
//	func (fs *FooService) OnStart(ctx context.Context) error { ... }
//	func (fs *FooService) OnStop()                           { ... }
type BaseService struct {
	logger log.Logger
	name   string
	impl   Implementation

	mtx     sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &BaseService{
		logger: logger,
		name:   name,
		impl:   impl,
		quit:   make(chan struct{}),
	}
}

// Start starts the Service and calls its OnStart method. An error is returned
// if the service is already running or was already stopped. The service stops
// when the context terminates.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch {
	case bs.started:
		return ErrAlreadyStarted
	case bs.stopped:
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name)
	if err := bs.impl.OnStart(ctx); err != nil {
		return err
	}
	bs.started = true

	go func() {
		select {
		case <-bs.quit:
			// stopped explicitly, OnStop already ran
			return
		case <-ctx.Done():
			bs.Stop()
		}
	}()

	return nil
}

// Stop stops the service by calling OnStop and closing the quit channel. Stop
// is idempotent; only the first call has an effect.
func (bs *BaseService) Stop() {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if bs.stopped || !bs.started {
		return
	}
	bs.stopped = true

	bs.logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	close(bs.quit)
}

// IsRunning returns true if the service has been started and not yet stopped.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.started && !bs.stopped
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String returns the service name.
func (bs *BaseService) String() string { return bs.name }
