package obc

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// scopeRoot is what a Scope delegates to: the engine, or a bare collection.
type scopeRoot interface {
	Resolver
	scopedFactory(key ServiceKey) (Factory, bool)
	resolutions() *resolutionTracker
}

// Scope caches scoped instances for one unit of work. Keys that are not
// registered as scoped resolve through the root. A Scope is meant to be used
// by one logical operation at a time.
type Scope struct {
	root scopeRoot
	log  *zap.Logger

	mu        sync.Mutex
	instances map[ServiceKey]any
	order     []ServiceKey
	disposed  bool
}

func newScope(root scopeRoot, log *zap.Logger) *Scope {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scope{
		root:      root,
		log:       log,
		instances: make(map[ServiceKey]any),
	}
}

// Resolve returns the scope's instance for a scoped key, building it on first
// use, and defers to the root for every other key.
func (s *Scope) Resolve(key ServiceKey) (any, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, &ScopeDisposedError{Type: key.String()}
	}
	if instance, ok := s.instances[key]; ok {
		s.mu.Unlock()
		return instance, nil
	}
	s.mu.Unlock()

	factory, ok := s.root.scopedFactory(key)
	if !ok {
		return s.root.Resolve(key)
	}

	instance, err := s.build(key, factory)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.disposeLate(key, instance)
		return nil, &ScopeDisposedError{Type: key.String()}
	}
	if existing, ok := s.instances[key]; ok {
		s.mu.Unlock()
		// Another goroutine cached key first; release the duplicate.
		s.disposeLate(key, instance)
		return existing, nil
	}
	s.instances[key] = instance
	s.order = append(s.order, key)
	s.mu.Unlock()
	return instance, nil
}

func (s *Scope) build(key ServiceKey, factory Factory) (any, error) {
	tracker := s.root.resolutions()
	if err := tracker.enter(key); err != nil {
		return nil, err
	}
	defer tracker.leave(key)

	instance, err := factory(s)
	if err != nil {
		var cycle *CircularDependencyError
		if errors.As(err, &cycle) {
			return nil, err
		}
		return nil, &InitializationError{Type: key.String(), Err: err}
	}
	return checkInstance(key, instance)
}

func (s *Scope) disposeLate(key ServiceKey, instance any) {
	if d, ok := instance.(Disposer); ok {
		if err := d.Dispose(context.Background()); err != nil {
			s.log.Warn("scoped instance dispose failed", zap.Error(&CleanupError{Resource: key.String(), Err: err}))
		}
	}
}

// Disposed reports whether Dispose has run.
func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose releases every cached instance that implements Disposer, newest
// first, then empties the cache. Every instance is attempted; failures are
// combined into the returned error. Calling Dispose again does nothing.
func (s *Scope) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	order, instances := s.order, s.instances
	s.order, s.instances = nil, make(map[ServiceKey]any)
	s.mu.Unlock()

	var errs error
	for i := len(order) - 1; i >= 0; i-- {
		key := order[i]
		d, ok := instances[key].(Disposer)
		if !ok {
			continue
		}
		if err := d.Dispose(ctx); err != nil {
			cerr := &CleanupError{Resource: key.String(), Err: err}
			s.log.Warn("scoped instance dispose failed", zap.Error(cerr))
			errs = multierr.Append(errs, cerr)
		}
	}
	return errs
}
