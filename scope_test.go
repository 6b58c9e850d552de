package obc_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	obc "github.com/openbiocure/obc-ingestion-core"
	"github.com/openbiocure/obc-ingestion-core/mock"
)

type ScopeTestSuite struct {
	suite.Suite
	services *obc.ServiceCollection
	ctx      context.Context
}

func (s *ScopeTestSuite) SetupTest() {
	s.services = obc.NewServiceCollection(nil)
	s.ctx = context.Background()
	s.NoError(s.services.AddScoped(obc.KeyOf[*mock.CounterService](), mock.NewCounterService))
}

func (s *ScopeTestSuite) TestSameInstanceWithinScope() {
	scope := s.services.CreateScope()
	defer scope.Dispose(s.ctx)

	first, err := obc.Resolve[*mock.CounterService](scope)
	s.NoError(err)
	second, err := obc.Resolve[*mock.CounterService](scope)
	s.NoError(err)
	s.Same(first, second)
}

func (s *ScopeTestSuite) TestScopesAreIsolated() {
	scope1 := s.services.CreateScope()
	scope2 := s.services.CreateScope()

	counter1 := obc.MustResolve[*mock.CounterService](scope1)
	counter1.Increment()
	counter1.Increment()

	counter2 := obc.MustResolve[*mock.CounterService](scope2)
	s.NotSame(counter1, counter2)
	s.Equal(0, counter2.Count())
	s.Equal(1, counter2.Increment())
	s.Equal(2, counter1.Count())
}

func (s *ScopeTestSuite) TestFallsBackToRoot() {
	db := &mock.MockDB{}
	s.NoError(s.services.AddSingleton(obc.KeyOf[mock.Database](), db))
	s.NoError(s.services.AddTransient(obc.KeyOf[mock.Cache](), func(obc.Resolver) (any, error) {
		return &mock.MockCache{}, nil
	}))
	scope := s.services.CreateScope()

	got, err := obc.Resolve[mock.Database](scope)
	s.NoError(err)
	s.Same(db, got)

	c1, _ := obc.Resolve[mock.Cache](scope)
	c2, _ := obc.Resolve[mock.Cache](scope)
	s.NotSame(c1, c2, "transients are not cached by the scope")

	_, err = scope.Resolve(obc.KeyOf[mock.DeepService1]())
	var notRegistered *obc.NotRegisteredError
	s.True(errors.As(err, &notRegistered))
}

func (s *ScopeTestSuite) TestScopedFactoryResolvesFromScope() {
	s.NoError(s.services.AddScoped(obc.KeyOf[mock.DeepService3](), mock.NewDeep3))
	s.NoError(s.services.AddScoped(obc.KeyOf[mock.DeepService2](), mock.NewDeep2))
	scope := s.services.CreateScope()

	svc2 := obc.MustResolve[mock.DeepService2](scope)
	svc3 := obc.MustResolve[mock.DeepService3](scope)
	s.Same(svc3, svc2.Service3())
}

func (s *ScopeTestSuite) TestDisposeReverseOrderOnce() {
	log := &mock.DisposeLog{}
	first := &mock.Disposable{Name: "first", Log: log}
	second := &mock.Disposable{Name: "second", Log: log}
	s.NoError(s.services.AddScoped(obc.KeyOf[*mock.Disposable](), func(obc.Resolver) (any, error) { return first, nil }))
	s.NoError(s.services.AddScoped(obc.KeyOf[*mock.MockDB](), func(obc.Resolver) (any, error) { return &mock.MockDB{}, nil }))
	s.NoError(s.services.AddScoped(obc.KeyOf[mock.Cache](), func(obc.Resolver) (any, error) { return &mock.MockCache{}, nil }))
	s.NoError(s.services.AddScoped(obc.KeyOf[obc.Disposer](), func(obc.Resolver) (any, error) { return second, nil }))

	scope := s.services.CreateScope()
	_ = obc.MustResolve[*mock.Disposable](scope)
	db := obc.MustResolve[*mock.MockDB](scope)
	_ = obc.MustResolve[mock.Cache](scope)
	_ = obc.MustResolve[obc.Disposer](scope)

	s.NoError(scope.Dispose(s.ctx))
	s.True(scope.Disposed())
	s.Equal([]string{"second", "first"}, log.Names())
	s.Equal(1, db.Disposals())

	s.NoError(scope.Dispose(s.ctx))
	s.Equal(1, first.Calls)
	s.Equal(1, second.Calls)
}

func (s *ScopeTestSuite) TestDisposeContinuesPastFailures() {
	boom := errors.New("boom")
	log := &mock.DisposeLog{}
	s.NoError(s.services.AddScoped(obc.KeyOf[*mock.Disposable](), func(obc.Resolver) (any, error) {
		return &mock.Disposable{Name: "ok", Log: log}, nil
	}))
	s.NoError(s.services.AddScoped(obc.KeyOf[obc.Disposer](), func(obc.Resolver) (any, error) {
		return &mock.Disposable{Name: "broken", Log: log, Err: boom}, nil
	}))

	scope := s.services.CreateScope()
	_ = obc.MustResolve[*mock.Disposable](scope)
	_ = obc.MustResolve[obc.Disposer](scope)

	err := scope.Dispose(s.ctx)
	s.ErrorIs(err, boom)
	var cleanupErr *obc.CleanupError
	s.True(errors.As(err, &cleanupErr))
	s.Equal([]string{"broken", "ok"}, log.Names())
}

func (s *ScopeTestSuite) TestFailedCreationIsNotCached() {
	calls := 0
	s.NoError(s.services.AddScoped(obc.KeyOf[mock.Database](), func(obc.Resolver) (any, error) {
		calls++
		if calls == 1 {
			return nil, mock.ErrConnectionFailed
		}
		return &mock.MockDB{}, nil
	}))
	scope := s.services.CreateScope()

	_, err := scope.Resolve(obc.KeyOf[mock.Database]())
	var initErr *obc.InitializationError
	s.True(errors.As(err, &initErr))
	s.ErrorIs(err, mock.ErrConnectionFailed)

	db, err := obc.Resolve[mock.Database](scope)
	s.NoError(err)
	s.NoError(scope.Dispose(s.ctx))
	s.Equal(1, db.(*mock.MockDB).Disposals())
}

func (s *ScopeTestSuite) TestResolveAfterDispose() {
	scope := s.services.CreateScope()
	s.NoError(scope.Dispose(s.ctx))

	_, err := scope.Resolve(obc.KeyOf[*mock.CounterService]())
	var disposed *obc.ScopeDisposedError
	s.True(errors.As(err, &disposed))
}

func (s *ScopeTestSuite) TestScopedCycle() {
	s.NoError(s.services.AddScoped(obc.KeyOf[mock.CircularService1](), mock.NewCircular1))
	s.NoError(s.services.AddScoped(obc.KeyOf[mock.CircularService2](), mock.NewCircular2))

	_, err := s.services.CreateScope().Resolve(obc.KeyOf[mock.CircularService1]())
	var cycle *obc.CircularDependencyError
	s.True(errors.As(err, &cycle))
}

func (s *ScopeTestSuite) TestConcurrentBuildDisposesDuplicate() {
	var (
		mu    sync.Mutex
		built []*mock.Disposable
		ready sync.WaitGroup
	)
	ready.Add(2)
	s.NoError(s.services.AddScoped(obc.KeyOf[*mock.Disposable](), func(obc.Resolver) (any, error) {
		d := &mock.Disposable{Name: "conn"}
		mu.Lock()
		built = append(built, d)
		mu.Unlock()
		// Both builds are in flight before either result is cached.
		ready.Done()
		ready.Wait()
		return d, nil
	}))

	scope := s.services.CreateScope()
	results := make([]*mock.Disposable, 2)
	var done sync.WaitGroup
	for i := range results {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			d, err := obc.Resolve[*mock.Disposable](scope)
			s.NoError(err)
			results[i] = d
		}(i)
	}
	done.Wait()

	s.Require().Len(built, 2)
	s.Same(results[0], results[1])
	cached := results[0]
	for _, d := range built {
		if d == cached {
			s.Equal(0, d.Calls)
		} else {
			s.Equal(1, d.Calls, "the instance that lost the race is disposed")
		}
	}

	s.NoError(scope.Dispose(s.ctx))
	s.Equal(1, cached.Calls)
}

func TestScopeSuite(t *testing.T) {
	suite.Run(t, new(ScopeTestSuite))
}
