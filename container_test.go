package obc_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	obc "github.com/openbiocure/obc-ingestion-core"
	"github.com/openbiocure/obc-ingestion-core/mock"
)

type ContainerTestSuite struct {
	suite.Suite
	services *obc.ServiceCollection
}

func (s *ContainerTestSuite) SetupTest() {
	s.services = obc.NewServiceCollection(nil)
}

func (s *ContainerTestSuite) TestSingletonInstance() {
	db := &mock.MockDB{}
	s.NoError(s.services.AddSingleton(obc.KeyOf[mock.Database](), db))

	got, ok, err := s.services.GetService(obc.KeyOf[mock.Database]())
	s.NoError(err)
	s.True(ok)
	s.Same(db, got)

	lifetime, ok := s.services.Lifetime(obc.KeyOf[mock.Database]())
	s.True(ok)
	s.Equal(obc.LifetimeSingleton, lifetime)
}

func (s *ContainerTestSuite) TestSingletonForms() {
	calls := 0
	s.Run("Factory", func() {
		s.NoError(s.services.AddSingleton(obc.KeyOf[mock.Cache](), obc.Factory(func(obc.Resolver) (any, error) {
			calls++
			return &mock.MockCache{}, nil
		})))
		s.Equal(1, calls, "singleton factories run at registration")

		first, _, _ := s.services.GetService(obc.KeyOf[mock.Cache]())
		second, _, _ := s.services.GetService(obc.KeyOf[mock.Cache]())
		s.Same(first, second)
		s.Equal(1, calls)
	})

	s.Run("PlainFunction", func() {
		s.NoError(s.services.AddSingleton(obc.KeyOf[*mock.MockDB](), func() *mock.MockDB {
			return &mock.MockDB{}
		}))
		got, ok, err := s.services.GetService(obc.KeyOf[*mock.MockDB]())
		s.NoError(err)
		s.True(ok)
		s.IsType(&mock.MockDB{}, got)
	})

	s.Run("Type", func() {
		s.NoError(s.services.AddSingleton(obc.KeyOf[*mock.CounterService](), reflect.TypeOf((*mock.CounterService)(nil))))
		got, _, err := s.services.GetService(obc.KeyOf[*mock.CounterService]())
		s.NoError(err)
		s.Equal(0, got.(*mock.CounterService).Count())
	})

	s.Run("InterfaceTypeCannotBeBuilt", func() {
		err := s.services.AddSingleton(obc.KeyOf[mock.Database](), obc.KeyOf[mock.Database]())
		var initErr *obc.InitializationError
		s.True(errors.As(err, &initErr))
	})
}

func (s *ContainerTestSuite) TestLastRegistrationWins() {
	for i := 0; i < 5; i++ {
		key := obc.KeyOf[*mock.MockCache]()
		cache := &mock.MockCache{}
		cache.Set("n", i)
		s.NoError(s.services.AddSingleton(key, cache))

		got, _, err := s.services.GetService(key)
		s.NoError(err)
		s.Equal(i, got.(*mock.MockCache).Get("n"))
	}

	s.NoError(s.services.AddTransient(obc.KeyOf[*mock.MockCache](), func(obc.Resolver) (any, error) {
		return &mock.MockCache{}, nil
	}))
	lifetime, _ := s.services.Lifetime(obc.KeyOf[*mock.MockCache]())
	s.Equal(obc.LifetimeTransient, lifetime, "a key holds one registration kind")
}

func (s *ContainerTestSuite) TestTransientBuildsEachTime() {
	s.NoError(s.services.AddTransient(obc.KeyOf[mock.Database](), func(obc.Resolver) (any, error) {
		db := &mock.MockDB{}
		return db, db.Connect()
	}))

	first, ok, err := s.services.GetService(obc.KeyOf[mock.Database]())
	s.NoError(err)
	s.True(ok)
	second, _, _ := s.services.GetService(obc.KeyOf[mock.Database]())
	s.NotSame(first, second)
	s.True(first.(mock.Database).IsConnected())
}

func (s *ContainerTestSuite) TestScopedNeedsScope() {
	s.NoError(s.services.AddScoped(obc.KeyOf[*mock.CounterService](), mock.NewCounterService))

	_, ok, err := s.services.GetService(obc.KeyOf[*mock.CounterService]())
	s.True(ok)
	var scopeErr *obc.ScopedWithoutScopeError
	s.True(errors.As(err, &scopeErr))
}

func (s *ContainerTestSuite) TestAbsence() {
	got, ok, err := s.services.GetService(obc.KeyOf[mock.Cache]())
	s.Nil(got)
	s.False(ok)
	s.NoError(err)

	_, err = s.services.Resolve(obc.KeyOf[mock.Cache]())
	var notRegistered *obc.NotRegisteredError
	s.True(errors.As(err, &notRegistered))
	s.Contains(notRegistered.Error(), "mock.Cache")
}

func (s *ContainerTestSuite) TestNestedDependencies() {
	s.NoError(s.services.AddTransient(obc.KeyOf[mock.DeepService3](), mock.NewDeep3))
	s.NoError(s.services.AddTransient(obc.KeyOf[mock.DeepService2](), mock.NewDeep2))
	s.NoError(s.services.AddTransient(obc.KeyOf[mock.DeepService1](), mock.NewDeep1))

	svc1, err := obc.Resolve[mock.DeepService1](s.services)
	s.NoError(err)
	s.Equal("deep", svc1.Service2().Service3().Value())
}

func (s *ContainerTestSuite) TestErrorCases() {
	s.Run("NilService", func() {
		var nilDB *mock.MockDB
		var nilErr *obc.NilServiceError
		s.True(errors.As(s.services.AddSingleton(obc.KeyOf[mock.Database](), nil), &nilErr))
		s.True(errors.As(s.services.AddSingleton(obc.KeyOf[mock.Database](), nilDB), &nilErr))
		s.True(errors.As(s.services.AddTransient(obc.KeyOf[mock.Database](), nil), &nilErr))
	})

	s.Run("FailingFactory", func() {
		err := s.services.AddSingleton(obc.KeyOf[mock.Database](), obc.Factory(mock.NewFailingDB))
		var initErr *obc.InitializationError
		s.True(errors.As(err, &initErr))
		s.ErrorIs(err, mock.ErrConnectionFailed)
		_, ok, _ := s.services.GetService(obc.KeyOf[mock.Database]())
		s.False(ok, "a failed singleton is not registered")
	})

	s.Run("TypeMismatch", func() {
		err := s.services.AddSingleton(obc.KeyOf[mock.Database](), &mock.MockCache{})
		var mismatch *obc.TypeMismatchError
		s.True(errors.As(err, &mismatch))
		s.Equal("mock.Database", mismatch.Expected)
	})

	s.Run("CircularDependency", func() {
		s.NoError(s.services.AddTransient(obc.KeyOf[mock.CircularService1](), mock.NewCircular1))
		s.NoError(s.services.AddTransient(obc.KeyOf[mock.CircularService2](), mock.NewCircular2))

		_, err := obc.Resolve[mock.CircularService1](s.services)
		var cycle *obc.CircularDependencyError
		s.Require().True(errors.As(err, &cycle))
		s.Equal([]string{"mock.CircularService1", "mock.CircularService2", "mock.CircularService1"}, cycle.Chain)
	})
}

func (s *ContainerTestSuite) TestGenericHelpers() {
	s.NoError(s.services.AddSingleton(obc.KeyOf[mock.Cache](), &mock.MockCache{}))

	cache := obc.MustResolve[mock.Cache](s.services)
	s.NotNil(cache)

	_, err := obc.Resolve[mock.Database](s.services)
	s.Error(err)
	s.Panics(func() { obc.MustResolve[mock.Database](s.services) })
}

func (s *ContainerTestSuite) TestRemoveAndClear() {
	s.NoError(s.services.AddSingleton(obc.KeyOf[mock.Cache](), &mock.MockCache{}))
	s.NoError(s.services.AddSingleton(obc.KeyOf[mock.Database](), &mock.MockDB{}))
	s.Len(s.services.Keys(), 2)

	s.services.Remove(obc.KeyOf[mock.Cache]())
	s.Equal([]obc.ServiceKey{obc.KeyOf[mock.Database]()}, s.services.Keys())

	s.services.Clear()
	s.Empty(s.services.Keys())
}

func (s *ContainerTestSuite) TestConcurrentAccess() {
	s.NoError(s.services.AddTransient(obc.KeyOf[mock.DeepService3](), mock.NewDeep3))
	s.NoError(s.services.AddTransient(obc.KeyOf[mock.DeepService2](), mock.NewDeep2))

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if id%4 == 0 {
				cache := &mock.MockCache{}
				cache.Set("writer", id)
				if err := s.services.AddSingleton(obc.KeyOf[mock.Cache](), cache); err != nil {
					errs <- err
				}
				return
			}
			svc, err := obc.Resolve[mock.DeepService2](s.services)
			if err != nil {
				errs <- err
				return
			}
			if svc.Service3().Value() != "deep" {
				errs <- errors.New("unexpected value")
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err, "concurrent resolution of the same key is not a cycle")
	}
}

func TestContainerSuite(t *testing.T) {
	suite.Run(t, new(ContainerTestSuite))
}
