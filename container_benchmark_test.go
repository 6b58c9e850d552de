package obc_test

import (
	"context"
	"testing"

	obc "github.com/openbiocure/obc-ingestion-core"
	"github.com/openbiocure/obc-ingestion-core/mock"
)

func BenchmarkRegistration(b *testing.B) {
	b.Run("Singleton", func(b *testing.B) {
		services := obc.NewServiceCollection(nil)
		key := obc.KeyOf[mock.Database]()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = services.AddSingleton(key, &mock.MockDB{})
		}
	})

	b.Run("Transient", func(b *testing.B) {
		services := obc.NewServiceCollection(nil)
		key := obc.KeyOf[mock.DeepService3]()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = services.AddTransient(key, mock.NewDeep3)
		}
	})
}

func BenchmarkResolution(b *testing.B) {
	services := obc.NewServiceCollection(nil)
	_ = services.AddSingleton(obc.KeyOf[mock.Database](), &mock.MockDB{})
	_ = services.AddTransient(obc.KeyOf[mock.DeepService3](), mock.NewDeep3)
	_ = services.AddTransient(obc.KeyOf[mock.DeepService2](), mock.NewDeep2)
	_ = services.AddTransient(obc.KeyOf[mock.DeepService1](), mock.NewDeep1)
	_ = services.AddScoped(obc.KeyOf[*mock.CounterService](), mock.NewCounterService)

	b.Run("Singleton", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = obc.Resolve[mock.Database](services)
		}
	})

	b.Run("DeepTransientChain", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = obc.Resolve[mock.DeepService1](services)
		}
	})

	b.Run("ScopePerRequest", func(b *testing.B) {
		ctx := context.Background()
		for i := 0; i < b.N; i++ {
			scope := services.CreateScope()
			_, _ = obc.Resolve[*mock.CounterService](scope)
			_ = scope.Dispose(ctx)
		}
	})

	b.Run("Parallel", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				_, _ = obc.Resolve[mock.DeepService1](services)
			}
		})
	})
}

func BenchmarkContainerContext(b *testing.B) {
	base := obc.NewContainerContext(context.Background()).With("request_id", "bench-1")
	b.Run("With", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = base.With("user", i)
		}
	})
	b.Run("Value", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_ = base.Value("request_id")
		}
	})
}
