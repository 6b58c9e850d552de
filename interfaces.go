package obc

import (
	"context"
	"reflect"
)

// ServiceKey identifies a registration. Keys compare by type identity, so two
// types sharing a short name never collide.
type ServiceKey = reflect.Type

// KeyOf returns the key for T. Interfaces are valid keys.
func KeyOf[T any]() ServiceKey {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Lifetime defines how long a resolved instance is shared.
type Lifetime string

const (
	// LifetimeSingleton shares one instance for the life of the container.
	LifetimeSingleton Lifetime = "singleton"
	// LifetimeScoped shares one instance per Scope.
	LifetimeScoped Lifetime = "scoped"
	// LifetimeTransient builds a new instance on every resolution.
	LifetimeTransient Lifetime = "transient"
)

// Resolver returns the instance registered under a key.
type Resolver interface {
	Resolve(key ServiceKey) (any, error)
}

// Factory builds an instance. r is the resolver the instance is being built
// for: the engine for singletons and transients, the scope for scoped ones.
type Factory func(r Resolver) (any, error)

// Disposer is implemented by scoped instances that hold resources.
type Disposer interface {
	Dispose(ctx context.Context) error
}
