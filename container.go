package obc

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	resolverType = reflect.TypeOf((*Resolver)(nil)).Elem()
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// registration holds one key's binding. Singletons carry their instance,
// scoped and transient bindings carry a factory.
type registration struct {
	lifetime Lifetime
	instance any
	factory  Factory
}

// ServiceCollection maps keys to registrations. A key holds exactly one
// registration; registering it again replaces the previous one whatever its
// lifetime.
type ServiceCollection struct {
	mu            sync.RWMutex
	registrations map[ServiceKey]registration
	root          Resolver
	tracker       *resolutionTracker
}

// NewServiceCollection returns an empty collection. Factories receive root
// when they run outside a scope; a nil root makes the collection its own.
func NewServiceCollection(root Resolver) *ServiceCollection {
	c := &ServiceCollection{
		registrations: make(map[ServiceKey]registration, 32),
		tracker:       newResolutionTracker(),
	}
	c.root = root
	if c.root == nil {
		c.root = c
	}
	return c
}

// AddSingleton registers impl under key and instantiates it immediately.
//
// impl may be an instance, a Factory, a function of no arguments or of one
// Resolver argument returning a value and optionally an error, or a
// reflect.Type whose zero value is allocated. To register a function value as
// the service itself, wrap it in a Factory.
func (c *ServiceCollection) AddSingleton(key ServiceKey, impl any) error {
	if key == nil {
		return &NilServiceError{Type: "<nil key>"}
	}
	instance, err := c.materialize(key, impl)
	if err != nil {
		return err
	}
	c.put(key, registration{lifetime: LifetimeSingleton, instance: instance})
	return nil
}

// AddScoped registers a factory invoked once per Scope.
func (c *ServiceCollection) AddScoped(key ServiceKey, factory Factory) error {
	return c.addFactory(key, LifetimeScoped, factory)
}

// AddTransient registers a factory invoked on every resolution.
func (c *ServiceCollection) AddTransient(key ServiceKey, factory Factory) error {
	return c.addFactory(key, LifetimeTransient, factory)
}

func (c *ServiceCollection) addFactory(key ServiceKey, lifetime Lifetime, factory Factory) error {
	if key == nil {
		return &NilServiceError{Type: "<nil key>"}
	}
	if factory == nil {
		return &NilServiceError{Type: key.String()}
	}
	c.put(key, registration{lifetime: lifetime, factory: factory})
	return nil
}

func (c *ServiceCollection) put(key ServiceKey, reg registration) {
	c.mu.Lock()
	c.registrations[key] = reg
	c.mu.Unlock()
}

// GetService returns the instance for key. ok is false, with a nil error, when
// nothing is registered. Scoped keys fail with ScopedWithoutScopeError.
func (c *ServiceCollection) GetService(key ServiceKey) (instance any, ok bool, err error) {
	c.mu.RLock()
	reg, found := c.registrations[key]
	c.mu.RUnlock()
	if !found {
		return nil, false, nil
	}

	switch reg.lifetime {
	case LifetimeSingleton:
		return reg.instance, true, nil
	case LifetimeScoped:
		return nil, true, &ScopedWithoutScopeError{Type: key.String()}
	default:
		instance, err := c.invoke(key, reg.factory, c.root)
		return instance, true, err
	}
}

// Resolve implements Resolver over the collection alone.
func (c *ServiceCollection) Resolve(key ServiceKey) (any, error) {
	instance, ok, err := c.GetService(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotRegisteredError{Type: key.String()}
	}
	return instance, nil
}

// CreateScope returns a scope resolving scoped keys from this collection.
func (c *ServiceCollection) CreateScope() *Scope {
	return newScope(c, nil)
}

// Lifetime reports how key is registered.
func (c *ServiceCollection) Lifetime(key ServiceKey) (Lifetime, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.registrations[key]
	return reg.lifetime, ok
}

// Keys returns the registered keys sorted by name.
func (c *ServiceCollection) Keys() []ServiceKey {
	c.mu.RLock()
	keys := make([]ServiceKey, 0, len(c.registrations))
	for k := range c.registrations {
		keys = append(keys, k)
	}
	c.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Remove drops the registration for key.
func (c *ServiceCollection) Remove(key ServiceKey) {
	c.mu.Lock()
	delete(c.registrations, key)
	c.mu.Unlock()
}

// Clear drops every registration.
func (c *ServiceCollection) Clear() {
	c.mu.Lock()
	c.registrations = make(map[ServiceKey]registration, 32)
	c.mu.Unlock()
}

// snapshot copies the current registrations so a failed start can put them back.
func (c *ServiceCollection) snapshot() map[ServiceKey]registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	regs := make(map[ServiceKey]registration, len(c.registrations))
	for k, reg := range c.registrations {
		regs[k] = reg
	}
	return regs
}

// restore replaces every registration with regs.
func (c *ServiceCollection) restore(regs map[ServiceKey]registration) {
	c.mu.Lock()
	c.registrations = make(map[ServiceKey]registration, len(regs)+32)
	for k, reg := range regs {
		c.registrations[k] = reg
	}
	c.mu.Unlock()
}

func (c *ServiceCollection) scopedFactory(key ServiceKey) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.registrations[key]
	if !ok || reg.lifetime != LifetimeScoped {
		return nil, false
	}
	return reg.factory, true
}

func (c *ServiceCollection) resolutions() *resolutionTracker {
	return c.tracker
}

// invoke runs factory for key with r, guarding the chain against cycles.
func (c *ServiceCollection) invoke(key ServiceKey, factory Factory, r Resolver) (any, error) {
	if err := c.tracker.enter(key); err != nil {
		return nil, err
	}
	defer c.tracker.leave(key)

	instance, err := factory(r)
	if err != nil {
		var cycle *CircularDependencyError
		if errors.As(err, &cycle) {
			return nil, err
		}
		return nil, &InitializationError{Type: key.String(), Err: err}
	}
	return checkInstance(key, instance)
}

func (c *ServiceCollection) materialize(key ServiceKey, impl any) (any, error) {
	switch v := impl.(type) {
	case nil:
		return nil, &NilServiceError{Type: key.String()}
	case Factory:
		return c.invoke(key, v, c.root)
	case reflect.Type:
		instance, err := allocate(v)
		if err != nil {
			return nil, &InitializationError{Type: key.String(), Err: err}
		}
		return checkInstance(key, instance)
	}

	rv := reflect.ValueOf(impl)
	if rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return nil, &NilServiceError{Type: key.String()}
		}
		if factory, ok := asFactory(rv); ok {
			return c.invoke(key, factory, c.root)
		}
	}
	if isNil(rv) {
		return nil, &NilServiceError{Type: key.String()}
	}
	return checkInstance(key, impl)
}

// asFactory adapts func() T, func() (T, error), func(Resolver) T and
// func(Resolver) (T, error) to a Factory.
func asFactory(fn reflect.Value) (Factory, bool) {
	t := fn.Type()
	if t.IsVariadic() || t.NumIn() > 1 || t.NumOut() < 1 || t.NumOut() > 2 {
		return nil, false
	}
	if t.NumIn() == 1 && t.In(0) != resolverType {
		return nil, false
	}
	if t.NumOut() == 2 && t.Out(1) != errorType {
		return nil, false
	}
	return func(r Resolver) (any, error) {
		var in []reflect.Value
		if t.NumIn() == 1 {
			in = []reflect.Value{reflect.ValueOf(&r).Elem()}
		}
		out := fn.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		if isNil(out[0]) {
			return nil, nil
		}
		return out[0].Interface(), nil
	}, true
}

// allocate builds a zero instance of t. Pointer types get a freshly allocated
// element; struct types are returned as a pointer.
func allocate(t reflect.Type) (any, error) {
	switch t.Kind() {
	case reflect.Pointer:
		return reflect.New(t.Elem()).Interface(), nil
	case reflect.Struct:
		return reflect.New(t).Interface(), nil
	case reflect.Interface:
		return nil, fmt.Errorf("cannot instantiate interface type %s", t)
	default:
		return reflect.Zero(t).Interface(), nil
	}
}

func checkInstance(key ServiceKey, instance any) (any, error) {
	if instance == nil || isNil(reflect.ValueOf(instance)) {
		return nil, &NilServiceError{Type: key.String()}
	}
	if got := reflect.TypeOf(instance); !got.AssignableTo(key) {
		return nil, &TypeMismatchError{Expected: key.String(), Got: got.String()}
	}
	return instance, nil
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Resolve returns the instance registered under T.
func Resolve[T any](r Resolver) (T, error) {
	var zero T
	instance, err := r.Resolve(KeyOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, &TypeMismatchError{Expected: KeyOf[T]().String(), Got: reflect.TypeOf(instance).String()}
	}
	return typed, nil
}

// MustResolve is Resolve that panics on failure.
func MustResolve[T any](r Resolver) T {
	v, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return v
}

// Register registers instance with e as the singleton for T.
func Register[T any](e *Engine, instance T) error {
	return e.Register(KeyOf[T](), instance)
}
