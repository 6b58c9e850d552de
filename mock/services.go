// Package mock holds fixtures shared by the framework's tests.
package mock

import (
	"context"
	"errors"
	"sync"

	obc "github.com/openbiocure/obc-ingestion-core"
)

// Core interfaces
type Database interface {
	Connect() error
	IsConnected() bool
}

type Cache interface {
	Get(key string) any
	Set(key string, value any)
}

// MockDB is a Database whose connection state is observable.
type MockDB struct {
	mu        sync.Mutex
	connected bool
	disposals int
}

func (m *MockDB) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockDB) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockDB) Dispose(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disposals++
	return nil
}

func (m *MockDB) Disposals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposals
}

type MockCache struct {
	mu   sync.Mutex
	data map[string]any
}

func (m *MockCache) Get(key string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key]
}

func (m *MockCache) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]any)
	}
	m.data[key] = value
}

// CounterService counts calls; registered scoped, each scope starts at zero.
type CounterService struct {
	mu    sync.Mutex
	count int
}

func NewCounterService(obc.Resolver) (any, error) {
	return &CounterService{}, nil
}

func (c *CounterService) Increment() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count
}

func (c *CounterService) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// DisposeLog records the order in which Disposables were disposed.
type DisposeLog struct {
	mu    sync.Mutex
	names []string
}

func (l *DisposeLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *DisposeLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

// Disposable reports its disposal to Log and fails with Err when set.
type Disposable struct {
	Name  string
	Log   *DisposeLog
	Err   error
	Calls int
}

func (d *Disposable) Dispose(context.Context) error {
	d.Calls++
	if d.Log != nil {
		d.Log.add(d.Name)
	}
	return d.Err
}

// Circular dependencies
type CircularService1 interface {
	Service2() CircularService2
}

type CircularService2 interface {
	Service1() CircularService1
}

type CircularImpl1 struct{ svc2 CircularService2 }

func (i *CircularImpl1) Service2() CircularService2 { return i.svc2 }

type CircularImpl2 struct{ svc1 CircularService1 }

func (i *CircularImpl2) Service1() CircularService1 { return i.svc1 }

func NewCircular1(r obc.Resolver) (any, error) {
	svc2, err := obc.Resolve[CircularService2](r)
	if err != nil {
		return nil, err
	}
	return &CircularImpl1{svc2: svc2}, nil
}

func NewCircular2(r obc.Resolver) (any, error) {
	svc1, err := obc.Resolve[CircularService1](r)
	if err != nil {
		return nil, err
	}
	return &CircularImpl2{svc1: svc1}, nil
}

// ErrConnectionFailed is returned by FailingDB's factory.
var ErrConnectionFailed = errors.New("connection failed")

func NewFailingDB(obc.Resolver) (any, error) {
	return nil, ErrConnectionFailed
}

// Deep dependency chain
type DeepService3 interface {
	Value() string
}

type DeepService2 interface {
	Service3() DeepService3
}

type DeepService1 interface {
	Service2() DeepService2
}

type DeepImpl3 struct{ value string }

func (d *DeepImpl3) Value() string { return d.value }

type DeepImpl2 struct{ svc3 DeepService3 }

func (d *DeepImpl2) Service3() DeepService3 { return d.svc3 }

type DeepImpl1 struct{ svc2 DeepService2 }

func (d *DeepImpl1) Service2() DeepService2 { return d.svc2 }

func NewDeep3(obc.Resolver) (any, error) {
	return &DeepImpl3{value: "deep"}, nil
}

func NewDeep2(r obc.Resolver) (any, error) {
	svc3, err := obc.Resolve[DeepService3](r)
	if err != nil {
		return nil, err
	}
	return &DeepImpl2{svc3: svc3}, nil
}

func NewDeep1(r obc.Resolver) (any, error) {
	svc2, err := obc.Resolve[DeepService2](r)
	if err != nil {
		return nil, err
	}
	return &DeepImpl1{svc2: svc2}, nil
}
