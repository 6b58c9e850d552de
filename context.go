package obc

import (
	"context"
	"sync"
)

type (
	taskNameKey struct{}
	engineKey   struct{}
)

// ContainerContext is the context handed to startup tasks. It layers
// engine-provided values over a parent context; cancellation and deadlines
// always come from the parent.
type ContainerContext struct {
	context.Context

	mu     sync.RWMutex
	values map[any]any
}

// NewContainerContext wraps parent. A nil parent is treated as Background.
func NewContainerContext(parent context.Context) *ContainerContext {
	if parent == nil {
		parent = context.Background()
	}
	return &ContainerContext{Context: parent, values: make(map[any]any)}
}

// With returns a copy of c carrying key set to val.
func (c *ContainerContext) With(key, val any) *ContainerContext {
	out := c.rebase(c.Context)
	out.values[key] = val
	return out
}

// WithParent returns a copy of c with the same values over a new parent,
// typically a derived context with a deadline.
func (c *ContainerContext) WithParent(parent context.Context) *ContainerContext {
	if parent == nil {
		parent = context.Background()
	}
	return c.rebase(parent)
}

// Merge returns a copy of c overlaid with other's values.
func (c *ContainerContext) Merge(other *ContainerContext) *ContainerContext {
	out := c.rebase(c.Context)
	if other != nil {
		other.mu.RLock()
		for k, v := range other.values {
			out.values[k] = v
		}
		other.mu.RUnlock()
	}
	return out
}

func (c *ContainerContext) rebase(parent context.Context) *ContainerContext {
	out := NewContainerContext(parent)
	c.mu.RLock()
	for k, v := range c.values {
		out.values[k] = v
	}
	c.mu.RUnlock()
	return out
}

// Parent returns the wrapped context.
func (c *ContainerContext) Parent() context.Context {
	return c.Context
}

func (c *ContainerContext) Value(key any) any {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	val, ok := c.values[key]
	c.mu.RUnlock()
	if ok {
		return val
	}
	if c.Context != nil {
		return c.Context.Value(key)
	}
	return nil
}

// TaskNameFrom returns the name of the startup task ctx was issued to.
func TaskNameFrom(ctx context.Context) string {
	name, _ := ctx.Value(taskNameKey{}).(string)
	return name
}

// EngineFrom returns the engine running the startup task ctx was issued to.
func EngineFrom(ctx context.Context) (*Engine, bool) {
	e, ok := ctx.Value(engineKey{}).(*Engine)
	return e, ok && e != nil
}
