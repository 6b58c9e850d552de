// Package discovery finds types that implement a target interface.
//
// Go has no live registry of loaded types, so packages describe what they
// contribute in a Module and hand it to a Catalog, usually from init().
// A Finder indexes the catalog and answers assignability queries against it.
package discovery

import (
	"fmt"
	"reflect"
	"sync"
)

// Abstract marks a struct as not directly instantiable. Embed it in a base
// type that concrete types build on; only direct embedding counts.
type Abstract struct{}

// GenericBinding records that Impl implements the generic interface Generic
// instantiated with Args. Interface is that instantiation (for example
// data.IRepository[*Todo]) and Factory is an opaque constructor understood by
// whoever owns Generic.
type GenericBinding struct {
	Generic   string
	Impl      reflect.Type
	Args      []reflect.Type
	Interface reflect.Type
	Factory   any
}

// DiscoveredType is a generic implementation together with its type arguments.
type DiscoveredType struct {
	Impl      reflect.Type
	Args      []reflect.Type
	Interface reflect.Type
	Factory   any
}

// Module is a named unit of types, analogous to a package.
type Module struct {
	Name     string
	Types    []reflect.Type
	Bindings []GenericBinding
}

// NewModule returns an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// Add appends the types of values. A reflect.Type is taken as is, a nil
// pointer to an interface contributes the interface, anything else
// contributes its dynamic type: pass (*Foo)(nil) to add *Foo.
func (m *Module) Add(values ...any) *Module {
	for _, v := range values {
		if t := TypeOf(v); t != nil {
			m.Types = append(m.Types, t)
		}
	}
	return m
}

// Bind appends a generic binding and its implementation type.
func (m *Module) Bind(b GenericBinding) *Module {
	m.Bindings = append(m.Bindings, b)
	if b.Impl != nil {
		m.Types = append(m.Types, b.Impl)
	}
	return m
}

// TypeOf resolves the type a value stands for in a module manifest.
func TypeOf(v any) reflect.Type {
	switch x := v.(type) {
	case nil:
		return nil
	case reflect.Type:
		return x
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Interface {
		return t.Elem()
	}
	return t
}

// Provider builds a module on demand.
type Provider func() (*Module, error)

type provided struct {
	name  string
	build Provider
}

// Catalog holds the registered modules. Eager modules count as loaded;
// provided ones are built only when a Finder accepts or requests them.
type Catalog struct {
	mu        sync.RWMutex
	modules   []*Module
	byName    map[string]int
	providers []provided
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]int)}
}

var defaultCatalog = NewCatalog()

// Default returns the process-wide catalog packages register into.
func Default() *Catalog {
	return defaultCatalog
}

// Register adds m to the default catalog.
func Register(m *Module) {
	defaultCatalog.Register(m)
}

// Provide adds a lazily built module to the default catalog.
func Provide(name string, build Provider) {
	defaultCatalog.Provide(name, build)
}

// Register adds m. Registering a module name again replaces the earlier one.
func (c *Catalog) Register(m *Module) {
	if m == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.byName[m.Name]; ok {
		c.modules[i] = m
		return
	}
	c.byName[m.Name] = len(c.modules)
	c.modules = append(c.modules, m)
}

// Provide registers build under name.
func (c *Catalog) Provide(name string, build Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.providers {
		if c.providers[i].name == name {
			c.providers[i].build = build
			return
		}
	}
	c.providers = append(c.providers, provided{name: name, build: build})
}

// Modules returns the eagerly registered modules in registration order.
func (c *Catalog) Modules() []*Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// Providers returns the names of the lazily built modules.
func (c *Catalog) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.providers))
	for i, p := range c.providers {
		out[i] = p.name
	}
	return out
}

func (c *Catalog) module(name string) (*Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return c.modules[i], true
}

func (c *Catalog) provider(name string) (Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.providers {
		if p.name == name {
			return p.build, true
		}
	}
	return nil, false
}

// build runs a provider, turning a panic into an error.
func build(name string, p Provider) (m *Module, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	m, err = p()
	if err == nil && m == nil {
		err = fmt.Errorf("provider returned no module")
	}
	if m != nil && m.Name == "" {
		m.Name = name
	}
	return m, err
}
