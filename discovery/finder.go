package discovery

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/openbiocure/obc-ingestion-core/internal/logging"
)

// FrameworkPath is the module path of this framework. Lazily provided modules
// under it are indexed without further configuration.
const FrameworkPath = "github.com/openbiocure/obc-ingestion-core"

// DefaultIgnoredPrefixes lists package paths whose types are never reported.
var DefaultIgnoredPrefixes = []string{
	"runtime",
	"reflect",
	"sync",
	"context",
	"errors",
	"fmt",
	"io",
	"os",
	"net",
	"strings",
	"time",
	"testing",
	"encoding",
	"database/sql",
	FrameworkPath + "/internal",
}

// Path segments that mark a provided module as tooling rather than library code.
var skippedSegments = map[string]bool{
	"test":     true,
	"tests":    true,
	"testdata": true,
	"example":  true,
	"examples": true,
	"build":    true,
	"dist":     true,
	"cmd":      true,
	"cli":      true,
	"setup":    true,
}

// TypeFinder answers assignability queries over indexed modules.
type TypeFinder interface {
	FindTypesOf(target reflect.Type, onlyConcrete bool) ([]reflect.Type, error)
	FindGenericImplementations(generic string, args ...reflect.Type) []DiscoveredType
	Find(match func(reflect.Type) bool) []reflect.Type
	LoadModule(name string) error
	Modules() []string
}

// Option configures a Finder.
type Option func(*Finder)

// WithCatalog indexes c instead of the process-wide catalog.
func WithCatalog(c *Catalog) Option {
	return func(f *Finder) { f.catalog = c }
}

// WithIgnoredPrefixes replaces the ignore list.
func WithIgnoredPrefixes(prefixes ...string) Option {
	return func(f *Finder) { f.ignored = prefixes }
}

// WithIncludedPrefixes replaces the namespaces provided modules must live under.
func WithIncludedPrefixes(prefixes ...string) Option {
	return func(f *Finder) { f.included = prefixes }
}

func WithLogger(l *zap.Logger) Option {
	return func(f *Finder) { f.log = l }
}

// Finder is the default TypeFinder.
type Finder struct {
	catalog  *Catalog
	ignored  []string
	included []string
	log      *zap.Logger

	mu        sync.RWMutex
	modules   []*Module
	indexed   map[string]bool
	requested []string
}

var _ TypeFinder = (*Finder)(nil)

// New builds a Finder and indexes its catalog.
func New(opts ...Option) *Finder {
	f := &Finder{
		catalog:  Default(),
		ignored:  DefaultIgnoredPrefixes,
		included: []string{FrameworkPath},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logging.Named(nil, "discovery")
	}
	f.Refresh()
	return f
}

// Refresh rebuilds the module index. Modules loaded through LoadModule stay
// indexed.
func (f *Finder) Refresh() {
	f.mu.Lock()
	f.modules = nil
	f.indexed = make(map[string]bool)
	requested := f.requested
	f.requested = nil
	f.mu.Unlock()

	for _, m := range f.catalog.Modules() {
		if hasAnyPrefix(m.Name, f.ignored) {
			f.log.Debug("module ignored", zap.String("module", m.Name))
			continue
		}
		f.add(m)
	}

	for _, name := range f.catalog.Providers() {
		if f.isIndexed(name) || hasAnyPrefix(name, f.ignored) || !f.likelyModule(name) {
			continue
		}
		p, _ := f.catalog.provider(name)
		m, err := build(name, p)
		if err != nil {
			f.log.Warn("skipping module", zap.Error(&DiscoveryError{Module: name, Err: err}))
			continue
		}
		f.add(m)
	}

	for _, name := range requested {
		if err := f.LoadModule(name); err != nil {
			f.log.Warn("failed to reload module", zap.Error(err))
		}
	}
}

// LoadModule indexes the named module whether or not the inclusion
// heuristic would have picked it.
func (f *Finder) LoadModule(name string) error {
	if f.isIndexed(name) {
		return nil
	}

	m, ok := f.catalog.module(name)
	if !ok {
		p, found := f.catalog.provider(name)
		if !found {
			return &DiscoveryError{Module: name, Err: ErrModuleNotFound}
		}
		built, err := build(name, p)
		if err != nil {
			return &DiscoveryError{Module: name, Err: err}
		}
		m = built
	}

	f.add(m)
	f.mu.Lock()
	f.requested = append(f.requested, name)
	f.mu.Unlock()
	f.log.Debug("module loaded", zap.String("module", name))
	return nil
}

// Modules returns the indexed module names in index order.
func (f *Finder) Modules() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.modules))
	for i, m := range f.modules {
		names[i] = m.Name
	}
	return names
}

// FindTypesOf returns every indexed type assignable to target: embedding it
// when target is a struct, implementing it when target is an interface.
func (f *Finder) FindTypesOf(target reflect.Type, onlyConcrete bool) ([]reflect.Type, error) {
	if target == nil {
		return nil, &DiscoveryError{Err: ErrUnsupportedTarget}
	}
	base := deref(target)
	if target.Kind() != reflect.Interface && base.Kind() != reflect.Struct {
		return nil, &DiscoveryError{Type: target.String(), Err: ErrUnsupportedTarget}
	}

	var out []reflect.Type
	f.scan(func(m *Module, t reflect.Type) {
		ok, err := check(func() bool { return assignable(t, target) })
		if err != nil {
			f.log.Debug("skipping candidate", zap.Error(&DiscoveryError{Module: m.Name, Type: t.String(), Err: err}))
			return
		}
		if !ok || (onlyConcrete && isAbstract(t)) {
			return
		}
		out = append(out, t)
	})
	return out, nil
}

// Find returns every indexed type for which match reports true.
func (f *Finder) Find(match func(reflect.Type) bool) []reflect.Type {
	var out []reflect.Type
	f.scan(func(m *Module, t reflect.Type) {
		ok, err := check(func() bool { return match(t) })
		if err != nil {
			f.log.Debug("skipping candidate", zap.Error(&DiscoveryError{Module: m.Name, Type: t.String(), Err: err}))
			return
		}
		if ok {
			out = append(out, t)
		}
	})
	return out
}

// FindGenericImplementations returns the implementations bound to generic.
// When args are given only bindings carrying all of them are kept.
func (f *Finder) FindGenericImplementations(generic string, args ...reflect.Type) []DiscoveredType {
	f.mu.RLock()
	modules := append([]*Module(nil), f.modules...)
	f.mu.RUnlock()

	seen := make(map[reflect.Type]bool)
	var out []DiscoveredType
	for _, m := range modules {
		for _, b := range m.Bindings {
			if b.Generic != generic || b.Impl == nil || seen[b.Impl] {
				continue
			}
			if f.ignoredType(b.Impl) || !containsAll(b.Args, args) {
				continue
			}
			seen[b.Impl] = true
			out = append(out, DiscoveredType{
				Impl:      b.Impl,
				Args:      b.Args,
				Interface: b.Interface,
				Factory:   b.Factory,
			})
		}
	}
	return out
}

// scan visits each indexed type once per call.
func (f *Finder) scan(visit func(*Module, reflect.Type)) {
	f.mu.RLock()
	modules := append([]*Module(nil), f.modules...)
	f.mu.RUnlock()

	seen := make(map[reflect.Type]bool)
	for _, m := range modules {
		f.scanModule(m, seen, visit)
	}
}

func (f *Finder) scanModule(m *Module, seen map[reflect.Type]bool, visit func(*Module, reflect.Type)) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Warn("module scan aborted",
				zap.Error(&DiscoveryError{Module: m.Name, Err: fmt.Errorf("panic: %v", r)}))
		}
	}()
	for _, t := range m.Types {
		if t == nil || seen[t] {
			continue
		}
		seen[t] = true
		if f.ignoredType(t) {
			continue
		}
		visit(m, t)
	}
}

func (f *Finder) add(m *Module) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed[m.Name] {
		return
	}
	f.indexed[m.Name] = true
	f.modules = append(f.modules, m)
}

func (f *Finder) isIndexed(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.indexed[name]
}

func (f *Finder) likelyModule(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		seg = strings.ToLower(seg)
		if skippedSegments[seg] || strings.HasSuffix(seg, "_test") || strings.HasPrefix(seg, "test_") {
			return false
		}
	}
	return hasAnyPrefix(name, f.included)
}

// ignoredType drops builtin and unnamed types and those declared under an
// ignored package path.
func (f *Finder) ignoredType(t reflect.Type) bool {
	pkg := deref(t).PkgPath()
	return pkg == "" || hasAnyPrefix(pkg, f.ignored)
}

func check(fn func() bool) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(), nil
}

func assignable(t, target reflect.Type) bool {
	if target.Kind() == reflect.Interface {
		return t.Implements(target)
	}
	base := deref(target)
	candidate := deref(t)
	if candidate == base {
		return true
	}
	return embeds(candidate, base, make(map[reflect.Type]bool))
}

func embeds(s, target reflect.Type, visited map[reflect.Type]bool) bool {
	if s.Kind() != reflect.Struct || visited[s] {
		return false
	}
	visited[s] = true
	for i := 0; i < s.NumField(); i++ {
		field := s.Field(i)
		if !field.Anonymous {
			continue
		}
		ft := deref(field.Type)
		if ft == target || embeds(ft, target, visited) {
			return true
		}
	}
	return false
}

var abstractType = reflect.TypeOf(Abstract{})

func isAbstract(t reflect.Type) bool {
	if t.Kind() == reflect.Interface {
		return true
	}
	s := deref(t)
	if s.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < s.NumField(); i++ {
		field := s.Field(i)
		if field.Anonymous && deref(field.Type) == abstractType {
			return true
		}
	}
	return false
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func containsAll(have, want []reflect.Type) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if name == p || strings.HasPrefix(name, p+"/") {
			return true
		}
	}
	return false
}
