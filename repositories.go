package obc

import (
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/openbiocure/obc-ingestion-core/data"
	"github.com/openbiocure/obc-ingestion-core/discovery"
)

// discoverRepositories binds every IRepository implementation the finder
// knows, under IRepository[T] and under each I<Entity>Repository interface
// it implements. Bindings are transient so each resolution gets a repository
// over the current database context.
func (e *Engine) discoverRepositories() {
	implementations := e.finder.FindGenericImplementations(data.RepositoryGeneric)
	named := e.finder.Find(func(t reflect.Type) bool {
		return t.Kind() == reflect.Interface && repositoryEntity(t.Name()) != ""
	})

	bindings := make(map[ServiceKey]reflect.Type)
	for _, found := range implementations {
		factory, ok := found.Factory.(data.RepositoryFactory)
		if !ok || len(found.Args) == 0 {
			e.log.Warn("repository binding without factory or entity", zap.Stringer("impl", found.Impl))
			continue
		}
		entity := data.EntityName(found.Args[0])

		keys := []ServiceKey{found.Impl}
		if found.Interface != nil {
			keys = append(keys, found.Interface)
		}
		keys = append(keys, specificInterfaces(found, entity, named)...)

		build := repositoryFactory(factory)
		for _, key := range keys {
			if err := e.services.AddTransient(key, build); err != nil {
				e.log.Warn("repository not bound", zap.Stringer("key", key), zap.Error(err))
				continue
			}
			bindings[key] = found.Impl
		}
		e.log.Debug("repository bound", zap.String("entity", entity), zap.Stringer("impl", found.Impl), zap.Int("keys", len(keys)))
	}

	e.mu.Lock()
	e.bindings = bindings
	e.mu.Unlock()
	e.metrics.SetRepositoryBindings(len(bindings))
}

func specificInterfaces(found discovery.DiscoveredType, entity string, named []reflect.Type) []ServiceKey {
	var keys []ServiceKey
	for _, iface := range named {
		if repositoryEntity(iface.Name()) != entity {
			continue
		}
		if !found.Impl.Implements(iface) {
			continue
		}
		keys = append(keys, iface)
	}
	return keys
}

// repositoryFactory resolves the database context at resolution time.
func repositoryFactory(newRepo data.RepositoryFactory) Factory {
	return func(r Resolver) (any, error) {
		db, err := Resolve[data.IDbContext](r)
		if err != nil {
			return nil, err
		}
		return newRepo(db), nil
	}
}

// repositoryEntity returns the entity named by a repository interface name:
// "ITodoRepository" and "TodoRepository" both give "Todo". It returns "" for
// names that do not follow the convention.
func repositoryEntity(name string) string {
	base, ok := strings.CutSuffix(name, "Repository")
	if !ok || base == "" {
		return ""
	}
	if len(base) > 1 && base[0] == 'I' {
		if next, _ := utf8.DecodeRuneInString(base[1:]); unicode.IsUpper(next) {
			base = base[1:]
		}
	}
	return base
}
