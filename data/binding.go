package data

import (
	"reflect"

	"github.com/openbiocure/obc-ingestion-core/discovery"
)

// RepositoryGeneric tags generic bindings of IRepository.
const RepositoryGeneric = "data.IRepository"

// RepositoryFactory builds a repository over a database context. It is the
// Factory carried by repository bindings.
type RepositoryFactory func(db IDbContext) any

// RepositoryBinding declares R as the IRepository[T] implementation so the
// engine can bind it during discovery:
//
//	discovery.NewModule("acme/todo").
//		Add((*Todo)(nil), (*TodoRepository)(nil)).
//		Bind(data.RepositoryBinding[*Todo](NewTodoRepository))
func RepositoryBinding[T Entity, R IRepository[T]](newRepo func(db IDbContext) R) discovery.GenericBinding {
	return discovery.GenericBinding{
		Generic:   RepositoryGeneric,
		Impl:      reflect.TypeOf((*R)(nil)).Elem(),
		Args:      []reflect.Type{reflect.TypeOf((*T)(nil)).Elem()},
		Interface: reflect.TypeOf((*IRepository[T])(nil)).Elem(),
		Factory:   RepositoryFactory(func(db IDbContext) any { return newRepo(db) }),
	}
}

// EntityName is the short name an entity type is matched by: "*app.Todo"
// gives "Todo".
func EntityName(t reflect.Type) string {
	return deref(t).Name()
}
