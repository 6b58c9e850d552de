package mock

import (
	"github.com/openbiocure/obc-ingestion-core/data"
	"github.com/openbiocure/obc-ingestion-core/discovery"
)

// ModuleName is the name Module is usually registered under.
const ModuleName = discovery.FrameworkPath + "/mock"

// Module describes the todo entity, its repositories and the ordered tasks
// A and B.
func Module(name string) *discovery.Module {
	return discovery.NewModule(name).
		Add(
			(*Todo)(nil),
			(*ITodoRepository)(nil),
			(*TaskA)(nil),
			(*TaskB)(nil),
		).
		Bind(data.RepositoryBinding[*Todo](NewTodoRepository))
}
