package mock

import (
	"context"

	"github.com/openbiocure/obc-ingestion-core/data"
)

type Todo struct {
	data.BaseEntity
	Title       string `db:"title"`
	Description string `db:"description"`
	Completed   bool   `db:"completed"`
}

func (*Todo) TableName() string { return "todos" }

// ITodoRepository is the specific repository interface bound by naming
// convention.
type ITodoRepository interface {
	data.IRepository[*Todo]
	FindCompleted(ctx context.Context) ([]*Todo, error)
}

type TodoRepository struct {
	*data.Repository[*Todo]
}

func NewTodoRepository(db data.IDbContext) *TodoRepository {
	return &TodoRepository{Repository: data.NewRepository[*Todo](db)}
}

func (r *TodoRepository) FindCompleted(ctx context.Context) ([]*Todo, error) {
	return r.Find(ctx, data.Where("completed = ?", func(t *Todo) bool { return t.Completed }, true))
}
