package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// IRepository is the CRUD and query surface over one entity type.
type IRepository[T Entity] interface {
	Create(ctx context.Context, entity T) (T, error)
	Get(ctx context.Context, id string) (T, error)
	GetAll(ctx context.Context, limit, offset int) ([]T, error)
	Update(ctx context.Context, entity T) (T, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, spec Specification[T]) ([]T, error)
	FindOne(ctx context.Context, spec Specification[T]) (T, error)
	Count(ctx context.Context, spec Specification[T]) (int, error)
}

// Repository implements IRepository for T, which must be a pointer to a
// struct with db tags.
type Repository[T Entity] struct {
	db      IDbContext
	elem    reflect.Type
	table   string
	columns []string
	now     func() time.Time
}

// NewRepository builds a repository for T over db.
func NewRepository[T Entity](db IDbContext) *Repository[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("data: repository entity %s must be a pointer to a struct", t))
	}
	r := &Repository[T]{
		db:      db,
		elem:    t.Elem(),
		columns: columnNames(columnsOf(t)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	r.table = r.newEntity().TableName()
	return r
}

func (r *Repository[T]) newEntity() T {
	return reflect.New(r.elem).Interface().(T)
}

// Table returns the entity table name.
func (r *Repository[T]) Table() string {
	return r.table
}

// DB exposes the underlying database context to embedding repositories.
func (r *Repository[T]) DB() IDbContext {
	return r.db
}

func (r *Repository[T]) session(ctx context.Context) (*sqlx.DB, error) {
	return r.db.Session(ctx)
}

func (r *Repository[T]) fail(op string, err error) error {
	return &RepositoryError{Op: op, Table: r.table, Err: err}
}

func (r *Repository[T]) selectList() string {
	return strings.Join(r.columns, ", ")
}

// Create inserts entity, assigning an id when it has none.
func (r *Repository[T]) Create(ctx context.Context, entity T) (T, error) {
	if entity.GetID() == "" {
		entity.SetID(uuid.NewString())
	}
	entity.Stamp(r.now())

	db, err := r.session(ctx)
	if err != nil {
		return entity, r.fail("create", err)
	}
	placeholders := make([]string, len(r.columns))
	for i, c := range r.columns {
		placeholders[i] = ":" + c
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", r.table, r.selectList(), strings.Join(placeholders, ", "))
	if _, err := db.NamedExecContext(ctx, query, entity); err != nil {
		return entity, r.fail("create", err)
	}
	return entity, nil
}

// Get loads the entity with id.
func (r *Repository[T]) Get(ctx context.Context, id string) (T, error) {
	db, err := r.session(ctx)
	if err != nil {
		var zero T
		return zero, r.fail("get", err)
	}
	out := r.newEntity()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", r.selectList(), r.table)
	if err := db.GetContext(ctx, out, db.Rebind(query), id); err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrEntityNotFound
		}
		return zero, r.fail("get", err)
	}
	return out, nil
}

// GetAll pages through the table; a non-positive limit returns every row.
func (r *Repository[T]) GetAll(ctx context.Context, limit, offset int) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", r.selectList(), r.table)
	var args []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	return r.query(ctx, "get_all", query, args...)
}

// Update writes every column of entity except id and created_at.
func (r *Repository[T]) Update(ctx context.Context, entity T) (T, error) {
	entity.Stamp(r.now())

	db, err := r.session(ctx)
	if err != nil {
		return entity, r.fail("update", err)
	}
	sets := make([]string, 0, len(r.columns))
	for _, c := range r.columns {
		if c == "id" || c == "created_at" {
			continue
		}
		sets = append(sets, c+" = :"+c)
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = :id", r.table, strings.Join(sets, ", "))
	res, err := db.NamedExecContext(ctx, query, entity)
	if err != nil {
		return entity, r.fail("update", err)
	}
	if err := requireRow(res); err != nil {
		return entity, r.fail("update", err)
	}
	return entity, nil
}

// UpdateFields sets the named columns of the row with id and returns the
// reloaded entity. id and created_at are never changed.
func (r *Repository[T]) UpdateFields(ctx context.Context, id string, fields map[string]any) (T, error) {
	var zero T
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		if k == "id" || k == "created_at" {
			continue
		}
		if !r.hasColumn(k) {
			return zero, r.fail("update", fmt.Errorf("unknown column %q", k))
		}
		values[k] = v
	}
	if r.hasColumn("updated_at") {
		values["updated_at"] = r.now()
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = k + " = ?"
		args = append(args, values[k])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", r.table, strings.Join(sets, ", "))
	res, err := r.db.Execute(ctx, query, args...)
	if err != nil {
		return zero, r.fail("update", err)
	}
	if err := requireRow(res); err != nil {
		return zero, r.fail("update", err)
	}
	return r.Get(ctx, id)
}

// Delete removes the row with id.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	res, err := r.db.Execute(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.table), id)
	if err != nil {
		return r.fail("delete", err)
	}
	if err := requireRow(res); err != nil {
		return r.fail("delete", err)
	}
	return nil
}

// Find returns the entities matching spec; a nil spec matches all rows.
func (r *Repository[T]) Find(ctx context.Context, spec Specification[T]) ([]T, error) {
	where, args := whereClause(spec)
	return r.query(ctx, "find", fmt.Sprintf("SELECT %s FROM %s%s", r.selectList(), r.table, where), args...)
}

// FindOne returns the first entity matching spec.
func (r *Repository[T]) FindOne(ctx context.Context, spec Specification[T]) (T, error) {
	var zero T
	where, args := whereClause(spec)
	found, err := r.query(ctx, "find_one", fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1", r.selectList(), r.table, where), args...)
	if err != nil {
		return zero, err
	}
	if len(found) == 0 {
		return zero, r.fail("find_one", ErrEntityNotFound)
	}
	return found[0], nil
}

// Count returns how many rows match spec.
func (r *Repository[T]) Count(ctx context.Context, spec Specification[T]) (int, error) {
	db, err := r.session(ctx)
	if err != nil {
		return 0, r.fail("count", err)
	}
	where, args := whereClause(spec)
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", r.table, where)
	if err := db.GetContext(ctx, &n, db.Rebind(query), args...); err != nil {
		return 0, r.fail("count", err)
	}
	return n, nil
}

func (r *Repository[T]) query(ctx context.Context, op, query string, args ...any) ([]T, error) {
	db, err := r.session(ctx)
	if err != nil {
		return nil, r.fail(op, err)
	}
	rows, err := db.QueryxContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, r.fail(op, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		e := r.newEntity()
		if err := rows.StructScan(e); err != nil {
			return nil, r.fail(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, r.fail(op, err)
	}
	return out, nil
}

func (r *Repository[T]) hasColumn(name string) bool {
	for _, c := range r.columns {
		if c == name {
			return true
		}
	}
	return false
}

func whereClause[T any](spec Specification[T]) (string, []any) {
	if spec == nil {
		return "", nil
	}
	e := spec.ToExpression()
	if e.SQL == "" {
		return "", nil
	}
	return " WHERE " + e.SQL, e.Args
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEntityNotFound
	}
	return nil
}
