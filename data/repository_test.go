package data_test

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/openbiocure/obc-ingestion-core/data"
)

type Note struct {
	data.BaseEntity
	Title  string `db:"title"`
	Pinned bool   `db:"pinned"`
}

func (*Note) TableName() string { return "notes" }

var noteColumns = []string{"id", "created_at", "updated_at", "tenant_id", "title", "pinned"}

const selectNotes = "SELECT id, created_at, updated_at, tenant_id, title, pinned FROM notes"

type RepositoryTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *data.DbContext
	repo *data.Repository[*Note]
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	raw, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.mock = mock
	s.db = data.WrapDB(sqlx.NewDb(raw, "sqlmock"), zap.NewNop())
	s.repo = data.NewRepository[*Note](s.db)
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *RepositoryTestSuite) TestCreateAssignsID() {
	s.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notes (id, created_at, updated_at, tenant_id, title, pinned) VALUES (?, ?, ?, ?, ?, ?)")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "hello", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	note, err := s.repo.Create(s.ctx, &Note{Title: "hello"})
	s.NoError(err)
	s.Len(note.ID, 36)
	s.False(note.CreatedAt.IsZero())
	s.Equal(note.CreatedAt, note.UpdatedAt)
}

func (s *RepositoryTestSuite) TestCreateKeepsID() {
	s.mock.ExpectExec("INSERT INTO notes").
		WithArgs("fixed", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "x", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	note, err := s.repo.Create(s.ctx, &Note{BaseEntity: data.BaseEntity{ID: "fixed"}, Title: "x", Pinned: true})
	s.NoError(err)
	s.Equal("fixed", note.ID)
}

func (s *RepositoryTestSuite) TestGet() {
	now := time.Now().UTC()
	s.mock.ExpectQuery(regexp.QuoteMeta(selectNotes + " WHERE id = ?")).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(noteColumns).AddRow("n1", now, now, nil, "hi", true))

	note, err := s.repo.Get(s.ctx, "n1")
	s.NoError(err)
	s.Equal("hi", note.Title)
	s.True(note.Pinned)
	s.Nil(note.TenantID)
}

func (s *RepositoryTestSuite) TestGetMissing() {
	s.mock.ExpectQuery(regexp.QuoteMeta(selectNotes + " WHERE id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(noteColumns))

	note, err := s.repo.Get(s.ctx, "nope")
	s.Nil(note)
	s.ErrorIs(err, data.ErrEntityNotFound)
	var rerr *data.RepositoryError
	s.True(errors.As(err, &rerr))
	s.Equal("notes", rerr.Table)
}

func (s *RepositoryTestSuite) TestGetAllPages() {
	s.mock.ExpectQuery(regexp.QuoteMeta(selectNotes + " LIMIT ? OFFSET ?")).
		WithArgs(10, 20).
		WillReturnRows(sqlmock.NewRows(noteColumns).
			AddRow("a", time.Now(), time.Now(), nil, "a", false).
			AddRow("b", time.Now(), time.Now(), nil, "b", false))

	notes, err := s.repo.GetAll(s.ctx, 10, 20)
	s.NoError(err)
	s.Len(notes, 2)
}

func (s *RepositoryTestSuite) TestUpdate() {
	s.mock.ExpectExec(regexp.QuoteMeta("UPDATE notes SET updated_at = ?, tenant_id = ?, title = ?, pinned = ? WHERE id = ?")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "renamed", false, "n1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("UPDATE notes").
		WillReturnResult(sqlmock.NewResult(0, 0))

	note := &Note{BaseEntity: data.BaseEntity{ID: "n1"}, Title: "renamed"}
	_, err := s.repo.Update(s.ctx, note)
	s.NoError(err)

	_, err = s.repo.Update(s.ctx, note)
	s.ErrorIs(err, data.ErrEntityNotFound)
}

func (s *RepositoryTestSuite) TestUpdateFields() {
	now := time.Now().UTC()
	s.mock.ExpectExec(regexp.QuoteMeta("UPDATE notes SET title = ?, updated_at = ? WHERE id = ?")).
		WithArgs("fresh", sqlmock.AnyArg(), "n1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(selectNotes + " WHERE id = ?")).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(noteColumns).AddRow("n1", now, now, nil, "fresh", false))

	note, err := s.repo.UpdateFields(s.ctx, "n1", map[string]any{
		"title":      "fresh",
		"id":         "hijack",
		"created_at": time.Time{},
	})
	s.NoError(err)
	s.Equal("fresh", note.Title)

	_, err = s.repo.UpdateFields(s.ctx, "n1", map[string]any{"body; DROP TABLE notes": 1})
	s.Error(err)
	s.Contains(err.Error(), "unknown column")
}

func (s *RepositoryTestSuite) TestDelete() {
	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notes WHERE id = ?")).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notes WHERE id = ?")).
		WithArgs("n1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s.NoError(s.repo.Delete(s.ctx, "n1"))
	s.ErrorIs(s.repo.Delete(s.ctx, "n1"), data.ErrEntityNotFound)
}

func (s *RepositoryTestSuite) TestFindWithSpecification() {
	pinned := data.Where("pinned = ?", func(n *Note) bool { return n.Pinned }, true)
	aboutGo := data.Where("title LIKE ?", func(n *Note) bool { return strings.Contains(n.Title, "go") }, "%go%")

	s.mock.ExpectQuery(regexp.QuoteMeta(selectNotes + " WHERE (pinned = ?) AND (title LIKE ?)")).
		WithArgs(true, "%go%").
		WillReturnRows(sqlmock.NewRows(noteColumns).AddRow("g", time.Now(), time.Now(), nil, "go tips", true))

	found, err := s.repo.Find(s.ctx, data.And(pinned, aboutGo))
	s.NoError(err)
	s.Require().Len(found, 1)
	s.True(data.And(pinned, aboutGo).IsSatisfiedBy(found[0]))
}

func (s *RepositoryTestSuite) TestFindOne() {
	spec := data.Where[*Note]("title = ?", nil, "none")
	s.mock.ExpectQuery(regexp.QuoteMeta(selectNotes + " WHERE title = ? LIMIT 1")).
		WithArgs("none").
		WillReturnRows(sqlmock.NewRows(noteColumns))

	_, err := s.repo.FindOne(s.ctx, spec)
	s.ErrorIs(err, data.ErrEntityNotFound)
}

func (s *RepositoryTestSuite) TestCount() {
	s.mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notes")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.repo.Count(s.ctx, nil)
	s.NoError(err)
	s.Equal(3, n)
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}

func TestRepositoryBinding(t *testing.T) {
	b := data.RepositoryBinding[*Note](func(db data.IDbContext) *data.Repository[*Note] {
		return data.NewRepository[*Note](db)
	})

	assert.Equal(t, data.RepositoryGeneric, b.Generic)
	assert.Equal(t, reflect.TypeOf((*data.IRepository[*Note])(nil)).Elem(), b.Interface)
	assert.Equal(t, []reflect.Type{reflect.TypeOf(&Note{})}, b.Args)
	assert.Equal(t, "Note", data.EntityName(b.Args[0]))

	factory, ok := b.Factory.(data.RepositoryFactory)
	require.True(t, ok)
	repo, ok := factory(data.InMemory(zap.NewNop())).(data.IRepository[*Note])
	assert.True(t, ok)
	assert.NotNil(t, repo)
}
