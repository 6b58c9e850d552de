package data

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/openbiocure/obc-ingestion-core/config"
	"github.com/openbiocure/obc-ingestion-core/internal/logging"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// IDbContext is the database surface the engine and repositories rely on.
type IDbContext interface {
	Initialize(ctx context.Context) error
	Close() error
	Execute(ctx context.Context, query string, args ...any) (sql.Result, error)
	Session(ctx context.Context) (*sqlx.DB, error)
	CreateSchema(ctx context.Context, entities ...Entity) error
}

// DbContext owns one connection pool. It connects lazily on first use.
type DbContext struct {
	cfg    config.DatabaseConfig
	driver string
	dsn    string
	log    *zap.Logger

	mu sync.Mutex
	db *sqlx.DB
}

var _ IDbContext = (*DbContext)(nil)

// NewDbContext prepares a context for cfg without connecting.
func NewDbContext(cfg config.DatabaseConfig, log *zap.Logger) *DbContext {
	return &DbContext{
		cfg:    cfg,
		driver: cfg.DriverName(),
		dsn:    cfg.DSN(),
		log:    logging.Named(log, "data"),
	}
}

// InMemory returns a context over a private in-memory sqlite database.
func InMemory(log *zap.Logger) *DbContext {
	return NewDbContext(config.DefaultDatabaseConfig(), log)
}

// WrapDB adopts an already open pool.
func WrapDB(db *sqlx.DB, log *zap.Logger) *DbContext {
	return &DbContext{
		driver: db.DriverName(),
		db:     db,
		log:    logging.Named(log, "data"),
	}
}

func (c *DbContext) DriverName() string {
	return c.driver
}

// Initialize opens and pings the pool. Calling it again is a no-op.
func (c *DbContext) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked(ctx)
}

func (c *DbContext) initLocked(ctx context.Context) error {
	if c.db != nil {
		return nil
	}

	db, err := sqlx.Open(c.driver, c.dsn)
	if err != nil {
		return &DatabaseError{Op: "open", Err: err}
	}
	if c.dsn == config.MemoryDSN {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if c.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.cfg.MaxOpenConns)
	}
	if c.cfg.PoolRecycle > 0 {
		db.SetConnMaxLifetime(time.Duration(c.cfg.PoolRecycle) * time.Second)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return &DatabaseError{Op: "connect", Err: err}
	}

	c.db = db
	c.log.Info("database connected", zap.String("driver", c.driver))
	return nil
}

// Session returns the pool, connecting first when needed.
func (c *DbContext) Session(ctx context.Context) (*sqlx.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.initLocked(ctx); err != nil {
		return nil, err
	}
	return c.db, nil
}

// Execute runs a statement written with "?" placeholders.
func (c *DbContext) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	db, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return nil, &DatabaseError{Op: "execute", Err: err}
	}
	return res, nil
}

// WithTx runs fn in a transaction, rolling back when fn fails.
func (c *DbContext) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	db, err := c.Session(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return &DatabaseError{Op: "begin", Err: err}
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &DatabaseError{Op: "commit", Err: err}
	}
	return nil
}

// CreateSchema creates a table for each entity that lacks one.
func (c *DbContext) CreateSchema(ctx context.Context, entities ...Entity) error {
	for _, e := range entities {
		if _, err := c.Execute(ctx, createTableSQL(e, c.driver)); err != nil {
			return &DatabaseError{Op: fmt.Sprintf("create table %s", e.TableName()), Err: err}
		}
	}
	return nil
}

// Close releases the pool. It is safe to call on a closed context.
func (c *DbContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	if err != nil {
		return &DatabaseError{Op: "close", Err: err}
	}
	return nil
}
