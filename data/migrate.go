package data

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mpostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Migrate applies the up migrations found in dir of source.
func (c *DbContext) Migrate(ctx context.Context, source fs.FS, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := c.Session(ctx)
	if err != nil {
		return err
	}

	src, err := iofs.New(source, dir)
	if err != nil {
		return &DatabaseError{Op: "migrate", Err: err}
	}
	defer src.Close()

	var driver database.Driver
	switch c.driver {
	case "postgres":
		driver, err = mpostgres.WithInstance(db.DB, &mpostgres.Config{})
	case "sqlite":
		driver, err = msqlite.WithInstance(db.DB, &msqlite.Config{})
	default:
		err = fmt.Errorf("no migration driver for %q", c.driver)
	}
	if err != nil {
		return &DatabaseError{Op: "migrate", Err: err}
	}

	// The migrate instance is not closed: closing it would close the shared pool.
	m, err := migrate.NewWithInstance("iofs", src, c.driver, driver)
	if err != nil {
		return &DatabaseError{Op: "migrate", Err: err}
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &DatabaseError{Op: "migrate", Err: err}
	}

	version, dirty, err := m.Version()
	if err == nil {
		c.log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
