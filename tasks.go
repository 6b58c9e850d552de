package obc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/openbiocure/obc-ingestion-core/config"
	"github.com/openbiocure/obc-ingestion-core/data"
	"github.com/openbiocure/obc-ingestion-core/discovery"
)

// BuiltinModuleName is the module holding the framework's own startup tasks.
const BuiltinModuleName = discovery.FrameworkPath

func init() {
	discovery.Register(BuiltinModule())
}

// BuiltinModule describes the framework's startup tasks. Engines built over
// a private catalog register it there to get them.
func BuiltinModule() *discovery.Module {
	return discovery.NewModule(BuiltinModuleName).Add(
		(*DatabaseSchemaStartupTask)(nil),
		(*MigrationStartupTask)(nil),
		(*ConfigurationStartupTask)(nil),
	)
}

var errNoEngine = errors.New("startup task not run by an engine")

func engineFrom(ctx context.Context) (*Engine, error) {
	e, ok := EngineFrom(ctx)
	if !ok {
		return nil, errNoEngine
	}
	return e, nil
}

// DatabaseSchemaStartupTask initializes the registered database context and
// creates a table for every discovered entity.
type DatabaseSchemaStartupTask struct {
	TaskBase
	db data.IDbContext
}

func (*DatabaseSchemaStartupTask) Describe() TaskDescriptor {
	return TaskDescriptor{Order: 1, Enabled: true}
}

func (t *DatabaseSchemaStartupTask) Execute(ctx context.Context) error {
	e, err := engineFrom(ctx)
	if err != nil {
		return err
	}
	db, err := Resolve[data.IDbContext](e)
	if err != nil {
		return err
	}
	if err := db.Initialize(ctx); err != nil {
		return err
	}
	t.db = db

	entities, err := discoverEntities(e.Finder())
	if err != nil {
		return err
	}
	if len(entities) == 0 {
		return nil
	}
	return db.CreateSchema(ctx, entities...)
}

// Cleanup closes the database context the task initialized.
func (t *DatabaseSchemaStartupTask) Cleanup(context.Context) error {
	if t.db == nil {
		return nil
	}
	db := t.db
	t.db = nil
	return db.Close()
}

func discoverEntities(finder discovery.TypeFinder) ([]data.Entity, error) {
	types, err := finder.FindTypesOf(KeyOf[data.Entity](), true)
	if err != nil {
		return nil, err
	}
	entities := make([]data.Entity, 0, len(types))
	for _, t := range types {
		if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			continue
		}
		if e, ok := reflect.New(t.Elem()).Interface().(data.Entity); ok {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

// MigrationStartupTask applies the SQL migrations in the directory named by
// its "path" setting. Disabled unless enabled in configuration.
type MigrationStartupTask struct {
	TaskBase
}

func (*MigrationStartupTask) Describe() TaskDescriptor {
	return TaskDescriptor{Order: 5, Enabled: false}
}

func (t *MigrationStartupTask) Execute(ctx context.Context) error {
	e, err := engineFrom(ctx)
	if err != nil {
		return err
	}
	dir := t.Config().String("path", "migrations")
	db, err := Resolve[*data.DbContext](e)
	if err != nil {
		return fmt.Errorf("migrations need a *data.DbContext: %w", err)
	}
	return db.Migrate(ctx, os.DirFS(dir), ".")
}

// ConfigurationStartupTask merges the YAML file named by its "path" setting
// into the engine configuration and re-registers the typed AppConfig.
// Disabled unless enabled in configuration.
type ConfigurationStartupTask struct {
	TaskBase
}

func (*ConfigurationStartupTask) Describe() TaskDescriptor {
	return TaskDescriptor{Order: 10, Enabled: false}
}

func (t *ConfigurationStartupTask) Execute(ctx context.Context) error {
	e, err := engineFrom(ctx)
	if err != nil {
		return err
	}
	yc := e.Config()
	if err := yc.Load(t.Config().String("path", DefaultConfigPath)); err != nil {
		return err
	}
	app, err := yc.AppConfig()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.app = app
	e.mu.Unlock()
	return Register[*config.AppConfig](e, app)
}
