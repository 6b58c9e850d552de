package obc

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/openbiocure/obc-ingestion-core/config"
	"github.com/openbiocure/obc-ingestion-core/data"
	"github.com/openbiocure/obc-ingestion-core/discovery"
	"github.com/openbiocure/obc-ingestion-core/internal/logging"
	"github.com/openbiocure/obc-ingestion-core/internal/metrics"
)

const (
	// EnvConfigFile names the configuration file when no path option is given.
	EnvConfigFile = "CONFIG_FILE"
	// DefaultConfigPath is used when neither option nor environment names one.
	DefaultConfigPath = "config.yaml"
)

// IEngine is the surface application code sees of the engine.
type IEngine interface {
	Resolver
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Started() bool
	Register(key ServiceKey, impl any) error
	CreateScope() *Scope
	AddStartupTask(task StartupTask)
	RegisterModule(name string) error
}

// Engine is the composition root: it registers the core services, binds
// discovered repositories, runs the startup tasks and resolves services for
// the application.
type Engine struct {
	log         *zap.Logger
	configPath  string
	configDoc   map[string]any
	finder      discovery.TypeFinder
	registerer  prometheus.Registerer
	watchConfig bool
	metrics     *metrics.Collector
	services    *ServiceCollection

	// lifecycle serializes Start and Stop. mu guards the fields below and is
	// never held while tasks run, so tasks may call back into the engine.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	started  bool
	yaml     *config.YamlConfig
	app      *config.AppConfig
	db       data.IDbContext
	executor *StartupTaskExecutor
	manual   []StartupTask
	pending  []string
	bindings map[ServiceKey]reflect.Type
	watcher  *config.Watcher
}

var _ IEngine = (*Engine)(nil)

var (
	instanceMu sync.Mutex
	instance   *Engine
)

// Initialize returns the process-wide engine, creating it with opts on the
// first call. Later calls ignore opts.
func Initialize(opts ...Option) *Engine {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = New(opts...)
	}
	return instance
}

// Current returns the process-wide engine once it has started.
func Current() (*Engine, error) {
	instanceMu.Lock()
	e := instance
	instanceMu.Unlock()
	if e == nil {
		return nil, &NotStartedError{Op: "current", Reason: "engine not initialized"}
	}
	if !e.Started() {
		return nil, &NotStartedError{Op: "current"}
	}
	return e, nil
}

// Reset stops the process-wide engine and empties its slot so the next
// Initialize builds a new one.
func Reset(ctx context.Context) {
	instanceMu.Lock()
	e := instance
	instance = nil
	instanceMu.Unlock()
	if e != nil {
		e.Stop(ctx)
	}
}

// New builds an engine outside the process-wide slot.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.Named(e.log, "engine")
	if e.finder == nil {
		e.finder = discovery.New(discovery.WithLogger(e.log))
	}
	e.metrics = metrics.NewCollector("")
	if e.registerer != nil {
		if err := e.metrics.Register(e.registerer); err != nil {
			e.log.Warn("engine metrics not registered", zap.Error(err))
		}
	}
	e.services = NewServiceCollection(e)
	e.yaml = config.NewYamlConfig()
	return e
}

// Started reports whether Start has completed and Stop has not run since.
func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// Start registers the core services, binds repositories, then runs the
// startup tasks. It does nothing when the engine already runs. If a task
// fails the engine is torn down and the returned error wraps the task's.
func (e *Engine) Start(ctx context.Context) (err error) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.Started() {
		return nil
	}
	defer func() { e.metrics.RecordEngineStart(err) }()

	// Registrations made before Start outlive a failed attempt.
	before := e.services.snapshot()
	rollback := func() {
		e.teardown(ctx, false)
		e.services.restore(before)
	}

	if err := e.registerCoreServices(); err != nil {
		rollback()
		return err
	}
	e.loadPendingModules()
	e.discoverRepositories()

	executor := e.buildExecutor()
	e.mu.Lock()
	e.started = true
	e.executor = executor
	e.mu.Unlock()

	if err := executor.ExecuteAll(ctx); err != nil {
		e.log.Error("engine start failed", zap.Error(err))
		rollback()
		return fmt.Errorf("engine start: %w", err)
	}

	if e.watchConfig {
		e.startWatcher()
	}
	e.log.Info("engine started", zap.Int("services", len(e.services.Keys())))
	return nil
}

// Stop closes the database context, cleans up the startup tasks and clears
// every registration. Failures are logged; Stop always completes. Calling it
// on a stopped engine does nothing.
func (e *Engine) Stop(ctx context.Context) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if !e.Started() {
		return
	}
	e.teardown(ctx, true)
	e.log.Info("engine stopped")
}

func (e *Engine) teardown(ctx context.Context, forget bool) {
	e.mu.Lock()
	watcher, db, executor := e.watcher, e.db, e.executor
	e.watcher, e.db, e.executor = nil, nil, nil
	e.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			e.cleanupFailed(&CleanupError{Resource: "database", Err: err})
		}
	}
	if executor != nil {
		// Task failures are logged and counted by the executor.
		_ = executor.Cleanup(ctx)
	}

	e.services.Clear()
	e.metrics.SetRepositoryBindings(0)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
	e.bindings = nil
	e.app = nil
	e.yaml = config.NewYamlConfig()
	if forget {
		e.manual, e.pending = nil, nil
		return
	}
	for _, task := range e.manual {
		task.base().rearm()
	}
}

func (e *Engine) cleanupFailed(err *CleanupError) {
	e.log.Warn("cleanup failed", zap.String("resource", err.Resource), zap.Error(err.Err))
	e.metrics.RecordCleanupFailure(err.Resource)
}

// Resolve returns the instance registered under key.
func (e *Engine) Resolve(key ServiceKey) (any, error) {
	if !e.Started() {
		return nil, &NotStartedError{Op: "resolve " + key.String()}
	}
	instance, ok, err := e.services.GetService(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotRegisteredError{Type: key.String()}
	}
	return instance, nil
}

// Register registers impl as the singleton for key, with the same argument
// forms as ServiceCollection.AddSingleton.
func (e *Engine) Register(key ServiceKey, impl any) error {
	return e.services.AddSingleton(key, impl)
}

// Services exposes the container for scoped and transient registrations.
func (e *Engine) Services() *ServiceCollection {
	return e.services
}

// CreateScope returns a scope whose non-scoped lookups go through the engine.
func (e *Engine) CreateScope() *Scope {
	return newScope(e, e.log)
}

// AddStartupTask adds a task to the next Start. A task with the name of a
// discovered one replaces it. Added tasks are kept until Stop.
func (e *Engine) AddStartupTask(task StartupTask) {
	name := TaskName(task)
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, t := range e.manual {
		if TaskName(t) == name {
			e.manual[i] = task
			return
		}
	}
	e.manual = append(e.manual, task)
}

// RegisterModule indexes the module provided under name. While the engine
// runs the module is loaded at once and repositories are rediscovered;
// otherwise it is loaded on the next Start.
func (e *Engine) RegisterModule(name string) error {
	e.mu.Lock()
	if !e.started {
		e.pending = append(e.pending, name)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	if err := e.finder.LoadModule(name); err != nil {
		return err
	}
	e.discoverRepositories()
	return nil
}

// Config returns the merged YAML configuration.
func (e *Engine) Config() *config.YamlConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.yaml
}

// AppConfig returns the typed configuration decoded during Start.
func (e *Engine) AppConfig() *config.AppConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.app
}

// Finder returns the engine's type finder.
func (e *Engine) Finder() discovery.TypeFinder {
	return e.finder
}

// Metrics returns the engine's metric collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// RepositoryBindings maps each bound repository key to its implementation.
func (e *Engine) RepositoryBindings() map[ServiceKey]reflect.Type {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[ServiceKey]reflect.Type, len(e.bindings))
	for k, v := range e.bindings {
		out[k] = v
	}
	return out
}

func (e *Engine) scopedFactory(key ServiceKey) (Factory, bool) {
	return e.services.scopedFactory(key)
}

func (e *Engine) resolutions() *resolutionTracker {
	return e.services.resolutions()
}

func (e *Engine) configFile() string {
	if e.configPath != "" {
		return e.configPath
	}
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	return DefaultConfigPath
}

// loadConfiguration never fails: problems are logged and defaults used.
func (e *Engine) loadConfiguration() (*config.YamlConfig, *config.AppConfig) {
	if err := config.LoadDotEnv(); err != nil {
		e.log.Warn("environment file not loaded", zap.Error(err))
	}

	yc := config.NewYamlConfig()
	if e.configDoc != nil {
		yc.Merge(e.configDoc)
	} else if err := yc.Load(e.configFile()); err != nil {
		e.log.Warn("configuration not loaded, using defaults", zap.Error(err))
	}

	app, err := yc.AppConfig()
	if err != nil {
		e.log.Warn("configuration invalid, using defaults", zap.Error(err))
		app = config.DefaultAppConfig()
		app.ApplyEnvironment(config.Environment{})
	}
	return yc, app
}

func (e *Engine) registerCoreServices() error {
	yc, app := e.loadConfiguration()

	var db *data.DbContext
	if app.Database != nil {
		db = data.NewDbContext(*app.Database, e.log)
	} else {
		e.log.Warn("no database configured, using in-memory store")
		db = data.InMemory(e.log)
	}

	e.mu.Lock()
	e.yaml, e.app, e.db = yc, app, db
	e.mu.Unlock()

	core := []struct {
		key ServiceKey
		val any
	}{
		{KeyOf[*Engine](), e},
		{KeyOf[IEngine](), e},
		{KeyOf[discovery.TypeFinder](), e.finder},
		{KeyOf[*config.YamlConfig](), yc},
		{KeyOf[*config.AppConfig](), app},
		{KeyOf[data.IDbContext](), db},
		{KeyOf[*data.DbContext](), db},
	}
	for _, s := range core {
		if err := e.services.AddSingleton(s.key, s.val); err != nil {
			return fmt.Errorf("register %s: %w", s.key, err)
		}
	}
	return nil
}

func (e *Engine) loadPendingModules() {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, name := range pending {
		if err := e.finder.LoadModule(name); err != nil {
			e.log.Warn("module not loaded", zap.String("module", name), zap.Error(err))
		}
	}
}

func (e *Engine) buildExecutor() *StartupTaskExecutor {
	executor := NewStartupTaskExecutor(
		WithExecutorLogger(e.log),
		withCollector(e.metrics),
		withContextValues(NewContainerContext(context.Background()).With(engineKey{}, e)),
	)
	for _, task := range e.discoverTasks() {
		executor.AddTask(task)
	}

	e.mu.RLock()
	manual := append([]StartupTask(nil), e.manual...)
	yc := e.yaml
	e.mu.RUnlock()
	for _, task := range manual {
		executor.AddTask(task)
	}

	executor.ConfigureTasks(yc.Document())
	return executor
}

func (e *Engine) discoverTasks() []StartupTask {
	types, err := e.finder.FindTypesOf(KeyOf[StartupTask](), true)
	if err != nil {
		e.log.Warn("startup task discovery failed", zap.Error(err))
		return nil
	}
	tasks := make([]StartupTask, 0, len(types))
	for _, t := range types {
		if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
			e.log.Debug("skipping non-pointer startup task type", zap.Stringer("type", t))
			continue
		}
		task, ok := reflect.New(t.Elem()).Interface().(StartupTask)
		if !ok {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func (e *Engine) startWatcher() {
	if e.configDoc != nil {
		return
	}
	path := e.configFile()
	w, err := e.Config().Watch(path, e.log)
	if err != nil {
		e.log.Warn("configuration watch not started", zap.String("path", path), zap.Error(err))
		return
	}
	w.Start()
	e.mu.Lock()
	e.watcher = w
	e.mu.Unlock()
}
