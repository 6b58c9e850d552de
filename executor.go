package obc

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/openbiocure/obc-ingestion-core/internal/logging"
	"github.com/openbiocure/obc-ingestion-core/internal/metrics"
)

// StartupTasksSection is the configuration section holding per-task settings.
const StartupTasksSection = "startup_tasks"

// ExecutorOption configures a StartupTaskExecutor.
type ExecutorOption func(*StartupTaskExecutor)

// WithExecutorLogger sets the executor's logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(x *StartupTaskExecutor) { x.log = logging.Named(l, "executor") }
}

func withCollector(c *metrics.Collector) ExecutorOption {
	return func(x *StartupTaskExecutor) { x.metrics = c }
}

func withContextValues(values *ContainerContext) ExecutorOption {
	return func(x *StartupTaskExecutor) { x.values = values }
}

// StartupTaskExecutor runs startup tasks one at a time in ascending order.
type StartupTaskExecutor struct {
	log     *zap.Logger
	metrics *metrics.Collector
	values  *ContainerContext

	mu       sync.Mutex
	tasks    []StartupTask
	index    map[string]int
	executed []StartupTask
}

// NewStartupTaskExecutor returns an empty executor.
func NewStartupTaskExecutor(opts ...ExecutorOption) *StartupTaskExecutor {
	x := &StartupTaskExecutor{index: make(map[string]int)}
	for _, opt := range opts {
		opt(x)
	}
	if x.log == nil {
		x.log = logging.Named(nil, "executor")
	}
	return x
}

// AddTask stores task under its name. A task with the same name replaces the
// earlier one and takes over its position among equal orders.
func (x *StartupTaskExecutor) AddTask(task StartupTask) {
	name := TaskName(task)
	x.mu.Lock()
	defer x.mu.Unlock()
	if i, ok := x.index[name]; ok {
		x.tasks[i] = task
		return
	}
	x.index[name] = len(x.tasks)
	x.tasks = append(x.tasks, task)
}

// Tasks returns every task sorted by order, ties in insertion order.
func (x *StartupTaskExecutor) Tasks() []StartupTask {
	x.mu.Lock()
	tasks := append([]StartupTask(nil), x.tasks...)
	x.mu.Unlock()
	sort.SliceStable(tasks, func(i, j int) bool {
		return DescriptorOf(tasks[i]).Order < DescriptorOf(tasks[j]).Order
	})
	return tasks
}

// Task returns the task registered under name.
func (x *StartupTaskExecutor) Task(name string) (StartupTask, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	i, ok := x.index[name]
	if !ok {
		return nil, false
	}
	return x.tasks[i], true
}

// ConfigureTasks hands each task its entry of the startup_tasks section of
// doc. Tasks without an entry are configured with an empty map.
func (x *StartupTaskExecutor) ConfigureTasks(doc map[string]any) {
	section := asMap(doc[StartupTasksSection])
	for _, task := range x.Tasks() {
		name := TaskName(task)
		cfg := TaskConfig(asMap(section[name]))
		if cfg == nil {
			cfg = TaskConfig{}
		}
		task.Configure(cfg)
		x.log.Debug("startup task configured", zap.String("task", name), zap.Bool("enabled", Enabled(task)))
	}
}

// ExecuteAll runs the enabled tasks sequentially by order and stops at the
// first failure. Tasks that already completed on an earlier pass are skipped.
func (x *StartupTaskExecutor) ExecuteAll(ctx context.Context) error {
	for _, task := range x.Tasks() {
		name := TaskName(task)
		if !Enabled(task) {
			x.log.Debug("startup task disabled", zap.String("task", name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StartupTaskError{Task: name, Err: err}
		}
		if task.State() == TaskCompleted {
			continue
		}
		if err := x.execute(ctx, name, task); err != nil {
			return err
		}
	}
	return nil
}

func (x *StartupTaskExecutor) execute(ctx context.Context, name string, task StartupTask) error {
	b := task.base()
	if prev, ok := b.begin(); !ok {
		return &StartupTaskError{Task: name, Err: &TaskStateError{Task: name, State: prev}}
	}
	x.mu.Lock()
	x.executed = append(x.executed, task)
	x.mu.Unlock()

	taskCtx := NewContainerContext(ctx).Merge(x.values).With(taskNameKey{}, name)
	if timeout := task.Config().Duration("timeout", 0); timeout > 0 {
		bounded, cancel := context.WithTimeout(taskCtx.Parent(), timeout)
		defer cancel()
		taskCtx = taskCtx.WithParent(bounded)
	}

	x.log.Info("running startup task", zap.String("task", name), zap.Int("order", DescriptorOf(task).Order))
	start := time.Now()
	err := runGuarded(func() error { return task.Execute(taskCtx) })
	elapsed := time.Since(start)
	if x.metrics != nil {
		x.metrics.RecordTask(name, elapsed, err)
	}

	if err != nil {
		b.setState(TaskFailed)
		x.log.Error("startup task failed", zap.String("task", name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return &StartupTaskError{Task: name, Err: err}
	}
	b.setState(TaskCompleted)
	x.log.Info("startup task completed", zap.String("task", name), zap.Duration("elapsed", elapsed))
	return nil
}

// Cleanup calls Cleanup on every task that ran, most recent first, then
// forgets all tasks. Every task is attempted; failures are logged and
// combined into the returned error.
func (x *StartupTaskExecutor) Cleanup(ctx context.Context) error {
	x.mu.Lock()
	executed := x.executed
	x.executed = nil
	x.tasks = nil
	x.index = make(map[string]int)
	x.mu.Unlock()

	var errs error
	for i := len(executed) - 1; i >= 0; i-- {
		task := executed[i]
		name := TaskName(task)
		b := task.base()
		b.setState(TaskCleaningUp)
		if err := runGuarded(func() error { return task.Cleanup(ctx) }); err != nil {
			b.setState(TaskCleanupFailed)
			cerr := &CleanupError{Resource: name, Err: err}
			x.log.Warn("startup task cleanup failed", zap.Error(cerr))
			if x.metrics != nil {
				x.metrics.RecordCleanupFailure(name)
			}
			errs = multierr.Append(errs, cerr)
			continue
		}
		b.setState(TaskCleanedUp)
	}
	return errs
}

func runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case TaskConfig:
		return m
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out
	}
	return nil
}
