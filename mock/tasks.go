package mock

import (
	"context"
	"errors"
	"sync"

	obc "github.com/openbiocure/obc-ingestion-core"
	"github.com/openbiocure/obc-ingestion-core/config"
)

// Recorder collects task events in the order they happen.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) Record(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Trace records the events of tasks built by discovery, which have no
// Recorder of their own.
var Trace = &Recorder{}

func recorder(r *Recorder) *Recorder {
	if r != nil {
		return r
	}
	return Trace
}

// TaskA runs at order 10.
type TaskA struct {
	obc.TaskBase
	Recorder *Recorder
	Executed bool
}

func (*TaskA) Describe() obc.TaskDescriptor {
	return obc.TaskDescriptor{Order: 10, Enabled: true}
}

func (t *TaskA) Execute(ctx context.Context) error {
	rec := recorder(t.Recorder)
	rec.Record("TaskA:start")
	t.Executed = true
	rec.Record("TaskA:end")
	return nil
}

func (t *TaskA) Cleanup(context.Context) error {
	recorder(t.Recorder).Record("TaskA:cleanup")
	return nil
}

// TaskB runs at order 20.
type TaskB struct {
	obc.TaskBase
	Recorder *Recorder
	Executed bool
}

func (*TaskB) Describe() obc.TaskDescriptor {
	return obc.TaskDescriptor{Order: 20, Enabled: true}
}

func (t *TaskB) Execute(ctx context.Context) error {
	rec := recorder(t.Recorder)
	rec.Record("TaskB:start")
	t.Executed = true
	rec.Record("TaskB:end")
	return nil
}

func (t *TaskB) Cleanup(context.Context) error {
	recorder(t.Recorder).Record("TaskB:cleanup")
	return nil
}

// DisabledTask is off unless configuration enables it.
type DisabledTask struct {
	obc.TaskBase
	Executed bool
}

func (*DisabledTask) Describe() obc.TaskDescriptor {
	return obc.TaskDescriptor{Order: 30, Enabled: false}
}

func (t *DisabledTask) Execute(context.Context) error {
	t.Executed = true
	return nil
}

// DefaultTask has no descriptor and records the task name it was handed.
type DefaultTask struct {
	obc.TaskBase
	Recorder *Recorder
	SeenName string
}

func (t *DefaultTask) Execute(ctx context.Context) error {
	t.SeenName = obc.TaskNameFrom(ctx)
	recorder(t.Recorder).Record("DefaultTask")
	return nil
}

// ErrTaskFailed is returned by FailingTask.
var ErrTaskFailed = errors.New("task failed")

// FailingTask fails while Failures is positive, consuming one per run.
type FailingTask struct {
	obc.TaskBase
	Failures int
	Runs     int
}

func (*FailingTask) Describe() obc.TaskDescriptor {
	return obc.TaskDescriptor{Order: 50, Enabled: true}
}

func (t *FailingTask) Execute(context.Context) error {
	t.Runs++
	if t.Failures > 0 {
		t.Failures--
		return ErrTaskFailed
	}
	return nil
}

// ErrCleanupFailed is returned by BrokenCleanupTask's Cleanup.
var ErrCleanupFailed = errors.New("cleanup failed")

type BrokenCleanupTask struct {
	obc.TaskBase
	Recorder *Recorder
}

func (*BrokenCleanupTask) Describe() obc.TaskDescriptor {
	return obc.TaskDescriptor{Order: 15, Enabled: true}
}

func (t *BrokenCleanupTask) Execute(context.Context) error {
	recorder(t.Recorder).Record("BrokenCleanupTask:start")
	return nil
}

func (t *BrokenCleanupTask) Cleanup(context.Context) error {
	recorder(t.Recorder).Record("BrokenCleanupTask:cleanup")
	return ErrCleanupFailed
}

// SlowTask blocks until its context ends.
type SlowTask struct {
	obc.TaskBase
}

func (t *SlowTask) Execute(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// ResolvingTask resolves the AppConfig from the running engine.
type ResolvingTask struct {
	obc.TaskBase
	Resolved *config.AppConfig
}

func (*ResolvingTask) Describe() obc.TaskDescriptor {
	return obc.TaskDescriptor{Order: 40, Enabled: true}
}

func (t *ResolvingTask) Execute(ctx context.Context) error {
	e, ok := obc.EngineFrom(ctx)
	if !ok {
		return errors.New("no engine in context")
	}
	cfg, err := obc.Resolve[*config.AppConfig](e)
	if err != nil {
		return err
	}
	t.Resolved = cfg
	return nil
}

// RenamedTask overrides its name.
type RenamedTask struct {
	obc.TaskBase
	Executed bool
}

func (*RenamedTask) TaskName() string { return "seed-data" }

func (t *RenamedTask) Execute(context.Context) error {
	t.Executed = true
	return nil
}
