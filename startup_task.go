package obc

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTaskOrder is the order of tasks that do not describe themselves.
const DefaultTaskOrder = 100

// TaskState tracks a task through one startup pass.
type TaskState int

const (
	TaskCreated TaskState = iota
	TaskConfigured
	TaskExecuting
	TaskCompleted
	TaskFailed
	TaskCleaningUp
	TaskCleanedUp
	TaskCleanupFailed
)

var taskStateNames = [...]string{
	"created", "configured", "executing", "completed",
	"failed", "cleaning_up", "cleaned_up", "cleanup_failed",
}

func (s TaskState) String() string {
	if s < 0 || int(s) >= len(taskStateNames) {
		return "TaskState(" + strconv.Itoa(int(s)) + ")"
	}
	return taskStateNames[s]
}

// TaskDescriptor is the static metadata of a task type.
type TaskDescriptor struct {
	Order   int
	Enabled bool
}

// DefaultTaskDescriptor returns {Order: 100, Enabled: true}.
func DefaultTaskDescriptor() TaskDescriptor {
	return TaskDescriptor{Order: DefaultTaskOrder, Enabled: true}
}

// StartupTask is a unit of ordered initialization run by the engine during
// Start. Implementations embed TaskBase and provide Execute.
type StartupTask interface {
	Execute(ctx context.Context) error
	Cleanup(ctx context.Context) error
	Configure(cfg TaskConfig)
	Config() TaskConfig
	State() TaskState

	base() *TaskBase
}

// Describer is implemented by tasks that declare their order and default
// enablement.
type Describer interface {
	Describe() TaskDescriptor
}

// Named is implemented by tasks whose name is not their type name.
type Named interface {
	TaskName() string
}

// TaskBase carries the configuration and state shared by every startup task.
type TaskBase struct {
	mu      sync.Mutex
	config  TaskConfig
	enabled *bool
	state   TaskState
}

// Configure stores cfg. An "enabled" entry overrides the task's descriptor.
func (b *TaskBase) Configure(cfg TaskConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.config = make(TaskConfig, len(cfg))
	for k, v := range cfg {
		b.config[k] = v
	}
	b.enabled = nil
	if _, ok := cfg["enabled"]; ok {
		enabled := cfg.Bool("enabled", true)
		b.enabled = &enabled
	}
	if b.state == TaskCreated {
		b.state = TaskConfigured
	}
}

// Config returns the task's configuration; never nil.
func (b *TaskBase) Config() TaskConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.config == nil {
		return TaskConfig{}
	}
	return b.config
}

// Cleanup does nothing. Tasks holding resources override it.
func (b *TaskBase) Cleanup(context.Context) error {
	return nil
}

// State returns the task's current state.
func (b *TaskBase) State() TaskState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *TaskBase) base() *TaskBase {
	return b
}

func (b *TaskBase) enabledOverride() (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled == nil {
		return false, false
	}
	return *b.enabled, true
}

// begin moves a runnable task to executing and reports the state it was in.
func (b *TaskBase) begin() (TaskState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	if prev != TaskCreated && prev != TaskConfigured {
		return prev, false
	}
	b.state = TaskExecuting
	return prev, true
}

func (b *TaskBase) setState(s TaskState) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// rearm returns a task to its configured state so a retried start can run it.
func (b *TaskBase) rearm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.config != nil {
		b.state = TaskConfigured
	} else {
		b.state = TaskCreated
	}
}

// TaskName returns the task's name: its TaskName method when it has one,
// otherwise its concrete type name.
func TaskName(t StartupTask) string {
	if n, ok := t.(Named); ok {
		if name := n.TaskName(); name != "" {
			return name
		}
	}
	rt := reflect.TypeOf(t)
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt.Name()
}

// DescriptorOf returns the task's descriptor, or the default one.
func DescriptorOf(t StartupTask) TaskDescriptor {
	if d, ok := t.(Describer); ok {
		return d.Describe()
	}
	return DefaultTaskDescriptor()
}

// Enabled reports whether t runs: its configured override, else its descriptor.
func Enabled(t StartupTask) bool {
	if enabled, ok := t.base().enabledOverride(); ok {
		return enabled
	}
	return DescriptorOf(t).Enabled
}

// TaskConfig is a task's section of the startup_tasks configuration.
type TaskConfig map[string]any

// String returns the value for key as a string, or def.
func (c TaskConfig) String(key, def string) string {
	switch v := c[key].(type) {
	case nil:
		return def
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the value for key as a bool, or def. Strings are parsed.
func (c TaskConfig) Bool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true
		case "false", "no", "off", "0":
			return false
		}
	case int:
		return v != 0
	}
	return def
}

// Int returns the value for key as an int, or def.
func (c TaskConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Duration returns the value for key as a duration, or def. Strings use
// time.ParseDuration; bare numbers are seconds.
func (c TaskConfig) Duration(key string, def time.Duration) time.Duration {
	switch v := c[key].(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
