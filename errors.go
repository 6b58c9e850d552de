package obc

import (
	"fmt"
	"strings"
)

// NotStartedError is returned when the engine is used before Start completes.
type NotStartedError struct {
	Op     string
	Reason string
}

func (e *NotStartedError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "engine not started"
	}
	return fmt.Sprintf("%s: %s", e.Op, reason)
}

// NotRegisteredError is returned when no registration exists for a key.
type NotRegisteredError struct {
	Type string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("no service registered for type: %s", e.Type)
}

// ScopedWithoutScopeError is returned when a scoped service is resolved from
// the root container.
type ScopedWithoutScopeError struct {
	Type string
}

func (e *ScopedWithoutScopeError) Error() string {
	return fmt.Sprintf("service %s is scoped and must be resolved from a scope", e.Type)
}

// ScopeDisposedError is returned when a disposed scope is used.
type ScopeDisposedError struct {
	Type string
}

func (e *ScopeDisposedError) Error() string {
	return fmt.Sprintf("cannot resolve %s: scope already disposed", e.Type)
}

// CircularDependencyError reports a factory that re-enters its own resolution.
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Chain, " -> "))
}

// NilServiceError represents an attempt to register a nil service.
type NilServiceError struct {
	Type string
}

func (e *NilServiceError) Error() string {
	return fmt.Sprintf("nil service provided for type: %s", e.Type)
}

// InitializationError wraps a factory failure.
type InitializationError struct {
	Type string
	Err  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization failed for type %s: %v", e.Type, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

// TypeMismatchError represents an instance that does not satisfy its key.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Got)
}

// StartupTaskError wraps the failure of a startup task's Execute.
type StartupTaskError struct {
	Task string
	Err  error
}

func (e *StartupTaskError) Error() string {
	return fmt.Sprintf("startup task %s failed: %v", e.Task, e.Err)
}

func (e *StartupTaskError) Unwrap() error {
	return e.Err
}

// TaskStateError reports a task asked to run from a state that forbids it.
type TaskStateError struct {
	Task  string
	State TaskState
}

func (e *TaskStateError) Error() string {
	return fmt.Sprintf("startup task %s cannot execute from state %s", e.Task, e.State)
}

// CleanupError wraps a failed teardown step. Cleanup errors are logged, not
// returned to the caller of Stop.
type CleanupError struct {
	Resource string
	Err      error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup failed for %s: %v", e.Resource, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}
