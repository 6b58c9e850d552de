package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound is returned by LoadModule for names no catalog knows.
	ErrModuleNotFound = errors.New("module not registered")

	// ErrUnsupportedTarget is returned when a target is neither an interface
	// nor a struct type.
	ErrUnsupportedTarget = errors.New("target must be an interface or struct type")
)

// DiscoveryError describes a failure while introspecting a module or a
// single candidate type.
type DiscoveryError struct {
	Module string
	Type   string
	Err    error
}

func (e *DiscoveryError) Error() string {
	switch {
	case e.Type != "" && e.Module != "":
		return fmt.Sprintf("discovery failed for type %s in module %s: %v", e.Type, e.Module, e.Err)
	case e.Type != "":
		return fmt.Sprintf("discovery failed for type %s: %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("discovery failed for module %s: %v", e.Module, e.Err)
	}
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
