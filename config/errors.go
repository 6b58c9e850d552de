package config

import "fmt"

// LoadError reports a configuration document that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load configuration %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ValidationError reports a section whose values are unusable.
type ValidationError struct {
	Section string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %v", e.Section, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
