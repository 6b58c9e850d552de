package obc

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/openbiocure/obc-ingestion-core/discovery"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithConfigPath reads configuration from path instead of CONFIG_FILE or
// config.yaml.
func WithConfigPath(path string) Option {
	return func(e *Engine) { e.configPath = path }
}

// WithConfigDocument uses doc as the configuration and reads no file.
func WithConfigDocument(doc map[string]any) Option {
	return func(e *Engine) { e.configDoc = doc }
}

// WithFinder replaces the type finder, for instance with one over a private
// catalog.
func WithFinder(f discovery.TypeFinder) Option {
	return func(e *Engine) { e.finder = f }
}

// WithRegisterer also exposes the engine metrics on r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = r }
}

// WithConfigWatch reloads the configuration file when it changes while the
// engine runs.
func WithConfigWatch() Option {
	return func(e *Engine) { e.watchConfig = true }
}
