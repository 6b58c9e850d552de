package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openbiocure/obc-ingestion-core/internal/logging"
)

// EnvDatabaseURL overrides the configured database connection string.
const EnvDatabaseURL = "OBC_DATABASE_URL"

// EnvLogLevel overrides the configured log level.
const EnvLogLevel = "OBC_LOG_LEVEL"

// AgentConfig configures one model-backed agent.
type AgentConfig struct {
	Model         string  `yaml:"model" validate:"required"`
	PromptVersion string  `yaml:"prompt_version" validate:"required"`
	MaxTokens     int     `yaml:"max_tokens" validate:"gte=1"`
	Temperature   float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// DefaultAgentConfig returns the agent defaults; Model has none.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		PromptVersion: "v1",
		MaxTokens:     1000,
		Temperature:   0.5,
	}
}

func (a *AgentConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain AgentConfig
	raw := plain(DefaultAgentConfig())
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*a = AgentConfig(raw)
	return nil
}

// AppConfig is the typed view of the application configuration document.
type AppConfig struct {
	DefaultModelProvider string                 `yaml:"default_model_provider" validate:"required"`
	Agents               map[string]AgentConfig `yaml:"agents" validate:"dive"`
	Database             *DatabaseConfig        `yaml:"database"`
	Logging              logging.Config         `yaml:"logging"`
}

// DefaultAppConfig is used when no configuration file exists.
func DefaultAppConfig() *AppConfig {
	db := DefaultDatabaseConfig()
	return &AppConfig{
		DefaultModelProvider: "claude",
		Agents:               map[string]AgentConfig{},
		Database:             &db,
	}
}

// LoadAppConfig reads path. A missing file yields the defaults.
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := DefaultAppConfig()
		cfg.ApplyEnvironment(Environment{})
		return cfg, nil
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	cfg, err := parseAppConfig(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return cfg, nil
}

// AppConfigFromDocument builds an AppConfig from an already parsed document.
func AppConfigFromDocument(doc map[string]any) (*AppConfig, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return parseAppConfig(data)
}

func parseAppConfig(data []byte) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	cfg.Database = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Database == nil {
		db := DefaultDatabaseConfig()
		cfg.Database = &db
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
	cfg.ApplyEnvironment(Environment{})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvironment lets environment variables override file values.
func (c *AppConfig) ApplyEnvironment(env Environment) {
	if dsn := env.Get(EnvDatabaseURL, ""); dsn != "" {
		if c.Database == nil {
			db := DefaultDatabaseConfig()
			c.Database = &db
		}
		c.Database.ConnectionString = dsn
	}
	if level := env.Get(EnvLogLevel, ""); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the document against its constraints.
func (c *AppConfig) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return &ValidationError{Section: "app", Err: err}
	}
	if c.Database != nil {
		return c.Database.Validate()
	}
	return nil
}

// Agent returns the named agent configuration.
func (c *AppConfig) Agent(name string) (AgentConfig, bool) {
	a, ok := c.Agents[name]
	return a, ok
}
