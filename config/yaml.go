package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// YamlConfig is a merged view over one or more YAML documents. Later loads
// replace top-level keys of earlier ones.
type YamlConfig struct {
	mu    sync.RWMutex
	doc   map[string]any
	files []string
}

// NewYamlConfig returns an empty configuration.
func NewYamlConfig() *YamlConfig {
	return &YamlConfig{doc: make(map[string]any)}
}

// Load reads path and merges it into the configuration.
func (c *YamlConfig) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return &LoadError{Path: path, Err: err}
	}

	c.Merge(doc)
	c.mu.Lock()
	c.files = append(c.files, path)
	c.mu.Unlock()
	return nil
}

// Merge replaces the top-level keys present in doc.
func (c *YamlConfig) Merge(doc map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range doc {
		c.doc[k] = v
	}
}

// Get resolves a dot separated key such as "database.host".
func (c *YamlConfig) Get(key string, def any) any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var cur any = c.doc
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		if cur, ok = m[part]; !ok {
			return def
		}
	}
	return cur
}

func (c *YamlConfig) String(key, def string) string {
	switch v := c.Get(key, nil).(type) {
	case nil:
		return def
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (c *YamlConfig) Int(key string, def int) int {
	switch v := c.Get(key, nil).(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (c *YamlConfig) Bool(key string, def bool) bool {
	switch v := c.Get(key, nil).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Section returns the mapping stored under a top-level key, or nil.
func (c *YamlConfig) Section(name string) map[string]any {
	m, _ := c.Get(name, nil).(map[string]any)
	return m
}

// Document returns a shallow copy of the merged document.
func (c *YamlConfig) Document() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.doc))
	for k, v := range c.doc {
		out[k] = v
	}
	return out
}

// LoadedFiles lists the files merged so far, in load order.
func (c *YamlConfig) LoadedFiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.files...)
}

// AppConfig decodes the merged document into its typed form.
func (c *YamlConfig) AppConfig() (*AppConfig, error) {
	return AppConfigFromDocument(c.Document())
}

// Database decodes the database section; ok is false when there is none.
func (c *YamlConfig) Database() (cfg DatabaseConfig, ok bool, err error) {
	section := c.Section("database")
	if section == nil {
		return DatabaseConfig{}, false, nil
	}
	data, err := yaml.Marshal(section)
	if err != nil {
		return DatabaseConfig{}, false, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DatabaseConfig{}, false, &ValidationError{Section: "database", Err: err}
	}
	return cfg, true, nil
}

// ConnectionString builds the driver DSN from the database section.
func (c *YamlConfig) ConnectionString() (string, error) {
	db, ok, err := c.Database()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &ValidationError{Section: "database", Err: fmt.Errorf("section not configured")}
	}
	if err := db.Validate(); err != nil {
		return "", err
	}
	return db.DSN(), nil
}

// Watch reloads path into c whenever it changes on disk. The caller starts
// and stops the returned watcher.
func (c *YamlConfig) Watch(path string, log *zap.Logger) (*Watcher, error) {
	w, err := NewWatcher(path, log)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(changed string) {
		if err := c.Load(changed); err != nil {
			w.logger.Warn("configuration reload failed", zap.Error(err))
		}
	})
	return w, nil
}
