package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgresql"

	// MemoryDSN is the sqlite data source for a private in-memory database.
	MemoryDSN = ":memory:"
)

// DatabaseConfig holds the connection parameters of the relational store.
// A literal ConnectionString takes precedence over the individual fields.
type DatabaseConfig struct {
	Dialect          string `yaml:"dialect" validate:"omitempty,oneof=sqlite postgresql postgres"`
	Driver           string `yaml:"driver"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database"`
	Path             string `yaml:"path"`
	SSLMode          string `yaml:"sslmode"`
	ConnectionString string `yaml:"connection_string"`
	IsMemoryDB       bool   `yaml:"is_memory_db"`
	MaxOpenConns     int    `yaml:"max_open_conns" validate:"gte=0"`
	PoolRecycle      int    `yaml:"pool_recycle" validate:"gte=0"`
}

// DefaultDatabaseConfig is an in-memory sqlite store.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Dialect:     DialectSQLite,
		IsMemoryDB:  true,
		PoolRecycle: 3600,
	}
}

func (c *DatabaseConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain DatabaseConfig
	raw := plain{PoolRecycle: 3600}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = DatabaseConfig(raw)
	if c.Dialect == "" {
		c.Dialect = DialectSQLite
	}
	return nil
}

func (c DatabaseConfig) isPostgres() bool {
	d := strings.ToLower(c.Dialect)
	return d == DialectPostgres || d == "postgres"
}

// Validate checks field ranges and, for server dialects without a literal
// connection string, that the connection fields are present.
func (c DatabaseConfig) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return &ValidationError{Section: "database", Err: err}
	}
	if c.ConnectionString != "" || !c.isPostgres() {
		return nil
	}

	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Port == 0 {
		missing = append(missing, "port")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if len(missing) > 0 {
		return &ValidationError{
			Section: "database",
			Err:     fmt.Errorf("missing required fields for %s: %s", c.Dialect, strings.Join(missing, ", ")),
		}
	}
	return nil
}

// DriverName returns the database/sql driver to open.
func (c DatabaseConfig) DriverName() string {
	if c.Driver != "" {
		return c.Driver
	}
	if c.ConnectionString != "" {
		if driver, _, ok := parseConnectionString(c.ConnectionString); ok {
			return driver
		}
	}
	if c.isPostgres() {
		return "postgres"
	}
	return "sqlite"
}

// DSN returns the data source name passed to the driver.
func (c DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		if _, dsn, ok := parseConnectionString(c.ConnectionString); ok {
			return dsn
		}
		return c.ConnectionString
	}
	if c.isPostgres() {
		return c.postgresURL()
	}
	return c.sqlitePath()
}

// InMemory reports whether the configuration points at a transient sqlite store.
func (c DatabaseConfig) InMemory() bool {
	return c.DriverName() == "sqlite" && c.DSN() == MemoryDSN
}

// MigrationURL returns the URL form golang-migrate expects.
func (c DatabaseConfig) MigrationURL() string {
	if c.DriverName() == "postgres" {
		return c.DSN()
	}
	return "sqlite://" + c.DSN()
}

func (c DatabaseConfig) sqlitePath() string {
	if c.IsMemoryDB && c.Path == "" {
		return MemoryDSN
	}
	switch {
	case c.Path != "":
		return c.Path
	case c.Database != "":
		return c.Database
	}
	return MemoryDSN
}

func (c DatabaseConfig) postgresURL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	} else if c.Username != "" {
		u.User = url.User(c.Username)
	}
	return u.String()
}

// parseConnectionString maps "scheme[+driver]://rest" onto a driver and DSN.
func parseConnectionString(s string) (driver, dsn string, ok bool) {
	scheme, rest, found := strings.Cut(s, "://")
	if !found {
		return "", "", false
	}
	if base, _, plus := strings.Cut(scheme, "+"); plus {
		scheme = base
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return "postgres", "postgres://" + rest, true
	case "sqlite", "sqlite3":
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" {
			rest = MemoryDSN
		}
		return "sqlite", rest, true
	}
	return "", "", false
}
