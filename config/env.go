package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment reads typed values from process environment variables. The
// zero value reads unprefixed names.
type Environment struct {
	Prefix string
}

func (e Environment) Get(key, def string) string {
	if v, ok := os.LookupEnv(e.Prefix + key); ok {
		return v
	}
	return def
}

// Bool accepts true/1/yes/y/on (any case) as true; other set values are false.
func (e Environment) Bool(key string, def bool) bool {
	v, ok := os.LookupEnv(e.Prefix + key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y", "on":
		return true
	}
	return false
}

func (e Environment) Int(key string, def int) int {
	v, ok := os.LookupEnv(e.Prefix + key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// LoadDotEnv loads .env style files without overriding variables that are
// already set. Without arguments it reads ./.env and tolerates its absence.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		err := godotenv.Load()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			return &LoadError{Path: p, Err: err}
		}
	}
	return nil
}
