package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/tidwall/gjson"
)

// Settings is a small JSON document of user settings persisted to one file.
type Settings struct {
	mu   sync.RWMutex
	path string
	raw  []byte
}

// LoadSettings reads path; a missing file starts an empty document.
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		raw = []byte("{}")
	case err != nil:
		return nil, &LoadError{Path: path, Err: err}
	case !gjson.ValidBytes(raw):
		return nil, &LoadError{Path: path, Err: errors.New("invalid JSON")}
	}
	return &Settings{path: path, raw: raw}, nil
}

// Get queries the document with a gjson path such as "ui.theme".
func (s *Settings) Get(path string) gjson.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gjson.GetBytes(s.raw, path)
}

// Set stores value under a top-level key.
func (s *Settings) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := make(map[string]any)
	if err := json.Unmarshal(s.raw, &doc); err != nil {
		return err
	}
	doc[key] = value
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.raw = raw
	return nil
}

// Save writes the document back to its file.
func (s *Settings) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc map[string]any
	if err := json.Unmarshal(s.raw, &doc); err != nil {
		return err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, out, 0o644)
}
