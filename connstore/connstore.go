// Package connstore persists named connection strings, so validations can
// reference a registry name instead of repeating full connection URLs.
package connstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const connectionsKey = "connections"

// Store is a named connection registry backed by a YAML file. Names are
// case-insensitive and stored lower case.
type Store struct {
	path string
	v    *viper.Viper
}

// Open loads the registry at path, creating an empty registry when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !errors.HasType(err, viper.ConfigFileNotFoundError{}) && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "reading connection registry %s", path)
		}
	}
	return &Store{path: path, v: v}, nil
}

// Entry is one named connection.
type Entry struct {
	Name    string
	ConnStr string
}

// List returns all registered connections, sorted by name.
func (s *Store) List() []Entry {
	stored := s.v.GetStringMapString(connectionsKey)
	entries := make([]Entry, 0, len(stored))
	for name, connStr := range stored {
		entries = append(entries, Entry{Name: name, ConnStr: connStr})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Get returns the connection string registered under name.
func (s *Store) Get(name string) (string, error) {
	stored := s.v.GetStringMapString(connectionsKey)
	connStr, ok := stored[strings.ToLower(name)]
	if !ok {
		return "", errors.Newf("no connection named %q in %s", name, s.path)
	}
	return connStr, nil
}

// Add registers a connection string under name and persists the registry.
// Re-adding an existing name overwrites it.
func (s *Store) Add(name, connStr string) error {
	if name == "" || connStr == "" {
		return errors.Newf("connection name and string are required")
	}
	stored := s.v.GetStringMapString(connectionsKey)
	if stored == nil {
		stored = map[string]string{}
	}
	stored[strings.ToLower(name)] = connStr
	s.v.Set(connectionsKey, stored)
	return s.write()
}

// Remove deletes a named connection and persists the registry.
func (s *Store) Remove(name string) error {
	stored := s.v.GetStringMapString(connectionsKey)
	lowered := strings.ToLower(name)
	if _, ok := stored[lowered]; !ok {
		return errors.Newf("no connection named %q in %s", name, s.path)
	}
	delete(stored, lowered)
	s.v.Set(connectionsKey, stored)
	return s.write()
}

// Resolve maps a registry name to its connection string. Anything carrying a
// URL scheme is taken as a literal connection string and passed through.
func (s *Store) Resolve(nameOrConn string) (string, error) {
	if strings.Contains(nameOrConn, "://") {
		return nameOrConn, nil
	}
	return s.Get(nameOrConn)
}

func (s *Store) write() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating registry directory %s", dir)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return errors.Wrapf(err, "writing connection registry %s", s.path)
	}
	return nil
}
