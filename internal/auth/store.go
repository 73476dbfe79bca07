package auth

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const credentialsFile = "connection.yaml"

// Credentials are the non-secret connection settings remembered between
// runs. The secret is never cached.
type Credentials struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
}

// CredentialStore caches the last successful connection settings in Dir.
type CredentialStore struct {
	Dir string
}

func NewCredentialStore(dir string) *CredentialStore {
	return &CredentialStore{Dir: dir}
}

func (s *CredentialStore) path() string {
	return filepath.Join(s.Dir, credentialsFile)
}

func (s *CredentialStore) Save(c *Credentials) error {
	if c == nil {
		return fmt.Errorf("save credentials: nil")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path(), data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Load returns nil, nil when nothing has been cached yet.
func (s *CredentialStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &c, nil
}

func (s *CredentialStore) Delete() error {
	err := os.Remove(s.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
