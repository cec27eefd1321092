// Package envfile manages the persisted daemon configuration values that
// identify the vault account: server URL and login email. Secrets never
// live here; they belong to the OS keychain.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Well-known keys.
const (
	KeyServer = "BW_SERVER"
	KeyEmail  = "BW_EMAIL"
)

// DefaultServer is assumed when the file carries no BW_SERVER.
const DefaultServer = "https://vault.bitwarden.com"

// File is an in-memory view of one dotenv file.
type File struct {
	path   string
	values map[string]string
}

// Load reads the file at path. A missing file yields an empty File, not an
// error; first launch has nothing persisted yet.
func Load(path string) (*File, error) {
	f := &File{path: path, values: map[string]string{}}

	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("envfile: read %s: %w", path, err)
	}
	f.values = values
	return f, nil
}

// Get returns the value for key, or "" when absent.
func (f *File) Get(key string) string {
	return f.values[key]
}

// Server returns BW_SERVER, falling back to the public cloud endpoint.
func (f *File) Server() string {
	if s := f.values[KeyServer]; s != "" {
		return s
	}
	return DefaultServer
}

// Email returns BW_EMAIL, or "" when not yet configured.
func (f *File) Email() string {
	return f.values[KeyEmail]
}

// Set updates a value in memory. Call Save to persist.
func (f *File) Set(key, value string) {
	f.values[key] = value
}

// Save writes the file back with owner-only permissions.
func (f *File) Save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("envfile: create directory: %w", err)
	}
	if err := godotenv.Write(f.values, f.path); err != nil {
		return fmt.Errorf("envfile: write %s: %w", f.path, err)
	}
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("envfile: chmod %s: %w", f.path, err)
	}
	return nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}
