package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	configDirName   = "lynx-fm"
	sessionFileName = "session.toml"
)

// Store persists the [Session] as a TOML file. It is the sole writer of the
// on-disk representation; saves are atomic (write-temp-then-rename) so a
// crash mid-write cannot corrupt the previously valid session. Unknown keys
// in the file are ignored on load, keeping older files forward compatible.
type Store struct {
	path string
}

// DefaultStore returns a Store rooted at the per-user config directory,
// conventionally ~/.config/lynx-fm/session.toml.
func DefaultStore() (*Store, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user config dir: %w", err)
	}

	return NewStore(filepath.Join(configDir, configDirName, sessionFileName)), nil
}

// NewStore creates a Store with a custom path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file path where the session is stored.
func (st *Store) Path() string {
	return st.path
}

// Load reads the persisted session. A missing file is not an error; it means
// the user has never logged in, so an empty session is returned.
func (st *Store) Load() (Session, error) {
	var sess Session

	data, err := os.ReadFile(st.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sess, nil
		}
		return sess, fmt.Errorf("failed to read session file %s: %w", st.path, err)
	}

	if err := toml.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("failed to parse session file %s: %w", st.path, err)
	}

	return sess, nil
}

// Save writes the session to disk atomically, creating the parent directory
// if needed. The file is created with 0600 since it holds bearer tokens.
func (st *Store) Save(sess Session) error {
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(sess); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to flush session file: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to set session file mode: %w", err)
	}

	if err := os.Rename(tmp.Name(), st.path); err != nil {
		return fmt.Errorf("failed to replace session file %s: %w", st.path, err)
	}

	return nil
}

// Clear drops the token fields while preserving configured URLs, persisting
// the result. Called on logout and when a refresh token is rejected.
func (st *Store) Clear() error {
	sess, err := st.Load()
	if err != nil {
		return err
	}

	sess.ClearTokens()
	return st.Save(sess)
}
