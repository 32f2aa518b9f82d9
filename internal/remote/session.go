package remote

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Session identifies this installation to the remote store. The device
// id is minted once per data directory; the user id is assigned by the
// remote store on first successful registration and cached so the client
// can keep addressing its records across restarts, even offline.
type Session struct {
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId,omitempty"`

	path string
}

const sessionFile = "session.json"

// LoadSession reads the session from the data directory, minting a fresh
// device id (and persisting it) on first run.
func LoadSession(dataDir string) (*Session, error) {
	path := filepath.Join(dataDir, sessionFile)
	sess := &Session{path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		sess.DeviceID = "device-" + uuid.NewString()
		if err := sess.Save(); err != nil {
			return nil, err
		}
		return sess, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("corrupt session file %s: %w", path, err)
	}
	if sess.DeviceID == "" {
		sess.DeviceID = "device-" + uuid.NewString()
		if err := sess.Save(); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Save persists the session to the data directory.
func (s *Session) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(struct {
		DeviceID string `json:"deviceId"`
		UserID   string `json:"userId,omitempty"`
	}{s.DeviceID, s.UserID}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}
