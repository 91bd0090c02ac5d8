// Package session persists the credential pair and login session metadata
// across process restarts.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	accessTokenFile  = "cubo_access_token.json"
	refreshTokenFile = "cubo_refresh_token.json"
	sessionFile      = "cubo_session.json"
)

// Pair - credential pair exchanged with the vendor cloud
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Session - login session metadata, created once at login time
type Session struct {
	Username   string `json:"username"`
	MobileUUID string `json:"mobile_uuid"`
	UserAgent  string `json:"user_agent"`
}

// Store - file backed token/session store.
// Exactly one credential pair per account; readers always observe the pair
// persisted by the most recent Save.
type Store struct {
	Dir string

	mu      sync.RWMutex
	pair    Pair
	session Session
}

// NewStore - constructor
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Load - reads persisted state from the store directory.
// Missing files are not an error: the store just starts out empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, err := readTokenFile(filepath.Join(s.Dir, accessTokenFile), "access_token")
	if err != nil {
		return err
	}

	refresh, err := readTokenFile(filepath.Join(s.Dir, refreshTokenFile), "refresh_token")
	if err != nil {
		return err
	}

	s.pair = Pair{AccessToken: access, RefreshToken: refresh}

	data, err := os.ReadFile(filepath.Join(s.Dir, sessionFile))
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("session: read %s: %w", sessionFile, err)
	}

	if err := json.Unmarshal(data, &s.session); err != nil {
		log.Warn().Str("filename", sessionFile).Err(err).Msg("Session file is malformed, ignoring")
		s.session = Session{}
	}

	return nil
}

// Pair - returns the current credential pair
func (s *Store) Pair() Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// Session - returns the login session metadata
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// SavePair - persists a credential pair, overwriting the existing one.
// Both token files are written atomically (temp file + rename) so an
// interrupted write never leaves a partially written credential file.
func (s *Store) SavePair(pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeTokenFile(filepath.Join(s.Dir, accessTokenFile), "access_token", pair.AccessToken); err != nil {
		return err
	}

	if err := writeTokenFile(filepath.Join(s.Dir, refreshTokenFile), "refresh_token", pair.RefreshToken); err != nil {
		return err
	}

	s.pair = pair
	log.Trace().Str("dir", s.Dir).Msg("Persisted credential pair")
	return nil
}

// SaveSession - persists login session metadata
func (s *Store) SaveSession(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	if err := writeAtomic(filepath.Join(s.Dir, sessionFile), data); err != nil {
		return err
	}

	s.session = session
	return nil
}

func readTokenFile(path string, key string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("session: read %s: %w", filepath.Base(path), err)
	}

	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Str("filename", filepath.Base(path)).Err(err).Msg("Token file is malformed, ignoring")
		return "", nil
	}

	return payload[key], nil
}

func writeTokenFile(path string, key string, value string) error {
	data, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return fmt.Errorf("session: marshal %s: %w", filepath.Base(path), err)
	}

	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("session: mkdir %s: %w", filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("session: create temp for %s: %w", filepath.Base(path), err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("session: write %s: %w", filepath.Base(path), err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: close %s: %w", filepath.Base(path), err)
	}

	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: chmod %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: rename %s: %w", filepath.Base(path), err)
	}

	return nil
}
