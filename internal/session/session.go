// Package session keeps the signed-in identity of the client on disk.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/telecare/internal/auth"
)

type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

// Session carries the bearer tokens and the user record. The client never
// validates or refreshes them.
type Session struct {
	mu         sync.RWMutex
	token      string
	adminToken string
	user       *User
}

func New(token, adminToken string, user *User) *Session {
	s := &Session{token: token, adminToken: adminToken}
	if user != nil {
		u := *user
		s.user = &u
	}
	return s
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) AdminToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adminToken
}

// User returns a copy of the stored user.
func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Session) SetToken(tok string) {
	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
}

func (s *Session) SetAdminToken(tok string) {
	s.mu.Lock()
	s.adminToken = tok
	s.mu.Unlock()
}

func (s *Session) SetUser(u User) {
	s.mu.Lock()
	s.user = &u
	s.mu.Unlock()
}

func (s *Session) Clear() {
	s.mu.Lock()
	s.token, s.adminToken, s.user = "", "", nil
	s.mu.Unlock()
}

type fileFormat struct {
	Token      string `json:"token,omitempty"`
	AdminToken string `json:"admin_token,omitempty"`
	User       *User  `json:"user,omitempty"`
}

// Store persists a Session as a JSON file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (st *Store) Path() string { return st.path }

// Load reads the session file. A missing file yields an empty session.
func (st *Store) Load() (*Session, error) {
	raw, err := os.ReadFile(st.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New("", "", nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", st.path, err)
	}
	return New(f.Token, f.AdminToken, f.User), nil
}

// Save writes s atomically with owner-only permissions.
func (st *Store) Save(s *Session) error {
	s.mu.RLock()
	f := fileFormat{Token: s.token, AdminToken: s.adminToken, User: s.user}
	raw, err := json.MarshalIndent(f, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(st.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(st.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp session: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}
