// Package session owns the persisted browser session state: where it lives,
// whether it still authenticates, and how it is refreshed by logging in.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/justmadeid/social-services/internal/models"
)

var (
	// ErrNoCredentials is returned when neither explicit nor stored credentials exist.
	ErrNoCredentials = errors.New("no credentials available")
	// ErrLoginFailed wraps any failure of the authentication flow.
	ErrLoginFailed = errors.New("login failed")
	// ErrCredentialInactive is returned when a named credential is disabled.
	ErrCredentialInactive = errors.New("credential is not active")
)

// AuthMarkers are the cookie names whose presence marks an authenticated session.
var AuthMarkers = []string{"auth_token", "ct0", "twid"}

// State is the outcome class of reading the state file.
type State int

const (
	StateAbsent State = iota
	StateCorrupt
	StateChecked
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCorrupt:
		return "corrupt"
	case StateChecked:
		return "checked"
	}
	return "unknown"
}

// Assessment is the tri-state verdict on the persisted session.
// Valid is only meaningful when State is StateChecked.
type Assessment struct {
	State   State
	Valid   bool
	Cookies int
	Err     error
}

// AuthResult is what an Authenticator hands back after a login.
type AuthResult struct {
	Cookies []models.Cookie
	// MarkerConfirmed is false when the post-login page marker never appeared.
	MarkerConfirmed bool
}

// Authenticator drives the interactive login flow.
type Authenticator interface {
	Authenticate(ctx context.Context, creds models.Credentials) (*AuthResult, error)
}

// CredentialProvider supplies stored credentials, decrypted.
type CredentialProvider interface {
	GetByName(ctx context.Context, name string) (models.Credentials, error)
	GetActiveCredentials(ctx context.Context) ([]models.Credentials, error)
	RecordLoginAttempt(ctx context.Context, name string, success bool) error
}

// Store manages the session state file.
type Store struct {
	path     string
	auth     Authenticator
	provider CredentialProvider
	logger   *slog.Logger
	now      func() time.Time

	// serializes writes from this process; other processes still race
	mu sync.Mutex
}

// NewStore creates a store for the state file at path. provider may be nil
// when no credential database is configured.
func NewStore(path string, auth Authenticator, provider CredentialProvider, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:     path,
		auth:     auth,
		provider: provider,
		logger:   logger.With("component", "session"),
		now:      time.Now,
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads and decodes the state file.
func (s *Store) Load() (*models.SessionState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	// decode into a raw map first so a missing cookie list is distinguishable
	// from an empty one
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if _, ok := raw["cookies"]; !ok {
		return nil, errors.New("state file has no cookie list")
	}

	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &state, nil
}

// Assess classifies the state file.
func (s *Store) Assess() Assessment {
	state, err := s.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Assessment{State: StateAbsent}
		}
		return Assessment{State: StateCorrupt, Err: err}
	}
	return Assessment{
		State:   StateChecked,
		Valid:   hasLiveMarker(state.Cookies, s.now()),
		Cookies: len(state.Cookies),
	}
}

// IsValid reports whether scraping can proceed without logging in.
func (s *Store) IsValid() bool {
	a := s.Assess()
	return a.State == StateChecked && a.Valid
}

func hasLiveMarker(cookies []models.Cookie, now time.Time) bool {
	for _, c := range cookies {
		if !isMarker(c.Name) {
			continue
		}
		if !c.ExpiredAt(now) {
			return true
		}
	}
	return false
}

func isMarker(name string) bool {
	for _, m := range AuthMarkers {
		if name == m {
			return true
		}
	}
	return false
}

// ResolveCredentials picks the credentials to log in with: explicit ones
// when complete, else the oldest active stored credential.
func (s *Store) ResolveCredentials(ctx context.Context, explicit *models.Credentials) (models.Credentials, error) {
	if explicit != nil && explicit.Complete() {
		return *explicit, nil
	}
	if s.provider == nil {
		return models.Credentials{}, ErrNoCredentials
	}

	active, err := s.provider.GetActiveCredentials(ctx)
	if err != nil {
		s.logger.Warn("failed to read stored credentials", "error", err)
		return models.Credentials{}, ErrNoCredentials
	}
	for _, c := range active {
		if c.Complete() {
			return c, nil
		}
	}
	return models.Credentials{}, ErrNoCredentials
}

// ResolveNamed returns the stored credential called name. It must be active.
func (s *Store) ResolveNamed(ctx context.Context, name string) (models.Credentials, error) {
	if s.provider == nil {
		return models.Credentials{}, ErrNoCredentials
	}
	c, err := s.provider.GetByName(ctx, name)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("credential %q: %w", name, err)
	}
	if !c.Active {
		return models.Credentials{}, fmt.Errorf("credential %q: %w", name, ErrCredentialInactive)
	}
	return c, nil
}

// EnsureValid logs in unless the persisted session is already valid.
func (s *Store) EnsureValid(ctx context.Context, explicit *models.Credentials) error {
	a := s.Assess()
	if a.State == StateChecked && a.Valid {
		return nil
	}
	s.logger.Info("session needs login", "assessment", a.State.String(), "cookies", a.Cookies)

	creds, err := s.ResolveCredentials(ctx, explicit)
	if err != nil {
		return err
	}
	_, err = s.Login(ctx, creds)
	return err
}

// Login authenticates with creds and persists the resulting cookies.
func (s *Store) Login(ctx context.Context, creds models.Credentials) (*models.LoginResult, error) {
	if !creds.Complete() {
		return nil, ErrNoCredentials
	}
	if s.auth == nil {
		return nil, fmt.Errorf("%w: no authenticator configured", ErrLoginFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("logging in", "username", creds.Username, "credential", creds.Name)
	res, err := s.auth.Authenticate(ctx, creds)
	if err == nil && (res == nil || len(res.Cookies) == 0) {
		err = errors.New("authentication returned no cookies")
	}
	if err != nil {
		s.recordAttempt(ctx, creds, false)
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	if !res.MarkerConfirmed {
		s.logger.Warn("post-login marker not observed, saving session anyway", "username", creds.Username)
	}

	state := models.SessionState{Cookies: res.Cookies, Origins: []json.RawMessage{}}
	if err := s.write(&state); err != nil {
		s.recordAttempt(ctx, creds, false)
		return nil, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	s.recordAttempt(ctx, creds, true)

	s.logger.Info("session saved", "path", s.path, "cookies", len(res.Cookies))
	return &models.LoginResult{
		Status:         "success",
		Message:        "Login completed successfully",
		CredentialName: creds.Name,
		Cookies:        len(res.Cookies),
		Confirmed:      res.MarkerConfirmed,
	}, nil
}

func (s *Store) recordAttempt(ctx context.Context, creds models.Credentials, success bool) {
	if s.provider == nil || creds.Name == "" {
		return
	}
	if err := s.provider.RecordLoginAttempt(ctx, creds.Name, success); err != nil {
		s.logger.Warn("failed to record login attempt", "credential", creds.Name, "error", err)
	}
}

// write replaces the state file atomically with owner-only permissions.
func (s *Store) write(state *models.SessionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Clear deletes the state file. A missing file is not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	s.logger.Info("session state cleared", "path", s.path)
	return nil
}

// Status reports on the state file and credential availability.
func (s *Store) Status(ctx context.Context) models.LoginStatus {
	st := models.LoginStatus{StateFilePath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.StateFileExists = true
		st.StateFileSize = info.Size()
	}

	a := s.Assess()
	st.Assessment = a.State.String()
	st.CookiesCount = a.Cookies
	st.LoginRequired = !(a.State == StateChecked && a.Valid)
	if a.Err != nil {
		st.Error = a.Err.Error()
	}

	if s.provider != nil {
		if active, err := s.provider.GetActiveCredentials(ctx); err == nil {
			st.HasCredentials = len(active) > 0
		} else {
			st.Error = err.Error()
		}
	}
	return st
}
