package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
)

type fakeAuth struct {
	calls     int
	result    *AuthResult
	err       error
	lastCreds models.Credentials
}

func (f *fakeAuth) Authenticate(_ context.Context, creds models.Credentials) (*AuthResult, error) {
	f.calls++
	f.lastCreds = creds
	return f.result, f.err
}

type attempt struct {
	name    string
	success bool
}

type fakeProvider struct {
	byName   map[string]models.Credentials
	active   []models.Credentials
	attempts []attempt
}

func (f *fakeProvider) GetByName(_ context.Context, name string) (models.Credentials, error) {
	c, ok := f.byName[name]
	if !ok {
		return models.Credentials{}, errors.New("not found")
	}
	return c, nil
}

func (f *fakeProvider) GetActiveCredentials(context.Context) ([]models.Credentials, error) {
	return f.active, nil
}

func (f *fakeProvider) RecordLoginAttempt(_ context.Context, name string, success bool) error {
	f.attempts = append(f.attempts, attempt{name, success})
	return nil
}

func writeState(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newTestStore(t *testing.T, auth Authenticator, provider CredentialProvider) *Store {
	t.Helper()
	s := NewStore(filepath.Join(t.TempDir(), "state.json"), auth, provider, logging.Discard())
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func TestStore_Assess(t *testing.T) {
	tests := []struct {
		name    string
		content string // empty means no file
		state   State
		valid   bool
	}{
		{"absent", "", StateAbsent, false},
		{"not json", "{broken", StateCorrupt, false},
		{"missing cookie list", `{"origins":[]}`, StateCorrupt, false},
		{"empty cookie list", `{"cookies":[]}`, StateChecked, false},
		{"only expired marker", `{"cookies":[{"name":"auth_token","value":"x","expires":1600000000}]}`, StateChecked, false},
		{"non-expiring marker", `{"cookies":[{"name":"auth_token","value":"x","expires":-1}]}`, StateChecked, true},
		{"future marker", `{"cookies":[{"name":"ct0","value":"x","expires":1800000000}]}`, StateChecked, true},
		{"no marker", `{"cookies":[{"name":"guest_id","value":"x","expires":-1}]}`, StateChecked, false},
		{"expiry omitted", `{"cookies":[{"name":"twid","value":"x"}]}`, StateChecked, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, nil, nil)
			if tt.content != "" {
				writeState(t, s.Path(), tt.content)
			}

			a := s.Assess()
			if a.State != tt.state {
				t.Errorf("State = %v, want %v", a.State, tt.state)
			}
			if a.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", a.Valid, tt.valid)
			}
			if s.IsValid() != (tt.state == StateChecked && tt.valid) {
				t.Errorf("IsValid() = %v", s.IsValid())
			}
		})
	}
}

func TestStore_ResolveCredentials(t *testing.T) {
	stored := models.Credentials{Name: "main", Username: "stored", Password: "pw", Active: true}
	provider := &fakeProvider{active: []models.Credentials{stored}}

	t.Run("explicit wins", func(t *testing.T) {
		s := newTestStore(t, nil, provider)
		got, err := s.ResolveCredentials(context.Background(), &models.Credentials{Username: "me", Password: "secret"})
		if err != nil {
			t.Fatalf("ResolveCredentials() error = %v", err)
		}
		if got.Username != "me" {
			t.Errorf("Username = %q, want me", got.Username)
		}
	})

	t.Run("incomplete explicit falls back to stored", func(t *testing.T) {
		s := newTestStore(t, nil, provider)
		got, err := s.ResolveCredentials(context.Background(), &models.Credentials{Username: "me"})
		if err != nil {
			t.Fatalf("ResolveCredentials() error = %v", err)
		}
		if got.Username != "stored" {
			t.Errorf("Username = %q, want stored", got.Username)
		}
	})

	t.Run("nothing available", func(t *testing.T) {
		s := newTestStore(t, nil, &fakeProvider{})
		if _, err := s.ResolveCredentials(context.Background(), nil); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("error = %v, want ErrNoCredentials", err)
		}
	})

	t.Run("no provider", func(t *testing.T) {
		s := newTestStore(t, nil, nil)
		if _, err := s.ResolveCredentials(context.Background(), nil); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("error = %v, want ErrNoCredentials", err)
		}
	})
}

func TestStore_ResolveNamed(t *testing.T) {
	provider := &fakeProvider{byName: map[string]models.Credentials{
		"on":  {Name: "on", Username: "u", Password: "p", Active: true},
		"off": {Name: "off", Username: "u", Password: "p", Active: false},
	}}
	s := newTestStore(t, nil, provider)

	if _, err := s.ResolveNamed(context.Background(), "on"); err != nil {
		t.Errorf("ResolveNamed(on) error = %v", err)
	}
	if _, err := s.ResolveNamed(context.Background(), "off"); !errors.Is(err, ErrCredentialInactive) {
		t.Errorf("ResolveNamed(off) error = %v, want ErrCredentialInactive", err)
	}
	if _, err := s.ResolveNamed(context.Background(), "missing"); err == nil {
		t.Error("ResolveNamed(missing) error = nil")
	}
}

func TestStore_EnsureValid_NoCredentialsSkipsBrowser(t *testing.T) {
	auth := &fakeAuth{}
	s := newTestStore(t, auth, &fakeProvider{})

	err := s.EnsureValid(context.Background(), nil)
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("EnsureValid() error = %v, want ErrNoCredentials", err)
	}
	if auth.calls != 0 {
		t.Errorf("Authenticate calls = %d, want 0", auth.calls)
	}
}

func TestStore_EnsureValid_ValidStateSkipsLogin(t *testing.T) {
	auth := &fakeAuth{}
	s := newTestStore(t, auth, nil)
	writeState(t, s.Path(), `{"cookies":[{"name":"auth_token","value":"x","expires":-1}]}`)

	if err := s.EnsureValid(context.Background(), nil); err != nil {
		t.Fatalf("EnsureValid() error = %v", err)
	}
	if auth.calls != 0 {
		t.Errorf("Authenticate calls = %d, want 0", auth.calls)
	}
}

func TestStore_EnsureValid_LogsInAndPersists(t *testing.T) {
	auth := &fakeAuth{result: &AuthResult{
		Cookies:         []models.Cookie{{Name: "auth_token", Value: "tok", Expires: -1}},
		MarkerConfirmed: true,
	}}
	provider := &fakeProvider{active: []models.Credentials{{Name: "main", Username: "u", Password: "p", Active: true}}}
	s := newTestStore(t, auth, provider)

	if err := s.EnsureValid(context.Background(), nil); err != nil {
		t.Fatalf("EnsureValid() error = %v", err)
	}
	if auth.calls != 1 {
		t.Errorf("Authenticate calls = %d, want 1", auth.calls)
	}
	if !s.IsValid() {
		t.Error("IsValid() after login = false, want true")
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("state file mode = %o, want 600", perm)
	}

	if len(provider.attempts) != 1 || provider.attempts[0] != (attempt{"main", true}) {
		t.Errorf("attempts = %v, want [{main true}]", provider.attempts)
	}
}

func TestStore_Login_Failure(t *testing.T) {
	auth := &fakeAuth{err: errors.New("selector timeout")}
	provider := &fakeProvider{}
	s := newTestStore(t, auth, provider)

	_, err := s.Login(context.Background(), models.Credentials{Name: "main", Username: "u", Password: "p"})
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("Login() error = %v, want ErrLoginFailed", err)
	}
	if _, statErr := os.Stat(s.Path()); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("state file written after failed login")
	}
	if len(provider.attempts) != 1 || provider.attempts[0].success {
		t.Errorf("attempts = %v, want one failure", provider.attempts)
	}
}

func TestStore_Login_UnconfirmedMarkerStillSaves(t *testing.T) {
	auth := &fakeAuth{result: &AuthResult{
		Cookies: []models.Cookie{{Name: "ct0", Value: "v", Expires: -1}},
	}}
	s := newTestStore(t, auth, nil)

	res, err := s.Login(context.Background(), models.Credentials{Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Confirmed {
		t.Error("Confirmed = true, want false")
	}
	if !s.IsValid() {
		t.Error("IsValid() = false, want true")
	}
}

func TestStore_ClearAndStatus(t *testing.T) {
	provider := &fakeProvider{active: []models.Credentials{{Name: "a", Username: "u", Password: "p", Active: true}}}
	s := newTestStore(t, nil, provider)
	writeState(t, s.Path(), `{"cookies":[{"name":"auth_token","value":"x","expires":-1},{"name":"lang","value":"en"}]}`)

	st := s.Status(context.Background())
	if !st.StateFileExists || st.StateFileSize == 0 {
		t.Errorf("Status() exists/size = %v/%d", st.StateFileExists, st.StateFileSize)
	}
	if st.CookiesCount != 2 {
		t.Errorf("CookiesCount = %d, want 2", st.CookiesCount)
	}
	if st.LoginRequired {
		t.Error("LoginRequired = true, want false")
	}
	if !st.HasCredentials {
		t.Error("HasCredentials = false, want true")
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}

	st = s.Status(context.Background())
	if st.StateFileExists {
		t.Error("StateFileExists after Clear = true")
	}
	if !st.LoginRequired {
		t.Error("LoginRequired after Clear = false, want true")
	}
	if st.Assessment != "absent" {
		t.Errorf("Assessment = %q, want absent", st.Assessment)
	}
}

func TestLocate(t *testing.T) {
	good := t.TempDir()
	root := t.TempDir()
	missing := filepath.Join(root, "data")

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	unusable := filepath.Join(blocker, "sub")

	tests := []struct {
		name       string
		stateDir   string
		candidates []string
		want       string
	}{
		{"first usable", "", []string{"", unusable, good}, filepath.Join(good, "state.json")},
		{"skips missing candidate", "", []string{missing, good}, filepath.Join(good, "state.json")},
		{"configured dir is created", filepath.Join(root, "state"), []string{good}, filepath.Join(root, "state", "state.json")},
		{"unusable configured dir falls through", unusable, []string{good}, filepath.Join(good, "state.json")},
		{"fallback to relative", "", []string{unusable, missing}, "state.json"},
		{"no candidates", "", nil, "state.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Locate(tt.stateDir, tt.candidates, "state.json"); got != tt.want {
				t.Errorf("Locate() = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Errorf("Locate() created candidate %s (stat error %v)", missing, err)
	}
}

func TestDefaultCandidates(t *testing.T) {
	got := DefaultCandidates()
	if len(got) < 3 || got[0] != "/data" || got[1] != "/app" || got[2] != os.TempDir() {
		t.Errorf("candidates = %v, want /data, /app, then the temp dir", got)
	}
}
