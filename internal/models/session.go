package models

import (
	"encoding/json"
	"time"
)

// Cookie is a browser cookie as persisted in the session state file.
// Expires is epoch seconds; -1 (or 0) marks a session-scoped cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// SessionScoped reports whether the cookie has no expiry.
func (c Cookie) SessionScoped() bool {
	return c.Expires <= 0
}

// ExpiredAt reports whether the cookie had expired at now.
func (c Cookie) ExpiredAt(now time.Time) bool {
	if c.SessionScoped() {
		return false
	}
	return float64(now.Unix()) >= c.Expires
}

// SessionState is the persisted authentication artifact. Origins is kept
// opaque so state files written by other browser tooling round-trip.
type SessionState struct {
	Cookies []Cookie          `json:"cookies"`
	Origins []json.RawMessage `json:"origins"`
}

// Credentials are consumed transiently during login.
type Credentials struct {
	Name       string // stored credential name, empty when supplied directly
	Username   string
	Password   string
	TOTPSecret string
	Active     bool
}

// Complete reports whether both username and password are present.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != ""
}

// LoginStatus describes the persisted session state.
type LoginStatus struct {
	StateFilePath   string `json:"state_file_path" yaml:"state_file_path"`
	StateFileExists bool   `json:"state_file_exists" yaml:"state_file_exists"`
	StateFileSize   int64  `json:"state_file_size" yaml:"state_file_size"`
	CookiesCount    int    `json:"cookies_count" yaml:"cookies_count"`
	Assessment      string `json:"assessment" yaml:"assessment"`
	HasCredentials  bool   `json:"has_credentials" yaml:"has_credentials"`
	LoginRequired   bool   `json:"login_required" yaml:"login_required"`
	Error           string `json:"error,omitempty" yaml:"error,omitempty"`
}
