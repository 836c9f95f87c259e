package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/justmadeid/social-services/internal/crypto"
	"github.com/justmadeid/social-services/internal/models"
)

// AddInput describes a credential to store.
type AddInput struct {
	Name       string
	Username   string
	Password   string
	TOTPSecret string
	Active     bool
}

// Service seals and unseals credentials around the SQLite store.
type Service struct {
	store  *SQLiteStore
	secret string
	logger *slog.Logger
}

// NewService creates a credential service. secret is the service-wide
// ENCRYPTION_KEY from which per-credential keys are derived.
func NewService(store *SQLiteStore, secret string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, secret: secret, logger: logger.With("component", "credentials")}
}

// Add validates, seals and stores a credential.
func (s *Service) Add(ctx context.Context, in AddInput) (*Credential, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	if in.Name == "" || in.Username == "" || in.Password == "" {
		return nil, errors.New("name, username and password are required")
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	enc, err := crypto.ForSalt(s.secret, salt)
	if err != nil {
		return nil, err
	}

	sealedPassword, err := enc.Encrypt(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to seal password: %w", err)
	}
	sealedTOTP, err := enc.Encrypt(in.TOTPSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to seal TOTP secret: %w", err)
	}

	c := &Credential{
		Name:              in.Name,
		Username:          in.Username,
		EncryptedPassword: sealedPassword,
		EncryptedTOTP:     sealedTOTP,
		Salt:              salt,
		IsActive:          in.Active,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns stored credentials without decrypting them.
func (s *Service) List(ctx context.Context) ([]*Credential, error) {
	return s.store.List(ctx)
}

// SetActive toggles a credential.
func (s *Service) SetActive(ctx context.Context, name string, active bool) error {
	return s.store.SetActive(ctx, name, active)
}

// Delete removes a credential.
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.store.Delete(ctx, name)
}

// GetByName returns the decrypted credential with the given name.
func (s *Service) GetByName(ctx context.Context, name string) (models.Credentials, error) {
	c, err := s.store.GetByName(ctx, name)
	if err != nil {
		return models.Credentials{}, err
	}
	return s.open(c)
}

// GetActiveCredentials returns decrypted active credentials, oldest first.
// Records that fail to decrypt are skipped.
func (s *Service) GetActiveCredentials(ctx context.Context) ([]models.Credentials, error) {
	stored, err := s.store.GetActiveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.Credentials, 0, len(stored))
	for _, c := range stored {
		creds, err := s.open(c)
		if err != nil {
			s.logger.Warn("skipping undecryptable credential", "name", c.Name, "error", err)
			continue
		}
		out = append(out, creds)
	}
	return out, nil
}

// RecordLoginAttempt updates the login counters of a stored credential.
func (s *Service) RecordLoginAttempt(ctx context.Context, name string, success bool) error {
	return s.store.RecordLoginAttempt(ctx, name, success)
}

func (s *Service) open(c *Credential) (models.Credentials, error) {
	enc, err := crypto.ForSalt(s.secret, c.Salt)
	if err != nil {
		return models.Credentials{}, err
	}
	password, err := enc.Decrypt(c.EncryptedPassword)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to decrypt credential %q: %w", c.Name, err)
	}
	totp, err := enc.Decrypt(c.EncryptedTOTP)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("failed to decrypt TOTP for %q: %w", c.Name, err)
	}
	return models.Credentials{
		Name:       c.Name,
		Username:   c.Username,
		Password:   password,
		TOTPSecret: totp,
		Active:     c.IsActive,
	}, nil
}
