package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justmadeid/social-services/internal/database"
	"github.com/justmadeid/social-services/internal/logging"
)

func newTestService(t *testing.T, secret string) (*Service, *SQLiteStore) {
	t.Helper()
	db, isMemory, err := database.Open(database.Memory)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db, isMemory, logging.Discard())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	return NewService(store, secret, logging.Discard()), store
}

func TestService_AddAndGetByName(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, "service-secret")

	if _, err := svc.Add(ctx, AddInput{Name: "main", Username: "alice", Password: "pw", TOTPSecret: "JBSWY3DPEHPK3PXP", Active: true}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	raw, err := store.GetByName(ctx, "main")
	if err != nil {
		t.Fatalf("store.GetByName() error = %v", err)
	}
	if raw.EncryptedPassword == "pw" || raw.EncryptedPassword == "" {
		t.Errorf("EncryptedPassword = %q, want sealed value", raw.EncryptedPassword)
	}

	creds, err := svc.GetByName(ctx, "main")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if creds.Username != "alice" || creds.Password != "pw" || creds.TOTPSecret != "JBSWY3DPEHPK3PXP" {
		t.Errorf("GetByName() = %+v, want decrypted alice/pw/totp", creds)
	}
	if !creds.Active || creds.Name != "main" {
		t.Errorf("GetByName() Name/Active = %q/%v, want main/true", creds.Name, creds.Active)
	}
}

func TestService_AddValidation(t *testing.T) {
	svc, _ := newTestService(t, "secret")
	if _, err := svc.Add(context.Background(), AddInput{Name: "x", Username: "u"}); err == nil {
		t.Error("Add() without password error = nil")
	}
}

func TestService_DuplicateName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "secret")

	in := AddInput{Name: "dup", Username: "u", Password: "p", Active: true}
	if _, err := svc.Add(ctx, in); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Add(ctx, in); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("second Add() error = %v, want ErrDuplicateName", err)
	}
}

func TestService_GetActiveCredentials_Order(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "secret")

	for _, in := range []AddInput{
		{Name: "first", Username: "a", Password: "1", Active: true},
		{Name: "inactive", Username: "b", Password: "2", Active: false},
		{Name: "second", Username: "c", Password: "3", Active: true},
	} {
		if _, err := svc.Add(ctx, in); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	active, err := svc.GetActiveCredentials(ctx)
	if err != nil {
		t.Fatalf("GetActiveCredentials() error = %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("len(active) = %d, want 2", len(active))
	}
	if active[0].Name != "first" || active[1].Name != "second" {
		t.Errorf("active order = %s,%s, want first,second", active[0].Name, active[1].Name)
	}
}

func TestService_WrongSecretSkipsRecords(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, "right")
	if _, err := svc.Add(ctx, AddInput{Name: "n", Username: "u", Password: "p", Active: true}); err != nil {
		t.Fatal(err)
	}

	other := NewService(store, "wrong", logging.Discard())
	active, err := other.GetActiveCredentials(ctx)
	if err != nil {
		t.Fatalf("GetActiveCredentials() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("len(active) = %d, want 0 with wrong secret", len(active))
	}
	if _, err := other.GetByName(ctx, "n"); err == nil {
		t.Error("GetByName() with wrong secret error = nil")
	}
}

func TestStore_RecordLoginAttempt(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, "secret")
	if _, err := svc.Add(ctx, AddInput{Name: "n", Username: "u", Password: "p", Active: true}); err != nil {
		t.Fatal(err)
	}

	if err := svc.RecordLoginAttempt(ctx, "n", true); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordLoginAttempt(ctx, "n", false); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordLoginAttempt(ctx, "n", false); err != nil {
		t.Fatal(err)
	}

	c, err := store.GetByName(ctx, "n")
	if err != nil {
		t.Fatal(err)
	}
	if c.LoginSuccessCount != 1 {
		t.Errorf("LoginSuccessCount = %d, want 1", c.LoginSuccessCount)
	}
	if c.LoginFailureCount != 2 {
		t.Errorf("LoginFailureCount = %d, want 2", c.LoginFailureCount)
	}
	if c.LastLoginAttempt == nil {
		t.Error("LastLoginAttempt = nil, want set")
	}

	if err := svc.RecordLoginAttempt(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("RecordLoginAttempt(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_SetActiveAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, "secret")
	if _, err := svc.Add(ctx, AddInput{Name: "n", Username: "u", Password: "p", Active: true}); err != nil {
		t.Fatal(err)
	}

	if err := svc.SetActive(ctx, "n", false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	active, _ := svc.GetActiveCredentials(ctx)
	if len(active) != 0 {
		t.Errorf("len(active) after deactivate = %d, want 0", len(active))
	}

	if err := svc.Delete(ctx, "n"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.GetByName(ctx, "n"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName() after delete error = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, "n"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
