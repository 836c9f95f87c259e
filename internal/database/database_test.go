package database

import (
	"path/filepath"
	"testing"
)

func TestOpen_Memory(t *testing.T) {
	db, isMemory, err := Open(Memory)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if !isMemory {
		t.Error("isMemory = false, want true")
	}
	if _, err := db.Exec(`CREATE TABLE t (v INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO t VALUES (1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestOpen_FileCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	db, isMemory, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if isMemory {
		t.Error("isMemory = true, want false")
	}
	if _, err := db.Exec(`CREATE TABLE t (v INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := Checkpoint(db); err != nil {
		t.Errorf("Checkpoint() error = %v", err)
	}
}
