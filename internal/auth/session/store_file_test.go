package session

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	want := State{
		AccessToken:  "access",
		RefreshToken: "refresh",
		User:         User{ID: "u1"},
		DeviceID:     "01J0000000000000000000DEAD",
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("state: got %+v, want %+v", got, want)
	}
}

func TestFileStoreMissingFileIsEmptyState(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if got != (State{}) {
		t.Fatalf("state: got %+v, want zero", got)
	}
}

func TestFileStoreCorruptFileErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if _, err := NewFileStore(path).Load(); err == nil {
		t.Fatal("Load of corrupt file: expected error")
	}
}

func TestFileStoreClearIdempotent(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	if err := store.Save(State{DeviceID: "d1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load after Clear: %v", err)
	}
	if got != (State{}) {
		t.Fatalf("state after Clear: got %+v, want zero", got)
	}
}

func TestFileStorePermissions(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}

	path := filepath.Join(t.TempDir(), "session.json")
	if err := NewFileStore(path).Save(State{DeviceID: "d1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("state file mode: got %o, want 600", perm)
	}
}
