package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func indexedAt(db *DB, path string) bool {
	_, err := db.GetNoteByPath(path)
	return err == nil
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	m, db, store := testMaintainer(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	vaultRoot := store.Root()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, m, vaultRoot, logger, func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(vaultRoot, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexedAt(db, "new.md")
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new.md" {
				return true
			}
		}
		return false
	}, "expected created:new.md callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	m, db, store := testMaintainer(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	vaultRoot := store.Root()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, m, vaultRoot, logger, nil)
	time.Sleep(100 * time.Millisecond)

	subDir := filepath.Join(vaultRoot, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexedAt(db, "subdir/deep.md")
	}, "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	m, db, store := testMaintainer(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	vaultRoot := store.Root()

	_ = os.WriteFile(filepath.Join(vaultRoot, "del.md"), []byte("# Delete Me"), 0o644)
	if err := m.Rebuild(nil); err != nil {
		t.Fatal(err)
	}
	if !indexedAt(db, "del.md") {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, m, vaultRoot, logger, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(vaultRoot, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexedAt(db, "del.md")
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	m, db, store := testMaintainer(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	vaultRoot := store.Root()

	_ = os.WriteFile(filepath.Join(vaultRoot, "old.md"), []byte("# Rename"), 0o644)
	if err := m.Rebuild(nil); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, m, vaultRoot, logger, nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(vaultRoot, "old.md"), filepath.Join(vaultRoot, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexedAt(db, "old.md") && indexedAt(db, "renamed.md")
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
