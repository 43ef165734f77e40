package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// startWatcher runs w on dir and returns a channel of handled paths.
func startWatcher(t *testing.T, dir string, opts ...Option) <-chan string {
	t.Helper()
	handled := make(chan string, 16)
	w := New(func(_ context.Context, path string) error {
		handled <- path
		return nil
	}, append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, dir) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not stop after cancel")
		}
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("Run exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher not ready")
	}
	return handled
}

func expectPath(t *testing.T, handled <-chan string, want string) {
	t.Helper()
	select {
	case got := <-handled:
		if got != want {
			t.Fatalf("handled %s, want %s", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func expectNothing(t *testing.T, handled <-chan string, within time.Duration) {
	t.Helper()
	select {
	case got := <-handled:
		t.Fatalf("unexpected handler call for %s", got)
	case <-time.After(within):
	}
}

func TestDebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	handled := startWatcher(t, dir, WithDebounce(200*time.Millisecond), WithMatcher(func(rel string) bool {
		return strings.HasSuffix(rel, ".txt")
	}))

	path := filepath.Join(dir, "tool1.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".tool1.txt.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	expectPath(t, handled, path)
	expectNothing(t, handled, 300*time.Millisecond)
}

func TestWatchesNewSubdirectories(t *testing.T) {
	dir := t.TempDir()
	handled := startWatcher(t, dir)

	sub := filepath.Join(dir, "fab2")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)
	path := filepath.Join(sub, "tool2.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectPath(t, handled, path)
}

func TestExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	handled := startWatcher(t, dir, WithExisting())
	expectPath(t, handled, path)
}

func TestRunMissingDir(t *testing.T) {
	w := New(func(context.Context, string) error { return nil })
	if err := w.Run(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
