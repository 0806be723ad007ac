package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestWatcherDebounce(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "watcher_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	var callbackCount int32
	callbackCh := make(chan string, 10)

	onFile := func(path string) {
		atomic.AddInt32(&callbackCount, 1)
		callbackCh <- path
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	debounce := 200 * time.Millisecond

	w, err := NewWatcher(tmpDir, debounce, onFile, logger)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer w.Close()

	frame := filepath.Join(tmpDir, "frame-0001.png")

	// Slow write: Create + Write + Write, each gap shorter than the debounce.
	f, err := os.Create(frame)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("part1")
	f.Sync()
	time.Sleep(50 * time.Millisecond)
	f.WriteString("part2")
	f.Sync()
	time.Sleep(50 * time.Millisecond)
	f.WriteString("part3")
	f.Sync()
	f.Close()

	select {
	case path := <-callbackCh:
		if path != frame {
			t.Errorf("Expected path %s, got %s", frame, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for callback")
	}

	time.Sleep(300 * time.Millisecond)
	if count := atomic.LoadInt32(&callbackCount); count != 1 {
		t.Errorf("Expected callback count 1, got %d. Debounce might not be working.", count)
	}
}

func TestWatcherIgnoresHiddenFiles(t *testing.T) {
	tmpDir := t.TempDir()
	fired := make(chan string, 1)

	w, err := NewWatcher(tmpDir, 20*time.Millisecond, func(p string) { fired <- p }, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(tmpDir, ".frame.tmp"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-fired:
		t.Fatalf("hidden file reported: %s", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherCloseStopsGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := NewWatcher(t.TempDir(), time.Second, func(string) {}, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	// Second close is a no-op.
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), time.Second, func(string) {}, slog.New(slog.DiscardHandler))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
