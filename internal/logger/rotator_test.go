package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

func TestRotatorRotatesWhenFull(t *testing.T) {
	dir := t.TempDir()
	r := &Rotator{Path: filepath.Join(dir, "kyc.log"), MaxBytes: 100}

	if _, err := r.Write(make([]byte, 60)); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := r.Write(make([]byte, 60)); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected active file and one backup, got %d", len(entries))
	}

	info, err := os.Stat(filepath.Join(dir, "kyc.log"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 60 {
		t.Errorf("expected active file of 60 bytes, got %d", info.Size())
	}
}

func TestRotatorRejectsOversizedWrite(t *testing.T) {
	r := &Rotator{Path: filepath.Join(t.TempDir(), "kyc.log"), MaxBytes: 10}
	defer r.Close()

	if _, err := r.Write(make([]byte, 11)); err == nil {
		t.Fatal("expected an error for a write larger than the limit")
	}
}

func TestRotatorKeepsMaxBackups(t *testing.T) {
	dir := t.TempDir()
	r := &Rotator{Path: filepath.Join(dir, "sandbox.log"), MaxBytes: 1024, MaxBackups: 2}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		old := r.backupPath(base.Add(time.Duration(i) * time.Hour))
		if err := os.WriteFile(old, []byte("old"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	r.now = func() time.Time { return base.Add(10 * time.Hour) }

	if _, err := r.Write([]byte("line\n")); err != nil {
		t.Fatal(err)
	}
	if err := r.Rotate(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	backups, err := r.backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(backups))
	}
	if !backups[1].taken.Equal(base.Add(10 * time.Hour)) {
		t.Errorf("expected newest backup to survive, got %v", backups[1].taken)
	}
	if _, err := os.Stat(r.Path); err != nil {
		t.Errorf("active file missing: %v", err)
	}
}

func TestRotatorDropsExpiredBackups(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	r := &Rotator{Path: filepath.Join(dir, "kyc.log"), MaxAge: 24 * time.Hour, now: func() time.Time { return now }}

	stale := r.backupPath(now.Add(-72 * time.Hour))
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := r.Rotate(); err != nil {
		t.Fatal(err)
	}
	r.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expected stale backup to be removed, stat err=%v", err)
	}
}

func TestRotatorCompressesBackups(t *testing.T) {
	dir := t.TempDir()
	r := &Rotator{Path: filepath.Join(dir, "kyc.log"), MaxBytes: 1024, Compress: true}

	if _, err := r.Write([]byte("some data")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := r.Rotate(); err != nil {
		t.Fatal(err)
	}
	r.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	var gzName string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".gz") {
			gzName = e.Name()
		}
	}
	if gzName == "" {
		t.Fatal("no compressed backup found")
	}

	f, err := os.Open(filepath.Join(dir, gzName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "some data" {
		t.Errorf("compressed content mismatch: got %q", data)
	}
}
