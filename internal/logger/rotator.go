package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

var _ io.WriteCloser = (*Rotator)(nil)

const backupTimeFormat = "20060102T150405.000"

// Rotator is an io.WriteCloser over a log file that moves the file aside once
// it would grow past MaxBytes. Rotated files are named
// <name>-<timestamp><ext>, optionally gzipped, and pruned by count and age.
type Rotator struct {
	Path       string
	MaxBytes   int64 // 0 means 10 MiB
	MaxBackups int   // 0 keeps every backup
	MaxAge     time.Duration
	Compress   bool

	mu   sync.Mutex
	file *os.File
	size int64
	bg   sync.WaitGroup
	now  func() time.Time
}

// NewRotator returns a Rotator for path limited to maxSizeMB per file.
func NewRotator(path string, maxSizeMB int) *Rotator {
	return &Rotator{
		Path:       path,
		MaxBytes:   int64(maxSizeMB) * 1024 * 1024,
		MaxBackups: 5,
		MaxAge:     14 * 24 * time.Hour,
		Compress:   true,
	}
}

// Write appends p, rotating first when p would overflow the current file.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(p))
	if n > r.limit() {
		return 0, fmt.Errorf("log write of %d bytes exceeds file limit %d", n, r.limit())
	}
	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.size+n > r.limit() {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	written, err := r.file.Write(p)
	r.size += int64(written)
	return written, err
}

// Rotate forces a rotation regardless of size.
func (r *Rotator) Rotate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotate()
}

// Close closes the active file and waits for pending compression and pruning.
func (r *Rotator) Close() error {
	r.mu.Lock()
	err := r.closeFile()
	r.mu.Unlock()
	r.bg.Wait()
	return err
}

func (r *Rotator) limit() int64 {
	if r.MaxBytes <= 0 {
		return 10 * 1024 * 1024
	}
	return r.MaxBytes
}

func (r *Rotator) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Rotator) closeFile() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.size = 0
	return err
}

func (r *Rotator) open() error {
	if err := os.MkdirAll(filepath.Dir(r.Path), 0755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(r.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) rotate() error {
	if err := r.closeFile(); err != nil {
		return err
	}
	if _, err := os.Stat(r.Path); err == nil {
		backup := r.backupPath(r.clock())
		if err := os.Rename(r.Path, backup); err != nil {
			return fmt.Errorf("failed to rename log file: %w", err)
		}
		r.bg.Add(1)
		go func() {
			defer r.bg.Done()
			r.afterRotate(backup)
		}()
	}
	return r.open()
}

func (r *Rotator) split() (dir, prefix, ext string) {
	dir = filepath.Dir(r.Path)
	base := filepath.Base(r.Path)
	ext = filepath.Ext(base)
	return dir, strings.TrimSuffix(base, ext) + "-", ext
}

func (r *Rotator) backupPath(t time.Time) string {
	dir, prefix, ext := r.split()
	return filepath.Join(dir, prefix+t.Format(backupTimeFormat)+ext)
}

func (r *Rotator) afterRotate(backup string) {
	if r.Compress {
		if err := gzipFile(backup); err == nil {
			os.Remove(backup)
		}
	}
	r.prune()
}

type backupFile struct {
	path  string
	taken time.Time
}

// backups lists rotated files oldest first. The active file never matches
// because it lacks the "-<timestamp>" suffix.
func (r *Rotator) backups() ([]backupFile, error) {
	dir, prefix, ext := r.split()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		stamp := strings.TrimPrefix(name, prefix)
		stamp = strings.TrimSuffix(stamp, ".gz")
		if !strings.HasSuffix(stamp, ext) {
			continue
		}
		t, err := time.Parse(backupTimeFormat, strings.TrimSuffix(stamp, ext))
		if err != nil {
			continue
		}
		out = append(out, backupFile{path: filepath.Join(dir, name), taken: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].taken.Before(out[j].taken) })
	return out, nil
}

func (r *Rotator) prune() {
	if r.MaxBackups <= 0 && r.MaxAge <= 0 {
		return
	}
	files, err := r.backups()
	if err != nil {
		return
	}

	if r.MaxAge > 0 {
		cutoff := r.clock().Add(-r.MaxAge)
		kept := files[:0]
		for _, f := range files {
			if f.taken.Before(cutoff) {
				os.Remove(f.path)
				continue
			}
			kept = append(kept, f)
		}
		files = kept
	}

	if r.MaxBackups > 0 && len(files) > r.MaxBackups {
		for _, f := range files[:len(files)-r.MaxBackups] {
			os.Remove(f.path)
		}
	}
}

func gzipFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
