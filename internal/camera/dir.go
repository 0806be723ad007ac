package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"swiftkyc-client/internal/watcher"
)

// frameDebounce is how long a frame file must stay unchanged before it is
// considered complete.
const frameDebounce = 100 * time.Millisecond

// DirDevice is a camera fed by an external capture tool that drops frames
// (JPEG or PNG) into Dir. The newest settled frame is the live image.
type DirDevice struct {
	Dir    string
	Logger *slog.Logger
}

// Open watches Dir for new frames. A missing directory means no camera is
// attached; an unreadable one means access was refused.
func (d *DirDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(d.Dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: no frame directory at %s", ErrUnsupported, d.Dir)
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Dir)
	case err != nil:
		return nil, err
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnsupported, d.Dir)
	}

	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Dir)
		}
		return nil, fmt.Errorf("failed to list %s: %w", d.Dir, err)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &dirStream{want: c, latest: newestFrame(d.Dir, entries)}
	w, err := watcher.NewWatcher(d.Dir, frameDebounce, s.observe, logger)
	if err != nil {
		return nil, err
	}
	s.watcher = w
	return s, nil
}

type dirStream struct {
	want    Constraints
	watcher *watcher.Watcher

	mu     sync.Mutex
	latest string
}

func (s *dirStream) observe(path string) {
	if !isFrame(path) {
		return
	}
	s.mu.Lock()
	s.latest = path
	s.mu.Unlock()
}

func (s *dirStream) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *dirStream) Frame() (image.Image, error) {
	path := s.current()
	if path == "" {
		return nil, errors.New("no frame available yet")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// Resolution reports the size of the newest frame, or the requested size
// before any frame has arrived.
func (s *dirStream) Resolution() (int, int) {
	path := s.current()
	if path == "" {
		return s.want.Width, s.want.Height
	}
	f, err := os.Open(path)
	if err != nil {
		return s.want.Width, s.want.Height
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return s.want.Width, s.want.Height
	}
	return cfg.Width, cfg.Height
}

func (s *dirStream) Close() error {
	return s.watcher.Close()
}

func isFrame(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png":
		return !strings.HasPrefix(filepath.Base(path), ".")
	}
	return false
}

func newestFrame(dir string, entries []os.DirEntry) string {
	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isFrame(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	return best
}
