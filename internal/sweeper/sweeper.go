package sweeper

// Package sweeper abandons sandbox sessions nobody has touched for a while
// and deletes the images uploaded for them.

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"swiftkyc-client/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sessionsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "swiftkyc_sandbox_sessions_abandoned_total",
	Help: "Sessions marked ABANDONED after inactivity.",
})

type Sweeper struct {
	store     *store.Store
	uploadDir string
	idle      time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	stop chan struct{}
	done chan struct{}
}

// NewSweeper creates a sweeper that abandons sessions idle for longer than
// idle, checking every interval. Upload folders live under uploadDir.
func NewSweeper(s *store.Store, uploadDir string, idle, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     s,
		uploadDir: uploadDir,
		idle:      idle,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *Sweeper) Start() {
	ticker := time.NewTicker(p.interval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Sweep(context.Background())
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *Sweeper) Stop() {
	close(p.stop)
	<-p.done
}

// Sweep runs one pass and returns the abandoned session ids.
func (p *Sweeper) Sweep(ctx context.Context) []string {
	ids, err := p.store.AbandonIdle(ctx, p.now().Add(-p.idle))
	if err != nil {
		p.logger.Error("Sweeper: failed to abandon idle sessions", "error", err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}
	sessionsAbandoned.Add(float64(len(ids)))

	for _, id := range ids {
		dir := filepath.Join(p.uploadDir, id)
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("Sweeper: failed to remove uploads", "session_id", id, "path", dir, "error", err)
			continue
		}
		p.logger.Info("Abandoned idle session", "session_id", id)
	}
	return ids
}
