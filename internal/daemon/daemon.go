package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"swiftkyc-client/internal/config"
	"swiftkyc-client/internal/queue"
	"swiftkyc-client/internal/sandbox"
	"swiftkyc-client/internal/store"
	"swiftkyc-client/internal/sweeper"
	"swiftkyc-client/internal/worker"

	"github.com/kardianos/service"
	"golang.org/x/sync/errgroup"
)

// Daemon implements the service.Interface required by kardianos/service.
// It runs the sandbox verification service: HTTP API, job worker and the
// idle-session sweeper.
type Daemon struct {
	Logger *slog.Logger
	Cfg    *config.Config

	store   *store.Store
	queue   queue.Queue
	worker  *worker.Worker
	sweeper *sweeper.Sweeper
	server  *http.Server
	addr    net.Addr

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Start opens the store and queue, binds the listener and starts serving.
// It returns once the listener is bound.
func (d *Daemon) Start(s service.Service) error {
	if d.Cfg == nil {
		return errors.New("daemon started without config")
	}
	sb := d.Cfg.Sandbox

	if err := os.MkdirAll(filepath.Dir(sb.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(sb.UploadDir, 0755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	var err error
	d.store, err = store.NewStore(sb.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init store at %s: %w", sb.DBPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	if sb.RedisAddr != "" {
		rq, err := queue.NewRedis(ctx, sb.RedisAddr)
		if err != nil {
			d.cleanup()
			return fmt.Errorf("failed to connect job queue: %w", err)
		}
		d.queue = rq
	} else {
		d.queue = queue.NewMemory(256)
	}

	ln, err := net.Listen("tcp", sb.ListenAddr)
	if err != nil {
		d.cleanup()
		return fmt.Errorf("failed to listen on %s: %w", sb.ListenAddr, err)
	}
	d.addr = ln.Addr()

	srv := sandbox.NewServer(sandbox.Options{
		Store:     d.store,
		Queue:     d.queue,
		UploadDir: sb.UploadDir,
		RateLimit: sb.RateLimitPerMinute,
		Logger:    d.Logger,
	})
	d.server = &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

	d.worker = worker.New(d.store, d.queue, sb.MaxRetries,
		config.Duration(sb.WorkerInterval, time.Second), d.Logger)
	d.worker.Start(ctx)

	d.sweeper = sweeper.NewSweeper(d.store, sb.UploadDir,
		config.Duration(sb.AbandonAfter, 30*time.Minute),
		config.Duration(sb.SweepInterval, time.Minute), d.Logger)
	d.sweeper.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return d.server.Shutdown(shutdownCtx)
	})
	d.group = g

	queueKind := "memory"
	if sb.RedisAddr != "" {
		queueKind = "redis"
	}
	d.Logger.Info("SwiftKYC sandbox started", "addr", d.addr.String(), "queue", queueKind,
		"db", sb.DBPath, "uploads", sb.UploadDir)
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (d *Daemon) Addr() net.Addr {
	return d.addr
}

// Stop shuts the HTTP server down and stops the background loops.
func (d *Daemon) Stop(s service.Service) error {
	d.Logger.Info("Stopping SwiftKYC sandbox...")
	var err error
	if d.cancel != nil {
		d.cancel()
	}
	if d.group != nil {
		err = d.group.Wait()
		d.group = nil
	}
	if d.sweeper != nil {
		d.sweeper.Stop()
		d.sweeper = nil
	}
	if d.worker != nil {
		d.worker.Stop()
		d.worker = nil
	}
	d.cleanup()
	return err
}

func (d *Daemon) cleanup() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.queue != nil {
		d.queue.Close()
		d.queue = nil
	}
	if d.store != nil {
		d.store.Close()
		d.store = nil
	}
}
