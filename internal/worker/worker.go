package worker

// Package worker runs the sandbox verification jobs: document quality checks
// and selfie face matches, moving sessions forward or counting retries.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/queue"
	"swiftkyc-client/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swiftkyc_sandbox_jobs_total",
	Help: "Verification jobs processed by kind and outcome.",
}, []string{"kind", "outcome"})

// errSkip aborts a session update without writing.
var errSkip = errors.New("skip")

// Worker pulls jobs off the queue until stopped.
type Worker struct {
	store      *store.Store
	queue      queue.Queue
	maxRetries int
	poll       time.Duration
	logger     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a worker. poll bounds how long one dequeue waits.
func New(st *store.Store, q queue.Queue, maxRetries int, poll time.Duration, logger *slog.Logger) *Worker {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{store: st, queue: q, maxRetries: maxRetries, poll: poll, logger: logger}
}

// Start runs the job loop in the background.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx)
	w.logger.Info("Worker started", "poll", w.poll, "max_retries", w.maxRetries)
}

// Stop ends the loop and waits for the job in hand to finish.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		job, ok, err := w.queue.Dequeue(ctx, w.poll)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("Worker: dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.poll):
			}
			continue
		}
		if !ok {
			continue
		}
		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("Worker: job failed", "kind", job.Kind, "id", job.ID, "error", err)
		}
	}
}

// Process runs one job to completion.
func (w *Worker) Process(ctx context.Context, job queue.Job) error {
	var err error
	switch job.Kind {
	case queue.KindValidateDocument:
		err = w.validateDocument(ctx, job.ID)
	case queue.KindValidateSelfie:
		err = w.validateSelfie(ctx, job.ID)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	jobsProcessed.WithLabelValues(string(job.Kind), outcome).Inc()
	return err
}

func (w *Worker) validateDocument(ctx context.Context, documentID string) error {
	doc, sessionID, err := w.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Warn("Worker: document vanished", "document_id", documentID)
		return nil
	}
	if err != nil {
		return err
	}

	if doc.StorageURL == nil {
		return w.fail(ctx, sessionID, reasonNoDocumentImage)
	}
	info, err := os.Stat(*doc.StorageURL)
	if err != nil {
		w.logger.Warn("Worker: cannot read document image", "document_id", documentID, "error", err)
		return w.fail(ctx, sessionID, reasonUnreadable)
	}

	score, valid := documentQuality(info.Size())
	doc.QualityScore = &score
	doc.IsValid = &valid
	if err := w.store.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	sess, err := w.store.UpdateSession(ctx, sessionID, func(s *api.Session) error {
		applyDocumentResult(s, valid, w.maxRetries)
		return nil
	})
	if err != nil {
		return err
	}
	w.logger.Info("Document checked", "session_id", sessionID, "document_id", documentID,
		"quality", score, "valid", valid, "status", sess.Status, "step", sess.CurrentStep)
	return nil
}

func (w *Worker) validateSelfie(ctx context.Context, sessionID string) error {
	// The document is read outside the update; the store runs one
	// transaction at a time.
	doc, err := w.store.LatestDocument(ctx, sessionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	var (
		score float64
		match bool
	)
	sess, err := w.store.UpdateSession(ctx, sessionID, func(s *api.Session) error {
		if s.CurrentStep != api.StepKYCCheck || s.SelfieURL == nil {
			return errSkip
		}
		if doc == nil || doc.StorageURL == nil {
			reason := reasonNoFaceDocument
			s.FailureReason = &reason
			s.CurrentStep = api.StepSelfie
			return nil
		}

		info, err := os.Stat(*s.SelfieURL)
		if err != nil {
			return fmt.Errorf("failed to read selfie: %w", err)
		}
		score, match = faceMatch(info.Size())
		applySelfieResult(s, score, match, w.maxRetries)
		return nil
	})
	switch {
	case errors.Is(err, errSkip):
		w.logger.Debug("Worker: selfie job not applicable", "session_id", sessionID)
		return nil
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	w.logger.Info("Selfie checked", "session_id", sessionID, "score", score, "match", match,
		"status", sess.Status, "step", sess.CurrentStep)
	return nil
}

func (w *Worker) fail(ctx context.Context, sessionID, reason string) error {
	_, err := w.store.UpdateSession(ctx, sessionID, func(s *api.Session) error {
		s.FailureReason = &reason
		return nil
	})
	return err
}
