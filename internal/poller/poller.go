package poller

// Package poller refreshes a session's status on a fixed interval until the
// service reports a final outcome.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/notify"
)

// DefaultInterval is the refresh cadence when none is configured.
const DefaultInterval = 5 * time.Second

const placeholder = "—"

// View is the status panel, rendered verbatim from the last response.
type View struct {
	SessionID     string
	CurrentStep   string
	Status        api.Status
	StatusText    string
	FailureReason string
	RetriesDoc    string
	RetriesSelfie string
	FaceScore     string
	// Assisted shows the assisted-KYC section; only a rejection offers it.
	Assisted bool
}

// ViewOf formats s. fallbackID is shown when the response omits the id.
func ViewOf(s *api.Session, fallbackID string) View {
	v := View{
		SessionID:     s.ID,
		CurrentStep:   orPlaceholder(string(s.CurrentStep)),
		Status:        s.Status,
		StatusText:    orPlaceholder(string(s.Status)),
		FailureReason: "None",
		RetriesDoc:    strconv.Itoa(s.Scan),
		RetriesSelfie: strconv.Itoa(s.Selfie),
		FaceScore:     placeholder,
		Assisted:      s.Status == api.StatusRejected,
	}
	if v.SessionID == "" {
		v.SessionID = fallbackID
	}
	if s.FailureReason != nil && *s.FailureReason != "" {
		v.FailureReason = *s.FailureReason
	}
	if s.FaceMatchScore != nil {
		v.FaceScore = fmt.Sprintf("%.2f", *s.FaceMatchScore)
	}
	return v
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

// Fetcher reads the current session projection.
type Fetcher interface {
	GetSession(ctx context.Context, sessionID string) (*api.Session, error)
}

var ErrNoSession = errors.New("no session to refresh")

// Poller runs at most one refresh loop. Publish is called from the loop
// goroutine and must not call Stop or Start.
type Poller struct {
	fetch    Fetcher
	bar      *notify.Bar
	interval time.Duration
	publish  func(View)
	logger   *slog.Logger

	// startMu serialises Start and Stop so only one loop is ever installed.
	startMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
}

// New creates an idle poller.
func New(f Fetcher, bar *notify.Bar, interval time.Duration, publish func(View), logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if publish == nil {
		publish = func(View) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetch: f, bar: bar, interval: interval, publish: publish, logger: logger}
}

// Start stops any running loop, fetches once right away and then on every
// tick until the status is final, a fetch fails, or ctx ends.
func (p *Poller) Start(ctx context.Context, sessionID string) {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	p.stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.sessionID = sessionID
	p.cancel = cancel
	p.done = done
	p.err = nil
	p.mu.Unlock()

	go p.loop(ctx, sessionID, done)
}

// Stop cancels the running loop and waits for it to exit. It is safe to
// call when nothing is running.
func (p *Poller) Stop() {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	p.stop()
}

func (p *Poller) stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether a loop is still polling.
func (p *Poller) Running() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Done is closed when the current loop exits. It is nil when no loop was
// started.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Err returns the fetch failure that ended the last loop, or nil when it
// ended on a final status or was stopped.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Refresh fetches once outside the loop. A final status also ends the loop.
func (p *Poller) Refresh(ctx context.Context) (View, error) {
	p.mu.Lock()
	id := p.sessionID
	p.mu.Unlock()
	if id == "" {
		return View{}, ErrNoSession
	}

	v, err := p.fetchView(ctx, id)
	if err != nil {
		p.Stop()
		return View{}, err
	}
	if v.Status.Terminal() {
		p.Stop()
	}
	return v, nil
}

func (p *Poller) loop(ctx context.Context, sessionID string, done chan struct{}) {
	defer close(done)

	if !p.tick(ctx, sessionID) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.tick(ctx, sessionID) {
				return
			}
		}
	}
}

// tick reports whether polling should continue.
func (p *Poller) tick(ctx context.Context, sessionID string) bool {
	v, err := p.fetchView(ctx, sessionID)
	if err != nil {
		if ctx.Err() == nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
		}
		return false
	}
	if v.Status.Terminal() {
		p.logger.Info("Session reached final status", "session_id", sessionID, "status", v.Status)
		return false
	}
	return true
}

func (p *Poller) fetchView(ctx context.Context, sessionID string) (View, error) {
	s, err := p.fetch.GetSession(ctx, sessionID)
	if err != nil {
		// Cancellation is a Stop, not a failure worth showing.
		if ctx.Err() != nil {
			return View{}, ctx.Err()
		}
		var apiErr *api.Error
		msg := api.FallbackMessage
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		p.bar.Error(msg)
		p.logger.Warn("Status fetch failed", "session_id", sessionID, "error", err)
		return View{}, fmt.Errorf("failed to fetch status: %w", err)
	}

	v := ViewOf(s, sessionID)
	p.publish(v)
	return v, nil
}
