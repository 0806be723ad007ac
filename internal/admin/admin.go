package admin

// Package admin is the reviewer console: a filterable session list, a
// session detail with its documents, and approve/reject actions.

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

	"golang.org/x/sync/errgroup"
)

// EmptyMessage is the single row shown when no session matches.
const EmptyMessage = "No sessions matched your filters. Try clearing or broadening the filters to view more sessions."

const placeholder = "—"

var ErrNoSession = errors.New("no session selected")

// Gateway is the part of the verification service the console calls.
type Gateway interface {
	ListSessions(ctx context.Context, f api.SessionFilter) ([]api.SessionSummary, error)
	GetSessionDetail(ctx context.Context, sessionID string) (*api.SessionDetail, error)
	Approve(ctx context.Context, sessionID string) error
	Reject(ctx context.Context, sessionID string) error
}

// Filter is what the reviewer picked. Date selects a single creation day.
type Filter struct {
	Status  api.Status
	DocType api.DocType
	Date    string // YYYY-MM-DD
}

// Query turns the picked values into list parameters. A single date bounds
// the range on both sides.
func (f Filter) Query() api.SessionFilter {
	return api.SessionFilter{
		Status:      f.Status,
		DocType:     f.DocType,
		CreatedFrom: f.Date,
		CreatedTo:   f.Date,
	}
}

// Row is one formatted list entry.
type Row struct {
	SessionID   string
	CustomerID  string
	Status      string
	CurrentStep string
	DocType     string
	CreatedAt   string
	UpdatedAt   string
}

// ListView is either rows or the empty state, never both.
type ListView struct {
	Rows  []Row
	Empty bool
}

// DocumentRow is one formatted document entry.
type DocumentRow struct {
	DocumentID string
	DocType    string
	DocNumber  string
	StorageURL string
	Valid      string
	Quality    string
	CreatedAt  string
}

// DetailView is the formatted session detail.
type DetailView struct {
	SessionID     string
	CustomerID    string
	Status        string
	CurrentStep   string
	FailureReason string
	SelfieURL     string
	FaceScore     string
	RetriesSelect string
	RetriesScan   string
	RetriesUpload string
	RetriesSelfie string
	Documents     []DocumentRow
}

// Console holds the filter, the last list and the loaded session.
type Console struct {
	gw     Gateway
	bar    *notify.Bar
	logger *slog.Logger

	mu       sync.Mutex
	filter   Filter
	list     ListView
	detail   *DetailView
	selected string
}

// New creates a console with no filters applied.
func New(gw Gateway, bar *notify.Bar, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{gw: gw, bar: bar, logger: logger}
}

// SetFilter replaces the filter without reloading.
func (c *Console) SetFilter(f Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// Filter returns the current filter.
func (c *Console) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Selected returns the id of the loaded session, if any.
func (c *Console) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Detail returns the loaded session as last fetched.
func (c *Console) Detail() (DetailView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detail == nil {
		return DetailView{}, false
	}
	return *c.detail, true
}

// Rows returns the list as last fetched.
func (c *Console) Rows() ListView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list
}

// List fetches sessions matching the current filter. On error the previous
// list is kept and the message goes to the bar.
func (c *Console) List(ctx context.Context) (ListView, error) {
	f := c.Filter()
	sessions, err := c.gw.ListSessions(ctx, f.Query())
	if err != nil {
		return ListView{}, c.fail("list sessions", err)
	}

	v := ListView{Empty: len(sessions) == 0}
	for _, s := range sessions {
		v.Rows = append(v.Rows, rowOf(s))
	}

	c.mu.Lock()
	c.list = v
	c.mu.Unlock()
	return v, nil
}

// ResetFilters clears every filter and reloads the list.
func (c *Console) ResetFilters(ctx context.Context) (ListView, error) {
	c.SetFilter(Filter{})
	return c.List(ctx)
}

// Show loads one session and makes it the target of Approve and Reject.
func (c *Console) Show(ctx context.Context, sessionID string) (DetailView, error) {
	d, err := c.gw.GetSessionDetail(ctx, sessionID)
	if err != nil {
		return DetailView{}, c.fail("load session", err)
	}

	v := detailOf(d, sessionID)
	c.mu.Lock()
	c.detail = &v
	c.selected = v.SessionID
	c.mu.Unlock()
	return v, nil
}

// Approve approves the loaded session, then reloads its detail and the list.
func (c *Console) Approve(ctx context.Context) error {
	return c.decide(ctx, "approving", "KYC session approved.", c.gw.Approve)
}

// Reject rejects the loaded session, then reloads its detail and the list.
func (c *Console) Reject(ctx context.Context) error {
	return c.decide(ctx, "rejecting", "KYC session rejected.", c.gw.Reject)
}

func (c *Console) decide(ctx context.Context, verb, notice string, call func(context.Context, string) error) error {
	id := c.Selected()
	if id == "" {
		c.bar.Error(fmt.Sprintf("Select a session before %s.", verb))
		return ErrNoSession
	}
	if err := call(ctx, id); err != nil {
		return c.fail(verb+" session", err)
	}
	c.bar.Success(notice)
	c.logger.Info("Session decided", "session_id", id, "action", verb)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.Show(gctx, id)
		return err
	})
	g.Go(func() error {
		_, err := c.List(gctx)
		return err
	})
	return g.Wait()
}

func (c *Console) fail(op string, err error) error {
	var apiErr *api.Error
	msg := api.FallbackMessage
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}
	c.bar.Error(msg)
	c.logger.Warn("Admin request failed", "op", op, "error", err)
	return fmt.Errorf("failed to %s: %w", op, err)
}

func rowOf(s api.SessionSummary) Row {
	r := Row{
		SessionID:   s.ID,
		CustomerID:  orPlaceholder(s.CustomerID),
		Status:      orPlaceholder(string(s.Status)),
		CurrentStep: orPlaceholder(string(s.CurrentStep)),
		DocType:     placeholder,
		CreatedAt:   timeOrPlaceholder(s.CreatedAt),
		UpdatedAt:   timeOrPlaceholder(s.UpdatedAt),
	}
	if s.PrimaryDocType != nil && *s.PrimaryDocType != "" {
		r.DocType = string(*s.PrimaryDocType)
	}
	return r
}

func detailOf(d *api.SessionDetail, fallbackID string) DetailView {
	v := DetailView{
		SessionID:     d.ID,
		CustomerID:    orPlaceholder(d.CustomerID),
		Status:        orPlaceholder(string(d.Status)),
		CurrentStep:   orPlaceholder(string(d.CurrentStep)),
		FailureReason: strOrPlaceholder(d.FailureReason),
		SelfieURL:     strOrPlaceholder(d.SelfieURL),
		FaceScore:     scoreOrPlaceholder(d.FaceMatchScore),
		RetriesSelect: strconv.Itoa(d.Select),
		RetriesScan:   strconv.Itoa(d.Scan),
		RetriesUpload: strconv.Itoa(d.Upload),
		RetriesSelfie: strconv.Itoa(d.Selfie),
	}
	if v.SessionID == "" {
		v.SessionID = fallbackID
	}
	for _, doc := range d.Documents {
		v.Documents = append(v.Documents, DocumentRow{
			DocumentID: doc.ID,
			DocType:    orPlaceholder(string(doc.DocType)),
			DocNumber:  strOrPlaceholder(doc.DocNumber),
			StorageURL: strOrPlaceholder(doc.StorageURL),
			Valid:      validity(doc.IsValid),
			Quality:    scoreOrPlaceholder(doc.QualityScore),
			CreatedAt:  timeOrPlaceholder(doc.CreatedAt),
		})
	}
	return v
}

func validity(b *bool) string {
	switch {
	case b == nil:
		return placeholder
	case *b:
		return "Yes"
	}
	return "No"
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}

func strOrPlaceholder(s *string) string {
	if s == nil {
		return placeholder
	}
	return orPlaceholder(*s)
}

func scoreOrPlaceholder(f *float64) string {
	if f == nil {
		return placeholder
	}
	return fmt.Sprintf("%.2f", *f)
}

func timeOrPlaceholder(t *time.Time) string {
	if t == nil || t.IsZero() {
		return placeholder
	}
	return t.Format(time.RFC3339)
}
