package wizard

// Package wizard implements the seven-step onboarding flow: navigation,
// guarded step transitions and the controllers behind every "continue".

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/artifact"
	"swiftkyc-client/internal/notify"
)

var (
	ErrBusy      = errors.New("a step is already being submitted")
	ErrNoSession = errors.New("no kyc session")
)

const (
	noSessionMessage = "Please create a KYC session first."
	underageMessage = "You must be at least 18 years old to complete digital KYC. Please contact your bank for alternative options."

	// VideoKYCMessage confirms an assisted (Video KYC) request.
	VideoKYCMessage = "Your request for Video KYC has been received. A verification officer will initiate a video call within the next 5 minutes. Please ensure you are in a well-lit area."
)

// Gateway is the part of the verification service the wizard calls.
type Gateway interface {
	CreateSession(ctx context.Context, mobile string) (*api.Session, error)
	SelectDocument(ctx context.Context, sessionID string, docType api.DocType) error
	EnterDocNumber(ctx context.Context, sessionID, number string) error
	ValidateDocument(ctx context.Context, sessionID string, a *artifact.Artifact) error
	UploadSelfie(ctx context.Context, sessionID string, a *artifact.Artifact) error
}

// StatusPoller watches a session once the selfie is in.
type StatusPoller interface {
	Start(ctx context.Context, sessionID string)
	Stop()
}

// Camera is released whenever the selfie step is left.
type Camera interface {
	Close()
}

// Options wires a Wizard. Gateway, Bar and Navigator are required.
type Options struct {
	Gateway   Gateway
	Bar       *notify.Bar
	Navigator *Navigator
	Poller    StatusPoller
	Camera    Camera
	Logger    *slog.Logger
	Now       func() time.Time
}

// Wizard runs the step controllers against one State. At most one
// transition is in flight at a time.
type Wizard struct {
	gw     Gateway
	bar    *notify.Bar
	nav    *Navigator
	poller StatusPoller
	camera Camera
	logger *slog.Logger
	now    func() time.Time

	busy atomic.Bool

	mu    sync.Mutex
	state *State
}

// New creates a wizard positioned at step 1.
func New(opts Options) *Wizard {
	w := &Wizard{
		gw:     opts.Gateway,
		bar:    opts.Bar,
		nav:    opts.Navigator,
		poller: opts.Poller,
		camera: opts.Camera,
		logger: opts.Logger,
		now:    opts.Now,
		state:  newState(),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.camera != nil {
		w.nav.OnLeave(StepSelfie, w.camera.Close)
	}
	return w
}

// Navigator returns the navigator driving the progress header.
func (w *Wizard) Navigator() *Navigator { return w.nav }

// SelfieSlot holds the pending selfie. The camera pipeline writes captures
// into it and SelectSelfieFile writes picked files, so the latest one wins.
func (w *Wizard) SelfieSlot() *artifact.Slot { return &w.state.Selfie }

// Snapshot returns a copy of the plain state fields.
func (w *Wizard) Snapshot() (sessionID string, status api.Status, docType api.DocType, hints Hints, inline map[string]string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	inline = make(map[string]string, len(w.state.Errors))
	for k, v := range w.state.Errors {
		inline[k] = v
	}
	return w.state.SessionID, w.state.Status, w.state.DocType, w.state.Hints, inline
}

// InlineError returns the validation message recorded for field.
func (w *Wizard) InlineError(field string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Errors[field]
}

// DocumentWarnings returns the advisory checks of the selected document.
func (w *Wizard) DocumentWarnings() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.state.DocWarnings...)
}

// RecordStatus stores the latest status seen by the poller.
func (w *Wizard) RecordStatus(s api.Status) {
	w.mu.Lock()
	w.state.Status = s
	w.mu.Unlock()
}

// SubmitBasicDetails checks the applicant is an adult.
func (w *Wizard) SubmitBasicDetails(dob string) error {
	return w.run(StepBasicDetails, func() error {
		if AgeFrom(dob, w.now()) < MinimumAge {
			w.bar.Error(underageMessage)
			return w.invalid(FieldDOB, underageMessage)
		}
		w.valid(FieldDOB)
		return w.advance(StepBasicDetails, "")
	})
}

// CreateSession opens a verification session for mobile.
func (w *Wizard) CreateSession(ctx context.Context, mobile string) error {
	return w.run(StepCreateSession, func() error {
		mobile = strings.TrimSpace(mobile)
		if !ValidMobile(mobile) {
			const msg = "Please enter a valid 10-digit mobile number."
			w.bar.Error(msg)
			return w.invalid(FieldMobile, msg)
		}
		w.valid(FieldMobile)

		w.bar.Info("Creating your KYC session…")
		s, err := w.gw.CreateSession(ctx, mobile)
		if err != nil {
			return w.remoteFailure("create session", err)
		}

		status := s.Status
		if status == "" {
			status = api.StatusInProgress
		}
		if w.poller != nil {
			w.poller.Stop()
		}
		w.mu.Lock()
		w.state.Reset()
		w.state.SessionID = s.ID
		w.state.Status = status
		w.mu.Unlock()
		w.logger.Info("Session created", "session_id", s.ID, "status", status)
		return w.advance(StepCreateSession, "KYC session created successfully.")
	})
}

// SelectDocument records the document type the applicant will verify with.
func (w *Wizard) SelectDocument(ctx context.Context, docType api.DocType) error {
	return w.run(StepSelectDocument, func() error {
		id, err := w.session()
		if err != nil {
			return err
		}
		if docType == "" {
			const msg = "Please select a document type to continue."
			w.bar.Error(msg)
			return w.invalid(FieldDocType, msg)
		}
		w.valid(FieldDocType)

		w.mu.Lock()
		w.state.DocType = docType
		w.mu.Unlock()

		w.bar.Info("Saving selected document type…")
		if err := w.gw.SelectDocument(ctx, id, docType); err != nil {
			return w.remoteFailure("select document", err)
		}
		if err := w.advance(StepSelectDocument, "Document type saved. You can now enter the document number."); err != nil {
			return err
		}
		w.mu.Lock()
		w.state.Hints = HintsFor(docType)
		w.mu.Unlock()
		return nil
	})
}

// EnterDocNumber submits the typed document number. A rejection from the
// service is shown next to the field rather than on the bar.
func (w *Wizard) EnterDocNumber(ctx context.Context, number string) error {
	return w.run(StepDocNumber, func() error {
		id, err := w.session()
		if err != nil {
			return err
		}
		number = strings.TrimSpace(number)
		if number == "" {
			return w.invalid(FieldDocNumber, "Document number is required.")
		}
		w.valid(FieldDocNumber)

		w.bar.Info("Validating document number format…")
		if err := w.gw.EnterDocNumber(ctx, id, number); err != nil {
			w.mu.Lock()
			w.state.Errors[FieldDocNumber] = errorMessage(err)
			w.mu.Unlock()
			w.bar.Clear()
			w.logger.Warn("Document number rejected", "session_id", id, "error", err)
			return fmt.Errorf("failed to enter document number: %w", err)
		}
		return w.advance(StepDocNumber, "Document number accepted.")
	})
}

// SelectDocumentImage stages a document image and returns its advisory
// warnings. The warnings never block the upload.
func (w *Wizard) SelectDocumentImage(a *artifact.Artifact) []string {
	warnings := artifact.CheckDocument(a)
	w.mu.Lock()
	w.state.Document.Set(a)
	w.state.DocWarnings = warnings
	w.mu.Unlock()
	return warnings
}

// UploadDocument sends the staged document image for validation.
func (w *Wizard) UploadDocument(ctx context.Context) error {
	return w.run(StepUploadDocument, func() error {
		id, err := w.session()
		if err != nil {
			return err
		}
		a := w.state.Document.Peek()
		if a == nil {
			const msg = "Please select a document image to upload."
			w.bar.Error(msg)
			return w.invalid(FieldDocument, msg)
		}
		w.valid(FieldDocument)

		w.bar.Info("Uploading and validating your document…")
		if err := w.gw.ValidateDocument(ctx, id, a); err != nil {
			return w.remoteFailure("upload document", err)
		}
		w.state.Document.Take()
		w.logger.Info("Document uploaded", "session_id", id, "size_kb", a.SizeKB(), "source", a.Source)
		return w.advance(StepUploadDocument, "Document uploaded successfully. Proceeding to selfie step.")
	})
}

// SelectSelfieFile stages a selfie picked from disk, replacing any earlier
// pick or capture.
func (w *Wizard) SelectSelfieFile(a *artifact.Artifact) {
	w.state.Selfie.Set(a)
}

// UploadSelfie sends the staged selfie and starts polling for the outcome.
func (w *Wizard) UploadSelfie(ctx context.Context) error {
	return w.run(StepSelfie, func() error {
		id, err := w.session()
		if err != nil {
			return err
		}

		a := w.state.Selfie.Peek()
		if err := artifact.CheckSelfie(a); err != nil {
			msg := artifact.Message(err)
			w.bar.Error(msg)
			return w.invalid(FieldSelfie, msg)
		}
		w.valid(FieldSelfie)

		w.bar.Info("Uploading your selfie and running face match…")
		if err := w.gw.UploadSelfie(ctx, id, a); err != nil {
			return w.remoteFailure("upload selfie", err)
		}
		w.logger.Info("Selfie uploaded", "session_id", id, "size_kb", a.SizeKB(), "source", a.Source)

		if err := w.advance(StepSelfie, "Selfie uploaded. We are finalizing the KYC check."); err != nil {
			return err
		}
		w.state.Selfie.Clear()
		if w.poller != nil {
			w.poller.Start(ctx, id)
		}
		return nil
	})
}

// Back returns to the previous step without side effects.
func (w *Wizard) Back() error {
	to, err := Next(w.nav.Current(), EventBack)
	if err != nil {
		return err
	}
	return w.nav.GoTo(to)
}

// Jump moves to any step from the step indicator. Preconditions of the
// target step are not re-checked.
func (w *Wizard) Jump(s Step) error {
	return w.nav.Jump(s)
}

// RequestVideoKYC confirms an assisted verification request.
func (w *Wizard) RequestVideoKYC() string {
	w.bar.Success(VideoKYCMessage)
	return VideoKYCMessage
}

// Reset abandons the current attempt locally and returns to step 1.
func (w *Wizard) Reset() error {
	if w.poller != nil {
		w.poller.Stop()
	}
	if w.camera != nil {
		w.camera.Close()
	}
	w.mu.Lock()
	w.state.Reset()
	w.mu.Unlock()
	return w.nav.GoTo(StepBasicDetails)
}

// run executes a step controller if step is active and nothing else is in
// flight.
func (w *Wizard) run(step Step, fn func() error) error {
	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer w.busy.Store(false)

	if cur := w.nav.Current(); cur != step {
		return fmt.Errorf("%w: step %d is not active (at %d)", ErrIllegalTransition, step, cur)
	}
	return fn()
}

// advance moves forward from step and then shows notice on the new step.
func (w *Wizard) advance(step Step, notice string) error {
	to, err := Next(step, EventContinue)
	if err != nil {
		return err
	}
	if err := w.nav.GoTo(to); err != nil {
		return err
	}
	if notice != "" {
		w.bar.Success(notice)
	}
	return nil
}

func (w *Wizard) session() (string, error) {
	w.mu.Lock()
	id := w.state.SessionID
	w.mu.Unlock()
	if id == "" {
		w.bar.Error(noSessionMessage)
		return "", ErrNoSession
	}
	return id, nil
}

func (w *Wizard) invalid(field, msg string) error {
	w.mu.Lock()
	w.state.Errors[field] = msg
	w.mu.Unlock()
	return &ValidationError{Field: field, Message: msg}
}

func (w *Wizard) valid(field string) {
	w.mu.Lock()
	delete(w.state.Errors, field)
	w.mu.Unlock()
}

func (w *Wizard) remoteFailure(op string, err error) error {
	w.bar.Error(errorMessage(err))
	w.logger.Warn("Step failed", "op", op, "error", err)
	return fmt.Errorf("failed to %s: %w", op, err)
}

// errorMessage is the user-facing text of err: the service's own message
// when it answered, the generic fallback otherwise.
func errorMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return api.FallbackMessage
}
