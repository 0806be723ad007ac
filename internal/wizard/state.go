package wizard

import (
	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/artifact"
)

// Field names used for inline validation messages.
const (
	FieldDOB       = "dob"
	FieldMobile    = "mobile"
	FieldDocType   = "doc_type"
	FieldDocNumber = "doc_number"
	FieldDocument  = "document"
	FieldSelfie    = "selfie"
)

// ValidationError is a local check that failed before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// State is the client-side memory of one onboarding attempt. It is never
// persisted.
type State struct {
	SessionID string
	Status    api.Status
	DocType   api.DocType
	Hints     Hints

	// Errors holds the inline message per field; a passing check removes it.
	Errors map[string]string
	// DocWarnings are the advisory checks of the selected document image.
	DocWarnings []string

	// Document and Selfie each hold the latest pick or capture; a newer one
	// replaces the older whatever its source.
	Document artifact.Slot
	Selfie   artifact.Slot
}

func newState() *State {
	return &State{Errors: make(map[string]string), Hints: HintsFor("")}
}

// Reset forgets everything about the current attempt.
func (s *State) Reset() {
	s.SessionID = ""
	s.Status = ""
	s.DocType = ""
	s.Hints = HintsFor("")
	s.Errors = make(map[string]string)
	s.DocWarnings = nil
	s.Document.Clear()
	s.Selfie.Clear()
}
