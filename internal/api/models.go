package api

import (
	"encoding/json"
	"time"
)

// Status is the server-authoritative verification outcome of a session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusAbandoned  Status = "ABANDONED"
)

// Terminal reports whether no further change is expected after s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusAbandoned:
		return true
	}
	return false
}

// Step is the server-side stage of a session.
type Step string

const (
	StepSelectDoc   Step = "SELECT_DOC"
	StepScanDoc     Step = "SCAN_DOC"
	StepValidateDoc Step = "VALIDATE_DOC"
	StepSelfie      Step = "SELFIE"
	StepKYCCheck    Step = "KYC_CHECK"
	StepComplete    Step = "COMPLETE"
)

// DocType identifies the identity document a session is verified against.
type DocType string

const (
	DocPAN      DocType = "PAN"
	DocAadhaar  DocType = "AADHAAR"
	DocPassport DocType = "PASSPORT"
	DocVoterID  DocType = "VOTER_ID"
)

// DocTypes lists the document types offered at the selection step.
var DocTypes = []DocType{DocPAN, DocAadhaar, DocPassport, DocVoterID}

// Retries counts failed attempts per stage.
type Retries struct {
	Select int `json:"retries_select"`
	Scan   int `json:"retries_scan"`
	Upload int `json:"retries_upload"`
	Selfie int `json:"retries_selfie"`
}

// Session is the full session projection returned by GET kyc/session/{id}.
type Session struct {
	ID             string     `json:"session_id"`
	CustomerID     string     `json:"customer_id,omitempty"`
	Mobile         string     `json:"mobile,omitempty"`
	CurrentStep    Step       `json:"current_step"`
	Status         Status     `json:"status"`
	FailureReason  *string    `json:"failure_reason"`
	FaceMatchScore *float64   `json:"face_match_score"`
	SelfieURL      *string    `json:"selfie_url,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	Retries
}

// UnmarshalJSON accepts both "session_id" and "id" as the identifier and the
// legacy "retries_doc" spelling of the scan counter.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var aux struct {
		plain
		AltID      string `json:"id"`
		RetriesDoc *int   `json:"retries_doc"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Session(aux.plain)
	if s.ID == "" {
		s.ID = aux.AltID
	}
	if aux.RetriesDoc != nil && s.Scan == 0 {
		s.Scan = *aux.RetriesDoc
	}
	return nil
}

// Document is a document record owned by a session.
type Document struct {
	ID           string     `json:"document_id"`
	DocType      DocType    `json:"doc_type"`
	DocNumber    *string    `json:"doc_number"`
	IsValid      *bool      `json:"is_valid"`
	QualityScore *float64   `json:"quality_score"`
	StorageURL   *string    `json:"storage_url"`
	CreatedAt    *time.Time `json:"created_at"`
}

// UnmarshalJSON accepts both "document_id" and "id".
func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Document(aux.plain)
	if d.ID == "" {
		d.ID = aux.AltID
	}
	return nil
}

// SessionDetail is the admin view of one session plus its documents.
type SessionDetail struct {
	Session
	Documents []Document `json:"documents"`
}

// UnmarshalJSON decodes the embedded session through its own aliasing rules.
func (d *SessionDetail) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &d.Session); err != nil {
		return err
	}
	var docs struct {
		Documents []Document `json:"documents"`
	}
	if err := json.Unmarshal(data, &docs); err != nil {
		return err
	}
	d.Documents = docs.Documents
	return nil
}

// SessionSummary is one row of the admin session list.
type SessionSummary struct {
	ID             string     `json:"session_id"`
	CustomerID     string     `json:"customer_id,omitempty"`
	Status         Status     `json:"status"`
	CurrentStep    Step       `json:"current_step"`
	PrimaryDocType *DocType   `json:"primary_doc_type"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

// UnmarshalJSON accepts both "session_id" and "id".
func (s *SessionSummary) UnmarshalJSON(data []byte) error {
	type plain SessionSummary
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = SessionSummary(aux.plain)
	if s.ID == "" {
		s.ID = aux.AltID
	}
	return nil
}

// CreateSessionRequest opens a session for a mobile number.
type CreateSessionRequest struct {
	Mobile string `json:"mobile"`
}

// SelectDocumentRequest records the chosen document type.
type SelectDocumentRequest struct {
	DocType DocType `json:"doc_type"`
}

// DocNumberRequest records the typed document number.
type DocNumberRequest struct {
	DocNumber string `json:"doc_number"`
}

// SessionFilter narrows the admin session list. Empty fields are not sent.
type SessionFilter struct {
	Status      Status
	DocType     DocType
	CreatedFrom string // YYYY-MM-DD, inclusive
	CreatedTo   string // YYYY-MM-DD, inclusive
}
