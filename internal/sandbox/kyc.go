package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/queue"
	"swiftkyc-client/internal/store"

	"github.com/go-chi/chi/v5"
)

const sessionNotFound = "KYC session not found"

var mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)

// stepError rejects a request made at the wrong session step.
type stepError struct {
	detail any
}

func (e *stepError) Error() string { return fmt.Sprint(e.detail) }

type selectDocumentResponse struct {
	SessionID  string      `json:"session_id"`
	DocumentID string      `json:"document_id"`
	DocType    api.DocType `json:"doc_type"`
	NextStep   api.Step    `json:"next_step"`
}

type docNumberResponse struct {
	SessionID  string   `json:"session_id"`
	DocumentID string   `json:"document_id"`
	DocNumber  string   `json:"doc_number"`
	NextStep   api.Step `json:"next_step"`
}

type documentUploadResponse struct {
	DocumentID string     `json:"document_id"`
	SessionID  string     `json:"session_id"`
	StorageURL string     `json:"storage_url"`
	NextStep   api.Step   `json:"next_step"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// validationFailure writes a 422 in the list form of detail.
func validationFailure(w http.ResponseWriter, msg string) {
	writeDetail(w, http.StatusUnprocessableEntity, []map[string]string{{"msg": msg}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		validationFailure(w, "Request body must be valid JSON.")
		return false
	}
	return true
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !mobilePattern.MatchString(strings.TrimSpace(req.Mobile)) {
		validationFailure(w, "mobile must be a 10-digit number")
		return
	}

	sess, err := s.store.CreateSession(r.Context(), strings.TrimSpace(req.Mobile))
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	s.logger.Info("Session created", "session_id", sess.ID, "customer_id", sess.CustomerID)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) selectDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req api.SelectDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	if sess.CurrentStep != api.StepSelectDoc {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Cannot select document at step %s", sess.CurrentStep))
		return
	}
	docType, ok := parseDocType(string(req.DocType))
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid document type. Allowed: AADHAAR, PAN, PASSPORT, VOTER_ID")
		return
	}

	sess, err = s.store.UpdateSession(r.Context(), id, func(x *api.Session) error {
		if x.CurrentStep != api.StepSelectDoc {
			return &stepError{fmt.Sprintf("Cannot select document at step %s", x.CurrentStep)}
		}
		x.CurrentStep = api.StepScanDoc
		return nil
	})
	if s.guardFailed(w, r, err) {
		return
	}
	doc, err := s.store.AddDocument(r.Context(), id, docType)
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, selectDocumentResponse{
		SessionID: id, DocumentID: doc.ID, DocType: doc.DocType, NextStep: sess.CurrentStep,
	})
}

func parseDocType(raw string) (api.DocType, bool) {
	t := api.DocType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range api.DocTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

func (s *Server) enterDocNumber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req api.DocNumberRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, codedError{"SESSION_NOT_FOUND", "KYC session not found."})
		return
	}
	if sess.CurrentStep != api.StepScanDoc {
		writeDetail(w, http.StatusBadRequest, codedError{"INVALID_STEP",
			fmt.Sprintf("Cannot enter document number at step %s.", sess.CurrentStep)})
		return
	}
	doc, err := s.store.LatestDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusBadRequest, codedError{"NO_DOCUMENT", "No document record found. Select document type first."})
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}

	var number string
	switch doc.DocType {
	case api.DocPAN:
		number = normalizePAN(req.DocNumber)
		if !panPattern.MatchString(number) {
			writeDetail(w, http.StatusUnprocessableEntity, codedError{"INVALID_PAN_FORMAT",
				"PAN format invalid. Expected 10 chars: 5 letters, 4 digits, 1 letter. Example: 'ABCDE1234F'. Please re-enter."})
			return
		}
	case api.DocAadhaar:
		number = normalizeAadhaar(req.DocNumber)
		if !aadhaarPattern.MatchString(number) {
			writeDetail(w, http.StatusUnprocessableEntity, codedError{"INVALID_AADHAAR_FORMAT",
				"Aadhaar format invalid. Expected exactly 12 digits (numbers only). Please re-enter without spaces or dashes."})
			return
		}
	default:
		writeDetail(w, http.StatusBadRequest, codedError{"UNSUPPORTED_DOC_TYPE",
			"Manual entry only supported for PAN and AADHAAR in this endpoint."})
		return
	}

	doc.DocNumber = &number
	if err := s.store.UpdateDocument(r.Context(), doc); err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, docNumberResponse{
		SessionID: id, DocumentID: doc.ID, DocNumber: number, NextStep: sess.CurrentStep,
	})
}

func (s *Server) validateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	up, err := readUpload(w, r)
	if err != nil {
		validationFailure(w, "A file field is required.")
		return
	}
	if !allowedImage(up.contentType) {
		writeDetail(w, http.StatusBadRequest, "Only JPEG and PNG images are allowed")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	if sess.CurrentStep != api.StepScanDoc {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Cannot validate document during step %s", sess.CurrentStep))
		return
	}
	doc, err := s.store.LatestDocument(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeDetail(w, http.StatusBadRequest, "No document record found. Select document type first.")
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}

	path, err := s.save(id, "document", up)
	if err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}
	doc.StorageURL = &path
	doc.IsValid = nil
	doc.QualityScore = nil
	if err := s.store.UpdateDocument(r.Context(), doc); err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}

	sess, err = s.store.UpdateSession(r.Context(), id, func(x *api.Session) error {
		if x.CurrentStep != api.StepScanDoc {
			return &stepError{fmt.Sprintf("Cannot validate document during step %s", x.CurrentStep)}
		}
		x.CurrentStep = api.StepValidateDoc
		x.FailureReason = nil
		return nil
	})
	if s.guardFailed(w, r, err) {
		return
	}
	if !s.enqueue(w, r, queue.KindValidateDocument, doc.ID) {
		return
	}
	writeJSON(w, http.StatusOK, documentUploadResponse{
		DocumentID: doc.ID, SessionID: id, StorageURL: path, NextStep: sess.CurrentStep, UpdatedAt: sess.UpdatedAt,
	})
}

func (s *Server) uploadSelfie(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	up, err := readUpload(w, r)
	if err != nil {
		validationFailure(w, "A file field is required.")
		return
	}
	if !allowedImage(up.contentType) {
		writeDetail(w, http.StatusBadRequest, "Only JPEG and PNG images are allowed for selfie.")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, "KYC session not found.")
		return
	}
	if sess.CurrentStep != api.StepSelfie {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Cannot upload selfie during step %s.", sess.CurrentStep))
		return
	}

	path, err := s.save(id, "selfie", up)
	if err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}
	sess, err = s.store.UpdateSession(r.Context(), id, func(x *api.Session) error {
		if x.CurrentStep != api.StepSelfie {
			return &stepError{fmt.Sprintf("Cannot upload selfie during step %s.", x.CurrentStep)}
		}
		x.SelfieURL = &path
		x.FaceMatchScore = nil
		x.FailureReason = nil
		x.CurrentStep = api.StepKYCCheck
		return nil
	})
	if s.guardFailed(w, r, err) {
		return
	}
	if !s.enqueue(w, r, queue.KindValidateSelfie, id) {
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// guardFailed writes the response for a failed guarded update.
func (s *Server) guardFailed(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}
	var se *stepError
	if errors.As(err, &se) {
		writeDetail(w, http.StatusBadRequest, se.detail)
		return true
	}
	s.writeStoreError(w, r, err, sessionNotFound)
	return true
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, kind queue.Kind, id string) bool {
	job := queue.Job{Kind: kind, ID: id, EnqueuedAt: time.Now().UTC()}
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		s.logger.Error("Sandbox: failed to enqueue job", "kind", kind, "id", id, "error", err)
		writeDetail(w, http.StatusServiceUnavailable, "Verification queue unavailable. Please try again.")
		return false
	}
	s.logger.Debug("Job enqueued", "kind", kind, "id", id)
	return true
}
