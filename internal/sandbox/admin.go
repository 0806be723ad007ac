package sandbox

import (
	"net/http"
	"strings"
	"time"

	"swiftkyc-client/internal/api"

	"github.com/go-chi/chi/v5"
)

const rejectedByReviewer = "Rejected by reviewer."

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := api.SessionFilter{
		Status:      api.Status(strings.ToUpper(q.Get("status"))),
		DocType:     api.DocType(strings.ToUpper(q.Get("doc_type"))),
		CreatedFrom: q.Get("created_from"),
		CreatedTo:   q.Get("created_to"),
	}
	for name, v := range map[string]string{"created_from": f.CreatedFrom, "created_to": f.CreatedTo} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			validationFailure(w, name+" must be a date in YYYY-MM-DD form")
			return
		}
	}

	rows, err := s.store.ListSessions(r.Context(), f)
	if err != nil {
		s.writeStoreError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) sessionDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.store.SessionDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, func(x *api.Session) {
		x.Status = api.StatusApproved
		x.CurrentStep = api.StepComplete
		x.FailureReason = nil
	})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, func(x *api.Session) {
		x.Status = api.StatusRejected
		if x.FailureReason == nil {
			reason := rejectedByReviewer
			x.FailureReason = &reason
		}
	})
}

// decide applies a reviewer decision and answers with the updated detail.
func (s *Server) decide(w http.ResponseWriter, r *http.Request, apply func(*api.Session)) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.UpdateSession(r.Context(), id, func(x *api.Session) error {
		apply(x)
		return nil
	})
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	s.logger.Info("Reviewer decision", "session_id", id, "status", sess.Status)

	detail, err := s.store.SessionDetail(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, sessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
