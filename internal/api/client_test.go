package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"swiftkyc-client/internal/artifact"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1/", "5s")
}

func TestCreateSessionDefaultsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/kyc/session", r.URL.Path)
		assert.Equal(t, "dev-1", r.Header.Get("X-Device-ID"))

		var req CreateSessionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "9876543210", req.Mobile)

		_, _ = io.WriteString(w, `{"id":"s-42","current_step":"SELECT_DOC"}`)
	})
	c.Header.Set("X-Device-ID", "dev-1")

	s, err := c.CreateSession(context.Background(), "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "s-42", s.ID)
	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, StepSelectDoc, s.CurrentStep)
}

func TestErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"message":"Session expired"}`, "Session expired"},
		{"detail list", `{"detail":[{"loc":["body","mobile"],"msg":"field required"}]}`, "field required"},
		{"detail string", `{"detail":"Invalid step"}`, "Invalid step"},
		{"detail object", `{"detail":{"error_code":"INVALID_PAN","message":"PAN format is invalid"}}`, "PAN format is invalid"},
		{"empty list entry", `{"detail":[{}]}`, FallbackMessage},
		{"not json", `<html>bad gateway</html>`, FallbackMessage},
		{"empty", ``, FallbackMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, tc.body)
			})
			err := c.EnterDocNumber(context.Background(), "s-1", "X")
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
			assert.Equal(t, tc.want, apiErr.Message)
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, "1s")
	_, err := c.GetSession(context.Background(), "s-1")
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr))
}

func TestUploadSendsNamedFilePart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/kyc/session/s-1/selfie", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		assert.Equal(t, artifact.SelfieFilename, hdr.Filename)
		assert.Equal(t, artifact.ContentTypeJPEG, hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Equal(t, "jpegdata", string(data))
		_, _ = io.WriteString(w, `{"status":"queued"}`)
	})

	require.NoError(t, c.UploadSelfie(context.Background(), "s-1", artifact.FromCamera([]byte("jpegdata"))))
	require.Error(t, c.ValidateDocument(context.Background(), "s-1", nil))
}

func TestListSessionsSendsOnlySetFilters(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/kyc/sessions", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "REJECTED", q.Get("status"))
		assert.Equal(t, "2026-01-02", q.Get("created_from"))
		assert.Equal(t, "2026-01-02", q.Get("created_to"))
		_, hasDoc := q["doc_type"]
		assert.False(t, hasDoc)
		_, _ = io.WriteString(w, `[{"id":"a","status":"REJECTED","current_step":"SCAN_DOC","primary_doc_type":"PAN"},{"session_id":"b","status":"REJECTED","current_step":"SELFIE","primary_doc_type":null}]`)
	})

	rows, err := c.ListSessions(context.Background(), SessionFilter{Status: StatusRejected, CreatedFrom: "2026-01-02", CreatedTo: "2026-01-02"})
	require.NoError(t, err)

	pan := DocPAN
	want := []SessionSummary{
		{ID: "a", Status: StatusRejected, CurrentStep: StepScanDoc, PrimaryDocType: &pan},
		{ID: "b", Status: StatusRejected, CurrentStep: StepSelfie},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ListSessions mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSessionDetailDecodesDocuments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/kyc/sessions/s-9", r.URL.Path)
		_, _ = io.WriteString(w, `{"session_id":"s-9","customer_id":"c-1","status":"IN_PROGRESS","current_step":"SELFIE","retries_doc":2,"retries_selfie":1,
			"documents":[{"id":"d-1","doc_type":"AADHAAR","doc_number":"123412341234","is_valid":true,"quality_score":0.8}]}`)
	})

	d, err := c.GetSessionDetail(context.Background(), "s-9")
	require.NoError(t, err)
	assert.Equal(t, "s-9", d.ID)
	assert.Equal(t, 2, d.Scan)
	assert.Equal(t, 1, d.Selfie)
	require.Len(t, d.Documents, 1)
	assert.Equal(t, "d-1", d.Documents[0].ID)
	require.NotNil(t, d.Documents[0].IsValid)
	assert.True(t, *d.Documents[0].IsValid)
}

func TestApproveRejectPaths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_, _ = io.WriteString(w, `{}`)
	})

	require.NoError(t, c.Approve(context.Background(), "s-1"))
	require.NoError(t, c.Reject(context.Background(), "s-2"))
	assert.Equal(t, []string{
		"POST /api/v1/admin/kyc/sessions/s-1/approve",
		"POST /api/v1/admin/kyc/sessions/s-2/reject",
	}, paths)
}
