package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/artifact"
	"swiftkyc-client/internal/queue"
	"swiftkyc-client/internal/store"
	"swiftkyc-client/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store  *store.Store
	queue  *queue.Memory
	worker *worker.Worker
	url    string
	client *api.Client
}

func newHarness(t *testing.T, rateLimit int) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewStore(filepath.Join(dir, "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := queue.NewMemory(16)
	t.Cleanup(func() { q.Close() })

	logger := slog.New(slog.DiscardHandler)
	srv := httptest.NewServer(NewServer(Options{
		Store:     st,
		Queue:     q,
		UploadDir: filepath.Join(dir, "uploads"),
		RateLimit: rateLimit,
		Logger:    logger,
	}).Handler())
	t.Cleanup(srv.Close)

	return &harness{
		store:  st,
		queue:  q,
		worker: worker.New(st, q, 3, 10*time.Millisecond, logger),
		url:    srv.URL,
		client: api.NewClient(srv.URL+APIPrefix, "5s"),
	}
}

// drain runs the one queued job.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	job, ok, err := h.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok, "expected a queued job")
	require.NoError(t, h.worker.Process(context.Background(), job))
}

func jpeg(name string, size int) *artifact.Artifact {
	return &artifact.Artifact{
		Data:        make([]byte, size),
		ContentType: artifact.ContentTypeJPEG,
		Filename:    name,
		Source:      artifact.SourceFile,
	}
}

func apiError(t *testing.T, err error) *api.Error {
	t.Helper()
	var apiErr *api.Error
	require.True(t, errors.As(err, &apiErr), "expected *api.Error, got %v", err)
	return apiErr
}

func TestHappyPathToApproval(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	sess, err := h.client.CreateSession(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, api.StepSelectDoc, sess.CurrentStep)
	assert.Equal(t, api.StatusInProgress, sess.Status)

	require.NoError(t, h.client.SelectDocument(ctx, sess.ID, "pan"))
	require.NoError(t, h.client.EnterDocNumber(ctx, sess.ID, "abcde 1234f"))

	doc, err := h.store.LatestDocument(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, doc.DocNumber)
	assert.Equal(t, "ABCDE1234F", *doc.DocNumber)

	require.NoError(t, h.client.ValidateDocument(ctx, sess.ID, jpeg("pan.jpg", 200<<10)))
	got, err := h.client.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StepValidateDoc, got.CurrentStep)

	h.drain(t)
	got, err = h.client.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StepSelfie, got.CurrentStep)

	require.NoError(t, h.client.UploadSelfie(ctx, sess.ID, jpeg(artifact.SelfieFilename, 120<<10)))
	h.drain(t)

	got, err = h.client.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StatusApproved, got.Status)
	assert.Equal(t, api.StepComplete, got.CurrentStep)
	require.NotNil(t, got.FaceMatchScore)
	assert.InDelta(t, 0.92, *got.FaceMatchScore, 1e-9)
}

func TestStepGuards(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	_, err := h.client.GetSession(ctx, "missing")
	e := apiError(t, err)
	assert.Equal(t, http.StatusNotFound, e.StatusCode)
	assert.Equal(t, "KYC session not found", e.Message)

	sess, err := h.client.CreateSession(ctx, "9876543210")
	require.NoError(t, err)

	err = h.client.SelectDocument(ctx, sess.ID, "DRIVING_LICENCE")
	assert.Equal(t, "Invalid document type. Allowed: AADHAAR, PAN, PASSPORT, VOTER_ID", apiError(t, err).Message)

	err = h.client.UploadSelfie(ctx, sess.ID, jpeg("selfie.jpg", 100<<10))
	e = apiError(t, err)
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Equal(t, "Cannot upload selfie during step SELECT_DOC.", e.Message)

	err = h.client.EnterDocNumber(ctx, sess.ID, "ABCDE1234F")
	assert.Equal(t, "Cannot enter document number at step SELECT_DOC.", apiError(t, err).Message)

	require.NoError(t, h.client.SelectDocument(ctx, sess.ID, api.DocPassport))
	err = h.client.SelectDocument(ctx, sess.ID, api.DocPAN)
	assert.Equal(t, "Cannot select document at step SCAN_DOC", apiError(t, err).Message)

	err = h.client.EnterDocNumber(ctx, sess.ID, "X1234567")
	assert.Equal(t, "Manual entry only supported for PAN and AADHAAR in this endpoint.", apiError(t, err).Message)
}

func TestDocNumberFormats(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	pan, err := h.client.CreateSession(ctx, "9876543210")
	require.NoError(t, err)
	require.NoError(t, h.client.SelectDocument(ctx, pan.ID, api.DocPAN))
	e := apiError(t, h.client.EnterDocNumber(ctx, pan.ID, "ABCD1234F"))
	assert.Equal(t, http.StatusUnprocessableEntity, e.StatusCode)
	assert.True(t, strings.HasPrefix(e.Message, "PAN format invalid."), e.Message)

	aadhaar, err := h.client.CreateSession(ctx, "9876543210")
	require.NoError(t, err)
	require.NoError(t, h.client.SelectDocument(ctx, aadhaar.ID, api.DocAadhaar))
	require.NoError(t, h.client.EnterDocNumber(ctx, aadhaar.ID, "1234-5678 9012"))
	e = apiError(t, h.client.EnterDocNumber(ctx, aadhaar.ID, "12345"))
	assert.True(t, strings.HasPrefix(e.Message, "Aadhaar format invalid."), e.Message)

	assert.Equal(t, pan.CustomerID, aadhaar.CustomerID, "customer is reused per mobile")
}

func TestUploadRejectsNonImages(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	sess, err := h.client.CreateSession(ctx, "9876543210")
	require.NoError(t, err)
	require.NoError(t, h.client.SelectDocument(ctx, sess.ID, api.DocPAN))

	gif := &artifact.Artifact{Data: []byte("GIF89a"), ContentType: "image/gif", Filename: "scan.gif"}
	e := apiError(t, h.client.ValidateDocument(ctx, sess.ID, gif))
	assert.Equal(t, http.StatusBadRequest, e.StatusCode)
	assert.Equal(t, "Only JPEG and PNG images are allowed", e.Message)

	got, err := h.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StepScanDoc, got.CurrentStep)
}

func TestCreateSessionValidatesMobile(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.client.CreateSession(context.Background(), "12")
	e := apiError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, e.StatusCode)
	assert.Equal(t, "mobile must be a 10-digit number", e.Message)
}

func TestAdminListAndDecisions(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	a, err := h.client.CreateSession(ctx, "9876543210")
	require.NoError(t, err)
	require.NoError(t, h.client.SelectDocument(ctx, a.ID, api.DocPAN))
	b, err := h.client.CreateSession(ctx, "9123456780")
	require.NoError(t, err)
	require.NoError(t, h.client.SelectDocument(ctx, b.ID, api.DocVoterID))

	rows, err := h.client.ListSessions(ctx, api.SessionFilter{DocType: api.DocPAN})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)

	today := time.Now().UTC().Format(time.DateOnly)
	rows, err = h.client.ListSessions(ctx, api.SessionFilter{CreatedFrom: today, CreatedTo: today})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = h.client.ListSessions(ctx, api.SessionFilter{CreatedFrom: "15/10/2026"})
	assert.Equal(t, http.StatusUnprocessableEntity, apiError(t, err).StatusCode)

	require.NoError(t, h.client.Approve(ctx, a.ID))
	require.NoError(t, h.client.Reject(ctx, b.ID))

	detail, err := h.client.GetSessionDetail(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, api.StatusRejected, detail.Status)
	require.NotNil(t, detail.FailureReason)
	assert.Equal(t, rejectedByReviewer, *detail.FailureReason)
	require.Len(t, detail.Documents, 1)
	assert.Equal(t, api.DocVoterID, detail.Documents[0].DocType)

	rows, err = h.client.ListSessions(ctx, api.SessionFilter{Status: api.StatusApproved})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)
	assert.Equal(t, api.StepComplete, rows[0].CurrentStep)

	assert.Equal(t, http.StatusNotFound, apiError(t, h.client.Approve(ctx, "missing")).StatusCode)
}

func TestRateLimitAnswersJSON(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.client.ListSessions(ctx, api.SessionFilter{})
		require.NoError(t, err)
	}
	_, err := h.client.ListSessions(ctx, api.SessionFilter{})
	e := apiError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, e.StatusCode)
	assert.Equal(t, "Too many requests. Please try again later.", e.Message)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, 0)

	resp, err := http.Get(h.url + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(h.url + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "go_goroutines")
}
