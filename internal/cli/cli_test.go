package cli

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/png"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/artifact"
	"swiftkyc-client/internal/config"
	"swiftkyc-client/internal/logger"
	"swiftkyc-client/internal/queue"
	"swiftkyc-client/internal/sandbox"
	"swiftkyc-client/internal/store"
	"swiftkyc-client/internal/wizard"
	"swiftkyc-client/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir     string
	cfgPath string
	cfg     *config.Config
	store   *store.Store
}

// newFixture starts a sandbox with a live worker and writes a client config
// pointing at it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.NewStore(filepath.Join(dir, "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := queue.NewMemory(16)
	t.Cleanup(func() { q.Close() })

	log := logger.Discard()
	srv := httptest.NewServer(sandbox.NewServer(sandbox.Options{
		Store:     st,
		Queue:     q,
		UploadDir: filepath.Join(dir, "uploads"),
		Logger:    log,
	}).Handler())
	t.Cleanup(srv.Close)

	w := worker.New(st, q, 3, 10*time.Millisecond, log)
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	cfg := config.Default(dir)
	cfg.Endpoint = srv.URL + sandbox.APIPrefix
	cfg.PollInterval = "20ms"
	cfg.APITimeout = "5s"
	cfg.DeviceID = "kyc-test"
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, config.Save(cfgPath, cfg))

	return &fixture{dir: dir, cfgPath: cfgPath, cfg: cfg, store: st}
}

// execute runs the CLI with args and returns its output.
func (f *fixture) execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(nil, nil, nil, f.cfgPath)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(input))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (f *fixture) image(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// frame writes a noisy PNG into the camera directory so the capture encodes
// to a realistically sized JPEG.
func (f *fixture) frame(t *testing.T, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.cfg.CameraDir, 0755))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r := rand.New(rand.NewPCG(1, 2))
	for i := range img.Pix {
		img.Pix[i] = byte(r.Uint32())
		if i%4 == 3 {
			img.Pix[i] = 0xFF
		}
	}
	file, err := os.Create(filepath.Join(f.cfg.CameraDir, "frame-0001.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())
}

func (f *fixture) uploaded(sessionID, kind string, data []byte) string {
	sum := sha256.Sum256(data)
	return filepath.Join(f.dir, "uploads", sessionID, kind+"-"+hex.EncodeToString(sum[:])[:16]+".jpg")
}

func (f *fixture) waitForStep(t *testing.T, id string, step api.Step) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := f.store.GetSession(context.Background(), id)
		return err == nil && s.CurrentStep == step
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWizardPromptLoop(t *testing.T) {
	f := newFixture(t)
	input := strings.Join([]string{
		"2015-01-01",
		"1990-05-17",
		"12345",
		"9876543210",
		"1",
		"ABCDE1234",
		"abcde1234f",
		"quit",
	}, "\n") + "\n"

	out, err := f.execute(t, input, "wizard")
	require.NoError(t, err)

	assert.Contains(t, out, "You must be at least 18 years old")
	assert.Contains(t, out, "KYC session created successfully.")
	assert.Contains(t, out, "PAN format invalid.")
	assert.Contains(t, out, "Document number accepted.")
	assert.Contains(t, out, "Step 5 of 7")

	rows, err := f.store.ListSessions(context.Background(), api.SessionFilter{DocType: api.DocPAN})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	doc, err := f.store.LatestDocument(context.Background(), rows[0].ID)
	require.NoError(t, err)
	require.NotNil(t, doc.DocNumber)
	assert.Equal(t, "ABCDE1234F", *doc.DocNumber)
}

func TestWizardReachesApproval(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	out := &syncWriter{w: &buf}
	gw := api.NewClient(f.cfg.Endpoint, f.cfg.APITimeout)
	s := newShell(f.cfg, gw, gw, out, logger.Discard())
	ctx := context.Background()

	require.NoError(t, s.wiz.SubmitBasicDetails("1990-05-17"))
	require.NoError(t, s.wiz.CreateSession(ctx, "9876543210"))
	id, _, _, _, _ := s.wiz.Snapshot()
	require.NotEmpty(t, id)

	require.NoError(t, s.wiz.SelectDocument(ctx, api.DocAadhaar))
	require.NoError(t, s.wiz.EnterDocNumber(ctx, "1234 5678 9012"))

	doc, err := artifact.FromFile(f.image(t, "aadhaar.jpg", 300<<10))
	require.NoError(t, err)
	assert.Empty(t, s.wiz.SelectDocumentImage(doc))
	require.NoError(t, s.wiz.UploadDocument(ctx))
	f.waitForStep(t, id, api.StepSelfie)

	selfie, err := artifact.FromFile(f.image(t, "selfie.jpg", 150<<10))
	require.NoError(t, err)
	s.wiz.SelectSelfieFile(selfie)
	require.NoError(t, s.wiz.UploadSelfie(ctx))
	assert.Equal(t, wizard.StepStatus, s.wiz.Navigator().Current())

	select {
	case <-s.poll.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not reach a final status")
	}
	_, status, _, _, _ := s.wiz.Snapshot()
	assert.Equal(t, api.StatusApproved, status)

	s.close()
	assert.Contains(t, buf.String(), "Status:         APPROVED")
	assert.Contains(t, buf.String(), "Face match:     0.92")
}

func TestWizardCameraSelfieReachesFinalStatus(t *testing.T) {
	f := newFixture(t)
	f.frame(t, 1280, 720)
	var buf bytes.Buffer
	out := &syncWriter{w: &buf}
	gw := api.NewClient(f.cfg.Endpoint, f.cfg.APITimeout)
	s := newShell(f.cfg, gw, gw, out, logger.Discard())
	ctx := context.Background()

	require.NoError(t, s.wiz.SubmitBasicDetails("1990-05-17"))
	require.NoError(t, s.wiz.CreateSession(ctx, "9876543210"))
	id, _, _, _, _ := s.wiz.Snapshot()
	require.NoError(t, s.wiz.SelectDocument(ctx, api.DocPAN))
	require.NoError(t, s.wiz.EnterDocNumber(ctx, "ABCDE1234F"))

	doc, err := artifact.FromFile(f.image(t, "pan.jpg", 200<<10))
	require.NoError(t, err)
	s.wiz.SelectDocumentImage(doc)
	require.NoError(t, s.wiz.UploadDocument(ctx))
	f.waitForStep(t, id, api.StepSelfie)

	// An older pick from disk is replaced by the fresh capture.
	picked, err := artifact.FromFile(f.image(t, "old-selfie.jpg", 120<<10))
	require.NoError(t, err)
	s.wiz.SelectSelfieFile(picked)

	require.NoError(t, s.cam.Open(ctx))
	captured, err := s.cam.Capture()
	require.NoError(t, err)
	assert.Same(t, captured, s.wiz.SelfieSlot().Peek())
	assert.GreaterOrEqual(t, captured.SizeKB(), artifact.MinSizeKB)

	require.NoError(t, s.wiz.UploadSelfie(ctx))
	assert.Equal(t, wizard.StepStatus, s.wiz.Navigator().Current())

	select {
	case <-s.poll.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not reach a final status")
	}
	_, status, _, _, _ := s.wiz.Snapshot()
	assert.True(t, status.Terminal())
	assert.Equal(t, api.StatusApproved, status)

	assert.FileExists(t, f.uploaded(id, "selfie", captured.Data))
	assert.NoFileExists(t, f.uploaded(id, "selfie", picked.Data))

	s.close()
	assert.Contains(t, buf.String(), "Status:         APPROVED")
}

func TestStatusAndAdminCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.store.CreateSession(ctx, "9876543210")
	require.NoError(t, err)
	_, err = f.store.AddDocument(ctx, sess.ID, api.DocPassport)
	require.NoError(t, err)

	out, err := f.execute(t, "", "status", sess.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "IN_PROGRESS")

	out, err = f.execute(t, "", "admin", "list", "--doc-type", "passport")
	require.NoError(t, err)
	assert.Contains(t, out, sess.ID)

	out, err = f.execute(t, "", "admin", "list", "--status", "approved")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions matched your filters.")

	out, err = f.execute(t, "", "admin", "reject", sess.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "KYC session rejected.")
	assert.Contains(t, out, "REJECTED")

	_, err = f.execute(t, "", "admin", "show", "missing")
	assert.Error(t, err)

	out, err = f.execute(t, "", "status", "--watch", sess.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "REJECTED")

	_, err = f.execute(t, "", "status", "--watch", "missing")
	assert.Error(t, err, "a failed fetch ends the watch with an error")
}

func TestUnwritableLogDirWarns(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	cfg := config.Default(dir)
	cfg.LogPath = filepath.Join(blocker, "logs", "kyc.log")
	path := filepath.Join(dir, "config.json")
	require.NoError(t, config.Save(path, cfg))

	f := &fixture{cfgPath: path}
	out, err := f.execute(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Failed to open log file, logging disabled")
	assert.Contains(t, out, `"jpeg_quality": 90`)
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	f := &fixture{cfgPath: path}

	out, err := f.execute(t, "", "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written")

	_, err = f.execute(t, "", "config", "init")
	assert.Error(t, err)

	out, err = f.execute(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"listen_addr": "127.0.0.1:8000"`)
	assert.Contains(t, out, filepath.Join(dir, "sandbox.db"))
}

func TestConfigPathFromArgs(t *testing.T) {
	assert.Equal(t, "/etc/kyc.json", ConfigPathFromArgs([]string{"wizard", "--config", "/etc/kyc.json"}))
	assert.Equal(t, "a.json", ConfigPathFromArgs([]string{"--config=a.json", "status", "x"}))
	assert.Equal(t, DefaultConfigPath(), ConfigPathFromArgs([]string{"wizard"}))
}

func TestVideoKYCLink(t *testing.T) {
	assert.Equal(t, "https://kyc.example.com/video?session=s-1", videoKYCLink("https://kyc.example.com/video", "s-1"))
	assert.Equal(t, "https://kyc.example.com/video?lang=en&session=s+1", videoKYCLink("https://kyc.example.com/video?lang=en", "s 1"))
	assert.Equal(t, "https://kyc.example.com/video", videoKYCLink("https://kyc.example.com/video", ""))
}

func TestParseDocChoice(t *testing.T) {
	assert.Equal(t, api.DocPAN, parseDocChoice("1"))
	assert.Equal(t, api.DocVoterID, parseDocChoice("voter_id"))
	assert.Equal(t, api.DocType("9"), parseDocChoice("9"))
}
