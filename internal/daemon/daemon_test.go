package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/artifact"
	"swiftkyc-client/internal/config"

	"github.com/alicebob/miniredis/v2"
)

func testConfig(t *testing.T) *config.Config {
	tmpDir, err := os.MkdirTemp("", "daemon_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	cfg := config.Default(tmpDir)
	cfg.Sandbox.ListenAddr = "127.0.0.1:0"
	cfg.Sandbox.WorkerInterval = "20ms"
	cfg.Sandbox.RateLimitPerMinute = 0
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, *api.Client) {
	d := &Daemon{Logger: slog.New(slog.DiscardHandler), Cfg: cfg}
	if err := d.Start(nil); err != nil {
		t.Fatalf("Failed to start daemon: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Stop(nil); err != nil {
			t.Errorf("Stop returned %v", err)
		}
	})
	return d, api.NewClient("http://"+d.Addr().String()+"/api/v1", "5s")
}

// waitForStep polls the session until it reaches step or the deadline passes.
func waitForStep(t *testing.T, c *api.Client, id string, step api.Step) *api.Session {
	deadline := time.Now().Add(3 * time.Second)
	for {
		s, err := c.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if s.CurrentStep == step {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("Session stuck at %s, want %s", s.CurrentStep, step)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func runDocumentFlow(t *testing.T, c *api.Client) {
	ctx := context.Background()
	s, err := c.CreateSession(ctx, "9876543210")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := c.SelectDocument(ctx, s.ID, api.DocAadhaar); err != nil {
		t.Fatalf("SelectDocument: %v", err)
	}
	scan := &artifact.Artifact{Data: make([]byte, 300<<10), ContentType: artifact.ContentTypePNG, Filename: "aadhaar.png"}
	if err := c.ValidateDocument(ctx, s.ID, scan); err != nil {
		t.Fatalf("ValidateDocument: %v", err)
	}
	waitForStep(t, c, s.ID, api.StepSelfie)
}

func TestDaemonServesWithMemoryQueue(t *testing.T) {
	cfg := testConfig(t)
	_, c := startDaemon(t, cfg)

	runDocumentFlow(t, c)

	if _, err := os.Stat(cfg.Sandbox.DBPath); err != nil {
		t.Errorf("Expected database at %s: %v", cfg.Sandbox.DBPath, err)
	}
	entries, _ := os.ReadDir(cfg.Sandbox.UploadDir)
	if len(entries) != 1 {
		t.Errorf("Expected one session upload folder, got %d", len(entries))
	}
}

func TestDaemonServesWithRedisQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Sandbox.RedisAddr = mr.Addr()
	_, c := startDaemon(t, cfg)

	runDocumentFlow(t, c)
}

func TestDaemonFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sandbox.RedisAddr = "127.0.0.1:1"

	d := &Daemon{Logger: slog.New(slog.DiscardHandler), Cfg: cfg}
	if err := d.Start(nil); err == nil {
		d.Stop(nil)
		t.Fatal("Expected start to fail without redis")
	}
	if _, err := os.Stat(filepath.Dir(cfg.Sandbox.DBPath)); err != nil {
		t.Errorf("Data dir should still exist: %v", err)
	}
}
