package config

// Package config loads and saves the JSON configuration shared by the KYC client,
// the admin console and the local sandbox service.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultEndpoint       = "http://127.0.0.1:8000/api/v1"
	DefaultAPITimeout     = "30s"
	DefaultPollInterval   = "5s"
	DefaultMessageDismiss = "6s"
	DefaultCameraWidth    = 1280
	DefaultCameraHeight   = 720
	DefaultJPEGQuality    = 90
	DefaultVideoKYCURL    = "https://kyc.example.com/video"
	DefaultLogMaxSizeMB   = 10

	DefaultSandboxListenAddr  = "127.0.0.1:8000"
	DefaultWorkerInterval     = "1s"
	DefaultAbandonAfter       = "30m"
	DefaultSweepInterval      = "1m"
	DefaultRateLimitPerMinute = 600
	DefaultMaxRetries         = 3
)

// Config holds every tunable of the client and the sandbox service.
type Config struct {
	Endpoint       string `json:"endpoint"`        // versioned API root of the verification service
	APITimeout     string `json:"api_timeout"`     // per-request timeout, e.g. "30s"
	PollInterval   string `json:"poll_interval"`   // status poller cadence
	MessageDismiss string `json:"message_dismiss"` // auto-dismiss delay of the messaging bar
	CameraDir      string `json:"camera_dir"`      // directory fed with frames by the capture tool
	CameraWidth    int    `json:"camera_width"`
	CameraHeight   int    `json:"camera_height"`
	JPEGQuality    int    `json:"jpeg_quality"`
	VideoKYCURL    string `json:"video_kyc_url"`
	DeviceID       string `json:"device_id"`
	LogPath        string `json:"log_path"`
	LogMaxSizeMB   int    `json:"log_max_size_mb"`

	Sandbox Sandbox `json:"sandbox"`
}

// Sandbox configures the local stand-in verification service.
type Sandbox struct {
	ListenAddr         string `json:"listen_addr"`
	DBPath             string `json:"db_path"`
	UploadDir          string `json:"upload_dir"`
	LogPath            string `json:"log_path"`
	RedisAddr          string `json:"redis_addr"` // empty selects the in-memory queue
	WorkerInterval     string `json:"worker_interval"`
	AbandonAfter       string `json:"abandon_after"`
	SweepInterval      string `json:"sweep_interval"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	MaxRetries         int    `json:"max_retries"`
}

// Default returns a configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Endpoint:       DefaultEndpoint,
		APITimeout:     DefaultAPITimeout,
		PollInterval:   DefaultPollInterval,
		MessageDismiss: DefaultMessageDismiss,
		CameraDir:      filepath.Join(dir, "camera"),
		CameraWidth:    DefaultCameraWidth,
		CameraHeight:   DefaultCameraHeight,
		JPEGQuality:    DefaultJPEGQuality,
		VideoKYCURL:    DefaultVideoKYCURL,
		LogPath:        filepath.Join(dir, "kyc.log"),
		LogMaxSizeMB:   DefaultLogMaxSizeMB,
		Sandbox: Sandbox{
			ListenAddr:         DefaultSandboxListenAddr,
			DBPath:             filepath.Join(dir, "sandbox.db"),
			UploadDir:          filepath.Join(dir, "uploads"),
			LogPath:            filepath.Join(dir, "sandbox.log"),
			WorkerInterval:     DefaultWorkerInterval,
			AbandonAfter:       DefaultAbandonAfter,
			SweepInterval:      DefaultSweepInterval,
			RateLimitPerMinute: DefaultRateLimitPerMinute,
			MaxRetries:         DefaultMaxRetries,
		},
	}
}

// Load reads the config at path. A missing file yields the defaults rooted
// next to it; fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default(filepath.Dir(path))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, replacing any previous file atomically where the
// platform allows it.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return writeFile(path, data)
}

// Duration parses value, returning def when value is empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
