package cli

// Package cli wires the cobra command tree: the onboarding wizard, status
// checks, the admin console and the sandbox service controls.

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"swiftkyc-client/internal/config"
	"swiftkyc-client/internal/daemon"
	"swiftkyc-client/internal/logger"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// app carries what every command needs once flags are parsed.
type app struct {
	svc       service.Service
	daemon    *daemon.Daemon
	svcLogger service.Logger

	cfgPath string
	debug   bool

	cfg     *config.Config
	logger  *slog.Logger
	logFile *logger.Rotator
}

// DefaultConfigPath is config.json next to the executable.
func DefaultConfigPath() string {
	ex, err := os.Executable()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(filepath.Dir(ex), "config.json")
}

// ConfigPathFromArgs finds a --config value in raw arguments, so the service
// definition can be built before cobra parses anything.
func ConfigPathFromArgs(args []string) string {
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return DefaultConfigPath()
}

// NewRootCmd creates the root command and all subcommands for the CLI.
// d is the program registered with s; sandbox commands configure it before
// the service manager starts it.
func NewRootCmd(s service.Service, d *daemon.Daemon, svcLogger service.Logger, cfgPath string) *cobra.Command {
	a := &app{svc: s, daemon: d, svcLogger: svcLogger}

	var rootCmd = &cobra.Command{
		Use:           "kyc",
		Short:         "SwiftKYC terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", cfgPath, "path to config.json")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "log at debug level")

	rootCmd.AddCommand(
		wizardCmd(a),
		statusCmd(a),
		adminCmd(a),
		sandboxCmd(a),
		configCmd(a),
	)
	return rootCmd
}

// setup loads the config and opens the log. Sandbox commands log to the
// sandbox file and the system log; everything else to the client log only.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}

	logPath, svcLogger := cfg.LogPath, service.Logger(nil)
	if underSandbox(cmd) {
		logPath, svcLogger = cfg.Sandbox.LogPath, a.svcLogger
	}

	var w io.Writer = io.Discard
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Failed to open log file, logging disabled: %v\n", err)
		} else {
			a.logFile = logger.NewRotator(logPath, cfg.LogMaxSizeMB)
			w = a.logFile
		}
	}
	a.logger = logger.Setup(svcLogger, w, level)

	if a.daemon != nil {
		a.daemon.Logger = a.logger
		a.daemon.Cfg = cfg
	}
	return nil
}

func (a *app) teardown() {
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func underSandbox(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Name() == "sandbox" {
			return true
		}
	}
	return false
}

// syncWriter serializes writes from the prompt loop, the poller and the
// message bar timers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
