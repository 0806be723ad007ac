package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"swiftkyc-client/internal/api"
	"swiftkyc-client/internal/artifact"
	"swiftkyc-client/internal/camera"
	"swiftkyc-client/internal/config"
	"swiftkyc-client/internal/notify"
	"swiftkyc-client/internal/poller"
	"swiftkyc-client/internal/wizard"

	"github.com/spf13/cobra"
)

func wizardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Run the seven-step KYC onboarding in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := &syncWriter{w: cmd.OutOrStdout()}
			gw := a.gateway()
			s := newShell(a.cfg, gw, gw, out, a.logger)
			return s.run(ctx, cmd.InOrStdin())
		},
	}
}

// shell is the line-oriented front end of the wizard.
type shell struct {
	cfg    *config.Config
	out    io.Writer
	logger *slog.Logger

	bar  *notify.Bar
	wiz  *wizard.Wizard
	cam  *camera.Pipeline
	poll *poller.Poller
}

func newShell(cfg *config.Config, gw wizard.Gateway, f poller.Fetcher, out io.Writer, logger *slog.Logger) *shell {
	s := &shell{cfg: cfg, out: out, logger: logger}
	s.bar = notify.New(notify.WriterRenderer{W: out}, config.Duration(cfg.MessageDismiss, 6*time.Second))

	nav := wizard.NewNavigator(s.bar, func(p wizard.Progress) {
		fmt.Fprintf(out, "\n== %s · %s (%.0f%%) ==\n", p.Counter, p.Phase, p.Percent)
	})
	s.poll = poller.New(f, s.bar, config.Duration(cfg.PollInterval, poller.DefaultInterval), s.publish, logger)
	s.wiz = wizard.New(wizard.Options{
		Gateway:   gw,
		Bar:       s.bar,
		Navigator: nav,
		Poller:    s.poll,
		Logger:    logger,
	})
	s.cam = camera.New(&camera.DirDevice{Dir: cfg.CameraDir, Logger: logger}, s.bar, s.wiz.SelfieSlot(), camera.Options{
		Width:   cfg.CameraWidth,
		Height:  cfg.CameraHeight,
		Quality: cfg.JPEGQuality,
		Logger:  logger,
	})
	nav.OnLeave(wizard.StepSelfie, s.cam.Close)
	return s
}

// publish runs on the poller goroutine.
func (s *shell) publish(v poller.View) {
	s.wiz.RecordStatus(v.Status)
	writeView(s.out, v)
}

func writeView(w io.Writer, v poller.View) {
	fmt.Fprintf(w, "Session:        %s\n", v.SessionID)
	fmt.Fprintf(w, "Current step:   %s\n", v.CurrentStep)
	fmt.Fprintf(w, "Status:         %s\n", v.StatusText)
	fmt.Fprintf(w, "Failure reason: %s\n", v.FailureReason)
	fmt.Fprintf(w, "Retries:        document %s, selfie %s\n", v.RetriesDoc, v.RetriesSelfie)
	fmt.Fprintf(w, "Face match:     %s\n", v.FaceScore)
	if v.Assisted {
		fmt.Fprintln(w, "Digital KYC could not be completed. Type 'video' to request assisted Video KYC.")
	}
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	defer s.close()

	fmt.Fprintln(s.out, "SwiftKYC onboarding. Type 'help' for commands.")
	s.prompt()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			if s.handle(ctx, strings.TrimSpace(line)) {
				return nil
			}
			s.prompt()
		}
	}
}

func (s *shell) close() {
	s.poll.Stop()
	s.cam.Close()
	s.bar.Close()
}

func (s *shell) prompt() {
	switch s.wiz.Navigator().Current() {
	case wizard.StepBasicDetails:
		fmt.Fprint(s.out, "Date of birth (YYYY-MM-DD): ")
	case wizard.StepCreateSession:
		fmt.Fprint(s.out, "Mobile number (10 digits): ")
	case wizard.StepSelectDocument:
		for i, t := range api.DocTypes {
			fmt.Fprintf(s.out, "  %d) %s\n", i+1, t)
		}
		fmt.Fprint(s.out, "Document type: ")
	case wizard.StepDocNumber:
		_, _, _, hints, _ := s.wiz.Snapshot()
		fmt.Fprintln(s.out, hints.Format)
		fmt.Fprintf(s.out, "Document number %s: ", hints.Label)
	case wizard.StepUploadDocument:
		fmt.Fprint(s.out, "Document image path, or 'upload': ")
	case wizard.StepSelfie:
		fmt.Fprint(s.out, "Selfie ('camera', 'capture', 'file <path>', 'upload'): ")
	case wizard.StepStatus:
		fmt.Fprint(s.out, "Status ('refresh', 'video', 'restart'): ")
	}
}

const helpText = `Commands available at every step:
  back          previous step
  goto <1-7>    jump to a step
  video         request assisted Video KYC
  restart       start over (alias: reset)
  help          this text
  quit          leave the wizard
Anything else is the answer to the current prompt.`

// handle runs one input line and reports whether the shell should exit.
func (s *shell) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(s.out, helpText)
		return false
	case "back":
		s.report(s.wiz.Back())
		return false
	case "goto":
		n, err := strconv.Atoi(arg)
		if err != nil {
			s.report(wizard.ErrStepRange)
			return false
		}
		s.report(s.wiz.Jump(wizard.Step(n)))
		return false
	case "video":
		s.wiz.RequestVideoKYC()
		id, _, _, _, _ := s.wiz.Snapshot()
		printQR(s.out, videoKYCLink(s.cfg.VideoKYCURL, id))
		return false
	case "restart", "reset":
		s.report(s.wiz.Reset())
		return false
	}

	s.report(s.answer(ctx, line, strings.ToLower(cmd), arg))
	return false
}

// answer feeds line to the controller of the active step.
func (s *shell) answer(ctx context.Context, line, cmd, arg string) error {
	switch s.wiz.Navigator().Current() {
	case wizard.StepBasicDetails:
		return s.wiz.SubmitBasicDetails(line)
	case wizard.StepCreateSession:
		return s.wiz.CreateSession(ctx, line)
	case wizard.StepSelectDocument:
		return s.wiz.SelectDocument(ctx, parseDocChoice(line))
	case wizard.StepDocNumber:
		return s.wiz.EnterDocNumber(ctx, line)
	case wizard.StepUploadDocument:
		if cmd == "upload" {
			return s.wiz.UploadDocument(ctx)
		}
		path := line
		if cmd == "file" {
			path = arg
		}
		doc, err := artifact.FromFile(path)
		if err != nil {
			return err
		}
		for _, warning := range s.wiz.SelectDocumentImage(doc) {
			fmt.Fprintln(s.out, "  warning: "+warning)
		}
		fmt.Fprintf(s.out, "Selected %s (%d KB). Type 'upload' to submit.\n", doc.Filename, doc.SizeKB())
		return nil
	case wizard.StepSelfie:
		return s.selfie(ctx, cmd, arg)
	case wizard.StepStatus:
		if cmd != "refresh" {
			return fmt.Errorf("unknown command %q", cmd)
		}
		v, err := s.poll.Refresh(ctx)
		if err != nil {
			return err
		}
		s.wiz.RecordStatus(v.Status)
		writeView(s.out, v)
		return nil
	}
	return nil
}

func (s *shell) selfie(ctx context.Context, cmd, arg string) error {
	switch cmd {
	case "camera":
		return s.cam.Open(ctx)
	case "capture":
		_, err := s.cam.Capture()
		return err
	case "close":
		s.cam.Close()
		return nil
	case "file":
		a, err := artifact.FromFile(arg)
		if err != nil {
			return err
		}
		s.wiz.SelectSelfieFile(a)
		fmt.Fprintf(s.out, "Selected %s (%d KB). Type 'upload' to submit.\n", a.Filename, a.SizeKB())
		return nil
	case "upload":
		return s.wiz.UploadSelfie(ctx)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// parseDocChoice accepts a menu number or a type name.
func parseDocChoice(in string) api.DocType {
	if n, err := strconv.Atoi(in); err == nil && n >= 1 && n <= len(api.DocTypes) {
		return api.DocTypes[n-1]
	}
	return api.DocType(strings.ToUpper(in))
}

// report prints errors the bar has not already shown.
func (s *shell) report(err error) {
	if err == nil {
		return
	}
	var ve *wizard.ValidationError
	var apiErr *api.Error
	var te *api.TransportError
	switch {
	case errors.As(err, &ve):
		fmt.Fprintln(s.out, "  ! "+ve.Message)
	case errors.As(err, &apiErr), errors.As(err, &te),
		errors.Is(err, camera.ErrPermissionDenied), errors.Is(err, camera.ErrUnsupported),
		errors.Is(err, camera.ErrNotStreaming), errors.Is(err, wizard.ErrNoSession):
		s.logger.Debug("Wizard action failed", "error", err)
	default:
		fmt.Fprintln(s.out, "  ! "+err.Error())
	}
}
