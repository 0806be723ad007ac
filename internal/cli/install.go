package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"swiftkyc-client/internal/config"
	"swiftkyc-client/internal/device"

	"github.com/spf13/cobra"
)

// Default paths based on OS and privileges
func getDefaultInstallDir() string {
	if runtime.GOOS == "windows" {
		if isAdmin() {
			return `C:\ProgramData\swiftkyc`
		}
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "swiftkyc")
		}
		if dir, err := os.UserConfigDir(); err == nil {
			return filepath.Join(dir, "swiftkyc")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "swiftkyc")
	}

	if isAdmin() {
		return "/opt/swiftkyc"
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "swiftkyc")
}

// Check if running as Admin/Root
func isAdmin() bool {
	if runtime.GOOS == "windows" {
		f, err := os.Open("\\\\.\\PHYSICALDRIVE0")
		if err == nil {
			f.Close()
		}
		return err == nil
	}
	currentUser, err := user.Current()
	if err != nil {
		return false
	}
	return currentUser.Uid == "0"
}

// prompter reads answers from the command's input.
type prompter struct {
	r   *bufio.Reader
	out io.Writer
}

func (p *prompter) ask(label, defaultValue string) string {
	fmt.Fprintf(p.out, "%s [%s]: ", label, defaultValue)
	input, _ := p.r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	info, err := os.Stat(src)
	if err == nil {
		err = os.Chmod(dst, info.Mode())
	}
	return err
}

// installerConfig builds the config for a fresh install rooted at dir.
func installerConfig(p *prompter, dir string) *config.Config {
	cfg := config.Default(dir)
	cfg.DeviceID = p.ask("Device ID", device.ID())
	cfg.Sandbox.ListenAddr = p.ask("Sandbox listen address", config.DefaultSandboxListenAddr)
	cfg.Endpoint = p.ask("API Endpoint", "http://"+cfg.Sandbox.ListenAddr+"/api/v1")

	fmt.Fprintln(p.out, "\n--- Job Queue ---")
	fmt.Fprintln(p.out, "Leave empty to keep verification jobs in memory, or give a Redis address")
	fmt.Fprintln(p.out, "(host:port) so queued jobs survive a restart.")
	cfg.Sandbox.RedisAddr = p.ask("Redis address", "")
	return cfg
}

func installCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Interactive installer for the sandbox service",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p := &prompter{r: bufio.NewReader(cmd.InOrStdin()), out: out}

			fmt.Fprintln(out, "=== SwiftKYC Sandbox Installer ===")
			fmt.Fprintln(out, "Tip: Press [Enter] to accept the default value shown in brackets [].")

			amAdmin := isAdmin()
			if !amAdmin {
				fmt.Fprintln(out, "Warning: You are not running as Administrator/Root.")
				if runtime.GOOS == "windows" {
					fmt.Fprintln(out, "   On Windows, service registration will be SKIPPED if you continue.")
				} else {
					fmt.Fprintln(out, "   The sandbox will be registered as a user service.")
				}
				if strings.ToLower(p.ask("Continue anyway? (y/N)", "N")) != "y" {
					fmt.Fprintln(out, "Aborted.")
					return nil
				}
			}

			targetDir := p.ask("Install Directory", getDefaultInstallDir())
			if err := os.MkdirAll(targetDir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", targetDir, err)
			}

			currentExe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to find current executable: %w", err)
			}
			targetExe := filepath.Join(targetDir, filepath.Base(currentExe))

			realCurrent, _ := filepath.EvalSymlinks(currentExe)
			realTarget, _ := filepath.EvalSymlinks(targetExe)
			if realCurrent != realTarget {
				fmt.Fprintf(out, "-> Copying binary to %s...\n", targetExe)
				os.Remove(targetExe)
				if err := copyFile(currentExe, targetExe); err != nil {
					return fmt.Errorf("failed to copy binary: %w", err)
				}
			} else {
				fmt.Fprintln(out, "-> Binary is already in target location. Skipping copy.")
			}

			targetConfigPath := filepath.Join(targetDir, "config.json")
			if _, err := os.Stat(targetConfigPath); err == nil {
				fmt.Fprintf(out, "-> Found existing config at %s. Skipping configuration.\n", targetConfigPath)
			} else {
				fmt.Fprintln(out, "-> Generating new configuration...")
				cfg := installerConfig(p, targetDir)
				if err := config.Save(targetConfigPath, cfg); err != nil {
					return fmt.Errorf("failed to save config: %w", err)
				}
				fmt.Fprintln(out, "-> Configuration saved.")
			}

			if runtime.GOOS == "windows" && !amAdmin {
				fmt.Fprintln(out, "\n-> Skipping Service Registration (Not Admin).")
				fmt.Fprintf(out, "   To run the sandbox, open a terminal and run:\n   %s sandbox run --config %s\n", targetExe, targetConfigPath)
				return nil
			}

			// The service runs whatever binary registers it, so registration
			// happens from the installed copy.
			fmt.Fprintln(out, "-> Registering service via installed binary...")
			reg := exec.Command(targetExe, "sandbox", "service-install", "--config", targetConfigPath)
			reg.Stdout = out
			reg.Stderr = cmd.ErrOrStderr()
			if err := reg.Run(); err != nil {
				return fmt.Errorf("failed to register service: %w", err)
			}

			fmt.Fprintln(out, "-> Starting service...")
			if err := a.svc.Start(); err != nil {
				fmt.Fprintf(out, "Service start failed (it might be running): %v\n", err)
			} else {
				fmt.Fprintln(out, "Service started successfully!")
			}

			fmt.Fprintln(out, "\nInstallation Complete!")
			fmt.Fprintf(out, "Config: %s\n", targetConfigPath)
			return nil
		},
	}
}

// serviceInstallCmd registers the service from the binary it runs in, so
// the service definition points at this executable and its --config.
func serviceInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:    "service-install",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			err := a.svc.Install()
			if err != nil && strings.Contains(err.Error(), "already exists") {
				fmt.Fprintln(out, "Service definition already exists. Reinstalling...")
				if err := a.svc.Uninstall(); err != nil {
					return fmt.Errorf("failed to uninstall existing service: %w", err)
				}
				err = a.svc.Install()
			}
			if err != nil {
				return fmt.Errorf("failed to install service: %w", err)
			}
			fmt.Fprintln(out, "Service registration successful.")
			return nil
		},
	}
}
