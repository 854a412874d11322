package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/config"
	"github.com/Dilnura23/speech-recognition-safety-keyword-hci/internal/eventlog"
)

// CheckResult represents the outcome of a single environment check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the safeword runtime environment",
		Long: `Environment health check for the safeword service.

Validates:
- Wake-word engine binary on PATH
- Recorder (ffmpeg) binary on PATH
- Recordings and sample directories are writable
- Event log can be opened
- Encryption key strength
- Emergency contacts and delivery credentials

Examples:
  safeword doctor          # Run full health check
  safeword doctor --quiet  # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			results := []CheckResult{
				checkCommand("Engine", cfg.Engine.Command, "SAFEWORD_ENGINE_COMMAND"),
				checkCommand("Recorder", cfg.Audio.RecorderCommand, "SAFEWORD_FFMPEG_COMMAND"),
				checkWritableDir("Recordings dir", cfg.Data.RecordingsDir),
				checkWritableDir("Samples dir", cfg.Data.SamplesDir),
				checkEventLog(cfg),
				checkEncryption(cfg),
				checkContacts(cfg),
			}

			hasErrors := false
			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				// Print compact table
				fmt.Println()
				fmt.Println("Check              Status")
				fmt.Println("─────────────────────────")
				for _, r := range results {
					fmt.Printf("%-18s %s\n", r.Name, colorStatus(r.Status))
				}
				fmt.Println()

				// Print details for non-passing checks
				hasDetails := false
				for _, r := range results {
					if r.Status != "✓" && r.Details != "" {
						if !hasDetails {
							fmt.Println("Details:")
							hasDetails = true
						}
						fmt.Printf("\n%s:\n%s\n", r.Name, r.Details)
					}
				}

				if hasErrors {
					fmt.Println("\n⚠ Issues found. Fix the failing checks before going live.")
				} else {
					fmt.Println("All checks passed.")
				}
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode - exit code only")

	return cmd
}

func colorStatus(status string) string {
	switch status {
	case "✓":
		return color.New(color.FgGreen).Sprint(status)
	case "⚠":
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgRed).Sprint(status)
	}
}

// checkCommand verifies an external binary resolves on PATH
func checkCommand(name, command, envVar string) CheckResult {
	if _, err := exec.LookPath(command); err != nil {
		return CheckResult{
			Name:    name,
			Status:  "✗",
			Details: fmt.Sprintf("  %q not found in PATH\n  Set %s or install it", command, envVar),
		}
	}
	return CheckResult{Name: name, Status: "✓"}
}

// checkWritableDir validates the directory exists and accepts writes
func checkWritableDir(name, dir string) CheckResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Name:    name,
			Status:  "✗",
			Details: fmt.Sprintf("  Cannot create %s: %v", dir, err),
		}
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name:    name,
			Status:  "✗",
			Details: fmt.Sprintf("  %s is not writable: %v", dir, err),
		}
	}
	os.Remove(probe)
	return CheckResult{Name: name, Status: "✓"}
}

func checkEventLog(cfg config.Config) CheckResult {
	log, err := eventlog.Open(cfg.Data.EventLogPath)
	if err != nil {
		return CheckResult{
			Name:    "Event log",
			Status:  "✗",
			Details: fmt.Sprintf("  Cannot open %s: %v", cfg.Data.EventLogPath, err),
		}
	}
	log.Close()
	return CheckResult{Name: "Event log", Status: "✓"}
}

func checkEncryption(cfg config.Config) CheckResult {
	if !cfg.Action.Encrypt {
		return CheckResult{
			Name:    "Encryption",
			Status:  "⚠",
			Details: "  SAFEWORD_ENCRYPT_RECORDINGS is off; recordings stay plaintext",
		}
	}
	if cfg.Crypto.Passphrase == config.DefaultPassphrase {
		return CheckResult{
			Name:    "Encryption",
			Status:  "✗",
			Details: "  Using the built-in default key\n  Set SAFEWORD_ENCRYPTION_KEY to a strong passphrase",
		}
	}
	if len(cfg.Crypto.Passphrase) < 12 {
		return CheckResult{
			Name:    "Encryption",
			Status:  "⚠",
			Details: "  Passphrase is shorter than 12 characters",
		}
	}
	return CheckResult{Name: "Encryption", Status: "✓"}
}

func checkContacts(cfg config.Config) CheckResult {
	phones := len(cfg.Action.ContactPhones)
	emails := len(cfg.Action.ContactEmails)
	if phones == 0 && emails == 0 {
		return CheckResult{
			Name:    "Contacts",
			Status:  "⚠",
			Details: "  No emergency contacts configured\n  Set SAFEWORD_CONTACT_PHONES and/or SAFEWORD_CONTACT_EMAILS",
		}
	}

	var issues []string
	if phones > 0 && (cfg.Notify.TwilioSID == "" || cfg.Notify.TwilioToken == "" || cfg.Notify.TwilioFrom == "") {
		issues = append(issues, "phone contacts set but Twilio credentials incomplete")
	}
	if emails > 0 && (cfg.Notify.SMTPUsername == "" || cfg.Notify.SMTPPassword == "") {
		issues = append(issues, "email contacts set but SMTP credentials incomplete")
	}
	if len(issues) > 0 {
		return CheckResult{
			Name:    "Contacts",
			Status:  "⚠",
			Details: "  " + strings.Join(issues, "\n  "),
		}
	}
	return CheckResult{Name: "Contacts", Status: "✓"}
}
