package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dativo-io/veil/internal/doctor"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (config, recognizers, audit log, operators)",
	Long:  "Verifies the configuration is valid, recognizers compile, the audit log is writable, and a sample text is anonymized.",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

var doctorLabels = map[string]string{
	"config_load":        "Config",
	"pattern_file":       "Pattern file",
	"recognizers":        "Recognizers",
	"audit_log_writable": "Audit log",
	"audit_log_size":     "Audit log size",
	"encryption_key":     "Encryption key",
	"hash_salt":          "Hash salt",
	"anonymize_probe":    "Anonymize probe",
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	report := doctor.Run(ctx, doctor.Options{})
	out := cmd.OutOrStdout()

	if doctorJSON {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		for _, c := range report.Checks {
			label := doctorLabels[c.Name]
			if label == "" {
				label = c.Name
			}
			fmt.Fprintf(out, "%s %s: %s\n", statusIcon(c.Status), label, c.Message)
			if c.Fix != "" && c.Status != doctor.StatusPass {
				fmt.Fprintf(out, "    fix: %s\n", c.Fix)
			}
		}
	}

	if report.Status == doctor.StatusFail {
		return fmt.Errorf("preflight checks failed")
	}
	if !doctorJSON {
		fmt.Fprintf(out, "\nAll checks passed.\n")
	}
	return nil
}

func statusIcon(status string) string {
	switch status {
	case doctor.StatusPass:
		return "✓"
	case doctor.StatusWarn:
		return "⚠"
	default:
		return "✗"
	}
}
