// Package doctor provides preflight checks for a veil installation. Used by
// `veil doctor`.
package doctor

import (
	"context"
	"fmt"
	"os"

	"github.com/dativo-io/veil/internal/analyzer"
	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/auditlog"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/pipeline"
)

// Check statuses, ordered by severity.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// ProbeText is anonymized end to end by the probe check.
const ProbeText = "My SSN is 123-45-6789"

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks run.
type Options struct {
	// SkipAuditLog skips the writability check, which creates the log file
	// if it does not exist.
	SkipAuditLog bool
}

// Run executes all checks against the current configuration.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check VEIL_* environment variables and veil.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: StatusPass,
			Message: fmt.Sprintf("addr %s, languages %v", cfg.Addr, cfg.Languages),
		})
		report.Checks = append(report.Checks, checkConfig(ctx, cfg, opts)...)
	}

	for _, c := range report.Checks {
		switch c.Status {
		case StatusPass:
			report.Summary.Pass++
		case StatusWarn:
			report.Summary.Warn++
		case StatusFail:
			report.Summary.Fail++
		}
	}
	report.Status = StatusPass
	if report.Summary.Warn > 0 {
		report.Status = StatusWarn
	}
	if report.Summary.Fail > 0 {
		report.Status = StatusFail
	}
	return report
}

func checkConfig(ctx context.Context, cfg *config.Config, opts Options) []CheckResult {
	var results []CheckResult
	if cfg.PatternFile != "" {
		results = append(results, checkPatternFile(cfg))
	}

	eng, err := analyzer.NewEngine(cfg.AnalyzerOptions()...)
	if err != nil {
		return append(results, CheckResult{
			Name: "recognizers", Category: "analyzer", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Fix the recognizer YAML named by pattern_file",
		})
	}
	results = append(results, CheckResult{
		Name: "recognizers", Category: "analyzer", Status: StatusPass,
		Message: fmt.Sprintf("%d active", len(eng.Recognizers())),
	})

	if !opts.SkipAuditLog {
		results = append(results, checkAuditLog(cfg)...)
	}
	results = append(results, checkKeys(cfg)...)
	results = append(results, checkProbe(ctx, cfg, eng))
	return results
}

func checkPatternFile(cfg *config.Config) CheckResult {
	if _, err := os.Stat(cfg.PatternFile); err != nil {
		return CheckResult{
			Name: "pattern_file", Category: "analyzer", Status: StatusWarn,
			Message: fmt.Sprintf("%s not found, using embedded recognizers only", cfg.PatternFile),
			Fix:     "Create the file or unset pattern_file",
		}
	}
	return CheckResult{
		Name: "pattern_file", Category: "analyzer", Status: StatusPass,
		Message: cfg.PatternFile,
	}
}

func checkAuditLog(cfg *config.Config) []CheckResult {
	audit, err := auditlog.Open(cfg.LogFile, cfg.AuditFormat, cfg.AuditOptions()...)
	if err != nil {
		return []CheckResult{{
			Name: "audit_log_writable", Category: "audit", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Ensure the log_file directory exists and is writable",
		}}
	}
	_ = audit.Close()
	results := []CheckResult{{
		Name: "audit_log_writable", Category: "audit", Status: StatusPass,
		Message: fmt.Sprintf("%s (%s)", cfg.LogFile, cfg.AuditFormat),
	}}
	if fi, err := os.Stat(cfg.LogFile); err == nil {
		results = append(results, CheckResult{
			Name: "audit_log_size", Category: "audit", Status: StatusPass,
			Message: fmt.Sprintf("%.1f MB", float64(fi.Size())/(1024*1024)),
		})
	}
	return results
}

func checkKeys(cfg *config.Config) []CheckResult {
	var results []CheckResult
	if cfg.EncryptionKey == "" {
		results = append(results, CheckResult{
			Name: "encryption_key", Category: "operators", Status: StatusWarn,
			Message: "Not set; the encrypt operator will reject requests",
			Fix:     "Set VEIL_ENCRYPTION_KEY (32 bytes or 64 hex characters)",
		})
	} else {
		results = append(results, CheckResult{
			Name: "encryption_key", Category: "operators", Status: StatusPass, Message: "Configured",
		})
	}
	if cfg.HashSalt == "" {
		results = append(results, CheckResult{
			Name: "hash_salt", Category: "operators", Status: StatusWarn,
			Message: "Not set; hashed values can be reversed by dictionary lookup",
			Fix:     "Set VEIL_HASH_SALT",
		})
	} else {
		results = append(results, CheckResult{
			Name: "hash_salt", Category: "operators", Status: StatusPass, Message: "Configured",
		})
	}
	return results
}

// checkProbe anonymizes ProbeText without an audit log.
func checkProbe(ctx context.Context, cfg *config.Config, eng *analyzer.Engine) CheckResult {
	svc := pipeline.New(eng, anonymizer.New(cfg.AnonymizerOptions()...), nil)
	resp, err := svc.Anonymize(ctx, pipeline.NewRequest(ProbeText))
	if err != nil {
		return CheckResult{
			Name: "anonymize_probe", Category: "pipeline", Status: StatusFail,
			Message: err.Error(),
		}
	}
	if resp.AnonymizedText == ProbeText {
		return CheckResult{
			Name: "anonymize_probe", Category: "pipeline", Status: StatusFail,
			Message: "Sample SSN was not changed",
			Fix:     "Check enabled_entities / disabled_entities and min_score",
		}
	}
	return CheckResult{
		Name: "anonymize_probe", Category: "pipeline", Status: StatusPass,
		Message: fmt.Sprintf("%q -> %q", ProbeText, resp.AnonymizedText),
	}
}
