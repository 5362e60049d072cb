// Package config holds operator-level configuration for a veil process:
// listen address, CORS allow-list, audit log location and format, analyzer
// tuning, and key material for the hash and encrypt operators.
//
// Values come from viper, which merges (highest first) command flags bound
// in internal/cmd, VEIL_* environment variables, veil.config.yaml, and the
// defaults registered here.
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/veil/internal/analyzer"
	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/auditlog"
	"github.com/dativo-io/veil/internal/cryptoutil"
)

// Viper keys. Each maps to an env var with the VEIL_ prefix
// (e.g. "log_file" → VEIL_LOG_FILE) and to a field in veil.config.yaml.
const (
	KeyAddr             = "addr"
	KeyCORSOrigins      = "cors_origins"
	KeyLogFile          = "log_file"
	KeyAuditFormat      = "audit_format"
	KeyLogMaxSizeMB     = "log_max_size_mb"
	KeyLogMaxBackups    = "log_max_backups"
	KeyLanguages        = "languages"
	KeyPatternFile      = "pattern_file"
	KeyMinScore         = "min_score"
	KeyEnabledEntities  = "enabled_entities"
	KeyDisabledEntities = "disabled_entities"
	KeyHashSalt         = "hash_salt"
	KeyEncryptionKey    = "encryption_key"
	KeyMaxBodyMB        = "max_body_mb"
	KeyOTelEnabled      = "otel_enabled"
)

// Defaults.
const (
	DefaultAddr        = ":8000"
	DefaultCORSOrigin  = "http://localhost:3000"
	DefaultLogFile     = auditlog.DefaultPath
	DefaultAuditFormat = auditlog.FormatText
	DefaultLanguage    = "en"
	DefaultMinScore    = 0.5
	DefaultMaxBodyMB   = 10
)

// Config holds resolved configuration for a veil process.
type Config struct {
	Addr             string   // HTTP listen address
	CORSOrigins      []string // origins allowed to call the API from a browser
	LogFile          string   // audit log path, created if absent
	AuditFormat      string   // "text" or "json"
	LogMaxSizeMB     int      // rotate the audit log at this size; 0 never rotates
	LogMaxBackups    int      // rotated files to keep; 0 keeps all
	Languages        []string // languages the analyzer accepts
	PatternFile      string   // optional recognizer YAML layered over the defaults
	MinScore         float64  // analyzer score threshold
	EnabledEntities  []string // when set, only these entity types are detected
	DisabledEntities []string
	HashSalt         string // default salt for the hash operator
	EncryptionKey    string // key for the encrypt operator (32 bytes or 64 hex chars)
	MaxBodyMB        int
	OTelEnabled      bool
}

// MaxBodyBytes returns the request body limit in bytes.
func (c *Config) MaxBodyBytes() int64 {
	return int64(c.MaxBodyMB) << 20
}

// WarnIfNoEncryptionKey logs when the encrypt operator cannot be used.
func (c *Config) WarnIfNoEncryptionKey() {
	if c.EncryptionKey == "" {
		log.Debug().Msg("encryption_key not set; the encrypt operator will reject requests")
	}
}

func init() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix("VEIL")
	v.AutomaticEnv()
	v.SetDefault(KeyAddr, DefaultAddr)
	v.SetDefault(KeyCORSOrigins, []string{DefaultCORSOrigin})
	v.SetDefault(KeyLogFile, DefaultLogFile)
	v.SetDefault(KeyAuditFormat, DefaultAuditFormat)
	v.SetDefault(KeyLogMaxSizeMB, 0)
	v.SetDefault(KeyLogMaxBackups, 0)
	v.SetDefault(KeyLanguages, []string{DefaultLanguage})
	v.SetDefault(KeyMinScore, DefaultMinScore)
	v.SetDefault(KeyMaxBodyMB, DefaultMaxBodyMB)
	v.SetDefault(KeyOTelEnabled, false)
}

// Load reads configuration from viper and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:             viper.GetString(KeyAddr),
		CORSOrigins:      stringList(KeyCORSOrigins),
		LogFile:          viper.GetString(KeyLogFile),
		AuditFormat:      strings.ToLower(viper.GetString(KeyAuditFormat)),
		LogMaxSizeMB:     viper.GetInt(KeyLogMaxSizeMB),
		LogMaxBackups:    viper.GetInt(KeyLogMaxBackups),
		Languages:        stringList(KeyLanguages),
		PatternFile:      viper.GetString(KeyPatternFile),
		MinScore:         viper.GetFloat64(KeyMinScore),
		EnabledEntities:  stringList(KeyEnabledEntities),
		DisabledEntities: stringList(KeyDisabledEntities),
		HashSalt:         viper.GetString(KeyHashSalt),
		EncryptionKey:    viper.GetString(KeyEncryptionKey),
		MaxBodyMB:        viper.GetInt(KeyMaxBodyMB),
		OTelEnabled:      viper.GetBool(KeyOTelEnabled),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// stringList reads a list key. Env vars arrive as a single string, so
// comma-separated values are split as well.
func stringList(key string) []string {
	var out []string
	for _, item := range viper.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.LogFile == "" {
		return fmt.Errorf("log_file must not be empty")
	}
	if c.AuditFormat != auditlog.FormatText && c.AuditFormat != auditlog.FormatJSON {
		return fmt.Errorf("audit_format must be %q or %q (got %q)", auditlog.FormatText, auditlog.FormatJSON, c.AuditFormat)
	}
	if c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 {
		return fmt.Errorf("log_max_size_mb and log_max_backups must not be negative")
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("languages must list at least one language")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be within [0, 1] (got %v)", c.MinScore)
	}
	if c.MaxBodyMB <= 0 {
		return fmt.Errorf("max_body_mb must be positive")
	}
	if c.EncryptionKey != "" {
		if _, err := cryptoutil.ParseKey(c.EncryptionKey); err != nil {
			return fmt.Errorf("encryption_key: %w; set VEIL_ENCRYPTION_KEY", err)
		}
	}
	return nil
}

// AnalyzerOptions returns the analyzer options this configuration implies.
func (c *Config) AnalyzerOptions() []analyzer.Option {
	return []analyzer.Option{
		analyzer.WithLanguages(c.Languages...),
		analyzer.WithMinScore(c.MinScore),
		analyzer.WithPatternFile(c.PatternFile),
		analyzer.WithEnabledEntities(c.EnabledEntities),
		analyzer.WithDisabledEntities(c.DisabledEntities),
	}
}

// AnonymizerOptions registers the configured hash salt and encryption key as
// operator defaults.
func (c *Config) AnonymizerOptions() []anonymizer.Option {
	var opts []anonymizer.Option
	if c.HashSalt != "" {
		opts = append(opts, anonymizer.WithOperatorDefaults(anonymizer.OperatorHash, anonymizer.Params{
			anonymizer.ParamSalt: c.HashSalt,
		}))
	}
	if c.EncryptionKey != "" {
		opts = append(opts, anonymizer.WithOperatorDefaults(anonymizer.OperatorEncrypt, anonymizer.Params{
			anonymizer.ParamKey: c.EncryptionKey,
		}))
	}
	return opts
}

// AuditOptions returns the audit log options this configuration implies.
func (c *Config) AuditOptions() []auditlog.Option {
	if c.LogMaxSizeMB <= 0 {
		return nil
	}
	return []auditlog.Option{auditlog.WithRotation(c.LogMaxSizeMB, c.LogMaxBackups)}
}
