package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/analyzer"
	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/testutil"
)

var envKeys = []string{
	"VEIL_ADDR", "VEIL_CORS_ORIGINS", "VEIL_LOG_FILE", "VEIL_AUDIT_FORMAT",
	"VEIL_LANGUAGES", "VEIL_PATTERN_FILE", "VEIL_MIN_SCORE", "VEIL_ENABLED_ENTITIES",
	"VEIL_DISABLED_ENTITIES", "VEIL_HASH_SALT", "VEIL_ENCRYPTION_KEY", "VEIL_MAX_BODY_MB",
	"VEIL_OTEL_ENABLED", "VEIL_LOG_MAX_SIZE_MB", "VEIL_LOG_MAX_BACKUPS",
}

func resetViper(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	viper.Reset()
	setDefaults(viper.GetViper())
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, "logs/anonymization.log", cfg.LogFile)
	assert.Equal(t, "text", cfg.AuditFormat)
	assert.Equal(t, []string{"en"}, cfg.Languages)
	assert.InDelta(t, 0.5, cfg.MinScore, 1e-9)
	assert.Equal(t, 10, cfg.MaxBodyMB)
	assert.Equal(t, int64(10<<20), cfg.MaxBodyBytes())
	assert.Empty(t, cfg.EncryptionKey)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_Env(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_ADDR", "127.0.0.1:9000")
	t.Setenv("VEIL_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("VEIL_LANGUAGES", "en,de")
	t.Setenv("VEIL_AUDIT_FORMAT", "JSON")
	t.Setenv("VEIL_MIN_SCORE", "0.7")
	t.Setenv("VEIL_DISABLED_ENTITIES", "URL")
	t.Setenv("VEIL_ENCRYPTION_KEY", "abcdefghijklmnopqrstuvwxyz012345")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"en", "de"}, cfg.Languages)
	assert.Equal(t, "json", cfg.AuditFormat)
	assert.InDelta(t, 0.7, cfg.MinScore, 1e-9)
	assert.Equal(t, []string{"URL"}, cfg.DisabledEntities)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz012345", cfg.EncryptionKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "veil.config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9100"
cors_origins:
  - https://app.example
enabled_entities: [US_SSN, EMAIL_ADDRESS]
hash_salt: pepper
`), 0o600))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"US_SSN", "EMAIL_ADDRESS"}, cfg.EnabledEntities)
	assert.Equal(t, "pepper", cfg.HashSalt)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"min score too high", "VEIL_MIN_SCORE", "1.5", "min_score must be within"},
		{"negative min score", "VEIL_MIN_SCORE", "-0.1", "min_score must be within"},
		{"unknown audit format", "VEIL_AUDIT_FORMAT", "xml", "audit_format must be"},
		{"zero body size", "VEIL_MAX_BODY_MB", "0", "max_body_mb must be positive"},
		{"short encryption key", "VEIL_ENCRYPTION_KEY", "too-short", "encryption_key"},
		{"negative rotation size", "VEIL_LOG_MAX_SIZE_MB", "-1", "log_max_size_mb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAuditOptions(t *testing.T) {
	resetViper(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuditOptions(), "rotation is off by default")

	t.Setenv("VEIL_LOG_MAX_SIZE_MB", "50")
	t.Setenv("VEIL_LOG_MAX_BACKUPS", "3")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.LogMaxSizeMB)
	assert.Equal(t, 3, cfg.LogMaxBackups)
	assert.Len(t, cfg.AuditOptions(), 1)
}

func TestLoad_EmptyAddr(t *testing.T) {
	resetViper(t)
	viper.Set(KeyAddr, "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "addr must not be empty")
}

func TestLoad_HexEncryptionKey(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_ENCRYPTION_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")

	_, err := Load()
	require.NoError(t, err)
}

func TestAnalyzerOptions(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_DISABLED_ENTITIES", "URL,IP_ADDRESS")

	cfg, err := Load()
	require.NoError(t, err)
	eng, err := analyzer.NewEngine(cfg.AnalyzerOptions()...)
	require.NoError(t, err)

	entities, err := eng.SupportedEntities("en")
	require.NoError(t, err)
	assert.NotContains(t, entities, "URL")
	assert.NotContains(t, entities, "IP_ADDRESS")
	assert.Contains(t, entities, "US_SSN")
}

func TestAnonymizerOptions(t *testing.T) {
	resetViper(t)
	t.Setenv("VEIL_ENCRYPTION_KEY", testutil.TestEncryptionKey)

	cfg, err := Load()
	require.NoError(t, err)
	eng := anonymizer.New(cfg.AnonymizerOptions()...)

	results := []analyzer.RecognizerResult{{EntityType: "X", Start: 0, End: 5, Score: 1}}
	res, err := eng.Anonymize(context.Background(), "hello", results, map[string]anonymizer.OperatorConfig{
		anonymizer.DefaultLabel: {Name: anonymizer.OperatorEncrypt},
	})
	require.NoError(t, err, "configured key is used as the encrypt default")

	plain, err := anonymizer.Decrypt(testutil.TestEncryptionKey, res.Text)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)
}
