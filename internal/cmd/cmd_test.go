package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/doctor"
	"github.com/dativo-io/veil/internal/pipeline"
	"github.com/dativo-io/veil/internal/testutil"
)

// executeCommand runs the root command with args and returns stdout.
// Command flag variables are package globals, so they are reset first.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	anonLanguage = pipeline.DefaultLanguage
	anonMethod = pipeline.DefaultMethod
	anonMaskingChar = pipeline.DefaultMaskingChar
	anonCharsToMask = pipeline.DefaultCharsToMask
	anonFromEnd = pipeline.DefaultFromEnd
	anonAudit = false
	analyzeLanguage = pipeline.DefaultLanguage
	recognizersLanguage = ""
	recognizersJSON = false
	decryptKey = ""
	doctorJSON = false

	if os.Getenv("VEIL_LOG_FILE") == "" {
		t.Setenv("VEIL_LOG_FILE", filepath.Join(t.TempDir(), "logs", "anonymization.log"))
	}

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	expected := []string{"serve", "anonymize", "analyze", "recognizers", "decrypt", "doctor", "version"}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, registered[name], "subcommand %q should be registered", name)
	}
}

func TestRootCommand_HelpOutput(t *testing.T) {
	out, err := executeCommand(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "personally identifiable information")
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "anonymize")
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "verbose", "log-level", "log-format", "otel"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "flag %q should be registered", name)
	}
}

func TestRootCommand_UseAndShort(t *testing.T) {
	assert.Equal(t, "veil", rootCmd.Use)
	assert.Equal(t, "PII detection and anonymization service", rootCmd.Short)
}

func TestServeCommand_Flags(t *testing.T) {
	for _, name := range []string{"addr", "log-file", "audit-format"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), "flag %q should be registered", name)
	}
	assert.Equal(t, ":8000", serveCmd.Flags().Lookup("addr").DefValue)
}

func TestVersionVars_HaveDefaults(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "none", Commit)
	assert.Equal(t, "unknown", BuildDate)
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Veil ")
	assert.Contains(t, out, "Commit: none")
}

func TestAnonymizeCommand(t *testing.T) {
	out, err := executeCommand(t, "", "anonymize", "My SSN is 123-45-6789", "--chars-to-mask", "4", "--from-end")
	require.NoError(t, err)

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, pipeline.Response{
		OriginalText:   "My SSN is 123-45-6789",
		AnonymizedText: "My SSN is 123-45-****",
		MethodUsed:     "mask",
		Language:       "en",
	}, resp)
}

func TestAnonymizeCommand_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VEIL_DISABLED_ENTITIES=US_SSN\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Unsetenv("VEIL_DISABLED_ENTITIES"))
	t.Cleanup(func() { _ = os.Unsetenv("VEIL_DISABLED_ENTITIES") })

	out, err := executeCommand(t, "", "anonymize", "My SSN is 123-45-6789")
	require.NoError(t, err)

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "My SSN is 123-45-6789", resp.AnonymizedText, ".env disabled the SSN recognizer")
}

func TestAnonymizeCommand_Stdin(t *testing.T) {
	out, err := executeCommand(t, "write to alice@example.com\n", "anonymize", "--method", "replace")
	require.NoError(t, err)

	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "write to <EMAIL_ADDRESS>", resp.AnonymizedText)
}

func TestAnonymizeCommand_UnknownMethod(t *testing.T) {
	_, err := executeCommand(t, "", "anonymize", "text", "--method", "explode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestAnonymizeCommand_Audit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	t.Setenv("VEIL_LOG_FILE", logPath)

	_, err := executeCommand(t, "", "anonymize", "My SSN is 123-45-6789", "--audit")
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Request Anonymized | Method: mask | Language: en | Original: 'My SSN is 123-45-6789' | Anonymized: 'My SSN is ******-6789'")
}

func TestAnonymizeCommand_NoAuditByDefault(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	t.Setenv("VEIL_LOG_FILE", logPath)

	_, err := executeCommand(t, "", "anonymize", "My SSN is 123-45-6789")
	require.NoError(t, err)

	_, err = os.Stat(logPath)
	assert.True(t, os.IsNotExist(err))
}

func TestAnalyzeCommand(t *testing.T) {
	out, err := executeCommand(t, "", "analyze", "My SSN is 123-45-6789")
	require.NoError(t, err)

	var findings []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &findings))
	require.Len(t, findings, 1)
	assert.Equal(t, "US_SSN", findings[0]["entity_type"])
	assert.Equal(t, "123-45-6789", findings[0]["text"])
	assert.InDelta(t, 10, findings[0]["start"], 1e-9)
}

func TestAnalyzeCommand_UnsupportedLanguage(t *testing.T) {
	_, err := executeCommand(t, "", "analyze", "hola", "--language", "xx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestRecognizersCommand(t *testing.T) {
	out, err := executeCommand(t, "", "recognizers")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "US_SSN")
	assert.Contains(t, out, "CREDIT_CARD")

	out, err = executeCommand(t, "", "recognizers", "--language", "en", "--json")
	require.NoError(t, err)
	var entities []string
	require.NoError(t, json.Unmarshal([]byte(out), &entities))
	assert.Contains(t, entities, "EMAIL_ADDRESS")
}

func TestRecognizersCommand_PatternFile(t *testing.T) {
	t.Setenv("VEIL_PATTERN_FILE", testutil.WriteRecognizerFile(t, "Employee ID", "EMPLOYEE_ID", `\bEMP-\d{6}\b`, 0.9))

	out, err := executeCommand(t, "", "recognizers", "--language", "en")
	require.NoError(t, err)
	assert.Contains(t, out, "EMPLOYEE_ID")

	out, err = executeCommand(t, "", "analyze", "badge EMP-123456")
	require.NoError(t, err)
	assert.Contains(t, out, `"entity_type": "EMPLOYEE_ID"`)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Setenv("VEIL_ENCRYPTION_KEY", testutil.TestEncryptionKey)

	out, err := executeCommand(t, "", "anonymize", "alice@example.com", "--method", "encrypt")
	require.NoError(t, err)
	var resp pipeline.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEqual(t, "alice@example.com", resp.AnonymizedText)

	out, err = executeCommand(t, "", "decrypt", resp.AnonymizedText)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com\n", out)
}

func TestDecryptCommand_NoKey(t *testing.T) {
	t.Setenv("VEIL_ENCRYPTION_KEY", "")
	_, err := executeCommand(t, "", "decrypt", "token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key")
}

func TestDoctorCommand(t *testing.T) {
	out, err := executeCommand(t, "", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Recognizers")
	assert.Contains(t, out, "✓ Audit log")
	assert.Contains(t, out, "✓ Anonymize probe")
	assert.Contains(t, out, "All checks passed.")
}

func TestDoctorCommand_JSON(t *testing.T) {
	out, err := executeCommand(t, "", "doctor", "--json")
	require.NoError(t, err)

	var report doctor.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEqual(t, doctor.StatusFail, report.Status)
	assert.NotEmpty(t, report.Checks)
}

func TestDoctorCommand_InvalidConfigFails(t *testing.T) {
	t.Setenv("VEIL_MIN_SCORE", "2")
	out, err := executeCommand(t, "", "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "✗ Config")
}

func TestPackageLevelTracer_IsNotNil(t *testing.T) {
	assert.NotNil(t, tracer)
}
