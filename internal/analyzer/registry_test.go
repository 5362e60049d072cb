package analyzer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/veil/internal/testutil"
)

func TestParseRecognizerFile(t *testing.T) {
	yaml := `
recognizers:
  - name: "Test Email"
    supported_entity: "EMAIL_ADDRESS"
    enabled: true
    patterns:
      - name: "basic email"
        regex: '\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b'
        score: 0.85
    supported_languages:
      - language: en
        context: ["email"]
  - name: "Test Card"
    supported_entity: "CREDIT_CARD"
    validator: luhn
    patterns:
      - name: "digits"
        regex: '\b\d{16}\b'
        score: 0.3
    deny_list: ["0000"]
    deny_list_score: 0.7
`
	rf, err := ParseRecognizerFile([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, rf.Recognizers, 2)

	email := rf.Recognizers[0]
	assert.Equal(t, "Test Email", email.Name)
	assert.Equal(t, "EMAIL_ADDRESS", email.SupportedEntity)
	assert.True(t, email.isEnabled())
	require.Len(t, email.SupportedLanguages, 1)
	assert.Equal(t, "en", email.SupportedLanguages[0].Language)
	assert.Equal(t, []string{"email"}, email.SupportedLanguages[0].Context)

	card := rf.Recognizers[1]
	assert.True(t, card.isEnabled(), "nil Enabled should default to true")
	assert.Equal(t, "luhn", card.Validator)
	assert.Equal(t, []string{"0000"}, card.DenyList)
	assert.InDelta(t, 0.7, card.DenyListScore, 1e-9)
}

func TestParseRecognizerFileInvalidYAML(t *testing.T) {
	_, err := ParseRecognizerFile([]byte(`{{{invalid`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing recognizer YAML")
}

func TestLoadRecognizerFileMissing(t *testing.T) {
	rf, err := LoadRecognizerFile("/nonexistent/file.yaml")
	require.NoError(t, err, "missing file should not return error")
	assert.Nil(t, rf, "missing file should return nil")
}

func TestPatternFileLayer(t *testing.T) {
	path := testutil.WriteFile(t, "patterns.yaml", `
recognizers:
  - name: "Employee ID"
    supported_entity: "EMPLOYEE_ID"
    patterns:
      - name: "emp id"
        regex: '\bEMP-\d{6}\b'
        score: 0.95
  - name: "Email Address"
    supported_entity: "EMAIL_ADDRESS"
    enabled: false
`)

	engine, err := NewEngine(WithPatternFile(path))
	require.NoError(t, err)

	results, err := engine.Analyze(context.Background(), "EMP-123456 wrote to user@example.com", "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"EMPLOYEE_ID"}, entityTypes(results), "file layer adds a recognizer and disables the default email one")
}

func TestPatternFileMissingIsNoop(t *testing.T) {
	engine, err := NewEngine(WithPatternFile(filepath.Join(t.TempDir(), "absent.yaml")))
	require.NoError(t, err)
	assert.Len(t, engine.Recognizers(), len(MustNewEngine().Recognizers()))
}

func TestPatternFileInvalid(t *testing.T) {
	path := testutil.WriteFile(t, "patterns.yaml", "recognizers: [")
	_, err := NewEngine(WithPatternFile(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading pattern file")
}

func TestMergeRecognizers(t *testing.T) {
	enabled := true
	disabled := false

	defaults := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS", Enabled: &enabled},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER", Enabled: &enabled},
	}
	file := []RecognizerConfig{
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER", Enabled: &disabled},
		{Name: "Custom ID", SupportedEntity: "EMPLOYEE_ID", Enabled: &enabled},
	}
	custom := []RecognizerConfig{
		{Name: "Badge", SupportedEntity: "BADGE_ID", Enabled: &enabled},
	}

	merged := MergeRecognizers(defaults, file, custom)
	require.Len(t, merged, 4)

	assert.Equal(t, "Email", merged[0].Name)
	assert.True(t, merged[0].isEnabled())

	assert.Equal(t, "Phone", merged[1].Name)
	assert.False(t, merged[1].isEnabled(), "later layer disables phone in place")

	assert.Equal(t, "Custom ID", merged[2].Name)
	assert.Equal(t, "Badge", merged[3].Name)
}

func TestFilterByEntities(t *testing.T) {
	recognizers := []RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS"},
		{Name: "Phone", SupportedEntity: "PHONE_NUMBER"},
		{Name: "IBAN", SupportedEntity: "IBAN_CODE"},
	}

	tests := []struct {
		name     string
		enabled  []string
		disabled []string
		want     []string
	}{
		{"no filters", nil, nil, []string{"Email", "Phone", "IBAN"}},
		{"whitelist", []string{"EMAIL_ADDRESS", "IBAN_CODE"}, nil, []string{"Email", "IBAN"}},
		{"blacklist", nil, []string{"PHONE_NUMBER"}, []string{"Email", "IBAN"}},
		{"both", []string{"EMAIL_ADDRESS", "PHONE_NUMBER"}, []string{"PHONE_NUMBER"}, []string{"Email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered := FilterByEntities(recognizers, tt.enabled, tt.disabled)
			names := make([]string, 0, len(filtered))
			for _, r := range filtered {
				names = append(names, r.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestCompileSkipsDisabled(t *testing.T) {
	disabled := false
	compiled, err := compileRecognizers([]RecognizerConfig{
		{Name: "Email", SupportedEntity: "EMAIL_ADDRESS", Patterns: []PatternConfig{{Name: "p", Regex: `@`, Score: 0.5}}},
		{Name: "Off", SupportedEntity: "OFF", Enabled: &disabled, Patterns: []PatternConfig{{Name: "p", Regex: `[invalid`, Score: 0.5}}},
	})
	require.NoError(t, err, "disabled recognizers are never compiled")
	require.Len(t, compiled, 1)
	assert.Equal(t, "EMAIL_ADDRESS", compiled[0].entity)
}

func TestDefaultRecognizers(t *testing.T) {
	recs, err := DefaultRecognizers()
	require.NoError(t, err)
	assert.Greater(t, len(recs), 0, "should have default recognizers loaded from embedded YAML")

	entities := make(map[string]bool)
	for _, r := range recs {
		entities[r.SupportedEntity] = true
	}
	for _, want := range []string{"EMAIL_ADDRESS", "PHONE_NUMBER", "US_SSN", "CREDIT_CARD", "IBAN_CODE", "IP_ADDRESS", "URL"} {
		assert.True(t, entities[want], "should include %s", want)
	}
}
