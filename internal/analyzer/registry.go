package analyzer

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema with the veil
// validator extension.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
	DenyListScore      float64           `yaml:"deny_list_score,omitempty" json:"deny_list_score,omitempty"`
	Validator          string            `yaml:"validator,omitempty" json:"validator,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// isEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// Returns nil (not an error) if the file does not exist, so callers can
// treat a missing global config as a no-op.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers merges recognizer layers in order. Later layers override
// earlier ones by matching on the recognizer Name field. New recognizers are
// appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}

	return merged
}

// FilterByEntities applies enabled/disabled entity filters to a recognizer list.
// If enabledEntities is non-empty, only recognizers with matching supported_entity
// are kept (whitelist). Then any recognizer in disabledEntities is removed (blacklist).
func FilterByEntities(recognizers []RecognizerConfig, enabledEntities, disabledEntities []string) []RecognizerConfig {
	result := recognizers

	if len(enabledEntities) > 0 {
		allowed := make(map[string]bool, len(enabledEntities))
		for _, e := range enabledEntities {
			allowed[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if allowed[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	if len(disabledEntities) > 0 {
		blocked := make(map[string]bool, len(disabledEntities))
		for _, e := range disabledEntities {
			blocked[e] = true
		}
		var filtered []RecognizerConfig
		for _, r := range result {
			if !blocked[r.SupportedEntity] {
				filtered = append(filtered, r)
			}
		}
		result = filtered
	}

	return result
}

// compileRecognizers converts recognizer configs into runtime recognizers.
// Disabled recognizers are skipped.
func compileRecognizers(configs []RecognizerConfig) ([]*recognizer, error) {
	var out []*recognizer

	for _, rc := range configs {
		if !rc.isEnabled() {
			continue
		}
		if rc.SupportedEntity == "" {
			return nil, fmt.Errorf("recognizer %q: supported_entity is required", rc.Name)
		}
		if len(rc.Patterns) == 0 && len(rc.DenyList) == 0 {
			return nil, fmt.Errorf("recognizer %q: needs at least one pattern or deny_list entry", rc.Name)
		}

		rec := &recognizer{
			name:     rc.Name,
			entity:   rc.SupportedEntity,
			contexts: make(map[string][]string),
		}

		for _, p := range rc.Patterns {
			compiled, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rc.Name, err)
			}
			if p.Score < 0 || p.Score > 1 {
				return nil, fmt.Errorf("pattern %q in recognizer %q: score must be within [0,1]", p.Name, rc.Name)
			}
			rec.patterns = append(rec.patterns, compiledPattern{name: p.Name, re: compiled, score: p.Score})
		}

		if len(rc.DenyList) > 0 {
			quoted := make([]string, len(rc.DenyList))
			for i, w := range rc.DenyList {
				quoted[i] = regexp.QuoteMeta(w)
			}
			rec.denyList = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
			rec.denyScore = rc.DenyListScore
			if rec.denyScore == 0 {
				rec.denyScore = MaxScore
			}
		}

		for _, lc := range rc.SupportedLanguages {
			rec.contexts[lc.Language] = lc.Context
		}

		if rc.Validator != "" {
			v, ok := validators[rc.Validator]
			if !ok {
				return nil, fmt.Errorf("recognizer %q: unknown validator %q", rc.Name, rc.Validator)
			}
			rec.validator = v
		}

		out = append(out, rec)
	}

	return out, nil
}
