// Package analyzer detects PII entity spans in free text using
// Presidio-compatible regex recognizers with checksum validators and
// context-word score enhancement.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"

	veilotel "github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/patterns"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/analyzer")

const (
	// DefaultMinScore is the minimum confidence for a match to be reported.
	// Matches below this score are discarded unless boosted by context words.
	DefaultMinScore = 0.5

	// MaxScore is the score of checksum-validated and deny-list matches.
	MaxScore = 1.0

	// ContextSimilarityFactor is the score boost applied when context words are
	// found near a match. Matches Presidio's default context_similarity_factor.
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is the number of bytes to search before and after
	// a match when looking for context words.
	ContextWindowChars = 100

	// DefaultLanguage is served when no languages are configured.
	DefaultLanguage = "en"
)

// ErrUnsupportedLanguage is returned when Analyze is asked for a language the
// engine was not configured with.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// RecognizerResult is one detected entity span. Start and End are byte
// offsets into the analyzed text (half-open).
type RecognizerResult struct {
	EntityType     string  `json:"entity_type"`
	Start          int     `json:"start"`
	End            int     `json:"end"`
	Score          float64 `json:"score"`
	RecognizerName string  `json:"recognizer_name,omitempty"`
}

// Engine runs the compiled recognizers. It is immutable after construction
// and safe for concurrent use.
type Engine struct {
	recognizers []*recognizer
	languages   []string
	langSet     map[string]bool
	minScore    float64
}

// Option configures an Engine via the functional options pattern.
type Option func(*engineConfig)

type engineConfig struct {
	patternFile       string
	languages         []string
	enabledEntities   []string
	disabledEntities  []string
	customRecognizers []RecognizerConfig
	minScore          *float64
	skipDefaults      bool
}

// WithMinScore overrides the default minimum confidence threshold for matches.
// Zero reports every match.
func WithMinScore(score float64) Option {
	return func(c *engineConfig) { c.minScore = &score }
}

// WithLanguages sets the languages Analyze accepts.
func WithLanguages(langs ...string) Option {
	return func(c *engineConfig) { c.languages = langs }
}

// WithPatternFile loads additional recognizers from a patterns YAML file.
// If the file does not exist, it is silently skipped.
func WithPatternFile(path string) Option {
	return func(c *engineConfig) { c.patternFile = path }
}

// WithEnabledEntities sets a whitelist of entity types. When non-empty, only
// recognizers with a matching supported_entity will be active.
func WithEnabledEntities(entities []string) Option {
	return func(c *engineConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities sets a blacklist of entity types to exclude.
func WithDisabledEntities(entities []string) Option {
	return func(c *engineConfig) { c.disabledEntities = entities }
}

// WithCustomRecognizers adds recognizer definitions on top of the file layers.
func WithCustomRecognizers(recognizers []RecognizerConfig) Option {
	return func(c *engineConfig) { c.customRecognizers = recognizers }
}

// WithoutDefaults drops the embedded default recognizers.
func WithoutDefaults() Option {
	return func(c *engineConfig) { c.skipDefaults = true }
}

// DefaultRecognizers returns the built-in recognizers parsed from the
// embedded YAML. This is the first layer in the merge chain.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIDefaultYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded PII patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// NewEngine creates an analyzer. Without options it uses the embedded defaults
// and serves English. Options layer a pattern file and custom recognizers on top.
func NewEngine(opts ...Option) (*Engine, error) {
	var cfg engineConfig
	for _, o := range opts {
		o(&cfg)
	}

	var layers [][]RecognizerConfig

	// Layer 1: embedded defaults
	if !cfg.skipDefaults {
		defaults, err := DefaultRecognizers()
		if err != nil {
			return nil, fmt.Errorf("loading default recognizers: %w", err)
		}
		layers = append(layers, defaults)
	}

	// Layer 2: pattern file (optional)
	if cfg.patternFile != "" {
		rf, err := LoadRecognizerFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		if rf != nil {
			layers = append(layers, rf.Recognizers)
		}
	}

	// Layer 3: programmatic recognizers
	layers = append(layers, cfg.customRecognizers)

	merged := MergeRecognizers(layers...)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := compileRecognizers(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling recognizers: %w", err)
	}

	langs := cfg.languages
	if len(langs) == 0 {
		langs = []string{DefaultLanguage}
	}
	langSet := make(map[string]bool, len(langs))
	for _, l := range langs {
		langSet[l] = true
	}

	minScore := DefaultMinScore
	if cfg.minScore != nil {
		minScore = *cfg.minScore
	}

	return &Engine{
		recognizers: compiled,
		languages:   append([]string(nil), langs...),
		langSet:     langSet,
		minScore:    minScore,
	}, nil
}

// MustNewEngine is like NewEngine but panics on error. Useful for zero-config
// startup where the embedded defaults are expected to always compile.
func MustNewEngine(opts ...Option) *Engine {
	e, err := NewEngine(opts...)
	if err != nil {
		panic(fmt.Sprintf("analyzer.NewEngine: %v", err))
	}
	return e
}

// Languages returns the languages the engine accepts.
func (e *Engine) Languages() []string {
	return append([]string(nil), e.languages...)
}

// SupportedEntities returns the sorted entity types served for lang.
func (e *Engine) SupportedEntities(lang string) ([]string, error) {
	if !e.langSet[lang] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	served := lo.Filter(e.recognizers, func(r *recognizer, _ int) bool { return r.servesLanguage(lang) })
	out := lo.Uniq(lo.Map(served, func(r *recognizer, _ int) string { return r.entity }))
	sort.Strings(out)
	return out, nil
}

// RecognizerInfo describes an active recognizer for listings.
type RecognizerInfo struct {
	Name      string   `json:"name"`
	Entity    string   `json:"entity"`
	Patterns  int      `json:"patterns"`
	Languages []string `json:"languages,omitempty"`
	Validator bool     `json:"validator"`
}

// Recognizers lists the active recognizers in registry order.
func (e *Engine) Recognizers() []RecognizerInfo {
	out := make([]RecognizerInfo, 0, len(e.recognizers))
	for _, r := range e.recognizers {
		langs := lo.Keys(r.contexts)
		sort.Strings(langs)
		out = append(out, RecognizerInfo{
			Name:      r.name,
			Entity:    r.entity,
			Patterns:  len(r.patterns),
			Languages: langs,
			Validator: r.validator != nil,
		})
	}
	return out
}

// Analyze returns the entity spans detected in text for lang, ordered by
// start offset. Identical spans of the same entity type are reported once
// with the highest score.
func (e *Engine) Analyze(ctx context.Context, text, lang string) ([]RecognizerResult, error) {
	_, span := tracer.Start(ctx, "analyzer.analyze")
	defer span.End()

	span.SetAttributes(
		attribute.String("analyzer.language", lang),
		attribute.Int("analyzer.text_length", len(text)),
	)

	if !e.langSet[lang] {
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedLanguage, lang, e.languages)
	}

	results := []RecognizerResult{}
	if text == "" {
		return results, nil
	}

	for _, r := range e.recognizers {
		if !r.servesLanguage(lang) {
			continue
		}
		results = append(results, r.analyze(text, lang, e.minScore)...)
	}

	results = dedupe(results)

	span.SetAttributes(attribute.Int("analyzer.entity_count", len(results)))
	return results, nil
}

type spanKey struct {
	entity     string
	start, end int
}

// dedupe collapses identical spans and sorts by start asc, end desc, score desc.
func dedupe(results []RecognizerResult) []RecognizerResult {
	best := make(map[spanKey]int, len(results))
	out := results[:0]
	for _, r := range results {
		k := spanKey{r.EntityType, r.Start, r.End}
		if idx, ok := best[k]; ok {
			if r.Score > out[idx].Score {
				out[idx] = r
			}
			continue
		}
		best[k] = len(out)
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End > out[j].End
		}
		return out[i].Score > out[j].Score
	})
	return out
}
