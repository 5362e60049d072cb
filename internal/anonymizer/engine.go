// Package anonymizer rewrites detected entity spans in text using a registry
// of named operators (mask, redact, replace, hash, keep, encrypt).
package anonymizer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dativo-io/veil/internal/analyzer"
	veilotel "github.com/dativo-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/anonymizer")

// DefaultLabel is the operators map key that applies to every entity type
// without an entry of its own.
const DefaultLabel = "DEFAULT"

var (
	// ErrUnknownOperator is returned for an operator name not in the registry.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrInvalidParams is returned when operator parameters fail validation.
	ErrInvalidParams = errors.New("invalid operator parameters")
)

// OperatorConfig names an operator and its parameters.
type OperatorConfig struct {
	Name   string
	Params Params
}

// OperatorResult describes one rewritten span. Start and End are byte
// offsets into the anonymized text.
type OperatorResult struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	EntityType string `json:"entity_type"`
	Text       string `json:"text"`
	Operator   string `json:"operator"`
}

// EngineResult is the output of Anonymize.
type EngineResult struct {
	Text  string           `json:"text"`
	Items []OperatorResult `json:"items"`
}

// Engine holds the operator registry. It is immutable after construction and
// safe for concurrent use.
type Engine struct {
	operators map[string]Operator
	defaults  map[string]Params
}

// Option configures an Engine.
type Option func(*Engine)

// WithOperator registers op, replacing any operator with the same name.
func WithOperator(op Operator) Option {
	return func(e *Engine) { e.operators[op.Name()] = op }
}

// WithOperatorDefaults sets parameters merged under the caller's params for
// the named operator (e.g. a hash salt or encryption key from configuration).
func WithOperatorDefaults(name string, params Params) Option {
	return func(e *Engine) { e.defaults[name] = params }
}

// New returns an Engine with the built-in operators registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		operators: make(map[string]Operator),
		defaults:  make(map[string]Params),
	}
	for _, op := range []Operator{
		maskOperator{}, redactOperator{}, replaceOperator{},
		hashOperator{}, keepOperator{}, encryptOperator{},
	} {
		e.operators[op.Name()] = op
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Operators returns the registered operator names, sorted.
func (e *Engine) Operators() []string {
	names := make([]string, 0, len(e.operators))
	for name := range e.operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type boundOperator struct {
	op     Operator
	params Params
}

func (e *Engine) bind(cfg OperatorConfig) (boundOperator, error) {
	op, ok := e.operators[cfg.Name]
	if !ok {
		return boundOperator{}, fmt.Errorf("%w: %q", ErrUnknownOperator, cfg.Name)
	}
	params := cfg.Params.merge(e.defaults[cfg.Name])
	if err := op.Validate(params); err != nil {
		return boundOperator{}, fmt.Errorf("operator %s: %w", cfg.Name, err)
	}
	return boundOperator{op: op, params: params}, nil
}

// Anonymize rewrites every span in results using the operator configured for
// its entity type, falling back to the DEFAULT entry and then to replace.
// All operator configs are validated before any text is touched, so a bad
// config fails even when no entities were detected.
func (e *Engine) Anonymize(ctx context.Context, text string, results []analyzer.RecognizerResult, operators map[string]OperatorConfig) (*EngineResult, error) {
	_, span := tracer.Start(ctx, "anonymizer.anonymize")
	defer span.End()

	bound := make(map[string]boundOperator, len(operators))
	for label, cfg := range operators {
		b, err := e.bind(cfg)
		if err != nil {
			return nil, err
		}
		bound[label] = b
	}
	fallback, err := e.bind(OperatorConfig{Name: OperatorReplace})
	if err != nil {
		return nil, err
	}

	spans := resolveConflicts(text, results)
	span.SetAttributes(
		attribute.Int("anonymizer.input_entities", len(results)),
		attribute.Int("anonymizer.applied_entities", len(spans)),
	)

	out := &EngineResult{Items: []OperatorResult{}}
	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, s := range spans {
		op, ok := bound[s.EntityType]
		if !ok {
			op, ok = bound[DefaultLabel]
		}
		if !ok {
			op = fallback
		}

		replacement, err := op.op.Operate(text[s.Start:s.End], s.EntityType, op.params)
		if err != nil {
			return nil, fmt.Errorf("operator %s on %s: %w", op.op.Name(), s.EntityType, err)
		}

		b.WriteString(text[prev:s.Start])
		start := b.Len()
		b.WriteString(replacement)
		out.Items = append(out.Items, OperatorResult{
			Start:      start,
			End:        b.Len(),
			EntityType: s.EntityType,
			Text:       replacement,
			Operator:   op.op.Name(),
		})
		prev = s.End
	}
	b.WriteString(text[prev:])
	out.Text = b.String()

	return out, nil
}

// resolveConflicts returns valid, non-overlapping spans sorted by start.
// Spans outside the text, empty, or not on rune boundaries are dropped. A span
// contained in another is dropped (on identical offsets the higher score
// wins); a partial overlap trims the later span to start where the earlier
// one ends.
func resolveConflicts(text string, results []analyzer.RecognizerResult) []analyzer.RecognizerResult {
	valid := make([]analyzer.RecognizerResult, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End > len(text) || r.Start >= r.End {
			continue
		}
		if !utf8.RuneStart(text[r.Start]) || (r.End < len(text) && !utf8.RuneStart(text[r.End])) {
			continue
		}
		valid = append(valid, r)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start < valid[j].Start
		}
		if valid[i].End != valid[j].End {
			return valid[i].End > valid[j].End
		}
		return valid[i].Score > valid[j].Score
	})

	kept := make([]analyzer.RecognizerResult, 0, len(valid))
	for _, r := range valid {
		if n := len(kept); n > 0 {
			last := kept[n-1]
			if r.End <= last.End {
				continue
			}
			if r.Start < last.End {
				r.Start = last.End
			}
		}
		kept = append(kept, r)
	}
	return kept
}
