// Package pipeline runs one anonymization request end to end: analyze the
// text, rewrite the detected spans with a single operator config, record the
// transformation in the audit log, and return the result.
package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dativo-io/veil/internal/analyzer"
	"github.com/dativo-io/veil/internal/anonymizer"
	"github.com/dativo-io/veil/internal/auditlog"
	"github.com/dativo-io/veil/internal/metrics"
	veilotel "github.com/dativo-io/veil/internal/otel"
)

var tracer = veilotel.Tracer("github.com/dativo-io/veil/internal/pipeline")

// Request defaults.
const (
	DefaultLanguage    = analyzer.DefaultLanguage
	DefaultMethod      = anonymizer.OperatorMask
	DefaultMaskingChar = "*"
	DefaultCharsToMask = 6
	DefaultFromEnd     = false
)

// Analyzer detects entity spans in text.
type Analyzer interface {
	Analyze(ctx context.Context, text, language string) ([]analyzer.RecognizerResult, error)
}

// Anonymizer rewrites detected spans.
type Anonymizer interface {
	Anonymize(ctx context.Context, text string, results []analyzer.RecognizerResult, operators map[string]anonymizer.OperatorConfig) (*anonymizer.EngineResult, error)
}

// Recorder appends an audit entry. It must not fail the request.
type Recorder interface {
	Record(ctx context.Context, e auditlog.Entry)
}

// Request is one anonymization request. Build it with NewRequest so unset
// fields carry their defaults.
type Request struct {
	Text        string
	Language    string
	Method      string
	MaskingChar string
	CharsToMask int
	FromEnd     bool
}

// NewRequest returns a request for text with every other field defaulted.
func NewRequest(text string) Request {
	return Request{
		Text:        text,
		Language:    DefaultLanguage,
		Method:      DefaultMethod,
		MaskingChar: DefaultMaskingChar,
		CharsToMask: DefaultCharsToMask,
		FromEnd:     DefaultFromEnd,
	}
}

// Response is the result of a successful request.
type Response struct {
	OriginalText   string `json:"original_text"`
	AnonymizedText string `json:"anonymized_text"`
	MethodUsed     string `json:"method_used"`
	Language       string `json:"language"`
}

// Service is built once at startup and shared by all requests.
type Service struct {
	analyzer   Analyzer
	anonymizer Anonymizer
	recorder   Recorder
}

// New returns a Service. rec may be nil, which disables audit logging.
func New(a Analyzer, an Anonymizer, rec Recorder) *Service {
	return &Service{analyzer: a, anonymizer: an, recorder: rec}
}

// Anonymize analyzes req.Text, applies req.Method to every detected entity,
// records the transformation and returns the result. Any analyzer or
// anonymizer failure aborts the request with no partial result.
func (s *Service) Anonymize(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "pipeline.anonymize")
	defer span.End()
	span.SetAttributes(
		attribute.String("veil.method", req.Method),
		attribute.String("veil.language", req.Language),
		attribute.Int("veil.text_bytes", len(req.Text)),
	)

	resp, err := s.anonymize(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.AnonymizeRequests.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, err
	}
	metrics.AnonymizeRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.OperatorApplied.WithLabelValues(req.Method).Inc()
	return resp, nil
}

func (s *Service) anonymize(ctx context.Context, req Request) (*Response, error) {
	results, err := s.Analyze(ctx, req.Text, req.Language)
	if err != nil {
		return nil, err
	}

	operators := map[string]anonymizer.OperatorConfig{
		anonymizer.DefaultLabel: {
			Name: req.Method,
			Params: anonymizer.Params{
				anonymizer.ParamMaskingChar: req.MaskingChar,
				anonymizer.ParamCharsToMask: req.CharsToMask,
				anonymizer.ParamFromEnd:     req.FromEnd,
			},
		},
	}
	out, err := s.anonymizer.Anonymize(ctx, req.Text, results, operators)
	if err != nil {
		return nil, fmt.Errorf("anonymizing text: %w", err)
	}

	if s.recorder != nil {
		s.recorder.Record(ctx, auditlog.Entry{
			Method:     req.Method,
			Language:   req.Language,
			Original:   req.Text,
			Anonymized: out.Text,
		})
	}

	return &Response{
		OriginalText:   req.Text,
		AnonymizedText: out.Text,
		MethodUsed:     req.Method,
		Language:       req.Language,
	}, nil
}

// Analyze runs detection only.
func (s *Service) Analyze(ctx context.Context, text, language string) ([]analyzer.RecognizerResult, error) {
	results, err := s.analyzer.Analyze(ctx, text, language)
	if err != nil {
		return nil, fmt.Errorf("analyzing text: %w", err)
	}
	recordEntities(ctx, results)
	return results, nil
}
