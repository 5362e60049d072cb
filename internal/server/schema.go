package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dativo-io/veil/internal/pipeline"
)

//go:embed anonymize_request.schema.json
var anonymizeRequestSchema string

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(anonymizeRequestSchema))
})

// anonymizeRequest is the wire form of POST /anonymize/. Pointer fields
// distinguish "absent or null" (use the default) from an explicit value.
type anonymizeRequest struct {
	Text                *string  `json:"text"`
	Language            *string  `json:"language"`
	AnonymizationMethod *string  `json:"anonymization_method"`
	MaskingChar         *string  `json:"masking_char"`
	CharsToMask         *float64 `json:"chars_to_mask"`
	FromEnd             *bool    `json:"from_end"`
}

// validationError carries schema violations back to the client.
type validationError struct {
	message string
	details []string
}

func (e *validationError) Error() string { return e.message }

// decodeAnonymizeRequest validates body against the request schema and
// returns a pipeline request with defaults for every absent or null field.
func decodeAnonymizeRequest(body []byte) (pipeline.Request, error) {
	if !json.Valid(body) {
		return pipeline.Request{}, &validationError{message: "request body is not valid JSON"}
	}
	schema, err := loadSchema()
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("loading request schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return pipeline.Request{}, &validationError{message: err.Error()}
	}
	if !result.Valid() {
		verr := &validationError{message: "request does not match schema"}
		for _, d := range result.Errors() {
			verr.details = append(verr.details, d.String())
		}
		return pipeline.Request{}, verr
	}

	var wire anonymizeRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return pipeline.Request{}, &validationError{message: err.Error()}
	}
	if wire.Text == nil {
		return pipeline.Request{}, &validationError{message: "text is required", details: []string{"text: must be a string"}}
	}

	req := pipeline.NewRequest(*wire.Text)
	if wire.Language != nil {
		req.Language = *wire.Language
	}
	if wire.AnonymizationMethod != nil {
		req.Method = *wire.AnonymizationMethod
	}
	if wire.MaskingChar != nil {
		req.MaskingChar = *wire.MaskingChar
	}
	if wire.CharsToMask != nil {
		req.CharsToMask = clampInt(*wire.CharsToMask)
	}
	if wire.FromEnd != nil {
		req.FromEnd = *wire.FromEnd
	}
	return req, nil
}

func clampInt(f float64) int {
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}
