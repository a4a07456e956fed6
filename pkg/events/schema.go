package events

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// envelopeSchema is the minimal contract every lifecycle payload must satisfy
// before type-specific decoding. Payloads that fail here are dropped, not
// retried: a malformed payload will not become parseable on redelivery.
var envelopeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":           map[string]any{"type": "string", "minLength": 1},
		"event_type":   map[string]any{"type": "string", "minLength": 1},
		"request_id":   map[string]any{"type": "string", "minLength": 1},
		"request_type": map[string]any{"type": "string"},
		"occurred_at":  map[string]any{"type": "string"},
	},
	"required": []any{"id", "event_type", "request_id"},
}

// ValidateEnvelope checks a raw lifecycle payload against the shared envelope
// schema.
func ValidateEnvelope(payload []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(envelopeSchema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("event payload is not valid JSON: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("event envelope validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}
