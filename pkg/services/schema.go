package services

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// eventSchema is the minimum shape accepted at ingestion. Unknown fields pass through.
const eventSchema = `{
  "type": "object",
  "required": ["id", "type"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "type": {"type": "string", "minLength": 1},
    "project_id": {"type": "string"},
    "priority": {"type": "string"},
    "task": {
      "type": "object",
      "required": ["id"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "title": {"type": "string"},
        "description": {"type": "string"},
        "files": {"type": "array", "items": {"type": "string"}}
      }
    },
    "metadata": {"type": "object"},
    "data": {"type": "object"}
  }
}`

var compiledEventSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
})

// validateEventSchema checks a raw inbound payload against eventSchema.
func validateEventSchema(payload []byte) error {
	schema, err := compiledEventSchema()
	if err != nil {
		return fmt.Errorf("failed to compile event schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrSchemaValidation, strings.Join(errors, "; "))
	}

	return nil
}
