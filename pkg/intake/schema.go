package intake

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const readingSchemaURL = "https://emission-ledger.schemas.local/intake/reading.schema.json"

// readingSchema describes one line of a batch file.
const readingSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": ["caller", "vessel_id", "sulfur_content", "is_eca"],
  "properties": {
    "caller":         {"type": "string", "minLength": 1, "maxLength": 256},
    "vessel_id":      {"type": "string", "minLength": 1, "maxLength": 256},
    "sulfur_content": {"type": "integer", "minimum": 0},
    "position":       {"type": "string", "maxLength": 256},
    "is_eca":         {"type": "boolean"},
    "port_state":     {"type": "string", "maxLength": 256}
  }
}`

func compileReadingSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(readingSchemaURL, strings.NewReader(readingSchema)); err != nil {
		return nil, fmt.Errorf("intake schema load failed: %w", err)
	}
	compiled, err := c.Compile(readingSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("intake schema compile failed: %w", err)
	}
	return compiled, nil
}
