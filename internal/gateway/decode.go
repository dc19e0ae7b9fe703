package gateway

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DecodeJSONText parses model text as JSON. Surrounding markdown code fences
// are tolerated. Numbers decode as float64.
func DecodeJSONText(text string) (any, error) {
	_, value, err := decodeJSONText(text)
	return value, err
}

func decodeJSONText(text string) (string, any, error) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return "", nil, models.ModelResponseFormatError("model text is empty", nil)
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	var value any
	if err := dec.Decode(&value); err != nil {
		return "", nil, models.ModelResponseFormatError("model text is not valid JSON", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", nil, models.ModelResponseFormatError("model text holds trailing data after the JSON value", nil)
	}
	return cleaned, value, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

const extractionSchemaJSON = `{
  "anyOf": [
    {"type": "object"},
    {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["key"],
        "properties": {
          "section": {"type": ["string", "number", "null"]},
          "key": {"type": "string"},
          "value": {"type": ["string", "number", "boolean", "null"]},
          "confidence": {"type": ["number", "string", "null"]}
        }
      }
    }
  ]
}`

var extractionSchema = jsonschema.MustCompileString("extraction.json", extractionSchemaJSON)
