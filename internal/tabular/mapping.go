package tabular

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const mappingSchemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["mappedheader"],
    "properties": {
      "inputheader": {"type": ["string", "null"]},
      "mappedheader": {"type": "string"}
    }
  }
}`

// MappingSchema validates the agent's header-mapping answer.
var MappingSchema = jsonschema.MustCompileString("header-mapping.json", mappingSchemaJSON)

// ParseMappings converts a decoded, schema-checked agent answer.
func ParseMappings(value any) ([]models.HeaderMapping, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode mappings: %w", err)
	}
	var entries []struct {
		InputHeader  *string `json:"inputheader"`
		MappedHeader string  `json:"mappedheader"`
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode mappings: %w", err)
	}
	out := make([]models.HeaderMapping, 0, len(entries))
	for _, e := range entries {
		m := models.HeaderMapping{MappedHeader: e.MappedHeader}
		if e.InputHeader != nil {
			m.InputHeader = *e.InputHeader
		}
		out = append(out, m)
	}
	return out, nil
}

// ApplyMappings builds the output table. Columns follow the first appearance
// of each mapped header; when a mapped header repeats, its last input header
// wins. Columns whose input header is not in input are left blank.
func ApplyMappings(input *Table, mappings []models.HeaderMapping) *Table {
	var headers []string
	source := make(map[string]string)
	for _, m := range mappings {
		if _, seen := source[m.MappedHeader]; !seen {
			headers = append(headers, m.MappedHeader)
		}
		source[m.MappedHeader] = m.InputHeader
	}

	columns := make([][]string, len(headers))
	for i, h := range headers {
		columns[i] = input.Column(source[h])
	}

	out := &Table{Headers: headers, Rows: make([][]string, len(input.Rows))}
	for r := range input.Rows {
		row := make([]string, len(headers))
		for c, col := range columns {
			if col != nil {
				row[c] = col[r]
			}
		}
		out.Rows[r] = row
	}
	return out
}

// OutputKey maps input/<path>.<ext> to output/<path>.xlsx.
func OutputKey(key, inputFolder, outputFolder string) string {
	out := strings.Replace(key, inputFolder, outputFolder, 1)
	if i := strings.LastIndex(out, "."); i > strings.LastIndex(out, "/") {
		out = out[:i]
	}
	return out + ".xlsx"
}
