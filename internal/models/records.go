package models

import "time"

// PageImage is one rasterized PDF page. PageNumber is 1-based.
type PageImage struct {
	PageNumber int
	MediaType  string
	Data       []byte
}

// FieldRecord is one extracted key/value pair after normalization.
type FieldRecord struct {
	Section         string  `json:"section,omitempty"`
	PageNumber      int     `json:"page_number"`
	Key             string  `json:"key"`
	Value           string  `json:"value"`
	KeyConfidence   float64 `json:"key_confidence"`
	ValueConfidence float64 `json:"value_confidence"`
	DisplayOrder    int     `json:"display_order"`
}

// SectionRecords is the ordered group of records sharing one page group.
type SectionRecords struct {
	PageNumber int           `json:"page_number"`
	Section    string        `json:"section,omitempty"`
	Records    []FieldRecord `json:"records"`
}

// NormalizedRecords keeps page groups in the order they were first seen.
type NormalizedRecords []SectionRecords

// Len is the total number of field records across all groups.
func (n NormalizedRecords) Len() int {
	total := 0
	for _, s := range n {
		total += len(s.Records)
	}
	return total
}

// Flatten returns every record in group order.
func (n NormalizedRecords) Flatten() []FieldRecord {
	out := make([]FieldRecord, 0, n.Len())
	for _, s := range n {
		out = append(out, s.Records...)
	}
	return out
}

// ProcessContentRecord is a row of process_content_ai.
type ProcessContentRecord struct {
	ProcessAttachmentID  string    `db:"process_attachment_id"`
	ProcessID            string    `db:"process_id"`
	ExtractType          string    `db:"extract_type"`
	Description          *string   `db:"description"`
	PageNumber           int       `db:"page_number"`
	FieldKey             string    `db:"field_key"`
	FieldValue           string    `db:"field_value"`
	ConfidenceScoreKey   float64   `db:"confidence_score_key"`
	ConfidenceScoreValue float64   `db:"confidence_score_value"`
	ProcessedBy          string    `db:"processed_by"`
	ProcessedDate        time.Time `db:"processed_date"`
	UpdatedBy            string    `db:"updated_by"`
	UpdatedDate          time.Time `db:"updated_date"`
	KeyValueSequence     int       `db:"key_value_sequence"`
}
