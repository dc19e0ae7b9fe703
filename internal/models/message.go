package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Message status labels written to process_data.message_status.
const (
	MessageStatusProcessed          = "Processed"
	MessageStatusPartiallyProcessed = "Partially Processed"
)

// ID is an identifier that may arrive as a JSON string or a JSON number.
type ID string

// UnmarshalJSON accepts "123", 123 and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// QueueMessage is one unit of work: a message with its attachments.
type QueueMessage struct {
	ProcessID   ID           `json:"process_id"`
	ContentType string       `json:"content_type"`
	Attachments []Attachment `json:"attachments"`
}

// Attachment points at a PDF in object storage.
type Attachment struct {
	ProcessAttachmentID ID     `json:"process_attachment_id"`
	Bucket              string `json:"s3_bucket"`
	ObjectPath          string `json:"s3_object_path"`
	FileName            string `json:"file_name"`
}

// ObjectKey is the storage key of the attachment: path + "/" + file name.
func (a Attachment) ObjectKey() string {
	return a.ObjectPath + "/" + a.FileName
}

// AcceptsContentType reports whether contentType is one of accepted, ignoring case.
func AcceptsContentType(contentType string, accepted []string) bool {
	ct := strings.ToUpper(strings.TrimSpace(contentType))
	for _, a := range accepted {
		if ct == strings.ToUpper(strings.TrimSpace(a)) {
			return true
		}
	}
	return false
}
