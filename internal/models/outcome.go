package models

// AttachmentState is a step of the per-attachment workflow.
type AttachmentState string

const (
	StateDownloading     AttachmentState = "DOWNLOADING"
	StateDownloaded      AttachmentState = "DOWNLOADED"
	StateDownloadFailed  AttachmentState = "DOWNLOAD_FAILED"
	StateExtracting      AttachmentState = "EXTRACTING"
	StateExtracted       AttachmentState = "EXTRACTED"
	StateExtractFailed   AttachmentState = "EXTRACT_FAILED"
	StatePersisting      AttachmentState = "PERSISTING"
	StatePersisted       AttachmentState = "PERSISTED"
	StatePersistFailed   AttachmentState = "PERSIST_FAILED"
	StateSucceeded       AttachmentState = "SUCCEEDED"
	StatePartiallyFailed AttachmentState = "PARTIALLY_FAILED"
	StateNoData          AttachmentState = "NO_DATA"
	StateSkipped         AttachmentState = "SKIPPED"
)

// Terminal reports whether no further transition follows s.
func (s AttachmentState) Terminal() bool {
	switch s {
	case StateSucceeded, StatePartiallyFailed, StateNoData, StateSkipped:
		return true
	}
	return false
}

// AttachmentOutcome is what the workflow reports for one attachment.
// FailedAt holds the last non-terminal state before a review routing.
type AttachmentOutcome struct {
	ProcessAttachmentID ID              `json:"process_attachment_id"`
	State               AttachmentState `json:"state"`
	FailedAt            AttachmentState `json:"failed_at,omitempty"`
	Zone                string          `json:"zone,omitempty"`
	ObjectKey           string          `json:"object_key,omitempty"`
	Contents            []FieldRecord   `json:"contents"`
	Error               string          `json:"error,omitempty"`
	Err                 error           `json:"-"`

	// Transitions lists every state entered, ending with State.
	Transitions []AttachmentState `json:"transitions,omitempty"`
}

// MessageSummary is the outcome of one queue message.
type MessageSummary struct {
	ProcessID     ID                  `json:"process_id"`
	RunID         string              `json:"run_id"`
	Skipped       bool                `json:"skipped"`
	SkipReason    string              `json:"skip_reason,omitempty"`
	MessageStatus string              `json:"message_status,omitempty"`
	ResultFile    string              `json:"result_file,omitempty"`
	ResultObject  string              `json:"result_object,omitempty"`
	Outcomes      []AttachmentOutcome `json:"outcomes"`
}

// Count returns how many outcomes ended in state.
func (m *MessageSummary) Count(state AttachmentState) int {
	n := 0
	for _, o := range m.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}
