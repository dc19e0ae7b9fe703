package models

import "time"

// MessageRun is the Firestore record written once per processed queue message.
// It tracks the message-level outcome and where the result artifact landed.
type MessageRun struct {
	ProcessID       string    `firestore:"processId,omitempty"`
	RunID           string    `firestore:"runId,omitempty"`
	MessageStatus   string    `firestore:"messageStatus,omitempty"`
	AttachmentCount int       `firestore:"attachmentCount"`
	SucceededCount  int       `firestore:"succeededCount"`
	ReviewCount     int       `firestore:"reviewCount"`
	SkippedCount    int       `firestore:"skippedCount"`
	ResultObject    string    `firestore:"resultObject,omitempty"`
	ErrorDetails    string    `firestore:"errorDetails,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt,omitempty"`
}
