package models

// These structs define the event payloads delivered to the Cloud Functions
// and the request/response shapes of the header-mapping job.

// PubSubMessage is the message body of a Pub/Sub push.
type PubSubMessage struct {
	Data       []byte            `json:"data"`
	ID         string            `json:"messageId"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MessagePublishedData is the CloudEvent data for google.cloud.pubsub.topic.v1.messagePublished.
type MessagePublishedData struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

// GCSEvent is the CloudEvent data for a finalized storage object.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// HeaderMapping pairs a column of the input sheet with a template column.
type HeaderMapping struct {
	InputHeader  string `json:"inputheader"`
	MappedHeader string `json:"mappedheader"`
}

// HeaderMappingResponse is the result of one header-mapping job.
type HeaderMappingResponse struct {
	Status      int    `json:"statusCode"`
	Body        string `json:"body"`
	OutputKey   string `json:"outputKey,omitempty"`
	ColumnCount int    `json:"columnCount,omitempty"`
}
