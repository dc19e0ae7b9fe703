package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/formextractionflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunLedger stores one MessageRun document per processed message.
type RunLedger struct {
	client     *firestore.Client
	collection string
}

func NewRunLedger(client *firestore.Client, collection string) *RunLedger {
	return &RunLedger{client: client, collection: collection}
}

// Record writes run under docID, replacing any previous document with that id.
func (l *RunLedger) Record(ctx context.Context, docID string, run models.MessageRun) error {
	if _, err := l.client.Collection(l.collection).Doc(docID).Set(ctx, run); err != nil {
		return fmt.Errorf("failed to record message run %s: %w", docID, err)
	}
	return nil
}

func (l *RunLedger) Close() error {
	return l.client.Close()
}
