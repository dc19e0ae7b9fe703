package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/formextractionflow/internal/gateway"
	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/Lllllllleong/formextractionflow/internal/objectstore"
	"github.com/Lllllllleong/formextractionflow/internal/prompt"
	"github.com/Lllllllleong/formextractionflow/internal/relocate"
)

const testBucket = "mail-attachments"

type fakeRenderer struct {
	pages int
	err   error
	panic bool
}

func (r *fakeRenderer) Render(_ context.Context, pdf []byte) ([]models.PageImage, error) {
	if r.panic {
		panic("corrupt page tree")
	}
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.PageImage, r.pages)
	for i := range out {
		out[i] = models.PageImage{PageNumber: i + 1, MediaType: "image/png", Data: pdf}
	}
	return out, nil
}

type modelFunc func(body []byte) ([]byte, error)

func (f modelFunc) InvokeModel(_ context.Context, body []byte) ([]byte, error) { return f(body) }

func modelAnswer(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type":    "message",
		"content": []any{map[string]any{"type": "text", "text": text}},
	})
	require.NoError(t, err)
	return body
}

type insertCall struct {
	ProcessID    string
	AttachmentID string
	Records      models.NormalizedRecords
}

type fakeContent struct {
	mu         sync.Mutex
	inserted   []insertCall
	rejectFor  map[string]bool
	insertErr  error
	raw        map[string]string
	paths      map[string]string
	statuses   []string
	statusErr  error
	relocateBy []string
}

func newFakeContent() *fakeContent {
	return &fakeContent{rejectFor: map[string]bool{}, raw: map[string]string{}, paths: map[string]string{}}
}

func (c *fakeContent) InsertFieldRecords(_ context.Context, processID, attachmentID string, records models.NormalizedRecords) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.insertErr != nil {
		return false, models.PersistenceError("insert failed", c.insertErr)
	}
	if c.rejectFor[attachmentID] {
		return false, nil
	}
	c.inserted = append(c.inserted, insertCall{ProcessID: processID, AttachmentID: attachmentID, Records: records})
	return true, nil
}

func (c *fakeContent) RecordRawModelOutput(_ context.Context, attachmentID string, output []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw[attachmentID] = string(output)
	return nil
}

func (c *fakeContent) MarkAttachmentRelocated(_ context.Context, attachmentID, objectPath, processedBy string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[attachmentID] = objectPath
	c.relocateBy = append(c.relocateBy, processedBy)
	return nil
}

func (c *fakeContent) MarkMessageStatus(_ context.Context, _ string, status, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return c.statusErr
	}
	c.statuses = append(c.statuses, status)
	return nil
}

func (c *fakeContent) lastStatus() string {
	if len(c.statuses) == 0 {
		return ""
	}
	return c.statuses[len(c.statuses)-1]
}

type fakeCache struct {
	states map[string]models.AttachmentState
	err    error
}

func (c *fakeCache) Outcome(_ context.Context, processID, attachmentID models.ID) (models.AttachmentState, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.states[string(processID)+":"+string(attachmentID)], nil
}

func (c *fakeCache) Remember(_ context.Context, processID, attachmentID models.ID, state models.AttachmentState) error {
	c.states[string(processID)+":"+string(attachmentID)] = state
	return nil
}

type fakeLedger struct {
	docs map[string]models.MessageRun
}

func (l *fakeLedger) Record(_ context.Context, docID string, run models.MessageRun) error {
	l.docs[docID] = run
	return nil
}

type harness struct {
	store     *objectstore.MemoryStore
	renderer  *fakeRenderer
	content   *fakeContent
	cache     *fakeCache
	ledger    *fakeLedger
	model     modelFunc
	processor *MessageProcessor
}

func newHarness(t *testing.T, answer func(body []byte) ([]byte, error)) *harness {
	t.Helper()
	h := &harness{
		store:    objectstore.NewMemoryStore(),
		renderer: &fakeRenderer{pages: 2},
		content:  newFakeContent(),
		cache:    &fakeCache{states: map[string]models.AttachmentState{}},
		ledger:   &fakeLedger{docs: map[string]models.MessageRun{}},
		model:    answer,
	}
	workflow := NewAttachmentWorkflow(
		h.store,
		h.renderer,
		prompt.NewBuilder(prompt.Config{}),
		gateway.New(h.model, nil, gateway.Config{Timeout: time.Second}),
		h.content,
		relocate.New(h.store, relocate.DefaultZones()),
		h.cache,
		WorkflowConfig{ProcessedBy: "system"},
	)
	h.processor = NewMessageProcessor(workflow, h.store, h.ledger, ProcessorConfig{
		OutputResponseFolder: "output_response",
		UploadResults:        true,
	})
	h.processor.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return h
}

func (h *harness) upload(key, content string) {
	_ = h.store.Put(context.Background(), testBucket, key, []byte(content), "application/pdf", false)
}

func constantAnswer(t *testing.T, text string) func([]byte) ([]byte, error) {
	return func([]byte) ([]byte, error) { return modelAnswer(t, text), nil }
}

var errTransport = errors.New("connection reset by peer")
