package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/formextractionflow/internal/models"
)

const formAnswer = `{"ACCOUNT_HOLDER_NAME": "John Doe", "EMAIL_ADDRESS": ""}`

func message(processID string, attachments ...string) []byte {
	var atts []string
	for i, name := range attachments {
		atts = append(atts, fmt.Sprintf(
			`{"process_attachment_id": %d, "s3_bucket": %q, "s3_object_path": "mail/inbound/%s", "file_name": %q}`,
			i+1, testBucket, processID, name))
	}
	return []byte(fmt.Sprintf(`{"process_id": %s, "content_type": "multipart/mixed", "attachments": [%s]}`,
		processID, strings.Join(atts, ", ")))
}

func TestProcessSuccessfulAttachment(t *testing.T) {
	h := newHarness(t, constantAnswer(t, formAnswer))
	h.upload("mail/inbound/1001/form.pdf", "%PDF-1.7 form")

	summary, err := h.processor.Process(context.Background(), message("1001", "form.pdf"))
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 1)
	outcome := summary.Outcomes[0]
	assert.Equal(t, models.StateSucceeded, outcome.State)
	assert.Equal(t, "outbound/", outcome.Zone)
	require.Len(t, outcome.Contents, 1)
	assert.Equal(t, "ACCOUNT_HOLDER_NAME", outcome.Contents[0].Key)
	assert.Equal(t, "John Doe", outcome.Contents[0].Value)
	assert.Equal(t, 1, outcome.Contents[0].DisplayOrder)
	assert.Equal(t, []models.AttachmentState{
		models.StateDownloading, models.StateDownloaded,
		models.StateExtracting, models.StateExtracted,
		models.StatePersisting, models.StatePersisted,
		models.StateSucceeded,
	}, outcome.Transitions)

	require.Len(t, h.content.inserted, 1)
	assert.Equal(t, "1001", h.content.inserted[0].ProcessID)
	assert.Equal(t, "1", h.content.inserted[0].AttachmentID)
	assert.Equal(t, 1, h.content.inserted[0].Records.Len())

	assert.Contains(t, h.content.raw["1"], `"ACCOUNT_HOLDER_NAME":"John Doe"`)
	assert.Equal(t, "mail/outbound/1001", h.content.paths["1"])
	assert.Equal(t, []string{models.MessageStatusProcessed}, h.content.statuses)
	assert.Equal(t, models.MessageStatusProcessed, summary.MessageStatus)

	keys := h.store.Keys(testBucket)
	assert.Contains(t, keys, "mail/inbound/1001/form.pdf", "source is retained")
	assert.Contains(t, keys, "mail/outbound/1001/form.pdf")
	assert.NotContains(t, keys, "mail/review/1001/form.pdf")
}

func TestProcessDownloadFailureRoutesToReview(t *testing.T) {
	h := newHarness(t, func([]byte) ([]byte, error) {
		t.Fatal("model must not be called when the download fails")
		return nil, nil
	})

	summary, err := h.processor.Process(context.Background(), message("1002", "missing.pdf"))
	require.NoError(t, err)

	outcome := summary.Outcomes[0]
	assert.Equal(t, models.StatePartiallyFailed, outcome.State)
	assert.Equal(t, models.StateDownloadFailed, outcome.FailedAt)
	assert.True(t, models.IsKind(outcome.Err, models.KindDownload))
	assert.Equal(t, []models.AttachmentState{
		models.StateDownloading, models.StateDownloadFailed, models.StatePartiallyFailed,
	}, outcome.Transitions)
	assert.Empty(t, h.content.inserted)
	assert.Equal(t, "mail/review/1002", h.content.paths["1"])
	assert.Equal(t, models.MessageStatusPartiallyProcessed, h.content.lastStatus())
	assert.Equal(t, models.MessageStatusPartiallyProcessed, summary.MessageStatus)
}

func TestProcessModelTransportErrorRoutesToReview(t *testing.T) {
	h := newHarness(t, func([]byte) ([]byte, error) { return nil, errTransport })
	h.upload("mail/inbound/1003/form.pdf", "%PDF-1.7")

	summary, err := h.processor.Process(context.Background(), message("1003", "form.pdf"))
	require.NoError(t, err)

	outcome := summary.Outcomes[0]
	assert.Equal(t, models.StatePartiallyFailed, outcome.State)
	assert.Equal(t, models.StateExtractFailed, outcome.FailedAt)
	assert.True(t, models.IsKind(outcome.Err, models.KindModelInvocation))
	assert.ErrorIs(t, outcome.Err, errTransport)
	assert.Empty(t, h.content.inserted)
	assert.Contains(t, h.store.Keys(testBucket), "mail/review/1003/form.pdf")
	assert.Equal(t, models.MessageStatusPartiallyProcessed, h.content.lastStatus())
}

func TestProcessSecondAttachmentPersistFailureKeepsFirstRows(t *testing.T) {
	h := newHarness(t, constantAnswer(t, formAnswer))
	h.upload("mail/inbound/1004/a.pdf", "%PDF a")
	h.upload("mail/inbound/1004/b.pdf", "%PDF b")
	h.content.rejectFor["2"] = true

	summary, err := h.processor.Process(context.Background(), message("1004", "a.pdf", "b.pdf"))
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 2)
	assert.Equal(t, models.StateSucceeded, summary.Outcomes[0].State)
	assert.Equal(t, models.StatePartiallyFailed, summary.Outcomes[1].State)
	assert.Equal(t, models.StatePersistFailed, summary.Outcomes[1].FailedAt)
	assert.True(t, models.IsKind(summary.Outcomes[1].Err, models.KindPersistence))
	assert.Equal(t, []models.AttachmentState{
		models.StateDownloading, models.StateDownloaded,
		models.StateExtracting, models.StateExtracted,
		models.StatePersisting, models.StatePersistFailed,
		models.StatePartiallyFailed,
	}, summary.Outcomes[1].Transitions)

	require.Len(t, h.content.inserted, 1)
	assert.Equal(t, "1", h.content.inserted[0].AttachmentID)
	assert.Equal(t, "mail/outbound/1004", h.content.paths["1"])
	assert.Equal(t, "mail/review/1004", h.content.paths["2"])
	assert.Equal(t, []string{models.MessageStatusProcessed, models.MessageStatusPartiallyProcessed}, h.content.statuses)
	assert.Equal(t, models.MessageStatusPartiallyProcessed, summary.MessageStatus)
}

func TestProcessPartialFailureDominatesLaterSuccess(t *testing.T) {
	failing := base64.StdEncoding.EncodeToString([]byte("%PDF first"))
	h := newHarness(t, func(body []byte) ([]byte, error) {
		if bytes.Contains(body, []byte(failing)) {
			return nil, errTransport
		}
		return modelAnswer(t, formAnswer), nil
	})
	h.upload("mail/inbound/1005/a.pdf", "%PDF first")
	h.upload("mail/inbound/1005/b.pdf", "%PDF second")

	summary, err := h.processor.Process(context.Background(), message("1005", "a.pdf", "b.pdf"))
	require.NoError(t, err)

	assert.Equal(t, models.StatePartiallyFailed, summary.Outcomes[0].State)
	assert.Equal(t, models.StateSucceeded, summary.Outcomes[1].State)
	assert.Equal(t, []string{models.MessageStatusPartiallyProcessed, models.MessageStatusPartiallyProcessed}, h.content.statuses)
	assert.Equal(t, models.MessageStatusPartiallyProcessed, summary.MessageStatus)
}

func TestProcessNoDataRoutesToReview(t *testing.T) {
	h := newHarness(t, constantAnswer(t, `{"EMAIL_ADDRESS": "", "PHONE": null}`))
	h.upload("mail/inbound/1006/blank.pdf", "%PDF blank")

	summary, err := h.processor.Process(context.Background(), message("1006", "blank.pdf"))
	require.NoError(t, err)

	outcome := summary.Outcomes[0]
	assert.Equal(t, models.StateNoData, outcome.State)
	assert.Equal(t, "review/", outcome.Zone)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, []models.AttachmentState{
		models.StateDownloading, models.StateDownloaded,
		models.StateExtracting, models.StateExtracted,
		models.StateNoData,
	}, outcome.Transitions)
	assert.Empty(t, outcome.Contents)
	assert.Empty(t, h.content.inserted)
	assert.Contains(t, h.content.raw, "1")
	assert.Equal(t, "mail/review/1006", h.content.paths["1"])
	assert.Equal(t, models.MessageStatusPartiallyProcessed, h.content.lastStatus())
}

func TestProcessUnparseableModelAnswerRoutesToReview(t *testing.T) {
	h := newHarness(t, constantAnswer(t, "I could not read this document."))
	h.upload("mail/inbound/1007/form.pdf", "%PDF")

	summary, err := h.processor.Process(context.Background(), message("1007", "form.pdf"))
	require.NoError(t, err)

	outcome := summary.Outcomes[0]
	assert.Equal(t, models.StatePartiallyFailed, outcome.State)
	assert.True(t, models.IsKind(outcome.Err, models.KindModelResponseFormat))
	assert.Empty(t, h.content.raw)
}

func TestProcessRecoversFromPanics(t *testing.T) {
	h := newHarness(t, constantAnswer(t, formAnswer))
	h.renderer.panic = true
	h.upload("mail/inbound/1008/a.pdf", "%PDF")

	summary, err := h.processor.Process(context.Background(), message("1008", "a.pdf"))
	require.NoError(t, err)

	outcome := summary.Outcomes[0]
	assert.Equal(t, models.StatePartiallyFailed, outcome.State)
	assert.Equal(t, models.StateExtractFailed, outcome.FailedAt)
	assert.Contains(t, outcome.Error, "corrupt page tree")
	assert.Equal(t, "mail/review/1008", h.content.paths["1"])
}

func TestProcessSkipsUnsupportedContentType(t *testing.T) {
	h := newHarness(t, func([]byte) ([]byte, error) {
		t.Fatal("model must not be called for skipped messages")
		return nil, nil
	})
	h.upload("mail/inbound/1009/form.pdf", "%PDF")
	body := bytes.Replace(message("1009", "form.pdf"), []byte("multipart/mixed"), []byte("text/plain"), 1)

	summary, err := h.processor.Process(context.Background(), body)
	require.NoError(t, err)

	assert.True(t, summary.Skipped)
	assert.Empty(t, summary.Outcomes)
	assert.Empty(t, h.content.statuses)
	assert.Empty(t, h.content.paths)
	assert.Empty(t, h.ledger.docs)
	assert.Equal(t, []string{"mail/inbound/1009/form.pdf"}, h.store.Keys(testBucket))
}

func TestProcessRejectsUndecodableBody(t *testing.T) {
	h := newHarness(t, constantAnswer(t, formAnswer))

	_, err := h.processor.Process(context.Background(), []byte(`{"process_id": `))
	assert.True(t, errors.Is(err, ErrInvalidMessage))
}

func TestProcessSkipsAttachmentsFinishedInEarlierDelivery(t *testing.T) {
	h := newHarness(t, constantAnswer(t, formAnswer))
	h.upload("mail/inbound/1010/a.pdf", "%PDF a")
	h.upload("mail/inbound/1010/b.pdf", "%PDF b")
	h.cache.states["1010:1"] = models.StateSucceeded

	summary, err := h.processor.Process(context.Background(), message("1010", "a.pdf", "b.pdf"))
	require.NoError(t, err)

	assert.Equal(t, models.StateSkipped, summary.Outcomes[0].State)
	assert.Equal(t, []models.AttachmentState{models.StateSkipped}, summary.Outcomes[0].Transitions)
	assert.Equal(t, models.StateSucceeded, summary.Outcomes[1].State)
	require.Len(t, h.content.inserted, 1)
	assert.Equal(t, "2", h.content.inserted[0].AttachmentID)
	assert.Equal(t, models.StateSucceeded, h.cache.states["1010:2"])
}

func TestProcessContinuesWhenCacheIsDown(t *testing.T) {
	h := newHarness(t, constantAnswer(t, formAnswer))
	h.cache.err = errors.New("dial tcp: connection refused")
	h.upload("mail/inbound/1011/a.pdf", "%PDF a")

	summary, err := h.processor.Process(context.Background(), message("1011", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, summary.Outcomes[0].State)
}

func TestProcessWritesResultDocumentAndRunLedger(t *testing.T) {
	h := newHarness(t, constantAnswer(t, formAnswer))
	h.upload("mail/inbound/1012/a.pdf", "%PDF a")

	summary, err := h.processor.Process(context.Background(), message("1012", "a.pdf", "missing.pdf"))
	require.NoError(t, err)

	assert.Equal(t, "1012_20240309_140507.json", summary.ResultFile)
	assert.Equal(t, testBucket+"/output_response/1012_20240309_140507.json", summary.ResultObject)

	stored, err := h.store.Get(context.Background(), testBucket, "output_response/1012_20240309_140507.json")
	require.NoError(t, err)

	var doc struct {
		ProcessID   json.Number `json:"process_id"`
		Attachments []struct {
			ProcessAttachmentID json.Number          `json:"process_attachment_id"`
			Contents            []models.FieldRecord `json:"contents"`
		} `json:"attachments"`
	}
	dec := json.NewDecoder(bytes.NewReader(stored))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))
	assert.Equal(t, "1012", doc.ProcessID.String())
	require.Len(t, doc.Attachments, 2)
	require.Len(t, doc.Attachments[0].Contents, 1)
	assert.Equal(t, "John Doe", doc.Attachments[0].Contents[0].Value)
	assert.NotNil(t, doc.Attachments[1].Contents)
	assert.Empty(t, doc.Attachments[1].Contents)

	run, ok := h.ledger.docs["1012_20240309_140507"]
	require.True(t, ok)
	assert.Equal(t, "1012", run.ProcessID)
	assert.Equal(t, summary.RunID, run.RunID)
	assert.Equal(t, 2, run.AttachmentCount)
	assert.Equal(t, 1, run.SucceededCount)
	assert.Equal(t, 1, run.ReviewCount)
	assert.Equal(t, models.MessageStatusPartiallyProcessed, run.MessageStatus)
	assert.Contains(t, run.ErrorDetails, "2: [DOWNLOAD]")
}

func TestResultFileNameUsesUTC(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	ts := time.Date(2024, 1, 1, 9, 30, 0, 0, loc)
	assert.Equal(t, "77_20231231_233000.json", ResultFileName("77", ts))
}

func TestAugmentMessageKeepsOriginalFields(t *testing.T) {
	body := []byte(`{"process_id": 12345678901234567890, "content_type": "MULTIPART/MIXED", "sender": "ops@example.com",
		"attachments": [{"process_attachment_id": "a-1", "file_name": "x.pdf"}]}`)
	out, err := augmentMessage(body, []models.AttachmentOutcome{{
		Contents: []models.FieldRecord{{Key: "K", Value: "V", DisplayOrder: 1}},
	}})
	require.NoError(t, err)

	assert.Contains(t, string(out), `"process_id": 12345678901234567890`)
	assert.Contains(t, string(out), `"sender": "ops@example.com"`)
	assert.Contains(t, string(out), `"key": "K"`)
	assert.Contains(t, string(out), "\n    \"attachments\"")
}
