package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Lllllllleong/formextractionflow/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invokerFunc func(ctx context.Context, body []byte) ([]byte, error)

func (f invokerFunc) InvokeModel(ctx context.Context, body []byte) ([]byte, error) {
	return f(ctx, body)
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func anthropicBody(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":          "msg_01",
		"type":        "message",
		"stop_reason": "end_turn",
		"content":     []any{map[string]any{"type": "text", "text": text}},
	})
	require.NoError(t, err)
	return body
}

func TestExtractDecodesNestedJSONText(t *testing.T) {
	g := New(invokerFunc(func(_ context.Context, body []byte) ([]byte, error) {
		assert.Equal(t, `{"request":true}`, string(body))
		return anthropicBody(t, `{"ACCOUNT_HOLDER_NAME":"Jane Doe","EMAIL_ADDRESS":""}`), nil
	}), nil, Config{})

	resp, err := g.Extract(context.Background(), []byte(`{"request":true}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"ACCOUNT_HOLDER_NAME": "Jane Doe", "EMAIL_ADDRESS": ""}, resp.Content)

	stored, err := resp.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(stored), `"text":{"ACCOUNT_HOLDER_NAME":"Jane Doe","EMAIL_ADDRESS":""}`)
	assert.Contains(t, string(stored), `"stop_reason":"end_turn"`)
}

func TestExtractToleratesCodeFences(t *testing.T) {
	g := New(invokerFunc(func(context.Context, []byte) ([]byte, error) {
		return anthropicBody(t, "```json\n[{\"section\":\"CUSTOMER\",\"key\":\"First Name\",\"value\":\"John\",\"confidence\":98.1}]\n```"), nil
	}), nil, Config{})

	resp, err := g.Extract(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	list, ok := resp.Content.([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)
	assert.Equal(t, `[{"section":"CUSTOMER","key":"First Name","value":"John","confidence":98.1}]`, resp.Text)
}

func TestExtractFailureKinds(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		err  error
		kind models.ErrorKind
	}{
		{name: "transport", err: errors.New("unavailable"), kind: models.KindModelInvocation},
		{name: "body not json", raw: []byte("<html>"), kind: models.KindModelResponseFormat},
		{name: "no content", raw: []byte(`{"content":[]}`), kind: models.KindModelResponseFormat},
		{name: "text not json", raw: anthropicBody(t, "I could not read the form."), kind: models.KindModelResponseFormat},
		{name: "scalar content", raw: anthropicBody(t, `"just a string"`), kind: models.KindModelResponseFormat},
		{name: "list without keys", raw: anthropicBody(t, `[{"value":"x"}]`), kind: models.KindModelResponseFormat},
		{name: "trailing data", raw: anthropicBody(t, `{"a":"b"} {"c":"d"}`), kind: models.KindModelResponseFormat},
		{name: "stray closing brace", raw: anthropicBody(t, `{"a":"b"}}`), kind: models.KindModelResponseFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(invokerFunc(func(context.Context, []byte) ([]byte, error) {
				return tt.raw, tt.err
			}), nil, Config{})

			_, err := g.Extract(context.Background(), []byte(`{}`))
			require.Error(t, err)
			assert.Equal(t, tt.kind, models.KindOf(err))
		})
	}
}

func TestDecodeJSONTextRejectsStrayClosers(t *testing.T) {
	for _, text := range []string{`{"a":"b"}}`, `[{"inputheader":"A","mappedheader":"B"}]]`, "```json\n[1]]\n```"} {
		_, err := DecodeJSONText(text)
		assert.True(t, models.IsKind(err, models.KindModelResponseFormat), text)
	}

	g := New(nil, generatorFunc(func(context.Context, string) (string, error) {
		return `[{"inputheader":"Name","mappedheader":"Customer Name"}]}`, nil
	}), Config{})
	_, err := g.GenerateJSON(context.Background(), "map", nil)
	assert.True(t, models.IsKind(err, models.KindModelResponseFormat))

	value, err := DecodeJSONText("  {\"a\":\"b\"}\n")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "b"}, value)
}

func TestExtractAppliesTimeout(t *testing.T) {
	g := New(invokerFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), nil, Config{Timeout: 10 * time.Millisecond})

	_, err := g.Extract(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindModelInvocation))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateJSONValidatesSchema(t *testing.T) {
	schema := jsonschema.MustCompileString("list.json", `{"type":"array"}`)

	g := New(nil, generatorFunc(func(_ context.Context, prompt string) (string, error) {
		assert.Equal(t, "map these", prompt)
		return "```\n[{\"inputheader\":\"a\",\"mappedheader\":\"A\"}]\n```", nil
	}), Config{})
	value, err := g.GenerateJSON(context.Background(), "map these", schema)
	require.NoError(t, err)
	assert.Len(t, value, 1)

	g = New(nil, generatorFunc(func(context.Context, string) (string, error) {
		return `{"not":"a list"}`, nil
	}), Config{})
	_, err = g.GenerateJSON(context.Background(), "map these", schema)
	assert.True(t, models.IsKind(err, models.KindModelResponseFormat))
}

func TestGatewayWithoutCollaborators(t *testing.T) {
	g := New(nil, nil, Config{})
	_, err := g.Extract(context.Background(), nil)
	assert.True(t, models.IsKind(err, models.KindModelInvocation))
	_, err = g.GenerateJSON(context.Background(), "x", nil)
	assert.True(t, models.IsKind(err, models.KindModelInvocation))
}
