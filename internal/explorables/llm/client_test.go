package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "test-model",
		"choices": []any{
			map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func newGateway(t *testing.T, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateStructuredObject(t *testing.T) {
	var body map[string]any
	srv := newGateway(t, "```json\n{\"title\":\"x\"}\n```", &body)
	c := NewClient(Options{BaseURL: srv.URL + "/v1", APIKey: "test-key", DefaultModel: "default-model"})

	temp := 0.2
	out, err := c.GenerateStructuredObject(context.Background(), Request{
		System: "be helpful",
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: []domain.ContentBlock{
				domain.FileBlock("JVBERi0=", "application/pdf", "paper.pdf"),
				domain.ImageBlock("data:image/png;base64,AAAA"),
				domain.TextBlock("build it"),
			}},
			{Role: domain.RoleAssistant, Content: []domain.ContentBlock{domain.TextBlock("done")}},
		},
		Schema:      FragmentSchema(),
		SchemaName:  "fragment",
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"x"}`, string(out))

	assert.Equal(t, "default-model", body["model"])
	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "fragment", schema["name"])
	assert.Equal(t, true, schema["strict"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 3)
	file := parts[0].(map[string]any)
	assert.Equal(t, "file", file["type"])
	assert.Equal(t, "data:application/pdf;base64,JVBERi0=", file["file"].(map[string]any)["file_data"])
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])

	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestGenerateStructuredObjectEmpty(t *testing.T) {
	srv := newGateway(t, "  ", nil)
	c := NewClient(Options{BaseURL: srv.URL + "/v1", APIKey: "test-key", DefaultModel: "m"})

	_, err := c.GenerateStructuredObject(context.Background(), Request{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: []domain.ContentBlock{domain.TextBlock("hi")}}},
	})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestUnresolvedStorageFileIsRejected(t *testing.T) {
	c := NewClient(Options{APIKey: "k", DefaultModel: "m"})

	_, err := c.GenerateStructuredObject(context.Background(), Request{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: []domain.ContentBlock{
			domain.StorageFileBlock("pdfs/a.pdf", "application/pdf", "a.pdf"),
		}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved storage file")
}
