package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/service"
)

type fakePipeline struct {
	err         error
	createReq   service.CreateRequest
	continueReq service.ContinueRequest
	statusUser  string
}

func project() *domain.Project {
	return &domain.Project{
		ID:        "p-1",
		UserID:    "user-1",
		Title:     "Attention explorer",
		Template:  "explorable-research-developer",
		Status:    domain.StatusReady,
		Result:    domain.NewWebResult("sbx-1", "explorable-research-developer", "https://5173-sbx-1.sandbox.test"),
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC),
	}
}

func (f *fakePipeline) CreateSync(_ context.Context, req service.CreateRequest) (*domain.Project, error) {
	f.createReq = req
	if f.err != nil {
		return nil, f.err
	}
	return project(), nil
}

func (f *fakePipeline) ContinueSync(_ context.Context, req service.ContinueRequest) (*domain.Project, error) {
	f.continueReq = req
	if f.err != nil {
		return nil, f.err
	}
	return project(), nil
}

func (f *fakePipeline) Status(_ context.Context, userID, _ string) (*domain.StatusRecord, error) {
	f.statusUser = userID
	if f.err != nil {
		return nil, f.err
	}
	rec := project().Record()
	return &rec, nil
}

func connect(t *testing.T, fp *fakePipeline) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := NewServer(fp, "user-1", "test").Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func decodeOutput(t *testing.T, res *mcp.CallToolResult) ProjectOutput {
	t.Helper()
	require.False(t, res.IsError)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out ProjectOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestListTools(t *testing.T) {
	cs := connect(t, &fakePipeline{})

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"create_explorable", "get_explorable_status", "continue_explorable"}, names)
}

func TestCreateExplorable(t *testing.T) {
	fp := &fakePipeline{}
	cs := connect(t, fp)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "create_explorable",
		Arguments: map[string]any{"arxiv_url": "2301.00001", "instructions": "Focus on figure 3"},
	})
	require.NoError(t, err)

	out := decodeOutput(t, res)
	assert.Equal(t, "ready", out.Status)
	assert.Equal(t, "https://5173-sbx-1.sandbox.test", out.PreviewURL)
	assert.Equal(t, "2026-01-02T03:05:05Z", out.UpdatedAt)
	assert.Equal(t, service.CreateRequest{
		UserID: "user-1", ArxivURL: "2301.00001", Instruction: "Focus on figure 3",
	}, fp.createReq)
}

func TestStatusAndContinue(t *testing.T) {
	fp := &fakePipeline{}
	cs := connect(t, fp)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_explorable_status",
		Arguments: map[string]any{"project_id": "p-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sbx-1", decodeOutput(t, res).SandboxID)
	assert.Equal(t, "user-1", fp.statusUser)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "continue_explorable",
		Arguments: map[string]any{"project_id": "p-1", "instructions": "Add a slider"},
	})
	require.NoError(t, err)
	decodeOutput(t, res)
	assert.Equal(t, "Add a slider", fp.continueReq.Instruction)
	assert.Equal(t, "p-1", fp.continueReq.ProjectID)
}

func TestToolErrorsCarryCode(t *testing.T) {
	fp := &fakePipeline{err: domain.NewError(domain.CodeInvalidState, "Project is not ready for changes")}
	cs := connect(t, fp)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "continue_explorable",
		Arguments: map[string]any{"project_id": "p-1", "instructions": "Add a slider"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "INVALID_STATE: Project is not ready for changes", text.Text)
}

func TestHTTPHandlerRejectsAnonymous(t *testing.T) {
	h := HTTPHandler(&fakePipeline{}, "test", func(*http.Request) string { return "" })

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","capabilities":{},"clientInfo":{"name":"t","version":"0"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
