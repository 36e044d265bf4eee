package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/service"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

const serverName = "explorable"

// Pipeline is the subset of the project service exposed as tools.
type Pipeline interface {
	CreateSync(ctx context.Context, req service.CreateRequest) (*domain.Project, error)
	ContinueSync(ctx context.Context, req service.ContinueRequest) (*domain.Project, error)
	Status(ctx context.Context, userID, id string) (*domain.StatusRecord, error)
}

type CreateInput struct {
	ArxivURL     string `json:"arxiv_url" jsonschema:"arXiv URL or id of the paper to turn into an explorable"`
	Instructions string `json:"instructions,omitempty" jsonschema:"what the explorable should focus on"`
	Model        string `json:"model,omitempty" jsonschema:"model id to generate with"`
}

type StatusInput struct {
	ProjectID string `json:"project_id" jsonschema:"id returned by create_explorable"`
}

type ContinueInput struct {
	ProjectID    string `json:"project_id" jsonschema:"id of a ready explorable"`
	Instructions string `json:"instructions" jsonschema:"the change to make"`
}

// ProjectOutput is the status record as returned to tool callers.
type ProjectOutput struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Template     string `json:"template"`
	PreviewURL   string `json:"preview_url,omitempty"`
	SandboxID    string `json:"sandbox_id,omitempty"`
	Code         string `json:"code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func toOutput(rec domain.StatusRecord) ProjectOutput {
	out := ProjectOutput{
		ID:         rec.ID,
		Status:     string(rec.Status),
		Title:      rec.Title,
		Template:   rec.Template,
		PreviewURL: rec.PreviewURL,
		SandboxID:  rec.SandboxID,
		Code:       rec.Code,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.Description != nil {
		out.Description = *rec.Description
	}
	if rec.ErrorMessage != nil {
		out.ErrorMessage = *rec.ErrorMessage
	}
	return out
}

// toolError renders a pipeline failure as a tool error the calling model can read.
func toolError(err error) error {
	return fmt.Errorf("%s: %s", domain.CodeOf(err), domain.MessageOf(err))
}

// NewServer builds an MCP server whose tools act on behalf of userID.
func NewServer(pipeline Pipeline, userID, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	t := &tools{pipeline: pipeline, userID: userID}

	mcp.AddTool(s, &mcp.Tool{
		Name:        "create_explorable",
		Description: "Generate an interactive explorable from an arXiv paper and deploy it. Returns when the preview is ready or generation failed.",
	}, t.create)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_explorable_status",
		Description: "Get the status, preview URL and code of an explorable.",
	}, t.status)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "continue_explorable",
		Description: "Revise a ready explorable with new instructions and redeploy it.",
	}, t.continueProject)
	return s
}

type tools struct {
	pipeline Pipeline
	userID   string
}

func (t *tools) create(ctx context.Context, _ *mcp.CallToolRequest, in CreateInput) (*mcp.CallToolResult, ProjectOutput, error) {
	p, err := t.pipeline.CreateSync(ctx, service.CreateRequest{
		UserID:      t.userID,
		ArxivURL:    in.ArxivURL,
		Instruction: in.Instructions,
		Model:       in.Model,
	})
	if err != nil {
		logger.New(ctx).Error("mcp_create_explorable", err)
		return nil, ProjectOutput{}, toolError(err)
	}
	return nil, toOutput(p.Record()), nil
}

func (t *tools) status(ctx context.Context, _ *mcp.CallToolRequest, in StatusInput) (*mcp.CallToolResult, ProjectOutput, error) {
	rec, err := t.pipeline.Status(ctx, t.userID, in.ProjectID)
	if err != nil {
		return nil, ProjectOutput{}, toolError(err)
	}
	return nil, toOutput(*rec), nil
}

func (t *tools) continueProject(ctx context.Context, _ *mcp.CallToolRequest, in ContinueInput) (*mcp.CallToolResult, ProjectOutput, error) {
	p, err := t.pipeline.ContinueSync(ctx, service.ContinueRequest{
		UserID:      t.userID,
		ProjectID:   in.ProjectID,
		Instruction: in.Instructions,
	})
	if err != nil {
		logger.New(ctx).Error("mcp_continue_explorable", err)
		return nil, ProjectOutput{}, toolError(err)
	}
	return nil, toOutput(p.Record()), nil
}

// RunStdio serves the tools over stdin/stdout until ctx is done.
func RunStdio(ctx context.Context, pipeline Pipeline, userID, version string) error {
	return NewServer(pipeline, userID, version).Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the tools over streamable HTTP. Every request gets a
// server bound to the user resolved by userOf; requests without a user are
// rejected.
func HTTPHandler(pipeline Pipeline, version string, userOf func(*http.Request) string) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		userID := userOf(r)
		if userID == "" {
			return nil
		}
		return NewServer(pipeline, userID, version)
	}, &mcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true})
}
