package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

// ErrEmptyResponse is returned when the gateway answers without content.
var ErrEmptyResponse = errors.New("model returned an empty response")

type Options struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
}

// Request describes one structured generation call.
type Request struct {
	Model       string
	System      string
	Messages    []domain.Message
	Schema      map[string]any
	SchemaName  string
	Temperature *float64
}

// Client calls an OpenAI compatible chat completions gateway.
type Client struct {
	client       openai.Client
	defaultModel string
}

func NewClient(opts Options) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// Retries belong to the fragment generator.
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	return &Client{
		client:       openai.NewClient(reqOpts...),
		defaultModel: opts.DefaultModel,
	}
}

func (c *Client) DefaultModel() string { return c.defaultModel }

// GenerateStructuredObject asks the model for a JSON object matching req.Schema
// and returns it undecoded.
func (c *Client) GenerateStructuredObject(ctx context.Context, req Request) (json.RawMessage, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, ErrEmptyResponse
	}
	return json.RawMessage(stripCodeFence(content)), nil
}

func (c *Client) buildParams(req Request) (openai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("no model configured")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for i, m := range req.Messages {
		converted, err := convertMessage(m)
		if err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, converted)
	}

	name := req.SchemaName
	if name == "" {
		name = "output"
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Strict: openai.Bool(true),
					Schema: req.Schema,
				},
			},
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params, nil
}

func convertMessage(m domain.Message) (openai.ChatCompletionMessageParamUnion, error) {
	if m.Role == domain.RoleAssistant {
		var parts []string
		for _, b := range m.Content {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return openai.AssistantMessage(strings.Join(parts, "\n\n")), nil
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Content))
	for _, b := range m.Content {
		switch b.Type {
		case domain.BlockText, domain.BlockCode:
			parts = append(parts, openai.TextContentPart(b.Text))
		case domain.BlockImage:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: b.Image,
			}))
		case domain.BlockFile:
			mime := b.MimeType
			if mime == "" {
				mime = "application/octet-stream"
			}
			parts = append(parts, openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(fmt.Sprintf("data:%s;base64,%s", mime, b.Data)),
				Filename: openai.String(b.Filename),
			}))
		case domain.BlockStorageFile:
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unresolved storage file %q", b.StoragePath)
		default:
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unsupported content block %q", b.Type)
		}
	}
	return openai.UserMessage(parts), nil
}

// stripCodeFence removes a markdown fence some gateways wrap JSON in.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
