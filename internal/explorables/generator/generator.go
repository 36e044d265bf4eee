package generator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
	"github.com/explorable-research/explorable-backend/internal/explorables/llm"
	"github.com/explorable-research/explorable-backend/internal/explorables/templates"
	"github.com/explorable-research/explorable-backend/internal/logger"
)

const schemaName = "fragment"

// StructuredGenerator is the LLM capability.
type StructuredGenerator interface {
	GenerateStructuredObject(ctx context.Context, req llm.Request) (json.RawMessage, error)
}

// BlobReader loads stored files referenced by storage-file blocks.
type BlobReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

type ModelConfig struct {
	Model       string
	Temperature *float64
}

type Generator struct {
	llm   StructuredGenerator
	blobs BlobReader
	retry RetryPolicy
}

// New creates a generator. blobs may be nil, in which case storage references
// degrade to placeholders.
func New(model StructuredGenerator, blobs BlobReader, retry RetryPolicy) *Generator {
	return &Generator{llm: model, blobs: blobs, retry: retry}
}

// Generate turns a conversation into a fragment for tmpl. Failures are
// *domain.Error with GENERATION_FAILED or INVALID_RESPONSE.
func (g *Generator) Generate(ctx context.Context, msgs []domain.Message, tmpl templates.Template, cfg ModelConfig) (*domain.Fragment, error) {
	log := logger.New(ctx)
	req := llm.Request{
		Model:       cfg.Model,
		System:      templates.SystemPrompt(tmpl),
		Messages:    g.resolveStorageFiles(ctx, msgs),
		Schema:      llm.FragmentSchema(),
		SchemaName:  schemaName,
		Temperature: cfg.Temperature,
	}

	var lastErr error
	for attempt := 0; attempt < g.retry.attempts(); attempt++ {
		if attempt > 0 {
			delay := g.retry.delay(attempt - 1)
			log.Warnf("generate_fragment", "attempt=%d retrying in %s after: %v", attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, domain.Wrap(domain.CodeGenerationFailed, ctx.Err(), "Failed to generate code: %v", ctx.Err())
			case <-time.After(delay):
			}
		}

		fragment, err := g.generateOnce(ctx, req, tmpl)
		if err == nil {
			return fragment, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (g *Generator) generateOnce(ctx context.Context, req llm.Request, tmpl templates.Template) (*domain.Fragment, error) {
	raw, err := g.llm.GenerateStructuredObject(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrEmptyResponse) {
			return nil, domain.Wrap(domain.CodeInvalidResponse, err, "Model returned an empty response")
		}
		return nil, domain.Wrap(domain.CodeGenerationFailed, err, "Failed to generate code: %v", err)
	}

	var fragment domain.Fragment
	if err := json.Unmarshal(raw, &fragment); err != nil {
		return nil, domain.Wrap(domain.CodeInvalidResponse, err, "Model returned an invalid fragment: %v", err)
	}
	normalize(&fragment, tmpl)
	if err := fragment.Validate(); err != nil {
		return nil, domain.Wrap(domain.CodeInvalidResponse, err, "Model returned an invalid fragment: %v", err)
	}
	return &fragment, nil
}

// normalize pins the fragment to the requested template and fills template defaults.
func normalize(f *domain.Fragment, tmpl templates.Template) {
	f.Template = tmpl.ID
	if f.Code.Kind == domain.CodeSingleFile && f.FilePath == "" {
		f.FilePath = tmpl.FilePath
	}
	if f.Port == nil && tmpl.Port > 0 {
		port := tmpl.Port
		f.Port = &port
	}
}

// resolveStorageFiles returns a copy of msgs where every storage-file block is
// replaced by an inline file, or by a placeholder when it cannot be loaded.
func (g *Generator) resolveStorageFiles(ctx context.Context, msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Content = make([]domain.ContentBlock, len(m.Content))
		for j, b := range m.Content {
			if b.Type != domain.BlockStorageFile {
				out[i].Content[j] = b
				continue
			}
			out[i].Content[j] = g.loadStorageFile(ctx, b)
		}
	}
	return out
}

func (g *Generator) loadStorageFile(ctx context.Context, b domain.ContentBlock) domain.ContentBlock {
	name := b.Filename
	if name == "" {
		name = "document.pdf"
	}
	if g.blobs == nil {
		return domain.TextBlock(fmt.Sprintf("[PDF: %s - failed to load]", name))
	}
	data, err := g.blobs.Get(ctx, b.StoragePath)
	if err != nil {
		logger.New(ctx).Warnf("generate_fragment", "storage file %s unavailable: %v", b.StoragePath, err)
		return domain.TextBlock(fmt.Sprintf("[PDF: %s - failed to load]", name))
	}
	return domain.FileBlock(base64.StdEncoding.EncodeToString(data), b.MimeType, name)
}
