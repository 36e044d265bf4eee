package messages

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

const DefaultInstruction = "Create an interactive explorable that helps a curious reader understand the key ideas of this paper. " +
	"Focus on the central mechanism, let the reader manipulate its parameters, and explain what they observe."

const pdfMimeType = "application/pdf"

// PaperMetadata is the arXiv title and abstract shown to the model.
type PaperMetadata struct {
	Title    string
	Abstract string
}

// PDFInput is a stored or inline PDF. StoragePath wins when both are set.
type PDFInput struct {
	StoragePath string
	Data        []byte
	Filename    string
}

type InitialOptions struct {
	PDF         *PDFInput
	Images      []string
	Instruction string
	Metadata    *PaperMetadata
}

type ContinuationOptions struct {
	PreviousFragment *domain.Fragment
	Images           []string
	Instruction      string
}

// BuildInitial assembles the single user turn that starts a project.
func BuildInitial(opts InitialOptions) []domain.Message {
	content := make([]domain.ContentBlock, 0, len(opts.Images)+2)
	if opts.PDF != nil {
		content = append(content, pdfBlock(*opts.PDF))
	}
	for _, img := range opts.Images {
		content = append(content, domain.ImageBlock(img))
	}

	var text strings.Builder
	if md := opts.Metadata; md != nil && md.Title != "" {
		fmt.Fprintf(&text, "Paper title: %s\n\n", md.Title)
		if md.Abstract != "" {
			fmt.Fprintf(&text, "Abstract: %s\n\n", md.Abstract)
		}
	}
	text.WriteString(instructionOrDefault(opts.Instruction))
	content = append(content, domain.TextBlock(text.String()))

	return []domain.Message{{Role: domain.RoleUser, Content: content}}
}

// AppendContinuation returns existing followed by a summary of the previous
// fragment (when present) and the new user request. existing is not modified.
func AppendContinuation(existing []domain.Message, opts ContinuationOptions) []domain.Message {
	out := make([]domain.Message, len(existing), len(existing)+2)
	copy(out, existing)

	if f := opts.PreviousFragment; f != nil {
		out = append(out, previousFragmentTurn(f))
	}

	content := make([]domain.ContentBlock, 0, len(opts.Images)+1)
	for _, img := range opts.Images {
		content = append(content, domain.ImageBlock(img))
	}
	content = append(content, domain.TextBlock(strings.TrimSpace(opts.Instruction)))
	return append(out, domain.Message{Role: domain.RoleUser, Content: content})
}

func previousFragmentTurn(f *domain.Fragment) domain.Message {
	var content []domain.ContentBlock
	if f.Commentary != "" {
		content = append(content, domain.TextBlock(f.Commentary))
	}
	summary := fmt.Sprintf("Current implementation (template %s):", f.Template)
	if f.Title != "" {
		summary = fmt.Sprintf("Current implementation of %q (template %s):", f.Title, f.Template)
	}
	content = append(content,
		domain.TextBlock(summary),
		domain.ContentBlock{Type: domain.BlockCode, Text: f.CodeText()},
	)
	return domain.Message{Role: domain.RoleAssistant, Content: content, Object: f}
}

func pdfBlock(p PDFInput) domain.ContentBlock {
	if p.StoragePath != "" {
		return domain.StorageFileBlock(p.StoragePath, pdfMimeType, p.Filename)
	}
	return domain.FileBlock(base64.StdEncoding.EncodeToString(p.Data), pdfMimeType, p.Filename)
}

func instructionOrDefault(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return DefaultInstruction
}
