package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

func TestBuildInitialWithStoredPDFAndMetadata(t *testing.T) {
	msgs := BuildInitial(InitialOptions{
		PDF:         &PDFInput{StoragePath: "pdfs/u1/a.pdf", Filename: "2301.00001.pdf"},
		Images:      []string{"data:image/png;base64,AAAA"},
		Instruction: "  Visualize the loss landscape  ",
		Metadata:    &PaperMetadata{Title: "Sharp Minima", Abstract: "We study minima."},
	})

	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, domain.RoleUser, m.Role)
	require.Len(t, m.Content, 3)

	assert.Equal(t, domain.BlockStorageFile, m.Content[0].Type)
	assert.Equal(t, "pdfs/u1/a.pdf", m.Content[0].StoragePath)
	assert.Equal(t, "application/pdf", m.Content[0].MimeType)

	assert.Equal(t, domain.BlockImage, m.Content[1].Type)

	assert.Equal(t, domain.BlockText, m.Content[2].Type)
	assert.Equal(t, "Paper title: Sharp Minima\n\nAbstract: We study minima.\n\nVisualize the loss landscape", m.Content[2].Text)
}

func TestBuildInitialInlinePDFDefaultInstruction(t *testing.T) {
	msgs := BuildInitial(InitialOptions{
		PDF: &PDFInput{Data: []byte("%PDF-"), Filename: "paper.pdf"},
	})

	require.Len(t, msgs[0].Content, 2)
	file := msgs[0].Content[0]
	assert.Equal(t, domain.BlockFile, file.Type)
	assert.Equal(t, "JVBERi0=", file.Data)
	assert.Equal(t, "paper.pdf", file.Filename)
	assert.Equal(t, DefaultInstruction, msgs[0].Content[1].Text)
}

func TestBuildInitialWithoutPDF(t *testing.T) {
	msgs := BuildInitial(InitialOptions{Instruction: "Explain transformers"})

	require.Len(t, msgs[0].Content, 1)
	assert.Equal(t, "Explain transformers", msgs[0].Content[0].Text)
}

func TestAppendContinuation(t *testing.T) {
	existing := BuildInitial(InitialOptions{Instruction: "first"})
	prev := &domain.Fragment{
		Commentary: "Built a slider demo.",
		Template:   "html-developer",
		Title:      "Sliders",
		FilePath:   "index.html",
		Code:       domain.SingleFileCode("<html></html>"),
	}

	out := AppendContinuation(existing, ContinuationOptions{
		PreviousFragment: prev,
		Images:           []string{"data:image/png;base64,BBBB"},
		Instruction:      "Add a reset button",
	})

	require.Len(t, out, 3)
	assert.Len(t, existing, 1)

	assistant := out[1]
	assert.Equal(t, domain.RoleAssistant, assistant.Role)
	assert.Same(t, prev, assistant.Object)
	require.Len(t, assistant.Content, 3)
	assert.Equal(t, "Built a slider demo.", assistant.Content[0].Text)
	assert.Equal(t, domain.BlockCode, assistant.Content[2].Type)
	assert.Equal(t, "<html></html>", assistant.Content[2].Text)

	user := out[2]
	assert.Equal(t, domain.RoleUser, user.Role)
	require.Len(t, user.Content, 2)
	assert.Equal(t, domain.BlockImage, user.Content[0].Type)
	assert.Equal(t, "Add a reset button", user.Content[1].Text)
}

func TestAppendContinuationWithoutPreviousFragment(t *testing.T) {
	out := AppendContinuation(nil, ContinuationOptions{Instruction: "again"})

	require.Len(t, out, 1)
	assert.Equal(t, domain.RoleUser, out[0].Role)
}
