package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeMessages(t *testing.T) {
	in := []Message{{
		Role: RoleUser,
		Content: []ContentBlock{
			ImageBlock("data:image/png;base64,iVBORw0KGgo="),
			FileBlock("JVBERi0xLjc=", "application/pdf", "paper.pdf"),
			FileBlock("AAAA", "application/pdf", ""),
			StorageFileBlock("pdfs/u1/x.pdf", "application/pdf", "x.pdf"),
			TextBlock("make it interactive"),
		},
	}}

	out := SanitizeMessages(in)
	require.Len(t, out[0].Content, 5)
	assert.Equal(t, TextBlock("[Image uploaded]"), out[0].Content[0])
	assert.Equal(t, TextBlock("[File uploaded: paper.pdf]"), out[0].Content[1])
	assert.Equal(t, TextBlock("[File uploaded: file]"), out[0].Content[2])
	assert.Equal(t, "pdfs/u1/x.pdf", out[0].Content[3].StoragePath)
	assert.Equal(t, "make it interactive", out[0].Content[4].Text)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "iVBORw0KGgo")
	assert.NotContains(t, string(raw), "JVBERi0xLjc")
	assert.NotContains(t, string(raw), `"data"`)

	assert.Equal(t, out, SanitizeMessages(out))

	assert.Equal(t, BlockImage, in[0].Content[0].Type, "input must not be mutated")
}
