package domain

import "fmt"

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockText        BlockType = "text"
	BlockCode        BlockType = "code"
	BlockImage       BlockType = "image"
	BlockFile        BlockType = "file"
	BlockStorageFile BlockType = "storage-file"
)

const imagePlaceholder = "[Image uploaded]"

// ContentBlock is one piece of a message. Image holds a data URL, Data holds
// base64 file bytes and StoragePath references a blob in the PDF store.
type ContentBlock struct {
	Type        BlockType `json:"type"`
	Text        string    `json:"text,omitempty"`
	Image       string    `json:"image,omitempty"`
	Data        string    `json:"data,omitempty"`
	MimeType    string    `json:"mimeType,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	StoragePath string    `json:"storagePath,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock builds an inline image block from a data URL.
func ImageBlock(dataURL string) ContentBlock {
	return ContentBlock{Type: BlockImage, Image: dataURL}
}

// FileBlock builds an inline file block from base64 data.
func FileBlock(base64Data, mimeType, filename string) ContentBlock {
	return ContentBlock{Type: BlockFile, Data: base64Data, MimeType: mimeType, Filename: filename}
}

// StorageFileBlock builds a reference to a blob that must be resolved before use.
func StorageFileBlock(path, mimeType, filename string) ContentBlock {
	return ContentBlock{Type: BlockStorageFile, StoragePath: path, MimeType: mimeType, Filename: filename}
}

// Message is one conversation turn. Object and Result snapshot the fragment
// and outcome an assistant turn produced.
type Message struct {
	Role    Role             `json:"role"`
	Content []ContentBlock   `json:"content"`
	Object  *Fragment        `json:"object,omitempty"`
	Result  *ExecutionResult `json:"result,omitempty"`
}

// FilePlaceholder is the text that replaces an inline file when history is persisted.
func FilePlaceholder(filename string) string {
	if filename == "" {
		filename = "file"
	}
	return fmt.Sprintf("[File uploaded: %s]", filename)
}

// SanitizeMessages returns a copy of msgs with inline binary payloads replaced
// by short placeholders. Storage references carry no bytes and are kept so a
// continuation can load the document again. Applying it twice is a no-op.
func SanitizeMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		clean := Message{Role: m.Role, Object: m.Object, Result: m.Result}
		clean.Content = make([]ContentBlock, 0, len(m.Content))
		for _, b := range m.Content {
			clean.Content = append(clean.Content, sanitizeBlock(b))
		}
		out = append(out, clean)
	}
	return out
}

func sanitizeBlock(b ContentBlock) ContentBlock {
	switch b.Type {
	case BlockImage:
		return TextBlock(imagePlaceholder)
	case BlockFile:
		return TextBlock(FilePlaceholder(b.Filename))
	case BlockStorageFile:
		return StorageFileBlock(b.StoragePath, b.MimeType, b.Filename)
	}
	return ContentBlock{Type: b.Type, Text: b.Text}
}
