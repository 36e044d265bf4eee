package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CodeKind discriminates the two shapes of generated code.
type CodeKind string

const (
	CodeSingleFile CodeKind = "single"
	CodeMultiFile  CodeKind = "multi"
)

// File is one generated source file.
type File struct {
	Path    string `json:"file_path"`
	Content string `json:"file_content"`
}

// FragmentCode holds either a single source string (written to Fragment.FilePath)
// or an explicit list of files. On the wire it is a JSON string or array.
type FragmentCode struct {
	Kind   CodeKind
	Source string
	Files  []File
}

// SingleFileCode builds code for a one-file fragment.
func SingleFileCode(source string) FragmentCode {
	return FragmentCode{Kind: CodeSingleFile, Source: source}
}

// MultiFileCode builds code for a multi-file fragment.
func MultiFileCode(files ...File) FragmentCode {
	return FragmentCode{Kind: CodeMultiFile, Files: files}
}

func (c FragmentCode) MarshalJSON() ([]byte, error) {
	if c.Kind == CodeMultiFile {
		files := c.Files
		if files == nil {
			files = []File{}
		}
		return json.Marshal(files)
	}
	return json.Marshal(c.Source)
}

func (c *FragmentCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = FragmentCode{Kind: CodeSingleFile}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = SingleFileCode(s)
		return nil
	case '[':
		var files []File
		if err := json.Unmarshal(b, &files); err != nil {
			return err
		}
		*c = MultiFileCode(files...)
		return nil
	}
	return fmt.Errorf("fragment code must be a string or a list of files")
}

// IsEmpty reports whether there is no code at all.
func (c FragmentCode) IsEmpty() bool {
	if c.Kind == CodeMultiFile {
		return len(c.Files) == 0
	}
	return strings.TrimSpace(c.Source) == ""
}

// Fragment is the structured code bundle produced by the model.
type Fragment struct {
	Commentary                 string       `json:"commentary"`
	Template                   string       `json:"template"`
	Title                      string       `json:"title"`
	Description                string       `json:"description"`
	AdditionalDependencies     []string     `json:"additional_dependencies"`
	HasAdditionalDependencies  bool         `json:"has_additional_dependencies"`
	InstallDependenciesCommand string       `json:"install_dependencies_command"`
	Port                       *int         `json:"port"`
	FilePath                   string       `json:"file_path"`
	Code                       FragmentCode `json:"code"`
}

// DefaultPort is used for web templates when the fragment declares none.
const DefaultPort = 80

// ServePort returns the declared port or DefaultPort.
func (f *Fragment) ServePort() int {
	if f.Port != nil && *f.Port > 0 {
		return *f.Port
	}
	return DefaultPort
}

// Files resolves the code union into the concrete files to write.
func (f *Fragment) Files() []File {
	if f.Code.Kind == CodeMultiFile {
		out := make([]File, 0, len(f.Code.Files))
		for _, file := range f.Code.Files {
			out = append(out, File{Path: file.Path, Content: file.Content})
		}
		return out
	}
	return []File{{Path: f.FilePath, Content: f.Code.Source}}
}

// Validate checks the structural invariants of a fragment.
func (f *Fragment) Validate() error {
	if strings.TrimSpace(f.Template) == "" {
		return fmt.Errorf("template is required")
	}
	if f.Code.IsEmpty() {
		return fmt.Errorf("code is empty")
	}
	if f.Code.Kind == CodeSingleFile && strings.TrimSpace(f.FilePath) == "" {
		return fmt.Errorf("file_path is required for single-file code")
	}
	for i, file := range f.Code.Files {
		if strings.TrimSpace(file.Path) == "" {
			return fmt.Errorf("file %d has no path", i)
		}
	}
	if f.HasAdditionalDependencies && strings.TrimSpace(f.InstallDependenciesCommand) == "" {
		return fmt.Errorf("install_dependencies_command is required when has_additional_dependencies is true")
	}
	return nil
}

// CodeText returns a printable rendering of the code, used for summaries and status records.
func (f *Fragment) CodeText() string {
	if f.Code.Kind != CodeMultiFile {
		return f.Code.Source
	}
	var b strings.Builder
	for i, file := range f.Code.Files {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "// %s\n%s", file.Path, file.Content)
	}
	return b.String()
}
