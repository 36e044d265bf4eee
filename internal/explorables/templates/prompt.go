package templates

import (
	"fmt"
	"strings"
)

// SystemPrompt renders the system instructions for generating a fragment
// with template t.
func SystemPrompt(t Template) string {
	var b strings.Builder
	b.WriteString("You are an expert engineer who turns research papers into interactive explorables.\n")
	b.WriteString("Read the provided paper and instructions and produce a single runnable fragment.\n")
	b.WriteString("Do not wrap code in backticks. Only return the structured fragment.\n\n")
	fmt.Fprintf(&b, "Template: %s\n", t.ID)
	fmt.Fprintf(&b, "Runtime: %s\n", t.Name)
	fmt.Fprintf(&b, "Instructions: %s\n", t.Instructions)
	if len(t.Libraries) > 0 {
		fmt.Fprintf(&b, "Preinstalled libraries: %s\n", strings.Join(t.Libraries, ", "))
	}
	if t.FilePath != "" {
		fmt.Fprintf(&b, "Default file path: %s\n", t.FilePath)
	}
	if t.Kind == KindWeb {
		port := t.Port
		if port == 0 {
			port = 80
		}
		fmt.Fprintf(&b, "Port: %d\n", port)
	}
	b.WriteString("\nIf you add dependencies beyond the preinstalled ones, set has_additional_dependencies ")
	b.WriteString("and provide the exact install_dependencies_command.\n")
	return b.String()
}
