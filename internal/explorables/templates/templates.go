package templates

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/explorable-research/explorable-backend/internal/explorables/domain"
)

// DefaultTemplateID is used when a request does not name a template.
const DefaultTemplateID = "explorable-research-developer"

// Kind is the runtime contract of a template.
type Kind string

const (
	KindWeb         Kind = "web"
	KindInterpreter Kind = "interpreter"
)

// Template is a named sandbox image and the instructions the model follows for it.
type Template struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Kind         Kind     `yaml:"kind"`
	FilePath     string   `yaml:"file_path"`
	Port         int      `yaml:"port"`
	Libraries    []string `yaml:"libraries"`
	Instructions string   `yaml:"instructions"`
}

//go:embed templates.yaml
var builtin []byte

// Catalog resolves template ids. Sandbox template ids may carry an
// environment suffix (for example "-dev") that is not part of the catalog id.
type Catalog struct {
	byID   map[string]Template
	order  []string
	suffix string
}

// Load parses the embedded catalog.
func Load(envSuffix string) (*Catalog, error) {
	return Parse(builtin, envSuffix)
}

// Parse builds a catalog from YAML.
func Parse(data []byte, envSuffix string) (*Catalog, error) {
	var list []Template
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	c := &Catalog{byID: make(map[string]Template, len(list)), suffix: envSuffix}
	for _, t := range list {
		if t.ID == "" {
			return nil, fmt.Errorf("template without id")
		}
		if t.Kind != KindWeb && t.Kind != KindInterpreter {
			return nil, fmt.Errorf("template %s: unknown kind %q", t.ID, t.Kind)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template %s", t.ID)
		}
		c.byID[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return c, nil
}

// Normalize strips the environment suffix from a template id.
func (c *Catalog) Normalize(id string) string {
	id = strings.TrimSpace(id)
	if c.suffix != "" {
		id = strings.TrimSuffix(id, c.suffix)
	}
	return id
}

// Resolve looks up a template by id, normalizing the environment suffix first.
// It never substitutes a default for an unknown id.
func (c *Catalog) Resolve(id string) (Template, error) {
	t, ok := c.byID[c.Normalize(id)]
	if !ok {
		return Template{}, domain.NewError(domain.CodeTemplateNotFound, "template %q not found", id)
	}
	return t, nil
}

// SandboxTemplateID returns the provider-side id for a catalog template.
func (c *Catalog) SandboxTemplateID(id string) string {
	return c.Normalize(id) + c.suffix
}

// IDs returns catalog ids in declaration order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
