// pkg/registry/schema.go
package registry

// TemplateFile is the on-disk layout of a template list. Prompts are kept
// as raw records so the template store does the validation.
type TemplateFile struct {
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	LastUpdated string `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
	Prompts     []any  `json:"prompts" yaml:"prompts"`
}
