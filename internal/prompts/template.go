package prompts

import "strings"

// Placeholder marks where the user's raw text goes in a template body.
const Placeholder = "[RAW_REQUEST]"

// Template is one validated prompt template ("agent").
type Template struct {
	ID          ID     `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Body        string `json:"body" yaml:"body"`
}

// Metadata is the part of a template that is shown to callers and sent to the
// classifier. The body never leaves the service through it.
type Metadata struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (t Template) Metadata() Metadata {
	return Metadata{ID: t.ID, Name: t.Name, Description: t.Description}
}

// Render substitutes raw into the first placeholder. Later occurrences are
// left untouched and raw is inserted verbatim.
func (t Template) Render(raw string) string {
	return strings.Replace(t.Body, Placeholder, raw, 1)
}

// Record converts the template back into the raw record shape accepted by
// Build, using the "prompt" key the settings store persists.
func (t Template) Record() map[string]any {
	return map[string]any{
		"id":          t.ID.Value(),
		"name":        t.Name,
		"description": t.Description,
		"prompt":      t.Body,
	}
}
