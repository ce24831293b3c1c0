// Package prompts holds the validated, immutable template store.
package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Store is an immutable, validated template collection. It is never mutated
// after Build; configuration changes produce a new Store.
type Store struct {
	templates   []Template
	index       map[string]int
	fingerprint string
}

// Build validates every record and returns a Store, or the first violation.
//
// Records are objects (map[string]any, Template or *Template) with id, name,
// description and a body under "body" or "prompt". Checks run in order per
// record: object shape, id present and non-null, id unique, name,
// description, body, placeholder present.
func Build(records []any) (*Store, error) {
	if len(records) == 0 {
		return nil, invalid(0, "", "must contain at least one prompt")
	}

	s := &Store{
		templates: make([]Template, 0, len(records)),
		index:     make(map[string]int, len(records)),
	}

	for i, rec := range records {
		pos := i + 1

		obj, ok := asObject(rec)
		if !ok {
			return nil, invalid(pos, "", "must be an object")
		}

		rawID, present := obj["id"]
		if !present {
			return nil, invalid(pos, "id", "is missing required field 'id'")
		}
		id, err := ParseID(rawID)
		if err != nil {
			v := invalid(pos, "id", fmt.Sprintf("has invalid 'id' (%s)", err))
			v.Err = err
			return nil, v
		}
		if _, dup := s.index[id.String()]; dup {
			return nil, invalid(pos, "id", fmt.Sprintf("has duplicate 'id': %s", id))
		}

		name, ok := nonEmptyString(obj["name"])
		if !ok {
			return nil, invalid(pos, "name", "has invalid 'name' (must be a non-empty string)")
		}
		desc, ok := nonEmptyString(obj["description"])
		if !ok {
			return nil, invalid(pos, "description", "has invalid 'description' (must be a non-empty string)")
		}

		rawBody, hasBody := obj["body"]
		if !hasBody {
			rawBody = obj["prompt"]
		}
		body, ok := nonEmptyString(rawBody)
		if !ok {
			return nil, invalid(pos, "body", "has invalid 'body' (must be a non-empty string)")
		}
		if !strings.Contains(body, Placeholder) {
			return nil, invalid(pos, "body", fmt.Sprintf("(%q) is missing %s placeholder", name, Placeholder))
		}

		s.index[id.String()] = len(s.templates)
		s.templates = append(s.templates, Template{ID: id, Name: name, Description: desc, Body: body})
	}

	s.fingerprint = fingerprint(s.templates)
	return s, nil
}

// BuildTemplates validates already-typed templates.
func BuildTemplates(templates []Template) (*Store, error) {
	records := make([]any, len(templates))
	for i, t := range templates {
		records[i] = t
	}
	return Build(records)
}

func asObject(rec any) (map[string]any, bool) {
	switch v := rec.(type) {
	case map[string]any:
		return v, v != nil
	case map[string]string:
		if v == nil {
			return nil, false
		}
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, true
	case Template:
		return map[string]any{"id": v.ID, "name": v.Name, "description": v.Description, "body": v.Body}, true
	case *Template:
		if v == nil {
			return nil, false
		}
		return asObject(*v)
	default:
		return nil, false
	}
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func fingerprint(templates []Template) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, t := range templates {
		_ = enc.Encode(t)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// List returns the templates in input order. The slice is a copy.
func (s *Store) List() []Template {
	out := make([]Template, len(s.templates))
	copy(out, s.templates)
	return out
}

// Get looks a template up by id.
func (s *Store) Get(id ID) (Template, bool) {
	i, ok := s.index[id.String()]
	if !ok {
		return Template{}, false
	}
	return s.templates[i], true
}

func (s *Store) Len() int {
	return len(s.templates)
}

// First returns the fallback template, the first one configured.
func (s *Store) First() Template {
	return s.templates[0]
}

// Metadata lists id, name and description for every template, in order.
func (s *Store) Metadata() []Metadata {
	out := make([]Metadata, len(s.templates))
	for i, t := range s.templates {
		out[i] = t.Metadata()
	}
	return out
}

// Records returns the templates in the raw record shape, for persistence.
func (s *Store) Records() []any {
	out := make([]any, len(s.templates))
	for i, t := range s.templates {
		out[i] = t.Record()
	}
	return out
}

// Fingerprint identifies the store's content. Two stores built from the same
// templates in the same order share a fingerprint.
func (s *Store) Fingerprint() string {
	return s.fingerprint
}
