// cmd/tools/template-registry/main.go
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"prompt-switcher/internal/prompts"
	"prompt-switcher/pkg/registry"
)

const defaultPath = "configs/default_prompts.json"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		help(out)
		return errors.New("missing command")
	}

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		path := fs.String("path", defaultPath, "Path to the template file (.json, .yaml)")
		id := fs.String("id", "", "Template id (default: highest numeric id + 1)")
		name := fs.String("name", "", "Template name")
		description := fs.String("description", "", "What requests the template is for")
		body := fs.String("prompt", "", "Template body containing "+prompts.Placeholder)
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *name == "" || *description == "" || *body == "" {
			fs.Usage()
			return errors.New("name, description and prompt are required for add")
		}
		added, err := addTemplate(*path, *id, *name, *description, *body)
		if err != nil {
			return fmt.Errorf("adding template: %w", err)
		}
		fmt.Fprintf(out, "Added template %s (%s)\n", added, *name)

	case "update":
		fs := flag.NewFlagSet("update", flag.ContinueOnError)
		path := fs.String("path", defaultPath, "Path to the template file")
		id := fs.String("id", "", "Template id to update")
		field := fs.String("field", "", "Field to update (name, description, prompt)")
		value := fs.String("value", "", "New value for the field")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" || *field == "" || *value == "" {
			fs.Usage()
			return errors.New("id, field and value are required for update")
		}
		if err := updateTemplate(*path, *id, *field, *value); err != nil {
			return fmt.Errorf("updating template: %w", err)
		}
		fmt.Fprintf(out, "Updated template %s, field %s\n", *id, *field)

	case "remove":
		fs := flag.NewFlagSet("remove", flag.ContinueOnError)
		path := fs.String("path", defaultPath, "Path to the template file")
		id := fs.String("id", "", "Template id to remove")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if *id == "" {
			fs.Usage()
			return errors.New("id is required for remove")
		}
		if err := removeTemplate(*path, *id); err != nil {
			return fmt.Errorf("removing template: %w", err)
		}
		fmt.Fprintf(out, "Removed template %s\n", *id)

	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		path := fs.String("path", defaultPath, "Path to the template file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		store, err := loadStore(*path)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
		for _, t := range store.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Name, t.Description)
		}
		return tw.Flush()

	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		path := fs.String("path", defaultPath, "Path to the template file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		store, err := loadStore(*path)
		if err != nil {
			return fmt.Errorf("template validation failed: %w", err)
		}
		fmt.Fprintf(out, "Template validation passed. Found %d templates (fingerprint %s).\n", store.Len(), store.Fingerprint())

	case "help":
		help(out)

	default:
		help(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

func loadStore(path string) (*prompts.Store, error) {
	records, err := registry.LoadTemplates(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return prompts.Build(records)
}

// save validates templates as a whole before anything is written.
func save(path string, templates []prompts.Template) error {
	store, err := prompts.BuildTemplates(templates)
	if err != nil {
		return err
	}
	return registry.SaveTemplates(path, store.Records())
}

func addTemplate(path, rawID, name, description, body string) (prompts.ID, error) {
	var existing []prompts.Template
	store, err := loadStore(path)
	switch {
	case err == nil:
		existing = store.List()
	case errors.Is(err, os.ErrNotExist):
	default:
		return prompts.ID{}, err
	}

	id := nextID(existing)
	if rawID != "" {
		id = parseID(rawID)
	}

	t := prompts.Template{ID: id, Name: name, Description: description, Body: body}
	if err := save(path, append(existing, t)); err != nil {
		return prompts.ID{}, err
	}
	return id, nil
}

func updateTemplate(path, rawID, field, value string) error {
	store, err := loadStore(path)
	if err != nil {
		return err
	}
	templates := store.List()
	i := indexOf(templates, parseID(rawID))
	if i < 0 {
		return fmt.Errorf("template with id %s not found", rawID)
	}

	switch field {
	case "name":
		templates[i].Name = value
	case "description":
		templates[i].Description = value
	case "prompt", "body":
		templates[i].Body = value
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return save(path, templates)
}

func removeTemplate(path, rawID string) error {
	store, err := loadStore(path)
	if err != nil {
		return err
	}
	templates := store.List()
	i := indexOf(templates, parseID(rawID))
	if i < 0 {
		return fmt.Errorf("template with id %s not found", rawID)
	}
	return save(path, append(templates[:i], templates[i+1:]...))
}

// nextID is one past the highest numeric id, or 1 when there is none.
func nextID(templates []prompts.Template) prompts.ID {
	var max int64
	for _, t := range templates {
		if n, err := strconv.ParseInt(t.ID.String(), 10, 64); err == nil && n > max {
			max = n
		}
	}
	return prompts.IntID(max + 1)
}

func indexOf(templates []prompts.Template, id prompts.ID) int {
	for i, t := range templates {
		if t.ID.Equal(id) {
			return i
		}
	}
	return -1
}

func parseID(s string) prompts.ID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return prompts.IntID(n)
	}
	return prompts.StringID(s)
}

func help(out io.Writer) {
	fmt.Fprint(out, `
Usage: template-registry <command> [flags]

Commands:
  add       Add a prompt template
  update    Update a template's name, description or prompt
  remove    Remove a template
  list      List templates in routing order
  validate  Validate the template file
  help      Show this help message

Examples:
  template-registry add -name "Bug Hunter" -description "Finds bugs" -prompt "Find the bug: [RAW_REQUEST]"
  template-registry update -id 3 -field description -value "Finds and fixes bugs"
  template-registry remove -id 3 -path configs/default_prompts.json
  template-registry validate -path configs/default_prompts.yaml

Use 'template-registry <command> -h' for more information about a command.
`)
}
