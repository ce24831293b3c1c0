// pkg/registry/registry.go
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const CurrentVersion = "1.0.0"

var ErrUnsupportedFormat = errors.New("unsupported template file format")

// LoadRegistry reads a .json, .yaml or .yml template file.
func LoadRegistry(path string) (*TemplateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data according to ext. JSON numbers stay json.Number so
// large ids are not rounded.
func Parse(data []byte, ext string) (*TemplateFile, error) {
	var file TemplateFile
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("decode template file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("decode template file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if file.Prompts == nil {
		return nil, fmt.Errorf("template file has no 'prompts' list")
	}
	return &file, nil
}

// LoadTemplates returns the raw prompt records of a template file.
func LoadTemplates(path string) ([]any, error) {
	file, err := LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	return file.Prompts, nil
}

// SaveRegistry writes file as JSON or YAML depending on the extension,
// stamping LastUpdated.
func SaveRegistry(path string, file *TemplateFile) error {
	if file.Version == "" {
		file.Version = CurrentVersion
	}
	file.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(file, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(file)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal template file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}
	return nil
}

// SaveTemplates replaces the prompt list of path, keeping its version.
func SaveTemplates(path string, prompts []any) error {
	file, err := LoadRegistry(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		file = &TemplateFile{}
	}
	file.Prompts = prompts
	return SaveRegistry(path, file)
}
