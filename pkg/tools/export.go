package tools

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParamDescriptor is the exported form of one tool parameter.
type ParamDescriptor struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// Descriptor is the exported form of one tool.
type Descriptor struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Parameters  []ParamDescriptor `json:"parameters" yaml:"parameters"`
}

// Descriptors lists every tool in registration order.
func (c *Catalog) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.specs))
	for _, s := range c.specs {
		params := make([]ParamDescriptor, 0, len(s.Params))
		for _, p := range s.Params {
			params = append(params, ParamDescriptor{Name: p.Name, Type: p.Type, Required: p.Required})
		}
		out = append(out, Descriptor{Name: s.Name(), Description: s.Description, Parameters: params})
	}
	return out
}

func (c *Catalog) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.Descriptors()); err != nil {
		return fmt.Errorf("export tools json: %w", err)
	}
	return nil
}

func (c *Catalog) ExportYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Descriptors()); err != nil {
		return fmt.Errorf("export tools yaml: %w", err)
	}
	return enc.Close()
}

// Export writes the descriptors as "json" or "yaml".
func (c *Catalog) Export(w io.Writer, format string) error {
	switch format {
	case "json", "":
		return c.ExportJSON(w)
	case "yaml", "yml":
		return c.ExportYAML(w)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
