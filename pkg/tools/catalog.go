// Package tools exposes device registry operations as model-callable tools:
// a fixed catalog of declarations and a dispatcher that resolves a tool call
// to its handler.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/harunnryd/hearth/pkg/configutil"
	"github.com/harunnryd/hearth/pkg/devices"
	"github.com/harunnryd/hearth/pkg/llm"
)

// Handler executes one tool call against already validated arguments.
type Handler func(ctx context.Context, args map[string]any) (devices.Result, error)

// Bind adapts a typed operation into a Handler. Arguments are decoded into T
// with weak typing; a decode failure is returned before fn runs.
func Bind[T any](fn func(T) devices.Result) Handler {
	return func(ctx context.Context, args map[string]any) (devices.Result, error) {
		var in T
		if err := configutil.DecodeSettings(args, &in); err != nil {
			return devices.Result{}, err
		}
		return fn(in), nil
	}
}

// Spec is one registration table entry.
type Spec struct {
	Plugin      string
	Function    string
	Description string
	Params      []llm.ToolParam
	Handler     Handler
}

// Name is the qualified tool name, e.g. Lights-get_lights.
func (s Spec) Name() string {
	if s.Plugin == "" {
		return s.Function
	}
	return s.Plugin + "-" + s.Function
}

// Tool is the declaration handed to the model.
func (s Spec) Tool() llm.Tool {
	return llm.Tool{
		Name:        s.Name(),
		Description: s.Description,
		Params:      append([]llm.ToolParam(nil), s.Params...),
	}
}

// schema checks presence only: extra keys a model adds are ignored.
func (s Spec) schema() configutil.Schema {
	sc := configutil.Schema{AllowEmpty: true, AllowUnknown: true}
	for _, p := range s.Params {
		if p.Required {
			sc.Required = append(sc.Required, p.Name)
		} else {
			sc.Optional = append(sc.Optional, p.Name)
		}
	}
	return sc
}

var (
	ErrDuplicateTool = errors.New("duplicate tool")
	ErrInvalidSpec   = errors.New("invalid tool spec")
)

// Catalog is an immutable, ordered set of tools.
type Catalog struct {
	specs []Spec
	index map[string]int
}

// NewCatalog builds a catalog, rejecting nameless or handlerless specs and
// duplicate qualified names.
func NewCatalog(specs ...Spec) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(specs))}
	for _, s := range specs {
		name := s.Name()
		if s.Function == "" || s.Handler == nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSpec, name)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		c.index[name] = len(c.specs)
		c.specs = append(c.specs, s)
	}
	return c, nil
}

// Tools returns the declarations in registration order.
func (c *Catalog) Tools() []llm.Tool {
	out := make([]llm.Tool, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, s.Tool())
	}
	return out
}

// Lookup finds a spec by qualified name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	i, ok := c.index[name]
	if !ok {
		return Spec{}, false
	}
	return c.specs[i], true
}

// Names lists qualified names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.specs))
	for _, s := range c.specs {
		out = append(out, s.Name())
	}
	return out
}

func (c *Catalog) Len() int { return len(c.specs) }

// HomeCatalog registers the Lights and Thermostat tools against reg.
func HomeCatalog(reg *devices.Registry) (*Catalog, error) {
	specs := append(LightsSpecs(reg), ThermostatSpecs(reg)...)
	return NewCatalog(specs...)
}
