// Package devices holds the in-memory state of the toy home: a list of lights
// and a single thermostat. All operations are synchronous and never fail with
// an error; lookups that miss or arguments that make no sense come back as a
// Result with a non-OK status.
package devices

import (
	"fmt"
	"strings"
	"sync"
)

// Light is a switchable light. ID is unique for the lifetime of a Registry.
type Light struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	IsOn bool   `json:"is_on"`
}

// DefaultLights is the starting set of lights for a fresh registry.
func DefaultLights() []Light {
	return []Light{
		{ID: 1, Name: "Table Lamp", IsOn: false},
		{ID: 2, Name: "Porch light", IsOn: false},
		{ID: 3, Name: "Chandelier", IsOn: true},
	}
}

// Registry owns the lights and the thermostat. It is safe for concurrent use:
// writers are serialized and readers get a consistent snapshot.
type Registry struct {
	mu         sync.RWMutex
	lights     []Light
	thermostat Thermostat
}

// Option customizes a Registry at construction.
type Option func(*Registry)

// WithLights replaces the default light set.
func WithLights(lights []Light) Option {
	return func(r *Registry) {
		r.lights = append([]Light(nil), lights...)
	}
}

// WithThermostat replaces the default thermostat state. An invalid mode falls
// back to auto.
func WithThermostat(t Thermostat) Option {
	return func(r *Registry) {
		if _, ok := ParseMode(string(t.Mode)); !ok {
			t.Mode = ModeAuto
		}
		r.thermostat = t
	}
}

// NewRegistry builds a registry seeded with DefaultLights and
// DefaultThermostat unless options say otherwise.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		lights:     DefaultLights(),
		thermostat: DefaultThermostat(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListLights returns a copy of every light in insertion order.
func (r *Registry) ListLights() Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Light, 0, len(r.lights))
	out = append(out, r.lights...)
	return Result{Status: StatusOK, Lights: out}
}

// SetLightState switches the light with the given id on or off.
func (r *Registry) SetLightState(id int, isOn bool) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.lights {
		if r.lights[i].ID == id {
			r.lights[i].IsOn = isOn
			l := r.lights[i]
			return Result{Status: StatusOK, Light: &l}
		}
	}
	return notFound(fmt.Sprintf("No light found with ID %d.", id))
}

// RenameLight renames a light only when both its id and its current name
// match exactly.
func (r *Registry) RenameLight(id int, oldName, newName string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.lights {
		if r.lights[i].ID == id && r.lights[i].Name == oldName {
			r.lights[i].Name = newName
			l := r.lights[i]
			res := ok(fmt.Sprintf("Light '%s' changed to '%s'", oldName, newName))
			res.Light = &l
			return res
		}
	}
	return notFound(fmt.Sprintf("No light found with id %d and name '%s'", id, oldName))
}

// AddLight appends a light with id = max(existing ids, 0) + 1.
func (r *Registry) AddLight(name string, isOn bool) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := Light{ID: r.nextIDLocked(), Name: name, IsOn: isOn}
	r.lights = append(r.lights, l)
	res := ok(fmt.Sprintf("Light '%s' added with ID %d and state %s.", name, l.ID, onOff(isOn)))
	res.Light = &l
	return res
}

// RemoveLight removes the first light matching id, or when id is nil the
// first light whose name matches case-insensitively.
func (r *Registry) RemoveLight(id *int, name *string) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id != nil {
		for i := range r.lights {
			if r.lights[i].ID == *id {
				l := r.removeAtLocked(i)
				res := ok(fmt.Sprintf("Light with ID %d removed.", *id))
				res.Light = &l
				return res
			}
		}
		return notFound(fmt.Sprintf("No light found with ID %d.", *id))
	}
	if name != nil {
		for i := range r.lights {
			if strings.EqualFold(r.lights[i].Name, *name) {
				l := r.removeAtLocked(i)
				res := ok(fmt.Sprintf("Light '%s' removed.", *name))
				res.Light = &l
				return res
			}
		}
		return notFound(fmt.Sprintf("No light found with name '%s'.", *name))
	}
	return invalid("Please provide either an ID or a name to remove a light.")
}

func (r *Registry) nextIDLocked() int {
	maxID := 0
	for _, l := range r.lights {
		if l.ID > maxID {
			maxID = l.ID
		}
	}
	return maxID + 1
}

func (r *Registry) removeAtLocked(i int) Light {
	l := r.lights[i]
	r.lights = append(r.lights[:i], r.lights[i+1:]...)
	return l
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
