package devices

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is the thermostat operating mode.
type Mode string

const (
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
	ModeAuto Mode = "auto"
	ModeOff  Mode = "off"
)

// Modes lists every accepted mode in display order.
var Modes = []Mode{ModeHeat, ModeCool, ModeAuto, ModeOff}

// ParseMode matches s against the known modes, ignoring case.
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToLower(s))
	for _, known := range Modes {
		if m == known {
			return m, true
		}
	}
	return "", false
}

// Thermostat is the single climate device of the home. Temperatures are in
// degrees Celsius and deliberately unbounded.
type Thermostat struct {
	CurrentTemp float64 `json:"current_temp"`
	TargetTemp  float64 `json:"target_temp"`
	Mode        Mode    `json:"mode"`
}

// DefaultThermostat is 22°C current and target, auto mode.
func DefaultThermostat() Thermostat {
	return Thermostat{CurrentTemp: 22, TargetTemp: 22, Mode: ModeAuto}
}

// Thermostat returns a snapshot of the thermostat state.
func (r *Registry) Thermostat() Thermostat {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thermostat
}

// Temperature reports current and target temperature and the mode.
func (r *Registry) Temperature() Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.thermostat
	res := ok(fmt.Sprintf("The current temperature is %s°C, target is %s°C, mode is '%s'.",
		formatTemp(t.CurrentTemp), formatTemp(t.TargetTemp), t.Mode))
	res.Thermostat = &t
	return res
}

// SetTemperature sets the target temperature.
func (r *Registry) SetTemperature(v float64) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thermostat.TargetTemp = v
	return r.thermostatResultLocked(fmt.Sprintf("Target temperature set to %s°C.", formatTemp(v)))
}

// IncreaseTemperature raises the target by one degree.
func (r *Registry) IncreaseTemperature() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thermostat.TargetTemp++
	return r.thermostatResultLocked(fmt.Sprintf("Target temperature increased to %s°C.", formatTemp(r.thermostat.TargetTemp)))
}

// DecreaseTemperature lowers the target by one degree.
func (r *Registry) DecreaseTemperature() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thermostat.TargetTemp--
	return r.thermostatResultLocked(fmt.Sprintf("Target temperature decreased to %s°C.", formatTemp(r.thermostat.TargetTemp)))
}

// SetMode switches the thermostat mode. Unknown modes leave the state alone.
func (r *Registry) SetMode(mode string) Result {
	m, valid := ParseMode(mode)
	if !valid {
		return invalid(fmt.Sprintf("Invalid mode '%s'. Please choose from 'heat', 'cool', 'auto', or 'off'.", mode))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thermostat.Mode = m
	return r.thermostatResultLocked(fmt.Sprintf("Thermostat mode set to '%s'.", m))
}

func (r *Registry) thermostatResultLocked(msg string) Result {
	t := r.thermostat
	res := ok(msg)
	res.Thermostat = &t
	return res
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
