package tools

import (
	"github.com/harunnryd/hearth/pkg/devices"
	"github.com/harunnryd/hearth/pkg/llm"
)

const ThermostatPlugin = "Thermostat"

type setTemperatureArgs struct {
	Temp float64 `mapstructure:"temp"`
}

type setModeArgs struct {
	Mode string `mapstructure:"mode"`
}

// ThermostatSpecs declares the thermostat tools.
func ThermostatSpecs(reg *devices.Registry) []Spec {
	modes := make([]string, 0, len(devices.Modes))
	for _, m := range devices.Modes {
		modes = append(modes, string(m))
	}
	return []Spec{
		{
			Plugin:      ThermostatPlugin,
			Function:    "get_temperature",
			Description: "Returns the current and target temperatures.",
			Handler: Bind(func(struct{}) devices.Result {
				return reg.Temperature()
			}),
		},
		{
			Plugin:      ThermostatPlugin,
			Function:    "set_temperature",
			Description: "Sets the target temperature.",
			Params: []llm.ToolParam{
				{Name: "temp", Type: "number", Required: true, Description: "Target temperature in °C."},
			},
			Handler: Bind(func(a setTemperatureArgs) devices.Result {
				return reg.SetTemperature(a.Temp)
			}),
		},
		{
			Plugin:      ThermostatPlugin,
			Function:    "increase_temperature",
			Description: "Increases the target temperature by 1°C.",
			Handler: Bind(func(struct{}) devices.Result {
				return reg.IncreaseTemperature()
			}),
		},
		{
			Plugin:      ThermostatPlugin,
			Function:    "decrease_temperature",
			Description: "Decreases the target temperature by 1°C.",
			Handler: Bind(func(struct{}) devices.Result {
				return reg.DecreaseTemperature()
			}),
		},
		{
			Plugin:      ThermostatPlugin,
			Function:    "set_mode",
			Description: "Sets the mode of the thermostat to 'heat', 'cool', 'auto', or 'off'.",
			Params: []llm.ToolParam{
				// no enum: the registry reports bad modes itself
				{Name: "mode", Type: "string", Required: true, Description: "One of " + joinQuoted(modes) + "."},
			},
			Handler: Bind(func(a setModeArgs) devices.Result {
				return reg.SetMode(a.Mode)
			}),
		},
	}
}

func joinQuoted(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += "'" + s + "'"
	}
	return out
}
