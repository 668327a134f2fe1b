package tools

import (
	"github.com/harunnryd/hearth/pkg/devices"
	"github.com/harunnryd/hearth/pkg/llm"
)

const LightsPlugin = "Lights"

type changeStateArgs struct {
	ID   int  `mapstructure:"id"`
	IsOn bool `mapstructure:"is_on"`
}

type changeNameArgs struct {
	ID      int    `mapstructure:"id"`
	OldName string `mapstructure:"old_name"`
	NewName string `mapstructure:"new_name"`
}

type addLightArgs struct {
	Name string `mapstructure:"name"`
	IsOn bool   `mapstructure:"is_on"`
}

type removeLightArgs struct {
	ID   *int    `mapstructure:"id"`
	Name *string `mapstructure:"name"`
}

// LightsSpecs declares the light tools.
func LightsSpecs(reg *devices.Registry) []Spec {
	return []Spec{
		{
			Plugin:      LightsPlugin,
			Function:    "get_lights",
			Description: "Gets a list of lights and their current state",
			Handler: Bind(func(struct{}) devices.Result {
				return reg.ListLights()
			}),
		},
		{
			Plugin:      LightsPlugin,
			Function:    "change_state",
			Description: "Changes the state of the light",
			Params: []llm.ToolParam{
				{Name: "id", Type: "integer", Required: true, Description: "The id of the light."},
				{Name: "is_on", Type: "boolean", Required: true, Description: "True to switch the light on, false to switch it off."},
			},
			Handler: Bind(func(a changeStateArgs) devices.Result {
				return reg.SetLightState(a.ID, a.IsOn)
			}),
		},
		{
			Plugin:      LightsPlugin,
			Function:    "change_name",
			Description: "Changes the name of the light",
			Params: []llm.ToolParam{
				{Name: "id", Type: "integer", Required: true, Description: "The id of the light."},
				{Name: "old_name", Type: "string", Required: true, Description: "The current name, exactly as listed."},
				{Name: "new_name", Type: "string", Required: true},
			},
			Handler: Bind(func(a changeNameArgs) devices.Result {
				return reg.RenameLight(a.ID, a.OldName, a.NewName)
			}),
		},
		{
			Plugin:      LightsPlugin,
			Function:    "add_light",
			Description: "Adds a new light with a name and on/off state.",
			Params: []llm.ToolParam{
				{Name: "name", Type: "string", Required: true},
				{Name: "is_on", Type: "boolean", Description: "Initial state, off when omitted."},
			},
			Handler: Bind(func(a addLightArgs) devices.Result {
				return reg.AddLight(a.Name, a.IsOn)
			}),
		},
		{
			Plugin:      LightsPlugin,
			Function:    "remove_light",
			Description: "Removes a light by its ID or name.",
			Params: []llm.ToolParam{
				{Name: "id", Type: "integer", Description: "Takes precedence over name."},
				{Name: "name", Type: "string", Description: "Matched case-insensitively."},
			},
			Handler: Bind(func(a removeLightArgs) devices.Result {
				return reg.RemoveLight(a.ID, a.Name)
			}),
		},
	}
}
