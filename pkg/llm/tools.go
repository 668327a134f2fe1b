package llm

// ToolRegistry exposes a tool set and a string-in/string-out invocation path.
type ToolRegistry interface {
	Tools() []Tool
	HandleTool(name string, args map[string]any) (string, error)
}
