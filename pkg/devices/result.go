package devices

import "encoding/json"

// Status tags the outcome of a registry operation.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusInvalidArgs
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusInvalidArgs:
		return "invalid_args"
	default:
		return "unknown"
	}
}

// Result is the value every registry operation returns. Failures are ordinary
// results so they can be fed back into a conversation unchanged.
type Result struct {
	Status     Status
	Message    string
	Light      *Light
	Lights     []Light
	Thermostat *Thermostat
}

// OK reports whether the operation found its target and applied.
func (r Result) OK() bool { return r.Status == StatusOK }

// Text renders the result for the conversation history. Records are encoded as
// JSON, everything else uses the human-readable message.
func (r Result) Text() string {
	switch {
	case r.Lights != nil:
		return encode(r.Lights, r.Message)
	case r.Light != nil && r.Message == "":
		return encode(r.Light, "")
	}
	return r.Message
}

func encode(v any, fallback string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fallback
	}
	return string(b)
}

func ok(msg string) Result {
	return Result{Status: StatusOK, Message: msg}
}

func notFound(msg string) Result {
	return Result{Status: StatusNotFound, Message: msg}
}

func invalid(msg string) Result {
	return Result{Status: StatusInvalidArgs, Message: msg}
}
