package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonLLMGenerate    ReasonCode = "llm_generate"
	ReasonLLMRateLimit   ReasonCode = "llm_rate_limit"
	ReasonLLMCircuitOpen ReasonCode = "llm_circuit_open"
	ReasonLLMUnavailable ReasonCode = "llm_unavailable"

	ReasonToolDispatch    ReasonCode = "tool_dispatch"
	ReasonToolRoundsLimit ReasonCode = "tool_rounds_exceeded"

	ReasonConfigInvalid ReasonCode = "config_invalid"

	ReasonTransportRead ReasonCode = "transport_read"
	ReasonTransportSend ReasonCode = "transport_send"
)
