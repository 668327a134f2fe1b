package metrics

const (
	EventTurnStart    = "turn_start"
	EventTurnEnd      = "turn_end"
	EventLLMRequest   = "llm_request"
	EventLLMResponse  = "llm_response"
	EventLLMError     = "llm_error"
	EventToolDispatch = "tool_dispatch"
	EventStateChange  = "state_change"

	EventRateLimit     = "rate_limit"
	EventBreakerOpen   = "breaker_open"
	EventBreakerClose  = "breaker_close"
	EventBreakerDenied = "breaker_denied"

	EventClientConnected    = "client_connected"
	EventClientDisconnected = "client_disconnected"
	EventReplyDropped       = "reply_dropped"
)
