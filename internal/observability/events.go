package observability

// EventEnvelope is the wire format for bus-published lifecycle events.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSEventEnvelope wraps a websocket lifecycle payload for the bus.
func WSEventEnvelope(name string, payload interface{}) EventEnvelope {
	return EventEnvelope{EventType: "ws_events", EventName: name, Payload: payload}
}

// BuildHeaders assembles AMQP headers for request correlation.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
