package observability

import (
	"context"
	"time"
)

// EventEnvelope is the JSON body published to the topic exchange for every
// realtime event downstream consumers care about.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders assembles AMQP headers carrying request correlation ids.
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

// PublishMessageEvent publishes a persisted-message event. Best-effort;
// the send already succeeded by the time this runs.
func PublishMessageEvent(ctx context.Context, routingKey string, message interface{}) {
	_ = PublishEvent(ctx, routingKey, EventEnvelope{
		EventType: "message_events",
		EventName: routingKey,
		Payload:   message,
	}, nil)
}

// PublishReadEvent publishes a read-receipt event.
func PublishReadEvent(ctx context.Context, routingKey string, messageID, readerID int64, readAt time.Time) {
	_ = PublishEvent(ctx, routingKey, EventEnvelope{
		EventType: "message_events",
		EventName: routingKey,
		Payload: map[string]interface{}{
			"message_id": messageID,
			"reader_id":  readerID,
			"read_at":    readAt,
		},
	}, nil)
}
