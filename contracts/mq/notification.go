package mq

import (
	"encoding/json"
	"time"
)

// Routing keys on the events exchange.
const (
	RoutingKeyNotificationEvent    = "notification.event"
	RoutingKeyNotificationDecided  = "notification.decided"
	RoutingKeyNotificationDispatch = "notification.dispatch"

	QueueNotificationEvent = "notification.event.q"
)

// NotificationEventPayload is an inbound business event to be decided.
type NotificationEventPayload struct {
	EventID   string          `json:"eventId"`
	UserID    string          `json:"userId"`
	EventType string          `json:"eventType"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NotificationDecidedPayload carries the verdict for every consumed event.
type NotificationDecidedPayload struct {
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	EventType string    `json:"eventType"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	Channels  []string  `json:"channels,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// NotificationDispatchPayload asks channel senders to deliver an approved event.
type NotificationDispatchPayload struct {
	EventID   string          `json:"eventId"`
	UserID    string          `json:"userId"`
	EventType string          `json:"eventType"`
	Channels  []string        `json:"channels"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
