package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decision is the outcome of evaluating an event against a user's preferences.
type Decision string

const (
	DecisionProcess     Decision = "PROCESS_NOTIFICATION"
	DecisionDoNotNotify Decision = "DO_NOT_NOTIFY"
)

// Reason explains a DO_NOT_NOTIFY decision.
type Reason string

const (
	ReasonUserUnsubscribed     Reason = "USER_UNSUBSCRIBED"
	ReasonNoChannelsConfigured Reason = "NO_CHANNELS_CONFIGURED"
	ReasonUserDNDActive        Reason = "USER_DND_ACTIVE"
	ReasonNoSettingsConfigured Reason = "NO_NOTIFICATION_SETTINGS_CONFIGURED"
)

// Event is an inbound business event tied to a user.
type Event struct {
	EventID   string          `json:"eventId"`
	UserID    string          `json:"userId"`
	EventType string          `json:"eventType"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Verdict is the decision for one event. Reason is set only when the
// notification is suppressed, Channels only when it is processed.
type Verdict struct {
	Decision Decision `json:"decision"`
	EventID  string   `json:"eventId"`
	UserID   string   `json:"userId"`
	Reason   Reason   `json:"reason,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// Validate checks the envelope fields; the payload is opaque.
func (e Event) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("%w: eventId is required", ErrInvalidRequest)
	case e.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	case e.EventType == "":
		return fmt.Errorf("%w: eventType is required", ErrInvalidRequest)
	case e.Timestamp == "":
		return fmt.Errorf("%w: timestamp is required", ErrInvalidRequest)
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("%w: timestamp must be ISO 8601: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Suppress builds a DO_NOT_NOTIFY verdict.
func Suppress(e Event, reason Reason) Verdict {
	return Verdict{
		Decision: DecisionDoNotNotify,
		EventID:  e.EventID,
		UserID:   e.UserID,
		Reason:   reason,
	}
}

// Process builds a PROCESS_NOTIFICATION verdict carrying channels.
func Process(e Event, channels []string) Verdict {
	return Verdict{
		Decision: DecisionProcess,
		EventID:  e.EventID,
		UserID:   e.UserID,
		Channels: channels,
	}
}
