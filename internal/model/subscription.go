package model

import (
	"fmt"
	"sort"
	"time"
)

// Delivery channels a user can opt into.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

var knownChannels = map[string]struct{}{
	ChannelEmail: {},
	ChannelSMS:   {},
	ChannelPush:  {},
}

// Subscription is the per (user, notification type) opt-in record.
type Subscription struct {
	UserID           string
	NotificationType string
	Enabled          bool
	Channels         []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SubscriptionInput is a full subscription as supplied to a set operation.
type SubscriptionInput struct {
	NotificationType string
	Enabled          bool
	Channels         []string
}

// SubscriptionPatch changes only the non-nil fields of an existing subscription.
// A nil Channels slice leaves channels untouched; an empty one clears them.
type SubscriptionPatch struct {
	NotificationType string
	Enabled          *bool
	Channels         []string
}

// NormalizeChannels validates channels against the known vocabulary and
// returns them deduplicated and sorted. A nil input yields an empty slice.
func NormalizeChannels(channels []string) ([]string, error) {
	seen := make(map[string]struct{}, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, ok := knownChannels[ch]; !ok {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidRequest, ch)
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	sort.Strings(out)
	return out, nil
}

func (in SubscriptionInput) Validate() error {
	if in.NotificationType == "" {
		return fmt.Errorf("%w: notification_type is required", ErrInvalidRequest)
	}
	_, err := NormalizeChannels(in.Channels)
	return err
}

func (p SubscriptionPatch) Validate() error {
	if p.NotificationType == "" {
		return fmt.Errorf("%w: notification_type is required", ErrInvalidRequest)
	}
	if p.Channels != nil {
		if _, err := NormalizeChannels(p.Channels); err != nil {
			return err
		}
	}
	return nil
}
