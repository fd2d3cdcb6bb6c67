package repository

import (
	"context"
	"time"

	"notifydecision/internal/model"
)

// Store is the preference persistence used by the decision engine and the
// preference manager. Missing records yield model.ErrNotFound; every other
// failure is wrapped in model.ErrStoreUnavailable.
type Store interface {
	GetSubscription(ctx context.Context, userID, notificationType string) (model.Subscription, error)
	ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error)
	// PutSubscription inserts or fully replaces a subscription, keeping CreatedAt.
	PutSubscription(ctx context.Context, sub model.Subscription) error
	// UpdateSubscription applies the patch only if the record exists.
	UpdateSubscription(ctx context.Context, userID string, patch model.SubscriptionPatch, now time.Time) (model.Subscription, error)

	GetDNDWindow(ctx context.Context, userID, id string) (model.DNDWindow, error)
	ListDNDWindows(ctx context.Context, userID string) ([]model.DNDWindow, error)
	// ListActiveDNDWindows returns the windows of day covering the "HH:MM" time at.
	ListActiveDNDWindows(ctx context.Context, userID string, day int, at string) ([]model.DNDWindow, error)
	PutDNDWindow(ctx context.Context, w model.DNDWindow) error
	UpdateDNDWindow(ctx context.Context, userID, id string, u model.DNDUpdate, now time.Time) (model.DNDWindow, error)

	Ping(ctx context.Context) error
	Close() error
}

const (
	tableSubscriptions = "notification_subscriptions"
	tableDNDWindows    = "dnd_windows"
)
