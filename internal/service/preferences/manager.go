package preferences

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifydecision/internal/clock"
	"notifydecision/internal/model"
	"notifydecision/pkg/logger"
	"notifydecision/pkg/metrics"
)

// Store is the slice of the preference store the manager needs.
type Store interface {
	ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error)
	PutSubscription(ctx context.Context, sub model.Subscription) error
	UpdateSubscription(ctx context.Context, userID string, patch model.SubscriptionPatch, now time.Time) (model.Subscription, error)

	GetDNDWindow(ctx context.Context, userID, id string) (model.DNDWindow, error)
	ListDNDWindows(ctx context.Context, userID string) ([]model.DNDWindow, error)
	PutDNDWindow(ctx context.Context, w model.DNDWindow) error
	UpdateDNDWindow(ctx context.Context, userID, id string, u model.DNDUpdate, now time.Time) (model.DNDWindow, error)
}

const (
	kindSubscription = "subscription"
	kindDND          = "dnd"
)

// Manager is the CRUD surface over a user's subscriptions and DND windows.
// Batch writes are sequential and not atomic: when one record fails, the
// records before it stay written.
type Manager struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger
}

func NewManager(store Store, clk clock.Clock, logger *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// Get returns all records of the user. A user without records gets empty
// slices, not an error.
func (m *Manager) Get(ctx context.Context, userID string) (model.Preferences, error) {
	if userID == "" {
		return model.Preferences{}, fmt.Errorf("%w: userId is required", model.ErrInvalidRequest)
	}

	subs, err := m.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return model.Preferences{}, err
	}
	windows, err := m.store.ListDNDWindows(ctx, userID)
	if err != nil {
		return model.Preferences{}, err
	}
	if subs == nil {
		subs = []model.Subscription{}
	}
	if windows == nil {
		windows = []model.DNDWindow{}
	}
	return model.Preferences{UserID: userID, Subscriptions: subs, DNDWindows: windows}, nil
}

// Set upserts every subscription and expands every DND input into one window
// per day. All input is validated before the first write.
func (m *Manager) Set(ctx context.Context, userID string, subs []model.SubscriptionInput, dnd []model.DNDInput) (model.Preferences, error) {
	if userID == "" {
		return model.Preferences{}, fmt.Errorf("%w: userId is required", model.ErrInvalidRequest)
	}
	if len(subs) == 0 && len(dnd) == 0 {
		return model.Preferences{}, fmt.Errorf("%w: at least one notification or dnd preference is required", model.ErrInvalidRequest)
	}
	for _, in := range subs {
		if err := in.Validate(); err != nil {
			return model.Preferences{}, err
		}
	}
	for _, in := range dnd {
		if err := in.Validate(); err != nil {
			return model.Preferences{}, err
		}
	}
	if err := checkDistinctWindows(dnd); err != nil {
		return model.Preferences{}, err
	}

	log := logger.WithTrace(ctx, m.logger).With(zap.String("user_id", userID))
	now := m.clock.Now().UTC()
	written := model.Preferences{UserID: userID, Subscriptions: []model.Subscription{}, DNDWindows: []model.DNDWindow{}}

	for _, in := range subs {
		channels, _ := model.NormalizeChannels(in.Channels)
		sub := model.Subscription{
			UserID:           userID,
			NotificationType: in.NotificationType,
			Enabled:          in.Enabled,
			Channels:         channels,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := m.store.PutSubscription(ctx, sub); err != nil {
			metrics.IncrementPreferenceWrite(kindSubscription, "set", "error")
			log.Error("Failed to set subscription",
				zap.String("notification_type", in.NotificationType),
				zap.Int("written", len(written.Subscriptions)),
				zap.Error(err),
			)
			return written, err
		}
		metrics.IncrementPreferenceWrite(kindSubscription, "set", "ok")
		written.Subscriptions = append(written.Subscriptions, sub)
	}

	for _, in := range dnd {
		for _, w := range in.Windows(userID, now) {
			if err := m.store.PutDNDWindow(ctx, w); err != nil {
				metrics.IncrementPreferenceWrite(kindDND, "set", "error")
				log.Error("Failed to set dnd window",
					zap.String("name", w.Name),
					zap.Int("day", w.Day),
					zap.Int("written", len(written.DNDWindows)),
					zap.Error(err),
				)
				return written, err
			}
			metrics.IncrementPreferenceWrite(kindDND, "set", "ok")
			written.DNDWindows = append(written.DNDWindows, w)
		}
	}

	log.Info("Preferences set",
		zap.Int("subscriptions", len(written.Subscriptions)),
		zap.Int("dnd_windows", len(written.DNDWindows)),
	)
	return written, nil
}

// checkDistinctWindows rejects two inputs that would share a window id, i.e.
// the same name on the same day; the later one would overwrite the earlier.
func checkDistinctWindows(dnd []model.DNDInput) error {
	type nameDay struct {
		name string
		day  int
	}
	owner := make(map[nameDay]int)
	for i, in := range dnd {
		for _, day := range in.Days {
			key := nameDay{in.Name, day}
			if j, ok := owner[key]; ok && j != i {
				return fmt.Errorf("%w: dnd window %q is defined twice for day %d", model.ErrInvalidRequest, in.Name, day)
			}
			owner[key] = i
		}
	}
	return nil
}

// Update changes only the supplied fields of existing records. A missing
// subscription or window fails with model.ErrNotFound and is not created.
//
// When a DND patch touches day, start, end or all_day, the stored window is
// read first so the day key can be rebuilt from merged values. Two concurrent
// updates of the same window race on that key; the last write wins.
func (m *Manager) Update(ctx context.Context, userID string, subs []model.SubscriptionPatch, dnd []model.DNDPatch) (model.Preferences, error) {
	if userID == "" {
		return model.Preferences{}, fmt.Errorf("%w: userId is required", model.ErrInvalidRequest)
	}
	if len(subs) == 0 && len(dnd) == 0 {
		return model.Preferences{}, fmt.Errorf("%w: at least one notification or dnd preference is required", model.ErrInvalidRequest)
	}
	for _, p := range subs {
		if err := p.Validate(); err != nil {
			return model.Preferences{}, err
		}
	}
	for _, p := range dnd {
		if err := p.Validate(); err != nil {
			return model.Preferences{}, err
		}
	}

	log := logger.WithTrace(ctx, m.logger).With(zap.String("user_id", userID))
	updated := model.Preferences{UserID: userID, Subscriptions: []model.Subscription{}, DNDWindows: []model.DNDWindow{}}

	for _, p := range subs {
		if p.Channels != nil {
			p.Channels, _ = model.NormalizeChannels(p.Channels)
		}
		sub, err := m.store.UpdateSubscription(ctx, userID, p, m.clock.Now().UTC())
		if err != nil {
			metrics.IncrementPreferenceWrite(kindSubscription, "update", "error")
			log.Warn("Failed to update subscription",
				zap.String("notification_type", p.NotificationType),
				zap.Error(err),
			)
			return updated, err
		}
		metrics.IncrementPreferenceWrite(kindSubscription, "update", "ok")
		updated.Subscriptions = append(updated.Subscriptions, sub)
	}

	for _, p := range dnd {
		w, err := m.updateDNDWindow(ctx, userID, p)
		if err != nil {
			metrics.IncrementPreferenceWrite(kindDND, "update", "error")
			log.Warn("Failed to update dnd window", zap.String("id", p.ID), zap.Error(err))
			return updated, err
		}
		metrics.IncrementPreferenceWrite(kindDND, "update", "ok")
		updated.DNDWindows = append(updated.DNDWindows, w)
	}

	log.Info("Preferences updated",
		zap.Int("subscriptions", len(updated.Subscriptions)),
		zap.Int("dnd_windows", len(updated.DNDWindows)),
	)
	return updated, nil
}

func (m *Manager) updateDNDWindow(ctx context.Context, userID string, p model.DNDPatch) (model.DNDWindow, error) {
	change := model.DNDUpdate{Name: p.Name}
	if p.TouchesKey() {
		current, err := m.store.GetDNDWindow(ctx, userID, p.ID)
		if err != nil {
			return model.DNDWindow{}, err
		}
		if change, err = p.Apply(current); err != nil {
			return model.DNDWindow{}, err
		}
	}
	return m.store.UpdateDNDWindow(ctx, userID, p.ID, change, m.clock.Now().UTC())
}
