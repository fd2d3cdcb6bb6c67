// Package decision turns an inbound event and the user's stored preferences
// into a single verdict.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifydecision/internal/clock"
	"notifydecision/internal/model"
	"notifydecision/pkg/logger"
	"notifydecision/pkg/metrics"
)

// Store is the slice of the preference store the engine reads.
type Store interface {
	GetSubscription(ctx context.Context, userID, notificationType string) (model.Subscription, error)
	ListActiveDNDWindows(ctx context.Context, userID string, day int, at string) ([]model.DNDWindow, error)
}

type Options struct {
	// LegacySettingsCheck reports NO_NOTIFICATION_SETTINGS_CONFIGURED when
	// either the subscription or an active DND window is missing.
	LegacySettingsCheck bool
}

type Engine struct {
	store  Store
	clock  clock.Clock
	logger *zap.Logger
	opts   Options
}

func NewEngine(store Store, clk clock.Clock, logger *zap.Logger, opts Options) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{
		store:  store,
		clock:  clk,
		logger: logger,
		opts:   opts,
	}
}

// Decide applies the rules in order; the first match wins:
//  1. no subscription for (userId, eventType) -> NO_NOTIFICATION_SETTINGS_CONFIGURED
//  2. subscription disabled                   -> USER_UNSUBSCRIBED
//  3. no channels                             -> NO_CHANNELS_CONFIGURED
//  4. a DND window is active now              -> USER_DND_ACTIVE
//  5. otherwise PROCESS_NOTIFICATION with the subscription's channels
//
// Store failures are returned as is.
func (e *Engine) Decide(ctx context.Context, ev model.Event) (model.Verdict, error) {
	if err := ev.Validate(); err != nil {
		return model.Verdict{}, err
	}

	start := time.Now()
	log := logger.WithTrace(ctx, e.logger).With(
		zap.String("event_id", ev.EventID),
		zap.String("user_id", ev.UserID),
		zap.String("event_type", ev.EventType),
	)

	verdict, err := e.decide(ctx, ev)
	if err != nil {
		log.Error("Failed to decide notification", zap.Error(err))
		return model.Verdict{}, err
	}

	metrics.RecordDecision(string(verdict.Decision), string(verdict.Reason), time.Since(start))
	log.Info("Notification decided",
		zap.String("decision", string(verdict.Decision)),
		zap.String("reason", string(verdict.Reason)),
		zap.Strings("channels", verdict.Channels),
	)
	return verdict, nil
}

func (e *Engine) decide(ctx context.Context, ev model.Event) (model.Verdict, error) {
	day, at := clock.DayAndTime(e.clock)

	sub, err := e.store.GetSubscription(ctx, ev.UserID, ev.EventType)
	found := err == nil
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return model.Verdict{}, fmt.Errorf("failed to load subscription: %w", err)
	}

	if e.opts.LegacySettingsCheck {
		active, err := e.activeWindows(ctx, ev.UserID, day, at)
		if err != nil {
			return model.Verdict{}, err
		}
		if !found || len(active) == 0 {
			return model.Suppress(ev, model.ReasonNoSettingsConfigured), nil
		}
		return evaluate(ev, sub, active), nil
	}

	if !found {
		return model.Suppress(ev, model.ReasonNoSettingsConfigured), nil
	}
	// rules 2 and 3 need no DND lookup
	if !sub.Enabled || len(sub.Channels) == 0 {
		return evaluate(ev, sub, nil), nil
	}

	active, err := e.activeWindows(ctx, ev.UserID, day, at)
	if err != nil {
		return model.Verdict{}, err
	}
	return evaluate(ev, sub, active), nil
}

// evaluate runs rules 2 to 5 for an existing subscription.
func evaluate(ev model.Event, sub model.Subscription, active []model.DNDWindow) model.Verdict {
	switch {
	case !sub.Enabled:
		return model.Suppress(ev, model.ReasonUserUnsubscribed)
	case len(sub.Channels) == 0:
		return model.Suppress(ev, model.ReasonNoChannelsConfigured)
	case len(active) > 0:
		return model.Suppress(ev, model.ReasonUserDNDActive)
	default:
		return model.Process(ev, append([]string(nil), sub.Channels...))
	}
}

// activeWindows asks the store for the day's started windows and keeps the
// ones that actually cover at.
func (e *Engine) activeWindows(ctx context.Context, userID string, day int, at string) ([]model.DNDWindow, error) {
	windows, err := e.store.ListActiveDNDWindows(ctx, userID, day, at)
	if err != nil {
		return nil, fmt.Errorf("failed to load dnd windows: %w", err)
	}
	var active []model.DNDWindow
	for _, w := range windows {
		w.Normalize()
		if w.ActiveAt(day, at) {
			active = append(active, w)
		}
	}
	return active, nil
}
