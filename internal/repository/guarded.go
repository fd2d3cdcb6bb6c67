package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"notifydecision/internal/model"
	"notifydecision/pkg/circuitbreaker"
	"notifydecision/pkg/metrics"
)

// Guarded wraps a Store with a circuit breaker. Only store failures count;
// a missing record is a normal answer. While the breaker is open calls fail
// fast with model.ErrStoreUnavailable.
type Guarded struct {
	next    Store
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuarded(next Store, cfg circuitbreaker.Config, logger *zap.Logger) *Guarded {
	cfg.IsFailure = func(err error) bool {
		return errors.Is(err, model.ErrStoreUnavailable)
	}
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		logger.Warn("Store circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	return &Guarded{
		next:    next,
		breaker: circuitbreaker.NewCircuitBreaker(cfg),
	}
}

func guard[T any](g *Guarded, fn func() (T, error)) (T, error) {
	var out T
	err := g.breaker.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		metrics.IncrementStoreRejected()
		return out, fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
	}
	return out, err
}

func guardErr(g *Guarded, fn func() error) error {
	_, err := guard(g, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func (g *Guarded) GetSubscription(ctx context.Context, userID, notificationType string) (model.Subscription, error) {
	return guard(g, func() (model.Subscription, error) {
		return g.next.GetSubscription(ctx, userID, notificationType)
	})
}

func (g *Guarded) ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error) {
	return guard(g, func() ([]model.Subscription, error) {
		return g.next.ListSubscriptions(ctx, userID)
	})
}

func (g *Guarded) PutSubscription(ctx context.Context, sub model.Subscription) error {
	return guardErr(g, func() error { return g.next.PutSubscription(ctx, sub) })
}

func (g *Guarded) UpdateSubscription(ctx context.Context, userID string, patch model.SubscriptionPatch, now time.Time) (model.Subscription, error) {
	return guard(g, func() (model.Subscription, error) {
		return g.next.UpdateSubscription(ctx, userID, patch, now)
	})
}

func (g *Guarded) GetDNDWindow(ctx context.Context, userID, id string) (model.DNDWindow, error) {
	return guard(g, func() (model.DNDWindow, error) {
		return g.next.GetDNDWindow(ctx, userID, id)
	})
}

func (g *Guarded) ListDNDWindows(ctx context.Context, userID string) ([]model.DNDWindow, error) {
	return guard(g, func() ([]model.DNDWindow, error) {
		return g.next.ListDNDWindows(ctx, userID)
	})
}

func (g *Guarded) ListActiveDNDWindows(ctx context.Context, userID string, day int, at string) ([]model.DNDWindow, error) {
	return guard(g, func() ([]model.DNDWindow, error) {
		return g.next.ListActiveDNDWindows(ctx, userID, day, at)
	})
}

func (g *Guarded) PutDNDWindow(ctx context.Context, w model.DNDWindow) error {
	return guardErr(g, func() error { return g.next.PutDNDWindow(ctx, w) })
}

func (g *Guarded) UpdateDNDWindow(ctx context.Context, userID, id string, u model.DNDUpdate, now time.Time) (model.DNDWindow, error) {
	return guard(g, func() (model.DNDWindow, error) {
		return g.next.UpdateDNDWindow(ctx, userID, id, u, now)
	})
}

// Ping bypasses the breaker so readiness reflects the real store.
func (g *Guarded) Ping(ctx context.Context) error {
	return g.next.Ping(ctx)
}

func (g *Guarded) Close() error {
	return g.next.Close()
}
