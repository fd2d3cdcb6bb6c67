package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notifydecision/internal/model"
	"notifydecision/pkg/metrics"
)

type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

const (
	subscriptionColumns = `user_id, notification_type, enabled, channels, created_at, updated_at`
	dndColumns          = `user_id, id, name, day, start_time, end_time, all_day, day_key, created_at, updated_at`
)

func observe(operation, table string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, table, time.Since(start))
}

func unavailable(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", model.ErrStoreUnavailable, action, err)
}

func scanSubscription(row pgx.Row) (model.Subscription, error) {
	var s model.Subscription
	err := row.Scan(&s.UserID, &s.NotificationType, &s.Enabled, &s.Channels, &s.CreatedAt, &s.UpdatedAt)
	if s.Channels == nil {
		s.Channels = []string{}
	}
	return s, err
}

func scanDNDWindow(row pgx.Row) (model.DNDWindow, error) {
	var (
		w   model.DNDWindow
		day int16
	)
	err := row.Scan(&w.UserID, &w.ID, &w.Name, &day, &w.StartTime, &w.EndTime, &w.AllDay, &w.DayKey, &w.CreatedAt, &w.UpdatedAt)
	w.Day = int(day)
	return w, err
}

func (r *PostgresStore) GetSubscription(ctx context.Context, userID, notificationType string) (model.Subscription, error) {
	defer observe("select", tableSubscriptions, time.Now())
	r.logger.Debug("Fetching subscription",
		zap.String("user_id", userID),
		zap.String("notification_type", notificationType),
	)

	query := `
        SELECT ` + subscriptionColumns + `
        FROM notification_subscriptions
        WHERE user_id = $1 AND notification_type = $2
    `
	s, err := scanSubscription(r.db.QueryRow(ctx, query, userID, notificationType))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Subscription{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch subscription", zap.String("user_id", userID), zap.Error(err))
		return model.Subscription{}, unavailable("get subscription", err)
	}
	return s, nil
}

func (r *PostgresStore) ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error) {
	defer observe("select", tableSubscriptions, time.Now())
	r.logger.Debug("Listing subscriptions", zap.String("user_id", userID))

	query := `
        SELECT ` + subscriptionColumns + `
        FROM notification_subscriptions
        WHERE user_id = $1
        ORDER BY notification_type
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list subscriptions", zap.String("user_id", userID), zap.Error(err))
		return nil, unavailable("list subscriptions", err)
	}
	defer rows.Close()

	subs := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, unavailable("scan subscription", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate subscriptions", err)
	}
	return subs, nil
}

func (r *PostgresStore) PutSubscription(ctx context.Context, sub model.Subscription) error {
	defer observe("upsert", tableSubscriptions, time.Now())
	r.logger.Debug("Upserting subscription",
		zap.String("user_id", sub.UserID),
		zap.String("notification_type", sub.NotificationType),
	)

	query := `
        INSERT INTO notification_subscriptions (user_id, notification_type, enabled, channels, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id, notification_type) DO UPDATE SET
            enabled    = EXCLUDED.enabled,
            channels   = EXCLUDED.channels,
            updated_at = EXCLUDED.updated_at
    `
	channels := sub.Channels
	if channels == nil {
		channels = []string{}
	}
	_, err := r.db.Exec(ctx, query, sub.UserID, sub.NotificationType, sub.Enabled, channels, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert subscription", zap.String("user_id", sub.UserID), zap.Error(err))
		return unavailable("put subscription", err)
	}

	r.logger.Info("Subscription saved",
		zap.String("user_id", sub.UserID),
		zap.String("notification_type", sub.NotificationType),
	)
	return nil
}

func (r *PostgresStore) UpdateSubscription(ctx context.Context, userID string, patch model.SubscriptionPatch, now time.Time) (model.Subscription, error) {
	defer observe("update", tableSubscriptions, time.Now())
	r.logger.Debug("Updating subscription",
		zap.String("user_id", userID),
		zap.String("notification_type", patch.NotificationType),
	)

	// NULL 参数表示保持原值
	query := `
        UPDATE notification_subscriptions SET
            enabled    = COALESCE($3::boolean, enabled),
            channels   = COALESCE($4::text[], channels),
            updated_at = $5
        WHERE user_id = $1 AND notification_type = $2
        RETURNING ` + subscriptionColumns
	s, err := scanSubscription(r.db.QueryRow(ctx, query, userID, patch.NotificationType, patch.Enabled, patch.Channels, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Subscription{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update subscription", zap.String("user_id", userID), zap.Error(err))
		return model.Subscription{}, unavailable("update subscription", err)
	}

	r.logger.Info("Subscription updated",
		zap.String("user_id", userID),
		zap.String("notification_type", patch.NotificationType),
	)
	return s, nil
}

func (r *PostgresStore) GetDNDWindow(ctx context.Context, userID, id string) (model.DNDWindow, error) {
	defer observe("select", tableDNDWindows, time.Now())
	r.logger.Debug("Fetching dnd window", zap.String("user_id", userID), zap.String("id", id))

	query := `SELECT ` + dndColumns + ` FROM dnd_windows WHERE user_id = $1 AND id = $2`
	w, err := scanDNDWindow(r.db.QueryRow(ctx, query, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DNDWindow{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch dnd window", zap.String("user_id", userID), zap.Error(err))
		return model.DNDWindow{}, unavailable("get dnd window", err)
	}
	return w, nil
}

func (r *PostgresStore) ListDNDWindows(ctx context.Context, userID string) ([]model.DNDWindow, error) {
	defer observe("select", tableDNDWindows, time.Now())
	r.logger.Debug("Listing dnd windows", zap.String("user_id", userID))

	query := `SELECT ` + dndColumns + ` FROM dnd_windows WHERE user_id = $1 ORDER BY day_key, name`
	return r.queryDNDWindows(ctx, "list dnd windows", query, userID)
}

func (r *PostgresStore) ListActiveDNDWindows(ctx context.Context, userID string, day int, at string) ([]model.DNDWindow, error) {
	defer observe("select_active", tableDNDWindows, time.Now())
	r.logger.Debug("Listing active dnd windows",
		zap.String("user_id", userID),
		zap.Int("day", day),
		zap.String("at", at),
	)

	lo, hi := model.ActiveKeyRange(day, at)
	query := `
        SELECT ` + dndColumns + `
        FROM dnd_windows
        WHERE user_id = $1
          AND day_key BETWEEN $2 AND $3
          AND end_time >= $4
        ORDER BY day_key
    `
	return r.queryDNDWindows(ctx, "list active dnd windows", query, userID, lo, hi, at)
}

func (r *PostgresStore) queryDNDWindows(ctx context.Context, action, query string, args ...any) ([]model.DNDWindow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query dnd windows", zap.String("action", action), zap.Error(err))
		return nil, unavailable(action, err)
	}
	defer rows.Close()

	windows := []model.DNDWindow{}
	for rows.Next() {
		w, err := scanDNDWindow(rows)
		if err != nil {
			return nil, unavailable("scan dnd window", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(action, err)
	}
	return windows, nil
}

func (r *PostgresStore) PutDNDWindow(ctx context.Context, w model.DNDWindow) error {
	defer observe("upsert", tableDNDWindows, time.Now())
	r.logger.Debug("Upserting dnd window",
		zap.String("user_id", w.UserID),
		zap.String("id", w.ID),
		zap.String("day_key", w.DayKey),
	)

	query := `
        INSERT INTO dnd_windows (user_id, id, name, day, start_time, end_time, all_day, day_key, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (user_id, id) DO UPDATE SET
            name       = EXCLUDED.name,
            day        = EXCLUDED.day,
            start_time = EXCLUDED.start_time,
            end_time   = EXCLUDED.end_time,
            all_day    = EXCLUDED.all_day,
            day_key    = EXCLUDED.day_key,
            updated_at = EXCLUDED.updated_at
    `
	_, err := r.db.Exec(ctx, query,
		w.UserID, w.ID, w.Name, int16(w.Day), w.StartTime, w.EndTime, w.AllDay, w.DayKey, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to upsert dnd window", zap.String("user_id", w.UserID), zap.Error(err))
		return unavailable("put dnd window", err)
	}

	r.logger.Info("DND window saved", zap.String("user_id", w.UserID), zap.String("id", w.ID))
	return nil
}

func (r *PostgresStore) UpdateDNDWindow(ctx context.Context, userID, id string, u model.DNDUpdate, now time.Time) (model.DNDWindow, error) {
	defer observe("update", tableDNDWindows, time.Now())
	r.logger.Debug("Updating dnd window", zap.String("user_id", userID), zap.String("id", id))

	var day *int16
	if u.Day != nil {
		d := int16(*u.Day)
		day = &d
	}

	query := `
        UPDATE dnd_windows SET
            name       = COALESCE($3::text, name),
            day        = COALESCE($4::smallint, day),
            start_time = COALESCE($5::text, start_time),
            end_time   = COALESCE($6::text, end_time),
            all_day    = COALESCE($7::boolean, all_day),
            day_key    = COALESCE($8::text, day_key),
            updated_at = $9
        WHERE user_id = $1 AND id = $2
        RETURNING ` + dndColumns
	w, err := scanDNDWindow(r.db.QueryRow(ctx, query,
		userID, id, u.Name, day, u.StartTime, u.EndTime, u.AllDay, u.DayKey, now,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DNDWindow{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update dnd window", zap.String("user_id", userID), zap.Error(err))
		return model.DNDWindow{}, unavailable("update dnd window", err)
	}

	r.logger.Info("DND window updated", zap.String("user_id", userID), zap.String("id", id))
	return w, nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	return nil
}

func (r *PostgresStore) Close() error {
	r.db.Close()
	return nil
}
