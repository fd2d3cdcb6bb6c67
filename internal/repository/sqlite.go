package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"notifydecision/internal/model"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notification_subscriptions (
    user_id           TEXT    NOT NULL,
    notification_type TEXT    NOT NULL,
    enabled           INTEGER NOT NULL,
    channels          TEXT    NOT NULL DEFAULT '[]',
    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL,
    PRIMARY KEY (user_id, notification_type)
);

CREATE TABLE IF NOT EXISTS dnd_windows (
    user_id    TEXT    NOT NULL,
    id         TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    day        INTEGER NOT NULL CHECK (day BETWEEN 0 AND 6),
    start_time TEXT    NOT NULL,
    end_time   TEXT    NOT NULL,
    all_day    INTEGER NOT NULL DEFAULT 0,
    day_key    TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_dnd_windows_user_day_key ON dnd_windows (user_id, day_key);
`

// SQLiteStore implements Store on an embedded SQLite database. Channels are
// stored as a JSON array, timestamps as unix milliseconds.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (or creates) the database at path, applies PRAGMAs and the
// schema. Use MemoryPath for a throwaway database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// single writer; also keeps one shared :memory: database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	logger.Info("SQLite store ready", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeChannels(channels []string) (string, error) {
	if channels == nil {
		channels = []string{}
	}
	b, err := json.Marshal(channels)
	return string(b), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscription(row rowScanner) (model.Subscription, error) {
	var (
		s                model.Subscription
		enabled          int
		channels         string
		created, updated int64
	)
	if err := row.Scan(&s.UserID, &s.NotificationType, &enabled, &channels, &created, &updated); err != nil {
		return model.Subscription{}, err
	}
	if err := json.Unmarshal([]byte(channels), &s.Channels); err != nil {
		return model.Subscription{}, fmt.Errorf("failed to decode channels: %w", err)
	}
	if s.Channels == nil {
		s.Channels = []string{}
	}
	s.Enabled = enabled != 0
	s.CreatedAt, s.UpdatedAt = fromMillis(created), fromMillis(updated)
	return s, nil
}

func scanSQLiteDNDWindow(row rowScanner) (model.DNDWindow, error) {
	var (
		w                model.DNDWindow
		allDay           int
		created, updated int64
	)
	if err := row.Scan(&w.UserID, &w.ID, &w.Name, &w.Day, &w.StartTime, &w.EndTime, &allDay, &w.DayKey, &created, &updated); err != nil {
		return model.DNDWindow{}, err
	}
	w.AllDay = allDay != 0
	w.CreatedAt, w.UpdatedAt = fromMillis(created), fromMillis(updated)
	return w, nil
}

func (r *SQLiteStore) GetSubscription(ctx context.Context, userID, notificationType string) (model.Subscription, error) {
	defer observe("select", tableSubscriptions, time.Now())

	row := r.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM notification_subscriptions
		WHERE user_id = ? AND notification_type = ?`,
		userID, notificationType,
	)
	s, err := scanSQLiteSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch subscription", zap.String("user_id", userID), zap.Error(err))
		return model.Subscription{}, unavailable("get subscription", err)
	}
	return s, nil
}

func (r *SQLiteStore) ListSubscriptions(ctx context.Context, userID string) ([]model.Subscription, error) {
	defer observe("select", tableSubscriptions, time.Now())

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM notification_subscriptions
		WHERE user_id = ?
		ORDER BY notification_type`,
		userID,
	)
	if err != nil {
		return nil, unavailable("list subscriptions", err)
	}
	defer rows.Close()

	subs := []model.Subscription{}
	for rows.Next() {
		s, err := scanSQLiteSubscription(rows)
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

func (r *SQLiteStore) PutSubscription(ctx context.Context, sub model.Subscription) error {
	defer observe("upsert", tableSubscriptions, time.Now())

	channels, err := encodeChannels(sub.Channels)
	if err != nil {
		return unavailable("encode channels", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notification_subscriptions (user_id, notification_type, enabled, channels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, notification_type) DO UPDATE SET
			enabled    = excluded.enabled,
			channels   = excluded.channels,
			updated_at = excluded.updated_at`,
		sub.UserID, sub.NotificationType, boolToInt(sub.Enabled), channels, toMillis(sub.CreatedAt), toMillis(sub.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to upsert subscription", zap.String("user_id", sub.UserID), zap.Error(err))
		return unavailable("put subscription", err)
	}
	return nil
}

func (r *SQLiteStore) UpdateSubscription(ctx context.Context, userID string, patch model.SubscriptionPatch, now time.Time) (model.Subscription, error) {
	defer observe("update", tableSubscriptions, time.Now())

	var enabled, channels any
	if patch.Enabled != nil {
		enabled = boolToInt(*patch.Enabled)
	}
	if patch.Channels != nil {
		encoded, err := encodeChannels(patch.Channels)
		if err != nil {
			return model.Subscription{}, unavailable("encode channels", err)
		}
		channels = encoded
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE notification_subscriptions SET
			enabled    = COALESCE(?, enabled),
			channels   = COALESCE(?, channels),
			updated_at = ?
		WHERE user_id = ? AND notification_type = ?
		RETURNING `+subscriptionColumns,
		enabled, channels, toMillis(now), userID, patch.NotificationType,
	)
	s, err := scanSQLiteSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscription{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update subscription", zap.String("user_id", userID), zap.Error(err))
		return model.Subscription{}, unavailable("update subscription", err)
	}
	return s, nil
}

func (r *SQLiteStore) GetDNDWindow(ctx context.Context, userID, id string) (model.DNDWindow, error) {
	defer observe("select", tableDNDWindows, time.Now())

	row := r.db.QueryRowContext(ctx,
		`SELECT `+dndColumns+` FROM dnd_windows WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	w, err := scanSQLiteDNDWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DNDWindow{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch dnd window", zap.String("user_id", userID), zap.Error(err))
		return model.DNDWindow{}, unavailable("get dnd window", err)
	}
	return w, nil
}

func (r *SQLiteStore) ListDNDWindows(ctx context.Context, userID string) ([]model.DNDWindow, error) {
	defer observe("select", tableDNDWindows, time.Now())
	return r.queryDNDWindows(ctx, "list dnd windows",
		`SELECT `+dndColumns+` FROM dnd_windows WHERE user_id = ? ORDER BY day_key, name`,
		userID,
	)
}

func (r *SQLiteStore) ListActiveDNDWindows(ctx context.Context, userID string, day int, at string) ([]model.DNDWindow, error) {
	defer observe("select_active", tableDNDWindows, time.Now())

	lo, hi := model.ActiveKeyRange(day, at)
	return r.queryDNDWindows(ctx, "list active dnd windows", `
		SELECT `+dndColumns+`
		FROM dnd_windows
		WHERE user_id = ?
		  AND day_key BETWEEN ? AND ?
		  AND end_time >= ?
		ORDER BY day_key`,
		userID, lo, hi, at,
	)
}

func (r *SQLiteStore) queryDNDWindows(ctx context.Context, action, query string, args ...any) ([]model.DNDWindow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query dnd windows", zap.String("action", action), zap.Error(err))
		return nil, unavailable(action, err)
	}
	defer rows.Close()

	windows := []model.DNDWindow{}
	for rows.Next() {
		w, err := scanSQLiteDNDWindow(rows)
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

func (r *SQLiteStore) PutDNDWindow(ctx context.Context, w model.DNDWindow) error {
	defer observe("upsert", tableDNDWindows, time.Now())

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dnd_windows (user_id, id, name, day, start_time, end_time, all_day, day_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			name       = excluded.name,
			day        = excluded.day,
			start_time = excluded.start_time,
			end_time   = excluded.end_time,
			all_day    = excluded.all_day,
			day_key    = excluded.day_key,
			updated_at = excluded.updated_at`,
		w.UserID, w.ID, w.Name, w.Day, w.StartTime, w.EndTime, boolToInt(w.AllDay), w.DayKey,
		toMillis(w.CreatedAt), toMillis(w.UpdatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to upsert dnd window", zap.String("user_id", w.UserID), zap.Error(err))
		return unavailable("put dnd window", err)
	}
	return nil
}

func (r *SQLiteStore) UpdateDNDWindow(ctx context.Context, userID, id string, u model.DNDUpdate, now time.Time) (model.DNDWindow, error) {
	defer observe("update", tableDNDWindows, time.Now())

	var allDay any
	if u.AllDay != nil {
		allDay = boolToInt(*u.AllDay)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE dnd_windows SET
			name       = COALESCE(?, name),
			day        = COALESCE(?, day),
			start_time = COALESCE(?, start_time),
			end_time   = COALESCE(?, end_time),
			all_day    = COALESCE(?, all_day),
			day_key    = COALESCE(?, day_key),
			updated_at = ?
		WHERE user_id = ? AND id = ?
		RETURNING `+dndColumns,
		u.Name, u.Day, u.StartTime, u.EndTime, allDay, u.DayKey, toMillis(now), userID, id,
	)
	w, err := scanSQLiteDNDWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DNDWindow{}, model.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update dnd window", zap.String("user_id", userID), zap.Error(err))
		return model.DNDWindow{}, unavailable("update dnd window", err)
	}
	return w, nil
}

func (r *SQLiteStore) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping sqlite", err)
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteStore) Close() error {
	return r.db.Close()
}
