package repository

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"notifydecision/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), MemoryPath, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func window(userID, name string, day int, start, end string, allDay bool) model.DNDWindow {
	w := model.DNDWindow{
		ID:        model.WindowID(userID, name, day),
		UserID:    userID,
		Name:      name,
		Day:       day,
		StartTime: start,
		EndTime:   end,
		AllDay:    allDay,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	w.Normalize()
	return w
}

func TestSQLiteSubscriptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.GetSubscription(ctx, "u1", "ORDER_SHIPPED"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	sub := model.Subscription{
		UserID:           "u1",
		NotificationType: "ORDER_SHIPPED",
		Enabled:          true,
		Channels:         []string{"email", "push"},
		CreatedAt:        t0,
		UpdatedAt:        t0,
	}
	if err := s.PutSubscription(ctx, sub); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetSubscription(ctx, "u1", "ORDER_SHIPPED")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(got, sub) {
		t.Fatalf("want %+v, got %+v", sub, got)
	}

	// upsert keeps created_at
	later := t0.Add(time.Hour)
	sub.Enabled, sub.Channels, sub.CreatedAt, sub.UpdatedAt = false, []string{}, later, later
	if err := s.PutSubscription(ctx, sub); err != nil {
		t.Fatalf("put again: %v", err)
	}
	got, _ = s.GetSubscription(ctx, "u1", "ORDER_SHIPPED")
	if got.Enabled || len(got.Channels) != 0 || !got.CreatedAt.Equal(t0) || !got.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected record after upsert %+v", got)
	}

	list, err := s.ListSubscriptions(ctx, "u1")
	if err != nil || len(list) != 1 {
		t.Fatalf("want 1 subscription, got %d (%v)", len(list), err)
	}
}

func TestSQLiteUpdateSubscription(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	off := false
	_, err := s.UpdateSubscription(ctx, "u1", model.SubscriptionPatch{NotificationType: "X", Enabled: &off}, t0)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if list, _ := s.ListSubscriptions(ctx, "u1"); len(list) != 0 {
		t.Fatal("update of a missing record must not create it")
	}

	_ = s.PutSubscription(ctx, model.Subscription{
		UserID: "u1", NotificationType: "X", Enabled: true, Channels: []string{"sms"}, CreatedAt: t0, UpdatedAt: t0,
	})

	got, err := s.UpdateSubscription(ctx, "u1", model.SubscriptionPatch{NotificationType: "X", Enabled: &off}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Enabled || !reflect.DeepEqual(got.Channels, []string{"sms"}) {
		t.Fatalf("channels must be untouched, got %+v", got)
	}

	got, err = s.UpdateSubscription(ctx, "u1", model.SubscriptionPatch{NotificationType: "X", Channels: []string{}}, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Enabled || len(got.Channels) != 0 {
		t.Fatalf("want cleared channels and enabled untouched, got %+v", got)
	}
}

func TestSQLiteActiveDNDWindows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, w := range []model.DNDWindow{
		window("u1", "lunch", 3, "11:00", "13:00", false),
		window("u1", "evening", 3, "18:00", "22:00", false),
		window("u1", "morning", 3, "06:00", "08:00", false),
		window("u1", "tuesday", 2, "11:00", "13:00", false),
		window("u1", "holiday", 3, "", "", true),
		window("u2", "lunch", 3, "11:00", "13:00", false),
	} {
		if err := s.PutDNDWindow(ctx, w); err != nil {
			t.Fatalf("put %s: %v", w.Name, err)
		}
	}

	active, err := s.ListActiveDNDWindows(ctx, "u1", 3, "12:00")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	names := map[string]bool{}
	for _, w := range active {
		names[w.Name] = true
	}
	if len(active) != 2 || !names["lunch"] || !names["holiday"] {
		t.Fatalf("want lunch and holiday, got %+v", active)
	}

	// bounds are inclusive
	for _, at := range []string{"11:00", "13:00"} {
		active, _ = s.ListActiveDNDWindows(ctx, "u1", 3, at)
		if len(active) != 2 {
			t.Fatalf("at %s: want 2 windows, got %d", at, len(active))
		}
	}

	active, _ = s.ListActiveDNDWindows(ctx, "u1", 3, "13:01")
	if len(active) != 1 || !active[0].AllDay {
		t.Fatalf("at 13:01 only the all-day window applies, got %+v", active)
	}
}

func TestSQLiteUpdateDNDWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	w := window("u1", "focus", 1, "09:00", "10:00", false)
	if err := s.PutDNDWindow(ctx, w); err != nil {
		t.Fatalf("put: %v", err)
	}

	name := "deep focus"
	got, err := s.UpdateDNDWindow(ctx, "u1", w.ID, model.DNDUpdate{Name: &name}, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != name || got.DayKey != w.DayKey || got.Day != 1 {
		t.Fatalf("only the name must change, got %+v", got)
	}

	day, start, end, key := 4, "14:00", "15:00", model.BuildDayKey(4, "14:00", "15:00")
	got, err = s.UpdateDNDWindow(ctx, "u1", w.ID, model.DNDUpdate{Day: &day, StartTime: &start, EndTime: &end, DayKey: &key}, t0)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DayKey != key || got.Day != 4 {
		t.Fatalf("unexpected window %+v", got)
	}

	if _, err := s.UpdateDNDWindow(ctx, "u1", "missing", model.DNDUpdate{Name: &name}, t0); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := s.GetDNDWindow(ctx, "u2", w.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("windows are scoped per user, got %v", err)
	}
}

func TestSQLiteClosedStoreIsUnavailable(t *testing.T) {
	s, err := OpenSQLite(context.Background(), MemoryPath, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Close()

	if _, err := s.ListSubscriptions(context.Background(), "u1"); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("want ErrStoreUnavailable, got %v", err)
	}
}
