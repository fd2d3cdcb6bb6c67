package model

import (
	"errors"
	"testing"
	"time"
)

func ts(t *testing.T, s string) *time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return &v
}

func TestBuildDayKey(t *testing.T) {
	if got := BuildDayKey(3, "09:00", "17:30"); got != "3#09:00#17:30" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestActiveKeyRange_CoversStartedWindowsOnly(t *testing.T) {
	lo, hi := ActiveKeyRange(2, "12:00")

	inRange := func(k string) bool { return lo <= k && k <= hi }

	if !inRange(BuildDayKey(2, "00:00", "23:59")) {
		t.Fatal("all-day window must be in range")
	}
	if !inRange(BuildDayKey(2, "12:00", "12:30")) {
		t.Fatal("window starting now must be in range")
	}
	if inRange(BuildDayKey(2, "12:01", "13:00")) {
		t.Fatal("window starting later must not be in range")
	}
	if inRange(BuildDayKey(3, "00:00", "23:59")) {
		t.Fatal("other day must not be in range")
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("9:05")
	if err != nil || got != "09:05" {
		t.Fatalf("want 09:05, got %q (%v)", got, err)
	}

	for _, bad := range []string{"", "24:00", "12:60", "noon", "1:2:3"} {
		if _, err := ParseClock(bad); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%q: want ErrInvalidRequest, got %v", bad, err)
		}
	}
}

func TestClockOf_UsesUTC(t *testing.T) {
	if got := ClockOf(*ts(t, "2025-01-01T01:01:00Z")); got != "01:01" {
		t.Fatalf("want 01:01, got %s", got)
	}
	if got := ClockOf(*ts(t, "2025-01-01T12:00:00+02:00")); got != "10:00" {
		t.Fatalf("want 10:00, got %s", got)
	}
}

func TestActiveAt(t *testing.T) {
	w := DNDWindow{Day: 1, StartTime: "09:00", EndTime: "17:00"}

	cases := []struct {
		day  int
		at   string
		want bool
	}{
		{1, "09:00", true},
		{1, "17:00", true},
		{1, "12:34", true},
		{1, "08:59", false},
		{1, "17:01", false},
		{2, "12:00", false},
	}
	for _, c := range cases {
		if got := w.ActiveAt(c.day, c.at); got != c.want {
			t.Errorf("ActiveAt(%d, %s) = %v, want %v", c.day, c.at, got, c.want)
		}
	}

	allDay := DNDWindow{Day: 4, AllDay: true}
	if !allDay.ActiveAt(4, "23:59") {
		t.Fatal("all-day window must be active all day")
	}
}

func TestDNDInputWindows_ExpandsDays(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	in := DNDInput{
		Name:  "night",
		Days:  []int{1, 2, 2},
		Start: ts(t, "2025-01-01T22:00:00Z"),
		End:   ts(t, "2025-01-01T23:30:00Z"),
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	windows := in.Windows("u1", now)
	if len(windows) != 2 {
		t.Fatalf("want 2 windows, got %d", len(windows))
	}
	if windows[0].DayKey != "1#22:00#23:30" || windows[1].DayKey != "2#22:00#23:30" {
		t.Fatalf("unexpected keys %s %s", windows[0].DayKey, windows[1].DayKey)
	}
	if windows[0].ID == windows[1].ID {
		t.Fatal("windows on different days must have different ids")
	}
	if windows[0].ID != WindowID("u1", "night", 1) {
		t.Fatal("window id must be derived from user, name and day")
	}
}

func TestDNDInputWindows_AllDayOverridesTimes(t *testing.T) {
	in := DNDInput{
		Name:   "sunday",
		Days:   []int{0},
		Start:  ts(t, "2025-01-01T10:00:00Z"),
		End:    ts(t, "2025-01-01T11:00:00Z"),
		AllDay: true,
	}
	w := in.Windows("u1", time.Now())[0]
	if w.StartTime != AllDayStart || w.EndTime != AllDayEnd {
		t.Fatalf("want 00:00-23:59, got %s-%s", w.StartTime, w.EndTime)
	}
	if w.DayKey != "0#00:00#23:59" {
		t.Fatalf("unexpected key %s", w.DayKey)
	}
}

func TestDNDInputValidate(t *testing.T) {
	cases := map[string]DNDInput{
		"missing name":  {Days: []int{1}, AllDay: true},
		"no days":       {Name: "x", AllDay: true},
		"day too big":   {Name: "x", Days: []int{7}, AllDay: true},
		"missing times": {Name: "x", Days: []int{1}},
		"start after end": {
			Name:  "x",
			Days:  []int{1},
			Start: ts(t, "2025-01-01T18:00:00Z"),
			End:   ts(t, "2025-01-01T08:00:00Z"),
		},
	}
	for name, in := range cases {
		if err := in.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: want ErrInvalidRequest, got %v", name, err)
		}
	}
}

func TestDNDPatchApply_FallsBackToStoredValues(t *testing.T) {
	current := DNDWindow{ID: "w1", Day: 1, StartTime: "09:00", EndTime: "17:00"}
	current.Normalize()

	day := 5
	u, err := DNDPatch{ID: "w1", Day: &day}.Apply(current)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if *u.DayKey != "5#09:00#17:00" {
		t.Fatalf("unexpected key %s", *u.DayKey)
	}
	if u.Name != nil {
		t.Fatal("name must stay untouched")
	}

	u, err = DNDPatch{ID: "w1", End: ts(t, "2025-01-01T18:15:00Z")}.Apply(current)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if *u.DayKey != "1#09:00#18:15" {
		t.Fatalf("unexpected key %s", *u.DayKey)
	}
}

func TestDNDPatchApply_RejectsInvertedRange(t *testing.T) {
	current := DNDWindow{ID: "w1", Day: 1, StartTime: "09:00", EndTime: "17:00"}

	_, err := DNDPatch{ID: "w1", Start: ts(t, "2025-01-01T18:00:00Z")}.Apply(current)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("want ErrInvalidRequest, got %v", err)
	}
}

func TestDNDPatchApply_AllDay(t *testing.T) {
	current := DNDWindow{ID: "w1", Day: 2, StartTime: "09:00", EndTime: "10:00"}
	on := true

	u, err := DNDPatch{ID: "w1", AllDay: &on}.Apply(current)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if *u.StartTime != AllDayStart || *u.EndTime != AllDayEnd || *u.DayKey != "2#00:00#23:59" {
		t.Fatalf("unexpected update %s %s %s", *u.StartTime, *u.EndTime, *u.DayKey)
	}
}
