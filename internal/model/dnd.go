package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Effective bounds of an all-day window.
const (
	AllDayStart = "00:00"
	AllDayEnd   = "23:59"
)

// dndNamespace seeds the name-based ids of DND windows.
var dndNamespace = uuid.MustParse("8f6c1d2e-4b7a-5c3d-9e1f-2a4b6c8d0e1f")

// DNDWindow is a recurring do-not-disturb range on a single weekday (UTC).
type DNDWindow struct {
	ID        string
	UserID    string
	Name      string
	Day       int // 0 = Sunday .. 6 = Saturday
	StartTime string
	EndTime   string
	AllDay    bool
	// DayKey is the indexed "<day>#<start>#<end>" key used for active lookups.
	DayKey    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DNDInput describes one window definition of a set operation. Every entry in
// Days produces its own stored window.
type DNDInput struct {
	Name   string
	Days   []int
	Start  *time.Time
	End    *time.Time
	AllDay bool
}

// DNDPatch changes only the non-nil fields of the window identified by ID.
type DNDPatch struct {
	ID     string
	Name   *string
	Day    *int
	Start  *time.Time
	End    *time.Time
	AllDay *bool
}

// DNDUpdate is the column-level change set handed to the store.
type DNDUpdate struct {
	Name      *string
	Day       *int
	StartTime *string
	EndTime   *string
	AllDay    *bool
	DayKey    *string
}

// TouchesKey reports whether the patch can change the derived day key.
func (p DNDPatch) TouchesKey() bool {
	return p.Day != nil || p.Start != nil || p.End != nil || p.AllDay != nil
}

// BuildDayKey composes the derived lookup key of a window.
func BuildDayKey(day int, start, end string) string {
	return strconv.Itoa(day) + "#" + start + "#" + end
}

// ActiveKeyRange returns the inclusive key range holding every window of day
// whose start is not after at. The caller still filters on the end time.
func ActiveKeyRange(day int, at string) (lo, hi string) {
	prefix := strconv.Itoa(day) + "#"
	return prefix, prefix + at + "#99:99"
}

// ClockOf formats t as "HH:MM" in UTC.
func ClockOf(t time.Time) string {
	return t.UTC().Format("15:04")
}

// ParseClock validates an "HH:MM" 24h string and returns it zero padded.
func ParseClock(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidRequest, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return "", fmt.Errorf("%w: invalid hour in %q", ErrInvalidRequest, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return "", fmt.Errorf("%w: invalid minute in %q", ErrInvalidRequest, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// WindowID derives a stable id for the window a user defined under name on day,
// so re-submitting the same definition overwrites instead of duplicating.
func WindowID(userID, name string, day int) string {
	return uuid.NewSHA1(dndNamespace, []byte(userID+"\x00"+name+"\x00"+strconv.Itoa(day))).String()
}

// ValidDay reports whether day is a weekday index.
func ValidDay(day int) bool {
	return day >= 0 && day <= 6
}

// ActiveAt reports whether the window covers the given weekday and "HH:MM" time.
func (w DNDWindow) ActiveAt(day int, at string) bool {
	if w.Day != day {
		return false
	}
	if w.AllDay {
		return true
	}
	return w.StartTime <= at && at <= w.EndTime
}

// Normalize applies the all-day bounds and recomputes the day key.
func (w *DNDWindow) Normalize() {
	if w.AllDay {
		w.StartTime, w.EndTime = AllDayStart, AllDayEnd
	}
	w.DayKey = BuildDayKey(w.Day, w.StartTime, w.EndTime)
}

func (in DNDInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: do not disturb window name is required", ErrInvalidRequest)
	}
	if len(in.Days) == 0 {
		return fmt.Errorf("%w: at least one day is required", ErrInvalidRequest)
	}
	for _, d := range in.Days {
		if !ValidDay(d) {
			return fmt.Errorf("%w: day %d out of range 0..6", ErrInvalidRequest, d)
		}
	}
	if in.AllDay {
		return nil
	}
	if in.Start == nil || in.End == nil {
		return fmt.Errorf("%w: start and end are required unless all_day is set", ErrInvalidRequest)
	}
	if ClockOf(*in.Start) > ClockOf(*in.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRequest, ClockOf(*in.Start), ClockOf(*in.End))
	}
	return nil
}

// Windows expands the input into one normalized window per day.
func (in DNDInput) Windows(userID string, now time.Time) []DNDWindow {
	var start, end string
	if in.Start != nil {
		start = ClockOf(*in.Start)
	}
	if in.End != nil {
		end = ClockOf(*in.End)
	}

	seen := make(map[int]struct{}, len(in.Days))
	windows := make([]DNDWindow, 0, len(in.Days))
	for _, day := range in.Days {
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}

		w := DNDWindow{
			ID:        WindowID(userID, in.Name, day),
			UserID:    userID,
			Name:      in.Name,
			Day:       day,
			StartTime: start,
			EndTime:   end,
			AllDay:    in.AllDay,
			CreatedAt: now,
			UpdatedAt: now,
		}
		w.Normalize()
		windows = append(windows, w)
	}
	return windows
}

func (p DNDPatch) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: dnd id is required", ErrInvalidRequest)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: do not disturb window name is required", ErrInvalidRequest)
	}
	if p.Day != nil && !ValidDay(*p.Day) {
		return fmt.Errorf("%w: day %d out of range 0..6", ErrInvalidRequest, *p.Day)
	}
	return nil
}

// Apply merges the patch onto the stored window and returns the change set.
// Key fields fall back to the stored values when the patch omits them.
func (p DNDPatch) Apply(current DNDWindow) (DNDUpdate, error) {
	merged := current
	if p.Day != nil {
		merged.Day = *p.Day
	}
	if p.Start != nil {
		merged.StartTime = ClockOf(*p.Start)
	}
	if p.End != nil {
		merged.EndTime = ClockOf(*p.End)
	}
	if p.AllDay != nil {
		merged.AllDay = *p.AllDay
	}
	merged.Normalize()

	if !merged.AllDay && merged.StartTime > merged.EndTime {
		return DNDUpdate{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRequest, merged.StartTime, merged.EndTime)
	}

	return DNDUpdate{
		Name:      p.Name,
		Day:       &merged.Day,
		StartTime: &merged.StartTime,
		EndTime:   &merged.EndTime,
		AllDay:    &merged.AllDay,
		DayKey:    &merged.DayKey,
	}, nil
}
