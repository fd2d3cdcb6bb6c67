package model

// Preferences is everything a user has configured. Both slices are empty,
// never nil, for a user without records.
type Preferences struct {
	UserID        string
	Subscriptions []Subscription
	DNDWindows    []DNDWindow
}

// Empty reports whether the user has no records at all.
func (p Preferences) Empty() bool {
	return len(p.Subscriptions) == 0 && len(p.DNDWindows) == 0
}
