package model

import "time"

// DefaultNotificationDays is the reminder window used when a user has no settings row.
const DefaultNotificationDays = 3

// Product is one tracked food item. ExpirationDate carries a date only.
type Product struct {
	ID             int64
	UserID         int64
	Name           string
	ExpirationDate time.Time
	IsActive       bool
	ShopName       *string
	Amount         *float64
	Unit           *string
}

type User struct {
	ID       int64
	Email    string
	IsActive bool
}

// UserSettings is owned by the user; the notifier only reads it.
type UserSettings struct {
	UserID           int64
	NotificationDays int
	EmailEnabled     bool
	PushEnabled      bool
}

// Candidate is a product due for a reminder together with its owner and the owner's settings.
type Candidate struct {
	Product  Product
	User     User
	Settings UserSettings
}

// Date truncates t to its calendar date, expressed as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the whole days from today to expiration. Negative means already expired.
func DaysUntil(today, expiration time.Time) int {
	return int(Date(expiration).Sub(Date(today)).Hours() / 24)
}

// Window is the inclusive day range [Today, Today+Days].
type Window struct {
	Today time.Time
	Days  int
}

func (w Window) Contains(expiration time.Time) bool {
	n := DaysUntil(w.Today, expiration)
	return n >= 0 && n <= w.Days
}
