package storage

import "time"

// Group is a chat authorized by the owner for feedback tracking.
type Group struct {
	ID        int64
	Name      string
	DateAdded time.Time
}

// Feedback is a single recorded feedback event. GroupName is a snapshot
// taken at insert time and is not updated when the group is renamed.
type Feedback struct {
	ID          int64
	UserID      int64
	Username    string
	DisplayName string
	GroupID     int64
	GroupName   string
	MessageID   int64
	MessageLink string
	TS          time.Time
}

// DueReminder is a reminder joined with its group, ready to be dispatched.
// A zero LastSent means the reminder has never been sent.
type DueReminder struct {
	GroupID   int64
	GroupName string
	Text      string
	LastSent  time.Time
}
