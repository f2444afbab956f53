package model

import "time"

// Notification type tags.
const (
	NotificationClassificationApproved = "classification_approved"
	NotificationClassificationAdjusted = "classification_adjusted"
)

// Notification informs an invoice owner about a review action.
type Notification struct {
	CreatedAt time.Time
	UserID    string
	Type      string
	Message   string
	ID        int64
	Read      bool
}
