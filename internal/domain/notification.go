package domain

import "time"

// NotificationKind names the event a notification reports.
type NotificationKind string

const (
	NotifyApproved NotificationKind = "reservation_approved"
	NotifyRejected NotificationKind = "reservation_rejected"
	NotifyOverdue  NotificationKind = "reservation_overdue"
)

// Notification is a best-effort message queued after a commit.
type Notification struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenantId"`
	ReservationID string           `json:"reservationId"`
	Recipients    []string         `json:"recipients"`
	Kind          NotificationKind `json:"kind"`
	Message       string           `json:"message"`
	Attempts      int              `json:"attempts"`
	NextAttemptAt time.Time        `json:"nextAttemptAt"`
}
