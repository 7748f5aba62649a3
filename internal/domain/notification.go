package domain

import "time"

// Notification lifecycle statuses. ACTIVE notifications past their scheduled
// time are moved to EXPIRED by the sweep; INACTIVE is only ever set manually.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
	StatusExpired  = "EXPIRED"
)

// Notification categories.
const (
	TypeSchedule = "SCHEDULE"
	TypeExam     = "EXAM"
	TypeOther    = "OTHER"
)

// ValidStatus reports whether s is one of the known notification statuses.
func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusInactive || s == StatusExpired
}

// ValidType reports whether t is one of the known notification types.
func ValidType(t string) bool {
	return t == TypeSchedule || t == TypeExam || t == TypeOther
}

type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	TeacherID      string    `json:"teacher_id" dynamodbav:"teacher_id"`
	Title          string    `json:"title" dynamodbav:"title"`
	Content        string    `json:"content" dynamodbav:"content"`
	Status         string    `json:"status" dynamodbav:"status"`
	Type           string    `json:"type" dynamodbav:"type"`
	ScheduledAt    time.Time `json:"scheduled_at" dynamodbav:"scheduled_at"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// NotificationTarget fans one notification out to one class. The
// (notification, class) pair is the item's primary key, so duplicate targets
// for the same pair cannot exist. NotificationCreatedAt is denormalized from
// the owning notification so per-class queries come back newest-first.
type NotificationTarget struct {
	TargetID              string    `json:"id" dynamodbav:"target_id"`
	NotificationID        string    `json:"notification_id" dynamodbav:"notification_id"`
	ClassID               string    `json:"class_id" dynamodbav:"class_id"`
	SentAt                time.Time `json:"sent_at" dynamodbav:"sent_at"`
	NotificationCreatedAt time.Time `json:"-" dynamodbav:"notification_created_at"`
}

type CreateNotificationRequest struct {
	Title       string     `json:"title" validate:"required"`
	Content     string     `json:"content" validate:"required"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Type        *string    `json:"type"`
	ClassIDs    []string   `json:"class_ids"`
}

// UpdateNotificationRequest carries partial updates: nil means "leave
// unchanged". A non-nil ClassIDs — including an empty list — replaces the
// full target set.
type UpdateNotificationRequest struct {
	Title       *string    `json:"title"`
	Content     *string    `json:"content"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Status      *string    `json:"status"`
	Type        *string    `json:"type"`
	ClassIDs    []string   `json:"class_ids"`
}

type NotificationStatistics struct {
	Total    int `json:"total_notifications"`
	Active   int `json:"active_notifications"`
	Expired  int `json:"expired_notifications"`
	Inactive int `json:"inactive_notifications"`
}

// SweepResult reports which notifications an expiry sweep transitioned and
// which updates failed. A failed update never aborts the rest of the sweep.
type SweepResult struct {
	Expired []string `json:"expired"`
	Failed  []string `json:"failed,omitempty"`
}
