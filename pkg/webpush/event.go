package webpush

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority of a notification event.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Status of a notification event.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Content is what the service worker receives after decryption.
type Content struct {
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	ActionURL string         `json:"actionUrl,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Event is one request to notify a recipient. It is immutable and lives only
// for the duration of a delivery call.
type Event struct {
	ID        string
	UserID    string
	Content   Content
	Category  string
	Priority  Priority
	Status    Status
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the event's expiry has passed at now.
func (e Event) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// Payload returns the bytes that get encrypted for each subscriber.
func (e Event) Payload() ([]byte, error) {
	return json.Marshal(e.Content)
}

// Validate checks the fields every delivery needs.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Content.Title) == "" {
		return fmt.Errorf("%w: notification title is required", ErrInvalidEvent)
	}
	return nil
}

// DeliveryRequest is the inbound request contract.
type DeliveryRequest struct {
	EventID         string     `json:"eventId"`
	UserID          string     `json:"userId"`
	Notification    Content    `json:"notification"`
	SubscriptionIDs []string   `json:"subscriptionIds,omitempty"`
	Category        string     `json:"category,omitempty"`
	Priority        Priority   `json:"priority,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// Validate checks that the request names a recipient and carries a title.
func (r DeliveryRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" && len(r.SubscriptionIDs) == 0 {
		return fmt.Errorf("%w: userId or subscriptionIds is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(r.Notification.Title) == "" {
		return fmt.Errorf("%w: notification.title is required", ErrInvalidEvent)
	}
	switch r.Priority {
	case "", PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidEvent, r.Priority)
	}
	return nil
}

// Event builds the event for this request. A missing event id is generated.
func (r DeliveryRequest) Event(now time.Time) Event {
	id := r.EventID
	if id == "" {
		id = uuid.New().String()
	}
	priority := r.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return Event{
		ID:        id,
		UserID:    r.UserID,
		Content:   r.Notification,
		Category:  r.Category,
		Priority:  priority,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: r.ExpiresAt,
	}
}
