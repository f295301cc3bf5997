package notification

import "time"

// Types
const (
	TypeFeedback = "feedback"
)

type Notification struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	ReferenceID string    `json:"referenceId,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"` // UTC
}
