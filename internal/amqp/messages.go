package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"budgetd/internal/core"
)

// NotificationMessage is the wire form of a limit notification. The ID is a
// random UUID so downstream consumers can deduplicate deliveries.
type NotificationMessage struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func NewNotificationMessage(n core.Notification) *NotificationMessage {
	return &NotificationMessage{
		ID:        uuid.NewString(),
		UserID:    n.UserID,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
}

func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
