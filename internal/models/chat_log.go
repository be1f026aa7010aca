package models

import "time"

// ChatLog is one persisted exchange. IDs are assigned by the store and grow
// monotonically.
type ChatLog struct {
	ID               int64     `json:"id"`
	Model            string    `json:"model"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	CreatedAt        time.Time `json:"created_at"`
}
