package models

import "time"

// Notification is an in-app message for a single user.
type Notification struct {
	ID        string     `json:"id"`
	UserUID   string     `json:"userUid"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
