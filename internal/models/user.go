package models

import "time"

// User is a signed-up account and its public profile.
type User struct {
	UID              string    `json:"uid"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	GhostHandle      string    `json:"ghostHandle"`
	LinkedInUsername string    `json:"linkedInUsername,omitempty"`
	DeviceToken      string    `json:"-"`
	PasswordHash     string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Session is an opaque bearer token bound to a user.
type Session struct {
	Token      string
	UserUID    string
	ExpiresAt  time.Time
	LastUsedAt time.Time
	CreatedAt  time.Time
}
