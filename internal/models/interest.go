package models

import "time"

// InterestStatus is the state of a takeover request.
type InterestStatus string

const (
	InterestStatusPending  InterestStatus = "pending"
	InterestStatusApproved InterestStatus = "approved"
	InterestStatusRejected InterestStatus = "rejected"
)

// Interest records a junior developer asking to take over a project.
// Project and senior fields are copied at creation so the dashboard can
// render a request without loading the project.
type Interest struct {
	ID           string         `json:"id"`
	ProjectID    string         `json:"projectId"`
	ProjectTitle string         `json:"projectTitle"`
	GitHubURL    string         `json:"githubUrl"`
	SeniorUID    string         `json:"seniorUid"`
	SeniorEmail  string         `json:"-"` // revealed only through Contact
	SeniorName   string         `json:"seniorName"`
	JuniorUID    string         `json:"juniorUid"`
	JuniorName   string         `json:"juniorName"`
	JuniorEmail  string         `json:"juniorEmail"`
	Message      string         `json:"message"`
	Status       InterestStatus `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Contact holds the creator details unlocked after approval.
type Contact struct {
	ProjectID   string `json:"projectId"`
	GhostHandle string `json:"ghostHandle"`
	Email       string `json:"email"`
	GitHubURL   string `json:"githubUrl"`
}
