package models

import "time"

// ProjectStatus describes how alive a listed repository looks.
type ProjectStatus string

const (
	ProjectStatusActive  ProjectStatus = "active"
	ProjectStatusDormant ProjectStatus = "dormant"
	ProjectStatusHaunted ProjectStatus = "haunted"
)

// Project is a GitHub repository listed in the vault for handover.
type Project struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	GitHubURL     string        `json:"githubUrl"`
	CreatorUID    string        `json:"creatorUid"`
	CreatorName   string        `json:"creatorName"`
	CreatorEmail  string        `json:"-"` // revealed only through contact unlocking
	Description   string        `json:"description"`
	GhostLog      string        `json:"ghostLog"`
	ThumbnailURL  string        `json:"thumbnailUrl"`
	VitalityScore int           `json:"vitalityScore"`
	Status        ProjectStatus `json:"status"`
	Stars         int           `json:"stars"`
	Forks         int           `json:"forks"`
	Language      string        `json:"language"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
