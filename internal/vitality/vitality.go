package vitality

import (
	"math"
	"time"

	"github.com/joescharf/ghostvault/internal/models"
)

// Inputs holds the repository metadata the score is computed from.
type Inputs struct {
	Stars       int
	Forks       int
	LastUpdated time.Time
}

// Breakdown is a computed Vitality Score with its components.
type Breakdown struct {
	Total           int     `json:"total"`
	Base            float64 `json:"base"`
	Stars           float64 `json:"stars"`   // 0-20
	Forks           float64 `json:"forks"`   // 0-10
	Recency         float64 `json:"recency"` // -10..20
	DaysSinceUpdate int     `json:"daysSinceUpdate"`
}

const (
	base        = 50.0
	maxStars    = 20.0
	maxForks    = 10.0
	activeDays  = 90
	dormantDays = 365
)

// Score returns the 0-100 Vitality Score for in at time now.
func Score(in Inputs, now time.Time) int {
	return Compute(in, now).Total
}

// Compute returns the Vitality Score with its components.
func Compute(in Inputs, now time.Time) *Breakdown {
	b := &Breakdown{
		Base:            base,
		Stars:           math.Min(float64(in.Stars)/10, maxStars),
		Forks:           math.Min(float64(in.Forks)/5, maxForks),
		DaysSinceUpdate: daysSince(in.LastUpdated, now),
	}
	b.Recency = scoreRecency(in.LastUpdated, b.DaysSinceUpdate)

	total := math.Round(b.Base + b.Stars + b.Forks + b.Recency)
	b.Total = int(math.Max(0, math.Min(100, total)))
	return b
}

// daysSince returns whole days between t and now, or -1 if t is unknown.
func daysSince(t, now time.Time) int {
	if t.IsZero() {
		return -1
	}
	return int(math.Floor(now.Sub(t).Hours() / 24))
}

// scoreRecency converts days since last update to points.
func scoreRecency(t time.Time, days int) float64 {
	if t.IsZero() {
		return -10
	}
	switch {
	case days < 7:
		return 20
	case days < 30:
		return 15
	case days < 90:
		return 10
	case days < 180:
		return 5
	default:
		return -10
	}
}

// StatusFor classifies a project by how recently its repository changed.
func StatusFor(lastUpdated, now time.Time) models.ProjectStatus {
	if lastUpdated.IsZero() {
		return models.ProjectStatusHaunted
	}
	days := daysSince(lastUpdated, now)
	switch {
	case days <= activeDays:
		return models.ProjectStatusActive
	case days <= dormantDays:
		return models.ProjectStatusDormant
	default:
		return models.ProjectStatusHaunted
	}
}

// Band names the display band of a score.
func Band(score int) string {
	switch {
	case score >= 70:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}
