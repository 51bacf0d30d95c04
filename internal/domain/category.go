package domain

import "time"

// Category is one node of the three-level taxonomy (L1, L2 or L3).
// Identity is (Level, Name); name is unique within its level.
type Category struct {
	Level       Level
	Name        string
	Description string
	Keywords    []string
	TicketCount int64
	Accuracy    float64
	CreatedAt   time.Time
	AIGenerated bool
}

// NewCategory builds a category with the spec-mandated initial statistics:
// accuracy starts at 1.0, ticket count at 0.
func NewCategory(level Level, name, description string, keywords []string) Category {
	return Category{
		Level:       level,
		Name:        name,
		Description: description,
		Keywords:    keywords,
		TicketCount: 0,
		Accuracy:    1.0,
		CreatedAt:   time.Now(),
	}
}
