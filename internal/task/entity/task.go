package entity

import "time"

// Priority ranks a task; the zero value is normalised to PriorityLow.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents a row in the `tasks` table.
type Task struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Priority    Priority  `json:"priority" db:"priority"`
	Completed   bool      `json:"completed" db:"completed"`
	OwnerID     string    `json:"ownerId" db:"owner_id"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// EventKey keys forwarded events by task so they stay ordered per task.
func (t *Task) EventKey() string { return t.ID }

// Filter is a conjunction of equality predicates; empty fields are ignored.
type Filter struct {
	ID        string
	OwnerID   string
	Title     string
	Priority  Priority
	Completed *bool
}
