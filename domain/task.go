package domain

import "time"

// Task priorities as exposed by the service.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task statuses. The UI presents "pending" as "not started".
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

// Task represents a single to-do item in the read model. IDs and creation
// timestamps are assigned by the service and never change. DueDate is kept as
// the raw wire value; malformed or absent dates are treated as "no due date".
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	DueDate     string    `json:"dueDate,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Due parses the task's due date. ok is false when the date is absent or not
// parseable; such tasks sort after every task with a valid due date.
func (t Task) Due() (time.Time, bool) {
	if t.DueDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, t.DueDate); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func priorityRank(p string) int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	}
	return 0
}
