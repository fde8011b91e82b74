package domain

import "math"

// StatusSummary is the percentage breakdown of a task collection by status.
type StatusSummary struct {
	CompletedPct  int `json:"completedPct"`
	InProgressPct int `json:"inProgressPct"`
	NotStartedPct int `json:"notStartedPct"`
}

// Summarize computes the breakdown from scratch on every call. It is never
// maintained incrementally, so the summary cannot drift from the collection.
// All buckets are zero for an empty collection.
func Summarize(tasks []Task) StatusSummary {
	if len(tasks) == 0 {
		return StatusSummary{}
	}
	var completed, inProgress, notStarted int
	for _, t := range tasks {
		switch t.Status {
		case StatusCompleted:
			completed++
		case StatusInProgress:
			inProgress++
		default:
			notStarted++
		}
	}
	total := float64(len(tasks))
	return StatusSummary{
		CompletedPct:  int(math.Round(float64(completed) / total * 100)),
		InProgressPct: int(math.Round(float64(inProgress) / total * 100)),
		NotStartedPct: int(math.Round(float64(notStarted) / total * 100)),
	}
}
