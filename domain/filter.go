package domain

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Search field selectors.
const (
	SearchAll         = "all"
	SearchTitle       = "title"
	SearchDescription = "description"
)

// Sort keys.
const (
	SortByCreatedAt = "createdAt"
	SortByDueDate   = "dueDate"
	SortByTitle     = "title"
	SortByPriority  = "priority"
)

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// FilterAll matches every status or priority.
const FilterAll = "all"

// Criteria narrows and orders a task collection. It is a pure view
// description: applying it never mutates the underlying tasks. The zero value
// means "everything, newest first".
type Criteria struct {
	SearchQuery    string
	SearchCriteria string
	StatusFilter   string
	PriorityFilter string
	SortBy         string
	SortDirection  string
}

// Matches reports whether the task satisfies the criteria's status, priority
// and search predicates.
func (c Criteria) Matches(t Task) bool {
	if c.StatusFilter != "" && c.StatusFilter != FilterAll && t.Status != c.StatusFilter {
		return false
	}
	if c.PriorityFilter != "" && c.PriorityFilter != FilterAll && t.Priority != c.PriorityFilter {
		return false
	}
	return c.matchesSearch(t)
}

func (c Criteria) matchesSearch(t Task) bool {
	query := strings.ToLower(c.SearchQuery)
	if query == "" {
		return true
	}
	title := strings.Contains(strings.ToLower(t.Title), query)
	desc := strings.Contains(strings.ToLower(t.Description), query)
	switch c.SearchCriteria {
	case SearchTitle:
		return title
	case SearchDescription:
		return desc
	default:
		return title || desc
	}
}

// FilterSort returns the tasks matching the criteria in the requested order.
// The input slice is never modified. Sorting is stable, and tasks without a
// parseable due date always sort last when ordering by due date, regardless
// of direction.
func FilterSort(tasks []Task, c Criteria) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if c.Matches(t) {
			out = append(out, t)
		}
	}
	sortTasks(out, c)
	return out
}

func sortTasks(tasks []Task, c Criteria) {
	desc := descending(c)
	cmp := comparator(c.SortBy)
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if c.SortBy == SortByDueDate {
			// Null due dates stay last in both directions; direction only
			// reorders among valid dates.
			_, aok := a.Due()
			_, bok := b.Due()
			if aok != bok {
				return aok
			}
			if !aok {
				return false
			}
		}
		r := cmp(a, b)
		if desc {
			return r > 0
		}
		return r < 0
	})
}

// descending resolves the effective direction: an explicit direction wins,
// otherwise createdAt and priority default to newest/highest first as the
// dashboard presents them.
func descending(c Criteria) bool {
	switch c.SortDirection {
	case SortAsc:
		return false
	case SortDesc:
		return true
	}
	switch c.SortBy {
	case SortByTitle, SortByDueDate:
		return false
	}
	return true
}

func comparator(sortBy string) func(a, b Task) int {
	switch sortBy {
	case SortByTitle:
		col := collate.New(language.English, collate.IgnoreCase)
		return func(a, b Task) int {
			return col.CompareString(a.Title, b.Title)
		}
	case SortByDueDate:
		return func(a, b Task) int {
			at, _ := a.Due()
			bt, _ := b.Due()
			return at.Compare(bt)
		}
	case SortByPriority:
		return func(a, b Task) int {
			return priorityRank(a.Priority) - priorityRank(b.Priority)
		}
	default:
		return func(a, b Task) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
}
