package domain

import "fmt"

// Status is the lifecycle state of an opportunity.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusSubmitted          Status = "submitted"
	StatusMatchingInProgress Status = "matching_in_progress"
	StatusMatchesFound       Status = "matches_found"
	StatusArchitectSelected  Status = "architect_selected"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
)

// transitions holds the allowed forward edges. The cancelled row lists every
// non-terminal status because a reactivated opportunity returns to whatever
// status it held before cancellation; the engine resolves that target from
// the status history.
var transitions = map[Status][]Status{
	StatusDraft:              {StatusSubmitted, StatusCancelled},
	StatusSubmitted:          {StatusMatchingInProgress, StatusCancelled},
	StatusMatchingInProgress: {StatusMatchesFound, StatusCancelled},
	StatusMatchesFound:       {StatusArchitectSelected, StatusCancelled},
	StatusArchitectSelected:  {StatusCompleted, StatusCancelled},
	StatusCompleted:          {},
	StatusCancelled:          {StatusDraft, StatusSubmitted, StatusMatchingInProgress, StatusMatchesFound, StatusArchitectSelected},
}

// CanTransition reports whether old -> new is an allowed status change.
func CanTransition(old, new Status) bool {
	for _, s := range transitions[old] {
		if s == new {
			return true
		}
	}
	return false
}

// IsFinal reports whether no further transitions leave the status.
func (s Status) IsFinal() bool {
	return len(transitions[s]) == 0
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

// AllStatuses returns every known status, active before terminal.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusSubmitted,
		StatusMatchingInProgress,
		StatusMatchesFound,
		StatusArchitectSelected,
		StatusCompleted,
		StatusCancelled,
	}
}
