package checks

import (
	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

// MultiEntry decides whether another scan in direction is allowed under
// policy, given the ticket's check-ins on the list in chronological order.
// Exit always passes.
func MultiEntry(policy models.EntryPolicy, direction models.Direction, history []models.CheckIn) bool {
	if direction == models.DirectionExit {
		return true
	}

	switch policy {
	case models.EntryUnlimited:
		return true
	case models.EntryAlternating:
		if len(history) == 0 {
			return true
		}
		return Last(history).Type == models.DirectionExit
	default:
		for _, ci := range history {
			if ci.Type == models.DirectionEntry {
				return false
			}
		}
		return true
	}
}

// Last returns the most recent check-in of history, nil when empty.
func Last(history []models.CheckIn) *models.CheckIn {
	if len(history) == 0 {
		return nil
	}
	last := &history[0]
	for i := range history[1:] {
		if !history[i+1].Date.Before(last.Date) {
			last = &history[i+1]
		}
	}
	return last
}
