// Package split holds the store-free domain logic for expense aggregation
// and the share settlement lifecycle.
package split

import (
	"fmt"

	"github.com/trektally/backend/internal/models"
)

// transitions enumerates every legal settlement edge. pending -> paid stays
// legal so a debtor can settle in one step.
var transitions = map[models.ShareStatus][]models.ShareStatus{
	models.SharePending:  {models.ShareAccepted, models.ShareDisputed, models.SharePaid, models.ShareRejected},
	models.ShareAccepted: {models.SharePaid, models.ShareRejected},
	models.ShareDisputed: {models.ShareRejected},
}

// ValidStatus reports whether s is one of the five known settlement states.
func ValidStatus(s models.ShareStatus) bool {
	switch s {
	case models.SharePending, models.ShareAccepted, models.ShareDisputed, models.SharePaid, models.ShareRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s models.ShareStatus) bool {
	return len(transitions[s]) == 0 && ValidStatus(s)
}

// CanTransition reports whether the edge from -> to exists in the state machine.
func CanTransition(from, to models.ShareStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates the edge from -> to, returning a typed error when the
// transition is not allowed.
func Transition(from, to models.ShareStatus) error {
	if !ValidStatus(to) {
		return models.NewError(models.KindValidation, fmt.Sprintf("unknown share status %q", to))
	}
	if !CanTransition(from, to) {
		return models.NewError(models.KindInvalidTransition,
			fmt.Sprintf("cannot move share from %s to %s", from, to))
	}
	return nil
}
