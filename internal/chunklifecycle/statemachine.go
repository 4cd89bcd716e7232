package chunklifecycle

import "github.com/aman-cerp/chunkcore/internal/coremodel"

// transitions is the explicit legal-transition table, enforced as a lookup
// rather than a chain of if-statements so the legal target set for a given
// status is visible at a glance.
var transitions = map[coremodel.Status][]coremodel.Status{
	coremodel.StatusPending:  {coremodel.StatusTraining, coremodel.StatusArchived},
	coremodel.StatusTraining: {coremodel.StatusTrained, coremodel.StatusFailed, coremodel.StatusArchived},
	coremodel.StatusTrained:  {coremodel.StatusRestored, coremodel.StatusArchived},
	coremodel.StatusFailed:   {coremodel.StatusTraining, coremodel.StatusRestored, coremodel.StatusArchived},
	coremodel.StatusRestored: {coremodel.StatusTraining, coremodel.StatusFailed, coremodel.StatusRestored, coremodel.StatusArchived},
}

// isLegalTransition reports whether from -> to is allowed by the matrix.
// ARCHIVED has no outgoing transitions and is absent from the map, which
// naturally returns false for any attempt to leave it.
func isLegalTransition(from, to coremodel.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// isRestorable reports whether a chunk with the given status and model hash
// qualifies as restorable against currentModel: FAILED, RESTORED, or
// (TRAINED and its model hash differs from current).
func isRestorable(status coremodel.Status, modelHash *string, currentModel string) bool {
	switch status {
	case coremodel.StatusFailed, coremodel.StatusRestored:
		return true
	case coremodel.StatusTrained:
		return modelHash == nil || *modelHash != currentModel
	default:
		return false
	}
}

// isUntrained reports whether status is one of PENDING, FAILED, RESTORED.
func isUntrained(status coremodel.Status) bool {
	return status == coremodel.StatusPending || status == coremodel.StatusFailed || status == coremodel.StatusRestored
}
