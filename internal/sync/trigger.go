// Package sync implements the student side of link broadcasting: the
// redirect decision function and the per-view client that keeps a student
// in step with one teacher's session row.
package sync

import "classlink/pkg/types"

// ActionType enumerates what a student view should do after observing a
// change to the active slot.
type ActionType int

const (
	// ActionNone means nothing to do: no active slot, an already handled
	// slot, or a pointer that does not resolve to a usable URL.
	ActionNone ActionType = iota
	// ActionNavigate means open the slot's URL.
	ActionNavigate
	// ActionManualFallback means the navigation attempt was blocked and a
	// clickable link must be shown instead.
	ActionManualFallback
)

// Action is the outcome of a redirect decision.
type Action struct {
	Type ActionType
	URL  string
}

// Decide maps an observed active-slot change to a navigation action.
//
// lastActedID is the last slot this view already navigated for, tracked
// separately from whatever was last rendered. The rules:
//
//  1. Same ID as last acted on: nothing to do.
//  2. Nothing active: nothing to do, and the caller must reset
//     lastActedID so a later re-activation of the same slot fires again.
//  3. Pointer does not resolve, or resolves to an empty URL: nothing to
//     do, and the caller must NOT mark it acted-on, so a later
//     correction of the slot retries.
//  4. Otherwise navigate; the caller marks lastActedID only after
//     issuing the attempt.
func Decide(lastActedID, newActiveID *string, slots []types.Slot) Action {
	if equalID(lastActedID, newActiveID) {
		return Action{Type: ActionNone}
	}
	if newActiveID == nil {
		return Action{Type: ActionNone}
	}
	for i := range slots {
		if slots[i].ID == *newActiveID {
			if slots[i].URL == "" {
				return Action{Type: ActionNone}
			}
			return Action{Type: ActionNavigate, URL: slots[i].URL}
		}
	}
	return Action{Type: ActionNone}
}

func equalID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
