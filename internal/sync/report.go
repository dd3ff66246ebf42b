package sync

import (
	"time"

	"github.com/tonimelisma/lighthouse/internal/store"
)

// GroupResult is the outcome of one group in a pass.
type GroupResult struct {
	Type      store.ActionType
	Pending   int     // actions of this type found at the start of the pass
	Skipped   []int64 // actions with unreadable payloads, not sent
	Attempted bool    // a request was sent
	Sent      int     // items in the delivered batch; 0 on failure
	SentID    int64   // settings only: the action whose document was sent
	Deleted   int64   // actions removed after delivery
	Err       error   // transport or cleanup failure; actions stay queued

	// RefreshErr is set when settings were applied but the follow-up
	// refresh request failed. It does not make the group failed.
	RefreshErr error

	// ConsecutiveFailures counts passes in a row this group has failed.
	ConsecutiveFailures int
}

// Failed reports whether the group's actions were left queued by a failure.
func (g GroupResult) Failed() bool {
	return g.Err != nil
}

// Report summarizes one pass.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Purged    int64 // actions dropped for exceeding the maximum age
	Groups    []GroupResult
}

// Empty reports whether the pass found nothing to send.
func (r *Report) Empty() bool {
	for _, g := range r.Groups {
		if g.Pending > 0 {
			return false
		}
	}

	return true
}

// Group returns the result for one action type.
func (r *Report) Group(t store.ActionType) (GroupResult, bool) {
	for _, g := range r.Groups {
		if g.Type == t {
			return g, true
		}
	}

	return GroupResult{}, false
}

// Deleted returns the total actions cleared across groups.
func (r *Report) Deleted() int64 {
	var n int64
	for _, g := range r.Groups {
		n += g.Deleted
	}

	return n
}

// FailedGroups returns how many groups failed.
func (r *Report) FailedGroups() int {
	n := 0

	for _, g := range r.Groups {
		if g.Failed() {
			n++
		}
	}

	return n
}

// SettingsApplied reports whether the pass delivered a settings document.
func (r *Report) SettingsApplied() bool {
	g, ok := r.Group(store.ActionSettings)
	return ok && g.Sent > 0
}
