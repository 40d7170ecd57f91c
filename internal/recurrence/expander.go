// Package recurrence wraps rrule-go behind the narrow iterator contract the
// reminder engine needs: an ascending, lazily produced sequence of occurrence
// times for one event. Expansion is restartable from scratch only; the
// engine's early-exit loops rely on bounded forward iteration, not on
// resumable cursors.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"calwatch/internal/types"
)

// DefaultMaxOccurrences is the safety cap applied when an Expander is
// constructed with a non-positive limit. It bounds pathological rules
// (e.g. minutely without COUNT) without truncating realistic calendars.
const DefaultMaxOccurrences = 5000

// Next yields the next occurrence in ascending order. ok is false once the
// sequence (or the safety cap) is exhausted.
type Next func() (t time.Time, ok bool)

// Expander expands an event's recurrence specification into concrete
// occurrence times.
type Expander struct {
	maxOccurrences int
}

// NewExpander creates an Expander with the given per-event occurrence cap.
func NewExpander(maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Expander{maxOccurrences: maxOccurrences}
}

// Expand returns a lazy iterator over the event's occurrence times in UTC,
// starting with the first occurrence at or after from. The event's start is
// the DTSTART of the rule, so for a zero from the first occurrence is the
// start itself (or derivable from it); exclusion dates are removed.
//
// Occurrences before from are skipped without counting against the cap: the
// cap bounds occurrences actually handed out, so a high-frequency series
// whose elapsed history exceeds the cap still reaches the window the caller
// cares about. Skipped occurrences can never trigger at or after from, since
// a trigger precedes its occurrence by the alarm lead.
//
// Non-recurring events yield at most their start time. A malformed rule is
// an error: the caller decides whether to skip the event or fail the pass.
func (x *Expander) Expand(ev *types.Event, from time.Time) (Next, error) {
	from = from.UTC()
	if !ev.Recurring || ev.RRule == "" {
		done := false
		start := ev.StartAt.UTC()
		return func() (time.Time, bool) {
			if done || start.Before(from) {
				return time.Time{}, false
			}
			done = true
			return start, true
		}, nil
	}

	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRRule,
			fmt.Sprintf("event %d has a malformed recurrence rule", ev.ID), err)
	}
	r.DTStart(ev.StartAt.UTC())

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.UTC())
	}

	iter := set.Iterator()
	remaining := x.maxOccurrences
	return func() (time.Time, bool) {
		if remaining <= 0 {
			return time.Time{}, false
		}
		for {
			t, ok := iter()
			if !ok {
				remaining = 0
				return time.Time{}, false
			}
			if t.Before(from) {
				continue
			}
			remaining--
			return t.UTC(), true
		}
	}, nil
}
