package alarm

import (
	"time"

	"calwatch/internal/types"
)

// EvaluateOccurrence determines which of an event's attached alarms fire for
// one concrete occurrence. It is a pure function of its inputs; now is
// passed explicitly so passes are deterministic and testable.
//
//   - occurrence is the UTC start of the occurrence under test (for
//     recurring events this is usually not the event's stored start).
//   - maxLeadMinutes is the largest lead among the event's alarms of the
//     requested types, taken from the candidate aggregation.
//   - after, when non-nil, is the exclusive watermark: triggers at or before
//     it were already delivered through this channel.
//   - countElapsed selects the catch-up behavior of the whole-event
//     short-circuit. When true (reminder pass), an occurrence whose trigger
//     times have already passed is still inspected; when false (interactive
//     path), the short-circuit uses the earliest possible trigger.
//
// Per-alarm rejection is always trigger-based: a trigger at or beyond
// now+lookahead is not yet due, regardless of countElapsed. Past trigger
// times pass through; it is the caller's watermark that keeps stale items
// from repeating.
func EvaluateOccurrence(
	occurrence time.Time,
	ev *types.Event,
	maxLeadMinutes int,
	now time.Time,
	lookahead time.Duration,
	kinds []types.AlarmType,
	after *time.Time,
	countElapsed bool,
) []types.TriggerInstance {
	windowEnd := now.Add(lookahead)

	// Whole-event short-circuit: if even the earliest relevant instant of
	// this occurrence is beyond the window, no alarm on it can fire.
	gate := occurrence
	if !countElapsed {
		gate = occurrence.Add(-time.Duration(maxLeadMinutes) * time.Minute)
	}
	if !gate.Before(windowEnd) {
		return nil
	}

	var out []types.TriggerInstance
	for _, a := range ev.AlarmsOfType(kinds...) {
		trigger := occurrence.Add(-a.LeadDuration())
		if !trigger.Before(windowEnd) {
			continue // not yet due
		}
		if after != nil && !trigger.After(*after) {
			continue // already delivered in a previous pass
		}
		out = append(out, types.TriggerInstance{
			Event:      ev,
			Alarm:      a,
			Occurrence: occurrence,
			NotifyAt:   trigger,
		})
	}
	return out
}
