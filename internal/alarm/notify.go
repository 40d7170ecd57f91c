package alarm

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"calwatch/internal/types"
)

// DefaultNotifLookahead is the forward window of the interactive
// "what's due for me" path.
const DefaultNotifLookahead = 24 * time.Hour

// NotifyService is the interactive dispatcher mode: per-partner, synchronous,
// bounded by the partner's personal acknowledgement watermark instead of the
// global pass cursor. Delivery here is at-most-once per call; re-polling
// re-evaluates against the same unmoved cursor until the partner
// acknowledges.
type NotifyService struct {
	events    EventStore
	cursors   CursorStore
	finder    *Finder
	expander  OccurrenceExpander
	lookahead time.Duration
	logger    *slog.Logger
}

// NewNotifyService creates the interactive notification service.
// lookahead <= 0 selects DefaultNotifLookahead.
func NewNotifyService(
	events EventStore,
	cursors CursorStore,
	finder *Finder,
	expander OccurrenceExpander,
	lookahead time.Duration,
	logger *slog.Logger,
) *NotifyService {
	if lookahead <= 0 {
		lookahead = DefaultNotifLookahead
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyService{
		events:    events,
		cursors:   cursors,
		finder:    finder,
		expander:  expander,
		lookahead: lookahead,
		logger:    logger,
	}
}

// Due returns the reminder payloads due for the partner inside the lookahead
// window and after the partner's last acknowledgement. An empty slice is the
// normal "nothing due" answer, never an error.
func (s *NotifyService) Due(ctx context.Context, now time.Time, partnerID int64) ([]types.ReminderPayload, error) {
	now = now.UTC()

	after, err := s.cursors.PartnerCursor(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	actor := types.Actor{PartnerID: partnerID}
	candidates, err := s.finder.FindCandidates(ctx, now, notifKinds, &s.lookahead, &partnerID, actor)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []types.ReminderPayload{}, nil
	}

	ids := make([]int64, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	events, err := s.events.GetEvents(ctx, ids)
	if err != nil {
		return nil, err
	}

	var payloads []types.ReminderPayload
	for _, id := range ids {
		ev, ok := events[id]
		if !ok {
			continue
		}
		c := candidates[id]

		triggers, err := s.dueForEvent(ev, c.MaxLeadMinutes, now, after)
		if err != nil {
			s.logger.Error("skipping event with unexpandable recurrence",
				"event_id", ev.ID,
				"error", err,
			)
			continue
		}
		for _, t := range triggers {
			payloads = append(payloads, BuildReminderPayload(t, now))
		}
	}

	// Soonest first: the client shows the next reminder on top.
	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].NotifyAt.Before(payloads[j].NotifyAt)
	})
	return payloads, nil
}

// Ack advances the partner's acknowledgement watermark to now, dismissing
// everything currently surfaced.
func (s *NotifyService) Ack(ctx context.Context, now time.Time, partnerID int64) error {
	return s.cursors.AckPartner(ctx, partnerID, now.UTC())
}

// dueForEvent evaluates one candidate event, expanding its recurrence when
// needed. Expansion fast-forwards to the partner's acknowledgement
// watermark when one exists: acknowledged occurrences can only trigger at
// or before it, so they never eat into the expansion cap.
//
// Early-exit invariant for recurring events: occurrences are ascending, so
// the walk stops the first time an occurrence yields no due alarm after a
// previous occurrence yielded one, and unconditionally once the earliest
// possible trigger of an occurrence leaves the lookahead window.
func (s *NotifyService) dueForEvent(ev *types.Event, maxLeadMinutes int, now time.Time, after *time.Time) ([]types.TriggerInstance, error) {
	if !ev.Recurring {
		return EvaluateOccurrence(ev.StartAt, ev, maxLeadMinutes, now, s.lookahead, notifKinds, after, false), nil
	}

	var from time.Time
	if after != nil {
		from = *after
	}
	next, err := s.expander.Expand(ev, from)
	if err != nil {
		return nil, err
	}

	windowEnd := now.Add(s.lookahead)
	maxLead := time.Duration(maxLeadMinutes) * time.Minute

	var out []types.TriggerInstance
	foundAnyDue := false
	for {
		occ, ok := next()
		if !ok {
			break
		}
		if !occ.Add(-maxLead).Before(windowEnd) {
			break
		}

		found := EvaluateOccurrence(occ, ev, maxLeadMinutes, now, s.lookahead, notifKinds, after, false)
		out = append(out, found...)

		if foundAnyDue && len(found) == 0 {
			break
		}
		if len(found) > 0 {
			foundAnyDue = true
		}
	}
	return out, nil
}

// BuildReminderPayload converts a TriggerInstance into the lightweight DTO
// handed to clients and to the real-time bus. The countdown is clamped at
// zero for triggers already elapsed.
func BuildReminderPayload(t types.TriggerInstance, now time.Time) types.ReminderPayload {
	timer := int64(t.NotifyAt.Sub(now) / time.Second)
	if timer < 0 {
		timer = 0
	}

	message := t.Alarm.Body
	if message == "" {
		message = DisplayTime(t.Event, t.Occurrence)
	}

	return types.ReminderPayload{
		EventID:  t.Event.ID,
		Title:    t.Event.Title,
		Message:  message,
		TimerSec: timer,
		NotifyAt: t.NotifyAt.UTC(),
	}
}

// DisplayTime renders one occurrence's span the way the reminder popup shows
// it. The span starts at the given occurrence and lasts the event's stored
// duration; a zero occurrence falls back to the stored start.
func DisplayTime(ev *types.Event, occurrence time.Time) string {
	const layout = "Monday, January 2, 2006 at 15:04 MST"
	start := occurrence.UTC()
	if occurrence.IsZero() {
		start = ev.StartAt.UTC()
	}
	stop := start.Add(ev.StopAt.Sub(ev.StartAt))
	if start.Truncate(24 * time.Hour).Equal(stop.Truncate(24 * time.Hour)) {
		return start.Format(layout) + " - " + stop.Format("15:04 MST")
	}
	return start.Format(layout) + " - " + stop.Format(layout)
}
