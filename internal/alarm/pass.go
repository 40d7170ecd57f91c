package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"calwatch/internal/types"
)

// PassStats summarizes one reminder pass for logging and telemetry.
// Candidates counts candidate events from the recurring pre-filter;
// DirectDue counts (event, alarm) rows from the non-recurring fast path.
// The two are reported separately because they count different things and
// an event can appear in both reads.
type PassStats struct {
	Cursor       time.Time
	Candidates   int
	DirectDue    int
	Triggers     int
	MailBatches  int
	MailFailures int
	PushPayloads int
	PushFailures int
}

// PassRecorder receives pass statistics for telemetry. A nil recorder
// disables emission.
type PassRecorder interface {
	RecordPass(ctx context.Context, stats PassStats)
}

// Pass is the cron-driven dispatcher mode: one invocation processes every
// reminder due since the previous watermark, sends grouped email batches,
// publishes push payloads, and advances the global cursor.
//
// Overlapping invocations are prevented by the scheduler driving Run, not by
// this type; the design assumes at most one concurrent pass per deployment.
type Pass struct {
	events   EventStore
	alarms   AlarmStore
	cursors  CursorStore
	finder   *Finder
	expander OccurrenceExpander
	mail     MailTransport
	bus      BusPublisher
	interval time.Duration
	recorder PassRecorder
	logger   *slog.Logger
}

// PassConfig bundles the dependencies of a Pass.
type PassConfig struct {
	Events   EventStore
	Alarms   AlarmStore
	Cursors  CursorStore
	Finder   *Finder
	Expander OccurrenceExpander
	Mail     MailTransport
	Bus      BusPublisher
	// Interval is the cron cadence, used as the candidate horizon.
	Interval time.Duration
	Recorder PassRecorder
	Logger   *slog.Logger
}

// NewPass creates a reminder pass runner.
func NewPass(cfg PassConfig) *Pass {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pass{
		events:   cfg.Events,
		alarms:   cfg.Alarms,
		cursors:  cfg.Cursors,
		finder:   cfg.Finder,
		expander: cfg.Expander,
		mail:     cfg.Mail,
		bus:      cfg.Bus,
		interval: cfg.Interval,
		recorder: cfg.Recorder,
		logger:   logger,
	}
}

// Run executes one reminder pass with now as the pass-start instant.
//
// Sequence: load cursor, collect due triggers (direct join for non-recurring
// events, candidate walk plus recurrence expansion for recurring ones),
// group email triggers per alarm and send, publish push payloads, then
// advance the cursor to now.
//
// Failure policy: a misconfigured interval or any storage error aborts the
// pass before anything is sent and leaves the cursor untouched, so the next
// successful pass catches up. Transport failures are logged and swallowed
// per batch; the cursor still advances, trading guaranteed delivery for
// never duplicating a reminder (attendees already received an invitation
// email covering the event).
func (p *Pass) Run(ctx context.Context, now time.Time) (PassStats, error) {
	var stats PassStats

	if p.interval <= 0 {
		// Fail-safe: nothing was sent, so not advancing the cursor is
		// correct and the next correctly configured run catches up.
		p.logger.Error("reminder pass interval is not configured, aborting pass",
			"interval", p.interval.String(),
		)
		return stats, fmt.Errorf("reminder pass interval must be positive, got %s", p.interval)
	}

	now = now.UTC()

	cursor, ok, err := p.cursors.GlobalCursor(ctx)
	if err != nil {
		return stats, err
	}
	if !ok {
		// First pass ever: start from now. Triggers that elapsed before the
		// service existed are covered by the invitation emails.
		cursor = now
	}
	stats.Cursor = cursor

	triggers, candidates, directDue, err := p.collectTriggers(ctx, cursor, now)
	if err != nil {
		return stats, err
	}
	stats.Candidates = candidates
	stats.DirectDue = directDue
	stats.Triggers = len(triggers)

	mailSent, mailFailed := p.dispatchMail(ctx, triggers)
	stats.MailBatches = mailSent + mailFailed
	stats.MailFailures = mailFailed

	pushSent, pushFailed := p.dispatchPush(ctx, now, triggers)
	stats.PushPayloads = pushSent + pushFailed
	stats.PushFailures = pushFailed

	// The cursor advances unconditionally after all sends were attempted,
	// never before: writing it early would lose reminders on a crash
	// mid-pass, writing it per batch would duplicate them.
	if err := p.cursors.SetGlobalCursor(ctx, now); err != nil {
		return stats, err
	}

	p.logger.Info("reminder pass complete",
		"cursor", cursor.Format(time.RFC3339),
		"candidates", stats.Candidates,
		"direct_due", stats.DirectDue,
		"triggers", stats.Triggers,
		"mail_batches", stats.MailBatches,
		"mail_failures", stats.MailFailures,
		"push_payloads", stats.PushPayloads,
		"push_failures", stats.PushFailures,
	)

	if p.recorder != nil {
		p.recorder.RecordPass(ctx, stats)
	}
	return stats, nil
}

// collectTriggers gathers every TriggerInstance due in (cursor, now) across
// both alarm channels. It reports the candidate event count and the direct
// due-join row count alongside the triggers.
func (p *Pass) collectTriggers(ctx context.Context, cursor, now time.Time) ([]types.TriggerInstance, int, int, error) {
	var triggers []types.TriggerInstance

	// Fast path: due alarms on non-recurring events come from one indexed
	// join instead of walking each event. This also covers triggers the
	// stored start already elapsed for, without any expansion.
	due, err := p.alarms.DueNonRecurring(ctx, allKinds, cursor, now)
	if err != nil {
		return nil, 0, 0, err
	}
	direct, err := p.resolveDue(ctx, due)
	if err != nil {
		return nil, 0, 0, err
	}
	triggers = append(triggers, direct...)

	// Recurring events need per-occurrence evaluation. The candidate
	// pre-filter bounds the set; expansion is cut short as soon as an
	// occurrence past the window is reached.
	candidates, err := p.finder.FindCandidates(ctx, now, allKinds, &p.interval, nil, types.Actor{System: true})
	if err != nil {
		return nil, 0, 0, err
	}

	var recurringIDs []int64
	for id, c := range candidates {
		if c.Recurring {
			recurringIDs = append(recurringIDs, id)
		}
	}
	events, err := p.events.GetEvents(ctx, recurringIDs)
	if err != nil {
		return nil, 0, 0, err
	}

	for _, id := range recurringIDs {
		ev, found := events[id]
		if !found {
			continue
		}
		c := candidates[id]
		occTriggers, err := p.walkOccurrences(ev, c.MaxLeadMinutes, cursor, now)
		if err != nil {
			// A malformed rule on one event must not starve every other
			// event of its reminders.
			p.logger.Error("skipping event with unexpandable recurrence",
				"event_id", ev.ID,
				"error", err,
			)
			continue
		}
		triggers = append(triggers, occTriggers...)
	}

	return triggers, len(candidates), len(due), nil
}

// resolveDue hydrates (event, alarm) pairs from the fast path into
// TriggerInstances.
func (p *Pass) resolveDue(ctx context.Context, due []types.DueAlarm) ([]types.TriggerInstance, error) {
	if len(due) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(due))
	seen := make(map[int64]struct{}, len(due))
	for _, d := range due {
		if _, ok := seen[d.EventID]; !ok {
			seen[d.EventID] = struct{}{}
			ids = append(ids, d.EventID)
		}
	}
	events, err := p.events.GetEvents(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []types.TriggerInstance
	for _, d := range due {
		ev, ok := events[d.EventID]
		if !ok {
			continue
		}
		for _, a := range ev.Alarms {
			if a.ID == d.AlarmID {
				out = append(out, types.TriggerInstance{
					Event:      ev,
					Alarm:      a,
					Occurrence: ev.StartAt.UTC(),
					NotifyAt:   ev.StartAt.Add(-a.LeadDuration()),
				})
				break
			}
		}
	}
	return out, nil
}

// walkOccurrences expands one recurring event and evaluates each occurrence
// against the (cursor, now) window. Expansion fast-forwards to the cursor:
// an occurrence at or before it can only trigger at or before it too, so
// elapsed history never eats into the expansion cap.
//
// Loop invariant: occurrences arrive in ascending order, so once an
// occurrence that yielded triggers is followed by one that yields none, no
// later occurrence can yield any either and the walk stops. Independently,
// an occurrence at or past the window end terminates the walk because the
// whole-event short-circuit rejects everything from there on.
func (p *Pass) walkOccurrences(ev *types.Event, maxLeadMinutes int, cursor, now time.Time) ([]types.TriggerInstance, error) {
	next, err := p.expander.Expand(ev, cursor)
	if err != nil {
		return nil, err
	}

	var out []types.TriggerInstance
	foundAnyDue := false
	for {
		occ, ok := next()
		if !ok {
			break
		}
		if !occ.Before(now) {
			break
		}

		found := EvaluateOccurrence(occ, ev, maxLeadMinutes, now, 0, allKinds, &cursor, true)
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

// dispatchMail groups email triggers per alarm definition and sends one
// batch per alarm. Returns (succeeded, failed) batch counts.
func (p *Pass) dispatchMail(ctx context.Context, triggers []types.TriggerInstance) (sent, failed int) {
	byAlarm := make(map[int64]*MailBatch)
	for _, t := range triggers {
		if t.Alarm.Type != types.AlarmEmail {
			continue
		}
		recipients := mailRecipients(t.Event)
		if len(recipients) == 0 {
			continue
		}
		b, ok := byAlarm[t.Alarm.ID]
		if !ok {
			b = &MailBatch{Alarm: t.Alarm}
			byAlarm[t.Alarm.ID] = b
		}
		b.Items = append(b.Items, MailItem{
			Event:      t.Event,
			Occurrence: t.Occurrence,
			NotifyAt:   t.NotifyAt,
			Recipients: recipients,
		})
	}

	// Stable order keeps logs and tests deterministic.
	alarmIDs := make([]int64, 0, len(byAlarm))
	for id := range byAlarm {
		alarmIDs = append(alarmIDs, id)
	}
	sort.Slice(alarmIDs, func(i, j int) bool { return alarmIDs[i] < alarmIDs[j] })

	for _, id := range alarmIDs {
		batch := byAlarm[id]
		if err := p.mail.SendReminderBatch(ctx, *batch); err != nil {
			// Swallowed: one failed batch must not block the others, nor
			// the cursor advance. Failed reminders are not retried.
			p.logger.Error("reminder mail batch failed",
				"alarm_id", batch.Alarm.ID,
				"events", len(batch.Items),
				"error", err,
			)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

// dispatchPush publishes one payload per (attendee, trigger) for
// notification-type alarms. Returns (succeeded, failed) payload counts.
func (p *Pass) dispatchPush(ctx context.Context, now time.Time, triggers []types.TriggerInstance) (sent, failed int) {
	for _, t := range triggers {
		if t.Alarm.Type != types.AlarmNotification {
			continue
		}
		payload := BuildReminderPayload(t, now)
		for _, att := range t.Event.Attendees {
			if att.State == types.AttendeeDeclined {
				continue
			}
			if err := p.bus.PublishReminder(ctx, att.PartnerID, payload); err != nil {
				p.logger.Error("reminder push publish failed",
					"event_id", t.Event.ID,
					"partner_id", att.PartnerID,
					"error", err,
				)
				failed++
				continue
			}
			sent++
		}
	}
	return sent, failed
}

// mailRecipients resolves the recipient list for one event: every attendee
// except those who declined.
func mailRecipients(ev *types.Event) []types.Attendee {
	var out []types.Attendee
	for _, att := range ev.Attendees {
		if att.State == types.AttendeeDeclined {
			continue
		}
		out = append(out, att)
	}
	return out
}
