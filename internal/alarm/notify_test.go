package alarm

import (
	"context"
	"strings"
	"testing"
	"time"

	"calwatch/internal/recurrence"
	"calwatch/internal/types"
)

func newTestNotifyService(events *mockEventStore, cursors *mockCursorStore, expander OccurrenceExpander) *NotifyService {
	if expander == nil {
		expander = recurrence.NewExpander(0)
	}
	return NewNotifyService(
		events,
		cursors,
		NewFinder(events, &mockAccess{}, 0, discardLogger()),
		expander,
		24*time.Hour,
		discardLogger(),
	)
}

func TestNotifyDue_ReturnsPayloadWithinLookahead(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	event := &types.Event{
		ID:        1,
		Title:     "dentist",
		StartAt:   start,
		StopAt:    start.Add(time.Hour),
		Alarms:    []types.Alarm{notifAlarm(10, 30, types.LeadMinutes)},
		Attendees: []types.Attendee{{PartnerID: 7, State: types.AttendeeAccepted}},
	}
	events := &mockEventStore{
		candidates: []types.EventCandidate{{EventID: 1, MaxLeadMinutes: 30}},
		events:     map[int64]*types.Event{1: event},
	}
	cursors := &mockCursorStore{}

	s := newTestNotifyService(events, cursors, nil)

	got, err := s.Due(context.Background(), now, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d payloads, want 1", len(got))
	}
	p := got[0]
	if p.EventID != 1 || p.Title != "dentist" {
		t.Errorf("payload = %+v", p)
	}
	wantNotify := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
	if !p.NotifyAt.Equal(wantNotify) {
		t.Errorf("NotifyAt = %v, want %v", p.NotifyAt, wantNotify)
	}
	if p.TimerSec != int64(90*time.Minute/time.Second) {
		t.Errorf("TimerSec = %d, want %d", p.TimerSec, int64(90*time.Minute/time.Second))
	}

	// The candidate query is scoped to the partner's events.
	call := events.candidateCalls[0]
	if call.PartnerID == nil || *call.PartnerID != 7 {
		t.Errorf("partner scope = %v, want 7", call.PartnerID)
	}
}

func TestNotifyDue_AckSuppressesUntilNextTrigger(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	event := &types.Event{
		ID:        1,
		Title:     "dentist",
		StartAt:   start,
		StopAt:    start.Add(time.Hour),
		Alarms:    []types.Alarm{notifAlarm(10, 30, types.LeadMinutes)},
		Attendees: []types.Attendee{{PartnerID: 7, State: types.AttendeeAccepted}},
	}
	events := &mockEventStore{
		candidates: []types.EventCandidate{{EventID: 1, MaxLeadMinutes: 30}},
		events:     map[int64]*types.Event{1: event},
	}
	cursors := &mockCursorStore{}

	s := newTestNotifyService(events, cursors, nil)

	first, err := s.Due(context.Background(), now, 7)
	if err != nil || len(first) != 1 {
		t.Fatalf("first poll: payloads=%v err=%v, want one payload", first, err)
	}

	// Re-polling without acknowledging returns the same item.
	again, err := s.Due(context.Background(), now, 7)
	if err != nil || len(again) != 1 {
		t.Fatalf("re-poll: payloads=%v err=%v, want one payload", again, err)
	}

	if err := s.Ack(context.Background(), now, 7); err != nil {
		t.Fatalf("ack: %v", err)
	}

	// The trigger (09:30) is after the ack watermark (08:00), so it still
	// surfaces; acknowledging only dismisses triggers at or before the ack.
	after, err := s.Due(context.Background(), now, 7)
	if err != nil || len(after) != 1 {
		t.Fatalf("post-ack poll: payloads=%v err=%v", after, err)
	}

	// Once acknowledged at a time past the trigger, it stays dismissed.
	later := time.Date(2026, 9, 1, 9, 45, 0, 0, time.UTC)
	if err := s.Ack(context.Background(), later, 7); err != nil {
		t.Fatalf("ack: %v", err)
	}
	final, err := s.Due(context.Background(), later, 7)
	if err != nil {
		t.Fatalf("final poll: %v", err)
	}
	if len(final) != 0 {
		t.Errorf("final poll returned %v, want none", final)
	}
}

func TestNotifyDue_SortsSoonestFirst(t *testing.T) {
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

	early := &types.Event{
		ID:      1,
		Title:   "early",
		StartAt: now.Add(2 * time.Hour),
		StopAt:  now.Add(3 * time.Hour),
		Alarms:  []types.Alarm{notifAlarm(10, 30, types.LeadMinutes)},
	}
	late := &types.Event{
		ID:      2,
		Title:   "late",
		StartAt: now.Add(6 * time.Hour),
		StopAt:  now.Add(7 * time.Hour),
		Alarms:  []types.Alarm{notifAlarm(11, 30, types.LeadMinutes)},
	}
	events := &mockEventStore{
		candidates: []types.EventCandidate{
			{EventID: 2, MaxLeadMinutes: 30},
			{EventID: 1, MaxLeadMinutes: 30},
		},
		events: map[int64]*types.Event{1: early, 2: late},
	}

	s := newTestNotifyService(events, &mockCursorStore{}, nil)

	got, err := s.Due(context.Background(), now, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d payloads, want 2", len(got))
	}
	if got[0].Title != "early" || got[1].Title != "late" {
		t.Errorf("order = [%s, %s], want [early, late]", got[0].Title, got[1].Title)
	}
}

func TestNotifyDue_RecurringWalkTerminatesEarly(t *testing.T) {
	// An unbounded daily recurrence: only the occurrences whose earliest
	// trigger fits the 24h lookahead may be pulled from the iterator. The
	// counting expander proves the walk does not drain the sequence.
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	event := &types.Event{
		ID:        1,
		Title:     "daily sync",
		StartAt:   start,
		StopAt:    start.Add(time.Hour),
		Recurring: true,
		RRule:     "FREQ=DAILY",
		FinalAt:   types.FarFuture,
		Alarms:    []types.Alarm{notifAlarm(10, 30, types.LeadMinutes)},
	}
	events := &mockEventStore{
		candidates: []types.EventCandidate{{EventID: 1, Recurring: true, MaxLeadMinutes: 30}},
		events:     map[int64]*types.Event{1: event},
	}
	exp := &countingExpander{}

	s := newTestNotifyService(events, &mockCursorStore{}, exp)

	got, err := s.Due(context.Background(), now, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 09-01 10:00 triggers at 09:30 (due); 09-02 10:00 triggers at 09:30
	// which is beyond now+24h, ending the walk.
	if len(got) != 1 {
		t.Fatalf("got %d payloads, want 1", len(got))
	}
	if exp.pulled > 3 {
		t.Errorf("expander pulled %d occurrences, walk should stop within 3", exp.pulled)
	}
}

func TestNotifyDue_LongLivedRecurrenceSurfacesAfterAck(t *testing.T) {
	// Hourly series started a year ago: the elapsed occurrences outnumber
	// the default expansion cap, but expansion fast-forwards to the
	// partner's acknowledgement, so current triggers still surface.
	now := time.Date(2026, 9, 2, 8, 45, 0, 0, time.UTC)
	start := time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC)
	until := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)

	event := &types.Event{
		ID:        1,
		Title:     "ops check",
		StartAt:   start,
		StopAt:    start.Add(15 * time.Minute),
		Recurring: true,
		RRule:     "FREQ=HOURLY;UNTIL=20260902T100000Z",
		FinalAt:   until,
		Alarms:    []types.Alarm{notifAlarm(10, 30, types.LeadMinutes)},
		Attendees: []types.Attendee{{PartnerID: 7, State: types.AttendeeAccepted}},
	}
	events := &mockEventStore{
		candidates: []types.EventCandidate{{EventID: 1, Recurring: true, MaxLeadMinutes: 30}},
		events:     map[int64]*types.Event{1: event},
	}
	ack := time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC)
	cursors := &mockCursorStore{partnerAcks: map[int64]time.Time{7: ack}}

	s := newTestNotifyService(events, cursors, nil)

	got, err := s.Due(context.Background(), now, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The 09:00 and 10:00 occurrences trigger at 08:30 and 09:30, both
	// after the acknowledgement.
	if len(got) != 2 {
		t.Fatalf("got %d payloads %v, want 2", len(got), got)
	}
	wantFirst := time.Date(2026, 9, 2, 8, 30, 0, 0, time.UTC)
	if !got[0].NotifyAt.Equal(wantFirst) {
		t.Errorf("NotifyAt = %v, want %v", got[0].NotifyAt, wantFirst)
	}
}

func TestBuildReminderPayload_MessageFallsBackToDisplayTime(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	ev := &types.Event{ID: 1, Title: "review", StartAt: start, StopAt: start.Add(time.Hour)}
	trigger := types.TriggerInstance{
		Event:      ev,
		Alarm:      notifAlarm(10, 30, types.LeadMinutes),
		Occurrence: start,
		NotifyAt:   start.Add(-30 * time.Minute),
	}

	p := BuildReminderPayload(trigger, start.Add(-time.Hour))
	if !strings.Contains(p.Message, "Tuesday, September 1, 2026") {
		t.Errorf("Message = %q, want the display time", p.Message)
	}

	withBody := trigger
	withBody.Alarm.Body = "bring the slides"
	p = BuildReminderPayload(withBody, start)
	if p.Message != "bring the slides" {
		t.Errorf("Message = %q, want alarm body", p.Message)
	}
	if p.TimerSec != 0 {
		t.Errorf("TimerSec = %d, want 0 for elapsed trigger", p.TimerSec)
	}
}

func TestBuildReminderPayload_MessageShowsOccurrenceNotSeriesStart(t *testing.T) {
	// Weekly series started September 1; the reminder is for the
	// September 8 occurrence and must say so.
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	occ := start.AddDate(0, 0, 7)
	ev := &types.Event{
		ID:        1,
		Title:     "weekly sync",
		StartAt:   start,
		StopAt:    start.Add(time.Hour),
		Recurring: true,
		RRule:     "FREQ=WEEKLY",
	}
	trigger := types.TriggerInstance{
		Event:      ev,
		Alarm:      notifAlarm(10, 30, types.LeadMinutes),
		Occurrence: occ,
		NotifyAt:   occ.Add(-30 * time.Minute),
	}

	p := BuildReminderPayload(trigger, occ.Add(-time.Hour))
	if !strings.Contains(p.Message, "Tuesday, September 8, 2026") {
		t.Errorf("Message = %q, want the occurrence date", p.Message)
	}
	if strings.Contains(p.Message, "September 1") {
		t.Errorf("Message = %q, must not show the series start", p.Message)
	}
}

func TestDisplayTime_SameDayCompactsStop(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	ev := &types.Event{StartAt: start, StopAt: start.Add(time.Hour)}

	got := DisplayTime(ev, start)
	want := "Tuesday, September 1, 2026 at 10:00 UTC - 11:00 UTC"
	if got != want {
		t.Errorf("DisplayTime = %q, want %q", got, want)
	}
}

func TestDisplayTime_UsesOccurrenceWithStoredDuration(t *testing.T) {
	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	ev := &types.Event{StartAt: start, StopAt: start.Add(time.Hour)}
	occ := start.AddDate(0, 0, 7)

	got := DisplayTime(ev, occ)
	want := "Tuesday, September 8, 2026 at 10:00 UTC - 11:00 UTC"
	if got != want {
		t.Errorf("DisplayTime = %q, want %q", got, want)
	}

	// A zero occurrence falls back to the stored start.
	if got := DisplayTime(ev, time.Time{}); got != "Tuesday, September 1, 2026 at 10:00 UTC - 11:00 UTC" {
		t.Errorf("DisplayTime = %q, want the stored start", got)
	}
}
