package alarm

import (
	"context"
	"io"
	"log/slog"
	"time"

	"calwatch/internal/recurrence"
	"calwatch/internal/types"
)

// discardLogger silences engine logging in tests.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

// candidateCall records one CandidateEvents invocation.
type candidateCall struct {
	Kinds     []types.AlarmType
	Now       time.Time
	Upper     time.Time
	PartnerID *int64
}

// mockEventStore records calls and returns configured results.
type mockEventStore struct {
	candidates     []types.EventCandidate
	candidateErr   error
	candidateCalls []candidateCall

	nextTrigger    *time.Time
	nextTriggerErr error

	events    map[int64]*types.Event
	eventsErr error
}

func (m *mockEventStore) CandidateEvents(_ context.Context, kinds []types.AlarmType, now, upper time.Time, partnerID *int64) ([]types.EventCandidate, error) {
	m.candidateCalls = append(m.candidateCalls, candidateCall{
		Kinds:     kinds,
		Now:       now,
		Upper:     upper,
		PartnerID: partnerID,
	})
	if m.candidateErr != nil {
		return nil, m.candidateErr
	}
	return m.candidates, nil
}

func (m *mockEventStore) NextTriggerAfter(_ context.Context, _ []types.AlarmType, _ time.Time) (*time.Time, error) {
	if m.nextTriggerErr != nil {
		return nil, m.nextTriggerErr
	}
	return m.nextTrigger, nil
}

func (m *mockEventStore) GetEvents(_ context.Context, ids []int64) (map[int64]*types.Event, error) {
	if m.eventsErr != nil {
		return nil, m.eventsErr
	}
	out := make(map[int64]*types.Event, len(ids))
	for _, id := range ids {
		if ev, ok := m.events[id]; ok {
			out[id] = ev
		}
	}
	return out, nil
}

// mockAccess allows everything unless readable is set, in which case only
// the listed ids pass.
type mockAccess struct {
	readable []int64
	err      error
}

func (m *mockAccess) ReadableEventIDs(_ context.Context, _ types.Actor, ids []int64) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.readable == nil {
		return ids, nil
	}
	return m.readable, nil
}

// mockAlarmStore serves the non-recurring fast path.
type mockAlarmStore struct {
	due    []types.DueAlarm
	err    error
	cursor time.Time
	upper  time.Time
}

func (m *mockAlarmStore) DueNonRecurring(_ context.Context, _ []types.AlarmType, cursor, upper time.Time) ([]types.DueAlarm, error) {
	m.cursor = cursor
	m.upper = upper
	if m.err != nil {
		return nil, m.err
	}
	return m.due, nil
}

// mockCursorStore is an in-memory watermark store.
type mockCursorStore struct {
	global    time.Time
	globalSet bool
	setCalls  []time.Time
	globalErr error
	setErr    error

	partnerAcks map[int64]time.Time
	partnerErr  error
}

func (m *mockCursorStore) GlobalCursor(_ context.Context) (time.Time, bool, error) {
	if m.globalErr != nil {
		return time.Time{}, false, m.globalErr
	}
	return m.global, m.globalSet, nil
}

func (m *mockCursorStore) SetGlobalCursor(_ context.Context, t time.Time) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.setCalls = append(m.setCalls, t)
	m.global = t
	m.globalSet = true
	return nil
}

func (m *mockCursorStore) PartnerCursor(_ context.Context, partnerID int64) (*time.Time, error) {
	if m.partnerErr != nil {
		return nil, m.partnerErr
	}
	if t, ok := m.partnerAcks[partnerID]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *mockCursorStore) AckPartner(_ context.Context, partnerID int64, t time.Time) error {
	if m.partnerAcks == nil {
		m.partnerAcks = make(map[int64]time.Time)
	}
	if existing, ok := m.partnerAcks[partnerID]; !ok || existing.Before(t) {
		m.partnerAcks[partnerID] = t
	}
	return nil
}

// mockMail records sent batches and optionally fails.
type mockMail struct {
	batches []MailBatch
	err     error
}

func (m *mockMail) SendReminderBatch(_ context.Context, batch MailBatch) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, batch)
	return nil
}

// publishedReminder records one PublishReminder invocation.
type publishedReminder struct {
	PartnerID int64
	Payload   types.ReminderPayload
}

// mockBus records published payloads and optionally fails.
type mockBus struct {
	published []publishedReminder
	err       error
}

func (m *mockBus) PublishReminder(_ context.Context, partnerID int64, payload types.ReminderPayload) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, publishedReminder{PartnerID: partnerID, Payload: payload})
	return nil
}

// mockRecorder captures the stats handed to RecordPass.
type mockRecorder struct {
	recorded []PassStats
}

func (m *mockRecorder) RecordPass(_ context.Context, stats PassStats) {
	m.recorded = append(m.recorded, stats)
}

// countingExpander produces an unbounded daily sequence from each event's
// start and counts how many occurrences were pulled, so tests can assert
// that walks terminate early instead of draining the sequence. Occurrences
// before from are not yielded and not counted, matching the real expander.
type countingExpander struct {
	pulled int
}

func (c *countingExpander) Expand(ev *types.Event, from time.Time) (recurrence.Next, error) {
	next := ev.StartAt.UTC()
	for next.Before(from) {
		next = next.Add(24 * time.Hour)
	}
	return func() (time.Time, bool) {
		c.pulled++
		t := next
		next = next.Add(24 * time.Hour)
		return t, true
	}, nil
}
