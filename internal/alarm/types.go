// Package alarm implements the calendar reminder engine: the candidate
// pre-filter that narrows the event population to the few events whose alarm
// window intersects the current horizon, the per-occurrence trigger
// evaluation, and the two dispatcher modes (the cron reminder pass and the
// interactive per-partner notification path) built on top of them.
//
// The engine is read-only with respect to events and alarms; the only state
// it owns is the pair of watermarks behind CursorStore. All timestamps are
// compared in UTC at whole-minute lead precision.
package alarm

import (
	"context"
	"time"

	"calwatch/internal/recurrence"
	"calwatch/internal/types"
)

// EventStore is the bulk query interface the engine needs from the event
// side of the store. Implemented by db.EventRepository.
type EventStore interface {
	// CandidateEvents performs the aggregated pre-filter read: per event,
	// the max/min lead minutes among attached alarms of the given types,
	// the event's start, its effective end, and its recurrence rule.
	CandidateEvents(ctx context.Context, kinds []types.AlarmType, now, upper time.Time, partnerID *int64) ([]types.EventCandidate, error)

	// NextTriggerAfter returns the earliest trigger time strictly after the
	// given instant, or nil when none exists.
	NextTriggerAfter(ctx context.Context, kinds []types.AlarmType, after time.Time) (*time.Time, error)

	// GetEvents loads events hydrated with alarms and attendees.
	GetEvents(ctx context.Context, ids []int64) (map[int64]*types.Event, error)
}

// AlarmStore is the direct-join query interface for the reminder pass fast
// path. Implemented by db.AlarmRepository.
type AlarmStore interface {
	// DueNonRecurring returns (event, alarm) pairs of non-recurring events
	// whose trigger time falls in (cursor, upper).
	DueNonRecurring(ctx context.Context, kinds []types.AlarmType, cursor, upper time.Time) ([]types.DueAlarm, error)
}

// CursorStore persists the two reminder watermarks. Implemented by
// db.CursorRepository; tests inject an in-memory fake.
type CursorStore interface {
	GlobalCursor(ctx context.Context) (cursor time.Time, ok bool, err error)
	SetGlobalCursor(ctx context.Context, t time.Time) error
	PartnerCursor(ctx context.Context, partnerID int64) (*time.Time, error)
	AckPartner(ctx context.Context, partnerID int64, t time.Time) error
}

// AccessChecker filters event ids down to those the acting identity may
// read. Unreadable events are silently excluded, never an error.
type AccessChecker interface {
	ReadableEventIDs(ctx context.Context, actor types.Actor, ids []int64) ([]int64, error)
}

// OccurrenceExpander expands an event's recurrence specification into an
// ascending lazy sequence of occurrence times, starting at the first
// occurrence at or after from. Satisfied by *recurrence.Expander.
type OccurrenceExpander interface {
	Expand(ev *types.Event, from time.Time) (recurrence.Next, error)
}

// MailItem is one due reminder within a mail batch: the event occurrence it
// belongs to and the recipients resolved for it.
type MailItem struct {
	Event      *types.Event
	Occurrence time.Time
	NotifyAt   time.Time
	Recipients []types.Attendee
}

// MailBatch groups every due trigger sharing one alarm definition so a
// single transport call covers all events using that alarm's template.
type MailBatch struct {
	Alarm types.Alarm
	Items []MailItem
}

// MailTransport performs the outbound email send for one batch. Failure is
// reported per batch, not per recipient.
type MailTransport interface {
	SendReminderBatch(ctx context.Context, batch MailBatch) error
}

// BusPublisher hands reminder payloads to the real-time delivery
// collaborator. Fire-and-forget from the engine's perspective.
type BusPublisher interface {
	PublishReminder(ctx context.Context, partnerID int64, payload types.ReminderPayload) error
}

// mailKinds and notifKinds select the alarm channels each dispatcher mode
// cares about. The reminder pass drives both channels; the interactive path
// only surfaces notification alarms.
var (
	mailKinds  = []types.AlarmType{types.AlarmEmail}
	notifKinds = []types.AlarmType{types.AlarmNotification}
	allKinds   = []types.AlarmType{types.AlarmNotification, types.AlarmEmail}
)
