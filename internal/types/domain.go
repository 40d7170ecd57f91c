package types

import "time"

// FarFuture is the sentinel used as the effective end of an unbounded
// recurrence. Candidate selection compares against it instead of handling
// NULL recurrence ends as a special case.
var FarFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Event is a calendar event, possibly recurring. The reminder engine treats
// events as read-only; calendar management owns their lifecycle.
//
// All timestamps are UTC. For recurring events StartAt is the first
// occurrence and FinalAt is the end of the recurrence (FarFuture when the
// rule is unbounded); occurrences in between come from the recurrence
// expander, never from this struct.
type Event struct {
	ID        int64       `json:"id" db:"id"`
	Title     string      `json:"title" db:"title"`
	StartAt   time.Time   `json:"start_at" db:"start_at"`
	StopAt    time.Time   `json:"stop_at" db:"stop_at"`
	Recurring bool        `json:"recurring" db:"recurring"`
	RRule     string      `json:"rrule,omitempty" db:"rrule"`
	ExDates   []time.Time `json:"exdates,omitempty" db:"exdates"`
	FinalAt   time.Time   `json:"final_at" db:"final_at"`
	Active    bool        `json:"active" db:"active"`

	// Hydrated relations (not columns on calendar_events).
	Alarms    []Alarm    `json:"alarms,omitempty" db:"-"`
	Attendees []Attendee `json:"attendees,omitempty" db:"-"`
}

// EffectiveEnd is the last instant the event can still matter for alarms:
// the recurrence end for recurring events, the stop time otherwise.
func (e *Event) EffectiveEnd() time.Time {
	if e.Recurring {
		return e.FinalAt
	}
	return e.StopAt
}

// AlarmsOfType returns the attached alarms matching any of the given types.
func (e *Event) AlarmsOfType(kinds ...AlarmType) []Alarm {
	var out []Alarm
	for _, a := range e.Alarms {
		for _, k := range kinds {
			if a.Type == k {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Alarm is a reusable reminder definition attached many-to-many to events.
// Immutable from the engine's point of view during an evaluation pass.
type Alarm struct {
	ID       int64     `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	Type     AlarmType `json:"type" db:"type"`
	Lead     int       `json:"lead" db:"lead"`
	LeadUnit LeadUnit  `json:"lead_unit" db:"lead_unit"`
	Body     string    `json:"body,omitempty" db:"body"`
	// MailTemplate names the template used for email-type alarms.
	// Empty means the default reminder template.
	MailTemplate string `json:"mail_template,omitempty" db:"mail_template"`
}

// LeadMinutes is the alarm's lead time normalized to whole minutes.
func (a Alarm) LeadMinutes() int {
	return NormalizeLead(a.Lead, a.LeadUnit)
}

// LeadDuration is the lead time as a time.Duration for trigger arithmetic.
func (a Alarm) LeadDuration() time.Duration {
	return time.Duration(a.LeadMinutes()) * time.Minute
}

// Attendee links a partner to an event together with their invitation state.
type Attendee struct {
	PartnerID int64         `json:"partner_id" db:"partner_id"`
	Name      string        `json:"name" db:"name"`
	Email     string        `json:"email" db:"email"`
	State     AttendeeState `json:"state" db:"state"`
}

// Partner is a notification recipient. LastNotifAck is the per-user
// watermark for the interactive notification channel; nil means the
// partner has never acknowledged anything.
type Partner struct {
	ID           int64      `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Email        string     `json:"email" db:"email"`
	LastNotifAck *time.Time `json:"last_notif_ack,omitempty" db:"last_notif_ack"`
	APIKeyHash   string     `json:"-" db:"api_key_hash"`
}

// EventCandidate is one row of the bulk candidate pre-filter: an event whose
// alarm window could intersect the current horizon, together with the
// aggregated lead-time bounds across its attached alarms of the requested
// types. FirstAlarm/LastAlarm are derived in SQL from those bounds so the
// selection predicate never has to expand individual alarms.
type EventCandidate struct {
	EventID        int64
	FirstAlarm     time.Time // StartAt - MaxLeadMinutes: earliest possible trigger
	LastAlarm      time.Time // EffectiveEnd - MinLeadMinutes: latest possible trigger
	FirstStart     time.Time
	LastEnd        time.Time // recurrence end for recurring events, else StopAt
	MinLeadMinutes int
	MaxLeadMinutes int
	Recurring      bool
	RRule          string
}

// DueAlarm is one (event, alarm) match from the due-alarm join used by the
// reminder pass fast path for non-recurring events.
type DueAlarm struct {
	EventID int64
	AlarmID int64
}

// TriggerInstance is one (event, occurrence, alarm) triple whose trigger
// time fell inside the current evaluation window. It exists only for the
// duration of one pass and is consumed immediately by the dispatcher.
// Occurrence is the concrete occurrence start being reminded about, which
// for recurring events is usually not the series' stored start.
type TriggerInstance struct {
	Event      *Event
	Alarm      Alarm
	Occurrence time.Time
	NotifyAt   time.Time
}

// ReminderPayload is the lightweight DTO handed to the real-time delivery
// collaborator and returned by the interactive notification endpoint.
type ReminderPayload struct {
	EventID  int64     `json:"event_id"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	TimerSec int64     `json:"timer"`
	NotifyAt time.Time `json:"notify_at"`
}
