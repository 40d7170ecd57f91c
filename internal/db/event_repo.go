package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"calwatch/internal/types"
)

// EventRepository provides data access for the calendar_events table and its
// alarm/attendee relations. The candidate query is the coarse pre-filter of
// the reminder engine: it pushes the lead-time window test into SQL so the
// engine never iterates the full event population.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates a new EventRepository backed by the given
// database connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// candidateQuery aggregates, per event, the max/min lead minutes among the
// attached alarms of the requested types, then keeps only events whose
// earliest possible trigger (start - max_lead) precedes the upper bound and
// whose effective end has not yet elapsed. Filtering on start alone would be
// wrong: the earliest possible alert of an event is start - max_lead, and
// the latest is its effective end - min_lead.
//
// lead_minutes is a generated column on calendar_alarms
// (lead * unit multiplier), so the window test stays index-friendly.
const candidateQuery = `
	SELECT
		sub.id,
		sub.first_alarm,
		sub.last_alarm,
		sub.start_at,
		sub.last_event,
		sub.min_lead,
		sub.max_lead,
		sub.recurring,
		COALESCE(sub.rrule, '')
	FROM (
		SELECT
			ev.id,
			ev.start_at - make_interval(mins => agg.max_lead) AS first_alarm,
			CASE WHEN ev.recurring THEN ev.final_at ELSE ev.stop_at END
				- make_interval(mins => agg.min_lead) AS last_alarm,
			ev.start_at,
			CASE WHEN ev.recurring THEN ev.final_at ELSE ev.stop_at END AS last_event,
			agg.min_lead,
			agg.max_lead,
			ev.recurring,
			ev.rrule
		FROM calendar_events AS ev
		JOIN (
			SELECT
				rel.event_id,
				MAX(al.lead_minutes) AS max_lead,
				MIN(al.lead_minutes) AS min_lead
			FROM calendar_event_alarms AS rel
			JOIN calendar_alarms AS al ON al.id = rel.alarm_id
			WHERE al.type = ANY($1)
			GROUP BY rel.event_id
		) AS agg ON agg.event_id = ev.id
		WHERE ev.active
	) AS sub
	WHERE sub.first_alarm < $2
	  AND sub.last_event > $3`

// candidateQueryForPartner is candidateQuery restricted to events where the
// given partner is an attendee.
const candidateQueryForPartner = `
	SELECT
		sub.id,
		sub.first_alarm,
		sub.last_alarm,
		sub.start_at,
		sub.last_event,
		sub.min_lead,
		sub.max_lead,
		sub.recurring,
		COALESCE(sub.rrule, '')
	FROM (
		SELECT
			ev.id,
			ev.start_at - make_interval(mins => agg.max_lead) AS first_alarm,
			CASE WHEN ev.recurring THEN ev.final_at ELSE ev.stop_at END
				- make_interval(mins => agg.min_lead) AS last_alarm,
			ev.start_at,
			CASE WHEN ev.recurring THEN ev.final_at ELSE ev.stop_at END AS last_event,
			agg.min_lead,
			agg.max_lead,
			ev.recurring,
			ev.rrule
		FROM calendar_events AS ev
		JOIN (
			SELECT
				rel.event_id,
				MAX(al.lead_minutes) AS max_lead,
				MIN(al.lead_minutes) AS min_lead
			FROM calendar_event_alarms AS rel
			JOIN calendar_alarms AS al ON al.id = rel.alarm_id
			WHERE al.type = ANY($1)
			GROUP BY rel.event_id
		) AS agg ON agg.event_id = ev.id
		JOIN calendar_event_attendees AS att
			ON att.event_id = ev.id AND att.partner_id = $4
		WHERE ev.active
	) AS sub
	WHERE sub.first_alarm < $2
	  AND sub.last_event > $3`

// CandidateEvents returns the events whose alarm window could intersect
// (now, upper). kinds selects which alarm channels participate in the
// aggregation; partnerID, when non-nil, restricts to events the partner
// attends. Result order is unspecified.
func (r *EventRepository) CandidateEvents(ctx context.Context, kinds []types.AlarmType, now, upper time.Time, partnerID *int64) ([]types.EventCandidate, error) {
	kindStrs := alarmTypeStrings(kinds)

	var (
		rows pgx.Rows
		err  error
	)
	if partnerID != nil {
		rows, err = r.db.Query(ctx, candidateQueryForPartner, kindStrs, upper, now, *partnerID)
	} else {
		rows, err = r.db.Query(ctx, candidateQuery, kindStrs, upper, now)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query candidate events", err)
	}
	defer rows.Close()

	var out []types.EventCandidate
	for rows.Next() {
		var c types.EventCandidate
		if err := rows.Scan(
			&c.EventID,
			&c.FirstAlarm,
			&c.LastAlarm,
			&c.FirstStart,
			&c.LastEnd,
			&c.MinLeadMinutes,
			&c.MaxLeadMinutes,
			&c.Recurring,
			&c.RRule,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan candidate event", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read candidate events", err)
	}

	return out, nil
}

// NextTriggerAfter returns the earliest trigger time (start - lead) strictly
// after the given instant across all active events with alarms of the
// requested types, or nil when no future trigger exists. Used to bootstrap
// the candidate horizon when the caller supplies none.
func (r *EventRepository) NextTriggerAfter(ctx context.Context, kinds []types.AlarmType, after time.Time) (*time.Time, error) {
	row := r.db.QueryRow(ctx, `
		SELECT MIN(ev.start_at - make_interval(mins => al.lead_minutes))
		FROM calendar_events AS ev
		JOIN calendar_event_alarms AS rel ON rel.event_id = ev.id
		JOIN calendar_alarms AS al ON al.id = rel.alarm_id
		WHERE ev.active
		  AND al.type = ANY($1)
		  AND ev.start_at - make_interval(mins => al.lead_minutes) > $2`,
		alarmTypeStrings(kinds), after)

	var next *time.Time
	if err := row.Scan(&next); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query next trigger", err)
	}
	return next, nil
}

// GetEvents loads the given events hydrated with their alarms and attendees.
// Missing ids are silently absent from the result; the map is keyed by
// event id.
func (r *EventRepository) GetEvents(ctx context.Context, ids []int64) (map[int64]*types.Event, error) {
	if len(ids) == 0 {
		return map[int64]*types.Event{}, nil
	}

	events := make(map[int64]*types.Event, len(ids))

	rows, err := r.db.Query(ctx, `
		SELECT id, title, start_at, stop_at, recurring, COALESCE(rrule, ''),
		       COALESCE(exdates, '{}'), final_at, active
		FROM calendar_events
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query events", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev types.Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.StartAt, &ev.StopAt,
			&ev.Recurring, &ev.RRule, &ev.ExDates, &ev.FinalAt, &ev.Active); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan event", err)
		}
		events[ev.ID] = &ev
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read events", err)
	}

	if err := r.attachAlarms(ctx, events, ids); err != nil {
		return nil, err
	}
	if err := r.attachAttendees(ctx, events, ids); err != nil {
		return nil, err
	}

	return events, nil
}

// attachAlarms hydrates the Alarms slice of each loaded event.
func (r *EventRepository) attachAlarms(ctx context.Context, events map[int64]*types.Event, ids []int64) error {
	rows, err := r.db.Query(ctx, `
		SELECT rel.event_id, al.id, al.name, al.type, al.lead, al.lead_unit,
		       COALESCE(al.body, ''), COALESCE(al.mail_template, '')
		FROM calendar_event_alarms AS rel
		JOIN calendar_alarms AS al ON al.id = rel.alarm_id
		WHERE rel.event_id = ANY($1)`, ids)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to query event alarms", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID int64
			a       types.Alarm
		)
		if err := rows.Scan(&eventID, &a.ID, &a.Name, &a.Type, &a.Lead,
			&a.LeadUnit, &a.Body, &a.MailTemplate); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to scan event alarm", err)
		}
		if ev, ok := events[eventID]; ok {
			ev.Alarms = append(ev.Alarms, a)
		}
	}
	return rows.Err()
}

// attachAttendees hydrates the Attendees slice of each loaded event.
func (r *EventRepository) attachAttendees(ctx context.Context, events map[int64]*types.Event, ids []int64) error {
	rows, err := r.db.Query(ctx, `
		SELECT att.event_id, att.partner_id, p.name, p.email, att.state
		FROM calendar_event_attendees AS att
		JOIN partners AS p ON p.id = att.partner_id
		WHERE att.event_id = ANY($1)`, ids)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to query event attendees", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID int64
			a       types.Attendee
		)
		if err := rows.Scan(&eventID, &a.PartnerID, &a.Name, &a.Email, &a.State); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to scan event attendee", err)
		}
		if ev, ok := events[eventID]; ok {
			ev.Attendees = append(ev.Attendees, a)
		}
	}
	return rows.Err()
}

// ReadableEventIDs returns the subset of ids the actor may read. System
// actors (the cron worker) read everything; partners read the events they
// attend. Unreadable events are silently excluded, never an error.
func (r *EventRepository) ReadableEventIDs(ctx context.Context, actor types.Actor, ids []int64) ([]int64, error) {
	if actor.System {
		return ids, nil
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT event_id
		FROM calendar_event_attendees
		WHERE partner_id = $1 AND event_id = ANY($2)`, actor.PartnerID, ids)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query readable events", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan readable event id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// alarmTypeStrings converts alarm types to plain strings for ANY($n)
// parameters; pgx encodes []string as a text array.
func alarmTypeStrings(kinds []types.AlarmType) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
