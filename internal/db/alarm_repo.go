package db

import (
	"context"
	"time"

	"calwatch/internal/types"
)

// AlarmRepository provides data access for the calendar_alarms table and the
// direct alarms-to-events join used by the reminder pass fast path.
type AlarmRepository struct {
	db DBTX
}

// NewAlarmRepository creates a new AlarmRepository backed by the given
// database connection (pool or transaction).
func NewAlarmRepository(db DBTX) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// DueNonRecurring returns (event, alarm) pairs of non-recurring events whose
// literal trigger time (start - lead) falls in (cursor, upper). This is the
// reminder pass's main performance lever: due alarms on plain events are one
// indexed join instead of a recurrence walk per event.
//
// The lower bound is exclusive to honor the cursor contract: a trigger at or
// before the cursor was delivered (or deliberately skipped) by an earlier
// pass and must not fire again.
func (r *AlarmRepository) DueNonRecurring(ctx context.Context, kinds []types.AlarmType, cursor, upper time.Time) ([]types.DueAlarm, error) {
	rows, err := r.db.Query(ctx, `
		SELECT ev.id, al.id
		FROM calendar_events AS ev
		JOIN calendar_event_alarms AS rel ON rel.event_id = ev.id
		JOIN calendar_alarms AS al ON al.id = rel.alarm_id
		WHERE ev.active
		  AND NOT ev.recurring
		  AND al.type = ANY($1)
		  AND ev.start_at - make_interval(mins => al.lead_minutes) > $2
		  AND ev.start_at - make_interval(mins => al.lead_minutes) < $3`,
		alarmTypeStrings(kinds), cursor, upper)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due alarms", err)
	}
	defer rows.Close()

	var out []types.DueAlarm
	for rows.Next() {
		var p types.DueAlarm
		if err := rows.Scan(&p.EventID, &p.AlarmID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan due alarm", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read due alarms", err)
	}

	return out, nil
}

// GetAlarms loads alarm definitions by id, keyed by alarm id.
func (r *AlarmRepository) GetAlarms(ctx context.Context, ids []int64) (map[int64]types.Alarm, error) {
	if len(ids) == 0 {
		return map[int64]types.Alarm{}, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, type, lead, lead_unit, COALESCE(body, ''),
		       COALESCE(mail_template, '')
		FROM calendar_alarms
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query alarms", err)
	}
	defer rows.Close()

	out := make(map[int64]types.Alarm, len(ids))
	for rows.Next() {
		var a types.Alarm
		if err := rows.Scan(&a.ID, &a.Name, &a.Type, &a.Lead, &a.LeadUnit,
			&a.Body, &a.MailTemplate); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alarm", err)
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}
