package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"calwatch/internal/types"
)

// GlobalCursorKey is the app_settings key holding the reminder pass
// watermark. Triggers at or before this instant have been handled (or
// deliberately skipped) by an earlier pass.
const GlobalCursorKey = "reminder.last_cron_run"

// CursorRepository persists the two reminder watermarks: the process-wide
// pass cursor in the app_settings key/value table, and the per-partner
// acknowledgement timestamp on the partners table.
type CursorRepository struct {
	db DBTX
}

// NewCursorRepository creates a new CursorRepository backed by the given
// database connection (pool or transaction).
func NewCursorRepository(db DBTX) *CursorRepository {
	return &CursorRepository{db: db}
}

// GlobalCursor returns the pass watermark. ok is false when no pass has ever
// completed; the caller decides the bootstrap value.
func (r *CursorRepository) GlobalCursor(ctx context.Context) (cursor time.Time, ok bool, err error) {
	row := r.db.QueryRow(ctx,
		`SELECT value::timestamptz FROM app_settings WHERE key = $1`, GlobalCursorKey)

	if err := row.Scan(&cursor); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, types.NewAppError(types.ErrCodeInternalDB, "failed to read global cursor", err)
	}
	return cursor.UTC(), true, nil
}

// SetGlobalCursor advances the pass watermark. The value is written as
// RFC3339 text so the settings table stays human-readable.
func (r *CursorRepository) SetGlobalCursor(ctx context.Context, t time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO app_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		GlobalCursorKey, t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set global cursor", err)
	}
	return nil
}

// PartnerCursor returns the partner's last acknowledgement timestamp, or nil
// when the partner has never acknowledged a notification.
func (r *CursorRepository) PartnerCursor(ctx context.Context, partnerID int64) (*time.Time, error) {
	row := r.db.QueryRow(ctx,
		`SELECT last_notif_ack FROM partners WHERE id = $1`, partnerID)

	var ack *time.Time
	if err := row.Scan(&ack); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPartner, "partner not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read partner cursor", err)
	}
	return ack, nil
}

// AckPartner advances the partner's acknowledgement watermark. The update is
// monotonic: an older timestamp never overwrites a newer one, so concurrent
// acknowledgements from two sessions cannot move the cursor backwards.
func (r *CursorRepository) AckPartner(ctx context.Context, partnerID int64, t time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE partners
		SET last_notif_ack = $2
		WHERE id = $1
		  AND (last_notif_ack IS NULL OR last_notif_ack < $2)`,
		partnerID, t.UTC())
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ack partner", err)
	}
	// Zero rows affected is fine: either the partner does not exist (the
	// auth layer already guarantees it does) or a newer ack won the race.
	_ = tag
	return nil
}
