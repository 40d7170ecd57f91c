package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"calwatch/internal/types"
)

// PartnerRepository provides data access for the partners table.
type PartnerRepository struct {
	db DBTX
}

// NewPartnerRepository creates a new PartnerRepository backed by the given
// database connection (pool or transaction).
func NewPartnerRepository(db DBTX) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// GetPartner loads a partner by id, including the API key hash used by the
// auth middleware.
func (r *PartnerRepository) GetPartner(ctx context.Context, id int64) (*types.Partner, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, last_notif_ack, COALESCE(api_key_hash, '')
		FROM partners
		WHERE id = $1`, id)

	var p types.Partner
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.LastNotifAck, &p.APIKeyHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPartner, "partner not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query partner", err)
	}
	return &p, nil
}
