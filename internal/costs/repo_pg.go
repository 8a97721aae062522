package costs

import (
	"context"
	"database/sql"
	"errors"
)

// PGChargeRepository stores charges in Postgres.
//
// Expected table:
//
//	call_charges (
//	  call_record_id UUID PRIMARY KEY REFERENCES call_records(id),
//	  company_id TEXT NOT NULL,
//	  amount_minor BIGINT NOT NULL,
//	  currency TEXT NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL
//	)
type PGChargeRepository struct {
	db *sql.DB
}

func NewPGChargeRepository(db *sql.DB) *PGChargeRepository {
	return &PGChargeRepository{db: db}
}

func (r *PGChargeRepository) Insert(ctx context.Context, ch Charge) (bool, error) {
	const q = `
INSERT INTO call_charges (call_record_id, company_id, amount_minor, currency, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (call_record_id) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q, ch.CallRecordID, ch.CompanyID, ch.AmountMinor, ch.Currency, ch.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PGChargeRepository) GetByCallRecordID(ctx context.Context, callRecordID string) (Charge, bool, error) {
	const q = `
SELECT call_record_id, company_id, amount_minor, currency, created_at
FROM call_charges
WHERE call_record_id = $1
`
	var ch Charge
	err := r.db.QueryRowContext(ctx, q, callRecordID).Scan(
		&ch.CallRecordID, &ch.CompanyID, &ch.AmountMinor, &ch.Currency, &ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Charge{}, false, nil
		}
		return Charge{}, false, err
	}
	return ch, true, nil
}
