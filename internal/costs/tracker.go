package costs

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidCharge = errors.New("invalid charge")

// Charge is one persisted cost entry for a terminal call.
type Charge struct {
	CallRecordID string    `json:"call_record_id"`
	CompanyID    string    `json:"company_id"`
	AmountMinor  int64     `json:"amount_minor"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChargeRepository persists charges exactly once per call record. Insert
// reports false when a charge for the record already exists.
type ChargeRepository interface {
	Insert(ctx context.Context, ch Charge) (bool, error)
	GetByCallRecordID(ctx context.Context, callRecordID string) (Charge, bool, error)
}

// Tracker records call costs. Re-tracking the same record is a no-op, so
// webhook redelivery at conference end cannot double-charge.
type Tracker struct {
	repo  ChargeRepository
	clock func() time.Time
}

func NewTracker(repo ChargeRepository) *Tracker {
	return &Tracker{repo: repo, clock: time.Now}
}

func (t *Tracker) SetClock(clock func() time.Time) { t.clock = clock }

// TrackCost persists the charge. Reports false when the record was already
// charged.
func (t *Tracker) TrackCost(ctx context.Context, callRecordID, companyID string, amountMinor int64, currency string) (bool, error) {
	if callRecordID == "" || currency == "" || amountMinor < 0 {
		return false, ErrInvalidCharge
	}
	return t.repo.Insert(ctx, Charge{
		CallRecordID: callRecordID,
		CompanyID:    companyID,
		AmountMinor:  amountMinor,
		Currency:     currency,
		CreatedAt:    t.clock().UTC(),
	})
}
