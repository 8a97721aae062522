package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"voicebridge/pkg/utils"

	"github.com/google/uuid"
)

// PGRepository persists call records in Postgres.
//
// Expected table:
//
//	call_records (
//	  id UUID PRIMARY KEY,
//	  call_sid TEXT UNIQUE NOT NULL,
//	  company_id TEXT NOT NULL,
//	  channel_id TEXT, contact_id TEXT, conversation_id TEXT,
//	  flow_id TEXT, flow_node_id TEXT,
//	  status TEXT NOT NULL,
//	  direction TEXT NOT NULL,
//	  from_number TEXT, to_number TEXT,
//	  duration_seconds INT NOT NULL DEFAULT 0,
//	  recording_url TEXT, transcript TEXT,
//	  metadata JSONB NOT NULL DEFAULT '{}',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL,
//	  ended_at TIMESTAMPTZ
//	)
type PGRepository struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db, clock: time.Now}
}

const recordColumns = `
id, call_sid, company_id, channel_id, contact_id, conversation_id,
flow_id, flow_node_id, status, direction, from_number, to_number,
duration_seconds, recording_url, transcript, metadata, created_at, updated_at, ended_at
`

func (r *PGRepository) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.CallSID == "" || rec.CompanyID == "" {
		return Record{}, ErrInvalidArgument
	}
	now := r.clock().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return Record{}, err
	}

	const q = `
INSERT INTO call_records (
  id, call_sid, company_id, channel_id, contact_id, conversation_id,
  flow_id, flow_node_id, status, direction, from_number, to_number,
  duration_seconds, recording_url, transcript, metadata, created_at, updated_at, ended_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)
ON CONFLICT (call_sid) DO NOTHING
`
	res, err := r.db.ExecContext(ctx, q,
		rec.ID, rec.CallSID, rec.CompanyID, rec.ChannelID, rec.ContactID, rec.ConversationID,
		rec.FlowID, rec.FlowNodeID, rec.Status, rec.Direction, rec.From, rec.To,
		rec.DurationSeconds, rec.RecordingURL, rec.Transcript, meta, rec.CreatedAt, rec.UpdatedAt, rec.EndedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Duplicate delivery of the same initiation; return the existing row.
		return r.GetByCallSID(ctx, rec.CallSID)
	}
	return rec, nil
}

func (r *PGRepository) GetByCallSID(ctx context.Context, callSID string) (Record, error) {
	if callSID == "" {
		return Record{}, ErrInvalidArgument
	}
	const q = `SELECT ` + recordColumns + ` FROM call_records WHERE call_sid = $1`
	return scanRecord(r.db.QueryRowContext(ctx, q, callSID))
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrInvalidArgument
	}
	const q = `SELECT ` + recordColumns + ` FROM call_records WHERE id = $1`
	return scanRecord(r.db.QueryRowContext(ctx, q, id))
}

func (r *PGRepository) ApplyStatus(ctx context.Context, callSID, status string, durationSec *int, endedAt *time.Time) (Record, bool, error) {
	if callSID == "" || status == "" {
		return Record{}, false, ErrInvalidArgument
	}
	now := r.clock().UTC()

	const q = `
UPDATE call_records
SET status = $2,
    duration_seconds = COALESCE($3, duration_seconds),
    ended_at = COALESCE($4, ended_at),
    updated_at = $5
WHERE call_sid = $1
RETURNING ` + recordColumns
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, callSID, status, durationSec, endedAt, now))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *PGRepository) SetTranscript(ctx context.Context, callSID, transcript string) error {
	if callSID == "" {
		return ErrInvalidArgument
	}
	const q = `UPDATE call_records SET transcript = $2, updated_at = $3 WHERE call_sid = $1`
	_, err := r.db.ExecContext(ctx, q, callSID, transcript, r.clock().UTC())
	return err
}

func (r *PGRepository) UpdateMetadata(ctx context.Context, id string, mutate func(*Metadata)) (Record, bool, error) {
	if id == "" || mutate == nil {
		return Record{}, false, ErrInvalidArgument
	}
	now := r.clock().UTC()

	var out Record
	found := false
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const sel = `SELECT ` + recordColumns + ` FROM call_records WHERE id = $1 FOR UPDATE`
		rec, err := scanRecord(tx.QueryRowContext(ctx, sel, id))
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return err
		}

		mutate(&rec.Metadata)
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}

		const upd = `UPDATE call_records SET metadata = $2, updated_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, upd, id, meta, now); err != nil {
			return err
		}
		rec.UpdatedAt = now
		out = rec
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, err
	}
	return out, found, nil
}

func (r *PGRepository) ListOpenConferences(ctx context.Context, startedBefore time.Time) ([]Record, error) {
	const q = `
SELECT ` + recordColumns + `
FROM call_records
WHERE metadata->>'conference_sid' IS NOT NULL
  AND metadata->>'conference_ended_at' IS NULL
  AND (metadata->>'conference_started_at')::timestamptz < $1
  AND status NOT IN ('completed','failed','busy','no-answer','canceled')
`
	rows, err := r.db.QueryContext(ctx, q, startedBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var channelID, contactID, conversationID, flowID, flowNodeID sql.NullString
	var from, to, recordingURL, transcript sql.NullString
	var meta []byte
	var endedAt sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.CallSID, &rec.CompanyID, &channelID, &contactID, &conversationID,
		&flowID, &flowNodeID, &rec.Status, &rec.Direction, &from, &to,
		&rec.DurationSeconds, &recordingURL, &transcript, &meta, &rec.CreatedAt, &rec.UpdatedAt, &endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}

	rec.ChannelID = channelID.String
	rec.ContactID = contactID.String
	rec.ConversationID = conversationID.String
	rec.FlowID = flowID.String
	rec.FlowNodeID = flowNodeID.String
	rec.From = from.String
	rec.To = to.String
	rec.RecordingURL = recordingURL.String
	rec.Transcript = transcript.String
	if endedAt.Valid {
		t := endedAt.Time
		rec.EndedAt = &t
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}
