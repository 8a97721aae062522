package creds

import (
	"context"
	"database/sql"
	"errors"

	"voicebridge/internal/carrier"
)

// PGConnectionRepository reads channel connection records owned by the CRM
// collaborator. The orchestrator never writes this table.
//
// Expected table:
//
//	channel_connections (
//	  id UUID PRIMARY KEY,
//	  company_id TEXT NOT NULL,
//	  active BOOLEAN NOT NULL DEFAULT TRUE,
//	  account_sid TEXT, auth_token TEXT, api_key TEXT, api_secret TEXT, app_sid TEXT,
//	  from_number TEXT,
//	  ai_api_key TEXT, ai_agent_id TEXT
//	)
type PGConnectionRepository struct {
	db *sql.DB
}

func NewPGConnectionRepository(db *sql.DB) *PGConnectionRepository {
	return &PGConnectionRepository{db: db}
}

const connectionColumns = `
id, company_id, active, account_sid, auth_token, api_key, api_secret, app_sid,
from_number, ai_api_key, ai_agent_id
`

func (r *PGConnectionRepository) GetByID(ctx context.Context, id string) (Connection, error) {
	const q = `SELECT ` + connectionColumns + ` FROM channel_connections WHERE id = $1`
	return scanConnection(r.db.QueryRowContext(ctx, q, id))
}

func (r *PGConnectionRepository) GetActiveByCompany(ctx context.Context, companyID string) (Connection, error) {
	const q = `
SELECT ` + connectionColumns + `
FROM channel_connections
WHERE company_id = $1 AND active
ORDER BY id
LIMIT 1
`
	return scanConnection(r.db.QueryRowContext(ctx, q, companyID))
}

func scanConnection(row *sql.Row) (Connection, error) {
	var c Connection
	var accountSID, authToken, apiKey, apiSecret, appSID sql.NullString
	var fromNumber, aiKey, aiAgent sql.NullString

	err := row.Scan(
		&c.ID, &c.CompanyID, &c.Active,
		&accountSID, &authToken, &apiKey, &apiSecret, &appSID,
		&fromNumber, &aiKey, &aiAgent,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Connection{}, ErrConnectionNotFound
		}
		return Connection{}, err
	}

	c.Carrier = carrier.Credentials{
		AccountSID: accountSID.String,
		AuthToken:  authToken.String,
		APIKey:     apiKey.String,
		APISecret:  apiSecret.String,
		AppSID:     appSID.String,
	}
	c.FromNumber = fromNumber.String
	c.AIAPIKey = aiKey.String
	c.AIAgentID = aiAgent.String
	return c, nil
}
