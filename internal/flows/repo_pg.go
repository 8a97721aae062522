package flows

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepository reads flow nodes owned by the flow-builder collaborator. The
// orchestrator never writes these tables.
//
// Expected tables:
//
//	flows (id UUID PRIMARY KEY, company_id TEXT NOT NULL)
//	flow_nodes (
//	  id UUID PRIMARY KEY,
//	  flow_id UUID NOT NULL REFERENCES flows(id),
//	  label TEXT NOT NULL DEFAULT '',
//	  ai_api_key TEXT, ai_agent_id TEXT,
//	  greeting TEXT, dial_number TEXT
//	)
type PGRepository struct {
	db *sql.DB
}

func NewPGRepository(db *sql.DB) *PGRepository {
	return &PGRepository{db: db}
}

func (r *PGRepository) GetNode(ctx context.Context, flowID, nodeID string) (Node, error) {
	const q = `
SELECT n.id, n.flow_id, f.company_id, n.label,
       COALESCE(n.ai_api_key, ''), COALESCE(n.ai_agent_id, ''),
       COALESCE(n.greeting, ''), COALESCE(n.dial_number, '')
FROM flow_nodes n
JOIN flows f ON f.id = n.flow_id
WHERE n.flow_id = $1 AND n.id = $2
`
	var node Node
	err := r.db.QueryRowContext(ctx, q, flowID, nodeID).Scan(
		&node.ID, &node.FlowID, &node.CompanyID, &node.Label,
		&node.AIAPIKey, &node.AIAgentID,
		&node.Greeting, &node.DialNumber,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Node{}, ErrNodeNotFound
		}
		return Node{}, err
	}
	return node, nil
}
