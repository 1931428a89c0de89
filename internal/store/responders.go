package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/forestwatch/forestwatch/internal/alert"
)

const responderColumns = `id, name, phone, email, role, is_active`

// ActiveRangers returns every active ranger and admin. This is the base
// responder set for every alert.
func (s *Store) ActiveRangers(ctx context.Context) ([]alert.Responder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+responderColumns+`
		FROM responders
		WHERE is_active AND role IN ('ranger', 'admin')`)
	if err != nil {
		return nil, fmt.Errorf("querying active rangers: %w", err)
	}
	defer rows.Close()
	return scanResponders(rows)
}

// SubscribersFor returns responders with an active adoption of the given
// tree. They are added to the responder set for subject-specific alerts.
func (s *Store) SubscribersFor(ctx context.Context, treeID string) ([]alert.Responder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.phone, r.email, r.role, r.is_active
		FROM responders r
		JOIN adoptions a ON a.responder_id = r.id
		WHERE a.tree_id = $1 AND a.is_active AND r.is_active`,
		treeID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers for tree %s: %w", treeID, err)
	}
	defer rows.Close()
	return scanResponders(rows)
}

func scanResponders(rows *sql.Rows) ([]alert.Responder, error) {
	var responders []alert.Responder
	for rows.Next() {
		var r alert.Responder
		if err := rows.Scan(&r.ID, &r.Name, &r.Phone, &r.Email, &r.Role, &r.IsActive); err != nil {
			return nil, fmt.Errorf("scanning responder row: %w", err)
		}
		responders = append(responders, r)
	}
	return responders, rows.Err()
}
