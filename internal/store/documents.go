package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mossline/storepilot/internal/docsgen"
)

// DocumentRow is one archived generated document.
type DocumentRow struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	DocType   string                 `json:"doc_type"`
	Title     string                 `json:"title"`
	Summary   string                 `json:"summary"`
	Content   string                 `json:"content"`
	Meta      map[string]interface{} `json:"defaults_used,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// SaveDocuments archives a batch of generated documents for a caller.
func (s *Store) SaveDocuments(ctx context.Context, userID string, docs []docsgen.Document) error {
	for _, d := range docs {
		metaJSON, _ := json.Marshal(d.DefaultsUsed)
		if _, err := s.db.Exec(ctx,
			`INSERT INTO documents (id, user_id, doc_type, title, summary, content, defaults_used)
			 VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)`,
			userID, d.DocType, d.Title, d.Summary, d.Content, metaJSON,
		); err != nil {
			return fmt.Errorf("insert document %q: %w", d.Title, err)
		}
	}
	return nil
}

// ListDocuments returns the caller's archived documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, userID string, limit int) ([]*DocumentRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, doc_type, title, summary, content, defaults_used, created_at
		 FROM documents WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*DocumentRow
	for rows.Next() {
		var d DocumentRow
		var metaJSON []byte
		if err := rows.Scan(&d.ID, &d.UserID, &d.DocType, &d.Title,
			&d.Summary, &d.Content, &metaJSON, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		_ = json.Unmarshal(metaJSON, &d.Meta)
		out = append(out, &d)
	}
	return out, rows.Err()
}
