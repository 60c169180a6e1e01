package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mossline/storepilot/internal/provider"
)

// FindOrCreateConversation returns the caller's conversation for a
// channel, creating it on first use.
func (s *Store) FindOrCreateConversation(ctx context.Context, userID, channel string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, user_id, channel, status)
		VALUES (gen_random_uuid(), $1, $2, 'active')
		ON CONFLICT (user_id, channel)
		DO UPDATE SET status = 'active'
		RETURNING id`,
		userID, channel,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("find or create conversation: %w", err)
	}
	return id, nil
}

// AppendMessage stores one message in a conversation.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg provider.Message) error {
	var toolCallsJSON []byte
	if len(msg.ToolCalls) > 0 {
		var err error
		toolCallsJSON, err = json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool_calls: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, tool_call_id, tool_calls)
		VALUES (gen_random_uuid(), $1, $2, $3, NULLIF($4, ''), $5)`,
		conversationID, msg.Role, msg.Content, msg.ToolCallID, toolCallsJSON,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetMessages retrieves a conversation's messages in creation order.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit int) ([]provider.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
		SELECT role, content, COALESCE(tool_call_id, ''), tool_calls
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []provider.Message
	for rows.Next() {
		var m provider.Message
		var toolCallsJSON []byte
		if err := rows.Scan(&m.Role, &m.Content, &m.ToolCallID, &toolCallsJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if len(toolCallsJSON) > 0 {
			_ = json.Unmarshal(toolCallsJSON, &m.ToolCalls)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearConversation deletes a conversation's messages. The tracker state
// mirroring the conversation is expected to be reset by the caller.
func (s *Store) ClearConversation(ctx context.Context, conversationID string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}
