package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
)

type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) GetSession(ctx context.Context, documentID, ownerID string) (*domain.ChatSession, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, owner_id, title, created_at, last_message_at
FROM chat_sessions
WHERE document_id = $1 AND owner_id = $2
`, documentID, ownerID)

	var session domain.ChatSession
	if err := row.Scan(
		&session.ID,
		&session.DocumentID,
		&session.OwnerID,
		&session.Title,
		&session.CreatedAt,
		&session.LastMessageAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session: %w", err)
	}

	messages, err := r.listMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return &session, nil
}

func (r *ChatRepository) listMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, role, content, sources, confidence, created_at
FROM chat_messages
WHERE session_id = $1
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var msg domain.ChatMessage
		var role string
		var sourcesRaw []byte
		var confidence sql.NullFloat64
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &sourcesRaw, &confidence, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msg.Role = domain.ChatRole(role)
		if len(sourcesRaw) > 0 {
			if err := json.Unmarshal(sourcesRaw, &msg.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal sources: %w", err)
			}
		}
		if confidence.Valid {
			c := confidence.Float64
			msg.Confidence = &c
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}

// AppendTurn upserts the session keyed by (document, owner) and inserts both
// messages in one transaction. Concurrent first turns converge on one session.
func (r *ChatRepository) AppendTurn(
	ctx context.Context,
	session domain.ChatSession,
	user, assistant domain.ChatMessage,
) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin chat tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var sessionID string
	err = tx.QueryRowContext(ctx, `
INSERT INTO chat_sessions (id, document_id, owner_id, title, created_at, last_message_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (document_id, owner_id) DO UPDATE SET last_message_at = EXCLUDED.last_message_at
RETURNING id
`, session.ID, session.DocumentID, session.OwnerID, session.Title, session.CreatedAt, assistant.Timestamp).Scan(&sessionID)
	if err != nil {
		return "", fmt.Errorf("upsert chat session: %w", err)
	}

	for _, msg := range []domain.ChatMessage{user, assistant} {
		if err := insertMessage(ctx, tx, sessionID, msg); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit chat tx: %w", err)
	}
	return sessionID, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, sessionID string, msg domain.ChatMessage) error {
	sources := msg.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	var confidence any
	if msg.Confidence != nil {
		confidence = *msg.Confidence
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, role, content, sources, confidence, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, msg.ID, sessionID, string(msg.Role), msg.Content, sourcesJSON, confidence, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert %s message: %w", msg.Role, err)
	}
	return nil
}

func (r *ChatRepository) DeleteByDocument(ctx context.Context, documentID, ownerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE document_id = $1 AND owner_id = $2`, documentID, ownerID)
	if err != nil {
		return fmt.Errorf("delete chat sessions: %w", err)
	}
	return nil
}
