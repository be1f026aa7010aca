package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"echogate/internal/models"
)

// Sink is the read/write/delete contract for persisted exchanges.
type Sink interface {
	Insert(ctx context.Context, model, userMessage, assistantMessage string) (*models.ChatLog, error)
	List(ctx context.Context, limit int) ([]*models.ChatLog, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// ChatLogStore is the database/sql implementation of Sink.
type ChatLogStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewChatLogStore(db *sql.DB, dbType string) (*ChatLogStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	driver, err := Driver(dbType)
	if err != nil {
		return nil, err
	}
	return &ChatLogStore{db: db, driver: driver, now: time.Now}, nil
}

func (s *ChatLogStore) Insert(ctx context.Context, model, userMessage, assistantMessage string) (*models.ChatLog, error) {
	entry := &models.ChatLog{
		Model:            model,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		CreatedAt:        s.now().UTC(),
	}
	if s.driver == "postgres" {
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO chat_logs (model, user_message, assistant_message, created_at)
			 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
			model, userMessage, assistantMessage, entry.CreatedAt,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert chat log: %w", err)
		}
		return entry, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_logs (model, user_message, assistant_message, created_at) VALUES (?, ?, ?, ?)`,
		model, userMessage, assistantMessage, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat log: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("chat log id: %w", err)
	}
	return entry, nil
}

// List returns at most limit entries, newest first.
func (s *ChatLogStore) List(ctx context.Context, limit int) ([]*models.ChatLog, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, model, user_message, assistant_message, created_at
		 FROM chat_logs ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list chat logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.ChatLog, 0, limit)
	for rows.Next() {
		entry := &models.ChatLog{}
		if err := rows.Scan(&entry.ID, &entry.Model, &entry.UserMessage, &entry.AssistantMessage, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// Delete removes the entry and reports whether it existed.
func (s *ChatLogStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM chat_logs WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete chat log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete chat log: %w", err)
	}
	return affected > 0, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *ChatLogStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	out := make([]byte, 0, len(query)+4)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}
