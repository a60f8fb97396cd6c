package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the history store for deployments that already run Postgres
// and want transcripts queryable alongside other operational data.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to Postgres, verifies the connection, and ensures
// the transcript schema exists.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id              BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init chat_messages table: %w", err)
	}
	_, err = pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation
		ON chat_messages(conversation_id, id)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init chat_messages index: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Append(ctx context.Context, conversationID string, msg Message) error {
	created := msg.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_messages (conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		conversationID, msg.Role, msg.Content, created)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx,
		`SELECT role, content, created_at FROM chat_messages
		 WHERE conversation_id = $1
		 ORDER BY id DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var reversed []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	msgs := make([]Message, len(reversed))
	for i, m := range reversed {
		msgs[len(reversed)-1-i] = m
	}
	return msgs, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
