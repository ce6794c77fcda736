package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dancemarket/messaging/chat"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the database.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// Migrate creates the messages table and its indexes if they do not exist.
func (pg *Postgres) Migrate(ctx context.Context) error {
	if _, err := pg.bun.NewCreateTable().
		Model((*message)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if _, err := pg.bun.NewCreateIndex().
		Model((*message)(nil)).
		Index("messages_participants_idx").
		Using("GIN").
		Column("participants").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create participants index: %w", err)
	}

	if _, err := pg.bun.NewCreateIndex().
		Model((*message)(nil)).
		Index("messages_unviewed_idx").
		Column("receiver_id", "created_at").
		Where("viewed = FALSE").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create unviewed index: %w", err)
	}
	return nil
}

// ListByParticipant returns every message userID sent or received, oldest
// first.
func (pg *Postgres) ListByParticipant(ctx context.Context, userID string) ([]chat.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Where("? = ANY(participants)", userID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return chatMessages(msgs), nil
}

// ListUnviewedFor returns the messages addressed to userID that are not
// viewed, oldest first.
func (pg *Postgres) ListUnviewedFor(ctx context.Context, userID string) ([]chat.Message, error) {
	var msgs []message
	err := pg.bun.NewSelect().
		Model(&msgs).
		Where("receiver_id = ?", userID).
		Where("viewed = FALSE").
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return chatMessages(msgs), nil
}

// InsertMessage inserts a message into the database. The returned message
// holds auto generated fields, such as the message id and timestamp.
func (pg *Postgres) InsertMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	m := newMessage(msg)
	if _, err := pg.bun.NewInsert().
		Model(m).
		Returning("id, viewed, created_at").
		Exec(ctx); err != nil {
		return chat.Message{}, fmt.Errorf("insert: %w", err)
	}
	return m.ChatMessage(), nil
}

// MarkViewed sets viewed on every listed message that is not viewed yet, in
// one statement, and returns the rows it changed.
func (pg *Postgres) MarkViewed(ctx context.Context, ids []string) ([]chat.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var changed []message
	_, err := pg.bun.NewUpdate().
		Model((*message)(nil)).
		Set("viewed = TRUE").
		Where("id IN (?)", bun.In(ids)).
		Where("viewed = FALSE").
		Returning("*").
		Exec(ctx, &changed)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return chatMessages(changed), nil
}
