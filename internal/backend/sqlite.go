package backend

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store is the sqlite-backed implementation of the backend. Use ":memory:"
// as the path for tests.
type Store struct {
	db   *sql.DB
	feed *feed
}

// New opens the database, applies pragmas and migrations, and returns a
// ready store.
func New(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Single writer; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, feed: newFeed()}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations() error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SubscribeToChanges registers fn for row-level changes on table, filtered
// by column equality. Events are delivered in commit order, synchronously
// on the mutating goroutine. The returned function unsubscribes.
func (s *Store) SubscribeToChanges(table string, filter Filter, fn func(Event)) func() {
	return s.feed.subscribe(table, filter, fn)
}

// ─── Rooms ───────────────────────────────────────────────────────────────────

// CreateRoom inserts a new empty room.
func (s *Store) CreateRoom(ctx context.Context) (*Room, error) {
	now := time.Now().UTC().Truncate(time.Second)
	room := &Room{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, created_at, updated_at) VALUES (?, ?, ?)`,
		room.ID, now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	s.feed.emit(Event{Type: EventInsert, Table: TableRooms, Row: room})
	return room, nil
}

// GetRoom fetches one room by id.
func (s *Store) GetRoom(ctx context.Context, id string) (*Room, error) {
	var room Room
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	room.CreatedAt = time.Unix(created, 0).UTC()
	room.UpdatedAt = time.Unix(updated, 0).UTC()
	return &room, nil
}

// ─── Channels ────────────────────────────────────────────────────────────────

// CreateChannel inserts a channel into a room.
func (s *Store) CreateChannel(ctx context.Context, roomID, name string, order int, createdBy string) (*Channel, error) {
	now := time.Now().UTC().Truncate(time.Second)
	ch := &Channel{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Name:      name,
		Order:     order,
		CreatedBy: createdBy,
		CreatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, room_id, name, ord, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.RoomID, ch.Name, ch.Order, ch.CreatedBy, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}
	s.feed.emit(Event{Type: EventInsert, Table: TableChannels, Row: ch})
	return ch, nil
}

// ListChannels returns a room's channels in display order.
func (s *Store) ListChannels(ctx context.Context, roomID string) ([]*Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, name, ord, created_by, created_at
		 FROM channels WHERE room_id = ? ORDER BY ord, created_at`, roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		var ch Channel
		var created int64
		if err := rows.Scan(&ch.ID, &ch.RoomID, &ch.Name, &ch.Order, &ch.CreatedBy, &created); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		ch.CreatedAt = time.Unix(created, 0).UTC()
		channels = append(channels, &ch)
	}
	return channels, rows.Err()
}

// ─── Messages ────────────────────────────────────────────────────────────────

// CreateMessage inserts a message, filling id and timestamps.
func (s *Store) CreateMessage(ctx context.Context, msg *Message) error {
	now := time.Now().UTC().Truncate(time.Second)
	msg.ID = uuid.NewString()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel_id, content, author_id, author_name,
		                       parent_id, file_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChannelID, msg.Content, msg.AuthorID, msg.AuthorName,
		msg.ParentID, msg.FileURL, now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	s.feed.emit(Event{Type: EventInsert, Table: TableMessages, Row: msg})
	return nil
}

// ListMessages returns a channel's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, channelID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel_id, content, author_id, author_name,
		        parent_id, file_url, created_at, updated_at
		 FROM messages WHERE channel_id = ? ORDER BY created_at, id`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Content, &m.AuthorID, &m.AuthorName,
			&m.ParentID, &m.FileURL, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = time.Unix(created, 0).UTC()
		m.UpdatedAt = time.Unix(updated, 0).UTC()
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// UpdateMessage replaces a message's content.
func (s *Store) UpdateMessage(ctx context.Context, id, content string) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, updated_at = ? WHERE id = ?`,
		content, now.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	msg, err := s.getMessage(ctx, id)
	if err != nil {
		return err
	}
	s.feed.emit(Event{Type: EventUpdate, Table: TableMessages, Row: msg})
	return nil
}

// DeleteMessage removes a message. The feed event carries the row as it was
// before deletion.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	msg, err := s.getMessage(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	s.feed.emit(Event{Type: EventDelete, Table: TableMessages, Row: msg})
	return nil
}

func (s *Store) getMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, channel_id, content, author_id, author_name,
		        parent_id, file_url, created_at, updated_at
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.ChannelID, &m.Content, &m.AuthorID, &m.AuthorName,
		&m.ParentID, &m.FileURL, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	m.CreatedAt = time.Unix(created, 0).UTC()
	m.UpdatedAt = time.Unix(updated, 0).UTC()
	return &m, nil
}

// ─── Reactions ───────────────────────────────────────────────────────────────

// AddReaction attaches an emoji reaction to a message.
func (s *Store) AddReaction(ctx context.Context, messageID, emoji, authorID string) (*Reaction, error) {
	now := time.Now().UTC().Truncate(time.Second)
	r := &Reaction{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Emoji:     emoji,
		AuthorID:  authorID,
		CreatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reactions (id, message_id, emoji, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.MessageID, r.Emoji, r.AuthorID, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add reaction: %w", err)
	}
	s.feed.emit(Event{Type: EventInsert, Table: TableReactions, Row: r})
	return r, nil
}

// ListReactions returns a message's reactions in arrival order.
func (s *Store) ListReactions(ctx context.Context, messageID string) ([]*Reaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_id, emoji, author_id, created_at
		 FROM reactions WHERE message_id = ? ORDER BY created_at, id`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}
	defer rows.Close()

	var reactions []*Reaction
	for rows.Next() {
		var r Reaction
		var created int64
		if err := rows.Scan(&r.ID, &r.MessageID, &r.Emoji, &r.AuthorID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		reactions = append(reactions, &r)
	}
	return reactions, rows.Err()
}
