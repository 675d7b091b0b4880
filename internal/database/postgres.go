package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/itsvicky-dev/chatio/internal/realtime"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Membership Repository Implementation

func (db *PostgresDB) IsRoomMember(ctx context.Context, userID realtime.UserID, roomID realtime.RoomID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM room_members WHERE user_id = $1 AND room_id = $2)`

	var isMember bool
	err := db.pool.QueryRow(ctx, query, string(userID), string(roomID)).Scan(&isMember)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return isMember, nil
}

func (db *PostgresDB) GetRoomMembers(ctx context.Context, roomID realtime.RoomID) ([]Member, error) {
	query := `
		SELECT u.id, u.username
		FROM room_members rm
		JOIN users u ON u.id = rm.user_id
		WHERE rm.room_id = $1
		ORDER BY u.username`

	rows, err := db.pool.Query(ctx, query, string(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to load room members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Message Repository Implementation

func (db *PostgresDB) SaveMessage(ctx context.Context, roomID realtime.RoomID, senderID realtime.UserID, body string) (realtime.Message, error) {
	query := `
		INSERT INTO messages (id, room_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, room_id, sender_id, body, created_at`

	id := ulid.Make().String()
	msg := realtime.Message{}
	err := db.pool.QueryRow(ctx, query, id, string(roomID), string(senderID), body).Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Body, &msg.CreatedAt,
	)
	if err != nil {
		return realtime.Message{}, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

func (db *PostgresDB) LoadRecentMessages(ctx context.Context, roomID realtime.RoomID, limit int) ([]realtime.Message, error) {
	query := `
		SELECT id, room_id, sender_id, body, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, string(roomID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []realtime.Message
	for rows.Next() {
		var msg realtime.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first for replay.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Call Repository Implementation

func (db *PostgresDB) SaveCallRecord(ctx context.Context, rec realtime.CallRecord) error {
	participants, err := json.Marshal(rec.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}

	query := `
		INSERT INTO call_history (id, initiator_id, kind, participants, started_at, ended_at, duration_ms, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = db.pool.Exec(ctx, query,
		rec.ID, string(rec.Initiator), string(rec.Kind), participants,
		rec.StartedAt, rec.EndedAt, rec.Duration.Milliseconds(), rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}
	return nil
}
