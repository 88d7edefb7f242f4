package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionRobotCreate = "robot.create"
	ActionRobotUpdate = "robot.update"
	ActionRobotDelete = "robot.delete"

	ResourceRobot = "robot"
)

// Entry records one change made through the admin API.
type Entry struct {
	ID           string                 `json:"id"`
	Actor        string                 `json:"actor"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Log stores entry. A failed write is logged and otherwise ignored so it
// never fails the change being audited.
func (l *Logger) Log(ctx context.Context, entry *Entry) {
	if l == nil {
		return
	}
	if err := l.Record(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", entry.Action).Str("resource_id", entry.ResourceID).Msg("failed to write audit log")
	}
}

func (l *Logger) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "audit_" + uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	var metadata []byte
	if len(entry.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID, nullString(metadata), entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	return err
}

// List returns the most recent entries first.
func (l *Logger) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, actor, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		entry := &Entry{}
		var metadata, ip, ua sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.ResourceType, &entry.ResourceID, &metadata, &ip, &ua, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata %s: %w", entry.ID, err)
			}
		}
		entry.IPAddress = ip.String
		entry.UserAgent = ua.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullString(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}
