// Package storage persists engine risk events to sqlite. The journal is an
// observational sink; a write failure is logged by the caller and never
// fails the execution path.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
)

type RiskJournal struct {
	db  *sql.DB
	log *zap.Logger
}

func NewRiskJournal(dbPath string, log *zap.Logger) (*RiskJournal, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	j := &RiskJournal{db: db, log: log}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *RiskJournal) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS risk_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			bot_id TEXT NOT NULL,
			message TEXT NOT NULL,
			meta TEXT,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_bot_created ON risk_events(bot_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_type ON risk_events(type);`,
	}

	for _, q := range queries {
		if _, err := j.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// Publish implements domain.RiskSink. A failed insert is logged and
// swallowed so journaling can never stall an execution.
func (j *RiskJournal) Publish(ctx context.Context, ev domain.RiskEvent) {
	if err := j.insert(ctx, ev); err != nil {
		j.log.Error("risk journal write failed",
			zap.String("type", ev.Type), zap.String("botId", ev.BotID), zap.Error(err))
	}
}

func (j *RiskJournal) insert(ctx context.Context, ev domain.RiskEvent) error {
	var meta []byte
	if len(ev.Meta) > 0 {
		var err error
		meta, err = json.Marshal(ev.Meta)
		if err != nil {
			return fmt.Errorf("encode meta: %w", err)
		}
	}

	query := `INSERT INTO risk_events (id, type, bot_id, message, meta, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query,
		ev.ID, ev.Type, ev.BotID, ev.Message, string(meta), ev.Timestamp)
	return err
}

// Recent returns the latest events for a bot, newest first. An empty botID
// matches all bots.
func (j *RiskJournal) Recent(ctx context.Context, botID string, limit int) ([]*domain.RiskEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, type, bot_id, message, meta, created_at FROM risk_events`
	args := []any{}
	if botID != "" {
		query += ` WHERE bot_id = ?`
		args = append(args, botID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.RiskEvent
	for rows.Next() {
		var ev domain.RiskEvent
		var meta sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.BotID, &ev.Message, &meta, &ev.Timestamp); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &ev.Meta); err != nil {
				return nil, fmt.Errorf("decode meta: %w", err)
			}
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (j *RiskJournal) Close() error {
	return j.db.Close()
}
