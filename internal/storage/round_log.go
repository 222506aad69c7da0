package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"roundtable/internal/models"
)

const (
	DefaultRoundLogTTL      = 7 * 24 * time.Hour
	DefaultRoundLogInterval = time.Hour
	DefaultRecentLimit      = 20
	MaxRecentLimit          = 200
)

// Outcome of a successful generation; failures use the error kind.
const OutcomeOK = "ok"

// RoundLog records generation attempts. Rows never hold dialogue.
type RoundLog struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRoundLog(db *sql.DB, logger *slog.Logger) *RoundLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoundLog{db: db, logger: logger}
}

// Record stores rec, filling in ID and CreatedAt when empty.
func (l *RoundLog) Record(ctx context.Context, rec models.RoundRecord) (models.RoundRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.TableID = strings.ToLower(rec.TableID)

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO round_log (id, table_id, topic, message_count, outcome, status, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TableID, rec.Topic, rec.MessageCount, rec.Outcome, rec.Status, rec.LatencyMS, rec.CreatedAt)
	if err != nil {
		return models.RoundRecord{}, errors.Wrap(err, "insert round log")
	}
	return rec, nil
}

// Recent lists the newest records for tableID, newest first.
func (l *RoundLog) Recent(ctx context.Context, tableID string, limit int) ([]models.RoundRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, table_id, topic, message_count, outcome, status, latency_ms, created_at
		FROM round_log
		WHERE table_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, strings.ToLower(tableID), limit)
	if err != nil {
		return nil, errors.Wrap(err, "query round log")
	}
	defer rows.Close()

	records := make([]models.RoundRecord, 0, limit)
	for rows.Next() {
		var rec models.RoundRecord
		if err := rows.Scan(&rec.ID, &rec.TableID, &rec.Topic, &rec.MessageCount,
			&rec.Outcome, &rec.Status, &rec.LatencyMS, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan round log")
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "iterate round log")
}

// Prune deletes records created before cutoff.
func (l *RoundLog) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM round_log WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "prune round log")
	}
	return res.RowsAffected()
}

// StartPruner deletes records older than ttl every interval until ctx ends.
func (l *RoundLog) StartPruner(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultRoundLogInterval
	}
	if ttl <= 0 {
		ttl = DefaultRoundLogTTL
	}
	go l.pruneLoop(ctx, interval, ttl)
}

func (l *RoundLog) pruneLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Prune(ctx, time.Now().Add(-ttl))
			if err != nil {
				l.logger.Error("prune round log failed", "error", err)
				continue
			}
			if n > 0 {
				l.logger.Info("pruned round log", "rows", n)
			}
		}
	}
}
