package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"arena-tracker/internal/constants"
	"arena-tracker/internal/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// HistoryRepository persists the ordered, newest-first match history.
type HistoryRepository struct {
	db     DBTX
	conn   *sql.DB
	logger zerolog.Logger
}

func NewHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{db: sqlDB, conn: sqlDB, logger: logger}
}

func (r *HistoryRepository) WithTx(tx *sql.Tx) *HistoryRepository {
	return &HistoryRepository{db: tx, logger: r.logger}
}

func (r *HistoryRepository) Load(ctx context.Context) ([]domain.MatchResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id, champion, placement, timestamp, score, augments
		FROM match_history
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query match history: %w", err)
	}
	defer rows.Close()

	history := []domain.MatchResult{}
	for rows.Next() {
		var (
			m        domain.MatchResult
			score    sql.NullInt64
			augments sql.NullString
		)
		if err := rows.Scan(&m.MatchID, &m.Champion, &m.Placement, &m.Timestamp, &score, &augments); err != nil {
			return nil, fmt.Errorf("failed to scan match history row: %w", err)
		}
		if score.Valid {
			s := int(score.Int64)
			m.Score = &s
		}
		if augments.Valid && augments.String != "" {
			if err := json.Unmarshal([]byte(augments.String), &m.Augments); err != nil {
				return nil, fmt.Errorf("failed to decode augments of %s: %w", m.MatchID, err)
			}
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read match history: %w", err)
	}
	return history, nil
}

func (r *HistoryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count match history: %w", err)
	}
	return n, nil
}

// Replace swaps the stored history for history in one transaction. Match ids
// must be unique.
func (r *HistoryRepository) Replace(ctx context.Context, history []domain.MatchResult) error {
	if r.conn == nil {
		return r.replace(ctx, r.db, history)
	}
	return InTx(ctx, r.conn, func(tx *sql.Tx) error {
		return r.replace(ctx, tx, history)
	})
}

func (r *HistoryRepository) replace(ctx context.Context, db DBTX, history []domain.MatchResult) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM match_history`); err != nil {
		return fmt.Errorf("failed to clear match history: %w", err)
	}

	for i := 0; i < len(history); i += constants.DBBatchSize {
		chunk := history[i:min(i+constants.DBBatchSize, len(history))]

		var query strings.Builder
		query.WriteString(`INSERT INTO match_history (position, match_id, champion, placement, timestamp, score, augments) VALUES `)
		args := make([]any, 0, len(chunk)*7)

		for pos, m := range chunk {
			var score sql.NullInt64
			if m.Score != nil {
				score = sql.NullInt64{Int64: int64(*m.Score), Valid: true}
			}
			var augments sql.NullString
			if len(m.Augments) > 0 {
				data, err := json.Marshal(m.Augments)
				if err != nil {
					return fmt.Errorf("failed to encode augments of %s: %w", m.MatchID, err)
				}
				augments = sql.NullString{String: string(data), Valid: true}
			}

			if pos > 0 {
				query.WriteString(", ")
			}
			query.WriteString("(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, i+pos, m.MatchID, m.Champion, m.Placement, m.Timestamp, score, augments)
		}

		if _, err := db.ExecContext(ctx, query.String(), args...); err != nil {
			return fmt.Errorf("failed to insert match history rows %d-%d: %w", i, i+len(chunk)-1, err)
		}
	}

	r.logger.Debug().Int("entries", len(history)).Msg("match history replaced")
	return nil
}

func (r *HistoryRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM match_history`); err != nil {
		return fmt.Errorf("failed to clear match history: %w", err)
	}
	return nil
}
