package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists activity records append-only. Nothing here updates
// or deletes a row except Purge.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const recordColumns = `id, actor, action, details, network_address, user_agent, outcome, http_method, path, session_id, request_id, created_at`

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	details, err := json.Marshal(rec.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO activity_records
			(actor, action, details, network_address, user_agent, outcome, http_method, path, session_id, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		RETURNING id, created_at
	`, rec.Actor, rec.Action, details, rec.NetworkAddress, rec.UserAgent,
		rec.Outcome, rec.HTTPMethod, rec.Path, nullable(rec.SessionID), nullable(rec.RequestID))

	return row.Scan(&rec.ID, &rec.Timestamp)
}

func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]Record, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM activity_records`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+recordColumns+`
		FROM activity_records
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *PostgresStore) CountSince(ctx context.Context, actions []Action, outcome Outcome, since time.Time) (int, error) {
	f := Filter{Actions: actions, Outcome: outcome, Since: since}
	where, args := buildWhere(f)

	var total int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM activity_records`+where, args...).Scan(&total)
	return total, err
}

func (s *PostgresStore) SummarizeByAction(ctx context.Context, actor uuid.UUID, since time.Time) ([]ActionSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT action, count(*), max(created_at)
		FROM activity_records
		WHERE actor = $1 AND created_at >= $2
		GROUP BY action
		ORDER BY max(created_at) DESC
	`, actor, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []ActionSummary
	for rows.Next() {
		var s ActionSummary
		if err := rows.Scan(&s.Action, &s.Count, &s.LastSeen); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM activity_records
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *PostgresStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM activity_records
		WHERE created_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func buildWhere(f Filter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Actor != nil {
		add("actor = $%d", *f.Actor)
	}
	if len(f.Actions) == 1 {
		add("action = $%d", f.Actions[0])
	} else if len(f.Actions) > 1 {
		add("action = ANY($%d)", actionStrings(f.Actions))
	}
	if f.Outcome != "" {
		add("outcome = $%d", f.Outcome)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func actionStrings(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var details []byte
		var sessionID, requestID *string
		if err := rows.Scan(&rec.ID, &rec.Actor, &rec.Action, &details, &rec.NetworkAddress,
			&rec.UserAgent, &rec.Outcome, &rec.HTTPMethod, &rec.Path, &sessionID, &requestID, &rec.Timestamp); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, fmt.Errorf("unmarshal details: %w", err)
			}
		}
		if sessionID != nil {
			rec.SessionID = *sessionID
		}
		if requestID != nil {
			rec.RequestID = *requestID
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
