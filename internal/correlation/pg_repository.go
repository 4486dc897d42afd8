package correlation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Talhasaeed420/Clinic-Ai-Agent/internal/db"
)

const callLogColumns = `id, call_id, body, received_at, duration_seconds, duration_minutes, caller_email`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func scanCallLog(row pgx.Row) (*CallLog, error) {
	var l CallLog
	var body []byte

	err := row.Scan(
		&l.ID,
		&l.CallID,
		&body,
		&l.ReceivedAt,
		&l.DurationSeconds,
		&l.DurationMinutes,
		&l.CallerEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallLogNotFound
		}
		return nil, err
	}

	l.Body = body
	return &l, nil
}

func (r *PgRepository) InsertCallStart(ctx context.Context, cs CallStart) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO call_starts (call_id, email, user_name, user_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (call_id) DO NOTHING
	`, cs.CallID, cs.Email, cs.UserName, cs.UserID)
	if err != nil {
		return false, fmt.Errorf("insert call start: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) GetCallStart(ctx context.Context, callID string) (*CallStart, error) {
	var cs CallStart
	err := r.db.QueryRow(ctx, `
		SELECT call_id, email, user_name, user_id, created_at
		FROM call_starts
		WHERE call_id = $1
	`, callID).Scan(&cs.CallID, &cs.Email, &cs.UserName, &cs.UserID, &cs.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallStartNotFound
		}
		return nil, err
	}
	return &cs, nil
}

func (r *PgRepository) InsertCallLog(ctx context.Context, l CallLog) (*CallLog, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO call_logs (call_id, body, received_at, duration_seconds, duration_minutes, caller_email)
		VALUES ($1, $2, now(), $3, $4, $5)
		RETURNING `+callLogColumns,
		l.CallID, []byte(l.Body), l.DurationSeconds, l.DurationMinutes, l.CallerEmail)

	created, err := scanCallLog(row)
	if err != nil {
		return nil, fmt.Errorf("insert call log: %w", err)
	}
	return created, nil
}

func (r *PgRepository) LatestCallLog(ctx context.Context, callID string) (*CallLog, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+callLogColumns+`
		FROM call_logs
		WHERE call_id = $1
		ORDER BY received_at DESC, id DESC
		LIMIT 1
	`, callID)
	return scanCallLog(row)
}

func (r *PgRepository) GetCallLog(ctx context.Context, id int64) (*CallLog, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+callLogColumns+`
		FROM call_logs
		WHERE id = $1
	`, id)
	return scanCallLog(row)
}

func (r *PgRepository) ListCallLogs(ctx context.Context, limit, offset int) ([]CallLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+callLogColumns+`
		FROM call_logs
		ORDER BY received_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]CallLog, 0)
	for rows.Next() {
		l, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
