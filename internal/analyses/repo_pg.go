package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"supercv-backend/internal/shared/storage/db"
)

var recordColumns = []string{
	"id", "owner_id", "claim_token", "status", "input_ref", "job_context_text", "job_context_url",
	"result", "failure_reason", "customization_mode", "customization_state", "customization_reason",
	"customization_at", "started_at", "completed_at", "created_at", "updated_at",
}

const selectRecord = `
SELECT id, owner_id, claim_token, status, input_ref, job_context_text, job_context_url,
       result, failure_reason, customization_mode, customization_state, customization_reason,
       customization_at, started_at, completed_at, created_at, updated_at
FROM analyses
WHERE id = $1`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGRepo implements Repo using Postgres. Update locks the row with
// SELECT ... FOR UPDATE and joins any transaction already carried by ctx.
type PGRepo struct {
	DB *sql.DB
	Tx *db.TxManager
}

// NewPGRepo constructs a Postgres-backed record repository.
func NewPGRepo(sqlDB *sql.DB) *PGRepo {
	return &PGRepo{DB: sqlDB, Tx: db.NewTxManager(sqlDB)}
}

// Create inserts a new record.
func (r *PGRepo) Create(ctx context.Context, rec Record) error {
	const query = `
INSERT INTO analyses (
	id, owner_id, claim_token, status, input_ref, job_context_text, job_context_url, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := db.QuerierFromCtx(ctx, r.DB).ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		nullString(rec.ClaimToken),
		string(rec.Status),
		rec.InputRef,
		rec.JobContext.Text,
		rec.JobContext.URL,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// Get returns a record by ID.
func (r *PGRepo) Get(ctx context.Context, id string) (Record, error) {
	return scanRecord(db.QuerierFromCtx(ctx, r.DB).QueryRowContext(ctx, selectRecord, id))
}

// Update locks the row, applies fn and writes every mutable column back.
func (r *PGRepo) Update(ctx context.Context, id string, fn UpdateFunc) (Record, error) {
	var out Record
	err := r.Tx.RunInTx(ctx, func(ctx context.Context) error {
		q := db.QuerierFromCtx(ctx, r.DB)
		rec, err := scanRecord(q.QueryRowContext(ctx, selectRecord+" FOR UPDATE", id))
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		result, err := marshalResult(rec.Result)
		if err != nil {
			return err
		}
		var custMode, custState, custReason sql.NullString
		var custAt sql.NullTime
		if c := rec.Customization; c != nil {
			custMode = sql.NullString{String: string(c.Mode), Valid: true}
			custState = sql.NullString{String: string(c.State), Valid: true}
			custReason = nullString(c.FailureReason)
			custAt = sql.NullTime{Time: c.RequestedAt, Valid: true}
		}
		_, err = q.ExecContext(ctx, `
UPDATE analyses SET
	owner_id = $1, claim_token = $2, status = $3, result = $4, failure_reason = $5,
	customization_mode = $6, customization_state = $7, customization_reason = $8, customization_at = $9,
	started_at = $10, completed_at = $11, updated_at = $12
WHERE id = $13`,
			rec.OwnerID,
			nullString(rec.ClaimToken),
			string(rec.Status),
			result,
			nullString(rec.FailureReason),
			custMode,
			custState,
			custReason,
			custAt,
			rec.StartedAt,
			rec.CompletedAt,
			rec.UpdatedAt,
			rec.ID,
		)
		if err != nil {
			return fmt.Errorf("update analysis: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

// ListByOwner returns an owner's records ordered newest-first.
func (r *PGRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Record, error) {
	query := psql.Select(recordColumns...).
		From("analyses").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	if offset > 0 {
		query = query.Offset(uint64(offset))
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QuerierFromCtx(ctx, r.DB).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec                                Record
		ownerID, claimToken, failureReason sql.NullString
		status                             string
		result                             []byte
		custMode, custState, custReason    sql.NullString
		custAt, startedAt, completedAt     sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&ownerID,
		&claimToken,
		&status,
		&rec.InputRef,
		&rec.JobContext.Text,
		&rec.JobContext.URL,
		&result,
		&failureReason,
		&custMode,
		&custState,
		&custReason,
		&custAt,
		&startedAt,
		&completedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.Status = Status(status)
	if ownerID.Valid {
		owner := ownerID.String
		rec.OwnerID = &owner
	}
	rec.ClaimToken = claimToken.String
	rec.FailureReason = failureReason.String
	if len(result) > 0 {
		var payload ResultPayload
		if err := json.Unmarshal(result, &payload); err != nil {
			return Record{}, fmt.Errorf("decode analysis result: %w", err)
		}
		rec.Result = &payload
	}
	if custMode.Valid {
		rec.Customization = &Customization{
			Mode:          Mode(custMode.String),
			State:         Status(custState.String),
			RequestedAt:   custAt.Time,
			FailureReason: custReason.String,
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

func marshalResult(payload *ResultPayload) (any, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode analysis result: %w", err)
	}
	return data, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

var _ Repo = (*PGRepo)(nil)
