package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"supercv-backend/internal/shared/storage/db"
)

const accountColumns = `id, email, name, password_hash, avatar_ref, credit_balance, last_credit_refresh_date, created_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore implements Store on Postgres. Mutations lock the account row with
// SELECT ... FOR UPDATE inside a transaction.
type PGStore struct {
	DB *sql.DB
	Tx *db.TxManager
}

// NewPGStore constructs a Postgres-backed ledger store.
func NewPGStore(sqlDB *sql.DB) *PGStore {
	return &PGStore{DB: sqlDB, Tx: db.NewTxManager(sqlDB)}
}

func (s *PGStore) Upsert(ctx context.Context, candidate Account, entry Entry) (Account, bool, error) {
	var (
		acct    Account
		created bool
	)
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		q := db.QuerierFromCtx(ctx, s.DB)
		row := q.QueryRowContext(ctx, `
INSERT INTO accounts (id, email, name, password_hash, avatar_ref, credit_balance, last_credit_refresh_date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (email) DO UPDATE SET
  name = COALESCE(NULLIF(EXCLUDED.name, ''), accounts.name),
  avatar_ref = COALESCE(EXCLUDED.avatar_ref, accounts.avatar_ref),
  updated_at = EXCLUDED.updated_at
RETURNING `+accountColumns+`, (xmax = 0) AS inserted`,
			candidate.ID,
			candidate.Email,
			candidate.Name,
			nullableString(candidate.PasswordHash),
			nullableString(candidate.AvatarRef),
			candidate.CreditBalance,
			candidate.LastCreditRefreshDate,
			candidate.CreatedAt,
		)
		var err error
		acct, created, err = scanAccountInserted(row)
		if err != nil {
			return err
		}
		if created {
			return insertEntries(ctx, q, []Entry{entry})
		}
		return nil
	})
	if err != nil {
		return Account{}, false, err
	}
	return acct, created, nil
}

func (s *PGStore) Mutate(ctx context.Context, accountID string, fn MutateFunc) (Account, error) {
	var acct Account
	err := s.Tx.RunInTx(ctx, func(ctx context.Context) error {
		q := db.QuerierFromCtx(ctx, s.DB)
		var err error
		acct, err = scanAccount(q.QueryRowContext(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID))
		if err != nil {
			return err
		}
		entries, err := fn(ctx, &acct)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
UPDATE accounts SET credit_balance = $1, last_credit_refresh_date = $2, updated_at = $3 WHERE id = $4`,
			acct.CreditBalance, acct.LastCreditRefreshDate, acct.UpdatedAt, acct.ID); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		return insertEntries(ctx, q, entries)
	})
	if err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (s *PGStore) Get(ctx context.Context, accountID string) (Account, error) {
	q := db.QuerierFromCtx(ctx, s.DB)
	return scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

func (s *PGStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	q := db.QuerierFromCtx(ctx, s.DB)
	return scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (s *PGStore) HasEntry(ctx context.Context, accountID string, kind EntryKind, reference string) (bool, error) {
	q := db.QuerierFromCtx(ctx, s.DB)
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE account_id = $1 AND kind = $2 AND reference = $3)`,
		accountID, string(kind), reference).Scan(&exists)
	return exists, err
}

func (s *PGStore) Entries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	query := psql.Select("id", "account_id", "kind", "amount", "balance_after", "reference", "created_at").
		From("ledger_entries").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QuerierFromCtx(ctx, s.DB).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.AccountID, &kind, &e.Amount, &e.BalanceAfter, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = EntryKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertEntries(ctx context.Context, q db.Querier, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	insert := psql.Insert("ledger_entries").
		Columns("id", "account_id", "kind", "amount", "balance_after", "reference", "created_at")
	for _, e := range entries {
		insert = insert.Values(e.ID, e.AccountID, string(e.Kind), e.Amount, e.BalanceAfter, e.Reference, e.CreatedAt)
	}
	sqlStr, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	var passwordHash, avatarRef sql.NullString
	err := row.Scan(&a.ID, &a.Email, &a.Name, &passwordHash, &avatarRef, &a.CreditBalance, &a.LastCreditRefreshDate, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.PasswordHash = passwordHash.String
	a.AvatarRef = avatarRef.String
	a.LastCreditRefreshDate = CalendarDay(a.LastCreditRefreshDate, nil)
	return a, nil
}

func scanAccountInserted(row rowScanner) (Account, bool, error) {
	var a Account
	var inserted bool
	var passwordHash, avatarRef sql.NullString
	err := row.Scan(&a.ID, &a.Email, &a.Name, &passwordHash, &avatarRef, &a.CreditBalance, &a.LastCreditRefreshDate, &a.CreatedAt, &a.UpdatedAt, &inserted)
	if err != nil {
		return Account{}, false, err
	}
	a.PasswordHash = passwordHash.String
	a.AvatarRef = avatarRef.String
	a.LastCreditRefreshDate = CalendarDay(a.LastCreditRefreshDate, nil)
	return a, inserted, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Store = (*PGStore)(nil)
