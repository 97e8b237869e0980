package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

// TransactionRepository is the durable store for transaction records. It
// operates exclusively against PostgreSQL, the engine's source of truth for
// what was requested and what happened, never for balances.
type TransactionRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewTransactionRepository(db *sql.DB, logger *logrus.Logger) *TransactionRepository {
	return &TransactionRepository{db: db, logger: logger}
}

// EnsureSchema creates the transactions table and its indexes if absent.
func (r *TransactionRepository) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(36) PRIMARY KEY,
			reference_number VARCHAR(32) NOT NULL UNIQUE,
			type VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			direction VARCHAR(8) NOT NULL,
			transfer_type VARCHAR(16),
			from_account_id VARCHAR(36),
			from_account_number VARCHAR(16),
			from_owner_id VARCHAR(36),
			to_account_id VARCHAR(36),
			to_account_number VARCHAR(16),
			to_owner_id VARCHAR(36),
			amount BIGINT NOT NULL CHECK (amount > 0),
			currency VARCHAR(3) NOT NULL,
			balance_before BIGINT,
			balance_after BIGINT,
			category_id VARCHAR(36),
			description TEXT,
			notes TEXT,
			external_reference VARCHAR(64),
			external_provider VARCHAR(32),
			created_by VARCHAR(36) NOT NULL,
			updated_by VARCHAR(36),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external_reference
			ON transactions (external_reference) WHERE external_reference IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from_account ON transactions (from_account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to_account ON transactions (to_account_id)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure transactions schema: %w", err)
		}
	}
	return nil
}

const transactionColumns = `id, reference_number, type, status, direction, transfer_type,
	from_account_id, from_account_number, from_owner_id,
	to_account_id, to_account_number, to_owner_id,
	amount, currency, balance_before, balance_after,
	category_id, description, notes, external_reference, external_provider,
	created_by, updated_by, created_at, updated_at`

func (r *TransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.ReferenceNumber, t.Type, t.Status, t.Direction, nullString(string(t.TransferType)),
		nullString(t.FromAccountID), nullString(t.FromAccountNumber), nullString(t.FromOwnerID),
		nullString(t.ToAccountID), nullString(t.ToAccountNumber), nullString(t.ToOwnerID),
		t.Amount, t.Currency, nullInt(t.BalanceBefore), nullInt(t.BalanceAfter),
		nullString(t.CategoryID), nullString(t.Description), nullString(t.Notes),
		nullString(t.ExternalReference), nullString(t.ExternalProvider),
		t.CreatedBy, nullString(t.UpdatedBy), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to create transaction", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return r.getWhere(ctx, "reference_number = $1", reference)
}

// GetByExternalReference backs the duplicate-reference check. A missing row
// surfaces as a business not-found the caller treats as "reference free".
func (r *TransactionRepository) GetByExternalReference(ctx context.Context, externalReference string) (*models.Transaction, error) {
	return r.getWhere(ctx, "external_reference = $1", externalReference)
}

func (r *TransactionRepository) getWhere(ctx context.Context, where string, arg any) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + where
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "transaction not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to get transaction", err)
	}
	return t, nil
}

// UpdateStatus persists a status transition together with the snapshot and
// notes captured during processing. The transition itself is validated by
// the caller against the state machine before this runs.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, notes string, balanceBefore, balanceAfter *int64, updatedBy string) error {
	query := `
		UPDATE transactions
		SET status = $1,
			notes = COALESCE($2, notes),
			balance_before = COALESCE($3, balance_before),
			balance_after = COALESCE($4, balance_after),
			updated_by = $5,
			updated_at = $6
		WHERE id = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		status, nullString(notes), nullInt(balanceBefore), nullInt(balanceAfter),
		nullString(updatedBy), time.Now().UTC(), id,
	)
	if err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to update transaction status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.KindBusiness, errs.CodeNotFound, "transaction not found")
	}
	return nil
}

// List executes a composed predicate built by the query service. where must
// already carry $n placeholders numbered from 1; limit and offset are
// appended here.
func (r *TransactionRepository) List(ctx context.Context, where string, args []any, orderBy string, limit, offset int) ([]models.Transaction, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + transactionColumns + ` FROM transactions`)
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if orderBy != "" {
		b.WriteString(" ORDER BY " + orderBy)
	}
	b.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2))
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to list transactions", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to scan transaction", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to iterate transactions", err)
	}
	return out, nil
}

// CountByCategory reports how many transactions reference a category; used
// to block category deletion while in use.
func (r *TransactionRepository) CountByCategory(ctx context.Context, categoryID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE category_id = $1`, categoryID).Scan(&n)
	if err != nil {
		return 0, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to count transactions by category", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t                                             models.Transaction
		transferType                                  sql.NullString
		fromID, fromNumber, fromOwner                 sql.NullString
		toID, toNumber, toOwner                       sql.NullString
		balanceBefore, balanceAfter                   sql.NullInt64
		categoryID, description, notes                sql.NullString
		externalReference, externalProvider, updatedBy sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.ReferenceNumber, &t.Type, &t.Status, &t.Direction, &transferType,
		&fromID, &fromNumber, &fromOwner,
		&toID, &toNumber, &toOwner,
		&t.Amount, &t.Currency, &balanceBefore, &balanceAfter,
		&categoryID, &description, &notes, &externalReference, &externalProvider,
		&t.CreatedBy, &updatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TransferType = models.TransferType(transferType.String)
	t.FromAccountID = fromID.String
	t.FromAccountNumber = fromNumber.String
	t.FromOwnerID = fromOwner.String
	t.ToAccountID = toID.String
	t.ToAccountNumber = toNumber.String
	t.ToOwnerID = toOwner.String
	if balanceBefore.Valid {
		t.BalanceBefore = &balanceBefore.Int64
	}
	if balanceAfter.Valid {
		t.BalanceAfter = &balanceAfter.Int64
	}
	t.CategoryID = categoryID.String
	t.Description = description.String
	t.Notes = notes.String
	t.ExternalReference = externalReference.String
	t.ExternalProvider = externalProvider.String
	t.UpdatedBy = updatedBy.String
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
