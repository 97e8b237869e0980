package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

// CategoryRepository stores the transaction category taxonomy in PostgreSQL.
type CategoryRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewCategoryRepository(db *sql.DB, logger *logrus.Logger) *CategoryRepository {
	return &CategoryRepository{db: db, logger: logger}
}

func (r *CategoryRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS transaction_categories (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(64) NOT NULL UNIQUE,
			description TEXT,
			icon VARCHAR(32),
			color VARCHAR(16),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_system BOOLEAN NOT NULL DEFAULT FALSE,
			created_by VARCHAR(36),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure categories schema: %w", err)
	}
	return nil
}

const categoryColumns = `id, name, description, icon, color, is_active, is_system, created_by, created_at, updated_at`

func (r *CategoryRepository) Create(ctx context.Context, c *models.TransactionCategory) error {
	query := `
		INSERT INTO transaction_categories (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Name, nullString(c.Description), nullString(c.Icon), nullString(c.Color),
		c.IsActive, c.IsSystem, nullString(c.CreatedBy), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to create category", err)
	}
	return nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*models.TransactionCategory, error) {
	return r.getWhere(ctx, "id = $1", id)
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*models.TransactionCategory, error) {
	return r.getWhere(ctx, "name = $1", name)
}

func (r *CategoryRepository) getWhere(ctx context.Context, where string, arg any) (*models.TransactionCategory, error) {
	query := `SELECT ` + categoryColumns + ` FROM transaction_categories WHERE ` + where
	c, err := scanCategory(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "category not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to get category", err)
	}
	return c, nil
}

func (r *CategoryRepository) Update(ctx context.Context, c *models.TransactionCategory) error {
	query := `
		UPDATE transaction_categories
		SET name = $1, description = $2, icon = $3, color = $4, is_active = $5, updated_at = $6
		WHERE id = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		c.Name, nullString(c.Description), nullString(c.Icon), nullString(c.Color),
		c.IsActive, time.Now().UTC(), c.ID,
	)
	if err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to update category", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.KindBusiness, errs.CodeNotFound, "category not found")
	}
	return nil
}

func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transaction_categories WHERE id = $1`, id)
	if err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to delete category", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.KindBusiness, errs.CodeNotFound, "category not found")
	}
	return nil
}

// List returns categories, newest last. Inactive and system rows are
// excluded unless asked for.
func (r *CategoryRepository) List(ctx context.Context, includeInactive, includeSystem bool, limit, offset int) ([]models.TransactionCategory, error) {
	query := `SELECT ` + categoryColumns + ` FROM transaction_categories WHERE 1=1`
	if !includeInactive {
		query += ` AND is_active = TRUE`
	}
	if !includeSystem {
		query += ` AND is_system = FALSE`
	}
	query += ` ORDER BY name ASC LIMIT $1 OFFSET $2`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to list categories", err)
	}
	defer rows.Close()

	var out []models.TransactionCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to scan category", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to iterate categories", err)
	}
	return out, nil
}

func scanCategory(row rowScanner) (*models.TransactionCategory, error) {
	var (
		c                                   models.TransactionCategory
		description, icon, color, createdBy sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &description, &icon, &color, &c.IsActive, &c.IsSystem, &createdBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Description = description.String
	c.Icon = icon.String
	c.Color = color.String
	c.CreatedBy = createdBy.String
	return &c, nil
}
