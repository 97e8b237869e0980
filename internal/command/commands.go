// Package command holds the write side of the engine: transaction creation,
// the processing state machine, ledger logging and category administration.
package command

import (
	"context"

	"github.com/harborbank/transaction-engine/internal/models"
)

// SystemActor stamps status changes made by the engine itself rather than a
// user.
const SystemActor = "system"

// TransactionStore is the slice of the transaction repository the command
// services depend on.
type TransactionStore interface {
	Create(ctx context.Context, t *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByExternalReference(ctx context.Context, externalReference string) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, id string, status models.TransactionStatus, notes string, balanceBefore, balanceAfter *int64, updatedBy string) error
	CountByCategory(ctx context.Context, categoryID string) (int64, error)
}

// CategoryStore is the slice of the category repository used here.
type CategoryStore interface {
	Create(ctx context.Context, c *models.TransactionCategory) error
	GetByID(ctx context.Context, id string) (*models.TransactionCategory, error)
	GetByName(ctx context.Context, name string) (*models.TransactionCategory, error)
	Update(ctx context.Context, c *models.TransactionCategory) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, includeInactive, includeSystem bool, limit, offset int) ([]models.TransactionCategory, error)
}

// LedgerStore appends immutable ledger rows.
type LedgerStore interface {
	Insert(ctx context.Context, logs []models.TransactionLog) error
}

// EventPublisher emits engine events. Publish failures are logged by the
// caller, never propagated.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// Enqueuer hands a transaction id to the deferred-processing queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, transactionID string) error
}

// Processor drives a PENDING transaction through the state machine.
type Processor interface {
	Process(ctx context.Context, transactionID string) (*models.Transaction, error)
}

// CreateTransactionCommand carries a validated creation request. The acting
// user is threaded explicitly alongside it.
type CreateTransactionCommand struct {
	Type              models.TransactionType
	FromAccountNumber string
	ToAccountNumber   string
	Amount            int64
	Currency          string
	Description       string
	Notes             string
	CategoryID        string
	ExternalReference string
	ExternalProvider  string
}

// CreateCategoryCommand carries a category creation request.
type CreateCategoryCommand struct {
	Name        string
	Description string
	Icon        string
	Color       string
}

// UpdateCategoryCommand carries a category update. Zero-valued fields keep
// their current value; Active is a tri-state for the same reason.
type UpdateCategoryCommand struct {
	Name        string
	Description string
	Icon        string
	Color       string
	Active      *bool
}
