package command

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
	"github.com/harborbank/transaction-engine/internal/validation"
)

type processingFixture struct {
	store     *mockTransactionStore
	accounts  *mockAccounts
	ledger    *mockLedgerStore
	publisher *mockPublisher
	service   *ProcessingService
}

func newProcessingFixture(record *models.Transaction, accounts *mockAccounts) *processingFixture {
	f := &processingFixture{
		store: &mockTransactionStore{
			getByIDFn: func(id string) (*models.Transaction, error) {
				if record != nil && record.ID == id {
					copied := *record
					return &copied, nil
				}
				return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "transaction not found")
			},
		},
		accounts:  accounts,
		ledger:    &mockLedgerStore{},
		publisher: &mockPublisher{},
	}
	logger := quietLogger()
	f.service = NewProcessingService(
		f.store, f.accounts, NewLogService(f.ledger, logger),
		validation.NewService(logger), f.publisher, logger,
	)
	return f
}

func pendingTransfer(amount int64) *models.Transaction {
	return &models.Transaction{
		ID:                "txn-1",
		ReferenceNumber:   "TXN-20260829-ABCDEFGHJK",
		Type:              models.TypeTransfer,
		Status:            models.StatusPending,
		Direction:         models.DirectionDebit,
		Amount:            amount,
		Currency:          "GBP",
		FromAccountID:     "acc-1",
		FromAccountNumber: "11111111",
		FromOwnerID:       "usr-1",
		ToAccountID:       "acc-2",
		ToAccountNumber:   "22222222",
		ToOwnerID:         "usr-2",
		CreatedBy:         "usr-1",
	}
}

func TestProcessTransferSuccess(t *testing.T) {
	source := activeAccount("acc-1", "11111111", "usr-1", 10000)
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	f := newProcessingFixture(pendingTransfer(2500), newMockAccounts(source, target))

	out, err := f.service.Process(context.Background(), "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, out.Status)

	// PROCESSING is persisted before any balance moves, then COMPLETED.
	require.Len(t, f.store.updates, 2)
	assert.Equal(t, models.StatusProcessing, f.store.updates[0].status)
	assert.Equal(t, models.StatusCompleted, f.store.updates[1].status)
	require.NotNil(t, f.store.updates[1].balanceBefore)
	assert.Equal(t, int64(10000), *f.store.updates[1].balanceBefore)
	assert.Equal(t, int64(7500), *f.store.updates[1].balanceAfter)

	// The source is debited before the target is credited.
	var mutations []string
	for _, call := range f.accounts.calls {
		if call == "debit:acc-1:2500" || call == "credit:acc-2:2500" {
			mutations = append(mutations, call)
		}
	}
	assert.Equal(t, []string{"debit:acc-1:2500", "credit:acc-2:2500"}, mutations)

	// One debit row and one credit row land in the ledger.
	require.Len(t, f.ledger.inserted, 1)
	rows := f.ledger.inserted[0]
	require.Len(t, rows, 2)
	assert.Equal(t, models.DirectionDebit, rows[0].Direction)
	assert.Equal(t, "acc-1", rows[0].AccountID)
	assert.Equal(t, int64(10000), rows[0].BalanceBefore)
	assert.Equal(t, int64(7500), rows[0].BalanceAfter)
	assert.Equal(t, models.DirectionCredit, rows[1].Direction)
	assert.Equal(t, "acc-2", rows[1].AccountID)
	assert.Equal(t, int64(500), rows[1].BalanceBefore)
	assert.Equal(t, int64(3000), rows[1].BalanceAfter)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "transaction.status_changed", f.publisher.events[0].eventType)
}

func TestProcessTransferCreditFailureCompensates(t *testing.T) {
	source := activeAccount("acc-1", "11111111", "usr-1", 10000)
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	accounts := newMockAccounts(source, target)
	accounts.creditFn = func(accountID string, amount int64) error {
		if accountID == "acc-2" {
			return errs.New(errs.KindInfrastructure, errs.CodeUnavailable, "credit rejected")
		}
		accounts.accounts[accountID].Balance += amount
		return nil
	}
	f := newProcessingFixture(pendingTransfer(2500), accounts)

	_, err := f.service.Process(context.Background(), "txn-1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeProcessingFailed, errs.CodeOf(err))

	// The failed target credit is followed by a compensating source credit.
	assert.Contains(t, f.accounts.calls, "credit:acc-1:2500")
	assert.Equal(t, int64(10000), accounts.accounts["acc-1"].Balance)

	require.Len(t, f.store.updates, 2)
	assert.Equal(t, models.StatusFailed, f.store.updates[1].status)
	assert.Contains(t, f.store.updates[1].notes, "processing failed")

	// Nothing reaches the ledger for a failed settlement.
	assert.Empty(t, f.ledger.inserted)
}

func TestProcessRejectsNonPending(t *testing.T) {
	record := pendingTransfer(100)
	record.Status = models.StatusCompleted
	f := newProcessingFixture(record, newMockAccounts())

	_, err := f.service.Process(context.Background(), "txn-1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
	assert.Empty(t, f.store.updates)
	assert.Empty(t, f.accounts.calls)
}

func TestProcessInsufficientBalanceFails(t *testing.T) {
	source := activeAccount("acc-1", "11111111", "usr-1", 100)
	target := activeAccount("acc-2", "22222222", "usr-2", 0)
	f := newProcessingFixture(pendingTransfer(2500), newMockAccounts(source, target))

	_, err := f.service.Process(context.Background(), "txn-1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeProcessingFailed, errs.CodeOf(err))

	require.Len(t, f.store.updates, 2)
	assert.Equal(t, models.StatusFailed, f.store.updates[1].status)

	// The balance check happens before any mutation.
	for _, call := range f.accounts.calls {
		assert.NotContains(t, call, "debit:")
		assert.NotContains(t, call, "credit:")
	}
}

func TestProcessDeposit(t *testing.T) {
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	record := &models.Transaction{
		ID: "txn-2", ReferenceNumber: "TXN-20260829-BCDEFGHJKL",
		Type: models.TypeDeposit, Status: models.StatusPending,
		Direction: models.DirectionCredit, Amount: 1000, Currency: "GBP",
		ToAccountID: "acc-2", ToAccountNumber: "22222222", ToOwnerID: "usr-2",
		CreatedBy: "usr-2",
	}
	f := newProcessingFixture(record, newMockAccounts(target))

	out, err := f.service.Process(context.Background(), "txn-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, out.Status)
	require.NotNil(t, out.BalanceBefore)
	assert.Equal(t, int64(500), *out.BalanceBefore)
	assert.Equal(t, int64(1500), *out.BalanceAfter)

	require.Len(t, f.ledger.inserted, 1)
	require.Len(t, f.ledger.inserted[0], 1)
	assert.Equal(t, models.DirectionCredit, f.ledger.inserted[0][0].Direction)
}

func TestProcessLedgerFailureKeepsCompletion(t *testing.T) {
	source := activeAccount("acc-1", "11111111", "usr-1", 10000)
	record := &models.Transaction{
		ID: "txn-3", ReferenceNumber: "TXN-20260829-CDEFGHJKLM",
		Type: models.TypeWithdrawal, Status: models.StatusPending,
		Direction: models.DirectionDebit, Amount: 400, Currency: "GBP",
		FromAccountID: "acc-1", FromAccountNumber: "11111111", FromOwnerID: "usr-1",
		CreatedBy: "usr-1",
	}
	f := newProcessingFixture(record, newMockAccounts(source))
	f.ledger.err = fmt.Errorf("mongo unavailable")

	out, err := f.service.Process(context.Background(), "txn-3")
	require.NoError(t, err, "a ledger write failure must not fail a settled transaction")
	assert.Equal(t, models.StatusCompleted, out.Status)
}

func TestCancel(t *testing.T) {
	t.Run("creator cancels pending", func(t *testing.T) {
		f := newProcessingFixture(pendingTransfer(100), newMockAccounts())
		out, err := f.service.Cancel(context.Background(), "usr-1", "txn-1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, out.Status)
		require.Len(t, f.store.updates, 1)
		assert.Equal(t, "usr-1", f.store.updates[0].updatedBy)
	})

	t.Run("non creator forbidden", func(t *testing.T) {
		f := newProcessingFixture(pendingTransfer(100), newMockAccounts())
		_, err := f.service.Cancel(context.Background(), "usr-2", "txn-1")
		require.Error(t, err)
		assert.Equal(t, errs.CodeForbidden, errs.CodeOf(err))
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		record := pendingTransfer(100)
		record.Status = models.StatusCompleted
		f := newProcessingFixture(record, newMockAccounts())
		_, err := f.service.Cancel(context.Background(), "usr-1", "txn-1")
		require.Error(t, err)
		assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
	})
}

func TestReverse(t *testing.T) {
	t.Run("completed reverses with reason in notes", func(t *testing.T) {
		record := pendingTransfer(100)
		record.Status = models.StatusCompleted
		f := newProcessingFixture(record, newMockAccounts())
		out, err := f.service.Reverse(context.Background(), "usr-1", "txn-1", "merchant dispute")
		require.NoError(t, err)
		assert.Equal(t, models.StatusReversed, out.Status)
		assert.Contains(t, out.Notes, "merchant dispute")
	})

	t.Run("pending cannot be reversed", func(t *testing.T) {
		f := newProcessingFixture(pendingTransfer(100), newMockAccounts())
		_, err := f.service.Reverse(context.Background(), "usr-1", "txn-1", "mistake")
		require.Error(t, err)
		assert.Equal(t, errs.CodeInvalidTransition, errs.CodeOf(err))
	})
}
