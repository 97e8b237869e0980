package command

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
	"github.com/harborbank/transaction-engine/internal/validation"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func activeAccount(id, number, userID string, balance int64) *models.AccountInfo {
	return &models.AccountInfo{ID: id, Number: number, UserID: userID, Balance: balance, Status: models.AccountStatusActive}
}

type creationFixture struct {
	store      *mockTransactionStore
	categories *mockCategoryStore
	accounts   *mockAccounts
	publisher  *mockPublisher
	queue      *mockEnqueuer
	processor  *mockProcessor
	service    *CreationService
}

func newCreationFixture(accounts *mockAccounts) *creationFixture {
	f := &creationFixture{
		store: &mockTransactionStore{
			getByExtFn: func(string) (*models.Transaction, error) { return nil, errNotFound() },
		},
		categories: &mockCategoryStore{},
		accounts:   accounts,
		publisher:  &mockPublisher{},
		queue:      &mockEnqueuer{},
		processor: &mockProcessor{
			processFn: func(id string) (*models.Transaction, error) {
				return &models.Transaction{ID: id, Status: models.StatusCompleted}, nil
			},
		},
	}
	logger := quietLogger()
	f.service = NewCreationService(
		f.store, f.categories, f.accounts, validation.NewService(logger),
		f.publisher, f.queue, f.processor, logger,
	)
	return f
}

func TestCreateTransactionImmediate(t *testing.T) {
	source := activeAccount("acc-1", "11111111", "usr-1", 10000)
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	f := newCreationFixture(newMockAccounts(source, target))

	out, err := f.service.CreateTransaction(context.Background(), "usr-1", CreateTransactionCommand{
		Type:              models.TypeTransfer,
		FromAccountNumber: "11111111",
		ToAccountNumber:   "22222222",
		Amount:            2500,
		Currency:          "GBP",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, out.Status)

	require.Len(t, f.store.created, 1)
	created := f.store.created[0]
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, models.DirectionDebit, created.Direction)
	assert.Equal(t, models.TransferExternal, created.TransferType)
	assert.Equal(t, "usr-1", created.CreatedBy)
	assert.Equal(t, "usr-1", created.FromOwnerID)
	assert.Equal(t, "usr-2", created.ToOwnerID)
	assert.NotEmpty(t, created.ID)
	assert.Contains(t, created.ReferenceNumber, "TXN-")

	// Immediate types go straight to processing, never to the queue.
	assert.Equal(t, []string{created.ID}, f.processor.ids)
	assert.Empty(t, f.queue.ids)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "transaction.created", f.publisher.events[0].eventType)
}

func TestCreateTransactionDeferred(t *testing.T) {
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	f := newCreationFixture(newMockAccounts(target))

	out, err := f.service.CreateTransaction(context.Background(), "usr-1", CreateTransactionCommand{
		Type:            models.TypeRefund,
		ToAccountNumber: "22222222",
		Amount:          300,
		Currency:        "GBP",
	})
	require.NoError(t, err)

	// Deferred types stay PENDING until the processor worker picks them up.
	assert.Equal(t, models.StatusPending, out.Status)
	assert.Equal(t, []string{out.ID}, f.queue.ids)
	assert.Empty(t, f.processor.ids)
}

func TestCreateTransactionRejections(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		cmd      CreateTransactionCommand
		wantCode errs.Code
	}{
		{
			name:   "missing acting user",
			userID: "",
			cmd: CreateTransactionCommand{
				Type: models.TypeDeposit, ToAccountNumber: "22222222", Amount: 100,
			},
			wantCode: errs.CodeInvalidRequest,
		},
		{
			name:   "same account transfer",
			userID: "usr-1",
			cmd: CreateTransactionCommand{
				Type: models.TypeTransfer, FromAccountNumber: "11111111", ToAccountNumber: "11111111", Amount: 100,
			},
			wantCode: errs.CodeSameAccount,
		},
		{
			name:   "withdrawal from foreign account",
			userID: "usr-9",
			cmd: CreateTransactionCommand{
				Type: models.TypeWithdrawal, FromAccountNumber: "11111111", Amount: 100,
			},
			wantCode: errs.CodeForbidden,
		},
		{
			name:   "unknown source account",
			userID: "usr-1",
			cmd: CreateTransactionCommand{
				Type: models.TypePayment, FromAccountNumber: "99999999", Amount: 100,
			},
			wantCode: errs.CodeNotFound,
		},
		{
			name:   "insufficient balance",
			userID: "usr-1",
			cmd: CreateTransactionCommand{
				Type: models.TypeWithdrawal, FromAccountNumber: "11111111", Amount: 999999,
			},
			wantCode: errs.CodeInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := activeAccount("acc-1", "11111111", "usr-1", 10000)
			f := newCreationFixture(newMockAccounts(source))

			_, err := f.service.CreateTransaction(context.Background(), tt.userID, tt.cmd)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errs.CodeOf(err))
			assert.Empty(t, f.store.created, "rejected request must not persist a record")
		})
	}
}

func TestCreateTransactionInactiveAccount(t *testing.T) {
	frozen := &models.AccountInfo{ID: "acc-3", Number: "33333333", UserID: "usr-1", Balance: 10000, Status: "FROZEN"}
	f := newCreationFixture(newMockAccounts(frozen))

	_, err := f.service.CreateTransaction(context.Background(), "usr-1", CreateTransactionCommand{
		Type: models.TypeWithdrawal, FromAccountNumber: "33333333", Amount: 100,
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInactiveAccount, errs.CodeOf(err))
}

func TestCreateTransactionDuplicateExternalReference(t *testing.T) {
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	f := newCreationFixture(newMockAccounts(target))
	f.store.getByExtFn = func(ref string) (*models.Transaction, error) {
		return &models.Transaction{ID: "txn-existing", ExternalReference: ref}, nil
	}

	_, err := f.service.CreateTransaction(context.Background(), "usr-1", CreateTransactionCommand{
		Type:              models.TypeDeposit,
		ToAccountNumber:   "22222222",
		Amount:            100,
		ExternalReference: "EXT-1",
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeDuplicateReference, errs.CodeOf(err))
	assert.Empty(t, f.store.created)
}

func TestCreateTransactionUnknownCategory(t *testing.T) {
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	f := newCreationFixture(newMockAccounts(target))
	f.categories.getByIDFn = func(string) (*models.TransactionCategory, error) {
		return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "category not found")
	}

	_, err := f.service.CreateTransaction(context.Background(), "usr-1", CreateTransactionCommand{
		Type: models.TypeDeposit, ToAccountNumber: "22222222", Amount: 100, CategoryID: "cat-missing",
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestCreateTransactionEnqueueFailure(t *testing.T) {
	target := activeAccount("acc-2", "22222222", "usr-2", 500)
	f := newCreationFixture(newMockAccounts(target))
	f.queue.err = errs.New(errs.KindInfrastructure, errs.CodeUnavailable, "broker down")

	_, err := f.service.CreateTransaction(context.Background(), "usr-1", CreateTransactionCommand{
		Type: models.TypeInterest, ToAccountNumber: "22222222", Amount: 100,
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeUnavailable, errs.CodeOf(err))
	// The record is persisted; only the scheduling failed.
	assert.Len(t, f.store.created, 1)
}

func TestCreateTransactionInternalTransfer(t *testing.T) {
	source := activeAccount("acc-1", "11111111", "usr-1", 10000)
	target := activeAccount("acc-4", "44444444", "usr-1", 0)
	f := newCreationFixture(newMockAccounts(source, target))

	_, err := f.service.CreateTransaction(context.Background(), "usr-1", CreateTransactionCommand{
		Type: models.TypeTransfer, FromAccountNumber: "11111111", ToAccountNumber: "44444444", Amount: 100,
	})
	require.NoError(t, err)
	require.Len(t, f.store.created, 1)
	assert.Equal(t, models.TransferInternal, f.store.created[0].TransferType)
}
