package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

type listCall struct {
	where   string
	args    []any
	orderBy string
	limit   int
	offset  int
}

type mockReader struct {
	transactions map[string]*models.Transaction
	lists        []listCall
	listResult   []models.Transaction
}

func (m *mockReader) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	if t, ok := m.transactions[id]; ok {
		return t, nil
	}
	return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "transaction not found")
}

func (m *mockReader) GetByReference(_ context.Context, reference string) (*models.Transaction, error) {
	for _, t := range m.transactions {
		if t.ReferenceNumber == reference {
			return t, nil
		}
	}
	return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "transaction not found")
}

func (m *mockReader) List(_ context.Context, where string, args []any, orderBy string, limit, offset int) ([]models.Transaction, error) {
	m.lists = append(m.lists, listCall{where: where, args: args, orderBy: orderBy, limit: limit, offset: offset})
	return m.listResult, nil
}

type mockLedger struct {
	rows  []models.TransactionLog
	calls []string
}

func (m *mockLedger) ListByAccount(_ context.Context, accountID string, limit, offset int64) ([]models.TransactionLog, error) {
	m.calls = append(m.calls, fmt.Sprintf("%s:%d:%d", accountID, limit, offset))
	return m.rows, nil
}

type mockAccountClient struct {
	accounts map[string]*models.AccountInfo
	access   map[string]bool // accountID:userID
}

func (m *mockAccountClient) GetAccount(_ context.Context, accountID string) (*models.AccountInfo, error) {
	if a, ok := m.accounts[accountID]; ok {
		return a, nil
	}
	return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "account not found")
}

func (m *mockAccountClient) GetAccountByNumber(_ context.Context, accountNumber string) (*models.AccountInfo, error) {
	for _, a := range m.accounts {
		if a.Number == accountNumber {
			return a, nil
		}
	}
	return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "account not found")
}

func (m *mockAccountClient) Credit(_ context.Context, _ string, _ int64) error { return nil }
func (m *mockAccountClient) Debit(_ context.Context, _ string, _ int64) error  { return nil }

func (m *mockAccountClient) AccountExists(_ context.Context, accountID string) (bool, error) {
	_, ok := m.accounts[accountID]
	return ok, nil
}

func (m *mockAccountClient) HasAccountAccess(_ context.Context, accountID, userID string) (bool, error) {
	return m.access[accountID+":"+userID], nil
}

func newQueryFixture() (*Service, *mockReader, *mockLedger, *mockAccountClient) {
	reader := &mockReader{transactions: map[string]*models.Transaction{}}
	ledger := &mockLedger{}
	accounts := &mockAccountClient{
		accounts: map[string]*models.AccountInfo{},
		access:   map[string]bool{},
	}
	return NewService(reader, ledger, accounts, quietLogger()), reader, ledger, accounts
}

func TestListTransactionsScope(t *testing.T) {
	s, reader, _, _ := newQueryFixture()

	_, err := s.ListTransactions(context.Background(), "usr-1", nil, "", Page{})
	require.NoError(t, err)
	require.Len(t, reader.lists, 1)

	call := reader.lists[0]
	// The access scope is always the first predicate and binds the user once.
	assert.Equal(t, "(created_by = $1 OR from_owner_id = $1 OR to_owner_id = $1)", call.where)
	assert.Equal(t, []any{"usr-1"}, call.args)
	assert.Equal(t, "created_at DESC, id DESC", call.orderBy)
	assert.Equal(t, 20, call.limit)
	assert.Equal(t, 0, call.offset)
}

func TestListTransactionsWithFiltersAndSearch(t *testing.T) {
	s, reader, _, _ := newQueryFixture()

	_, err := s.ListTransactions(context.Background(), "usr-1",
		map[string]string{"status": "COMPLETED"}, "rent", Page{Number: 2, Size: 10})
	require.NoError(t, err)
	require.Len(t, reader.lists, 1)

	call := reader.lists[0]
	assert.Contains(t, call.where, "(created_by = $1 OR from_owner_id = $1 OR to_owner_id = $1)")
	assert.Contains(t, call.where, "status = $2")
	assert.Contains(t, call.where, "description ILIKE $3")
	assert.Equal(t, []any{"usr-1", "COMPLETED", "%rent%"}, call.args)
	assert.Equal(t, 10, call.limit)
	assert.Equal(t, 10, call.offset)
}

func TestListTransactionsRequiresUser(t *testing.T) {
	s, _, _, _ := newQueryFixture()
	_, err := s.ListTransactions(context.Background(), "", nil, "", Page{})
	require.Error(t, err)
	assert.Equal(t, errs.CodeInvalidRequest, errs.CodeOf(err))
}

func TestGetTransactionAccess(t *testing.T) {
	record := &models.Transaction{
		ID: "txn-1", ReferenceNumber: "TXN-20260829-ABCDEFGHJK",
		CreatedBy: "usr-1", FromOwnerID: "usr-1", ToOwnerID: "usr-2",
	}

	tests := []struct {
		name     string
		userID   string
		wantCode errs.Code
	}{
		{name: "creator sees it", userID: "usr-1"},
		{name: "target owner sees it", userID: "usr-2"},
		{name: "stranger forbidden", userID: "usr-9", wantCode: errs.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, reader, _, _ := newQueryFixture()
			reader.transactions["txn-1"] = record

			_, err := s.GetTransaction(context.Background(), tt.userID, "txn-1")
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errs.CodeOf(err))

			// Same rule applies to the reference lookup.
			_, err = s.GetTransactionByReference(context.Background(), tt.userID, record.ReferenceNumber)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errs.CodeOf(err))
		})
	}
}

func TestListAccountTransactions(t *testing.T) {
	owner := &models.AccountInfo{ID: "acc-1", Number: "11111111", UserID: "usr-1"}

	t.Run("owner allowed, symmetric predicate", func(t *testing.T) {
		s, reader, _, accounts := newQueryFixture()
		accounts.accounts["acc-1"] = owner

		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		_, err := s.ListAccountTransactions(context.Background(), "usr-1", "11111111", &from, nil, models.DirectionDebit, Page{})
		require.NoError(t, err)
		require.Len(t, reader.lists, 1)

		call := reader.lists[0]
		assert.Contains(t, call.where, "(from_account_number = $1 OR to_account_number = $1)")
		assert.Contains(t, call.where, "created_at >= $2")
		assert.Contains(t, call.where, "direction = $3")
	})

	t.Run("delegate with access allowed", func(t *testing.T) {
		s, _, _, accounts := newQueryFixture()
		accounts.accounts["acc-1"] = owner
		accounts.access["acc-1:usr-3"] = true

		_, err := s.ListAccountTransactions(context.Background(), "usr-3", "11111111", nil, nil, "", Page{})
		assert.NoError(t, err)
	})

	t.Run("stranger forbidden", func(t *testing.T) {
		s, _, _, accounts := newQueryFixture()
		accounts.accounts["acc-1"] = owner

		_, err := s.ListAccountTransactions(context.Background(), "usr-9", "11111111", nil, nil, "", Page{})
		require.Error(t, err)
		assert.Equal(t, errs.CodeForbidden, errs.CodeOf(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		s, _, _, _ := newQueryFixture()
		_, err := s.ListAccountTransactions(context.Background(), "usr-1", "00000000", nil, nil, "", Page{})
		require.Error(t, err)
		assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
	})
}

func TestListAccountLedger(t *testing.T) {
	owner := &models.AccountInfo{ID: "acc-1", Number: "11111111", UserID: "usr-1"}

	t.Run("resolves number to account id", func(t *testing.T) {
		s, _, ledger, accounts := newQueryFixture()
		accounts.accounts["acc-1"] = owner
		ledger.rows = []models.TransactionLog{{ID: "log-1", AccountID: "acc-1"}}

		rows, err := s.ListAccountLedger(context.Background(), "usr-1", "11111111", Page{Number: 2, Size: 25})
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Equal(t, []string{"acc-1:25:25"}, ledger.calls)
	})

	t.Run("stranger forbidden", func(t *testing.T) {
		s, _, ledger, accounts := newQueryFixture()
		accounts.accounts["acc-1"] = owner

		_, err := s.ListAccountLedger(context.Background(), "usr-9", "11111111", Page{})
		require.Error(t, err)
		assert.Equal(t, errs.CodeForbidden, errs.CodeOf(err))
		assert.Empty(t, ledger.calls)
	})
}
