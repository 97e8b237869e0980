package command

import (
	"context"
	"fmt"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

func errNotFound() error {
	return errs.New(errs.KindBusiness, errs.CodeNotFound, "account not found")
}

// ---- mock implementations ----

type statusUpdate struct {
	id            string
	status        models.TransactionStatus
	notes         string
	balanceBefore *int64
	balanceAfter  *int64
	updatedBy     string
}

type mockTransactionStore struct {
	created []*models.Transaction
	updates []statusUpdate

	getByIDFn   func(id string) (*models.Transaction, error)
	getByExtFn  func(ref string) (*models.Transaction, error)
	createErr   error
	updateErr   error
	countFn     func(categoryID string) (int64, error)
}

func (m *mockTransactionStore) Create(_ context.Context, t *models.Transaction) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, t)
	return nil
}

func (m *mockTransactionStore) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(id)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockTransactionStore) GetByExternalReference(_ context.Context, ref string) (*models.Transaction, error) {
	if m.getByExtFn != nil {
		return m.getByExtFn(ref)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockTransactionStore) UpdateStatus(_ context.Context, id string, status models.TransactionStatus, notes string, balanceBefore, balanceAfter *int64, updatedBy string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, statusUpdate{
		id: id, status: status, notes: notes,
		balanceBefore: balanceBefore, balanceAfter: balanceAfter, updatedBy: updatedBy,
	})
	return nil
}

func (m *mockTransactionStore) CountByCategory(_ context.Context, categoryID string) (int64, error) {
	if m.countFn != nil {
		return m.countFn(categoryID)
	}
	return 0, nil
}

type mockCategoryStore struct {
	getByIDFn   func(id string) (*models.TransactionCategory, error)
	getByNameFn func(name string) (*models.TransactionCategory, error)
	created     []*models.TransactionCategory
	updated     []*models.TransactionCategory
	deleted     []string
	createErr   error
}

func (m *mockCategoryStore) Create(_ context.Context, c *models.TransactionCategory) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, c)
	return nil
}

func (m *mockCategoryStore) GetByID(_ context.Context, id string) (*models.TransactionCategory, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(id)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockCategoryStore) GetByName(_ context.Context, name string) (*models.TransactionCategory, error) {
	if m.getByNameFn != nil {
		return m.getByNameFn(name)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockCategoryStore) Update(_ context.Context, c *models.TransactionCategory) error {
	m.updated = append(m.updated, c)
	return nil
}

func (m *mockCategoryStore) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCategoryStore) List(_ context.Context, includeInactive, includeSystem bool, limit, offset int) ([]models.TransactionCategory, error) {
	return nil, nil
}

type mockLedgerStore struct {
	inserted [][]models.TransactionLog
	err      error
}

func (m *mockLedgerStore) Insert(_ context.Context, logs []models.TransactionLog) error {
	if m.err != nil {
		return m.err
	}
	m.inserted = append(m.inserted, logs)
	return nil
}

type publishedEvent struct {
	stream    string
	eventType string
	data      any
}

type mockPublisher struct {
	events []publishedEvent
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, stream, eventType string, data any) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, publishedEvent{stream: stream, eventType: eventType, data: data})
	return nil
}

type mockEnqueuer struct {
	ids []string
	err error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, transactionID string) error {
	if m.err != nil {
		return m.err
	}
	m.ids = append(m.ids, transactionID)
	return nil
}

type mockProcessor struct {
	processFn func(transactionID string) (*models.Transaction, error)
	ids       []string
}

func (m *mockProcessor) Process(_ context.Context, transactionID string) (*models.Transaction, error) {
	m.ids = append(m.ids, transactionID)
	if m.processFn != nil {
		return m.processFn(transactionID)
	}
	return nil, fmt.Errorf("not configured")
}

// mockAccounts records the call order so tests can assert debit-before-credit.
type mockAccounts struct {
	accounts map[string]*models.AccountInfo // keyed by number and by id
	calls    []string
	creditFn func(accountID string, amount int64) error
	debitFn  func(accountID string, amount int64) error
}

func newMockAccounts(accounts ...*models.AccountInfo) *mockAccounts {
	m := &mockAccounts{accounts: map[string]*models.AccountInfo{}}
	for _, a := range accounts {
		m.accounts[a.ID] = a
		m.accounts[a.Number] = a
	}
	return m
}

func (m *mockAccounts) lookup(key string) (*models.AccountInfo, error) {
	if a, ok := m.accounts[key]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, errNotFound()
}

func (m *mockAccounts) GetAccount(_ context.Context, accountID string) (*models.AccountInfo, error) {
	m.calls = append(m.calls, "get:"+accountID)
	return m.lookup(accountID)
}

func (m *mockAccounts) GetAccountByNumber(_ context.Context, accountNumber string) (*models.AccountInfo, error) {
	m.calls = append(m.calls, "getByNumber:"+accountNumber)
	return m.lookup(accountNumber)
}

func (m *mockAccounts) Credit(_ context.Context, accountID string, amount int64) error {
	m.calls = append(m.calls, fmt.Sprintf("credit:%s:%d", accountID, amount))
	if m.creditFn != nil {
		return m.creditFn(accountID, amount)
	}
	if a, ok := m.accounts[accountID]; ok {
		a.Balance += amount
	}
	return nil
}

func (m *mockAccounts) Debit(_ context.Context, accountID string, amount int64) error {
	m.calls = append(m.calls, fmt.Sprintf("debit:%s:%d", accountID, amount))
	if m.debitFn != nil {
		return m.debitFn(accountID, amount)
	}
	if a, ok := m.accounts[accountID]; ok {
		a.Balance -= amount
	}
	return nil
}

func (m *mockAccounts) AccountExists(_ context.Context, accountID string) (bool, error) {
	_, ok := m.accounts[accountID]
	return ok, nil
}

func (m *mockAccounts) HasAccountAccess(_ context.Context, accountID, userID string) (bool, error) {
	a, ok := m.accounts[accountID]
	return ok && a.UserID == userID, nil
}
