package query

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/accountclient"
	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

// TransactionReader is the slice of the transaction repository the query
// side depends on.
type TransactionReader interface {
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetByReference(ctx context.Context, reference string) (*models.Transaction, error)
	List(ctx context.Context, where string, args []any, orderBy string, limit, offset int) ([]models.Transaction, error)
}

// Page carries pagination and sorting for list queries.
type Page struct {
	Number    int
	Size      int
	SortBy    string
	SortOrder string
}

// LedgerReader serves the per-account ledger view.
type LedgerReader interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int64) ([]models.TransactionLog, error)
}

// Service serves transaction reads. Every query is scoped to records the
// user created or participates in as an account owner.
type Service struct {
	transactions TransactionReader
	ledger       LedgerReader
	accounts     accountclient.Client
	logger       *logrus.Logger
}

func NewService(transactions TransactionReader, ledger LedgerReader, accounts accountclient.Client, logger *logrus.Logger) *Service {
	return &Service{transactions: transactions, ledger: ledger, accounts: accounts, logger: logger}
}

// sortColumns whitelists ORDER BY targets.
var sortColumns = map[string]bool{
	"created_at": true,
	"amount":     true,
	"status":     true,
	"type":       true,
}

// ListTransactions compiles the filter map, the free-text search and the
// access scope into one predicate and executes it. A bad filter never fails
// the request; it is skipped.
func (s *Service) ListTransactions(ctx context.Context, userID string, filters map[string]string, search string, page Page) ([]models.Transaction, error) {
	if userID == "" {
		return nil, errs.New(errs.KindValidation, errs.CodeInvalidRequest, "acting user is required")
	}

	b := &builder{}
	scope := b.bind(userID)
	b.add(fmt.Sprintf("(created_by = %s OR from_owner_id = %s OR to_owner_id = %s)", scope, scope, scope))

	for _, f := range ParseFilters(filters, s.logger) {
		f.apply(b)
	}
	if search != "" {
		textSearch{value: search}.apply(b)
	}

	limit, offset := page.limits()
	return s.transactions.List(ctx, b.where(), b.args, page.orderBy(), limit, offset)
}

// GetTransaction returns one transaction by id, subject to the access scope.
func (s *Service) GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.checkAccess(userID, t)
}

// GetTransactionByReference returns one transaction by its business-facing
// reference number.
func (s *Service) GetTransactionByReference(ctx context.Context, userID, reference string) (*models.Transaction, error) {
	t, err := s.transactions.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.checkAccess(userID, t)
}

// ListAccountTransactions lists one account's transactions with an optional
// date range and direction. Access to the account is verified against the
// account service.
func (s *Service) ListAccountTransactions(ctx context.Context, userID, accountNumber string, from, to *time.Time, direction models.TransactionDirection, page Page) ([]models.Transaction, error) {
	account, err := s.accounts.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		ok, err := s.accounts.HasAccountAccess(ctx, account.ID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.New(errs.KindBusiness, errs.CodeForbidden, "user has no access to this account")
		}
	}

	b := &builder{}
	p := b.bind(accountNumber)
	b.add(fmt.Sprintf("(from_account_number = %s OR to_account_number = %s)", p, p))
	if from != nil {
		b.add(fmt.Sprintf("created_at >= %s", b.bind(*from)))
	}
	if to != nil {
		b.add(fmt.Sprintf("created_at <= %s", b.bind(*to)))
	}
	if direction != "" {
		b.add(fmt.Sprintf("direction = %s", b.bind(string(direction))))
	}

	limit, offset := page.limits()
	return s.transactions.List(ctx, b.where(), b.args, page.orderBy(), limit, offset)
}

// ListAccountLedger returns the append-only ledger rows for one account,
// newest first. Access is verified the same way as the transaction listing.
func (s *Service) ListAccountLedger(ctx context.Context, userID, accountNumber string, page Page) ([]models.TransactionLog, error) {
	account, err := s.accounts.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		ok, err := s.accounts.HasAccountAccess(ctx, account.ID, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.New(errs.KindBusiness, errs.CodeForbidden, "user has no access to this account")
		}
	}

	limit, offset := page.limits()
	return s.ledger.ListByAccount(ctx, account.ID, int64(limit), int64(offset))
}

func (s *Service) checkAccess(userID string, t *models.Transaction) (*models.Transaction, error) {
	if t.CreatedBy == userID || t.FromOwnerID == userID || t.ToOwnerID == userID {
		return t, nil
	}
	return nil, errs.New(errs.KindBusiness, errs.CodeForbidden, "user has no access to this transaction")
}

func (p Page) limits() (limit, offset int) {
	size := p.Size
	if size < 1 || size > 100 {
		size = 20
	}
	number := p.Number
	if number < 1 {
		number = 1
	}
	return size, (number - 1) * size
}

// orderBy always ends on id so identical queries return identically ordered
// results.
func (p Page) orderBy() string {
	column := p.SortBy
	if !sortColumns[column] {
		column = "created_at"
	}
	order := "DESC"
	if p.SortOrder == "asc" || p.SortOrder == "ASC" {
		order = "ASC"
	}
	return fmt.Sprintf("%s %s, id %s", column, order, order)
}
