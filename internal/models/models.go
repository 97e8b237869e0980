package models

import "time"

type TransactionType string

const (
	TypeTransfer   TransactionType = "TRANSFER"
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypePayment    TransactionType = "PAYMENT"
	TypeRefund     TransactionType = "REFUND"
	TypeFee        TransactionType = "FEE"
	TypeInterest   TransactionType = "INTEREST"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusReversed   TransactionStatus = "REVERSED"
)

type TransactionDirection string

const (
	DirectionDebit  TransactionDirection = "DEBIT"
	DirectionCredit TransactionDirection = "CREDIT"
)

// TransferType is set only once both sides of a transaction are resolved;
// it stays empty otherwise.
type TransferType string

const (
	TransferInternal TransferType = "INTERNAL"
	TransferExternal TransferType = "EXTERNAL"
)

// Transaction is the unit of work. Amounts are positive minor units (pence,
// cents). Balance snapshots are nil until processing captures them.
// Owner IDs are denormalised at creation time so the query access scope can
// be expressed as a plain SQL predicate.
type Transaction struct {
	ID                string               `json:"id"`
	ReferenceNumber   string               `json:"referenceNumber"`
	Type              TransactionType      `json:"type"`
	Status            TransactionStatus    `json:"status"`
	Direction         TransactionDirection `json:"direction"`
	TransferType      TransferType         `json:"transferType,omitempty"`
	FromAccountID     string               `json:"fromAccountId,omitempty"`
	FromAccountNumber string               `json:"fromAccountNumber,omitempty"`
	FromOwnerID       string               `json:"-"`
	ToAccountID       string               `json:"toAccountId,omitempty"`
	ToAccountNumber   string               `json:"toAccountNumber,omitempty"`
	ToOwnerID         string               `json:"-"`
	Amount            int64                `json:"amount"`
	Currency          string               `json:"currency"`
	BalanceBefore     *int64               `json:"balanceBefore,omitempty"`
	BalanceAfter      *int64               `json:"balanceAfter,omitempty"`
	CategoryID        string               `json:"categoryId,omitempty"`
	Description       string               `json:"description,omitempty"`
	Notes             string               `json:"notes,omitempty"`
	ExternalReference string               `json:"externalReference,omitempty"`
	ExternalProvider  string               `json:"externalProvider,omitempty"`
	CreatedBy         string               `json:"createdBy"`
	UpdatedBy         string               `json:"updatedBy,omitempty"`
	CreatedAt         time.Time            `json:"createdTimestamp"`
	UpdatedAt         time.Time            `json:"updatedTimestamp"`
}

// TransactionCategory classifies transactions. System rows are seeded at
// startup and may never be changed or deleted.
type TransactionCategory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Color       string    `json:"color,omitempty"`
	IsActive    bool      `json:"isActive"`
	IsSystem    bool      `json:"isSystem"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdTimestamp"`
	UpdatedAt   time.Time `json:"updatedTimestamp"`
}

// TransactionLog is one immutable ledger row: one balance change on one
// account caused by one transaction. Write-once, no update path.
type TransactionLog struct {
	ID            string               `json:"id" bson:"_id"`
	TransactionID string               `json:"transactionId" bson:"transaction_id"`
	AccountID     string               `json:"accountId" bson:"account_id"`
	AccountNumber string               `json:"accountNumber" bson:"account_number"`
	Direction     TransactionDirection `json:"direction" bson:"direction"`
	Amount        int64                `json:"amount" bson:"amount"`
	BalanceBefore int64                `json:"balanceBefore" bson:"balance_before"`
	BalanceAfter  int64                `json:"balanceAfter" bson:"balance_after"`
	Timestamp     time.Time            `json:"timestamp" bson:"timestamp"`
	Notes         string               `json:"notes,omitempty" bson:"notes,omitempty"`
}

const AccountStatusActive = "ACTIVE"

// AccountInfo is a read projection owned by the account service. It is
// cached briefly and always treated as possibly stale.
type AccountInfo struct {
	ID      string `json:"accountId"`
	Number  string `json:"accountNumber"`
	Balance int64  `json:"balance"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	UserID  string `json:"userId"`
}

// Active reports whether the account service considers the account usable.
func (a *AccountInfo) Active() bool {
	return a != nil && a.Status == AccountStatusActive
}
