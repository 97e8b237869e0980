package events

import (
	"time"

	"github.com/harborbank/transaction-engine/internal/models"
)

// Event types
const (
	TransactionCreated       = "transaction.created"
	TransactionStatusChanged = "transaction.status_changed"
)

// Stream names
const (
	TransactionEventsStream = "transaction.events"
)

// Source tag carried on every payload so consumers can tell which engine
// emitted it.
const Source = "transaction-engine"

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      any       `json:"data"`
}

// TransactionEvent is the payload for both transaction.created and
// transaction.status_changed. Balance snapshots carry only the side(s)
// known at publish time.
type TransactionEvent struct {
	TransactionID   string                      `json:"transactionId"`
	ReferenceNumber string                      `json:"referenceNumber"`
	Type            models.TransactionType      `json:"type"`
	FromAccountID   string                      `json:"fromAccountId,omitempty"`
	ToAccountID     string                      `json:"toAccountId,omitempty"`
	Amount          int64                       `json:"amount"`
	Currency        string                      `json:"currency"`
	Direction       models.TransactionDirection `json:"direction"`
	Status          models.TransactionStatus    `json:"status"`
	BalanceBefore   *int64                      `json:"balanceBefore,omitempty"`
	BalanceAfter    *int64                      `json:"balanceAfter,omitempty"`
	ActingUser      string                      `json:"actingUser"`
	OccurredAt      time.Time                   `json:"occurredAt"`
}

// FromTransaction builds the event payload from a transaction snapshot.
func FromTransaction(t *models.Transaction, actingUser string) TransactionEvent {
	return TransactionEvent{
		TransactionID:   t.ID,
		ReferenceNumber: t.ReferenceNumber,
		Type:            t.Type,
		FromAccountID:   t.FromAccountID,
		ToAccountID:     t.ToAccountID,
		Amount:          t.Amount,
		Currency:        t.Currency,
		Direction:       t.Direction,
		Status:          t.Status,
		BalanceBefore:   t.BalanceBefore,
		BalanceAfter:    t.BalanceAfter,
		ActingUser:      actingUser,
		OccurredAt:      time.Now().UTC(),
	}
}
