package command

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/ids"
	"github.com/harborbank/transaction-engine/internal/models"
)

// LogService writes the append-only ledger: one row per account side
// actually touched by a transaction. A transfer produces two rows, a
// single-sided type one.
type LogService struct {
	ledger LedgerStore
	logger *logrus.Logger
}

func NewLogService(ledger LedgerStore, logger *logrus.Logger) *LogService {
	return &LogService{ledger: ledger, logger: logger}
}

// CreateTransactionLogs builds and appends the ledger rows for a settled
// transaction from the balances captured around its mutations.
func (s *LogService) CreateTransactionLogs(ctx context.Context, t *models.Transaction, snap *Snapshots) error {
	now := time.Now().UTC()
	var rows []models.TransactionLog

	if snap.Source != nil {
		rows = append(rows, models.TransactionLog{
			ID:            ids.NewID(),
			TransactionID: t.ID,
			AccountID:     snap.Source.Account.ID,
			AccountNumber: snap.Source.Account.Number,
			Direction:     models.DirectionDebit,
			Amount:        t.Amount,
			BalanceBefore: snap.Source.Before,
			BalanceAfter:  snap.Source.After,
			Timestamp:     now,
			Notes:         fmt.Sprintf("%s %s", t.Type, t.ReferenceNumber),
		})
	}
	if snap.Target != nil {
		rows = append(rows, models.TransactionLog{
			ID:            ids.NewID(),
			TransactionID: t.ID,
			AccountID:     snap.Target.Account.ID,
			AccountNumber: snap.Target.Account.Number,
			Direction:     models.DirectionCredit,
			Amount:        t.Amount,
			BalanceBefore: snap.Target.Before,
			BalanceAfter:  snap.Target.After,
			Timestamp:     now,
			Notes:         fmt.Sprintf("%s %s", t.Type, t.ReferenceNumber),
		})
	}

	return s.ledger.Insert(ctx, rows)
}
