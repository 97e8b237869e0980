package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/accountclient"
	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/events"
	"github.com/harborbank/transaction-engine/internal/models"
	"github.com/harborbank/transaction-engine/internal/validation"
)

// SideSnapshot captures one account's balances around the mutation applied
// to it. Balances always come from re-reading the account service, never
// from local arithmetic.
type SideSnapshot struct {
	Account *models.AccountInfo
	Before  int64
	After   int64
}

// Snapshots holds the side(s) actually touched by a handler.
type Snapshots struct {
	Source *SideSnapshot
	Target *SideSnapshot
}

// ProcessingService drives the PENDING to PROCESSING to terminal state
// machine and is the only component that mutates remote balances.
type ProcessingService struct {
	transactions TransactionStore
	accounts     accountclient.Client
	ledger       *LogService
	validator    *validation.Service
	publisher    EventPublisher
	logger       *logrus.Logger
}

func NewProcessingService(
	transactions TransactionStore,
	accounts accountclient.Client,
	ledger *LogService,
	validator *validation.Service,
	publisher EventPublisher,
	logger *logrus.Logger,
) *ProcessingService {
	return &ProcessingService{
		transactions: transactions,
		accounts:     accounts,
		ledger:       ledger,
		validator:    validator,
		publisher:    publisher,
		logger:       logger,
	}
}

// Process settles one transaction. Only PENDING records are accepted; a
// record that already left PENDING is never implicitly retried; a fresh
// transaction must be created instead.
func (s *ProcessingService) Process(ctx context.Context, transactionID string) (*models.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusPending {
		return nil, errs.Newf(errs.KindBusiness, errs.CodeInvalidTransition,
			"transaction %s is %s and cannot be processed", t.ID, t.Status)
	}

	// Persist PROCESSING first so a crash mid-flight leaves a visibly
	// in-flight record rather than a silently reusable PENDING one.
	if err := validation.ValidateStatusTransition(t.Status, models.StatusProcessing); err != nil {
		return nil, err
	}
	if err := s.transactions.UpdateStatus(ctx, t.ID, models.StatusProcessing, "", nil, nil, SystemActor); err != nil {
		return nil, err
	}
	t.Status = models.StatusProcessing

	snap, err := s.dispatch(ctx, t)
	if err != nil {
		return nil, s.fail(ctx, t, err)
	}

	// The transaction record snapshots the initiating side: the source
	// where one was debited, otherwise the credited target.
	settled := snap.Source
	if settled == nil {
		settled = snap.Target
	}
	before, after := settled.Before, settled.After

	if err := s.transactions.UpdateStatus(ctx, t.ID, models.StatusCompleted, "", &before, &after, SystemActor); err != nil {
		return nil, s.fail(ctx, t, err)
	}
	t.Status = models.StatusCompleted
	t.BalanceBefore = &before
	t.BalanceAfter = &after

	if err := s.ledger.CreateTransactionLogs(ctx, t, snap); err != nil {
		// Balances already moved remotely; failing the record here would
		// contradict the money movement. Surface loudly for reconciliation.
		s.logger.WithError(err).WithField("transactionId", t.ID).Error("ledger write failed for completed transaction")
	}

	s.publish(ctx, t)
	return t, nil
}

// dispatch re-resolves both sides (balances may have moved since creation)
// and runs the per-type handler.
func (s *ProcessingService) dispatch(ctx context.Context, t *models.Transaction) (*Snapshots, error) {
	var from, to *models.AccountInfo
	var err error
	if t.FromAccountNumber != "" {
		if from, err = s.accounts.GetAccountByNumber(ctx, t.FromAccountNumber); err != nil {
			return nil, err
		}
	}
	if t.ToAccountNumber != "" {
		if to, err = s.accounts.GetAccountByNumber(ctx, t.ToAccountNumber); err != nil {
			return nil, err
		}
	}

	switch t.Type {
	case models.TypeTransfer:
		return s.processTransfer(ctx, t, from, to)
	case models.TypeDeposit, models.TypeRefund, models.TypeInterest:
		return s.processCredit(ctx, t, to)
	case models.TypeWithdrawal, models.TypePayment, models.TypeFee:
		return s.processDebit(ctx, t, from)
	default:
		return nil, errs.Newf(errs.KindBusiness, errs.CodeInvalidRequest, "unsupported transaction type %q", t.Type)
	}
}

// processTransfer debits the source then credits the target. The two remote
// calls are not atomic; a failed credit triggers a best-effort compensating
// credit of the source, and the outcome is recorded either way.
func (s *ProcessingService) processTransfer(ctx context.Context, t *models.Transaction, from, to *models.AccountInfo) (*Snapshots, error) {
	if from == nil || to == nil {
		return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "transfer requires both accounts resolved")
	}
	if err := s.validator.ValidateSufficientBalance(from, t.Amount); err != nil {
		return nil, err
	}

	if err := s.accounts.Debit(ctx, from.ID, t.Amount); err != nil {
		return nil, err
	}
	if err := s.accounts.Credit(ctx, to.ID, t.Amount); err != nil {
		if cerr := s.accounts.Credit(ctx, from.ID, t.Amount); cerr != nil {
			s.logger.WithError(cerr).WithField("transactionId", t.ID).Error("compensating credit failed, source remains debited")
			return nil, fmt.Errorf("credit of target failed (%w); compensating credit of source also failed: %v", err, cerr)
		}
		return nil, fmt.Errorf("credit of target failed, source debit compensated: %w", err)
	}

	fromAfter, err := s.accounts.GetAccount(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	toAfter, err := s.accounts.GetAccount(ctx, to.ID)
	if err != nil {
		return nil, err
	}

	return &Snapshots{
		Source: &SideSnapshot{Account: fromAfter, Before: from.Balance, After: fromAfter.Balance},
		Target: &SideSnapshot{Account: toAfter, Before: to.Balance, After: toAfter.Balance},
	}, nil
}

func (s *ProcessingService) processCredit(ctx context.Context, t *models.Transaction, to *models.AccountInfo) (*Snapshots, error) {
	if to == nil {
		return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "target account not resolved")
	}
	if err := s.accounts.Credit(ctx, to.ID, t.Amount); err != nil {
		return nil, err
	}
	toAfter, err := s.accounts.GetAccount(ctx, to.ID)
	if err != nil {
		return nil, err
	}
	return &Snapshots{
		Target: &SideSnapshot{Account: toAfter, Before: to.Balance, After: toAfter.Balance},
	}, nil
}

func (s *ProcessingService) processDebit(ctx context.Context, t *models.Transaction, from *models.AccountInfo) (*Snapshots, error) {
	if from == nil {
		return nil, errs.New(errs.KindBusiness, errs.CodeNotFound, "source account not resolved")
	}
	if err := s.validator.ValidateSufficientBalance(from, t.Amount); err != nil {
		return nil, err
	}
	if err := s.accounts.Debit(ctx, from.ID, t.Amount); err != nil {
		return nil, err
	}
	fromAfter, err := s.accounts.GetAccount(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	return &Snapshots{
		Source: &SideSnapshot{Account: fromAfter, Before: from.Balance, After: fromAfter.Balance},
	}, nil
}

// fail durably marks the record FAILED with the cause appended to its notes
// before the error is re-raised. The failure is never silently lost.
func (s *ProcessingService) fail(ctx context.Context, t *models.Transaction, cause error) error {
	notes := strings.TrimSpace(t.Notes + "\nprocessing failed: " + cause.Error())
	if err := s.transactions.UpdateStatus(ctx, t.ID, models.StatusFailed, notes, nil, nil, SystemActor); err != nil {
		s.logger.WithError(err).WithField("transactionId", t.ID).Error("failed to mark transaction FAILED")
	}
	t.Status = models.StatusFailed
	t.Notes = notes
	s.publish(ctx, t)
	return errs.Wrap(errs.KindProcessing, errs.CodeProcessingFailed, "transaction processing failed", cause)
}

// Cancel moves a PENDING transaction to CANCELLED. Only the creator may
// cancel.
func (s *ProcessingService) Cancel(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.CreatedBy != userID {
		return nil, errs.New(errs.KindBusiness, errs.CodeForbidden, "only the creator may cancel a transaction")
	}
	if err := validation.ValidateStatusTransition(t.Status, models.StatusCancelled); err != nil {
		return nil, err
	}
	if err := s.transactions.UpdateStatus(ctx, t.ID, models.StatusCancelled, "", nil, nil, userID); err != nil {
		return nil, err
	}
	t.Status = models.StatusCancelled
	t.UpdatedBy = userID
	s.publish(ctx, t)
	return t, nil
}

// Reverse flags a COMPLETED transaction as REVERSED. The monetary
// counter-movement is a separate transaction created by the caller.
func (s *ProcessingService) Reverse(ctx context.Context, userID, transactionID, reason string) (*models.Transaction, error) {
	t, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateStatusTransition(t.Status, models.StatusReversed); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(t.Notes + "\nreversed: " + reason)
	if err := s.transactions.UpdateStatus(ctx, t.ID, models.StatusReversed, notes, nil, nil, userID); err != nil {
		return nil, err
	}
	t.Status = models.StatusReversed
	t.Notes = notes
	t.UpdatedBy = userID
	s.publish(ctx, t)
	return t, nil
}

func (s *ProcessingService) publish(ctx context.Context, t *models.Transaction) {
	err := s.publisher.Publish(ctx, events.TransactionEventsStream, events.TransactionStatusChanged, events.FromTransaction(t, SystemActor))
	if err != nil {
		s.logger.WithError(err).WithField("transactionId", t.ID).Warn("failed to publish status-changed event")
	}
}
