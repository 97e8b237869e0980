package command

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/accountclient"
	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/events"
	"github.com/harborbank/transaction-engine/internal/ids"
	"github.com/harborbank/transaction-engine/internal/models"
	"github.com/harborbank/transaction-engine/internal/validation"
)

// CreationService orchestrates transaction creation: request validation,
// account resolution, idempotency check, persisting the PENDING record and
// handing immediate types straight to processing. It never mutates remote
// balances itself.
type CreationService struct {
	transactions TransactionStore
	categories   CategoryStore
	accounts     accountclient.Client
	validator    *validation.Service
	publisher    EventPublisher
	queue        Enqueuer
	processor    Processor
	logger       *logrus.Logger
}

func NewCreationService(
	transactions TransactionStore,
	categories CategoryStore,
	accounts accountclient.Client,
	validator *validation.Service,
	publisher EventPublisher,
	queue Enqueuer,
	processor Processor,
	logger *logrus.Logger,
) *CreationService {
	return &CreationService{
		transactions: transactions,
		categories:   categories,
		accounts:     accounts,
		validator:    validator,
		publisher:    publisher,
		queue:        queue,
		processor:    processor,
		logger:       logger,
	}
}

// CreateTransaction runs the full creation flow for the acting user and
// returns the persisted record: PENDING for deferred types, the processed
// outcome for immediate ones.
func (s *CreationService) CreateTransaction(ctx context.Context, userID string, cmd CreateTransactionCommand) (*models.Transaction, error) {
	if userID == "" {
		return nil, errs.New(errs.KindValidation, errs.CodeInvalidRequest, "acting user is required")
	}

	if err := s.validator.ValidateRequest(cmd.Type, cmd.FromAccountNumber, cmd.ToAccountNumber, cmd.Amount); err != nil {
		return nil, err
	}

	from, err := s.resolveAccount(ctx, cmd.FromAccountNumber)
	if err != nil {
		return nil, err
	}
	to, err := s.resolveAccount(ctx, cmd.ToAccountNumber)
	if err != nil {
		return nil, err
	}

	if err := s.validator.ValidatePermissions(from, to, userID, cmd.Type); err != nil {
		return nil, err
	}

	var fromOwner string
	if from != nil {
		fromOwner = from.UserID
	}
	direction := validation.DetermineDirection(cmd.Type, fromOwner, userID)
	transferType := validation.DetermineTransferType(from, to)

	if cmd.CategoryID != "" {
		if _, err := s.categories.GetByID(ctx, cmd.CategoryID); err != nil {
			return nil, err
		}
	}

	if cmd.ExternalReference != "" {
		existing, err := s.transactions.GetByExternalReference(ctx, cmd.ExternalReference)
		if err != nil && !errs.IsCode(err, errs.CodeNotFound) {
			return nil, err
		}
		if existing != nil {
			return nil, errs.Newf(errs.KindBusiness, errs.CodeDuplicateReference,
				"a transaction with external reference %q already exists", cmd.ExternalReference)
		}
	}

	if direction == models.DirectionDebit {
		if err := s.validator.ValidateSufficientBalance(from, cmd.Amount); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	transaction := &models.Transaction{
		ID:                ids.NewID(),
		ReferenceNumber:   ids.NewReference("TXN"),
		Type:              cmd.Type,
		Status:            models.StatusPending,
		Direction:         direction,
		TransferType:      transferType,
		Amount:            cmd.Amount,
		Currency:          cmd.Currency,
		CategoryID:        cmd.CategoryID,
		Description:       cmd.Description,
		Notes:             cmd.Notes,
		ExternalReference: cmd.ExternalReference,
		ExternalProvider:  cmd.ExternalProvider,
		CreatedBy:         userID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if from != nil {
		transaction.FromAccountID = from.ID
		transaction.FromAccountNumber = from.Number
		transaction.FromOwnerID = from.UserID
	}
	if to != nil {
		transaction.ToAccountID = to.ID
		transaction.ToAccountNumber = to.Number
		transaction.ToOwnerID = to.UserID
	}

	if err := s.transactions.Create(ctx, transaction); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TransactionCreated, transaction, userID)

	if validation.RequiresImmediateProcessing(cmd.Type) {
		return s.processor.Process(ctx, transaction.ID)
	}

	if err := s.queue.Enqueue(ctx, transaction.ID); err != nil {
		// The record stays PENDING and can be re-queued; the caller
		// must know settlement is not scheduled.
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeUnavailable, "failed to queue transaction for processing", err)
	}
	return transaction, nil
}

// resolveAccount fetches and checks one side. Empty numbers resolve to nil.
func (s *CreationService) resolveAccount(ctx context.Context, accountNumber string) (*models.AccountInfo, error) {
	if accountNumber == "" {
		return nil, nil
	}
	account, err := s.accounts.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if !account.Active() {
		return nil, errs.Newf(errs.KindBusiness, errs.CodeInactiveAccount, "account %s is not active", accountNumber)
	}
	return account, nil
}

func (s *CreationService) publish(ctx context.Context, eventType string, t *models.Transaction, actingUser string) {
	err := s.publisher.Publish(ctx, events.TransactionEventsStream, eventType, events.FromTransaction(t, actingUser))
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"transactionId": t.ID,
			"event":         eventType,
		}).Warn("failed to publish transaction event")
	}
}
