// Package validation holds the pure, stateless rules applied to transaction
// requests: shape checks, ownership checks, balance checks and the status
// transition table.
package validation

import (
	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

// Service validates transaction requests and permissions. It performs no
// I/O; callers supply every account projection it needs.
type Service struct {
	logger *logrus.Logger
}

func NewService(logger *logrus.Logger) *Service {
	return &Service{logger: logger}
}

// requiresSource lists types that must name a source account.
var requiresSource = map[models.TransactionType]bool{
	models.TypeWithdrawal: true,
	models.TypePayment:    true,
	models.TypeFee:        true,
}

// requiresTarget lists types that must name a target account.
var requiresTarget = map[models.TransactionType]bool{
	models.TypeDeposit:  true,
	models.TypeRefund:   true,
	models.TypeInterest: true,
}

// ValidateRequest checks the shape of a creation request before any account
// lookup happens.
func (s *Service) ValidateRequest(txType models.TransactionType, fromNumber, toNumber string, amount int64) error {
	if amount <= 0 {
		return errs.New(errs.KindValidation, errs.CodeInvalidRequest, "amount must be greater than zero")
	}
	switch {
	case txType == models.TypeTransfer:
		if fromNumber == "" || toNumber == "" {
			return errs.New(errs.KindValidation, errs.CodeInvalidRequest, "transfer requires both source and target accounts")
		}
		if fromNumber == toNumber {
			return errs.New(errs.KindValidation, errs.CodeSameAccount, "cannot transfer to the same account")
		}
	case requiresSource[txType]:
		if fromNumber == "" {
			return errs.Newf(errs.KindValidation, errs.CodeInvalidRequest, "%s requires a source account", txType)
		}
	case requiresTarget[txType]:
		if toNumber == "" {
			return errs.Newf(errs.KindValidation, errs.CodeInvalidRequest, "%s requires a target account", txType)
		}
	default:
		return errs.Newf(errs.KindValidation, errs.CodeInvalidRequest, "unsupported transaction type %q", txType)
	}
	return nil
}

// ValidatePermissions enforces ownership. Outbound types demand that the
// acting user owns the source account. For inbound types an ownership
// mismatch on the target is logged but allowed: deposits, refunds and
// interest may land on any account.
func (s *Service) ValidatePermissions(from, to *models.AccountInfo, userID string, txType models.TransactionType) error {
	outbound := txType == models.TypeTransfer || requiresSource[txType]
	if outbound {
		if from == nil {
			return errs.New(errs.KindBusiness, errs.CodeNotFound, "source account not resolved")
		}
		if from.UserID != userID {
			return errs.New(errs.KindBusiness, errs.CodeForbidden, "user does not own the source account")
		}
	}
	if to != nil && to.UserID != userID {
		s.logger.WithFields(logrus.Fields{
			"accountId": to.ID,
			"userId":    userID,
			"type":      txType,
		}).Info("inbound transaction targets an account owned by another user")
	}
	return nil
}

// ValidateSufficientBalance fails when the account cannot cover the amount.
func (s *Service) ValidateSufficientBalance(account *models.AccountInfo, amount int64) error {
	if account == nil {
		return errs.New(errs.KindBusiness, errs.CodeNotFound, "account not resolved")
	}
	if account.Balance < amount {
		return errs.Newf(errs.KindBusiness, errs.CodeInsufficientBalance,
			"insufficient balance on account %s: have %d, need %d", account.Number, account.Balance, amount)
	}
	return nil
}

// allowedTransitions is the full status machine. Absent statuses are
// terminal.
var allowedTransitions = map[models.TransactionStatus][]models.TransactionStatus{
	models.StatusPending:    {models.StatusProcessing, models.StatusCancelled},
	models.StatusProcessing: {models.StatusCompleted, models.StatusFailed},
	models.StatusCompleted:  {models.StatusReversed},
}

// ValidateStatusTransition rejects any edge not present in the transition
// table.
func ValidateStatusTransition(from, to models.TransactionStatus) error {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return errs.Newf(errs.KindBusiness, errs.CodeInvalidTransition, "cannot transition transaction from %s to %s", from, to)
}
