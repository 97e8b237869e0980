package validation

import "github.com/harborbank/transaction-engine/internal/models"

// DetermineDirection derives whether the transaction debits or credits the
// account of the user who initiated it. Deterministic for a fixed
// (type, source owner, acting user) tuple.
func DetermineDirection(txType models.TransactionType, fromOwnerID, userID string) models.TransactionDirection {
	switch txType {
	case models.TypeDeposit, models.TypeRefund, models.TypeInterest:
		return models.DirectionCredit
	case models.TypeWithdrawal, models.TypePayment, models.TypeFee:
		return models.DirectionDebit
	case models.TypeTransfer:
		if fromOwnerID == userID {
			return models.DirectionDebit
		}
		return models.DirectionCredit
	}
	return models.DirectionDebit
}

// DetermineTransferType reports whether both resolved accounts share an
// owner. Empty unless both sides are known.
func DetermineTransferType(from, to *models.AccountInfo) models.TransferType {
	if from == nil || to == nil {
		return ""
	}
	if from.UserID == to.UserID {
		return models.TransferInternal
	}
	return models.TransferExternal
}

// RequiresImmediateProcessing reports whether the type is settled inline at
// creation. Refunds, fees and interest are queued and settled by the
// processor worker.
func RequiresImmediateProcessing(txType models.TransactionType) bool {
	switch txType {
	case models.TypeTransfer, models.TypeDeposit, models.TypeWithdrawal, models.TypePayment:
		return true
	}
	return false
}
