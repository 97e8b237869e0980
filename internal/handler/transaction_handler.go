package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/command"
	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/middleware"
	"github.com/harborbank/transaction-engine/internal/models"
	"github.com/harborbank/transaction-engine/internal/query"
)

// TransactionCommander defines the write-side operations used by
// TransactionHandler.
type TransactionCommander interface {
	CreateTransaction(ctx context.Context, userID string, cmd command.CreateTransactionCommand) (*models.Transaction, error)
	Cancel(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	Reverse(ctx context.Context, userID, transactionID, reason string) (*models.Transaction, error)
}

// TransactionQuerier defines the read-side operations used by
// TransactionHandler.
type TransactionQuerier interface {
	ListTransactions(ctx context.Context, userID string, filters map[string]string, search string, page query.Page) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (*models.Transaction, error)
	GetTransactionByReference(ctx context.Context, userID, reference string) (*models.Transaction, error)
	ListAccountTransactions(ctx context.Context, userID, accountNumber string, from, to *time.Time, direction models.TransactionDirection, page query.Page) ([]models.Transaction, error)
	ListAccountLedger(ctx context.Context, userID, accountNumber string, page query.Page) ([]models.TransactionLog, error)
}

type TransactionHandler struct {
	commands TransactionCommander
	queries  TransactionQuerier
	logger   *logrus.Logger
}

func NewTransactionHandler(commands TransactionCommander, queries TransactionQuerier, logger *logrus.Logger) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries, logger: logger}
}

type CreateTransactionRequest struct {
	Type              string `json:"type" validate:"required,oneof=TRANSFER DEPOSIT WITHDRAWAL PAYMENT REFUND FEE INTEREST"`
	FromAccountNumber string `json:"fromAccountNumber"`
	ToAccountNumber   string `json:"toAccountNumber"`
	Amount            int64  `json:"amount" validate:"required,gt=0"`
	Currency          string `json:"currency" validate:"required,len=3"`
	Description       string `json:"description" validate:"max=255"`
	Notes             string `json:"notes" validate:"max=1000"`
	CategoryID        string `json:"categoryId"`
	ExternalReference string `json:"externalReference" validate:"max=64"`
	ExternalProvider  string `json:"externalProvider" validate:"max=32"`
}

type ReverseTransactionRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type ListTransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions"`
}

type ListLedgerResponse struct {
	Entries []models.TransactionLog `json:"entries"`
}

func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	transaction, err := h.commands.CreateTransaction(c.Request.Context(), userID, command.CreateTransactionCommand{
		Type:              models.TransactionType(req.Type),
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Description:       req.Description,
		Notes:             req.Notes,
		CategoryID:        req.CategoryID,
		ExternalReference: req.ExternalReference,
		ExternalProvider:  req.ExternalProvider,
	})
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, transaction)
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	filters := extractFilters(c, "search", "page", "page_size", "sort_by", "sort_order")
	views, err := h.queries.ListTransactions(c.Request.Context(), userID, filters, c.Query("search"), pageFromQuery(c))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: views})
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	transaction, err := h.queries.GetTransaction(c.Request.Context(), userID, c.Param("transactionId"))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, transaction)
}

func (h *TransactionHandler) GetTransactionByReference(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	transaction, err := h.queries.GetTransactionByReference(c.Request.Context(), userID, c.Param("referenceNumber"))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, transaction)
}

func (h *TransactionHandler) CancelTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	transaction, err := h.commands.Cancel(c.Request.Context(), userID, c.Param("transactionId"))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, transaction)
}

func (h *TransactionHandler) ReverseTransaction(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req ReverseTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	transaction, err := h.commands.Reverse(c.Request.Context(), userID, c.Param("transactionId"), req.Reason)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, transaction)
}

func (h *TransactionHandler) ListAccountTransactions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var from, to *time.Time
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid 'from' timestamp")
			return
		}
		from = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid 'to' timestamp")
			return
		}
		to = &t
	}

	views, err := h.queries.ListAccountTransactions(
		c.Request.Context(), userID, c.Param("accountNumber"),
		from, to, models.TransactionDirection(c.Query("direction")), pageFromQuery(c),
	)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: views})
}

func (h *TransactionHandler) ListAccountLedger(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	entries, err := h.queries.ListAccountLedger(c.Request.Context(), userID, c.Param("accountNumber"), pageFromQuery(c))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListLedgerResponse{Entries: entries})
}

// extractFilters turns query parameters into the filter map, dropping the
// reserved pagination/search keys.
func extractFilters(c *gin.Context, reserved ...string) map[string]string {
	skip := make(map[string]bool, len(reserved))
	for _, k := range reserved {
		skip[k] = true
	}
	filters := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if skip[key] || len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}
	return filters
}

func pageFromQuery(c *gin.Context) query.Page {
	return query.Page{
		Number:    intQuery(c, "page", 1),
		Size:      intQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	var n int
	for _, r := range v {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// respondWithDomainError maps the error taxonomy onto HTTP statuses. The
// caller always gets a specific reason for validation and business errors;
// infrastructure exhaustion is a distinct retryable 503.
func respondWithDomainError(c *gin.Context, logger *logrus.Logger, err error) {
	msg := err.Error()
	switch errs.CodeOf(err) {
	case errs.CodeNotFound:
		middleware.RespondWithError(c, http.StatusNotFound, msg)
	case errs.CodeForbidden:
		middleware.RespondWithError(c, http.StatusForbidden, msg)
	case errs.CodeDuplicateReference, errs.CodeInvalidTransition, errs.CodeSystemCategory, errs.CodeCategoryInUse:
		middleware.RespondWithError(c, http.StatusConflict, msg)
	case errs.CodeInsufficientBalance, errs.CodeInactiveAccount:
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, msg)
	case errs.CodeSameAccount, errs.CodeInvalidRequest:
		middleware.RespondWithError(c, http.StatusBadRequest, msg)
	case errs.CodeUnavailable:
		middleware.RespondWithError(c, http.StatusServiceUnavailable, "Service temporarily unavailable, please retry")
	case errs.CodeProcessingFailed:
		middleware.RespondWithError(c, http.StatusInternalServerError, msg)
	default:
		logger.WithError(err).Error("unhandled error")
		middleware.RespondWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
