package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/command"
	"github.com/harborbank/transaction-engine/internal/middleware"
	"github.com/harborbank/transaction-engine/internal/models"
)

// CategoryManager defines the operations used by CategoryHandler.
type CategoryManager interface {
	CreateCategory(ctx context.Context, userID string, cmd command.CreateCategoryCommand) (*models.TransactionCategory, error)
	UpdateCategory(ctx context.Context, userID, id string, cmd command.UpdateCategoryCommand) (*models.TransactionCategory, error)
	DeleteCategory(ctx context.Context, userID, id string) error
	GetCategoryByID(ctx context.Context, id string) (*models.TransactionCategory, error)
	ListCategories(ctx context.Context, includeInactive, includeSystem bool, page, pageSize int) ([]models.TransactionCategory, error)
}

type CategoryHandler struct {
	categories CategoryManager
	logger     *logrus.Logger
}

func NewCategoryHandler(categories CategoryManager, logger *logrus.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=255"`
	Icon        string `json:"icon" validate:"max=32"`
	Color       string `json:"color" validate:"max=16"`
}

type UpdateCategoryRequest struct {
	Name        string `json:"name" validate:"max=64"`
	Description string `json:"description" validate:"max=255"`
	Icon        string `json:"icon" validate:"max=32"`
	Color       string `json:"color" validate:"max=16"`
	IsActive    *bool  `json:"isActive"`
}

type ListCategoriesResponse struct {
	Categories []models.TransactionCategory `json:"categories"`
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req CreateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	category, err := h.categories.CreateCategory(c.Request.Context(), userID, command.CreateCategoryCommand{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
	})
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	category, err := h.categories.UpdateCategory(c.Request.Context(), userID, c.Param("categoryId"), command.UpdateCategoryCommand{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		Active:      req.IsActive,
	})
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	if err := h.categories.DeleteCategory(c.Request.Context(), userID, c.Param("categoryId")); err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CategoryHandler) GetCategory(c *gin.Context) {
	category, err := h.categories.GetCategoryByID(c.Request.Context(), c.Param("categoryId"))
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CategoryHandler) ListCategories(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.DefaultQuery("include_inactive", "false"))
	includeSystem, _ := strconv.ParseBool(c.DefaultQuery("include_system", "true"))

	categories, err := h.categories.ListCategories(
		c.Request.Context(), includeInactive, includeSystem,
		intQuery(c, "page", 1), intQuery(c, "page_size", 50),
	)
	if err != nil {
		respondWithDomainError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ListCategoriesResponse{Categories: categories})
}
