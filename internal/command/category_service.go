package command

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/ids"
	"github.com/harborbank/transaction-engine/internal/models"
)

// CategoryService administers the category taxonomy. System categories are
// immutable and undeletable; any category referenced by transactions cannot
// be deleted.
type CategoryService struct {
	categories   CategoryStore
	transactions TransactionStore
	logger       *logrus.Logger
}

func NewCategoryService(categories CategoryStore, transactions TransactionStore, logger *logrus.Logger) *CategoryService {
	return &CategoryService{categories: categories, transactions: transactions, logger: logger}
}

func (s *CategoryService) CreateCategory(ctx context.Context, userID string, cmd CreateCategoryCommand) (*models.TransactionCategory, error) {
	if cmd.Name == "" {
		return nil, errs.New(errs.KindValidation, errs.CodeInvalidRequest, "category name is required")
	}
	existing, err := s.categories.GetByName(ctx, cmd.Name)
	if err != nil && !errs.IsCode(err, errs.CodeNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Newf(errs.KindBusiness, errs.CodeInvalidRequest, "category %q already exists", cmd.Name)
	}

	now := time.Now().UTC()
	category := &models.TransactionCategory{
		ID:          ids.NewID(),
		Name:        cmd.Name,
		Description: cmd.Description,
		Icon:        cmd.Icon,
		Color:       cmd.Color,
		IsActive:    true,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) UpdateCategory(ctx context.Context, userID, id string, cmd UpdateCategoryCommand) (*models.TransactionCategory, error) {
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if category.IsSystem {
		return nil, errs.New(errs.KindBusiness, errs.CodeSystemCategory, "system categories cannot be modified")
	}

	if cmd.Name != "" {
		category.Name = cmd.Name
	}
	if cmd.Description != "" {
		category.Description = cmd.Description
	}
	if cmd.Icon != "" {
		category.Icon = cmd.Icon
	}
	if cmd.Color != "" {
		category.Color = cmd.Color
	}
	if cmd.Active != nil {
		category.IsActive = *cmd.Active
	}
	category.UpdatedAt = time.Now().UTC()

	if err := s.categories.Update(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) DeleteCategory(ctx context.Context, userID, id string) error {
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if category.IsSystem {
		return errs.New(errs.KindBusiness, errs.CodeSystemCategory, "system categories cannot be deleted")
	}
	inUse, err := s.transactions.CountByCategory(ctx, id)
	if err != nil {
		return err
	}
	if inUse > 0 {
		return errs.Newf(errs.KindBusiness, errs.CodeCategoryInUse, "category is referenced by %d transactions", inUse)
	}
	return s.categories.Delete(ctx, id)
}

func (s *CategoryService) GetCategoryByID(ctx context.Context, id string) (*models.TransactionCategory, error) {
	return s.categories.GetByID(ctx, id)
}

func (s *CategoryService) ListCategories(ctx context.Context, includeInactive, includeSystem bool, page, pageSize int) ([]models.TransactionCategory, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return s.categories.List(ctx, includeInactive, includeSystem, pageSize, (page-1)*pageSize)
}

// systemCategories are seeded once at startup if absent.
var systemCategories = []models.TransactionCategory{
	{Name: "Transfers", Description: "Movements between accounts", Icon: "swap", Color: "#2f6fed"},
	{Name: "Bills & Payments", Description: "Outbound payments", Icon: "receipt", Color: "#d97706"},
	{Name: "Deposits", Description: "Inbound funds", Icon: "download", Color: "#16a34a"},
	{Name: "Fees", Description: "Service charges", Icon: "tag", Color: "#dc2626"},
	{Name: "Interest", Description: "Interest earned", Icon: "percent", Color: "#7c3aed"},
	{Name: "Refunds", Description: "Returned payments", Icon: "undo", Color: "#0891b2"},
}

// SeedSystemCategories inserts the fixed system rows that are missing. Safe
// to run on every startup.
func (s *CategoryService) SeedSystemCategories(ctx context.Context) error {
	for _, seed := range systemCategories {
		_, err := s.categories.GetByName(ctx, seed.Name)
		if err == nil {
			continue
		}
		if !errs.IsCode(err, errs.CodeNotFound) {
			return err
		}

		now := time.Now().UTC()
		category := seed
		category.ID = ids.NewID()
		category.IsActive = true
		category.IsSystem = true
		category.CreatedBy = SystemActor
		category.CreatedAt = now
		category.UpdatedAt = now
		if err := s.categories.Create(ctx, &category); err != nil {
			return err
		}
		s.logger.WithField("category", category.Name).Info("seeded system category")
	}
	return nil
}
