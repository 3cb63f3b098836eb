package preferences

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type categoryCountRow struct {
	CategoryID      uint
	PreferenceCount int64
	ValidatedCount  int64
}

// CreateCategory stores a new category appended after the current last position.
func (service *Service) CreateCategory(ctx context.Context, name string) (Category, error) {
	if err := service.ready(opCreateCategory); err != nil {
		return Category{}, err
	}
	normalized, err := normalizeCategoryName(name)
	if err != nil {
		return Category{}, service.invalid(opCreateCategory, err)
	}

	category := Category{Name: normalized}
	txErr := service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPosition int
		if err := tx.Model(&Category{}).Select("COALESCE(MAX(position), -1)").Row().Scan(&maxPosition); err != nil {
			return service.failed(opCreateCategory, reasonQueryFailed, err)
		}
		category.Position = maxPosition + 1
		if err := tx.Create(&category).Error; err != nil {
			return service.failed(opCreateCategory, reasonInsertFailed, err, zap.String("name", normalized))
		}
		return nil
	})
	if txErr != nil {
		return Category{}, txErr
	}
	return category, nil
}

// RenameCategory changes the name of an existing category.
func (service *Service) RenameCategory(ctx context.Context, categoryID uint, name string) (Category, error) {
	return service.UpdateCategory(ctx, categoryID, CategoryUpdate{Name: name})
}

// UpdateCategory changes the name and, when provided, the position of a category.
func (service *Service) UpdateCategory(ctx context.Context, categoryID uint, update CategoryUpdate) (Category, error) {
	if err := service.ready(opUpdateCategory); err != nil {
		return Category{}, err
	}
	normalized, err := normalizeCategoryName(update.Name)
	if err != nil {
		return Category{}, service.invalid(opUpdateCategory, err)
	}
	changes := map[string]any{"name": normalized}
	if update.Position != nil {
		if *update.Position < 0 {
			return Category{}, service.invalid(opUpdateCategory, validationErrorf("position must not be negative"))
		}
		changes["position"] = *update.Position
	}

	category, err := service.findCategory(service.db.WithContext(ctx), opUpdateCategory, categoryID)
	if err != nil {
		return Category{}, err
	}
	if err := service.db.WithContext(ctx).Model(&category).Updates(changes).Error; err != nil {
		return Category{}, service.failed(opUpdateCategory, reasonUpdateFailed, err, zap.Uint("category_id", categoryID))
	}
	return service.findCategory(service.db.WithContext(ctx), opUpdateCategory, categoryID)
}

// ReorderCategories writes every position in one transaction: either all pairs
// are applied or none are. An empty batch writes nothing.
func (service *Service) ReorderCategories(ctx context.Context, positions []CategoryPosition) error {
	if err := service.ready(opReorderCategories); err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(positions))
	seen := make(map[uint]struct{}, len(positions))
	for _, entry := range positions {
		if entry.Position < 0 {
			return service.invalid(opReorderCategories, validationErrorf("position for category %d must not be negative", entry.ID))
		}
		if _, duplicate := seen[entry.ID]; duplicate {
			return service.invalid(opReorderCategories, validationErrorf("category %d is listed more than once", entry.ID))
		}
		seen[entry.ID] = struct{}{}
		ids = append(ids, entry.ID)
	}

	return service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&Category{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
			return service.failed(opReorderCategories, reasonQueryFailed, err)
		}
		if len(existing) != len(ids) {
			found := make(map[uint]struct{}, len(existing))
			for _, id := range existing {
				found[id] = struct{}{}
			}
			for _, id := range ids {
				if _, ok := found[id]; !ok {
					return newServiceError(opReorderCategories, reasonCategoryNotFound, notFoundErrorf("category %d does not exist", id))
				}
			}
		}
		for _, entry := range positions {
			if err := tx.Model(&Category{}).Where(queryID, entry.ID).Update("position", entry.Position).Error; err != nil {
				return service.failed(opReorderCategories, reasonUpdateFailed, err, zap.Uint("category_id", entry.ID))
			}
		}
		return nil
	})
}

// DeleteCategory removes a category that owns no preferences.
func (service *Service) DeleteCategory(ctx context.Context, categoryID uint) error {
	if err := service.ready(opDeleteCategory); err != nil {
		return err
	}
	return service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		category, err := service.findCategory(tx, opDeleteCategory, categoryID)
		if err != nil {
			return err
		}
		var owned int64
		if err := tx.Model(&Preference{}).Where(queryCategoryID, category.ID).Count(&owned).Error; err != nil {
			return service.failed(opDeleteCategory, reasonQueryFailed, err, zap.Uint("category_id", categoryID))
		}
		if owned > 0 {
			return newServiceError(opDeleteCategory, reasonHasPreferences, ErrCategoryHasPreferences)
		}
		if err := tx.Delete(&Category{}, category.ID).Error; err != nil {
			return service.failed(opDeleteCategory, reasonDeleteFailed, err, zap.Uint("category_id", categoryID))
		}
		return nil
	})
}

// ListCategories returns every category in display order.
func (service *Service) ListCategories(ctx context.Context) ([]Category, error) {
	if err := service.ready(opListCategories); err != nil {
		return nil, err
	}
	var categories []Category
	if err := service.db.WithContext(ctx).Order(orderCategoryDisplay).Find(&categories).Error; err != nil {
		return nil, service.failed(opListCategories, reasonQueryFailed, err)
	}
	return categories, nil
}

// ListCategorySummaries returns every category in display order with its preference counts.
func (service *Service) ListCategorySummaries(ctx context.Context) ([]CategorySummary, error) {
	categories, err := service.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	var rows []categoryCountRow
	if err := service.db.WithContext(ctx).
		Model(&Preference{}).
		Select("category_id, COUNT(*) AS preference_count, SUM(CASE WHEN human_validated THEN 1 ELSE 0 END) AS validated_count").
		Group("category_id").
		Scan(&rows).Error; err != nil {
		return nil, service.failed(opListCategories, reasonQueryFailed, err)
	}
	counts := make(map[uint]categoryCountRow, len(rows))
	for _, row := range rows {
		counts[row.CategoryID] = row
	}

	summaries := make([]CategorySummary, 0, len(categories))
	for _, category := range categories {
		row := counts[category.ID]
		summaries = append(summaries, CategorySummary{
			Category:        category,
			PreferenceCount: row.PreferenceCount,
			ValidatedCount:  row.ValidatedCount,
		})
	}
	return summaries, nil
}

// GetCategory loads a single category.
func (service *Service) GetCategory(ctx context.Context, categoryID uint) (Category, error) {
	if err := service.ready(opGetCategory); err != nil {
		return Category{}, err
	}
	return service.findCategory(service.db.WithContext(ctx), opGetCategory, categoryID)
}

func (service *Service) findCategory(db *gorm.DB, operation string, categoryID uint) (Category, error) {
	var category Category
	err := db.Where(queryID, categoryID).Take(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Category{}, newServiceError(operation, reasonCategoryNotFound, notFoundErrorf("category %d does not exist", categoryID))
	}
	if err != nil {
		return Category{}, service.failed(operation, reasonQueryFailed, err, zap.Uint("category_id", categoryID))
	}
	return category, nil
}
