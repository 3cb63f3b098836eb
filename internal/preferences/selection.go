package preferences

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ExhaustionReason explains why no preference could be selected.
type ExhaustionReason string

const (
	// ExhaustedNoneAvailable means no validated preference exists in the scope.
	ExhaustedNoneAvailable ExhaustionReason = "none-available"
	// ExhaustedAllSeen means every validated preference in the scope was excluded.
	ExhaustedAllSeen ExhaustionReason = "all-seen"
)

// SelectionRequest scopes a draw. A nil CategoryID draws from every category.
type SelectionRequest struct {
	CategoryID *uint
	ExcludeIDs []uint
}

// Selection is the outcome of a draw: either a preference or an exhaustion reason.
type Selection struct {
	Preference *PreferenceWithTally
	Exhausted  ExhaustionReason
}

// Found reports whether a preference was selected.
func (selection Selection) Found() bool {
	return selection.Preference != nil
}

// SelectNext picks one validated, unseen preference uniformly at random.
func (service *Service) SelectNext(ctx context.Context, request SelectionRequest) (Selection, error) {
	if err := service.ready(opSelectNext); err != nil {
		return Selection{}, err
	}
	db := service.db.WithContext(ctx)

	var candidates []uint
	query := service.eligible(db, request.CategoryID)
	if len(request.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", request.ExcludeIDs)
	}
	if err := query.Order("id ASC").Pluck("id", &candidates).Error; err != nil {
		return Selection{}, service.failed(opSelectNext, reasonQueryFailed, err, selectionFields(request)...)
	}

	if len(candidates) == 0 {
		var available int64
		if err := service.eligible(db, request.CategoryID).Count(&available).Error; err != nil {
			return Selection{}, service.failed(opSelectNext, reasonQueryFailed, err, selectionFields(request)...)
		}
		if available == 0 {
			return Selection{Exhausted: ExhaustedNoneAvailable}, nil
		}
		return Selection{Exhausted: ExhaustedAllSeen}, nil
	}

	chosenID := candidates[service.random(len(candidates))]
	preference, err := service.findPreference(db, opSelectNext, chosenID)
	if err != nil {
		return Selection{}, err
	}
	annotated, err := service.annotate(db, opSelectNext, []Preference{preference})
	if err != nil {
		return Selection{}, err
	}
	return Selection{Preference: &annotated[0]}, nil
}

// eligible scopes a query to validated preferences, optionally within one category.
func (service *Service) eligible(db *gorm.DB, categoryID *uint) *gorm.DB {
	query := db.Model(&Preference{}).Where(queryValidated, true)
	if categoryID != nil {
		query = query.Where(queryCategoryID, *categoryID)
	}
	return query
}

func selectionFields(request SelectionRequest) []zap.Field {
	fields := []zap.Field{zap.Int("excluded", len(request.ExcludeIDs))}
	if request.CategoryID != nil {
		fields = append(fields, zap.Uint("category_id", *request.CategoryID))
	}
	return fields
}
