package preferences

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreatePreference stores a new, unvalidated preference under a category.
func (service *Service) CreatePreference(ctx context.Context, categoryID uint, pair PreferencePair) (Preference, error) {
	if err := service.ready(opCreatePreference); err != nil {
		return Preference{}, err
	}
	normalized, err := normalizePair(pair)
	if err != nil {
		return Preference{}, service.invalid(opCreatePreference, err)
	}

	preference := Preference{
		CategoryID:     categoryID,
		Preference1:    normalized.Preference1,
		Preference2:    normalized.Preference2,
		HumanValidated: false,
	}
	txErr := service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := service.findCategory(tx, opCreatePreference, categoryID); err != nil {
			return err
		}
		if err := tx.Create(&preference).Error; err != nil {
			return service.failed(opCreatePreference, reasonInsertFailed, err, zap.Uint("category_id", categoryID))
		}
		return nil
	})
	if txErr != nil {
		return Preference{}, txErr
	}
	return preference, nil
}

// UpdatePreference replaces the text of both options.
func (service *Service) UpdatePreference(ctx context.Context, preferenceID uint, pair PreferencePair) (Preference, error) {
	if err := service.ready(opUpdatePreference); err != nil {
		return Preference{}, err
	}
	normalized, err := normalizePair(pair)
	if err != nil {
		return Preference{}, service.invalid(opUpdatePreference, err)
	}
	return service.updatePreference(ctx, opUpdatePreference, preferenceID, func(Preference) map[string]any {
		return map[string]any{
			"preference1": normalized.Preference1,
			"preference2": normalized.Preference2,
		}
	})
}

// SetPreferenceValidated sets the human_validated flag and nothing else.
func (service *Service) SetPreferenceValidated(ctx context.Context, preferenceID uint, validated bool) (Preference, error) {
	if err := service.ready(opSetPreferenceValidated); err != nil {
		return Preference{}, err
	}
	return service.updatePreference(ctx, opSetPreferenceValidated, preferenceID, func(Preference) map[string]any {
		return map[string]any{"human_validated": validated}
	})
}

// TogglePreferenceValidated flips the human_validated flag.
func (service *Service) TogglePreferenceValidated(ctx context.Context, preferenceID uint) (Preference, error) {
	if err := service.ready(opSetPreferenceValidated); err != nil {
		return Preference{}, err
	}
	return service.updatePreference(ctx, opSetPreferenceValidated, preferenceID, func(current Preference) map[string]any {
		return map[string]any{"human_validated": !current.HumanValidated}
	})
}

func (service *Service) updatePreference(ctx context.Context, operation string, preferenceID uint, changesFor func(Preference) map[string]any) (Preference, error) {
	var updated Preference
	txErr := service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := service.findPreference(tx, operation, preferenceID)
		if err != nil {
			return err
		}
		if err := tx.Model(&Preference{}).Where(queryID, preferenceID).Updates(changesFor(current)).Error; err != nil {
			return service.failed(operation, reasonUpdateFailed, err, zap.Uint("preference_id", preferenceID))
		}
		updated, err = service.findPreference(tx, operation, preferenceID)
		return err
	})
	if txErr != nil {
		return Preference{}, txErr
	}
	return updated, nil
}

// DeletePreference removes the votes of a preference and then the preference
// itself. A failed vote cascade leaves the preference in place.
func (service *Service) DeletePreference(ctx context.Context, preferenceID uint) error {
	if err := service.ready(opDeletePreference); err != nil {
		return err
	}
	return service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := service.findPreference(tx, opDeletePreference, preferenceID); err != nil {
			return err
		}
		if err := tx.Where(queryPreferenceID, preferenceID).Delete(&Vote{}).Error; err != nil {
			return service.failed(opDeletePreference, reasonVoteCascadeFailed, err, zap.Uint("preference_id", preferenceID))
		}
		if err := tx.Delete(&Preference{}, preferenceID).Error; err != nil {
			return service.failed(opDeletePreference, reasonDeleteFailed, err, zap.Uint("preference_id", preferenceID))
		}
		return nil
	})
}

// ListPreferencesByCategory returns the preferences of a category, newest
// first, each annotated with its tallies.
func (service *Service) ListPreferencesByCategory(ctx context.Context, categoryID uint) ([]PreferenceWithTally, error) {
	if err := service.ready(opListPreferences); err != nil {
		return nil, err
	}
	db := service.db.WithContext(ctx)
	if _, err := service.findCategory(db, opListPreferences, categoryID); err != nil {
		return nil, err
	}

	var stored []Preference
	if err := db.Where(queryCategoryID, categoryID).Order(orderPreferenceRecentDesc).Find(&stored).Error; err != nil {
		return nil, service.failed(opListPreferences, reasonQueryFailed, err, zap.Uint("category_id", categoryID))
	}
	return service.annotate(db, opListPreferences, stored)
}

// GetPreference loads a single preference with its tallies.
func (service *Service) GetPreference(ctx context.Context, preferenceID uint) (PreferenceWithTally, error) {
	if err := service.ready(opGetPreference); err != nil {
		return PreferenceWithTally{}, err
	}
	db := service.db.WithContext(ctx)
	preference, err := service.findPreference(db, opGetPreference, preferenceID)
	if err != nil {
		return PreferenceWithTally{}, err
	}
	annotated, err := service.annotate(db, opGetPreference, []Preference{preference})
	if err != nil {
		return PreferenceWithTally{}, err
	}
	return annotated[0], nil
}

func (service *Service) findPreference(db *gorm.DB, operation string, preferenceID uint) (Preference, error) {
	var preference Preference
	err := db.Where(queryID, preferenceID).Take(&preference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Preference{}, newServiceError(operation, reasonPreferenceNotFound, notFoundErrorf("preference %d does not exist", preferenceID))
	}
	if err != nil {
		return Preference{}, service.failed(operation, reasonQueryFailed, err, zap.Uint("preference_id", preferenceID))
	}
	return preference, nil
}
