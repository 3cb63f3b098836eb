package preferences

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type voteCountRow struct {
	PreferenceID uint
	Vote         Side
	Total        int64
}

// Tally returns the exact vote count per side for a preference.
func (service *Service) Tally(ctx context.Context, preferenceID uint) (Tally, error) {
	if err := service.ready(opTally); err != nil {
		return Tally{}, err
	}
	db := service.db.WithContext(ctx)
	if _, err := service.findPreference(db, opTally, preferenceID); err != nil {
		return Tally{}, err
	}
	tallies, err := service.tallies(db, opTally, []uint{preferenceID})
	if err != nil {
		return Tally{}, err
	}
	return tallies[preferenceID], nil
}

func (service *Service) annotate(db *gorm.DB, operation string, stored []Preference) ([]PreferenceWithTally, error) {
	ids := make([]uint, 0, len(stored))
	for _, preference := range stored {
		ids = append(ids, preference.ID)
	}
	tallies, err := service.tallies(db, operation, ids)
	if err != nil {
		return nil, err
	}
	annotated := make([]PreferenceWithTally, 0, len(stored))
	for _, preference := range stored {
		annotated = append(annotated, PreferenceWithTally{
			Preference: preference,
			Tally:      tallies[preference.ID],
		})
	}
	return annotated, nil
}

// tallies counts votes per side for every requested preference in one grouped query.
func (service *Service) tallies(db *gorm.DB, operation string, preferenceIDs []uint) (map[uint]Tally, error) {
	result := make(map[uint]Tally, len(preferenceIDs))
	if len(preferenceIDs) == 0 {
		return result, nil
	}

	var rows []voteCountRow
	if err := db.Model(&Vote{}).
		Select("preference_id, vote, COUNT(*) AS total").
		Where("preference_id IN ?", preferenceIDs).
		Group("preference_id, vote").
		Scan(&rows).Error; err != nil {
		return nil, service.failed(operation, reasonQueryFailed, err, zap.Int("preference_count", len(preferenceIDs)))
	}

	for _, row := range rows {
		tally := result[row.PreferenceID]
		switch row.Vote {
		case SidePreference1:
			tally.Preference1 = row.Total
		case SidePreference2:
			tally.Preference2 = row.Total
		}
		result[row.PreferenceID] = tally
	}
	return result, nil
}
