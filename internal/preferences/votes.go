package preferences

import (
	"context"

	"go.uber.org/zap"
)

// CastVote records a vote for one side of an existing preference.
func (service *Service) CastVote(ctx context.Context, preferenceID uint, side string) (Vote, error) {
	if err := service.ready(opCastVote); err != nil {
		return Vote{}, err
	}
	parsed, err := ParseSide(side)
	if err != nil {
		return Vote{}, service.invalid(opCastVote, err)
	}

	db := service.db.WithContext(ctx)
	preference, err := service.findPreference(db, opCastVote, preferenceID)
	if err != nil {
		return Vote{}, err
	}

	vote := Vote{PreferenceID: preference.ID, Vote: parsed}
	if err := db.Create(&vote).Error; err != nil {
		return Vote{}, service.failed(opCastVote, reasonInsertFailed, err,
			zap.Uint("preference_id", preferenceID),
			zap.String("vote", parsed.String()))
	}

	if service.observer != nil {
		service.observer.VoteRecorded(ctx, VoteEvent{Vote: vote, CategoryID: preference.CategoryID})
	}
	return vote, nil
}
