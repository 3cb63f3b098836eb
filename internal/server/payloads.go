package server

import (
	"time"

	"github.com/ratherlab/rather/backend/internal/preferences"
)

type categoryPayload struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type categoryListPayload struct {
	Categories []categoryPayload `json:"categories"`
}

type categorySummaryPayload struct {
	categoryPayload
	PreferenceCount int64 `json:"preference_count"`
	ValidatedCount  int64 `json:"validated_count"`
}

type publicPreferencePayload struct {
	ID               uint   `json:"id"`
	CategoryID       uint   `json:"category_id"`
	Preference1      string `json:"preference1"`
	Preference2      string `json:"preference2"`
	Preference1Votes int64  `json:"preference1_votes"`
	Preference2Votes int64  `json:"preference2_votes"`
	VotesCount       int64  `json:"votes_count"`
}

type adminPreferencePayload struct {
	ID               uint      `json:"id"`
	CategoryID       uint      `json:"category_id"`
	Preference1      string    `json:"preference1"`
	Preference2      string    `json:"preference2"`
	HumanValidated   bool      `json:"human_validated"`
	Preference1Votes int64     `json:"preference1_votes"`
	Preference2Votes int64     `json:"preference2_votes"`
	VotesCount       int64     `json:"votes_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type categoryDetailPayload struct {
	Category    categoryPayload          `json:"category"`
	Preferences []adminPreferencePayload `json:"preferences"`
}

type votePayload struct {
	ID           uint      `json:"id"`
	PreferenceID uint      `json:"preference_id"`
	Vote         string    `json:"vote"`
	CreatedAt    time.Time `json:"created_at"`
}

func newCategoryPayload(category preferences.Category) categoryPayload {
	return categoryPayload{ID: category.ID, Name: category.Name, Position: category.Position}
}

func newCategoryListPayload(categories []preferences.Category) categoryListPayload {
	payload := categoryListPayload{Categories: make([]categoryPayload, 0, len(categories))}
	for _, category := range categories {
		payload.Categories = append(payload.Categories, newCategoryPayload(category))
	}
	return payload
}

// newPublicPreferencePayload scales tallies by the configured display factor.
// Stored counts are never changed.
func newPublicPreferencePayload(preference preferences.PreferenceWithTally, displayFactor int64) publicPreferencePayload {
	first := preference.Tally.Preference1 * displayFactor
	second := preference.Tally.Preference2 * displayFactor
	return publicPreferencePayload{
		ID:               preference.ID,
		CategoryID:       preference.CategoryID,
		Preference1:      preference.Preference1,
		Preference2:      preference.Preference2,
		Preference1Votes: first,
		Preference2Votes: second,
		VotesCount:       first + second,
	}
}

func newAdminPreferencePayload(preference preferences.PreferenceWithTally) adminPreferencePayload {
	return adminPreferencePayload{
		ID:               preference.ID,
		CategoryID:       preference.CategoryID,
		Preference1:      preference.Preference1,
		Preference2:      preference.Preference2,
		HumanValidated:   preference.HumanValidated,
		Preference1Votes: preference.Tally.Preference1,
		Preference2Votes: preference.Tally.Preference2,
		VotesCount:       preference.Tally.Total(),
		CreatedAt:        preference.CreatedAt,
		UpdatedAt:        preference.UpdatedAt,
	}
}

func newVotePayload(vote preferences.Vote) votePayload {
	return votePayload{
		ID:           vote.ID,
		PreferenceID: vote.PreferenceID,
		Vote:         vote.Vote.String(),
		CreatedAt:    vote.CreatedAt,
	}
}
