package preferences

import (
	"strings"
	"time"
)

// Side identifies one option of a preference pair.
type Side string

const (
	// SidePreference1 records a vote for the first option.
	SidePreference1 Side = "preference1"
	// SidePreference2 records a vote for the second option.
	SidePreference2 Side = "preference2"
)

const maxTextLength = 255

// ParseSide validates a raw vote token.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.TrimSpace(raw)) {
	case SidePreference1:
		return SidePreference1, nil
	case SidePreference2:
		return SidePreference2, nil
	default:
		return "", validationErrorf("vote must be %q or %q", SidePreference1, SidePreference2)
	}
}

// String returns the stored token.
func (s Side) String() string {
	return string(s)
}

// Category groups preferences and defines the public draw order.
type Category struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:255;not null"`
	Position  int       `gorm:"column:position;not null;default:0;index:idx_categories_order,priority:1"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Category) TableName() string {
	return "categories"
}

// Preference is a pair of mutually exclusive options shown to voters.
type Preference struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	CategoryID     uint      `gorm:"column:category_id;not null;index:idx_preferences_category_validated,priority:1"`
	Preference1    string    `gorm:"column:preference1;size:255;not null"`
	Preference2    string    `gorm:"column:preference2;size:255;not null"`
	HumanValidated bool      `gorm:"column:human_validated;not null;default:false;index:idx_preferences_category_validated,priority:2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Preference) TableName() string {
	return "preferences"
}

// Vote is a single recorded choice. Votes are never updated.
type Vote struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	PreferenceID uint      `gorm:"column:preference_id;not null;index:idx_votes_preference_side,priority:1"`
	Vote         Side      `gorm:"column:vote;size:16;not null;index:idx_votes_preference_side,priority:2"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// Models lists every table owned by the package, in migration order.
func Models() []any {
	return []any{&Category{}, &Preference{}, &Vote{}}
}

// Tally holds exact per-side vote counts.
type Tally struct {
	Preference1 int64
	Preference2 int64
}

// Total returns the number of votes across both sides.
func (t Tally) Total() int64 {
	return t.Preference1 + t.Preference2
}

// PreferenceWithTally annotates a preference with its derived vote counts.
type PreferenceWithTally struct {
	Preference
	Tally Tally
}

// PreferencePair is the user-supplied text of a preference.
type PreferencePair struct {
	Preference1 string `json:"preference1" yaml:"preference1"`
	Preference2 string `json:"preference2" yaml:"preference2"`
}

// CategoryPosition is a single entry of a reorder request.
type CategoryPosition struct {
	ID       uint
	Position int
}

// CategoryUpdate describes an admin edit of a category.
type CategoryUpdate struct {
	Name     string
	Position *int
}

// CategorySummary adds preference counts to a category for the admin index.
type CategorySummary struct {
	Category
	PreferenceCount int64
	ValidatedCount  int64
}
