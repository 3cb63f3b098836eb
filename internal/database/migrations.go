package database

import (
	"errors"
	"time"

	"github.com/ratherlab/rather/backend/internal/admins"
	"github.com/ratherlab/rather/backend/internal/preferences"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillCategoryPositions = "2026-10-01_backfill_category_positions"
	migrationPurgeOrphanVotes          = "2026-10-01_purge_orphan_votes"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

// Migrate brings the schema up to date and applies pending data migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	models := append(preferences.Models(), admins.Models()...)
	models = append(models, &migrationRecord{})
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillCategoryPositions, apply: backfillCategoryPositions},
		{name: migrationPurgeOrphanVotes, apply: purgeOrphanVotes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillCategoryPositions numbers categories by id when every row still
// carries the column default, so imported data keeps its creation order.
func backfillCategoryPositions(db *gorm.DB) error {
	var positioned int64
	if err := db.Model(&preferences.Category{}).Where("position <> 0").Count(&positioned).Error; err != nil {
		return err
	}
	if positioned > 0 {
		return nil
	}
	var ids []uint
	if err := db.Model(&preferences.Category{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return err
	}
	for index, id := range ids {
		if err := db.Model(&preferences.Category{}).Where("id = ?", id).Update("position", index).Error; err != nil {
			return err
		}
	}
	return nil
}

func purgeOrphanVotes(db *gorm.DB) error {
	existing := db.Model(&preferences.Preference{}).Select("id")
	return db.Where("preference_id NOT IN (?)", existing).Delete(&preferences.Vote{}).Error
}
