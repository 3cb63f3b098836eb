package preferences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, configure ...func(*ServiceConfig)) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDatabase(t)
	cfg := ServiceConfig{Database: db, Logger: zap.NewNop()}
	for _, apply := range configure {
		apply(&cfg)
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db
}

func mustCategory(t *testing.T, service *Service, name string) Category {
	t.Helper()
	category, err := service.CreateCategory(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to create category %q: %v", name, err)
	}
	return category
}

func mustPreference(t *testing.T, service *Service, categoryID uint, first, second string, validated bool) Preference {
	t.Helper()
	preference, err := service.CreatePreference(context.Background(), categoryID, PreferencePair{Preference1: first, Preference2: second})
	if err != nil {
		t.Fatalf("failed to create preference: %v", err)
	}
	if validated {
		preference, err = service.SetPreferenceValidated(context.Background(), preference.ID, true)
		if err != nil {
			t.Fatalf("failed to validate preference: %v", err)
		}
	}
	return preference
}

func mustVote(t *testing.T, service *Service, preferenceID uint, side Side) Vote {
	t.Helper()
	vote, err := service.CastVote(context.Background(), preferenceID, side.String())
	if err != nil {
		t.Fatalf("failed to cast vote: %v", err)
	}
	return vote
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error matching %v, got nil", target)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected error matching %v, got %v", target, err)
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if serviceErr.Code() != code {
		t.Fatalf("unexpected error code: got %s want %s", serviceErr.Code(), code)
	}
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var total int64
	scoped := db.Model(model)
	if query != "" {
		scoped = scoped.Where(query, args...)
	}
	if err := scoped.Count(&total).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return total
}
