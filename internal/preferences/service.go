package preferences

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew              = "preferences.service.new"
	opCreateCategory          = "preferences.create_category"
	opUpdateCategory          = "preferences.update_category"
	opReorderCategories       = "preferences.reorder_categories"
	opDeleteCategory          = "preferences.delete_category"
	opListCategories          = "preferences.list_categories"
	opGetCategory             = "preferences.get_category"
	opCreatePreference        = "preferences.create_preference"
	opBulkCreatePreferences   = "preferences.bulk_create_preferences"
	opUpdatePreference        = "preferences.update_preference"
	opSetPreferenceValidated  = "preferences.set_preference_validated"
	opDeletePreference        = "preferences.delete_preference"
	opListPreferences         = "preferences.list_preferences"
	opGetPreference           = "preferences.get_preference"
	opTally                   = "preferences.tally"
	opSelectNext              = "preferences.select_next"
	opCastVote                = "preferences.cast_vote"
	reasonMissingDatabase     = "missing_database"
	reasonInvalidInput        = "invalid_input"
	reasonCategoryNotFound    = "category_not_found"
	reasonPreferenceNotFound  = "preference_not_found"
	reasonHasPreferences      = "has_preferences"
	reasonQueryFailed         = "query_failed"
	reasonInsertFailed        = "insert_failed"
	reasonUpdateFailed        = "update_failed"
	reasonDeleteFailed        = "delete_failed"
	reasonVoteCascadeFailed   = "vote_cascade_failed"
	reasonTransactionFailed   = "transaction_failed"
	queryID                   = "id = ?"
	queryCategoryID           = "category_id = ?"
	queryPreferenceID         = "preference_id = ?"
	queryValidated            = "human_validated = ?"
	orderCategoryDisplay      = "position ASC, id ASC"
	orderPreferenceRecentDesc = "created_at DESC, id DESC"
)

var noOpLogger = zap.NewNop()

// VoteEvent describes a vote that has been committed.
type VoteEvent struct {
	Vote       Vote
	CategoryID uint
}

// VoteObserver is notified after each committed vote.
type VoteObserver interface {
	VoteRecorded(ctx context.Context, event VoteEvent)
}

// ServiceConfig describes the dependencies of the preference service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
	// Random returns an integer in [0, n). Defaults to math/rand/v2.IntN.
	Random   func(n int) int
	Observer VoteObserver
}

// Service owns categories, preferences and votes.
type Service struct {
	db       *gorm.DB
	logger   *zap.Logger
	random   func(n int) int
	observer VoteObserver
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	random := cfg.Random
	if random == nil {
		random = rand.IntN
	}

	return &Service{
		db:       cfg.Database,
		logger:   logger,
		random:   random,
		observer: cfg.Observer,
	}, nil
}

// SetObserver replaces the vote observer. It must be called before serving traffic.
func (service *Service) SetObserver(observer VoteObserver) {
	service.observer = observer
}

func (service *Service) ready(operation string) error {
	if service == nil || service.db == nil {
		service.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	return nil
}

func (service *Service) invalid(operation string, cause error) error {
	return newServiceError(operation, reasonInvalidInput, cause)
}

func (service *Service) failed(operation, reason string, cause error, fields ...zap.Field) error {
	service.logError(operation, reason, cause, fields...)
	return newServiceError(operation, reason, cause)
}

func (service *Service) loggerOrDefault() *zap.Logger {
	if service == nil {
		return noOpLogger
	}
	if service.logger == nil {
		return noOpLogger
	}
	return service.logger
}

func (service *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	service.loggerOrDefault().Error("preferences service error", attrs...)
}
