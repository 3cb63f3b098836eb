package admins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials is returned for an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("admins: invalid credentials")
	// ErrMissingUsername indicates an empty username.
	ErrMissingUsername = errors.New("admins: username required")
	// ErrMissingPassword indicates an empty password.
	ErrMissingPassword = errors.New("admins: password required")
	// ErrInvalidPasswordHash indicates a configured hash that is not a bcrypt hash.
	ErrInvalidPasswordHash = errors.New("admins: password hash must be a bcrypt hash")
)

const queryUsername = "username = ?"

// HashPassword produces the bcrypt hash stored for an administrator.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrMissingPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("admins: hash password: %w", err)
	}
	return string(hashed), nil
}

// ServiceConfig describes the dependencies required for administrator authentication.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service authenticates administrators against stored bcrypt hashes.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the administrator service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("admins: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// EnsureAccount creates the account when it does not exist and otherwise
// replaces its password hash when the configured hash has changed.
func (s *Service) EnsureAccount(ctx context.Context, username, passwordHash string) (Account, error) {
	name := normalizeUsername(username)
	if name == "" {
		return Account{}, ErrMissingUsername
	}
	hash := strings.TrimSpace(passwordHash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return Account{}, ErrInvalidPasswordHash
	}

	db := s.db.WithContext(ctx)
	var account Account
	err := db.Where(queryUsername, name).First(&account).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account = Account{Username: name, PasswordHash: hash}
		if err := db.Create(&account).Error; err != nil {
			return Account{}, fmt.Errorf("admins: create account: %w", err)
		}
		s.logger.Info("admin account created", zap.String("username", name))
	case err != nil:
		return Account{}, fmt.Errorf("admins: load account: %w", err)
	case account.PasswordHash != hash:
		if err := db.Model(&Account{}).Where(queryUsername, name).Update("password_hash", hash).Error; err != nil {
			return Account{}, fmt.Errorf("admins: update password: %w", err)
		}
		account.PasswordHash = hash
		s.logger.Info("admin password rotated", zap.String("username", name))
	}
	return account, nil
}

// Authenticate checks the password of an administrator and records the login time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Account, error) {
	name := normalizeUsername(username)
	if name == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	db := s.db.WithContext(ctx)
	var account Account
	err := db.Where(queryUsername, name).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, fmt.Errorf("admins: load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	loginAt := s.now().UTC()
	if err := db.Model(&Account{}).Where(queryUsername, name).Update("last_login_at", loginAt).Error; err != nil {
		s.logger.Warn("failed to record admin login", zap.String("username", name), zap.Error(err))
	} else {
		account.LastLoginAt = &loginAt
	}
	return account, nil
}
