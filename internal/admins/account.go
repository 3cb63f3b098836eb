package admins

import (
	"strings"
	"time"
)

// Account is an administrator allowed to curate categories and preferences.
type Account struct {
	ID           uint       `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string     `gorm:"column:username;size:190;not null;uniqueIndex"`
	PasswordHash string     `gorm:"column:password_hash;size:255;not null"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing administrator accounts.
func (Account) TableName() string {
	return "admin_accounts"
}

// Models lists the tables owned by the package.
func Models() []any {
	return []any{&Account{}}
}

func normalizeUsername(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
