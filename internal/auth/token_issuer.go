package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingIssuer        = errors.New("issuer must be provided")
	errNonPositiveTTL       = errors.New("token ttl must be positive")
	errMissingAdminIdentity = errors.New("admin identity must be provided")
)

// TokenIssuerConfig configures the admin session issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// AdminIdentity is the authenticated administrator a session is minted for.
type AdminIdentity struct {
	ID       uint
	Username string
}

// TokenIssuer mints session JWTs after a successful admin login.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewTokenIssuer validates the configuration and constructs a TokenIssuer.
func NewTokenIssuer(cfg TokenIssuerConfig) (*TokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errMissingIssuer
	}
	if cfg.TokenTTL <= 0 {
		return nil, errNonPositiveTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           cfg.TokenTTL,
		clock:         clock,
	}, nil
}

// TTL reports how long issued sessions stay valid.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// IssueSessionToken produces a signed JWT for the administrator and its expiry time.
func (i *TokenIssuer) IssueSessionToken(_ context.Context, identity AdminIdentity) (string, time.Time, error) {
	username := strings.TrimSpace(identity.Username)
	if identity.ID == 0 || username == "" {
		return "", time.Time{}, errMissingAdminIdentity
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)

	claims := SessionClaims{
		AdminID:       identity.ID,
		AdminUsername: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(identity.ID), 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
