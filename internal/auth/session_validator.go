package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionIssuer = "rather-admin"

var (
	errMissingCookieName = errors.New("session cookie name must be provided")

	// ErrMissingSessionToken means the request carried no session cookie.
	ErrMissingSessionToken = errors.New("admin session: token required")
	// ErrExpiredSessionToken means the session was valid but has lapsed.
	ErrExpiredSessionToken = errors.New("admin session: token expired")
	// ErrInvalidSessionToken covers bad signatures, foreign issuers and malformed tokens.
	ErrInvalidSessionToken = errors.New("admin session: invalid token")
	// ErrInvalidSessionSubject means the admin claims do not identify one account.
	ErrInvalidSessionSubject = errors.New("admin session: subject does not match admin")
)

// SessionClaims is the JWT payload carried by the admin session cookie.
// Subject holds AdminID in decimal form.
type SessionClaims struct {
	AdminID       uint   `json:"admin_id"`
	AdminUsername string `json:"admin_username"`
	jwt.RegisteredClaims
}

// SessionValidatorConfig configures cookie validation. Issuer defaults to
// "rather-admin" and must match what the TokenIssuer signs.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator checks the admin session cookie minted by TokenIssuer.
type SessionValidator struct {
	cookieName    string
	signingSecret []byte
	parser        *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, errMissingCookieName
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		cookieName:    cookieName,
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateRequest reads the session cookie and validates it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	cookie, err := r.Cookie(v.cookieName)
	if err != nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(cookie.Value)
}

// ValidateToken parses a signed session and checks that its subject names the
// admin carried in the claims.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.signingSecret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, ErrExpiredSessionToken
	case err != nil:
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	if claims.AdminID == 0 || claims.Subject != strconv.FormatUint(uint64(claims.AdminID), 10) || strings.TrimSpace(claims.AdminUsername) == "" {
		return SessionClaims{}, ErrInvalidSessionSubject
	}
	return claims, nil
}
