package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ratherlab/rather/backend/internal/admins"
	"github.com/ratherlab/rather/backend/internal/auth"
	"github.com/ratherlab/rather/backend/internal/database"
	"github.com/ratherlab/rather/backend/internal/preferences"
	"github.com/ratherlab/rather/backend/internal/server"
	"go.uber.org/zap"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "rather_session"
	sessionIssuer        = "rather-admin"
	jsonContentType      = "application/json"
)

func TestAdminCurationAndGameFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "rather.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	testContext.Cleanup(func() {
		_ = database.Close(db)
	})

	preferenceService, err := preferences.NewService(preferences.ServiceConfig{Database: db, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build preference service: %v", err)
	}
	adminService, err := admins.NewService(admins.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build admin service: %v", err)
	}
	passwordHash, err := admins.HashPassword("integration-password")
	if err != nil {
		testContext.Fatalf("failed to hash password: %v", err)
	}
	account, err := adminService.EnsureAccount(context.Background(), "curator", passwordHash)
	if err != nil {
		testContext.Fatalf("failed to seed admin: %v", err)
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		testContext.Fatalf("failed to construct token issuer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Preferences:      preferenceService,
		Admins:           adminService,
		SessionValidator: sessionValidator,
		SessionIssuer:    tokenIssuer,
		Logger:           zap.NewNop(),
		DisplayFactor:    2,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	sessionCookie := &http.Cookie{
		Name:  sessionCookieName,
		Value: mustMintSessionToken(testContext, sessionSigningSecret, account, time.Now()),
	}

	var category struct {
		ID uint `json:"id"`
	}
	doJSON(testContext, testServer.URL+"/admin/categories", http.MethodPost, sessionCookie, map[string]any{"name": "Animals"}, http.StatusCreated, &category)
	if category.ID == 0 {
		testContext.Fatalf("expected category id")
	}

	importBody := map[string]any{
		"preferences_json": `[{"preference1":"Cats","preference2":"Dogs"},{"preference1":"Owls","preference2":"Larks"}]`,
	}
	var importResult struct {
		Imported int `json:"imported"`
	}
	doJSON(testContext, fmt.Sprintf("%s/admin/categories/%d/preferences/import", testServer.URL, category.ID), http.MethodPost, sessionCookie, importBody, http.StatusOK, &importResult)
	if importResult.Imported != 2 {
		testContext.Fatalf("expected two imported preferences, got %d", importResult.Imported)
	}

	var detail struct {
		Preferences []struct {
			ID             uint `json:"id"`
			HumanValidated bool `json:"human_validated"`
		} `json:"preferences"`
	}
	categoryURL := fmt.Sprintf("%s/admin/categories/%d", testServer.URL, category.ID)
	doJSON(testContext, categoryURL, http.MethodGet, sessionCookie, nil, http.StatusOK, &detail)
	if len(detail.Preferences) != 2 {
		testContext.Fatalf("expected two preferences, got %d", len(detail.Preferences))
	}

	gameURL := fmt.Sprintf("%s/api/get-new-preference?categoryId=%d", testServer.URL, category.ID)
	var exhausted struct {
		Preference *json.RawMessage `json:"preference"`
		Reason     string           `json:"reason"`
	}
	doJSON(testContext, gameURL, http.MethodGet, nil, nil, http.StatusOK, &exhausted)
	if exhausted.Preference != nil || exhausted.Reason != "none-available" {
		testContext.Fatalf("expected unvalidated imports to stay hidden, got %+v", exhausted)
	}

	for _, preference := range detail.Preferences {
		validationURL := fmt.Sprintf("%s/admin/preferences/%d/validation", testServer.URL, preference.ID)
		doJSON(testContext, validationURL, http.MethodPatch, sessionCookie, map[string]any{"human_validated": true}, http.StatusOK, nil)
	}

	seen := make([]uint, 0, len(detail.Preferences))
	for range detail.Preferences {
		target := gameURL
		for _, id := range seen {
			target += "&preferencesToSkip[]=" + strconv.FormatUint(uint64(id), 10)
		}
		var round struct {
			Preference *struct {
				ID uint `json:"id"`
			} `json:"preference"`
		}
		doJSON(testContext, target, http.MethodGet, nil, nil, http.StatusOK, &round)
		if round.Preference == nil {
			testContext.Fatalf("expected a preference after %d rounds", len(seen))
		}
		for _, id := range seen {
			if id == round.Preference.ID {
				testContext.Fatalf("preference %d was served twice", id)
			}
		}
		seen = append(seen, round.Preference.ID)
		doJSON(testContext, testServer.URL+"/api/vote", http.MethodPost, nil, map[string]any{"preference_id": round.Preference.ID, "vote": "preference1"}, http.StatusCreated, nil)
	}

	target := gameURL
	for _, id := range seen {
		target += "&preferencesToSkip[]=" + strconv.FormatUint(uint64(id), 10)
	}
	doJSON(testContext, target, http.MethodGet, nil, nil, http.StatusOK, &exhausted)
	if exhausted.Reason != "all-seen" {
		testContext.Fatalf("expected all-seen once every preference was skipped, got %+v", exhausted)
	}

	var publicView struct {
		Preference struct {
			Preference1Votes int64 `json:"preference1_votes"`
		} `json:"preference"`
	}
	doJSON(testContext, fmt.Sprintf("%s&preferencesToSkip[]=%d", gameURL, seen[0]), http.MethodGet, nil, nil, http.StatusOK, &publicView)
	if publicView.Preference.Preference1Votes != 2 {
		testContext.Fatalf("expected public tally scaled by 2, got %d", publicView.Preference.Preference1Votes)
	}

	var adminView struct {
		Preferences []struct {
			Preference1Votes int64 `json:"preference1_votes"`
			VotesCount       int64 `json:"votes_count"`
		} `json:"preferences"`
	}
	doJSON(testContext, categoryURL, http.MethodGet, sessionCookie, nil, http.StatusOK, &adminView)
	for _, preference := range adminView.Preferences {
		if preference.Preference1Votes != 1 || preference.VotesCount != 1 {
			testContext.Fatalf("expected exact admin tallies, got %+v", preference)
		}
	}
}

func doJSON(testContext *testing.T, url, method string, cookie *http.Cookie, body any, wantStatus int, out any) {
	testContext.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			testContext.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, url, reader)
	if err != nil {
		testContext.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	if cookie != nil {
		request.AddCookie(cookie)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer response.Body.Close()
	if response.StatusCode != wantStatus {
		testContext.Fatalf("%s %s: unexpected status %d", method, url, response.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			testContext.Fatalf("failed to decode %s response: %v", url, err)
		}
	}
}

func mustMintSessionToken(testContext *testing.T, signingSecret string, account admins.Account, now time.Time) string {
	testContext.Helper()
	subject := strconv.FormatUint(uint64(account.ID), 10)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.SessionClaims{
		AdminID:       account.ID,
		AdminUsername: account.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		testContext.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
