package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ratherlab/rather/backend/internal/admins"
	"github.com/ratherlab/rather/backend/internal/auth"
	"github.com/ratherlab/rather/backend/internal/preferences"
	"go.uber.org/zap"
)

const streamTestSecret = "stream-test-secret"

type sseEvent struct {
	name string
	data string
}

func readSSEEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()
	var event sseEvent
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("failed to read event stream: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if event.name != "" || event.data != "" {
				return event
			}
		case strings.HasPrefix(line, "event:"):
			event.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			event.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestCategoryStreamDeliversVotes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDatabase(t)

	preferenceService, err := preferences.NewService(preferences.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct preference service: %v", err)
	}
	adminService, err := admins.NewService(admins.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct admin service: %v", err)
	}
	hash, err := admins.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if _, err := adminService.EnsureAccount(context.Background(), "admin", hash); err != nil {
		t.Fatalf("failed to seed admin: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(streamTestSecret),
		Issuer:        "rather-admin",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(streamTestSecret),
		CookieName:    "rather_session",
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	preferenceService.SetObserver(dispatcher)

	category, err := preferenceService.CreateCategory(context.Background(), "Colors")
	if err != nil {
		t.Fatalf("failed to create category: %v", err)
	}
	preference := seedPreference(t, preferenceService, category.ID, "Red", "Blue", true)

	handler, err := NewHTTPHandler(Dependencies{
		Preferences:      preferenceService,
		Admins:           adminService,
		SessionValidator: validator,
		SessionIssuer:    issuer,
		Realtime:         dispatcher,
		Logger:           zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar}

	loginResponse, err := client.Post(server.URL+"/admin/login", "application/json", strings.NewReader(`{"username":"Admin","password":"correct horse"}`))
	if err != nil {
		t.Fatalf("login request failed: %v", err)
	}
	loginResponse.Body.Close()
	if loginResponse.StatusCode != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d", loginResponse.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	streamRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/admin/categories/%d/stream", server.URL, category.ID), http.NoBody)
	if err != nil {
		t.Fatalf("failed to build stream request: %v", err)
	}
	streamResponse, err := client.Do(streamRequest)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer streamResponse.Body.Close()
	if streamResponse.StatusCode != http.StatusOK {
		t.Fatalf("expected stream to open, got %d", streamResponse.StatusCode)
	}
	reader := bufio.NewReader(streamResponse.Body)

	if event := readSSEEvent(t, reader); event.name != realtimeEventHeartbeat {
		t.Fatalf("expected an initial heartbeat, got %+v", event)
	}

	voteResponse, err := client.Post(server.URL+"/api/vote", "application/json", strings.NewReader(fmt.Sprintf(`{"preference_id":%d,"vote":"preference1"}`, preference.ID)))
	if err != nil {
		t.Fatalf("vote request failed: %v", err)
	}
	voteResponse.Body.Close()
	if voteResponse.StatusCode != http.StatusCreated {
		t.Fatalf("expected vote to be created, got %d", voteResponse.StatusCode)
	}

	event := readSSEEvent(t, reader)
	if event.name != RealtimeEventVoteCast {
		t.Fatalf("expected vote-cast event, got %+v", event)
	}
	var payload realtimeEventPayload
	if err := json.Unmarshal([]byte(event.data), &payload); err != nil {
		t.Fatalf("failed to decode event data %q: %v", event.data, err)
	}
	if payload.PreferenceID != preference.ID || payload.CategoryID != category.ID || payload.Vote != "preference1" {
		t.Fatalf("unexpected event payload %+v", payload)
	}
}

func TestCategoryStreamRejectsUnknownCategory(t *testing.T) {
	service := newTestPreferences(t)
	router := newTestRouter(t, service)

	recorder := performRequest(t, router, http.MethodGet, "/admin/categories/42/stream", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", recorder.Code)
	}
}
