package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORSMiddlewareAllowsCredentialedPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware("https://app.example.com"))
	router.OPTIONS("/admin/categories", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/admin/categories", http.NoBody)
	request.Header.Set("Origin", "https://app.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodPatch)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected origin to be echoed, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}

func TestCORSMiddlewareRestrictsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware("https://admin.example.com"))
	router.GET("/api/categories", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodGet, "/api/categories", http.NoBody)
	request.Header.Set("Origin", "https://elsewhere.example.com")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden for unknown origin, got %d", recorder.Code)
	}
}

func TestCORSWildcardNeverAllowsCredentials(t *testing.T) {
	testCases := []struct {
		name    string
		origins []string
	}{
		{name: "unset", origins: nil},
		{name: "wildcard", origins: []string{"*"}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			router := newTestRouter(t, newTestPreferences(t), func(deps *Dependencies) {
				deps.AllowedOrigins = testCase.origins
			})

			request := httptest.NewRequest(http.MethodGet, "/admin/categories", http.NoBody)
			request.Header.Set("Origin", "https://elsewhere.example.com")
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Fatalf("expected literal wildcard origin, got %q", got)
			}
			if got := recorder.Header().Get("Access-Control-Allow-Credentials"); got != "" {
				t.Fatalf("expected no credentials header, got %q", got)
			}
		})
	}
}
