package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ratherlab/rather/backend/internal/admins"
	"github.com/ratherlab/rather/backend/internal/auth"
	"github.com/ratherlab/rather/backend/internal/preferences"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	adminClaimsContextKey = "rather_admin_claims"
	tracingServiceName    = "rather-api"
)

var (
	errMissingPreferencesService = errors.New("preferences service dependency required")
	errMissingAdminAuthenticator = errors.New("admin authenticator dependency required")
	errMissingSessionValidator   = errors.New("session validator dependency required")
	errMissingSessionIssuer      = errors.New("session issuer dependency required")
)

// AdminAuthenticator checks administrator credentials.
type AdminAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (admins.Account, error)
}

// SessionValidator validates the admin session cookie.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

// SessionIssuer mints admin session tokens.
type SessionIssuer interface {
	IssueSessionToken(ctx context.Context, identity auth.AdminIdentity) (string, time.Time, error)
}

type Dependencies struct {
	Preferences      *preferences.Service
	Admins           AdminAuthenticator
	SessionValidator SessionValidator
	SessionIssuer    SessionIssuer
	Realtime         *RealtimeDispatcher
	Logger           *zap.Logger
	AllowedOrigins   []string
	// DisplayFactor scales public vote counts. Values below 1 are treated as 1.
	DisplayFactor  int
	SecureCookies  bool
	TracingEnabled bool
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Preferences == nil {
		return nil, errMissingPreferencesService
	}
	if deps.Admins == nil {
		return nil, errMissingAdminAuthenticator
	}
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.SessionIssuer == nil {
		return nil, errMissingSessionIssuer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtimeDispatcher := deps.Realtime
	if realtimeDispatcher == nil {
		realtimeDispatcher = NewRealtimeDispatcher()
	}
	displayFactor := deps.DisplayFactor
	if displayFactor < 1 {
		displayFactor = 1
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.TracingEnabled {
		router.Use(otelgin.Middleware(tracingServiceName))
	}
	router.Use(requestIDMiddleware())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins...))

	handler := &httpHandler{
		preferences:   deps.Preferences,
		admins:        deps.Admins,
		sessions:      deps.SessionValidator,
		issuer:        deps.SessionIssuer,
		realtime:      realtimeDispatcher,
		logger:        logger,
		displayFactor: int64(displayFactor),
		secureCookies: deps.SecureCookies,
		heartbeat:     realtimeHeartbeatInterval,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/", handler.handleListCategories)

	api := router.Group("/api")
	api.GET("/categories", handler.handleListCategories)
	api.GET("/get-new-preference", handler.handleGetNewPreference)
	api.POST("/vote", handler.handleVote)

	router.POST("/admin/login", handler.handleAdminLogin)
	router.POST("/admin/logout", handler.handleAdminLogout)

	admin := router.Group("/admin")
	admin.Use(handler.authorizeRequest)
	admin.GET("/categories", handler.handleAdminListCategories)
	admin.POST("/categories", handler.handleCreateCategory)
	admin.POST("/categories/reorder", handler.handleReorderCategories)
	admin.GET("/categories/:id", handler.handleShowCategory)
	admin.PUT("/categories/:id", handler.handleUpdateCategory)
	admin.DELETE("/categories/:id", handler.handleDeleteCategory)
	admin.POST("/categories/:id/preferences", handler.handleCreatePreference)
	admin.POST("/categories/:id/preferences/import", handler.handleImportPreferences)
	admin.GET("/categories/:id/stream", handler.handleCategoryStream)
	admin.PUT("/preferences/:id", handler.handleUpdatePreference)
	admin.PATCH("/preferences/:id/validation", handler.handlePreferenceValidation)
	admin.DELETE("/preferences/:id", handler.handleDeletePreference)

	return router, nil
}

// corsMiddleware allows every origin without credentials unless explicit
// origins are configured. Only explicit origins may send the session cookie.
func corsMiddleware(origins ...string) gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if !slices.Contains(origins, "*") && len(origins) > 0 {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	preferences   *preferences.Service
	admins        AdminAuthenticator
	sessions      SessionValidator
	issuer        SessionIssuer
	realtime      *RealtimeDispatcher
	logger        *zap.Logger
	displayFactor int64
	secureCookies bool
	heartbeat     time.Duration
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) respondInvalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": message})
}

// respondServiceError maps preference service failures onto HTTP statuses.
func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, preferences.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, preferences.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, preferences.ErrConflict):
		status = http.StatusConflict
	}

	payload := gin.H{"error": statusErrorLabels[status]}
	var serviceErr *preferences.ServiceError
	if errors.As(err, &serviceErr) {
		payload["error"] = serviceErr.Reason()
		payload["code"] = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		payload["message"] = "internal error"
	} else {
		payload["message"] = preferences.Message(err)
	}
	c.JSON(status, payload)
}

var statusErrorLabels = map[int]string{
	http.StatusUnprocessableEntity: "invalid_input",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusInternalServerError: "internal_error",
}

func parseIDParam(c *gin.Context) (uint, bool) {
	return parseID(c.Param("id"))
}

func parseID(raw string) (uint, bool) {
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}
