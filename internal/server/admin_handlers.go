package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ratherlab/rather/backend/internal/admins"
	"github.com/ratherlab/rather/backend/internal/auth"
	"github.com/ratherlab/rather/backend/internal/preferences"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	Username  string `json:"username"`
	ExpiresIn int64  `json:"expires_in"`
}

func (h *httpHandler) handleAdminLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" || request.Password == "" {
		h.respondInvalidRequest(c, "username and password are required")
		return
	}

	account, err := h.admins.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		if errors.Is(err, admins.ErrInvalidCredentials) {
			h.logger.Info("admin login rejected", zap.String("username", request.Username))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		h.logger.Error("admin login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresAt, err := h.issuer.IssueSessionToken(c.Request.Context(), auth.AdminIdentity{ID: account.ID, Username: account.Username})
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	expiresIn := int64(time.Until(expiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token, int(expiresIn), "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, loginResponsePayload{Username: account.Username, ExpiresIn: expiresIn})
}

func (h *httpHandler) handleAdminLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.secureCookies, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAdminListCategories(c *gin.Context) {
	summaries, err := h.preferences.ListCategorySummaries(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	payload := make([]categorySummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		payload = append(payload, categorySummaryPayload{
			categoryPayload: newCategoryPayload(summary.Category),
			PreferenceCount: summary.PreferenceCount,
			ValidatedCount:  summary.ValidatedCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"categories": payload})
}

type categoryRequestPayload struct {
	Name     string `json:"name"`
	Position *int   `json:"position"`
}

func (h *httpHandler) handleCreateCategory(c *gin.Context) {
	var request categoryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "body must be a JSON object with a name")
		return
	}
	category, err := h.preferences.CreateCategory(c.Request.Context(), request.Name)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCategoryPayload(category))
}

func (h *httpHandler) handleShowCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "category id must be a positive integer")
		return
	}
	category, err := h.preferences.GetCategory(c.Request.Context(), categoryID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	listed, err := h.preferences.ListPreferencesByCategory(c.Request.Context(), categoryID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	detail := categoryDetailPayload{
		Category:    newCategoryPayload(category),
		Preferences: make([]adminPreferencePayload, 0, len(listed)),
	}
	for _, preference := range listed {
		detail.Preferences = append(detail.Preferences, newAdminPreferencePayload(preference))
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleUpdateCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "category id must be a positive integer")
		return
	}
	var request categoryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "body must be a JSON object with a name")
		return
	}
	category, err := h.preferences.UpdateCategory(c.Request.Context(), categoryID, preferences.CategoryUpdate{
		Name:     request.Name,
		Position: request.Position,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCategoryPayload(category))
}

func (h *httpHandler) handleDeleteCategory(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "category id must be a positive integer")
		return
	}
	if err := h.preferences.DeleteCategory(c.Request.Context(), categoryID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderRequestPayload struct {
	Categories []struct {
		ID       uint `json:"id"`
		Position int  `json:"position"`
	} `json:"categories"`
}

func (h *httpHandler) handleReorderCategories(c *gin.Context) {
	var request reorderRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "body must be a JSON object with a categories array")
		return
	}
	positions := make([]preferences.CategoryPosition, 0, len(request.Categories))
	for _, entry := range request.Categories {
		positions = append(positions, preferences.CategoryPosition{ID: entry.ID, Position: entry.Position})
	}
	if err := h.preferences.ReorderCategories(c.Request.Context(), positions); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCreatePreference(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "category id must be a positive integer")
		return
	}
	var request preferences.PreferencePair
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "body must be a JSON object with preference1 and preference2")
		return
	}
	preference, err := h.preferences.CreatePreference(c.Request.Context(), categoryID, request)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newAdminPreferencePayload(preferences.PreferenceWithTally{Preference: preference}))
}

type importRequestPayload struct {
	PreferencesJSON string `json:"preferences_json"`
}

func (h *httpHandler) handleImportPreferences(c *gin.Context) {
	categoryID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "category id must be a positive integer")
		return
	}
	var request importRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "body must be a JSON object with preferences_json")
		return
	}
	pairs, err := preferences.ParseBulkPayload(request.PreferencesJSON)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	imported, err := h.preferences.BulkCreatePreferences(c.Request.Context(), categoryID, pairs)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}

func (h *httpHandler) handleUpdatePreference(c *gin.Context) {
	preferenceID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "preference id must be a positive integer")
		return
	}
	var request preferences.PreferencePair
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "body must be a JSON object with preference1 and preference2")
		return
	}
	if _, err := h.preferences.UpdatePreference(c.Request.Context(), preferenceID, request); err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.respondPreference(c, preferenceID)
}

type validationRequestPayload struct {
	HumanValidated *bool `json:"human_validated"`
}

// handlePreferenceValidation toggles the flag, or sets it when the body names a value.
func (h *httpHandler) handlePreferenceValidation(c *gin.Context) {
	preferenceID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "preference id must be a positive integer")
		return
	}
	var request validationRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		h.respondInvalidRequest(c, "body must be a JSON object with human_validated")
		return
	}

	var err error
	if request.HumanValidated == nil {
		_, err = h.preferences.TogglePreferenceValidated(c.Request.Context(), preferenceID)
	} else {
		_, err = h.preferences.SetPreferenceValidated(c.Request.Context(), preferenceID, *request.HumanValidated)
	}
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	h.respondPreference(c, preferenceID)
}

func (h *httpHandler) handleDeletePreference(c *gin.Context) {
	preferenceID, ok := parseIDParam(c)
	if !ok {
		h.respondInvalidRequest(c, "preference id must be a positive integer")
		return
	}
	if err := h.preferences.DeletePreference(c.Request.Context(), preferenceID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondPreference(c *gin.Context, preferenceID uint) {
	preference, err := h.preferences.GetPreference(c.Request.Context(), preferenceID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAdminPreferencePayload(preference))
}
