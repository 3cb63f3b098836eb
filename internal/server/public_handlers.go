package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ratherlab/rather/backend/internal/preferences"
)

const (
	queryCategoryID        = "categoryId"
	queryPreferencesToSkip = "preferencesToSkip"
)

var exhaustionMessages = map[preferences.ExhaustionReason]string{
	preferences.ExhaustedNoneAvailable: "no validated preferences are available",
	preferences.ExhaustedAllSeen:       "every available preference has already been shown",
}

func (h *httpHandler) handleListCategories(c *gin.Context) {
	categories, err := h.preferences.ListCategories(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCategoryListPayload(categories))
}

func (h *httpHandler) handleGetNewPreference(c *gin.Context) {
	request := preferences.SelectionRequest{}
	if raw := c.Query(queryCategoryID); raw != "" {
		categoryID, ok := parseID(raw)
		if !ok {
			h.respondInvalidRequest(c, "categoryId must be a positive integer")
			return
		}
		request.CategoryID = &categoryID
	}

	var rawSkips []string
	rawSkips = append(rawSkips, c.QueryArray(queryPreferencesToSkip+"[]")...)
	rawSkips = append(rawSkips, c.QueryArray(queryPreferencesToSkip)...)
	for _, raw := range rawSkips {
		preferenceID, ok := parseID(raw)
		if !ok {
			h.respondInvalidRequest(c, "preferencesToSkip must contain positive integers")
			return
		}
		request.ExcludeIDs = append(request.ExcludeIDs, preferenceID)
	}

	selection, err := h.preferences.SelectNext(c.Request.Context(), request)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if !selection.Found() {
		c.JSON(http.StatusOK, gin.H{
			"preference": nil,
			"reason":     string(selection.Exhausted),
			"message":    exhaustionMessages[selection.Exhausted],
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"preference": newPublicPreferencePayload(*selection.Preference, h.displayFactor)})
}

type voteRequestPayload struct {
	PreferenceID uint   `json:"preference_id"`
	Vote         string `json:"vote"`
}

func (h *httpHandler) handleVote(c *gin.Context) {
	var request voteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, "body must be a JSON object with preference_id and vote")
		return
	}
	vote, err := h.preferences.CastVote(c.Request.Context(), request.PreferenceID, request.Vote)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newVotePayload(vote))
}
