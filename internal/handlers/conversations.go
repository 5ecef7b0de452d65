package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/middleware"
	"realtime-service/internal/models"
	"realtime-service/internal/presence"
	"realtime-service/internal/repositories"
)

// ConversationHandler serves the conversation index read paths. The index
// is a rebuildable projection; the recompute endpoint repairs a row from
// message history.
type ConversationHandler struct {
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	presence      *presence.Tracker
	historyLimit  int
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversations repositories.ConversationRepository, messages repositories.MessageRepository, tracker *presence.Tracker, historyLimit int) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		presence:      tracker,
		historyLimit:  historyLimit,
	}
}

// ListConversations returns the caller's summaries, most recent first,
// with the counterpart's presence attached.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	summaries, err := h.conversations.ListConversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	type conversationResponse struct {
		models.ConversationSummary
		Counterpart models.PresenceRecord `json:"counterpart"`
	}

	responses := make([]conversationResponse, 0, len(summaries))
	for _, summary := range summaries {
		responses = append(responses, conversationResponse{
			ConversationSummary: summary,
			Counterpart:         h.presence.Record(c.Request.Context(), summary.CounterpartID),
		})
	}

	c.JSON(http.StatusOK, gin.H{"conversations": responses})
}

// GetMessages returns the history between the caller and a counterpart in
// ascending order. This is the catch-up path after a reconnect.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	counterpartID, ok := counterpartParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	limit := h.historyLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > h.historyLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	msgs, err := h.messages.ListMessagesBetween(c.Request.Context(), userID, counterpartID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// RecomputeSummary rebuilds the caller's summary row for one counterpart.
func (h *ConversationHandler) RecomputeSummary(c *gin.Context) {
	counterpartID, ok := counterpartParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	summary, err := h.conversations.Recompute(c.Request.Context(), userID, counterpartID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to recompute summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func counterpartParam(c *gin.Context) (int64, bool) {
	counterpartID, err := strconv.ParseInt(c.Param("counterpart_id"), 10, 64)
	if err != nil || counterpartID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid counterpart id"})
		return 0, false
	}
	if counterpartID == middleware.UserID(c) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot address yourself"})
		return 0, false
	}
	return counterpartID, true
}
