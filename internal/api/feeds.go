package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lfelipe/studyhall/internal/feed"
)

func (h *Handler) getGroups(c *gin.Context) {
	c.JSON(http.StatusOK, h.groups.View())
}

func (h *Handler) postJoinGroup(c *gin.Context) {
	groupID := c.Param("id")
	if err := h.groups.Join(c.Request.Context(), groupID); err != nil {
		c.JSON(feedErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": groupID})
}

// getMessages returns the active chat's messages. A chat query parameter
// selects (and binds) that chat first; without one the current selection is
// served as is.
func (h *Handler) getMessages(c *gin.Context) {
	if ref := c.Query("chat"); ref != "" && ref != h.messages.ActiveChat() {
		// The live subscription outlives the request.
		if err := h.messages.SetActiveChat(context.Background(), ref); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, h.messages.View())
}

// SendRequest is the POST /v1/messages payload.
type SendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) postMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.messages.Send(c.Request.Context(), req.Text)
	if err != nil {
		c.JSON(feedErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": res.ID, "queued": res.Queued})
}

func (h *Handler) getLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.leaderboard.View())
}

// getProgress returns the selected subject's progress. A subject query
// parameter selects (and binds) that subject first.
func (h *Handler) getProgress(c *gin.Context) {
	if subject := c.Query("subject"); subject != "" {
		// The live subscription outlives the request.
		if err := h.progress.SetSubject(context.Background(), subject); err != nil {
			c.JSON(feedErrorStatus(err), gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, h.progress.View())
}

// OutboxEntry is one pending write as reported by /v1/outbox.
type OutboxEntry struct {
	ClientID  string          `json:"clientId"`
	ScopeKey  string          `json:"scopeKey"`
	Status    string          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt int64           `json:"createdAt"`
	Payload   json.RawMessage `json:"payload"`
}

func (h *Handler) getOutbox(c *gin.Context) {
	all, err := h.store.AllPending()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	entries := make([]OutboxEntry, 0, len(all))
	for _, p := range all {
		entries = append(entries, OutboxEntry{
			ClientID:  p.ClientID,
			ScopeKey:  p.ScopeKey,
			Status:    p.Status,
			Attempts:  p.Attempts,
			LastError: p.LastError,
			CreatedAt: p.CreatedAt,
			Payload:   p.Payload,
		})
	}
	pending, failed, _ := h.store.PendingCounts()
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"pending": pending,
		"failed":  failed,
	})
}

func feedErrorStatus(err error) int {
	switch {
	case errors.Is(err, feed.ErrSignedOut):
		return http.StatusUnauthorized
	case errors.Is(err, feed.ErrNoActiveChat):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
