// Package api is the daemon's HTTP surface, served over the session's Unix
// domain socket. Clients (studyctl, studytui) talk JSON to it; /v1/watch
// streams bus events as server-sent events.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/feed"
	"github.com/lfelipe/studyhall/internal/identity"
	"github.com/lfelipe/studyhall/internal/mirror"
	"github.com/lfelipe/studyhall/internal/status"
	"go.uber.org/zap"
)

// Handler holds the daemon components the HTTP surface exposes.
type Handler struct {
	sessionName string
	startedAt   time.Time

	machine *status.Machine
	ident   *identity.Manager
	auth    identity.AuthClient
	store   *mirror.Store
	bus     *bus.Bus
	logger  *zap.Logger

	groups      *feed.Groups
	messages    *feed.Messages
	leaderboard *feed.Leaderboard
	progress    *feed.ProgressFeed
}

// NewHandler creates the HTTP handler.
func NewHandler(
	sessionName string,
	machine *status.Machine,
	ident *identity.Manager,
	auth identity.AuthClient,
	store *mirror.Store,
	b *bus.Bus,
	logger *zap.Logger,
	groups *feed.Groups,
	messages *feed.Messages,
	leaderboard *feed.Leaderboard,
	progress *feed.ProgressFeed,
) *Handler {
	return &Handler{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		ident:       ident,
		auth:        auth,
		store:       store,
		bus:         b,
		logger:      logger,
		groups:      groups,
		messages:    messages,
		leaderboard: leaderboard,
		progress:    progress,
	}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	v1.GET("/status", h.getStatus)
	v1.POST("/login", h.postLogin)
	v1.POST("/logout", h.postLogout)

	v1.GET("/groups", h.getGroups)
	v1.POST("/groups/:id/join", h.postJoinGroup)

	v1.GET("/messages", h.getMessages)
	v1.POST("/messages", h.postMessage)

	v1.GET("/leaderboard", h.getLeaderboard)
	v1.GET("/progress", h.getProgress)

	v1.GET("/outbox", h.getOutbox)
	v1.GET("/watch", h.watch)

	return r
}

// StatusResponse is the /v1/status payload.
type StatusResponse struct {
	Session       string `json:"session"`
	Status        string `json:"status"`
	UptimeMs      int64  `json:"uptimeMs"`
	SignedIn      bool   `json:"signedIn"`
	UserID        string `json:"userId,omitempty"`
	UserName      string `json:"userName,omitempty"`
	Premium       bool   `json:"premium,omitempty"`
	PendingWrites int64  `json:"pendingWrites"`
	FailedWrites  int64  `json:"failedWrites"`
	Snapshots     int64  `json:"snapshots"`
}

func (h *Handler) getStatus(c *gin.Context) {
	resp := StatusResponse{
		Session:  h.sessionName,
		Status:   string(h.machine.Current()),
		UptimeMs: time.Since(h.startedAt).Milliseconds(),
	}
	if ident, ok := h.ident.Current(); ok {
		resp.SignedIn = true
		resp.UserID = ident.UserID
		resp.UserName = ident.Name
		resp.Premium = ident.Premium
	}
	if pending, failed, err := h.store.PendingCounts(); err == nil {
		resp.PendingWrites = pending
		resp.FailedWrites = failed
	}
	if n, err := h.store.SnapshotCount(); err == nil {
		resp.Snapshots = n
	}
	c.JSON(http.StatusOK, resp)
}

// LoginResponse carries the device-code challenge for the client to display.
type LoginResponse struct {
	UserCode        string `json:"userCode"`
	VerificationURL string `json:"verificationUrl"`
	ExpiresInSec    int    `json:"expiresInSec"`
}

func (h *Handler) postLogin(c *gin.Context) {
	if _, ok := h.ident.Current(); ok {
		c.JSON(http.StatusConflict, gin.H{"error": "already signed in"})
		return
	}
	// Polling for approval outlives the request.
	da, err := h.ident.BeginDeviceLogin(context.Background(), h.auth)
	if err != nil {
		h.logger.Error("device login failed to start", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{
		UserCode:        da.UserCode,
		VerificationURL: da.VerificationURL,
		ExpiresInSec:    da.ExpiresInSec,
	})
}

func (h *Handler) postLogout(c *gin.Context) {
	if err := h.ident.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Identity-scoped subscriptions do not survive sign-out.
	h.progress.ClearSubject()
	h.messages.ClearActiveChat()
	c.JSON(http.StatusOK, gin.H{"signedIn": false})
}
