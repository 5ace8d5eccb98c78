package feed

import (
	"context"

	"github.com/lfelipe/studyhall/internal/binding"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/mirror"
	"github.com/lfelipe/studyhall/internal/remote"
	"github.com/lfelipe/studyhall/internal/scope"
	"go.uber.org/zap"
)

// LeaderboardView is the decoded global ranking.
type LeaderboardView struct {
	Entries []LeaderboardEntry `json:"entries"`
	Status
}

// Leaderboard is the global ranking feed. It needs no identity and binds once
// at start.
type Leaderboard struct {
	binding *binding.Binding
	logger  *zap.Logger
}

// NewLeaderboard creates the leaderboard feed.
func NewLeaderboard(source remote.Source, store *mirror.Store, b *bus.Bus, logger *zap.Logger) *Leaderboard {
	return &Leaderboard{
		binding: binding.New(source, store, b, logger),
		logger:  logger,
	}
}

// Start binds the global leaderboard.
func (l *Leaderboard) Start(ctx context.Context) {
	if err := l.binding.Bind(ctx, scope.Leaderboard()); err != nil {
		l.logger.Error("failed to bind leaderboard", zap.Error(err))
	}
}

// Stop unbinds the feed.
func (l *Leaderboard) Stop() {
	l.binding.Unbind()
}

// View returns the current ranking.
func (l *Leaderboard) View() LeaderboardView {
	st := l.binding.State()
	return LeaderboardView{Entries: decodeLeaderboard(st.Docs), Status: statusOf(st)}
}
