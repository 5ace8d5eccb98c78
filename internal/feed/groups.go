package feed

import (
	"context"

	"github.com/lfelipe/studyhall/internal/binding"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/identity"
	"github.com/lfelipe/studyhall/internal/mirror"
	"github.com/lfelipe/studyhall/internal/remote"
	"github.com/lfelipe/studyhall/internal/scope"
	"go.uber.org/zap"
)

// GroupsView is the decoded group list.
type GroupsView struct {
	Groups []Group `json:"groups"`
	Status
}

// Groups is the membership-filtered group list feed. It follows identity
// transitions: signing in binds the list for the new user, signing out
// unbinds it.
type Groups struct {
	binding *binding.Binding
	source  remote.Source
	ident   *identity.Manager
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewGroups creates the group list feed.
func NewGroups(source remote.Source, store *mirror.Store, ident *identity.Manager, b *bus.Bus, logger *zap.Logger) *Groups {
	return &Groups{
		binding: binding.New(source, store, b, logger),
		source:  source,
		ident:   ident,
		bus:     b,
		logger:  logger,
	}
}

// Start binds the feed for the current identity, if any, and keeps it in step
// with sign-in and sign-out.
func (g *Groups) Start(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)
	g.rebind(ctx)

	sub := g.bus.Subscribe(bus.KindIdentityChanged, 16)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-sub.C():
				g.rebind(ctx)
			case <-ctx.Done():
				g.binding.Unbind()
				return
			}
		}
	}()
}

// Stop unbinds the feed and stops following identity changes.
func (g *Groups) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
}

func (g *Groups) rebind(ctx context.Context) {
	ident, ok := g.ident.Current()
	if !ok {
		g.binding.Unbind()
		return
	}
	if err := g.binding.Bind(ctx, scope.GroupList(ident.UserID)); err != nil {
		g.logger.Error("failed to bind group list", zap.Error(err))
	}
}

// View returns the current group list.
func (g *Groups) View() GroupsView {
	st := g.binding.State()
	return GroupsView{Groups: decodeGroups(st.Docs), Status: statusOf(st)}
}

// Join adds the signed-in user to a group's member set. The live membership
// query then starts matching the group, so it appears in the list without a
// separate refresh.
func (g *Groups) Join(ctx context.Context, groupID string) error {
	ident, ok := g.ident.Current()
	if !ok {
		return ErrSignedOut
	}
	return g.source.Update(ctx, scope.GroupList(ident.UserID).Collection(), groupID, remote.Patch{
		SetAdd: map[string]any{"members": ident.UserID},
	})
}
