package model

import (
	"context"
	"sync"
	"time"

	"github.com/lfelipe/studyhall/internal/api"
	"github.com/lfelipe/studyhall/internal/feed"
	"github.com/lfelipe/studyhall/internal/tui/client"
)

// ViewModel caches daemon state for the TUI and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client        *client.Client
	Status        *api.StatusResponse
	Groups        *feed.GroupsView
	Messages      *feed.MessagesView
	Leaderboard   *feed.LeaderboardView
	Progress      *feed.ProgressView
	ActiveChatRef string
	Flash         Flash

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{
		client:    c,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches current session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Status = st
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadGroups fetches the group list.
func (vm *ViewModel) LoadGroups(ctx context.Context) error {
	view, err := vm.client.Groups(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Groups = view
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// OpenChat selects a chat on the daemon and loads its messages.
func (vm *ViewModel) OpenChat(ctx context.Context, chatRef string) error {
	view, err := vm.client.Messages(ctx, chatRef)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.ActiveChatRef = chatRef
	vm.Messages = view
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// ReloadMessages refetches the active chat without reselecting it.
func (vm *ViewModel) ReloadMessages(ctx context.Context) error {
	vm.mu.RLock()
	active := vm.ActiveChatRef
	vm.mu.RUnlock()
	if active == "" {
		return nil
	}
	view, err := vm.client.Messages(ctx, "")
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Messages = view
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Send writes a message to the active chat.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	res, err := vm.client.Send(ctx, text)
	if err != nil {
		return err
	}
	if res.Queued {
		vm.Flash.Set("Offline: message queued for delivery", 5*time.Second)
	} else {
		vm.Flash.Set("Message sent", 3*time.Second)
	}
	vm.signalRefresh()
	return nil
}

// JoinGroup joins a group by id.
func (vm *ViewModel) JoinGroup(ctx context.Context, groupID string) error {
	if err := vm.client.JoinGroup(ctx, groupID); err != nil {
		return err
	}
	vm.Flash.Set("Joined "+groupID, 3*time.Second)
	return vm.LoadGroups(ctx)
}

// LoadLeaderboard fetches the global ranking.
func (vm *ViewModel) LoadLeaderboard(ctx context.Context) error {
	view, err := vm.client.Leaderboard(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Leaderboard = view
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadProgress fetches progress, selecting the subject when non-empty.
func (vm *ViewModel) LoadProgress(ctx context.Context, subject string) error {
	view, err := vm.client.Progress(ctx, subject)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Progress = view
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// Login starts the device-code sign-in flow.
func (vm *ViewModel) Login(ctx context.Context) (*api.LoginResponse, error) {
	return vm.client.Login(ctx)
}

// Logout signs the session out.
func (vm *ViewModel) Logout(ctx context.Context) error {
	if err := vm.client.Logout(ctx); err != nil {
		return err
	}
	vm.Flash.Set("Signed out", 3*time.Second)
	return vm.LoadStatus(ctx)
}

// GetStatus returns a snapshot of session status.
func (vm *ViewModel) GetStatus() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status
}

// GetGroups returns a snapshot of the group list view.
func (vm *ViewModel) GetGroups() *feed.GroupsView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Groups
}

// GetMessages returns a snapshot of the active chat view.
func (vm *ViewModel) GetMessages() *feed.MessagesView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetLeaderboard returns a snapshot of the ranking view.
func (vm *ViewModel) GetLeaderboard() *feed.LeaderboardView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Leaderboard
}

// GetProgress returns a snapshot of the progress view.
func (vm *ViewModel) GetProgress() *feed.ProgressView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Progress
}
