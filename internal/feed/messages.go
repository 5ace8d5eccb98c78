package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lfelipe/studyhall/internal/binding"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/identity"
	"github.com/lfelipe/studyhall/internal/mirror"
	"github.com/lfelipe/studyhall/internal/remote"
	"github.com/lfelipe/studyhall/internal/scope"
	"go.uber.org/zap"
)

// ErrNoActiveChat is returned by Send when no chat is selected.
var ErrNoActiveChat = errors.New("no active chat")

// MessagesView is the decoded message list of the active chat.
type MessagesView struct {
	ChatRef  string    `json:"chatRef,omitempty"`
	Messages []Message `json:"messages"`
	Status
}

// Messages is the active-chat message feed. Selecting a chat rebinds the
// single underlying subscription; there is never more than one live message
// query no matter how fast the user switches chats.
type Messages struct {
	binding *binding.Binding
	ident   *identity.Manager

	mu  sync.Mutex
	key scope.Key
}

// NewMessages creates the message feed with no active chat.
func NewMessages(source remote.Source, store *mirror.Store, ident *identity.Manager, b *bus.Bus, logger *zap.Logger) *Messages {
	return &Messages{
		binding: binding.New(source, store, b, logger),
		ident:   ident,
	}
}

// SetActiveChat selects a chat by UI reference ("group_<id>" or
// "channel_<id>") and binds its message list.
func (m *Messages) SetActiveChat(ctx context.Context, ref string) error {
	key, err := scope.ParseChatRef(ref)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.key = key
	m.mu.Unlock()
	return m.binding.Bind(ctx, key)
}

// ClearActiveChat deselects the chat and closes the subscription.
func (m *Messages) ClearActiveChat() {
	m.mu.Lock()
	m.key = scope.Key{}
	m.mu.Unlock()
	m.binding.Unbind()
}

// ActiveChat returns the selected chat ref, empty when none.
func (m *Messages) ActiveChat() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key.ChatRef()
}

// View returns the current message list.
func (m *Messages) View() MessagesView {
	st := m.binding.State()
	return MessagesView{
		ChatRef:  m.ActiveChat(),
		Messages: decodeMessages(st.Docs),
		Status:   statusOf(st),
	}
}

// Send writes a message to the active chat as the signed-in user. A remote
// failure queues the message for background retry and still reports success
// to the caller, with Queued set.
func (m *Messages) Send(ctx context.Context, text string) (binding.WriteResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return binding.WriteResult{}, errors.New("empty message")
	}
	ident, ok := m.ident.Current()
	if !ok {
		return binding.WriteResult{}, ErrSignedOut
	}
	m.mu.Lock()
	key := m.key
	m.mu.Unlock()
	if key.Zero() {
		return binding.WriteResult{}, ErrNoActiveChat
	}

	record := map[string]any{
		"sender":     ident.UserID,
		"senderName": ident.Name,
		"text":       text,
		"sentAt":     time.Now().UnixMilli(),
	}
	// Carry the scope's filter field (groupId or channelId) so the live
	// query matches the new message.
	for _, w := range key.Query().Where {
		if w.Op == remote.OpEqual {
			record[w.Field] = w.Value
		}
	}

	return m.binding.Write(ctx, key, record)
}
