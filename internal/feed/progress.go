package feed

import (
	"context"
	"sync"

	"github.com/lfelipe/studyhall/internal/binding"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/identity"
	"github.com/lfelipe/studyhall/internal/mirror"
	"github.com/lfelipe/studyhall/internal/remote"
	"github.com/lfelipe/studyhall/internal/scope"
	"go.uber.org/zap"
)

// ProgressView is the decoded per-subject progress.
type ProgressView struct {
	Subject string     `json:"subject,omitempty"`
	Entries []Progress `json:"entries"`
	Status
}

// ProgressFeed follows the signed-in user's progress in one subject at a
// time. Selecting a subject rebinds the single underlying subscription.
type ProgressFeed struct {
	binding *binding.Binding
	ident   *identity.Manager

	mu      sync.Mutex
	subject string
}

// NewProgress creates the progress feed with no subject selected.
func NewProgress(source remote.Source, store *mirror.Store, ident *identity.Manager, b *bus.Bus, logger *zap.Logger) *ProgressFeed {
	return &ProgressFeed{
		binding: binding.New(source, store, b, logger),
		ident:   ident,
	}
}

// SetSubject selects a subject and binds the signed-in user's progress in it.
func (p *ProgressFeed) SetSubject(ctx context.Context, subject string) error {
	ident, ok := p.ident.Current()
	if !ok {
		return ErrSignedOut
	}
	key := scope.SubjectProgress(ident.UserID, subject)
	p.mu.Lock()
	p.subject = subject
	p.mu.Unlock()
	return p.binding.Bind(ctx, key)
}

// ClearSubject deselects the subject and closes the subscription.
func (p *ProgressFeed) ClearSubject() {
	p.mu.Lock()
	p.subject = ""
	p.mu.Unlock()
	p.binding.Unbind()
}

// View returns the current progress.
func (p *ProgressFeed) View() ProgressView {
	p.mu.Lock()
	subject := p.subject
	p.mu.Unlock()
	st := p.binding.State()
	return ProgressView{Subject: subject, Entries: decodeProgress(st.Docs), Status: statusOf(st)}
}
