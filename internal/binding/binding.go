// Package binding implements the sync binding: one live remote subscription
// per UI scope, mirrored into the local store on every successful emission,
// degrading to the last mirrored snapshot when the remote is unavailable.
package binding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/mirror"
	"github.com/lfelipe/studyhall/internal/remote"
	"github.com/lfelipe/studyhall/internal/scope"
	"go.uber.org/zap"
)

// OfflineNotice is the human-readable note attached to the state while the
// binding serves mirrored data.
const OfflineNotice = "failed to load live data, showing offline copy"

// State is the observable value of a binding.
type State struct {
	Docs       []remote.Document
	Loading    bool
	Offline    bool
	Notice     string
	StaleSince time.Time // mirror timestamp of the served snapshot, zero when live
}

// WriteResult reports the outcome of a Write.
type WriteResult struct {
	ID     string // server id, or the local client id when queued
	Queued bool   // true when the write was queued for background retry
}

// Binding maintains a best-effort-live value for one UI slot. Bind with a new
// key tears the previous subscription down first; there is never a window
// with two live subscriptions for the same slot.
type Binding struct {
	source remote.Source
	store  *mirror.Store
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.Mutex
	gen   uint64
	sub   remote.Subscription
	key   scope.Key
	bound bool
	state State
}

// New creates an unbound binding.
func New(source remote.Source, store *mirror.Store, b *bus.Bus, logger *zap.Logger) *Binding {
	return &Binding{
		source: source,
		store:  store,
		bus:    b,
		logger: logger,
	}
}

// Bind opens a live subscription for the scope key, closing any previous one
// first. It returns immediately with the state marked loading; the first
// emission arrives asynchronously. Binding a zero key is a caller bug.
func (b *Binding) Bind(ctx context.Context, key scope.Key) error {
	if key.Zero() {
		return errors.New("bind: zero scope key")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Close old before opening new; bump the generation so a late emission
	// from the old subscription is discarded even if it races the close.
	if b.sub != nil {
		b.sub.Close()
		b.sub = nil
	}
	b.gen++
	gen := b.gen
	b.key = key
	b.bound = true
	b.state = State{Loading: true}

	sub, err := b.source.Subscribe(ctx, key.Query(),
		func(docs []remote.Document) { b.handleUpdate(gen, docs) },
		func(err error) { b.handleError(gen, err) },
	)
	if err != nil {
		b.bound = false
		return fmt.Errorf("subscribe %s: %w", key, err)
	}
	b.sub = sub
	return nil
}

// Unbind closes the live subscription. No further state updates occur after
// it returns. Safe to call repeatedly or on a never-bound binding.
func (b *Binding) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.bound = false
	if b.sub != nil {
		b.sub.Close()
		b.sub = nil
	}
}

// Bound returns the current scope key and whether the binding is live.
func (b *Binding) Bound() (scope.Key, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.key, b.bound
}

// State returns a copy of the current observable state.
func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state
	st.Docs = append([]remote.Document(nil), b.state.Docs...)
	return st
}

func (b *Binding) handleUpdate(gen uint64, docs []remote.Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}

	b.state = State{Docs: docs}
	key := b.key.StorageKey()

	if err := b.store.PutSnapshot(key, docs); err != nil {
		b.logger.Error("failed to mirror snapshot", zap.String("scope", key), zap.Error(err))
	}

	b.bus.Publish(bus.NewEvent(bus.KindFeedUpdated, bus.FeedUpdate{
		ScopeKey: key,
		Count:    len(docs),
	}))
}

func (b *Binding) handleError(gen uint64, cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}

	key := b.key.StorageKey()
	b.logger.Warn("subscription failed, falling back to mirror",
		zap.String("scope", key), zap.Error(cause))

	st := State{
		Docs:    b.state.Docs,
		Offline: true,
		Notice:  OfflineNotice,
	}

	snap, err := b.store.GetSnapshot(key)
	switch {
	case errors.Is(err, mirror.ErrCorrupt):
		// Degrade to "no cached value"; never let one bad key block the app.
		b.logger.Warn("discarding corrupt snapshot", zap.String("scope", key), zap.Error(err))
	case err != nil:
		b.logger.Error("failed to read mirror", zap.String("scope", key), zap.Error(err))
	case snap != nil:
		st.Docs = snap.Docs
		st.StaleSince = snap.UpdatedAt
	}
	b.state = st

	b.bus.Publish(bus.NewEvent(bus.KindFeedOffline, bus.FeedUpdate{
		ScopeKey: key,
		Count:    len(st.Docs),
		Offline:  true,
	}))
}

// Write attempts a one-shot create against the remote collection for the
// given scope. On failure the record is queued, marked offline, under the
// scope's pending key for background retry; the caller sees a queued result,
// not an error. The live subscription picks up successful writes by itself.
func (b *Binding) Write(ctx context.Context, key scope.Key, record any) (WriteResult, error) {
	if key.Zero() {
		return WriteResult{}, errors.New("write: zero scope key")
	}

	id, err := b.source.Insert(ctx, key.Collection(), record)
	if err == nil {
		return WriteResult{ID: id}, nil
	}
	b.logger.Warn("remote write failed, queueing offline",
		zap.String("scope", key.StorageKey()), zap.Error(err))

	marked, mErr := markOffline(record)
	if mErr != nil {
		return WriteResult{}, fmt.Errorf("encode record: %w", mErr)
	}
	clientID := uuid.New().String()
	if qErr := b.store.QueuePending(clientID, key.PendingKey(), key.Collection(), marked); qErr != nil {
		return WriteResult{}, fmt.Errorf("queue pending write: %w", qErr)
	}

	b.bus.Publish(bus.NewEvent(bus.KindOutboxQueued, bus.FeedUpdate{
		ScopeKey: key.PendingKey(),
		Count:    1,
		Offline:  true,
	}))
	return WriteResult{ID: clientID, Queued: true}, nil
}

// markOffline re-encodes a record as a field map with an offline marker, the
// form pending writes are stored and later replayed in.
func markOffline(record any) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["offline"] = true
	return fields, nil
}
