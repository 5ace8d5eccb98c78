// Package outbox replays pending offline writes against the remote store.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/mirror"
	"go.uber.org/zap"
)

// MaxAttempts is how many times a pending write is retried before it is
// parked as failed.
const MaxAttempts = 5

// Inserter is the slice of the remote source the retryer needs.
type Inserter interface {
	Insert(ctx context.Context, collection string, data any) (string, error)
}

// Retryer drains queued pending writes and replays them against the remote
// collections. Entries that keep failing back off per attempt and are parked
// as failed after MaxAttempts.
type Retryer struct {
	store  *mirror.Store
	source Inserter
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	interval time.Duration
	backoff  func(attempts int) time.Duration
}

// NewRetryer creates a retryer polling the pending-write table.
func NewRetryer(store *mirror.Store, source Inserter, b *bus.Bus, logger *zap.Logger) *Retryer {
	return &Retryer{
		store:    store,
		source:   source,
		bus:      b,
		logger:   logger,
		interval: 2 * time.Second,
		backoff:  defaultBackoff,
	}
}

func defaultBackoff(attempts int) time.Duration {
	d := time.Duration(1<<attempts) * time.Second
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}

// Start begins polling for due pending writes. Entries stranded in 'sending'
// by an earlier interrupted replay are re-queued first.
func (r *Retryer) Start(ctx context.Context) {
	if n, err := r.store.RequeueStuckSending(); err != nil {
		r.logger.Error("failed to requeue interrupted pending writes", zap.Error(err))
	} else if n > 0 {
		r.logger.Info("requeued interrupted pending writes", zap.Int64("count", n))
	}
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

// Stop stops the retry loop.
func (r *Retryer) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Retryer) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.ProcessDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessDue replays every queued write whose retry time has come.
func (r *Retryer) ProcessDue(ctx context.Context) {
	due, err := r.store.DuePending(time.Now(), 50)
	if err != nil {
		r.logger.Error("failed to read pending writes", zap.Error(err))
		return
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return
		}
		r.replay(ctx, entry)
	}
}

func (r *Retryer) replay(ctx context.Context, entry mirror.PendingWrite) {
	if err := r.store.MarkPendingSending(entry.ClientID); err != nil {
		r.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_id", entry.ClientID))
		return
	}

	record, err := stripOfflineMarker(entry.Payload)
	if err != nil {
		// A payload we cannot decode will never send; park it.
		r.logger.Error("unreadable pending payload", zap.Error(err), zap.String("client_id", entry.ClientID))
		_ = r.store.MarkPendingFailed(entry.ClientID, err.Error())
		r.publishFailed(entry)
		return
	}

	serverID, err := r.source.Insert(ctx, entry.Collection, record)
	if err != nil {
		attempts := entry.Attempts + 1
		if attempts >= MaxAttempts {
			r.logger.Warn("pending write exhausted retries",
				zap.String("client_id", entry.ClientID), zap.Int("attempts", attempts), zap.Error(err))
			_ = r.store.MarkPendingFailed(entry.ClientID, err.Error())
			r.publishFailed(entry)
			return
		}
		next := time.Now().Add(r.backoff(attempts))
		r.logger.Info("pending write retry scheduled",
			zap.String("client_id", entry.ClientID), zap.Int("attempts", attempts), zap.Time("next", next))
		_ = r.store.MarkPendingRetry(entry.ClientID, err.Error(), next)
		return
	}

	if err := r.store.DeletePending(entry.ClientID); err != nil {
		r.logger.Error("failed to delete sent pending write", zap.Error(err), zap.String("client_id", entry.ClientID))
	}
	r.logger.Info("pending write sent",
		zap.String("client_id", entry.ClientID), zap.String("server_id", serverID))
	r.bus.Publish(bus.NewEvent(bus.KindOutboxSent, map[string]string{
		"client_id": entry.ClientID,
		"server_id": serverID,
		"scope_key": entry.ScopeKey,
	}))
}

func (r *Retryer) publishFailed(entry mirror.PendingWrite) {
	r.bus.Publish(bus.NewEvent(bus.KindOutboxFailed, map[string]string{
		"client_id": entry.ClientID,
		"scope_key": entry.ScopeKey,
	}))
}

// stripOfflineMarker decodes a stored payload and removes the offline flag
// that tagged the record while it lived only in the local queue.
func stripOfflineMarker(payload json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	delete(fields, "offline")
	return fields, nil
}
