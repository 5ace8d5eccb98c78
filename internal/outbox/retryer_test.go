package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lfelipe/studyhall/internal/bus"
	"github.com/lfelipe/studyhall/internal/mirror"
	"go.uber.org/zap"
)

type insertCall struct {
	Collection string
	Data       map[string]any
}

// mockInserter records calls and returns configurable results.
type mockInserter struct {
	calls []insertCall
	err   error
}

func (m *mockInserter) Insert(_ context.Context, collection string, data any) (string, error) {
	fields, _ := data.(map[string]any)
	m.calls = append(m.calls, insertCall{Collection: collection, Data: fields})
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("srv-%d", len(m.calls)), nil
}

func testStore(t *testing.T) *mirror.Store {
	t.Helper()
	store, err := mirror.Open(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func queue(t *testing.T, store *mirror.Store, clientID string, payload map[string]any) {
	t.Helper()
	if err := store.QueuePending(clientID, "offline_messages_group_g1", "messages", payload); err != nil {
		t.Fatal(err)
	}
}

func TestRetryerSendsQueuedWrite(t *testing.T) {
	store := testStore(t)
	b := bus.New()
	mock := &mockInserter{}
	r := NewRetryer(store, mock, b, zap.NewNop())

	sub := b.Subscribe(bus.KindOutboxSent, 4)
	defer sub.Close()

	queue(t, store, "c1", map[string]any{"text": "hello", "offline": true})

	r.ProcessDue(context.Background())

	if len(mock.calls) != 1 {
		t.Fatalf("got %d insert calls, want 1", len(mock.calls))
	}
	if mock.calls[0].Collection != "messages" {
		t.Errorf("collection = %q, want messages", mock.calls[0].Collection)
	}
	if mock.calls[0].Data["text"] != "hello" {
		t.Errorf("data = %v, want text=hello", mock.calls[0].Data)
	}
	if _, ok := mock.calls[0].Data["offline"]; ok {
		t.Error("offline marker not stripped before replay")
	}

	remaining, err := store.AllPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("got %d pending after send, want 0", len(remaining))
	}

	select {
	case evt := <-sub.C():
		payload, _ := evt.Payload.(map[string]string)
		if payload["client_id"] != "c1" || payload["server_id"] != "srv-1" {
			t.Errorf("event payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no outbox.sent event")
	}
}

func TestRetryerBacksOffOnFailure(t *testing.T) {
	store := testStore(t)
	b := bus.New()
	mock := &mockInserter{err: fmt.Errorf("network error")}
	r := NewRetryer(store, mock, b, zap.NewNop())
	r.backoff = func(int) time.Duration { return time.Hour }

	queue(t, store, "c1", map[string]any{"text": "hello"})

	r.ProcessDue(context.Background())

	if len(mock.calls) != 1 {
		t.Fatalf("got %d insert calls, want 1", len(mock.calls))
	}

	all, err := store.AllPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d pending, want 1", len(all))
	}
	if all[0].Status != mirror.PendingQueued {
		t.Errorf("status = %q, want queued for retry", all[0].Status)
	}
	if all[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", all[0].Attempts)
	}
	if all[0].LastError == "" {
		t.Error("last error not recorded")
	}

	// The entry backed off an hour; a second pass must not touch it.
	r.ProcessDue(context.Background())
	if len(mock.calls) != 1 {
		t.Errorf("got %d insert calls after backoff, want still 1", len(mock.calls))
	}
}

func TestRetryerParksAfterMaxAttempts(t *testing.T) {
	store := testStore(t)
	b := bus.New()
	mock := &mockInserter{err: fmt.Errorf("still down")}
	r := NewRetryer(store, mock, b, zap.NewNop())
	r.backoff = func(int) time.Duration { return 0 }

	sub := b.Subscribe(bus.KindOutboxFailed, 4)
	defer sub.Close()

	queue(t, store, "c1", map[string]any{"text": "doomed"})

	for i := 0; i < MaxAttempts; i++ {
		r.ProcessDue(context.Background())
	}

	if len(mock.calls) != MaxAttempts {
		t.Fatalf("got %d insert calls, want %d", len(mock.calls), MaxAttempts)
	}

	all, err := store.AllPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Status != mirror.PendingFailed {
		t.Fatalf("pending = %+v, want one failed entry", all)
	}

	select {
	case evt := <-sub.C():
		payload, _ := evt.Payload.(map[string]string)
		if payload["client_id"] != "c1" {
			t.Errorf("event payload = %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no outbox.failed event")
	}

	// Parked entries are never picked up again.
	r.ProcessDue(context.Background())
	if len(mock.calls) != MaxAttempts {
		t.Errorf("failed entry was retried after parking")
	}
}

func TestRetryerParksUnreadablePayload(t *testing.T) {
	store := testStore(t)
	b := bus.New()
	mock := &mockInserter{}
	r := NewRetryer(store, mock, b, zap.NewNop())

	// A scalar payload cannot decode into a field map.
	queue(t, store, "c1", nil)
	if _, err := store.Exec(
		`UPDATE pending_writes SET payload = ? WHERE client_id = ?`, `"not-an-object"`, "c1"); err != nil {
		t.Fatal(err)
	}

	r.ProcessDue(context.Background())

	if len(mock.calls) != 0 {
		t.Errorf("got %d insert calls, want 0", len(mock.calls))
	}
	all, err := store.AllPending()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Status != mirror.PendingFailed {
		t.Fatalf("pending = %+v, want one failed entry", all)
	}
}

func TestRetryerLoop(t *testing.T) {
	store := testStore(t)
	b := bus.New()
	mock := &mockInserter{}
	r := NewRetryer(store, mock, b, zap.NewNop())
	r.interval = 50 * time.Millisecond

	queue(t, store, "c1", map[string]any{"text": "hi"})

	r.Start(context.Background())
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		remaining, err := store.AllPending()
		if err != nil {
			t.Fatal(err)
		}
		if len(remaining) == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("pending write never drained by loop")
}

func TestRetryerRequeuesInterruptedSending(t *testing.T) {
	store := testStore(t)
	b := bus.New()
	mock := &mockInserter{}
	r := NewRetryer(store, mock, b, zap.NewNop())
	r.interval = 50 * time.Millisecond

	// An entry stranded mid-replay by a crash stays 'sending' on disk and
	// is invisible to the drain.
	queue(t, store, "c1", map[string]any{"text": "stranded", "offline": true})
	if err := store.MarkPendingSending("c1"); err != nil {
		t.Fatal(err)
	}
	r.ProcessDue(context.Background())
	if len(mock.calls) != 0 {
		t.Fatalf("got %d insert calls before requeue, want 0", len(mock.calls))
	}

	// Start re-queues it, and the loop drains it.
	r.Start(context.Background())
	defer r.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		remaining, err := store.AllPending()
		if err != nil {
			t.Fatal(err)
		}
		if len(remaining) == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("stranded entry never drained after requeue")
}

func TestStripOfflineMarker(t *testing.T) {
	out, err := stripOfflineMarker(json.RawMessage(`{"text":"x","offline":true}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := out["offline"]; ok {
		t.Error("offline marker survived")
	}
	if out["text"] != "x" {
		t.Errorf("out = %v", out)
	}
}
