package mirror

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lfelipe/studyhall/internal/remote"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mirror.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := testStore(t)

	docs := []remote.Document{
		{ID: "m1", Data: json.RawMessage(`{"text":"hi","sentAt":1000}`)},
		{ID: "m2", Data: json.RawMessage(`{"text":"there","sentAt":2000}`)},
	}
	if err := s.PutSnapshot("messages_group_g1", docs); err != nil {
		t.Fatal(err)
	}

	snap, err := s.GetSnapshot("messages_group_g1")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil {
		t.Fatal("snapshot not found")
	}
	if !reflect.DeepEqual(snap.Docs, docs) {
		t.Errorf("docs = %+v, want %+v", snap.Docs, docs)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestSnapshotOverwrite(t *testing.T) {
	s := testStore(t)

	old := []remote.Document{{ID: "m1", Data: json.RawMessage(`{"v":1}`)}}
	if err := s.PutSnapshot("leaderboard", old); err != nil {
		t.Fatal(err)
	}
	fresh := []remote.Document{{ID: "m2", Data: json.RawMessage(`{"v":2}`)}}
	if err := s.PutSnapshot("leaderboard", fresh); err != nil {
		t.Fatal(err)
	}

	snap, err := s.GetSnapshot("leaderboard")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Docs) != 1 || snap.Docs[0].ID != "m2" {
		t.Errorf("docs = %+v, want overwritten value m2", snap.Docs)
	}

	count, err := s.SnapshotCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("snapshot count = %d, want 1 (overwrite, not version)", count)
	}
}

func TestSnapshotAbsent(t *testing.T) {
	s := testStore(t)
	snap, err := s.GetSnapshot("messages_group_missing")
	if err != nil {
		t.Fatal(err)
	}
	if snap != nil {
		t.Errorf("snapshot = %+v, want nil for absent key", snap)
	}
}

func TestSnapshotEmptySet(t *testing.T) {
	s := testStore(t)
	if err := s.PutSnapshot("groups_u1", nil); err != nil {
		t.Fatal(err)
	}
	snap, err := s.GetSnapshot("groups_u1")
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || len(snap.Docs) != 0 {
		t.Errorf("snapshot = %+v, want present empty set", snap)
	}
}

func TestSnapshotCorruptPayload(t *testing.T) {
	s := testStore(t)
	if _, err := s.Exec(`INSERT INTO snapshots (scope_key, payload, updated_at) VALUES (?, ?, ?)`,
		"messages_group_bad", "{not json", time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}

	_, err := s.GetSnapshot("messages_group_bad")
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("error = %v, want ErrCorrupt", err)
	}

	// Other keys stay readable.
	if err := s.PutSnapshot("messages_group_ok", []remote.Document{{ID: "m1", Data: json.RawMessage(`{}`)}}); err != nil {
		t.Fatal(err)
	}
	snap, err := s.GetSnapshot("messages_group_ok")
	if err != nil || snap == nil {
		t.Errorf("healthy key unreadable: snap=%v err=%v", snap, err)
	}
}

func TestPendingLifecycle(t *testing.T) {
	s := testStore(t)

	payload := map[string]any{"text": "hello", "offline": true}
	if err := s.QueuePending("c1", "offline_messages_group_g1", "messages", payload); err != nil {
		t.Fatal(err)
	}

	due, err := s.DuePending(time.Now(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ClientID != "c1" || due[0].Status != PendingQueued {
		t.Fatalf("due = %+v, want one queued entry c1", due)
	}

	var stored map[string]any
	if err := json.Unmarshal(due[0].Payload, &stored); err != nil {
		t.Fatal(err)
	}
	if stored["offline"] != true {
		t.Errorf("payload = %v, want offline marker preserved", stored)
	}

	if err := s.MarkPendingSending("c1"); err != nil {
		t.Fatal(err)
	}
	due, _ = s.DuePending(time.Now(), 10)
	if len(due) != 0 {
		t.Errorf("sending entry still due: %+v", due)
	}

	if err := s.MarkPendingRetry("c1", "connection refused", time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	due, _ = s.DuePending(time.Now(), 10)
	if len(due) != 0 {
		t.Errorf("entry due before its retry time: %+v", due)
	}
	due, _ = s.DuePending(time.Now().Add(2*time.Minute), 10)
	if len(due) != 1 || due[0].Attempts != 1 || due[0].LastError != "connection refused" {
		t.Errorf("due = %+v, want retried entry with attempt count", due)
	}

	if err := s.DeletePending("c1"); err != nil {
		t.Fatal(err)
	}
	all, _ := s.AllPending()
	if len(all) != 0 {
		t.Errorf("entries remain after delete: %+v", all)
	}
}

func TestPendingByScope(t *testing.T) {
	s := testStore(t)

	_ = s.QueuePending("c1", "offline_messages_group_g1", "messages", map[string]any{"text": "a"})
	_ = s.QueuePending("c2", "offline_messages_group_g1", "messages", map[string]any{"text": "b"})
	_ = s.QueuePending("c3", "offline_messages_channel_c1", "messages", map[string]any{"text": "c"})

	entries, err := s.PendingByScope("offline_messages_group_g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestPendingCounts(t *testing.T) {
	s := testStore(t)

	_ = s.QueuePending("c1", "offline_messages_group_g1", "messages", map[string]any{"text": "a"})
	_ = s.QueuePending("c2", "offline_messages_group_g1", "messages", map[string]any{"text": "b"})
	if err := s.MarkPendingFailed("c2", "rejected"); err != nil {
		t.Fatal(err)
	}

	pending, failed, err := s.PendingCounts()
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 || failed != 1 {
		t.Errorf("counts = %d pending, %d failed; want 1, 1", pending, failed)
	}
}
