package scope

import (
	"testing"

	"github.com/lfelipe/studyhall/internal/remote"
)

func TestStorageKeys(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{"group list", GroupList("u1"), "groups_u1"},
		{"group messages", GroupMessages("g1"), "messages_group_g1"},
		{"channel messages", ChannelMessages("c1"), "messages_channel_c1"},
		{"leaderboard", Leaderboard(), "leaderboard"},
		{"progress", SubjectProgress("u1", "biology"), "progress_u1_biology"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.StorageKey(); got != tt.want {
				t.Errorf("StorageKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// A group and a channel sharing an underlying id must never collide in the
// cache, even though both render into one display list.
func TestGroupChannelDisambiguation(t *testing.T) {
	g := GroupMessages("x1")
	c := ChannelMessages("x1")
	if g.StorageKey() == c.StorageKey() {
		t.Errorf("group and channel keys collide: %q", g.StorageKey())
	}
	if g.PendingKey() == c.PendingKey() {
		t.Errorf("group and channel pending keys collide: %q", g.PendingKey())
	}
}

// Subject casing varies across callers; all variants must hit one cache entry.
func TestProgressCaseFolding(t *testing.T) {
	a := SubjectProgress("u1", "Biology")
	b := SubjectProgress("u1", "biology")
	c := SubjectProgress("u1", "BIOLOGY")
	if a.StorageKey() != b.StorageKey() || b.StorageKey() != c.StorageKey() {
		t.Errorf("case variants diverge: %q %q %q", a.StorageKey(), b.StorageKey(), c.StorageKey())
	}
}

func TestPendingKey(t *testing.T) {
	k := GroupMessages("g1")
	if got := k.PendingKey(); got != "offline_messages_group_g1" {
		t.Errorf("PendingKey() = %q, want offline_messages_group_g1", got)
	}
}

func TestParseChatRef(t *testing.T) {
	k, err := ParseChatRef("group_g1")
	if err != nil {
		t.Fatal(err)
	}
	q := k.Query()
	if q.Collection != "messages" {
		t.Errorf("collection = %q, want messages", q.Collection)
	}
	// The prefix must be stripped before the remote filter sees the id.
	if len(q.Where) != 1 || q.Where[0].Field != "groupId" || q.Where[0].Value != "g1" {
		t.Errorf("where = %+v, want groupId == g1", q.Where)
	}

	k, err = ParseChatRef("channel_c9")
	if err != nil {
		t.Fatal(err)
	}
	q = k.Query()
	if len(q.Where) != 1 || q.Where[0].Field != "channelId" || q.Where[0].Value != "c9" {
		t.Errorf("where = %+v, want channelId == c9", q.Where)
	}

	for _, bad := range []string{"", "group_", "channel_", "dm_x", "g1"} {
		if _, err := ParseChatRef(bad); err == nil {
			t.Errorf("ParseChatRef(%q) expected error", bad)
		}
	}
}

func TestChatRefRoundTrip(t *testing.T) {
	for _, ref := range []string{"group_g1", "channel_c1"} {
		k, err := ParseChatRef(ref)
		if err != nil {
			t.Fatal(err)
		}
		if got := k.ChatRef(); got != ref {
			t.Errorf("ChatRef() = %q, want %q", got, ref)
		}
	}
}

func TestGroupListQuery(t *testing.T) {
	q := GroupList("u1").Query()
	if q.Collection != "groups" {
		t.Errorf("collection = %q, want groups", q.Collection)
	}
	if len(q.Where) != 1 || q.Where[0].Op != remote.OpArrayContains || q.Where[0].Field != "members" {
		t.Errorf("where = %+v, want members array-contains u1", q.Where)
	}
}

func TestMessagesQueryOrdering(t *testing.T) {
	q := GroupMessages("g1").Query()
	if q.OrderBy != "sentAt" || q.Descending {
		t.Errorf("order = %q desc=%v, want sentAt ascending", q.OrderBy, q.Descending)
	}
}

func TestZero(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want bool
	}{
		{"empty key", Key{}, true},
		{"group list without user", GroupList(""), true},
		{"group list with user", GroupList("u1"), false},
		{"progress without subject", SubjectProgress("u1", ""), true},
		{"leaderboard", Leaderboard(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Zero(); got != tt.want {
				t.Errorf("Zero() = %v, want %v", got, tt.want)
			}
		})
	}
}
