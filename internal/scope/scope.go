// Package scope maps UI-level identity (user id, selected chat, subject) to
// the keys and queries a sync binding needs: a storage key for the local
// mirror and a filter for the remote live query. Keys are deterministic and
// prefix-disjoint per kind, so a group and a channel with the same underlying
// id never collide in the cache.
package scope

import (
	"fmt"
	"strings"

	"github.com/lfelipe/studyhall/internal/remote"
)

type kind int

const (
	kindZero kind = iota
	kindGroupList
	kindGroupMessages
	kindChannelMessages
	kindLeaderboard
	kindSubjectProgress
)

// Chat ref prefixes used by the UI to address one display list backed by two
// logical collections.
const (
	GroupRefPrefix   = "group_"
	ChannelRefPrefix = "channel_"
)

// Key identifies one subscription/cache target.
type Key struct {
	kind    kind
	userID  string
	chatID  string
	subject string
}

// GroupList scopes the list of chat groups the user is a member of.
func GroupList(userID string) Key {
	return Key{kind: kindGroupList, userID: userID}
}

// GroupMessages scopes the message list of one chat group.
func GroupMessages(groupID string) Key {
	return Key{kind: kindGroupMessages, chatID: groupID}
}

// ChannelMessages scopes the message list of one broadcast channel.
func ChannelMessages(channelID string) Key {
	return Key{kind: kindChannelMessages, chatID: channelID}
}

// Leaderboard scopes the global leaderboard.
func Leaderboard() Key {
	return Key{kind: kindLeaderboard}
}

// SubjectProgress scopes one user's progress in one subject. The subject is
// case-folded so callers passing different casings hit the same cache entry.
func SubjectProgress(userID, subject string) Key {
	return Key{kind: kindSubjectProgress, userID: userID, subject: strings.ToLower(subject)}
}

// ParseChatRef resolves a UI-level chat reference ("group_<id>" or
// "channel_<id>") into a messages scope key.
func ParseChatRef(ref string) (Key, error) {
	if id, ok := strings.CutPrefix(ref, GroupRefPrefix); ok && id != "" {
		return GroupMessages(id), nil
	}
	if id, ok := strings.CutPrefix(ref, ChannelRefPrefix); ok && id != "" {
		return ChannelMessages(id), nil
	}
	return Key{}, fmt.Errorf("invalid chat ref %q: want group_<id> or channel_<id>", ref)
}

// Zero reports whether the key is unset (e.g. derived before the user id was
// available). A zero key must never be bound.
func (k Key) Zero() bool {
	switch k.kind {
	case kindZero:
		return true
	case kindGroupList:
		return k.userID == ""
	case kindGroupMessages, kindChannelMessages:
		return k.chatID == ""
	case kindSubjectProgress:
		return k.userID == "" || k.subject == ""
	}
	return false
}

// StorageKey renders the local mirror key for this scope.
func (k Key) StorageKey() string {
	switch k.kind {
	case kindGroupList:
		return "groups_" + k.userID
	case kindGroupMessages:
		return "messages_group_" + k.chatID
	case kindChannelMessages:
		return "messages_channel_" + k.chatID
	case kindLeaderboard:
		return "leaderboard"
	case kindSubjectProgress:
		return "progress_" + k.userID + "_" + k.subject
	}
	return ""
}

// PendingKey renders the mirror key for this scope's pending offline writes.
func (k Key) PendingKey() string {
	return "offline_" + k.StorageKey()
}

// ChatRef renders the UI-level reference for messages scopes, empty otherwise.
func (k Key) ChatRef() string {
	switch k.kind {
	case kindGroupMessages:
		return GroupRefPrefix + k.chatID
	case kindChannelMessages:
		return ChannelRefPrefix + k.chatID
	}
	return ""
}

// Query builds the remote live query for this scope. The chat ref prefix is
// stripped here: the remote filter sees the bare id on the foreign-key field.
func (k Key) Query() remote.Query {
	switch k.kind {
	case kindGroupList:
		return remote.Query{
			Collection: "groups",
			Where:      []remote.Where{{Field: "members", Op: remote.OpArrayContains, Value: k.userID}},
		}
	case kindGroupMessages:
		return remote.Query{
			Collection: "messages",
			Where:      []remote.Where{{Field: "groupId", Op: remote.OpEqual, Value: k.chatID}},
			OrderBy:    "sentAt",
		}
	case kindChannelMessages:
		return remote.Query{
			Collection: "messages",
			Where:      []remote.Where{{Field: "channelId", Op: remote.OpEqual, Value: k.chatID}},
			OrderBy:    "sentAt",
		}
	case kindLeaderboard:
		return remote.Query{
			Collection: "leaderboard",
			OrderBy:    "totalScore",
			Descending: true,
		}
	case kindSubjectProgress:
		return remote.Query{
			Collection: "progress",
			Where: []remote.Where{
				{Field: "userId", Op: remote.OpEqual, Value: k.userID},
				{Field: "subject", Op: remote.OpEqual, Value: k.subject},
			},
		}
	}
	return remote.Query{}
}

// Collection returns the remote collection written to for this scope.
func (k Key) Collection() string {
	return k.Query().Collection
}

func (k Key) String() string {
	return k.StorageKey()
}
