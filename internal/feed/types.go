// Package feed exposes typed, always-available views over sync bindings: one
// feed per UI surface, each decoding the bound document set into its domain
// type and carrying the binding's liveness alongside.
package feed

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/lfelipe/studyhall/internal/binding"
	"github.com/lfelipe/studyhall/internal/remote"
)

// ErrSignedOut is returned by operations that need a signed-in user.
var ErrSignedOut = errors.New("not signed in")

// Group is a chat group or broadcast channel.
type Group struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members,omitempty"`
	CreatedBy   string   `json:"createdBy,omitempty"`
	IsChannel   bool     `json:"isChannel,omitempty"`
}

// Message is one chat message. GroupID and ChannelID are mutually exclusive;
// Offline marks a locally queued message not yet accepted by the server.
type Message struct {
	ID         string `json:"id,omitempty"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName,omitempty"`
	Text       string `json:"text"`
	SentAt     int64  `json:"sentAt"`
	GroupID    string `json:"groupId,omitempty"`
	ChannelID  string `json:"channelId,omitempty"`
	Offline    bool   `json:"offline,omitempty"`
}

// LeaderboardEntry is one row of the global ranking.
type LeaderboardEntry struct {
	ID         string `json:"id,omitempty"`
	UserID     string `json:"userId"`
	Name       string `json:"name"`
	TotalScore int    `json:"totalScore"`
}

// Progress is one user's standing in one subject.
type Progress struct {
	ID             string  `json:"id,omitempty"`
	UserID         string  `json:"userId"`
	Subject        string  `json:"subject"`
	QuestionsDone  int     `json:"questionsDone"`
	CorrectAnswers int     `json:"correctAnswers"`
	Accuracy       float64 `json:"accuracy"`
}

// StaleHorizon is how old a fallback snapshot may be before the view flags
// it as stale. Stale data is flagged, never expired.
var StaleHorizon = 24 * time.Hour

// Status is the liveness every view carries.
type Status struct {
	Loading    bool      `json:"loading"`
	Offline    bool      `json:"offline"`
	Notice     string    `json:"notice,omitempty"`
	StaleSince time.Time `json:"staleSince,omitempty"`
	Stale      bool      `json:"stale,omitempty"`
}

func statusOf(st binding.State) Status {
	return Status{
		Loading:    st.Loading,
		Offline:    st.Offline,
		Notice:     st.Notice,
		StaleSince: st.StaleSince,
		Stale:      !st.StaleSince.IsZero() && time.Since(st.StaleSince) > StaleHorizon,
	}
}

func decodeGroups(docs []remote.Document) []Group {
	out := make([]Group, 0, len(docs))
	for _, d := range docs {
		var g Group
		if err := json.Unmarshal(d.Data, &g); err != nil {
			continue
		}
		g.ID = d.ID
		out = append(out, g)
	}
	return out
}

func decodeMessages(docs []remote.Document) []Message {
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		var m Message
		if err := json.Unmarshal(d.Data, &m); err != nil {
			continue
		}
		m.ID = d.ID
		out = append(out, m)
	}
	return out
}

func decodeLeaderboard(docs []remote.Document) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(docs))
	for _, d := range docs {
		var e LeaderboardEntry
		if err := json.Unmarshal(d.Data, &e); err != nil {
			continue
		}
		e.ID = d.ID
		out = append(out, e)
	}
	return out
}

func decodeProgress(docs []remote.Document) []Progress {
	out := make([]Progress, 0, len(docs))
	for _, d := range docs {
		var p Progress
		if err := json.Unmarshal(d.Data, &p); err != nil {
			continue
		}
		p.ID = d.ID
		out = append(out, p)
	}
	return out
}
