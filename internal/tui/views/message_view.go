package views

import (
	"fmt"

	"github.com/lfelipe/studyhall/internal/feed"
	"github.com/rivo/tview"
)

// MessageView displays messages for the active chat.
type MessageView struct {
	*tview.TextView
	userID string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetUserID marks which sender renders as "You".
func (mv *MessageView) SetUserID(id string) {
	mv.userID = id
}

// Update refreshes the message view from the active chat.
func (mv *MessageView) Update(view *feed.MessagesView) {
	if view == nil {
		return
	}
	mv.Clear()
	mv.SetTitle(titleWithStatus(" "+view.ChatRef+" ", view.Status))

	for _, m := range view.Messages {
		sender := m.SenderName
		if sender == "" {
			sender = m.Sender
		}
		if m.Sender == mv.userID && mv.userID != "" {
			sender = "You"
		}

		marker := ""
		if m.Offline {
			marker = " [yellow](queued)[-]"
		}
		ts := formatTimestamp(m.SentAt)
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			sanitizeForTerminal(sender), ts, marker, sanitizeForTerminal(m.Text))
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}
