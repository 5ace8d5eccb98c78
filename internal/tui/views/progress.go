package views

import (
	"fmt"

	"github.com/lfelipe/studyhall/internal/feed"
	"github.com/rivo/tview"
)

// ProgressView displays per-subject progress.
type ProgressView struct {
	*tview.TextView
}

// NewProgressView creates the progress view.
func NewProgressView() *ProgressView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Progress ")
	return &ProgressView{TextView: tv}
}

// Update refreshes the view with new data.
func (pv *ProgressView) Update(view *feed.ProgressView) {
	if view == nil {
		return
	}
	pv.Clear()
	pv.SetTitle(titleWithStatus(" Progress ", view.Status))

	if view.Subject == "" {
		_, _ = fmt.Fprint(pv, "\n  No subject selected. Use :progress <subject> to pick one.\n")
		return
	}
	if len(view.Entries) == 0 && !view.Loading {
		_, _ = fmt.Fprintf(pv, "\n  No progress recorded for %s yet.\n", view.Subject)
		return
	}
	for _, p := range view.Entries {
		accuracy := p.Accuracy
		if accuracy == 0 && p.QuestionsDone > 0 {
			accuracy = float64(p.CorrectAnswers) / float64(p.QuestionsDone)
		}
		_, _ = fmt.Fprintf(pv, "\n  [::b]%s[-:-:-]\n  Questions answered: %d\n  Correct: %d\n  Accuracy: %.0f%%\n",
			sanitizeForTerminal(p.Subject), p.QuestionsDone, p.CorrectAnswers, accuracy*100)
	}
}
