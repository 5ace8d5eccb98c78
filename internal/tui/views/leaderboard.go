package views

import (
	"fmt"

	"github.com/lfelipe/studyhall/internal/feed"
	"github.com/rivo/tview"
)

// LeaderboardView displays the global ranking.
type LeaderboardView struct {
	*tview.Table
}

// NewLeaderboardView creates the leaderboard table.
func NewLeaderboardView() *LeaderboardView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Leaderboard ")
	return &LeaderboardView{Table: table}
}

// Update refreshes the ranking with new data.
func (lv *LeaderboardView) Update(view *feed.LeaderboardView) {
	if view == nil {
		return
	}
	lv.Clear()
	lv.SetTitle(titleWithStatus(" Leaderboard ", view.Status))

	lv.SetCell(0, 0, tview.NewTableCell(" #").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	lv.SetCell(0, 1, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	lv.SetCell(0, 2, tview.NewTableCell(" Score").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, e := range view.Entries {
		row := i + 1
		lv.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf(" %d", i+1)).SetMaxWidth(5))
		lv.SetCell(row, 1, tview.NewTableCell(" "+sanitizeForTerminal(e.Name)).SetMaxWidth(30).SetExpansion(1))
		lv.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %d", e.TotalScore)).SetMaxWidth(10))
	}
}
