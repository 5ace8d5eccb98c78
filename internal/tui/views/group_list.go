package views

import (
	"fmt"
	"time"

	"github.com/lfelipe/studyhall/internal/feed"
	"github.com/lfelipe/studyhall/internal/scope"
	"github.com/rivo/tview"
)

// GroupList is the main group list view (K9s-inspired table).
type GroupList struct {
	*tview.Table
	groups     []feed.Group
	selectedFn func() (int, int)
}

// NewGroupList creates a new group list table.
func NewGroupList() *GroupList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Groups ")

	gl := &GroupList{Table: table}
	gl.selectedFn = table.GetSelection
	return gl
}

// Update refreshes the group list with new data.
func (gl *GroupList) Update(view *feed.GroupsView) {
	if view == nil {
		return
	}
	gl.groups = view.Groups
	gl.Clear()
	gl.SetTitle(titleWithStatus(" Groups ", view.Status))

	// Header row.
	gl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	gl.SetCell(0, 1, tview.NewTableCell(" Type").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	gl.SetCell(0, 2, tview.NewTableCell(" Members").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	gl.SetCell(0, 3, tview.NewTableCell(" Description").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, g := range view.Groups {
		row := i + 1
		kind := "group"
		if g.IsChannel {
			kind = "channel"
		}
		gl.SetCell(row, 0, tview.NewTableCell(" "+sanitizeForTerminal(g.Name)).SetMaxWidth(30).SetExpansion(1))
		gl.SetCell(row, 1, tview.NewTableCell(" "+kind).SetMaxWidth(9))
		gl.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf(" %d", len(g.Members))).SetMaxWidth(8))
		gl.SetCell(row, 3, tview.NewTableCell(" "+sanitizeForTerminal(g.Description)).SetMaxWidth(40).SetExpansion(2))
	}
}

// SelectedRef returns the chat ref of the currently selected group.
func (gl *GroupList) SelectedRef() string {
	row, _ := gl.selectedFn()
	idx := row - 1 // account for header
	if idx < 0 || idx >= len(gl.groups) {
		return ""
	}
	g := gl.groups[idx]
	if g.IsChannel {
		return scope.ChannelRefPrefix + g.ID
	}
	return scope.GroupRefPrefix + g.ID
}

func titleWithStatus(title string, st feed.Status) string {
	if st.Offline {
		stale := ""
		if !st.StaleSince.IsZero() {
			stale = " from " + st.StaleSince.Format("15:04")
		}
		return fmt.Sprintf("%s[red](offline%s)[-] ", title, stale)
	}
	if st.Loading {
		return title + "(loading) "
	}
	return title
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
