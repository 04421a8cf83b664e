package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/triplinked/chatsync/internal/roster"
	"github.com/triplinked/chatsync/internal/tui/ui"
)

// RosterView lists the members of a group chat. The title notes when the
// listing is inferred from trip participants rather than confirmed by the
// chat-participants endpoint.
type RosterView struct {
	*tview.Table
	theme  *ui.Theme
	data   *roster.Roster
	owner  bool
	group  string
	selfID string
}

// NewRosterView creates a new roster table.
func NewRosterView(theme *ui.Theme) *RosterView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Members ")
	table.SetTitleColor(theme.TitleColor)

	return &RosterView{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (rv *RosterView) Name() string { return "Members" }

// Init implements Component.
func (rv *RosterView) Init() {}

// Start implements Component.
func (rv *RosterView) Start() {}

// Stop implements Component.
func (rv *RosterView) Stop() {}

// Hints implements Component.
func (rv *RosterView) Hints() []ui.MenuHint {
	hints := []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
	if rv.owner {
		hints = append([]ui.MenuHint{
			{Key: "a", Description: "Add member"},
			{Key: "d", Description: "Remove member"},
		}, hints...)
	}
	return hints
}

// SetContext records the group being shown and whether the local user owns it.
func (rv *RosterView) SetContext(groupName, selfID string, owner bool) {
	rv.group = groupName
	rv.selfID = selfID
	rv.owner = owner
}

// Update refreshes the member table.
func (rv *RosterView) Update(r *roster.Roster) {
	rv.data = r
	rv.render()
}

func (rv *RosterView) render() {
	rv.Clear()

	headers := []string{" USER", " STATUS"}
	for col, h := range headers {
		cell := tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(rv.theme.TableHeaderFg).
			SetBackgroundColor(rv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1)
		rv.SetCell(0, col, cell)
	}

	if rv.data == nil {
		rv.SetTitle(fmt.Sprintf(" %s members ", rv.group))
		return
	}

	row := 1
	for _, m := range rv.data.Members {
		name := m.UserID
		if m.UserID == rv.selfID {
			name += " (you)"
		}

		status := "in chat"
		statusColor := rv.theme.FgColor
		if !m.InChat {
			status = "in trip, removed from chat"
			statusColor = rv.theme.FlashWarnColor
		}

		rv.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(rv.theme.FgColor))
		rv.SetCell(row, 1, tview.NewTableCell(" "+status).SetExpansion(1).SetTextColor(statusColor))
		row++
	}

	title := fmt.Sprintf(" %s members (%d) ", rv.group, len(rv.data.Members))
	if rv.data.Origin == roster.Inferred {
		title = fmt.Sprintf(" %s members (%d, inferred from trip) ", rv.group, len(rv.data.Members))
	}
	rv.SetTitle(title)
}

// SelectedUser returns the user id of the selected member.
func (rv *RosterView) SelectedUser() string {
	if rv.data == nil {
		return ""
	}
	row, _ := rv.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(rv.data.Members) {
		return ""
	}
	return rv.data.Members[idx].UserID
}
