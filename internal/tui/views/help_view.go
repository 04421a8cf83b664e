package views

import (
	"fmt"

	"github.com/rivo/tview"
	"github.com/triplinked/chatsync/internal/tui/ui"
)

// HelpView shows keybindings and commands.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates the help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true).SetTitle(" Help ")
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Esc", Description: "Back"}}
}

func (hv *HelpView) render() {
	sections := []struct {
		title string
		rows  [][2]string
	}{
		{"Conversations", [][2]string{
			{"Enter", "Open selected conversation"},
			{"1-9", "Open Nth conversation"},
			{"/", "Filter list"},
			{"m", "Mute/unmute selected group"},
		}},
		{"Conversation", [][2]string{
			{"i", "Focus composer"},
			{"r", "Show group members"},
			{"Esc", "Back to list"},
		}},
		{"Members (owner)", [][2]string{
			{"a", "Add a trip participant"},
			{"d", "Remove selected member"},
		}},
		{"Commands (:)", [][2]string{
			{"mute / unmute", "Toggle group notifications"},
			{"leave", "Leave the current group"},
			{"roster", "Show group members"},
			{"add <user>", "Add a member (owner only)"},
			{"remove <user>", "Remove a member (owner only)"},
			{"quit", "Exit"},
		}},
	}

	for _, s := range sections {
		_, _ = fmt.Fprintf(hv, "[::b]%s[-:-:-]\n", s.title)
		for _, r := range s.rows {
			_, _ = fmt.Fprintf(hv, "  [dodgerblue::b]%-14s[-:-:-] %s\n", r[0], r[1])
		}
		_, _ = fmt.Fprint(hv, "\n")
	}
}
