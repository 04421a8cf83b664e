package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
	"github.com/triplinked/chatsync/internal/store"
	"github.com/triplinked/chatsync/internal/tui/ui"
)

// MessageView displays the messages of a single conversation, bucketed by
// calendar day.
type MessageView struct {
	*tview.TextView
	theme    *ui.Theme
	convName string
	revoked  bool
}

// NewMessageView creates a new message view.
func NewMessageView(theme *ui.Theme) *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTitleColor(theme.TitleColor)

	return &MessageView{TextView: tv, theme: theme}
}

// Name implements Component.
func (mv *MessageView) Name() string { return "Messages" }

// Init implements Component.
func (mv *MessageView) Init() {}

// Start implements Component.
func (mv *MessageView) Start() {}

// Stop implements Component.
func (mv *MessageView) Stop() {}

// Hints implements Component.
func (mv *MessageView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "r", Description: "Roster"},
		{Key: ":", Description: "Command"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetConvName updates the title with the conversation name.
func (mv *MessageView) SetConvName(name string) {
	mv.convName = name
	mv.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// SetRevoked switches the view into the terminal removed-from-group state.
// Update keeps rendering history; only the banner and title change.
func (mv *MessageView) SetRevoked(revoked bool) {
	mv.revoked = revoked
	if revoked {
		mv.SetTitle(fmt.Sprintf(" %s [red](access denied)[-] ", tview.Escape(sanitizeForTerminal(mv.convName))))
	}
}

// Update re-renders the message history grouped into day buckets.
func (mv *MessageView) Update(msgs []store.Message, selfID string, now time.Time) {
	mv.Clear()

	for day, bucket := range store.GroupByDay(msgs, now) {
		_, _ = fmt.Fprintf(mv, "[fuchsia::b]── %s ──[-:-:-]\n", day)
		for _, m := range bucket {
			mv.writeMessage(m, selfID)
		}
		_, _ = fmt.Fprint(mv, "\n")
	}

	if mv.revoked {
		_, _ = fmt.Fprint(mv, "[red::b]── Access Denied ──[-:-:-]\n")
		_, _ = fmt.Fprint(mv, "You are no longer a participant in this group chat.\n")
	}

	mv.ScrollToEnd()
}

func (mv *MessageView) writeMessage(m store.Message, selfID string) {
	sender := m.SenderID
	if sender == selfID {
		sender = "You"
	}

	ts := time.UnixMilli(m.SentAt).Format("15:04")
	suffix := ""
	if m.Pending {
		suffix = " [::d](sending...)[-:-:-]"
	}
	_, _ = fmt.Fprintf(mv, "[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n",
		tview.Escape(sanitizeForTerminal(sender)), ts, suffix,
		tview.Escape(sanitizeForTerminal(m.Content)))
}
