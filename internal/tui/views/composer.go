package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/triplinked/chatsync/internal/tui/ui"
)

// Composer is the text input for sending messages. It refuses input while a
// send is outstanding or the conversation is no longer writable.
type Composer struct {
	*tview.InputField
	onSend   func(text string)
	disabled bool
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || c.onSend == nil || c.disabled {
			return
		}
		text := c.GetText()
		if text != "" {
			c.onSend(text)
			c.SetText("")
		}
	})

	return c
}

// SetOnSend sets the callback when a message is submitted.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// Disable blocks submission and shows why in the label.
func (c *Composer) Disable(reason string) {
	c.disabled = true
	c.SetLabel(" [" + reason + "] ")
}

// Enable restores normal input.
func (c *Composer) Enable() {
	c.disabled = false
	c.SetLabel(" > ")
}

// Disabled reports whether the composer is refusing input.
func (c *Composer) Disabled() bool { return c.disabled }

// Restore puts text back into the field, typically after a failed send.
func (c *Composer) Restore(text string) {
	c.SetText(text)
}
