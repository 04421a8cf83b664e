package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/triplinked/chatsync/internal/tui/keys"
	"github.com/triplinked/chatsync/internal/tui/model"
	"github.com/triplinked/chatsync/internal/tui/ui"
	"github.com/triplinked/chatsync/internal/tui/views"
	"go.uber.org/zap"
)

const (
	pageConversations = "conversations"
	pageConversation  = "conversation"
	pageMembers       = "members"
	pageHelp          = "help"
)

// App is the TUI shell: a k9s-style layout of header, crumbs, page stack and
// prompt, driven by the view model's refresh signal.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	logo     *ui.Logo
	info     *ui.SessionInfo
	flashBar *ui.FlashBar
	prompt   *ui.Prompt
	registry *keys.Registry

	vm      *model.ViewModel
	session string
	logger  *zap.Logger

	convList *views.ConversationList
	msgView  *views.MessageView
	composer *views.Composer
	rosterV  *views.RosterView
	helpV    *views.HelpView

	components map[string]ui.Component

	layout      *tview.Flex
	promptShown bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application around a view model.
func NewApp(vm *model.ViewModel, sessionName string, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		crumbs:   ui.NewCrumbs(theme),
		menu:     ui.NewMenu(theme),
		logo:     ui.NewLogo(theme),
		info:     ui.NewSessionInfo(theme),
		flashBar: ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		registry: keys.NewRegistry(),
		vm:       vm,
		session:  sessionName,
		logger:   logger,
		convList: views.NewConversationList(theme),
		msgView:  views.NewMessageView(theme),
		composer: views.NewComposer(theme),
		rosterV:  views.NewRosterView(theme),
		helpV:    views.NewHelpView(theme),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.components = map[string]ui.Component{
		pageConversations: a.convList,
		pageConversation:  a.msgView,
		pageMembers:       a.rosterV,
		pageHelp:          a.helpV,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "Quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "Help", Visible: true,
		Handler: func() { a.pages.Push(pageHelp) },
	})

	a.registry.AddView(pageConversations, "open", &keys.Action{
		Key:     tcell.KeyEnter,
		Handler: func() { a.openConversation(a.convList.SelectedKey()) },
	})
	a.registry.AddView(pageConversations, "mute", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Handler: func() { a.toggleMute(a.convList.SelectedKey()) },
	})

	a.registry.AddView(pageConversation, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Handler: func() { a.app.SetFocus(a.composer.InputField) },
	})
	a.registry.AddView(pageConversation, "roster", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Handler: func() { a.openRoster() },
	})
	a.registry.AddView(pageConversation, "mute", &keys.Action{
		Rune: 'm', Key: tcell.KeyRune,
		Handler: func() { a.toggleMuteActive() },
	})

	a.registry.AddView(pageMembers, "add", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddView(pageMembers, "remove", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Handler: func() { a.removeSelectedMember() },
	})
}

func (a *App) setupCallbacks() {
	a.pages.SetOnChange(func(stack []string) {
		names := make([]string, 0, len(stack))
		for _, page := range stack {
			if c, ok := a.components[page]; ok {
				names = append(names, c.Name())
			}
		}
		a.crumbs.Update(names)
		if top, ok := a.components[a.pages.Current()]; ok {
			a.menu.Update(top.Hints())
		}
	})

	a.convList.SetSelectedFunc(func(row, col int) {
		a.openConversation(a.convList.SelectedKey())
	})

	a.composer.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.Send(a.ctx, text); err != nil {
				a.vm.Flash.Err(err)
				a.app.QueueUpdateDraw(func() {
					// Validation errors never reach the store; give the
					// text back directly.
					a.composer.Restore(text)
					a.render()
				})
				return
			}
			a.app.QueueUpdateDraw(a.render)
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.convList.SetFilter(text)
		case ui.PromptCommand:
			a.executeCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(func() {
		a.hidePrompt()
		a.convList.ClearFilter()
	})
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(a.logo, 16, 0, false).
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 2, false)

	convFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, true).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage(pageConversations, a.convList, true, false)
	a.pages.AddPage(pageConversation, convFlex, true, false)
	a.pages.AddPage(pageMembers, a.rosterV, true, false)
	a.pages.AddPage(pageHelp, a.helpV, true, false)
	a.pages.Reset(pageConversations)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 5, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.layout, true)
	a.app.SetInputCapture(a.handleKey)
	a.app.SetFocus(a.convList)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	current := a.pages.Current()

	if event.Key() == tcell.KeyEscape {
		if a.promptShown {
			return event // prompt's done func hides it
		}
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			a.focusCurrent()
			return nil
		}
		a.popPage()
		return nil
	}

	// Let text input widgets handle all other keys normally.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return event
	}

	if event.Key() == tcell.KeyRune {
		switch {
		case event.Rune() == ':':
			a.showPrompt(ui.PromptCommand)
			return nil
		case event.Rune() == '/' && current == pageConversations:
			a.showPrompt(ui.PromptFilter)
			return nil
		case current == pageConversations && event.Rune() >= '1' && event.Rune() <= '9':
			a.openConversation(a.convList.KeyByIndex(int(event.Rune() - '0')))
			return nil
		}
	}

	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageConversation:
		a.app.SetFocus(a.msgView)
	case pageMembers:
		a.app.SetFocus(a.rosterV)
	default:
		a.app.SetFocus(a.convList)
	}
}

func (a *App) popPage() {
	if a.pages.Depth() <= 1 {
		return
	}
	popped := a.pages.Pop()
	if popped == pageConversation {
		a.vm.CloseActive()
		a.msgView.SetRevoked(false)
		a.composer.Enable()
		a.composer.SetText("")
	}
	a.focusCurrent()
	a.render()
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if a.promptShown {
		return
	}
	a.promptShown = true
	a.prompt.Activate(mode)
	a.layout.RemoveItem(a.flashBar)
	a.layout.AddItem(a.prompt, 3, 0, true)
	a.layout.AddItem(a.flashBar, 1, 0, false)
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) hidePrompt() {
	if !a.promptShown {
		return
	}
	a.promptShown = false
	a.layout.RemoveItem(a.prompt)
	a.focusCurrent()
}

func (a *App) executeCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "help":
		a.pages.Push(pageHelp)
	case "mute", "unmute":
		if a.pages.Current() == pageConversations {
			a.toggleMute(a.convList.SelectedKey())
		} else {
			a.toggleMuteActive()
		}
	case "roster", "members":
		a.openRoster()
	case "leave":
		a.leaveGroup()
	case "add":
		a.addMember(cmd.Args)
	case "remove":
		a.removeMember(cmd.Args)
	default:
		a.vm.Flash.Warn("Unknown command: " + cmd.Name)
	}
}

func (a *App) openConversation(key string) {
	if key == "" {
		return
	}
	go func() {
		if err := a.vm.OpenConversation(a.ctx, key); err != nil {
			a.vm.Flash.Err(err)
			a.app.QueueUpdateDraw(a.render)
			return
		}
		a.app.QueueUpdateDraw(func() {
			if c := a.vm.Active(); c != nil {
				a.msgView.SetConvName(c.Name)
			}
			a.msgView.SetRevoked(false)
			a.composer.SetText("")
			if a.pages.Current() != pageConversation {
				a.pages.Push(pageConversation)
			}
			a.app.SetFocus(a.msgView)
			a.render()
		})
	}()
}

func (a *App) openRoster() {
	c := a.vm.Active()
	if c == nil || !c.IsGroup() {
		a.vm.Flash.Warn("Not a group conversation")
		return
	}
	a.rosterV.SetContext(c.Name, a.vm.SelfID(), c.IsOwner)
	go func() {
		if err := a.vm.LoadRoster(a.ctx); err != nil {
			a.vm.Flash.Err(err)
			a.app.QueueUpdateDraw(a.render)
			return
		}
		a.app.QueueUpdateDraw(func() {
			if a.pages.Current() != pageMembers {
				a.pages.Push(pageMembers)
			}
			a.app.SetFocus(a.rosterV)
			a.render()
		})
	}()
}

func (a *App) toggleMute(key string) {
	if key == "" {
		return
	}
	go func() {
		if err := a.vm.ToggleMute(a.ctx, key); err != nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) toggleMuteActive() {
	if c := a.vm.Active(); c != nil && c.IsGroup() {
		a.toggleMute(c.Key())
	}
}

func (a *App) leaveGroup() {
	c := a.vm.Active()
	if c == nil || !c.IsGroup() {
		a.vm.Flash.Warn("Not a group conversation")
		return
	}
	go func() {
		if err := a.vm.LeaveActiveGroup(a.ctx); err != nil {
			a.vm.Flash.Err(err)
			a.app.QueueUpdateDraw(a.render)
			return
		}
		a.vm.Flash.Info("Left " + c.Name)
		a.app.QueueUpdateDraw(func() {
			a.pages.Reset(pageConversations)
			a.vm.CloseActive()
			a.focusCurrent()
			a.render()
		})
	}()
}

func (a *App) addMember(userID string) {
	if userID == "" {
		a.vm.Flash.Warn("Usage: add <user-id>")
		return
	}
	go func() {
		if err := a.vm.AddMember(a.ctx, userID); err != nil {
			a.vm.Flash.Err(err)
		} else {
			a.vm.Flash.Info("Added " + userID)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) removeMember(userID string) {
	if userID == "" {
		a.vm.Flash.Warn("Usage: remove <user-id>")
		return
	}
	go func() {
		if err := a.vm.RemoveMember(a.ctx, userID); err != nil {
			a.vm.Flash.Err(err)
		} else {
			a.vm.Flash.Info("Removed " + userID)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) removeSelectedMember() {
	if user := a.rosterV.SelectedUser(); user != "" {
		a.removeMember(user)
	}
}

// render repaints every visible component from view model state. Must run on
// the UI goroutine.
func (a *App) render() {
	rows := a.vm.Conversations()
	a.convList.Update(rows)

	a.info.Update(&ui.SessionData{
		Session: a.session,
		User:    a.vm.SelfName(),
		Chats:   len(rows),
		Unread:  a.vm.TotalUnread(),
		Uptime:  time.Since(a.vm.StartedAt),
	})

	if a.pages.Current() == pageConversation || a.pages.Current() == pageMembers {
		a.msgView.Update(a.vm.Messages(), a.vm.SelfID(), time.Now())

		switch {
		case a.vm.ActiveRemoved():
			a.msgView.SetRevoked(true)
			a.composer.Disable("removed")
		case a.vm.SendInFlight():
			a.composer.Disable("sending")
		default:
			if a.composer.Disabled() {
				a.composer.Enable()
			}
		}

		if f := a.vm.ConsumeSendFailure(); f != nil {
			a.composer.Restore(f.Content)
		}
	}
	if a.pages.Current() == pageMembers {
		a.rosterV.Update(a.vm.Roster())
	}

	if top, ok := a.components[a.pages.Current()]; ok {
		a.menu.Update(top.Hints())
	}
	a.flashBar.Update(a.vm.Flash.GetMessage())
}

// Run starts the TUI event loop and blocks until Stop.
func (a *App) Run() error {
	go a.vm.Run(a.ctx)

	go func() {
		if err := a.vm.Bootstrap(a.ctx); err != nil {
			a.logger.Error("bootstrap failed", zap.Error(err))
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
		a.refreshLoop()
	}()

	return a.app.Run()
}

func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-ticker.C:
			// Keeps the flash expiry and uptime fresh between events.
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
