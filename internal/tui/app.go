// Package tui is the terminal client: a K9s-inspired shell over the daemon's
// socket API with group, chat, leaderboard, and progress screens.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/lfelipe/studyhall/internal/tui/client"
	"github.com/lfelipe/studyhall/internal/tui/keys"
	"github.com/lfelipe/studyhall/internal/tui/model"
	"github.com/lfelipe/studyhall/internal/tui/ui"
	"github.com/lfelipe/studyhall/internal/tui/views"
	"github.com/rivo/tview"
)

// App is the main TUI application shell.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	vm          *model.ViewModel
	daemon      *client.Client
	registry    *keys.Registry
	statusBar   *views.StatusBar
	groupList   *views.GroupList
	msgView     *views.MessageView
	composer    *views.Composer
	leaderboard *views.LeaderboardView
	progress    *views.ProgressView
	login       *views.LoginView
	prompt      *tview.InputField
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	vm := model.NewViewModel(c)

	applyTheme(ui.DefaultTheme())

	a := &App{
		app:         tview.NewApplication(),
		pages:       tview.NewPages(),
		vm:          vm,
		daemon:      c,
		registry:    keys.NewRegistry(),
		statusBar:   views.NewStatusBar(),
		groupList:   views.NewGroupList(),
		msgView:     views.NewMessageView(),
		composer:    views.NewComposer(),
		leaderboard: views.NewLeaderboardView(),
		progress:    views.NewProgressView(),
		login:       views.NewLoginView(),
		ctx:         ctx,
		cancel:      cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func applyTheme(t *ui.Theme) {
	tview.Styles.PrimitiveBackgroundColor = t.BgColor
	tview.Styles.PrimaryTextColor = t.FgColor
	tview.Styles.BorderColor = t.BorderColor
	tview.Styles.TitleColor = t.TitleColor
	tview.Styles.SecondaryTextColor = t.TableHeaderFg
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal("groups", &keys.Action{
		Rune: 'g', Key: tcell.KeyRune,
		Description: "g:groups", Visible: true,
		Handler: func() { a.showGroups() },
	})
	a.registry.AddGlobal("leaderboard", &keys.Action{
		Rune: 'l', Key: tcell.KeyRune,
		Description: "l:leaderboard", Visible: true,
		Handler: func() { a.showLeaderboard() },
	})
	a.registry.AddGlobal("progress", &keys.Action{
		Rune: 'p', Key: tcell.KeyRune,
		Description: "p:progress", Visible: true,
		Handler: func() { a.showProgress("") },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: ":cmd", Visible: true,
		Handler: func() { a.showPrompt() },
	})
	a.registry.AddView("groups", "join", &keys.Action{
		Rune: 'j', Key: tcell.KeyRune,
		Description: "j:join", Visible: true,
		Handler: func() { a.joinSelected() },
	})
}

func (a *App) setupCallbacks() {
	a.groupList.SetSelectedFunc(func(row, col int) {
		if ref := a.groupList.SelectedRef(); ref != "" {
			a.openChat(ref)
		}
	})

	a.composer.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.Send(a.ctx, text); err != nil {
				a.vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
			}
			// The daemon's live query echoes the message back; give it a
			// beat before refetching.
			time.Sleep(200 * time.Millisecond)
			_ = a.vm.ReloadMessages(a.ctx)
			a.redraw()
		}()
	})

	a.prompt = tview.NewInputField().SetLabel(" :").SetFieldWidth(0)
	a.prompt.SetDoneFunc(func(key tcell.Key) {
		text := a.prompt.GetText()
		a.prompt.SetText("")
		a.hidePrompt()
		if key == tcell.KeyEnter && text != "" {
			a.runCommand(ParseCommand(text))
		}
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("groups", a.groupList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("leaderboard", a.leaderboard, true, false)
	a.pages.AddPage("progress", a.progress, true, false)
	a.pages.AddPage("login", a.login, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case "chat", "leaderboard", "progress", "login":
				a.showGroups()
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "chat" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "groups":
		a.showGroups()
	case "chat":
		if cmd.Args != "" {
			a.openChat(cmd.Args)
		}
	case "join":
		if cmd.Args != "" {
			go func() {
				if err := a.vm.JoinGroup(a.ctx, cmd.Args); err != nil {
					a.vm.Flash.Set("Join failed: "+err.Error(), 5*time.Second)
				}
				a.redraw()
			}()
		}
	case "leaderboard", "rank":
		a.showLeaderboard()
	case "progress":
		a.showProgress(cmd.Args)
	case "login":
		a.startLogin()
	case "logout":
		go func() {
			if err := a.vm.Logout(a.ctx); err != nil {
				a.vm.Flash.Set("Logout failed: "+err.Error(), 5*time.Second)
			}
			a.redraw()
		}()
	case "quit", "q":
		a.app.Stop()
	default:
		a.vm.Flash.Set("Unknown command: "+cmd.Name, 3*time.Second)
		a.redraw()
	}
}

func (a *App) showPrompt() {
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, false).
		AddItem(a.prompt, 1, 0, true).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(root, true)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)
	a.app.SetRoot(root, true)
	a.app.SetFocus(a.pages)
}

func (a *App) showGroups() {
	a.pages.SwitchToPage("groups")
	a.app.SetFocus(a.groupList)
	go func() {
		_ = a.vm.LoadGroups(a.ctx)
		a.redraw()
	}()
}

func (a *App) openChat(ref string) {
	go func() {
		if err := a.vm.OpenChat(a.ctx, ref); err != nil {
			a.vm.Flash.Set("Open failed: "+err.Error(), 5*time.Second)
			a.redraw()
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.Update(a.vm.GetMessages())
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.msgView)
		})
	}()
}

func (a *App) joinSelected() {
	ref := a.groupList.SelectedRef()
	id, ok := strings.CutPrefix(ref, "group_")
	if !ok {
		a.vm.Flash.Set("Only groups can be joined", 3*time.Second)
		a.redraw()
		return
	}
	go func() {
		if err := a.vm.JoinGroup(a.ctx, id); err != nil {
			a.vm.Flash.Set("Join failed: "+err.Error(), 5*time.Second)
		}
		a.redraw()
	}()
}

func (a *App) showLeaderboard() {
	a.pages.SwitchToPage("leaderboard")
	a.app.SetFocus(a.leaderboard)
	go func() {
		_ = a.vm.LoadLeaderboard(a.ctx)
		a.redraw()
	}()
}

func (a *App) showProgress(subject string) {
	a.pages.SwitchToPage("progress")
	a.app.SetFocus(a.progress)
	go func() {
		if err := a.vm.LoadProgress(a.ctx, subject); err != nil {
			a.vm.Flash.Set("Progress failed: "+err.Error(), 5*time.Second)
		}
		a.redraw()
	}()
}

func (a *App) startLogin() {
	a.pages.SwitchToPage("login")
	a.login.ShowMessage("Starting sign-in...")
	go func() {
		resp, err := a.vm.Login(a.ctx)
		if err != nil {
			a.app.QueueUpdateDraw(func() {
				a.login.ShowMessage("Sign-in error: " + err.Error())
			})
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.login.ShowChallenge(resp.VerificationURL, resp.UserCode, resp.ExpiresInSec)
		})
	}()
}

// redraw pushes current view-model state into whatever page is visible.
func (a *App) redraw() {
	a.app.QueueUpdateDraw(func() {
		currentPage, _ := a.pages.GetFrontPage()
		switch currentPage {
		case "groups":
			a.groupList.Update(a.vm.GetGroups())
		case "chat":
			a.msgView.Update(a.vm.GetMessages())
		case "leaderboard":
			a.leaderboard.Update(a.vm.GetLeaderboard())
		case "progress":
			a.progress.Update(a.vm.GetProgress())
		}

		st := a.vm.GetStatus()
		if st != nil {
			a.statusBar.SetStatus(st.Status)
			a.statusBar.SetPending(st.PendingWrites)
			if st.SignedIn {
				a.statusBar.SetUser(st.UserName)
				a.msgView.SetUserID(st.UserID)
			} else {
				a.statusBar.SetUser("")
			}
		}
		if v := a.vm.GetGroups(); v != nil {
			a.statusBar.SetOffline(v.Offline)
		}
		a.statusBar.SetFlash(a.vm.Flash.Get())
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		_ = a.vm.LoadStatus(a.ctx)
		_ = a.vm.LoadGroups(a.ctx)

		st := a.vm.GetStatus()
		if st != nil && !st.SignedIn {
			a.app.QueueUpdateDraw(func() {})
			a.startLogin()
		}
		a.redraw()

		a.startEventLoop()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// startEventLoop follows the daemon's event stream so pushed changes show up
// without waiting for the next poll.
func (a *App) startEventLoop() {
	events, err := a.daemon.Watch(a.ctx)
	if err != nil {
		a.vm.Flash.Set("Event stream unavailable: "+err.Error(), 5*time.Second)
		return
	}
	go func() {
		for evt := range events {
			switch {
			case strings.HasPrefix(evt.Kind, "feed."):
				_ = a.vm.LoadGroups(a.ctx)
				_ = a.vm.ReloadMessages(a.ctx)
			case strings.HasPrefix(evt.Kind, "session."), strings.HasPrefix(evt.Kind, "remote."):
				_ = a.vm.LoadStatus(a.ctx)
				currentPage, _ := a.pages.GetFrontPage()
				st := a.vm.GetStatus()
				if currentPage == "login" && st != nil && st.SignedIn {
					a.app.QueueUpdateDraw(func() {
						a.pages.SwitchToPage("groups")
						a.app.SetFocus(a.groupList)
					})
					_ = a.vm.LoadGroups(a.ctx)
				}
			case strings.HasPrefix(evt.Kind, "outbox."):
				_ = a.vm.LoadStatus(a.ctx)
			}
			a.redraw()
		}
	}()
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				_ = a.vm.LoadStatus(a.ctx)
				currentPage, _ := a.pages.GetFrontPage()
				switch currentPage {
				case "groups":
					_ = a.vm.LoadGroups(a.ctx)
				case "chat":
					_ = a.vm.ReloadMessages(a.ctx)
				case "leaderboard":
					_ = a.vm.LoadLeaderboard(a.ctx)
				case "progress":
					_ = a.vm.LoadProgress(a.ctx, "")
				}
				a.redraw()
			case <-a.ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
