package tui

import (
	"fmt"
	"strings"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// bindKeys installs the global shortcuts of the mailbox page
func (a *App) bindKeys() {
	a.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if !a.paneFocused() {
			return ev
		}
		if a.handleConfigurableKey(ev) {
			return nil
		}
		switch ev.Key() {
		case tcell.KeyBacktab:
			a.cycleFocus()
			return nil
		case tcell.KeyEscape:
			if a.mailbox.SearchState().Active {
				a.mailbox.ClearSearch()
				a.renderMailbox()
				return nil
			}
		}
		return ev
	})
}

// paneFocused reports whether one of the main panes has focus; modals and
// the compose form receive keys untouched
func (a *App) paneFocused() bool {
	if a.composeOpen {
		return false
	}
	switch a.GetFocus() {
	case a.foldersView(), a.listView(), a.threadView():
		return true
	}
	return false
}

// handleConfigurableKey runs the action bound to ev, if any
func (a *App) handleConfigurableKey(ev *tcell.EventKey) bool {
	k := a.Keys
	var action string
	var fn func()
	switch {
	case keyMatches(ev, k.Quit):
		action, fn = "quit", a.Stop
	case keyMatches(ev, k.Refresh):
		action, fn = "refresh", func() { go a.refresh() }
	case keyMatches(ev, k.Search):
		action, fn = "search", a.openSearch
	case keyMatches(ev, k.Compose):
		action, fn = "compose", a.openCompose
	case keyMatches(ev, k.NextFolder):
		action, fn = "next_folder", a.nextFolder
	case keyMatches(ev, k.Help):
		action, fn = "help", a.showHelp
	case keyMatches(ev, k.Reply):
		action, fn = "reply", a.replySelected
	case keyMatches(ev, k.Forward):
		action, fn = "forward", a.forwardSelected
	case keyMatches(ev, k.Move):
		action, fn = "move", a.moveSelected
	case keyMatches(ev, k.Delete):
		action, fn = "delete", a.deleteSelected
	case keyMatches(ev, k.Attachments):
		action, fn = "attachments", a.openAttachments
	case keyMatches(ev, k.EditDraft):
		action, fn = "edit_draft", a.editDraft
	case keyMatches(ev, k.SendDraft):
		action, fn = "send_draft", a.sendDraftSelected
	default:
		return false
	}
	if a.logger != nil {
		a.logger.Printf("Configurable shortcut: '%s' -> %s", keyName(ev), action)
	}
	fn()
	return true
}

// keyMatches reports whether ev is the key described by binding: a single
// rune, a named key such as "tab" or "enter", or "ctrl+<letter>"
func keyMatches(ev *tcell.EventKey, binding string) bool {
	if ev == nil || binding == "" {
		return false
	}
	if r := []rune(binding); len(r) == 1 {
		return ev.Key() == tcell.KeyRune && ev.Rune() == r[0]
	}
	b := strings.ToLower(binding)
	switch b {
	case "tab":
		return ev.Key() == tcell.KeyTab
	case "backtab", "shift+tab":
		return ev.Key() == tcell.KeyBacktab
	case "enter":
		return ev.Key() == tcell.KeyEnter
	case "esc", "escape":
		return ev.Key() == tcell.KeyEscape
	case "space":
		return ev.Key() == tcell.KeyRune && ev.Rune() == ' '
	}
	if letter, ok := strings.CutPrefix(b, "ctrl+"); ok && len(letter) == 1 && letter[0] >= 'a' && letter[0] <= 'z' {
		return ev.Key() == tcell.KeyCtrlA+tcell.Key(letter[0]-'a')
	}
	return false
}

func keyName(ev *tcell.EventKey) string {
	if ev.Key() == tcell.KeyRune {
		return string(ev.Rune())
	}
	return ev.Name()
}

// showHelp lists the configured shortcuts
func (a *App) showHelp() {
	k := a.Keys
	rows := [][2]string{
		{k.Compose, "Compose a new message"},
		{k.Reply, "Reply to the latest message"},
		{k.Forward, "Forward the latest message"},
		{k.Move, "Move the latest message"},
		{k.Delete, "Delete the latest message"},
		{k.Attachments, "Attachments of the latest message"},
		{k.EditDraft, "Edit the draft in this conversation"},
		{k.SendDraft, "Send the draft in this conversation"},
		{k.Search, "Search the mailbox"},
		{k.NextFolder, "Next folder"},
		{"backtab", "Cycle pane focus"},
		{k.Refresh, "Reload conversations"},
		{"esc", "Leave search results"},
		{k.Help, "This help"},
		{k.Quit, "Quit"},
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "  [::b]%-8s[::-] %s\n", tview.Escape(r[0]), r[1])
	}
	view := tview.NewTextView().SetDynamicColors(true).SetText(b.String())
	view.SetBackgroundColor(a.Theme.Body.BgColor.Color())
	view.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || keyMatches(ev, a.Keys.Help) || keyMatches(ev, a.Keys.Quit) {
			a.closeModal("help")
			return nil
		}
		return ev
	})
	a.showModal("help", "Shortcuts", view, 60, len(rows)+2)
}
