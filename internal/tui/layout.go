package tui

import (
	"fmt"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const folderPaneWidth = 24

// initComponents creates the main views and the page stack
func (a *App) initComponents() {
	bg := a.Theme.Body.BgColor.Color()
	border := a.Theme.Frame.BorderColor.Color()
	title := a.Theme.Frame.TitleColor.Color()

	folders := tview.NewList().ShowSecondaryText(false).SetHighlightFullLine(true)
	folders.SetBackgroundColor(bg)
	folders.SetBorder(true).
		SetBorderColor(border).
		SetTitle(" Folders ").
		SetTitleColor(title)
	folders.SetChangedFunc(func(index int, name, _ string, _ rune) {
		if a.populating {
			return
		}
		a.mailbox.ClearSearch()
		a.mailbox.SetFolder(name)
	})
	folders.SetSelectedFunc(func(int, string, string, rune) {
		a.setFocus(focusConversations)
	})

	list := tview.NewTable().SetSelectable(true, false)
	list.SetBackgroundColor(bg)
	list.SetBorder(true).
		SetBorderColor(border).
		SetBorderAttributes(tcell.AttrBold).
		SetTitle(" Conversations ").
		SetTitleColor(title)
	list.SetSelectionChangedFunc(func(row, _ int) {
		if a.populating {
			return
		}
		a.onConversationHighlighted(row)
	})
	list.SetSelectedFunc(func(row, _ int) {
		a.onConversationSelected(row)
	})

	thread := tview.NewTextView().SetDynamicColors(true).SetWrap(true).SetScrollable(true)
	thread.SetBackgroundColor(bg)
	thread.SetBorder(true).
		SetBorderColor(border).
		SetTitle(" Conversation ").
		SetTitleColor(title)
	thread.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEnter {
			a.showActionsMenu()
			return nil
		}
		return ev
	})

	status := tview.NewTextView().SetDynamicColors(true)
	status.SetBackgroundColor(bg)
	status.SetTextColor(a.Theme.Status.FgColor.Color())

	flash := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	flash.SetBackgroundColor(bg)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(list, 0, 2, true).
		AddItem(thread, 0, 3, false)
	body := tview.NewFlex().
		AddItem(folders, folderPaneWidth, 0, false).
		AddItem(right, 0, 1, true)
	main := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(flash, 1, 0, false).
		AddItem(status, 1, 0, false)

	a.views["folders"] = folders
	a.views["list"] = list
	a.views["thread"] = thread
	a.views["status"] = status
	a.views["flash"] = flash
	a.views["main"] = main

	a.Pages = tview.NewPages()
	a.Pages.AddPage("main", main, true, true)
	a.SetRoot(a.Pages, true)
	a.SetFocus(list)
}

func (a *App) foldersView() *tview.List {
	v, _ := a.views["folders"].(*tview.List)
	return v
}

func (a *App) listView() *tview.Table {
	v, _ := a.views["list"].(*tview.Table)
	return v
}

func (a *App) threadView() *tview.TextView {
	v, _ := a.views["thread"].(*tview.TextView)
	return v
}

func (a *App) statusView() *tview.TextView {
	v, _ := a.views["status"].(*tview.TextView)
	return v
}

func (a *App) flashView() *tview.TextView {
	v, _ := a.views["flash"].(*tview.TextView)
	return v
}

// setFocus moves focus to one of the three panes
func (a *App) setFocus(target string) {
	var p tview.Primitive
	switch target {
	case focusFolders:
		p = a.foldersView()
	case focusThread:
		p = a.threadView()
	default:
		target = focusConversations
		p = a.listView()
	}
	a.currentFocus = target
	a.SetFocus(p)
}

// cycleFocus moves focus folders -> conversations -> thread
func (a *App) cycleFocus() {
	switch a.currentFocus {
	case focusFolders:
		a.setFocus(focusConversations)
	case focusConversations:
		a.setFocus(focusThread)
	default:
		a.setFocus(focusFolders)
	}
}

// showModal centers p over the main page
func (a *App) showModal(name, title string, p tview.Primitive, width, height int) {
	frame := tview.NewFlex().SetDirection(tview.FlexRow)
	frame.SetBorder(true).
		SetBorderColor(a.Theme.Frame.FocusColor.Color()).
		SetTitle(fmt.Sprintf(" %s ", title)).
		SetTitleColor(a.Theme.Frame.TitleColor.Color())
	frame.AddItem(p, 0, 1, true)

	centered := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(frame, height, 0, true).
			AddItem(nil, 0, 1, false), width, 0, true).
		AddItem(nil, 0, 1, false)

	a.Pages.AddPage(name, centered, true, true)
	a.SetFocus(p)
}

// closeModal removes a modal page and restores pane focus
func (a *App) closeModal(name string) {
	if a.Pages.HasPage(name) {
		a.Pages.RemovePage(name)
	}
	a.setFocus(a.currentFocus)
}

// confirm asks a yes/no question
func (a *App) confirm(name, text string, onYes func()) {
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"Yes", "No"}).
		SetDoneFunc(func(_ int, label string) {
			a.Pages.RemovePage(name)
			a.setFocus(a.currentFocus)
			if label == "Yes" {
				onYes()
			}
		})
	a.Pages.AddPage(name, modal, true, true)
	a.SetFocus(modal)
}
