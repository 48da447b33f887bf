package tui

import (
	"fmt"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// renderMailbox redraws folders, conversations and the selected thread from
// service state. It runs on the UI goroutine.
func (a *App) renderMailbox() {
	a.renderFolders()
	a.renderConversations()
	a.renderThread()
	a.errorHandler.refreshStatus()
}

func (a *App) renderFolders() {
	view := a.foldersView()
	if view == nil {
		return
	}
	a.populating = true
	defer func() { a.populating = false }()

	current := a.currentFolder()
	view.Clear()
	for i, name := range a.mailbox.Folders() {
		label := name
		if ix := a.mailbox.Index(); ix != nil {
			label = fmt.Sprintf("%s (%d)", name, ix.Len(name))
		}
		view.AddItem(label, "", 0, nil)
		if name == current {
			view.SetCurrentItem(i)
		}
	}
}

// renderConversations fills the table with the active folder's rows, or with
// search results while search mode is active
func (a *App) renderConversations() {
	table := a.listView()
	if table == nil {
		return
	}
	a.populating = true
	defer func() { a.populating = false }()

	width := a.screenWidth - folderPaneWidth - 2
	table.Clear()

	st := a.mailbox.SearchState()
	if st.Active {
		a.mu.Lock()
		a.results = st.Results
		a.searchRows = true
		a.rowIDs = nil
		a.mu.Unlock()
		for i, m := range st.Results {
			table.SetCell(i, 0, tview.NewTableCell(tview.Escape(a.renderer.FormatSearchResult(m, width))).
				SetTextColor(a.Theme.Body.FgColor.Color()).
				SetExpansion(1))
		}
		table.SetTitle(fmt.Sprintf(" Search: %s (%d) ", st.Query, len(st.Results)))
		if len(st.Results) > 0 {
			table.Select(0, 0)
		}
		return
	}

	sel := a.mailbox.Selection()
	rows := a.mailbox.Summaries()
	ids := make([]string, 0, len(rows))
	selected := -1
	for i, s := range rows {
		text, color := a.renderer.FormatConversationRow(s, width)
		table.SetCell(i, 0, tview.NewTableCell(tview.Escape(text)).
			SetTextColor(color).
			SetExpansion(1))
		ids = append(ids, s.ConversationID)
		if s.ConversationID == sel.ConversationID {
			selected = i
		}
	}
	a.mu.Lock()
	a.rowIDs = ids
	a.results = nil
	a.searchRows = false
	a.mu.Unlock()

	title := fmt.Sprintf(" %s (%d) ", sel.Folder, len(rows))
	if a.mailbox.Loading() {
		title = fmt.Sprintf(" %s (loading...) ", sel.Folder)
	}
	table.SetTitle(title)
	if selected >= 0 {
		table.Select(selected, 0)
	}
}

func (a *App) renderThread() {
	view := a.threadView()
	if view == nil {
		return
	}
	if a.mailbox.SearchState().Active {
		return
	}
	thread := a.mailbox.SelectedThread()
	if len(thread) == 0 {
		view.SetTitle(" Conversation ")
		if a.mailbox.Index() == nil && a.mailbox.LoadError() != nil {
			view.SetText("[::b]Could not load conversations.[::-]\n\nPress " + a.Keys.Refresh + " to retry.")
			return
		}
		view.SetText("No conversation selected")
		return
	}
	_, _, w, _ := view.GetInnerRect()
	if w <= 0 {
		w = 80
	}
	view.SetTitle(fmt.Sprintf(" %s (%d) ", thread[len(thread)-1].Subject, len(thread)))
	view.SetText(tview.Escape(a.renderer.FormatThread(thread, w)))
	view.ScrollToBeginning()
}

// onConversationHighlighted follows the table cursor in normal mode
func (a *App) onConversationHighlighted(row int) {
	a.mu.RLock()
	var id string
	if row >= 0 && row < len(a.rowIDs) {
		id = a.rowIDs[row]
	}
	a.mu.RUnlock()
	if id == "" || id == a.mailbox.Selection().ConversationID {
		return
	}
	if err := a.mailbox.SelectConversation(id); err != nil && a.logger != nil {
		a.logger.Printf("select conversation %s: %v", id, err)
	}
}

// onConversationSelected opens a search result, or focuses the thread
func (a *App) onConversationSelected(row int) {
	a.mu.RLock()
	inSearch := a.searchRows
	var result outlook.Message
	ok := inSearch && row >= 0 && row < len(a.results)
	if ok {
		result = a.results[row]
	}
	a.mu.RUnlock()

	switch {
	case !inSearch:
		a.setFocus(focusThread)
	case ok:
		a.openSearchResult(result)
	}
}

// nextFolder cycles the active folder
func (a *App) nextFolder() {
	folders := a.mailbox.Folders()
	if len(folders) == 0 {
		return
	}
	current := a.currentFolder()
	next := folders[0]
	for i, f := range folders {
		if f == current {
			next = folders[(i+1)%len(folders)]
			break
		}
	}
	a.mailbox.ClearSearch()
	a.mailbox.SetFolder(next)
}

// colorTag renders a tview color tag for c, empty for the default color
func colorTag(c tcell.Color) string {
	if c == tcell.ColorDefault {
		return ""
	}
	return fmt.Sprintf("[#%06x]", c.Hex())
}
