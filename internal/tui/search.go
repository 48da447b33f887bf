package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const recentSearchLimit = 10

// openSearch shows the search prompt with recent queries as completions
func (a *App) openSearch() {
	var recent []string
	input := tview.NewInputField().
		SetLabel("Search: ").
		SetPlaceholder("subject, sender or words in the body").
		SetFieldWidth(0).
		SetLabelColor(a.Theme.Frame.TitleColor.Color()).
		SetFieldBackgroundColor(a.Theme.Body.BgColor.Color()).
		SetFieldTextColor(a.Theme.Body.FgColor.Color())
	if st := a.mailbox.SearchState(); st.Active {
		input.SetText(st.Query)
	}
	input.SetAutocompleteFunc(func(current string) []string {
		return matchRecent(recent, current)
	})
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			query := strings.TrimSpace(input.GetText())
			a.closeModal("search")
			a.runSearch(query)
		case tcell.KeyEscape:
			a.closeModal("search")
		}
	})
	a.showModal("search", "Search", input, 70, 3)

	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, 2*time.Second)
		defer cancel()
		queries, err := a.search.RecentSearches(ctx, recentSearchLimit)
		if err != nil {
			if a.logger != nil {
				a.logger.Printf("recent searches: %v", err)
			}
			return
		}
		a.queue(func() { recent = queries })
	}()
}

// runSearch executes query; an empty query leaves search mode
func (a *App) runSearch(query string) {
	if query == "" {
		a.mailbox.ClearSearch()
		a.renderMailbox()
		return
	}
	a.run(fmt.Sprintf("Searching %q...", query), func(ctx context.Context) error {
		_, err := a.search.Search(ctx, query)
		return err
	}, func() {
		n := len(a.mailbox.SearchState().Results)
		a.errorHandler.ShowInfo(a.ctx, fmt.Sprintf("%d results for %q", n, query))
		a.setFocus(focusConversations)
	})
}

// openSearchResult leaves search mode and selects the result's conversation
func (a *App) openSearchResult(msg outlook.Message) {
	a.errorHandler.ShowProgress(a.ctx, "Opening conversation...")
	go func() {
		done, err := a.search.NavigateToResult(a.ctx, msg)
		select {
		case <-done:
		case <-a.ctx.Done():
		}
		a.errorHandler.ClearProgress()
		a.queue(func() {
			a.renderMailbox()
			if err == nil {
				a.setFocus(focusThread)
			}
		})
	}()
}

// matchRecent returns the recent queries starting with prefix
func matchRecent(recent []string, prefix string) []string {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil
	}
	var out []string
	for _, q := range recent {
		if strings.HasPrefix(strings.ToLower(q), prefix) && !strings.EqualFold(q, prefix) {
			out = append(out, q)
		}
	}
	return out
}
