package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ajramos/crm-mailbox/internal/config"
	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider serves a fixed mailbox
type stubProvider struct {
	mailbox *outlook.ThreadedMailbox
	err     error
	results []outlook.Message
}

func (p *stubProvider) ListConversations(ctx context.Context) (*outlook.ThreadedMailbox, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.mailbox, nil
}

func (p *stubProvider) GetConversation(ctx context.Context, conversationID string) ([]outlook.Message, error) {
	for _, f := range p.mailbox.Folders {
		for _, c := range f.Conversations {
			if c.ConversationID == conversationID {
				return c.Messages, nil
			}
		}
	}
	return nil, nil
}

func (p *stubProvider) Search(ctx context.Context, query string, top int) ([]outlook.Message, error) {
	return p.results, nil
}

func testMailbox() *outlook.ThreadedMailbox {
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	alice := &outlook.Recipient{Name: "Alice", Address: "alice@example.com"}
	bob := &outlook.Recipient{Name: "Bob", Address: "bob@example.com"}
	return &outlook.ThreadedMailbox{Folders: []outlook.FolderConversations{
		{Folder: "Inbox", Conversations: []outlook.ConversationMessages{
			{ConversationID: "c1", Messages: []outlook.Message{
				{ID: "m1", ConversationID: "c1", Subject: "Quarterly numbers", From: alice, ReceivedDateTime: at,
					Body: outlook.ItemBody{ContentType: outlook.ContentTypeText, Content: "Numbers attached."}},
			}},
			{ConversationID: "c2", Messages: []outlook.Message{
				{ID: "m2", ConversationID: "c2", Subject: "Lunch", From: bob, ReceivedDateTime: at.Add(-time.Hour), IsRead: true},
			}},
		}},
		{Folder: "Sent Items", Conversations: []outlook.ConversationMessages{
			{ConversationID: "c3", Messages: []outlook.Message{
				{ID: "m3", ConversationID: "c3", Subject: "Proposal", From: alice, ReceivedDateTime: at, IsRead: true},
			}},
		}},
	}}
}

func newTestApp(t *testing.T, provider *stubProvider) *App {
	t.Helper()
	errs := services.NewErrorState()
	sel := services.NewSelectionController("Inbox", time.Millisecond)
	t.Cleanup(sel.Close)
	mb := services.NewMailboxService(provider, sel, errs, services.DefaultSelectionFirst)

	a := NewApp(config.DefaultConfig(), nil, Services{
		Mailbox: mb,
		Search:  services.NewSearchService(provider, mb, nil, errs),
		Errors:  errs,
	}, nil)
	a.queue = func(fn func()) { fn() }
	return a
}

func TestRenderMailbox_ShowsFolderConversations(t *testing.T) {
	a := newTestApp(t, &stubProvider{mailbox: testMailbox()})
	require.NoError(t, a.mailbox.Refresh(context.Background()))
	a.renderMailbox()

	folders := a.foldersView()
	require.Equal(t, 2, folders.GetItemCount())
	main, _ := folders.GetItemText(0)
	assert.Equal(t, "Inbox (2)", main)

	table := a.listView()
	require.Equal(t, 2, table.GetRowCount())
	assert.Contains(t, table.GetCell(0, 0).Text, "Alice")
	assert.Contains(t, table.GetCell(1, 0).Text, "Lunch")
	assert.Equal(t, []string{"c1", "c2"}, a.rowIDs)
	assert.False(t, a.searchRows)

	row, _ := table.GetSelection()
	assert.Equal(t, 0, row)
	assert.Contains(t, a.threadView().GetText(true), "Numbers attached.")
}

func TestRenderMailbox_LoadErrorOffersRetry(t *testing.T) {
	a := newTestApp(t, &stubProvider{err: errors.New("connection refused")})
	require.Error(t, a.mailbox.Refresh(context.Background()))
	a.renderMailbox()

	assert.Contains(t, a.threadView().GetText(true), "Press R to retry")
	status := a.errorHandler.StatusText()
	assert.Contains(t, status, "Failed to load conversations: connection refused")
	assert.Contains(t, status, "R to retry")
}

func TestRenderMailbox_SearchMode(t *testing.T) {
	results := []outlook.Message{
		{ID: "m3", ConversationID: "c3", Subject: "Proposal", OriginalFolder: "SentItems"},
	}
	a := newTestApp(t, &stubProvider{mailbox: testMailbox(), results: results})
	require.NoError(t, a.mailbox.Refresh(context.Background()))

	_, err := a.search.Search(context.Background(), "proposal")
	require.NoError(t, err)
	a.renderMailbox()

	assert.True(t, a.searchRows)
	assert.Nil(t, a.rowIDs)
	require.Equal(t, 1, a.listView().GetRowCount())
	assert.Contains(t, a.listView().GetCell(0, 0).Text, "Proposal")
}

func TestOpenSearchResult_SelectsConversation(t *testing.T) {
	results := []outlook.Message{
		{ID: "m3", ConversationID: "c3", Subject: "Proposal", OriginalFolder: "SentItems"},
	}
	a := newTestApp(t, &stubProvider{mailbox: testMailbox(), results: results})
	require.NoError(t, a.mailbox.Refresh(context.Background()))
	_, err := a.search.Search(context.Background(), "proposal")
	require.NoError(t, err)

	done, err := a.search.NavigateToResult(context.Background(), results[0])
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("navigation did not complete")
	}

	sel := a.mailbox.Selection()
	assert.Equal(t, "Sent Items", sel.Folder)
	assert.Equal(t, "c3", sel.ConversationID)
	assert.False(t, a.mailbox.SearchState().Active)
}

func TestNextFolder_Cycles(t *testing.T) {
	a := newTestApp(t, &stubProvider{mailbox: testMailbox()})
	require.NoError(t, a.mailbox.Refresh(context.Background()))

	a.nextFolder()
	assert.Equal(t, "Sent Items", a.currentFolder())
	assert.Equal(t, "c3", a.mailbox.Selection().ConversationID)

	a.nextFolder()
	assert.Equal(t, "Inbox", a.currentFolder())
}

func TestTargetMessage_LatestOfThread(t *testing.T) {
	a := newTestApp(t, &stubProvider{mailbox: testMailbox()})
	require.NoError(t, a.mailbox.Refresh(context.Background()))

	msg, ok := a.targetMessage()
	require.True(t, ok)
	assert.Equal(t, "m1", msg.ID)

	_, ok = a.draftInThread()
	assert.False(t, ok)
}

func TestStatusBaseline(t *testing.T) {
	a := newTestApp(t, &stubProvider{mailbox: testMailbox()})
	assert.Equal(t, "CRM Mailbox | Inbox | ? help | q quit", a.statusBaseline())
}

func TestMatchRecent(t *testing.T) {
	recent := []string{"invoice march", "Invoice april", "lunch"}
	assert.Equal(t, []string{"invoice march", "Invoice april"}, matchRecent(recent, "inv"))
	assert.Nil(t, matchRecent(recent, ""))
	assert.Nil(t, matchRecent(recent, "lunch"))
}

func TestComposeBodyConversion(t *testing.T) {
	body := itemBody(outlook.ContentTypeHTML, "a < b\nsecond")
	assert.Equal(t, outlook.ContentTypeHTML, body.ContentType)
	assert.Equal(t, "a &lt; b<br>\nsecond", body.Content)

	plain := itemBody(outlook.ContentTypeText, "hello")
	assert.Equal(t, outlook.ItemBody{ContentType: outlook.ContentTypeText, Content: "hello"}, plain)

	text := editableBody(outlook.ItemBody{ContentType: outlook.ContentTypeHTML, Content: "<p>Hi <b>there</b></p>"})
	assert.Equal(t, "Hi there", strings.TrimSpace(text))
	assert.Equal(t, "raw", editableBody(outlook.ItemBody{ContentType: outlook.ContentTypeText, Content: "raw"}))
}
