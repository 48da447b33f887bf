package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

// MailboxServiceImpl implements MailboxService
type MailboxServiceImpl struct {
	provider  ConversationProvider
	selection *SelectionController
	errors    *ErrorState
	strategy  DefaultSelection

	index   atomic.Pointer[ConversationIndex]
	loading atomic.Bool

	mu      sync.RWMutex
	loadErr error
	search  SearchState
	logger  *log.Logger
}

// NewMailboxService creates a new mailbox service
func NewMailboxService(provider ConversationProvider, selection *SelectionController, errs *ErrorState, strategy DefaultSelection) *MailboxServiceImpl {
	if errs == nil {
		errs = NewErrorState()
	}
	return &MailboxServiceImpl{
		provider:  provider,
		selection: selection,
		errors:    errs,
		strategy:  strategy,
	}
}

// SetLogger sets the logger for debug output
func (s *MailboxServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Refresh reloads every folder and swaps the index in one assignment. It is
// also the Retry action after a failed load.
func (s *MailboxServiceImpl) Refresh(ctx context.Context) error {
	s.loading.Store(true)
	defer s.loading.Store(false)

	mb, err := s.provider.ListConversations(ctx)
	if err != nil {
		s.mu.Lock()
		s.loadErr = err
		s.mu.Unlock()
		s.errors.Report("Failed to load conversations", err)
		return err
	}

	ix := NewConversationIndex(mb, s.strategy)
	s.index.Store(ix)
	s.mu.Lock()
	s.loadErr = nil
	s.mu.Unlock()
	s.selection.SetIndex(ix)

	if s.logger != nil {
		s.logger.Printf("MailboxService: loaded %d folders", len(ix.Folders()))
	}
	return nil
}

// Index returns the current index; nil before the first load
func (s *MailboxServiceImpl) Index() *ConversationIndex {
	return s.index.Load()
}

// Merge inserts one conversation into the index
func (s *MailboxServiceImpl) Merge(folder, conversationID string, messages []outlook.Message) {
	for {
		cur := s.index.Load()
		next := cur.Merge(folder, conversationID, messages)
		if s.index.CompareAndSwap(cur, next) {
			s.selection.SetIndex(next)
			return
		}
	}
}

// Selection returns the current selection
func (s *MailboxServiceImpl) Selection() Selection {
	return s.selection.Current()
}

// OnSelectionChange registers the selection listener
func (s *MailboxServiceImpl) OnSelectionChange(fn func(Selection)) {
	s.selection.OnChange(fn)
}

// SetFolder switches the active folder
func (s *MailboxServiceImpl) SetFolder(folder string) {
	s.selection.SetFolder(folder)
}

// SelectConversation selects a conversation in the active folder
func (s *MailboxServiceImpl) SelectConversation(conversationID string) error {
	return s.selection.SelectConversation(conversationID)
}

// NavigateTo switches folder and then conversation
func (s *MailboxServiceImpl) NavigateTo(folder, conversationID string, force bool) <-chan struct{} {
	return s.selection.NavigateTo(folder, conversationID, force)
}

// SelectedThread returns the selected conversation in display order
func (s *MailboxServiceImpl) SelectedThread() []outlook.Message {
	sel := s.selection.Current()
	if sel.ConversationID == "" {
		return nil
	}
	return Thread(s.Index().Messages(sel.Folder, sel.ConversationID))
}

// SelectedConversation returns the selected conversation's summary
func (s *MailboxServiceImpl) SelectedConversation() (ConversationSummary, bool) {
	sel := s.selection.Current()
	if sel.ConversationID == "" {
		return ConversationSummary{}, false
	}
	return Summarize(sel.ConversationID, s.Index().Messages(sel.Folder, sel.ConversationID)), true
}

// Summaries returns the list rows of the active folder
func (s *MailboxServiceImpl) Summaries() []ConversationSummary {
	return s.Index().Summaries(s.selection.Current().Folder)
}

// Folders returns the loaded folder names
func (s *MailboxServiceImpl) Folders() []string {
	return s.Index().Folders()
}

// SearchState returns the search-mode state
func (s *MailboxServiceImpl) SearchState() SearchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.search
	st.Results = append([]outlook.Message(nil), s.search.Results...)
	return st
}

// SetSearchResults enters search mode with results
func (s *MailboxServiceImpl) SetSearchResults(query string, results []outlook.Message) {
	s.mu.Lock()
	s.search = SearchState{Active: true, Query: query, Results: results}
	s.mu.Unlock()
}

// ClearSearch leaves search mode
func (s *MailboxServiceImpl) ClearSearch() {
	s.mu.Lock()
	s.search = SearchState{}
	s.mu.Unlock()
}

// Loading reports whether a full refresh is running
func (s *MailboxServiceImpl) Loading() bool {
	return s.loading.Load()
}

// LoadError returns the error of the last failed full refresh, nil after a success
func (s *MailboxServiceImpl) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Errors returns the shared error state
func (s *MailboxServiceImpl) Errors() *ErrorState {
	return s.errors
}
