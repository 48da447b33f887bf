package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

// DefaultSearchTop is the result limit sent with each search
const DefaultSearchTop = 25

// wellKnownFolders maps provider folder identifiers to display names
var wellKnownFolders = map[string]string{
	"inbox":        "Inbox",
	"sentitems":    "Sent Items",
	"deleteditems": "Deleted Items",
	"junkemail":    "Junk Email",
	"drafts":       "Drafts",
	"archive":      "Archive",
	"outbox":       "Outbox",
}

// SearchServiceImpl implements SearchService
type SearchServiceImpl struct {
	provider ConversationProvider
	mailbox  MailboxService
	history  SearchHistory
	errors   *ErrorState
	top      int
	aliases  map[string]string
	logger   *log.Logger
}

// NewSearchService creates a new search service. history may be nil.
func NewSearchService(provider ConversationProvider, mailbox MailboxService, history SearchHistory, errs *ErrorState) *SearchServiceImpl {
	if errs == nil {
		errs = NewErrorState()
	}
	return &SearchServiceImpl{
		provider: provider,
		mailbox:  mailbox,
		history:  history,
		errors:   errs,
		top:      DefaultSearchTop,
		aliases:  map[string]string{},
	}
}

// SetLogger sets the logger for debug output
func (s *SearchServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetTop sets the result limit; values <= 0 leave it to the provider
func (s *SearchServiceImpl) SetTop(top int) {
	s.top = top
}

// SetFolderAliases adds folder-name mappings on top of the well-known table
func (s *SearchServiceImpl) SetFolderAliases(aliases map[string]string) {
	for k, v := range aliases {
		s.aliases[strings.ToLower(k)] = v
	}
}

// Search runs a provider search and enters search mode. A blank query leaves
// search mode without a request.
func (s *SearchServiceImpl) Search(ctx context.Context, query string) ([]outlook.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		s.mailbox.ClearSearch()
		return nil, nil
	}

	results, err := s.provider.Search(ctx, query, s.top)
	if err != nil {
		s.errors.Report("Search failed", err)
		return nil, err
	}
	s.mailbox.SetSearchResults(query, results)

	if s.history != nil {
		if err := s.history.Record(ctx, query, len(results)); err != nil && s.logger != nil {
			s.logger.Printf("SearchService: could not record search history: %v", err)
		}
	}
	if s.logger != nil {
		s.logger.Printf("SearchService: %q returned %d results", query, len(results))
	}
	return results, nil
}

// NavigateToResult selects the conversation of a search result. Loaded data
// is tried first, then a fetch of that conversation, then a full refresh; if
// all fail the conversation is selected anyway and the fetch error returned.
func (s *SearchServiceImpl) NavigateToResult(ctx context.Context, msg outlook.Message) (<-chan struct{}, error) {
	s.mailbox.ClearSearch()

	id := msg.ConversationID
	if id == "" {
		err := fmt.Errorf("%w: search result has no conversation id", ErrInvalidInput)
		s.errors.Report("Cannot open result", err)
		return closedChan(), err
	}

	if folder, ok := s.mailbox.Index().FindConversation(id); ok {
		return s.mailbox.NavigateTo(folder, id, false), nil
	}

	msgs, err := s.provider.GetConversation(ctx, id)
	if err == nil && len(msgs) == 0 {
		err = fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err == nil {
		folder := s.NormalizeFolderName(msgs[0].OriginalFolder)
		if folder == "" {
			folder = s.fallbackFolder(msg)
		}
		s.mailbox.Merge(folder, id, msgs)
		return s.mailbox.NavigateTo(folder, id, false), nil
	}

	if s.logger != nil {
		s.logger.Printf("SearchService: fetch of conversation %s failed, refreshing: %v", id, err)
	}
	_ = s.mailbox.Refresh(ctx)

	folder, found := s.mailbox.Index().FindConversation(id)
	if !found {
		folder = s.fallbackFolder(msg)
	}
	done := s.mailbox.NavigateTo(folder, id, !found)
	s.errors.Report("Failed to load conversation", err)
	return done, err
}

// NormalizeFolderName maps provider identifiers such as "SentItems" to display
// names such as "Sent Items". Unknown names are returned unchanged.
func (s *SearchServiceImpl) NormalizeFolderName(name string) string {
	name = strings.TrimSpace(name)
	key := strings.ToLower(name)
	if v, ok := s.aliases[key]; ok {
		return v
	}
	if v, ok := wellKnownFolders[key]; ok {
		return v
	}
	if v, ok := wellKnownFolders[strings.ReplaceAll(key, " ", "")]; ok {
		return v
	}
	return name
}

// RecentSearches returns recently executed queries, newest first
func (s *SearchServiceImpl) RecentSearches(ctx context.Context, limit int) ([]string, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, limit)
}

func (s *SearchServiceImpl) fallbackFolder(msg outlook.Message) string {
	if f := s.NormalizeFolderName(msg.OriginalFolder); f != "" {
		return f
	}
	return s.mailbox.Selection().Folder
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
