package services

import (
	"sort"
	"time"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

// DefaultSelection decides which conversation a folder opens on
type DefaultSelection string

const (
	// DefaultSelectionFirst picks the first conversation in provider order
	DefaultSelectionFirst DefaultSelection = "first"
	// DefaultSelectionLatest picks the conversation with the newest message
	DefaultSelectionLatest DefaultSelection = "latest"
)

// ConversationIndex maps folder -> conversationId -> messages, keeping provider
// order. It is immutable: Merge returns a new index. A nil index is empty.
type ConversationIndex struct {
	folders  []string
	order    map[string][]string
	messages map[string]map[string][]outlook.Message
	strategy DefaultSelection
}

// NewConversationIndex builds an index from the threaded listing
func NewConversationIndex(mb *outlook.ThreadedMailbox, strategy DefaultSelection) *ConversationIndex {
	ix := &ConversationIndex{
		order:    make(map[string][]string),
		messages: make(map[string]map[string][]outlook.Message),
		strategy: strategy,
	}
	if mb == nil {
		return ix
	}
	for _, f := range mb.Folders {
		convs, seen := ix.messages[f.Folder]
		if !seen {
			convs = make(map[string][]outlook.Message, len(f.Conversations))
			ix.messages[f.Folder] = convs
			ix.folders = append(ix.folders, f.Folder)
		}
		for _, c := range f.Conversations {
			if _, dup := convs[c.ConversationID]; !dup {
				ix.order[f.Folder] = append(ix.order[f.Folder], c.ConversationID)
			}
			convs[c.ConversationID] = c.Messages
		}
	}
	return ix
}

// Folders returns folder names in provider order
func (ix *ConversationIndex) Folders() []string {
	if ix == nil {
		return nil
	}
	return append([]string(nil), ix.folders...)
}

// Conversations returns a folder's conversation ids in provider order
func (ix *ConversationIndex) Conversations(folder string) []string {
	if ix == nil {
		return nil
	}
	return append([]string(nil), ix.order[folder]...)
}

// Len returns the number of conversations in a folder
func (ix *ConversationIndex) Len(folder string) int {
	if ix == nil {
		return 0
	}
	return len(ix.order[folder])
}

// Messages returns the stored messages of a conversation, unsorted
func (ix *ConversationIndex) Messages(folder, conversationID string) []outlook.Message {
	if ix == nil {
		return nil
	}
	return ix.messages[folder][conversationID]
}

// Has reports whether folder contains conversationID
func (ix *ConversationIndex) Has(folder, conversationID string) bool {
	if ix == nil || conversationID == "" {
		return false
	}
	_, ok := ix.messages[folder][conversationID]
	return ok
}

// FindConversation scans all folders in order for a conversation id
func (ix *ConversationIndex) FindConversation(conversationID string) (string, bool) {
	if ix == nil || conversationID == "" {
		return "", false
	}
	for _, folder := range ix.folders {
		if _, ok := ix.messages[folder][conversationID]; ok {
			return folder, true
		}
	}
	return "", false
}

// DefaultConversation returns the conversation a folder opens on, or "" when empty
func (ix *ConversationIndex) DefaultConversation(folder string) string {
	ids := ix.Conversations(folder)
	if len(ids) == 0 {
		return ""
	}
	if ix.strategy != DefaultSelectionLatest {
		return ids[0]
	}
	best := ids[0]
	bestAt := latestTime(ix.messages[folder][best])
	for _, id := range ids[1:] {
		if at := latestTime(ix.messages[folder][id]); at.After(bestAt) {
			best, bestAt = id, at
		}
	}
	return best
}

// Merge returns a copy with one conversation inserted or replaced. Other
// entries are shared with the receiver, which is left untouched.
func (ix *ConversationIndex) Merge(folder, conversationID string, msgs []outlook.Message) *ConversationIndex {
	next := &ConversationIndex{
		order:    make(map[string][]string),
		messages: make(map[string]map[string][]outlook.Message),
	}
	if ix != nil {
		next.folders = append(next.folders, ix.folders...)
		next.strategy = ix.strategy
		for k, v := range ix.order {
			next.order[k] = v
		}
		for k, v := range ix.messages {
			next.messages[k] = v
		}
	}

	convs := make(map[string][]outlook.Message, len(next.messages[folder])+1)
	for k, v := range next.messages[folder] {
		convs[k] = v
	}
	if _, ok := next.messages[folder]; !ok {
		next.folders = append(next.folders, folder)
	}
	if _, ok := convs[conversationID]; !ok {
		order := make([]string, 0, len(next.order[folder])+1)
		order = append(order, next.order[folder]...)
		next.order[folder] = append(order, conversationID)
	}
	convs[conversationID] = append([]outlook.Message(nil), msgs...)
	next.messages[folder] = convs
	return next
}

// Summaries builds list rows for a folder in provider order
func (ix *ConversationIndex) Summaries(folder string) []ConversationSummary {
	ids := ix.Conversations(folder)
	out := make([]ConversationSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, Summarize(id, ix.Messages(folder, id)))
	}
	return out
}

// Thread returns the messages ordered by received time ascending. The input is not modified.
func Thread(msgs []outlook.Message) []outlook.Message {
	out := append([]outlook.Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedDateTime.Before(out[j].ReceivedDateTime)
	})
	return out
}

// LatestMessage returns the message with the newest received time
func LatestMessage(msgs []outlook.Message) (outlook.Message, bool) {
	if len(msgs) == 0 {
		return outlook.Message{}, false
	}
	latest := msgs[0]
	for _, m := range msgs[1:] {
		if m.ReceivedDateTime.After(latest.ReceivedDateTime) {
			latest = m
		}
	}
	return latest, true
}

// IsUnread reports whether any message is unread
func IsUnread(msgs []outlook.Message) bool {
	for _, m := range msgs {
		if !m.IsRead {
			return true
		}
	}
	return false
}

// Summarize builds the list row of one conversation
func Summarize(conversationID string, msgs []outlook.Message) ConversationSummary {
	s := ConversationSummary{
		ConversationID: conversationID,
		Count:          len(msgs),
		Unread:         IsUnread(msgs),
	}
	for _, m := range msgs {
		s.HasAttachments = s.HasAttachments || m.HasAttachments
		s.IsDraft = s.IsDraft || m.IsDraft
	}
	if latest, ok := LatestMessage(msgs); ok {
		s.Subject = latest.Subject
		s.Preview = latest.BodyPreview
		s.LatestAt = latest.ReceivedDateTime
		if latest.From != nil {
			s.From = latest.From.Name
			if s.From == "" {
				s.From = latest.From.Address
			}
		}
	}
	return s
}

func latestTime(msgs []outlook.Message) (t time.Time) {
	if m, ok := LatestMessage(msgs); ok {
		t = m.ReceivedDateTime
	}
	return t
}
