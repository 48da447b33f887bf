package services

import (
	"strings"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

// MessageAction is an action offered for a message in the conversation view
type MessageAction string

const (
	ActionReply             MessageAction = "reply"
	ActionForward           MessageAction = "forward"
	ActionMove              MessageAction = "move"
	ActionDelete            MessageAction = "delete"
	ActionViewAttachments   MessageAction = "view-attachments"
	ActionEditDraft         MessageAction = "edit-draft"
	ActionSendDraft         MessageAction = "send-draft"
	ActionManageAttachments MessageAction = "manage-attachments"
)

// DraftsFolder is the display name of the drafts folder
const DraftsFolder = "Drafts"

// IsDraft reports whether a message should get the draft action set
func IsDraft(msg outlook.Message, folder string) bool {
	return msg.IsDraft || strings.EqualFold(folder, DraftsFolder)
}

// ActionsFor returns the actions offered for a message shown in folder.
// Drafts can be edited, sent and have attachments managed; other messages
// can be replied to, forwarded and moved.
func ActionsFor(msg outlook.Message, folder string) []MessageAction {
	if IsDraft(msg, folder) {
		return []MessageAction{ActionEditDraft, ActionSendDraft, ActionManageAttachments, ActionDelete}
	}
	actions := []MessageAction{ActionReply, ActionForward, ActionMove, ActionDelete}
	if msg.HasAttachments {
		actions = append(actions, ActionViewAttachments)
	}
	return actions
}

// MoveDestination is a well-known folder a message can be moved to
type MoveDestination struct {
	ID   string
	Name string
}

// MoveDestinations lists the provider's well-known folders
func MoveDestinations() []MoveDestination {
	return []MoveDestination{
		{ID: "inbox", Name: "Inbox"},
		{ID: "archive", Name: "Archive"},
		{ID: "junkemail", Name: "Junk Email"},
		{ID: "deleteditems", Name: "Deleted Items"},
	}
}
