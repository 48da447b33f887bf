package tui

import (
	"context"
	"fmt"
	"slices"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// actionTarget returns the message action applies to, flashing a warning
// when there is none or the action is not offered for it
func (a *App) actionTarget(action services.MessageAction) (outlook.Message, bool) {
	if a.mailbox.SearchState().Active {
		a.errorHandler.ShowWarning(a.ctx, "Open a search result first")
		return outlook.Message{}, false
	}
	msg, ok := a.targetMessage()
	if !ok {
		a.errorHandler.ShowWarning(a.ctx, "No conversation selected")
		return outlook.Message{}, false
	}
	if !slices.Contains(services.ActionsFor(msg, a.currentFolder()), action) {
		a.errorHandler.ShowWarning(a.ctx, fmt.Sprintf("%s is not available for this message", actionLabel(action)))
		return outlook.Message{}, false
	}
	return msg, true
}

// replySelected asks for a comment and replies to the latest message
func (a *App) replySelected() {
	msg, ok := a.actionTarget(services.ActionReply)
	if !ok {
		return
	}
	a.promptText("reply", "Reply to "+senderLabel(msg), "Comment: ", func(comment string) {
		a.run("Sending reply...", func(ctx context.Context) error {
			return a.email.Reply(ctx, msg.ID, comment)
		}, func() {
			a.errorHandler.ShowSuccess(a.ctx, "Reply sent")
		})
	})
}

// forwardSelected asks for recipients and a comment and forwards the latest message
func (a *App) forwardSelected() {
	msg, ok := a.actionTarget(services.ActionForward)
	if !ok {
		return
	}
	form := tview.NewForm()
	form.SetBackgroundColor(a.Theme.Body.BgColor.Color())
	form.SetFieldBackgroundColor(a.Theme.Body.BgColor.Color())
	form.SetFieldTextColor(a.Theme.Body.FgColor.Color())
	form.SetLabelColor(a.Theme.Frame.TitleColor.Color())
	form.AddInputField("To: ", "", 0, nil, nil)
	form.AddInputField("Comment: ", "", 0, nil, nil)
	form.AddButton("Forward", func() {
		to := form.GetFormItem(0).(*tview.InputField).GetText()
		comment := form.GetFormItem(1).(*tview.InputField).GetText()
		if len(services.ParseEmails(to)) == 0 {
			a.errorHandler.ShowWarning(a.ctx, "At least one recipient is required")
			return
		}
		a.closeModal("forward")
		a.run("Forwarding...", func(ctx context.Context) error {
			return a.email.Forward(ctx, msg.ID, to, comment)
		}, func() {
			a.errorHandler.ShowSuccess(a.ctx, "Message forwarded")
		})
	})
	form.AddButton("Cancel", func() { a.closeModal("forward") })
	form.SetCancelFunc(func() { a.closeModal("forward") })
	a.showModal("forward", "Forward: "+subjectLabel(msg), form, 70, 9)
}

// moveSelected lets the user pick a well-known destination folder
func (a *App) moveSelected() {
	msg, ok := a.actionTarget(services.ActionMove)
	if !ok {
		return
	}
	dests := services.MoveDestinations()
	list := tview.NewList().ShowSecondaryText(false).SetHighlightFullLine(true)
	list.SetBackgroundColor(a.Theme.Body.BgColor.Color())
	for _, d := range dests {
		dest := d
		list.AddItem(dest.Name, "", 0, func() {
			a.closeModal("move")
			a.run("Moving to "+dest.Name+"...", func(ctx context.Context) error {
				return a.email.Move(ctx, msg.ID, dest.ID)
			}, func() {
				a.errorHandler.ShowSuccess(a.ctx, "Moved to "+dest.Name)
			})
		})
	}
	list.SetDoneFunc(func() { a.closeModal("move") })
	a.showModal("move", "Move to", list, 40, len(dests)+2)
}

// deleteSelected deletes the latest message after confirmation
func (a *App) deleteSelected() {
	msg, ok := a.actionTarget(services.ActionDelete)
	if !ok {
		return
	}
	a.confirm("delete", fmt.Sprintf("Delete %q?", subjectLabel(msg)), func() {
		a.run("Deleting...", func(ctx context.Context) error {
			return a.email.Delete(ctx, msg.ID)
		}, func() {
			a.errorHandler.ShowSuccess(a.ctx, "Message deleted")
		})
	})
}

// showActionsMenu lists the actions offered for the latest message
func (a *App) showActionsMenu() {
	msg, ok := a.targetMessage()
	if !ok {
		return
	}
	list := tview.NewList().ShowSecondaryText(false).SetHighlightFullLine(true)
	list.SetBackgroundColor(a.Theme.Body.BgColor.Color())
	actions := services.ActionsFor(msg, a.currentFolder())
	for _, act := range actions {
		fn := a.actionFunc(act)
		list.AddItem(actionLabel(act), "", 0, func() {
			a.closeModal("actions")
			fn()
		})
	}
	list.SetDoneFunc(func() { a.closeModal("actions") })
	a.showModal("actions", "Actions", list, 40, len(actions)+2)
}

func (a *App) actionFunc(action services.MessageAction) func() {
	switch action {
	case services.ActionReply:
		return a.replySelected
	case services.ActionForward:
		return a.forwardSelected
	case services.ActionMove:
		return a.moveSelected
	case services.ActionDelete:
		return a.deleteSelected
	case services.ActionEditDraft:
		return a.editDraft
	case services.ActionSendDraft:
		return a.sendDraftSelected
	default:
		return a.openAttachments
	}
}

func actionLabel(action services.MessageAction) string {
	switch action {
	case services.ActionReply:
		return "Reply"
	case services.ActionForward:
		return "Forward"
	case services.ActionMove:
		return "Move"
	case services.ActionDelete:
		return "Delete"
	case services.ActionViewAttachments:
		return "View attachments"
	case services.ActionEditDraft:
		return "Edit draft"
	case services.ActionSendDraft:
		return "Send draft"
	case services.ActionManageAttachments:
		return "Manage attachments"
	}
	return string(action)
}

// promptText asks for one line of text
func (a *App) promptText(name, title, label string, onDone func(string)) {
	input := tview.NewInputField().
		SetLabel(label).
		SetFieldWidth(0).
		SetLabelColor(a.Theme.Frame.TitleColor.Color()).
		SetFieldBackgroundColor(a.Theme.Body.BgColor.Color()).
		SetFieldTextColor(a.Theme.Body.FgColor.Color())
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := input.GetText()
			a.closeModal(name)
			onDone(text)
		case tcell.KeyEscape:
			a.closeModal(name)
		}
	})
	a.showModal(name, title, input, 70, 3)
}

func senderLabel(m outlook.Message) string {
	if m.From == nil {
		return "(unknown sender)"
	}
	return services.FormatRecipient(*m.From)
}

func subjectLabel(m outlook.Message) string {
	if m.Subject == "" {
		return "(No subject)"
	}
	return m.Subject
}
