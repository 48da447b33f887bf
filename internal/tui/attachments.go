package tui

import (
	"fmt"
	"strings"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/internal/render"
	"github.com/ajramos/crm-mailbox/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const attachmentsPage = "attachments"

// openAttachments lists the attachments of the latest message. Enter saves
// the highlighted file; on drafts d removes it and u uploads a local file.
func (a *App) openAttachments() {
	msg, ok := a.targetMessage()
	if !ok {
		a.errorHandler.ShowWarning(a.ctx, "No conversation selected")
		return
	}
	manage := services.IsDraft(msg, a.currentFolder())
	action := services.ActionViewAttachments
	if manage {
		action = services.ActionManageAttachments
	}
	if _, ok := a.actionTarget(action); !ok {
		return
	}

	a.errorHandler.ShowProgress(a.ctx, "Loading attachments...")
	go func() {
		atts, err := a.attachments.List(a.ctx, msg.ID)
		a.errorHandler.ClearProgress()
		if err != nil {
			return
		}
		a.queue(func() { a.showAttachmentList(msg, visibleAttachments(atts), manage) })
	}()
}

// visibleAttachments drops inline images
func visibleAttachments(atts []outlook.Attachment) []outlook.Attachment {
	out := make([]outlook.Attachment, 0, len(atts))
	for _, att := range atts {
		if !att.IsInline {
			out = append(out, att)
		}
	}
	return out
}

func (a *App) showAttachmentList(msg outlook.Message, atts []outlook.Attachment, manage bool) {
	if a.Pages.HasPage(attachmentsPage) {
		a.Pages.RemovePage(attachmentsPage)
	}
	list := tview.NewList().ShowSecondaryText(true).SetHighlightFullLine(true)
	list.SetBackgroundColor(a.Theme.Body.BgColor.Color())
	list.SetSecondaryTextColor(a.Theme.Status.FgColor.Color())
	if len(atts) == 0 {
		list.AddItem("No attachments", "", 0, nil)
	}
	for _, att := range atts {
		category := services.AttachmentCategory(att.Name, att.ContentType)
		list.AddItem(tview.Escape(render.FormatAttachmentLine(att)), category, 0, nil)
	}

	current := func() (outlook.Attachment, bool) {
		i := list.GetCurrentItem()
		if i < 0 || i >= len(atts) {
			return outlook.Attachment{}, false
		}
		return atts[i], true
	}

	list.SetSelectedFunc(func(int, string, string, rune) {
		att, ok := current()
		if !ok {
			return
		}
		a.downloadAttachment(msg.ID, att)
	})
	list.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch {
		case ev.Key() == tcell.KeyEscape:
			a.closeModal(attachmentsPage)
			return nil
		case manage && ev.Key() == tcell.KeyRune && ev.Rune() == 'd':
			if att, ok := current(); ok {
				a.removeAttachment(msg, att)
			}
			return nil
		case manage && ev.Key() == tcell.KeyRune && ev.Rune() == 'u':
			a.uploadAttachment(msg)
			return nil
		}
		return ev
	})

	title := fmt.Sprintf("Attachments: %s (Enter save", subjectLabel(msg))
	if manage {
		title += ", d remove, u upload"
	}
	title += ")"
	a.showModal(attachmentsPage, title, list, 80, min(max(len(atts), 1)*2+2, 20))
}

func (a *App) downloadAttachment(messageID string, att outlook.Attachment) {
	a.errorHandler.ShowProgress(a.ctx, "Saving "+att.Name+"...")
	go func() {
		path, err := a.attachments.Download(a.ctx, messageID, att.ID, att.Name)
		a.errorHandler.ClearProgress()
		if err != nil {
			return
		}
		a.errorHandler.ShowFlashMessage(a.ctx, "Saved to "+path, LogLevelSuccess, statusClearDelay)
	}()
}

func (a *App) removeAttachment(msg outlook.Message, att outlook.Attachment) {
	a.confirm("remove-attachment", fmt.Sprintf("Remove %q from the draft?", att.Name), func() {
		a.errorHandler.ShowProgress(a.ctx, "Removing "+att.Name+"...")
		go func() {
			err := a.attachments.Remove(a.ctx, msg.ID, att.ID)
			var atts []outlook.Attachment
			if err == nil {
				atts, err = a.attachments.List(a.ctx, msg.ID)
			}
			a.errorHandler.ClearProgress()
			if err != nil {
				return
			}
			a.queue(func() {
				a.errorHandler.ShowSuccess(a.ctx, "Removed "+att.Name)
				a.showAttachmentList(msg, visibleAttachments(atts), true)
			})
		}()
	})
}

func (a *App) uploadAttachment(msg outlook.Message) {
	a.promptText("upload-attachment", "Upload to draft", "File: ", func(path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		att, err := services.FileAttachment(path)
		if err != nil {
			a.errorHandler.ShowError(a.ctx, fmt.Sprintf("Cannot attach %s: %v", path, err))
			return
		}
		a.errorHandler.ShowProgress(a.ctx, "Uploading "+att.Name+"...")
		go func() {
			_, atts, err := a.attachments.Upload(a.ctx, msg.ID, att, true)
			a.errorHandler.ClearProgress()
			if err != nil {
				a.errors.Report("Upload failed", err)
				return
			}
			a.queue(func() {
				a.errorHandler.ShowSuccess(a.ctx, "Uploaded "+att.Name)
				a.showAttachmentList(msg, visibleAttachments(atts), true)
			})
		}()
	})
}
