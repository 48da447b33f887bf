package tui

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/ajramos/crm-mailbox/internal/outlook"
	"github.com/ajramos/crm-mailbox/internal/render"
	"github.com/ajramos/crm-mailbox/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const composePage = "compose"

// CompositionPanel is the compose and edit-draft surface
type CompositionPanel struct {
	*tview.Flex
	app *App

	headers     *tview.Form
	toField     *tview.InputField
	ccField     *tview.InputField
	bccField    *tview.InputField
	subject     *tview.InputField
	saveToSent  *tview.Checkbox
	attachField *tview.InputField
	body        *BodyEditor
	attachments *tview.List
	buttons     *tview.Form
	status      *tview.TextView

	// entries backs the rows of attachments
	entries []attachmentEntry

	// loadedBody and loadedText keep the stored body and the text it was
	// shown as, so an untouched HTML body is saved unchanged
	loadedBody outlook.ItemBody
	loadedText string
}

// attachmentEntry is a row of the compose attachment list. pending is the
// queue position of a local file, or -1 for an uploaded draft attachment.
type attachmentEntry struct {
	name         string
	attachmentID string
	pending      int
}

// newCompositionPanel builds the form for comp
func newCompositionPanel(a *App, comp *services.Composition) *CompositionPanel {
	bg := a.Theme.Body.BgColor.Color()
	fg := a.Theme.Body.FgColor.Color()
	label := a.Theme.Frame.TitleColor.Color()

	c := &CompositionPanel{app: a}

	c.headers = tview.NewForm()
	c.headers.SetBackgroundColor(bg)
	c.headers.SetFieldBackgroundColor(bg)
	c.headers.SetFieldTextColor(fg)
	c.headers.SetLabelColor(label)
	c.headers.SetItemPadding(0)

	c.toField = tview.NewInputField().SetLabel("To: ").SetPlaceholder("recipient@example.com")
	c.ccField = tview.NewInputField().SetLabel("Cc: ")
	c.bccField = tview.NewInputField().SetLabel("Bcc: ")
	c.subject = tview.NewInputField().SetLabel("Subject: ")
	c.saveToSent = tview.NewCheckbox().SetLabel("Save to Sent Items: ")
	c.attachField = tview.NewInputField().SetLabel("Attach file: ").SetPlaceholder("path, Enter to add")
	c.attachField.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			c.addAttachment(c.attachField.GetText())
		}
	})
	for _, f := range []*tview.InputField{c.toField, c.ccField, c.bccField, c.subject, c.attachField} {
		c.headers.AddFormItem(f)
	}
	c.headers.AddFormItem(c.saveToSent)

	c.body = NewBodyEditor()
	c.body.SetBackgroundColor(bg)
	c.body.SetTextColor(fg)
	c.body.SetBorder(true).
		SetBorderColor(a.Theme.Frame.BorderColor.Color()).
		SetTitle(" Body ").
		SetTitleColor(label)

	c.attachments = tview.NewList().ShowSecondaryText(false)
	c.attachments.SetBackgroundColor(bg)
	c.attachments.SetMainTextColor(fg)
	c.attachments.SetBorder(true).
		SetBorderColor(a.Theme.Frame.BorderColor.Color()).
		SetTitle(" Attachments (Ctrl+L, d remove) ").
		SetTitleColor(label)
	c.attachments.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyDelete || (ev.Key() == tcell.KeyRune && ev.Rune() == 'd') {
			c.removeSelectedAttachment()
			return nil
		}
		return ev
	})

	c.status = tview.NewTextView().SetDynamicColors(true)
	c.status.SetBackgroundColor(bg)

	c.buttons = tview.NewForm()
	c.buttons.SetBackgroundColor(bg)
	c.buttons.SetButtonsAlign(tview.AlignCenter)
	c.buttons.AddButton("Send", c.send)
	if comp.Mode == services.ComposeEditingDraft {
		c.buttons.AddButton("Update Draft", c.saveDraft)
	} else {
		c.buttons.AddButton("Save Draft", c.saveDraft)
	}
	c.buttons.AddButton("Cancel", c.cancel)

	c.Flex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(c.headers, 6, 0, true).
		AddItem(c.body, 0, 1, false).
		AddItem(c.attachments, 5, 0, false).
		AddItem(c.status, 1, 0, false).
		AddItem(c.buttons, 3, 0, false)
	c.SetInputCapture(c.handleKey)

	c.load(comp)
	return c
}

// load fills the fields from comp
func (c *CompositionPanel) load(comp *services.Composition) {
	st := comp.State
	c.toField.SetText(services.FormatRecipients(st.To))
	c.ccField.SetText(services.FormatRecipients(st.Cc))
	c.bccField.SetText(services.FormatRecipients(st.Bcc))
	c.subject.SetText(st.Subject)
	c.saveToSent.SetChecked(st.SaveToSentItems)
	c.loadedBody = st.Body
	c.body.SetText(editableBody(st.Body))
	c.loadedText = c.body.GetText()
	c.renderAttachments(comp)
}

// editableBody converts a stored body to the text shown in the editor
func editableBody(body outlook.ItemBody) string {
	if strings.EqualFold(body.ContentType, outlook.ContentTypeHTML) && strings.TrimSpace(body.Content) != "" {
		return render.FormatBody(body, nil, render.FormatOptions{HideSections: true})
	}
	return body.Content
}

// itemBody converts editor text back to a body of the given content type
func itemBody(contentType, text string) outlook.ItemBody {
	if strings.EqualFold(contentType, outlook.ContentTypeHTML) {
		escaped := html.EscapeString(text)
		return outlook.ItemBody{
			ContentType: outlook.ContentTypeHTML,
			Content:     strings.ReplaceAll(escaped, "\n", "<br>\n"),
		}
	}
	return outlook.ItemBody{ContentType: outlook.ContentTypeText, Content: text}
}

// savedBody returns the body to store for the editor text. An HTML body
// whose text was not edited is kept as loaded.
func savedBody(loaded outlook.ItemBody, loadedText, text string) outlook.ItemBody {
	if text == loadedText && strings.EqualFold(loaded.ContentType, outlook.ContentTypeHTML) {
		return loaded
	}
	return itemBody(loaded.ContentType, text)
}

// attachmentEntries lists uploaded draft attachments first, then pending files
func attachmentEntries(comp *services.Composition) []attachmentEntry {
	if comp == nil {
		return nil
	}
	var entries []attachmentEntry
	for _, a := range comp.DraftAttachments {
		if a.IsInline {
			continue
		}
		entries = append(entries, attachmentEntry{name: a.Name, attachmentID: a.ID, pending: -1})
	}
	for i, p := range comp.State.Attachments {
		entries = append(entries, attachmentEntry{name: p.Name, pending: i})
	}
	return entries
}

func (c *CompositionPanel) renderAttachments(comp *services.Composition) {
	current := c.attachments.GetCurrentItem()
	c.attachments.Clear()
	c.entries = attachmentEntries(comp)
	if len(c.entries) == 0 {
		c.attachments.AddItem("No attachments", "", 0, nil)
		return
	}

	byID := make(map[string]outlook.Attachment)
	if comp != nil {
		for _, a := range comp.DraftAttachments {
			byID[a.ID] = a
		}
	}
	for _, e := range c.entries {
		var line string
		if e.pending < 0 {
			line = render.FormatAttachmentLine(byID[e.attachmentID])
		} else {
			line = fmt.Sprintf("%s (%s, pending)", e.name, render.FormatSize(comp.State.Attachments[e.pending].Size))
		}
		c.attachments.AddItem(tview.Escape(line), "", 0, nil)
	}
	if current >= len(c.entries) {
		current = len(c.entries) - 1
	}
	if current > 0 {
		c.attachments.SetCurrentItem(current)
	}
}

// removeSelectedAttachment drops the highlighted pending file, or deletes the
// highlighted attachment from the draft being edited
func (c *CompositionPanel) removeSelectedAttachment() {
	idx := c.attachments.GetCurrentItem()
	if idx < 0 || idx >= len(c.entries) {
		c.setStatus("No attachment selected", true)
		return
	}
	entry := c.entries[idx]

	if entry.pending >= 0 {
		if err := c.app.composition.RemovePendingAttachment(entry.pending); err != nil {
			c.report(err)
			return
		}
		c.renderAttachments(c.app.composition.Current())
		c.setStatus("Removed "+entry.name, false)
		return
	}

	c.setStatus("Removing "+entry.name+"...", false)
	go func() {
		err := c.app.composition.RemoveDraftAttachment(c.app.ctx, entry.attachmentID)
		c.app.queue(func() {
			if err != nil {
				c.report(err)
				return
			}
			c.renderAttachments(c.app.composition.Current())
			c.setStatus("Removed "+entry.name, false)
		})
	}()
}

func (c *CompositionPanel) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	switch ev.Key() {
	case tcell.KeyEscape:
		c.cancel()
		return nil
	case tcell.KeyCtrlS:
		c.send()
		return nil
	case tcell.KeyCtrlD:
		c.saveDraft()
		return nil
	case tcell.KeyCtrlB:
		c.app.SetFocus(c.body)
		return nil
	case tcell.KeyCtrlT:
		c.app.SetFocus(c.headers)
		return nil
	case tcell.KeyCtrlL:
		c.app.SetFocus(c.attachments)
		return nil
	case tcell.KeyTab, tcell.KeyBacktab:
		if c.body.HasFocus() {
			if ev.Key() == tcell.KeyTab {
				c.app.SetFocus(c.buttons)
			} else {
				c.app.SetFocus(c.headers)
			}
			return nil
		}
	}
	return ev
}

// sync pushes the form fields into the open composition
func (c *CompositionPanel) sync() error {
	comp := c.app.composition.Current()
	if comp == nil {
		return services.ErrNotComposing
	}
	if err := c.app.composition.SetRecipientsFromText(c.toField.GetText(), c.ccField.GetText(), c.bccField.GetText()); err != nil {
		return err
	}
	body := savedBody(c.loadedBody, c.loadedText, c.body.GetText())
	return c.app.composition.Update(func(st *services.ComposeState) {
		st.Subject = strings.TrimSpace(c.subject.GetText())
		st.Body = body
		st.SaveToSentItems = c.saveToSent.IsChecked()
	})
}

func (c *CompositionPanel) addAttachment(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	att, err := services.FileAttachment(path)
	if err == nil {
		err = c.app.composition.AddAttachment(att)
	}
	if err != nil {
		c.setStatus(fmt.Sprintf("Cannot attach %s: %v", path, err), true)
		return
	}
	c.attachField.SetText("")
	c.renderAttachments(c.app.composition.Current())
	c.setStatus("Attached "+att.Name, false)
}

func (c *CompositionPanel) setStatus(msg string, isErr bool) {
	color := c.app.Theme.Status.InfoColor.Color()
	if isErr {
		color = c.app.Theme.Status.ErrorColor.Color()
	}
	c.status.SetText(colorTag(color) + tview.Escape(msg))
}

func (c *CompositionPanel) send() {
	if err := c.sync(); err != nil {
		c.report(err)
		return
	}
	if !c.app.composition.CanSend() {
		c.setStatus("A recipient and a subject are required", true)
		return
	}
	c.setStatus("Sending...", false)
	go func() {
		err := c.app.composition.Send(c.app.ctx)
		c.app.queue(func() {
			if err != nil {
				c.report(err)
				return
			}
			c.app.closeCompose()
			c.app.errorHandler.ShowSuccess(c.app.ctx, "Message sent")
			c.app.renderMailbox()
		})
	}()
}

func (c *CompositionPanel) saveDraft() {
	if err := c.sync(); err != nil {
		c.report(err)
		return
	}
	comp := c.app.composition.Current()
	if comp == nil {
		return
	}
	editing := comp.Mode == services.ComposeEditingDraft
	c.setStatus("Saving draft...", false)
	go func() {
		var res *services.DraftResult
		var err error
		if editing {
			res, err = c.app.composition.UpdateDraft(c.app.ctx)
		} else {
			res, err = c.app.composition.SaveDraft(c.app.ctx)
		}
		c.app.queue(func() {
			if err != nil {
				c.report(err)
				return
			}
			c.app.closeCompose()
			if n := len(res.FailedAttachments); n > 0 {
				c.app.errorHandler.ShowWarning(c.app.ctx, fmt.Sprintf("Draft saved; %d attachment(s) failed to upload", n))
			} else {
				c.app.errorHandler.ShowSuccess(c.app.ctx, "Draft saved")
			}
			c.app.renderMailbox()
		})
	}()
}

func (c *CompositionPanel) cancel() {
	if err := c.app.composition.Cancel(); err != nil {
		c.report(err)
		return
	}
	c.app.closeCompose()
}

func (c *CompositionPanel) report(err error) {
	switch {
	case errors.Is(err, services.ErrOperationInProgress):
		c.setStatus("Another operation is still running", true)
	case errors.Is(err, services.ErrNoActiveDraft):
		c.setStatus("Only attachments of a saved draft can be deleted", true)
	case errors.Is(err, services.ErrComposeIncomplete):
		c.setStatus("A recipient and a subject are required", true)
	default:
		c.setStatus(err.Error(), true)
	}
}

// openCompose opens an empty composition
func (a *App) openCompose() {
	comp, err := a.composition.OpenCompose()
	if err != nil {
		a.errorHandler.ShowError(a.ctx, fmt.Sprintf("Cannot compose: %v", err))
		return
	}
	a.showCompose("New message", comp)
}

// editDraft opens the newest draft of the selected conversation for editing
func (a *App) editDraft() {
	draft, ok := a.draftInThread()
	if !ok {
		a.errorHandler.ShowWarning(a.ctx, "No draft in this conversation")
		return
	}
	a.errorHandler.ShowProgress(a.ctx, "Loading draft...")
	go func() {
		comp, err := a.composition.OpenEditDraft(a.ctx, draft)
		a.errorHandler.ClearProgress()
		a.queue(func() {
			if err != nil {
				a.errorHandler.ShowError(a.ctx, fmt.Sprintf("Cannot edit draft: %v", err))
				return
			}
			a.showCompose("Edit draft", comp)
		})
	}()
}

func (a *App) showCompose(title string, comp *services.Composition) {
	panel := newCompositionPanel(a, comp)
	panel.SetBorder(true).
		SetBorderColor(a.Theme.Frame.FocusColor.Color()).
		SetTitle(fmt.Sprintf(" %s  (Ctrl+S send, Ctrl+D save, Ctrl+B body, Ctrl+T headers, Ctrl+L attachments, Esc cancel) ", title)).
		SetTitleColor(a.Theme.Frame.TitleColor.Color())
	a.composeOpen = true
	a.Pages.AddPage(composePage, panel, true, true)
	a.SetFocus(panel.headers)
}

func (a *App) closeCompose() {
	a.composeOpen = false
	if a.Pages.HasPage(composePage) {
		a.Pages.RemovePage(composePage)
	}
	a.setFocus(a.currentFocus)
}

// sendDraftSelected sends the newest draft of the selected conversation
func (a *App) sendDraftSelected() {
	draft, ok := a.draftInThread()
	if !ok {
		a.errorHandler.ShowWarning(a.ctx, "No draft in this conversation")
		return
	}
	subject := draft.Subject
	if subject == "" {
		subject = "(No subject)"
	}
	a.confirm("send-draft", fmt.Sprintf("Send draft %q?", subject), func() {
		a.run("Sending draft...", func(ctx context.Context) error {
			return a.composition.SendDraft(ctx, draft.ID)
		}, func() {
			a.errorHandler.ShowSuccess(a.ctx, "Draft sent")
		})
	})
}
