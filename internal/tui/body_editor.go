package tui

import (
	"strings"
	"unicode"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// BodyEditor is a multiline text editor built on a TextView. Esc, Tab and
// Backtab bubble up so the surrounding form keeps control of navigation.
type BodyEditor struct {
	*tview.TextView

	lines      [][]rune
	line, col  int
	changeFunc func(string)
}

// NewBodyEditor creates an empty editor
func NewBodyEditor() *BodyEditor {
	e := &BodyEditor{
		TextView: tview.NewTextView().
			SetDynamicColors(true).
			SetWrap(true).
			SetScrollable(true),
		lines: [][]rune{{}},
	}
	e.SetInputCapture(e.handleKey)
	e.updateDisplay()
	return e
}

// SetText replaces the content and moves the cursor to the start
func (e *BodyEditor) SetText(text string) *BodyEditor {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	e.lines = make([][]rune, len(parts))
	for i, p := range parts {
		e.lines[i] = []rune(p)
	}
	e.line, e.col = 0, 0
	e.updateDisplay()
	return e
}

// GetText returns the edited content
func (e *BodyEditor) GetText() string {
	parts := make([]string, len(e.lines))
	for i, l := range e.lines {
		parts[i] = string(l)
	}
	return strings.Join(parts, "\n")
}

// SetChangedFunc sets the callback run after every edit
func (e *BodyEditor) SetChangedFunc(fn func(string)) *BodyEditor {
	e.changeFunc = fn
	return e
}

// Cursor returns the cursor position as line and rune column
func (e *BodyEditor) Cursor() (int, int) {
	return e.line, e.col
}

func (e *BodyEditor) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyTab, tcell.KeyBacktab, tcell.KeyCtrlS:
		return ev
	case tcell.KeyEnter:
		e.insertNewline()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		e.backspace()
	case tcell.KeyDelete:
		e.deleteForward()
	case tcell.KeyLeft:
		e.moveLeft()
	case tcell.KeyRight:
		e.moveRight()
	case tcell.KeyUp:
		e.moveVertical(-1)
	case tcell.KeyDown:
		e.moveVertical(1)
	case tcell.KeyHome:
		e.col = 0
	case tcell.KeyEnd:
		e.col = len(e.lines[e.line])
	case tcell.KeyRune:
		if !unicode.IsPrint(ev.Rune()) {
			return ev
		}
		e.insert(ev.Rune())
	default:
		return ev
	}
	e.updateDisplay()
	return nil
}

func (e *BodyEditor) insert(r rune) {
	l := e.lines[e.line]
	l = append(l[:e.col], append([]rune{r}, l[e.col:]...)...)
	e.lines[e.line] = l
	e.col++
	e.changed()
}

func (e *BodyEditor) insertNewline() {
	l := e.lines[e.line]
	head := append([]rune{}, l[:e.col]...)
	tail := append([]rune{}, l[e.col:]...)
	e.lines[e.line] = head
	e.lines = append(e.lines[:e.line+1], append([][]rune{tail}, e.lines[e.line+1:]...)...)
	e.line++
	e.col = 0
	e.changed()
}

func (e *BodyEditor) backspace() {
	switch {
	case e.col > 0:
		l := e.lines[e.line]
		e.lines[e.line] = append(l[:e.col-1], l[e.col:]...)
		e.col--
	case e.line > 0:
		prev := e.lines[e.line-1]
		e.col = len(prev)
		e.lines[e.line-1] = append(prev, e.lines[e.line]...)
		e.lines = append(e.lines[:e.line], e.lines[e.line+1:]...)
		e.line--
	default:
		return
	}
	e.changed()
}

func (e *BodyEditor) deleteForward() {
	l := e.lines[e.line]
	switch {
	case e.col < len(l):
		e.lines[e.line] = append(l[:e.col], l[e.col+1:]...)
	case e.line < len(e.lines)-1:
		e.lines[e.line] = append(l, e.lines[e.line+1]...)
		e.lines = append(e.lines[:e.line+1], e.lines[e.line+2:]...)
	default:
		return
	}
	e.changed()
}

func (e *BodyEditor) moveLeft() {
	switch {
	case e.col > 0:
		e.col--
	case e.line > 0:
		e.line--
		e.col = len(e.lines[e.line])
	}
}

func (e *BodyEditor) moveRight() {
	switch {
	case e.col < len(e.lines[e.line]):
		e.col++
	case e.line < len(e.lines)-1:
		e.line++
		e.col = 0
	}
}

func (e *BodyEditor) moveVertical(delta int) {
	next := e.line + delta
	if next < 0 || next >= len(e.lines) {
		return
	}
	e.line = next
	e.col = min(e.col, len(e.lines[e.line]))
}

func (e *BodyEditor) changed() {
	if e.changeFunc != nil {
		e.changeFunc(e.GetText())
	}
}

// updateDisplay renders the text with the cursor cell in reverse video
func (e *BodyEditor) updateDisplay() {
	var b strings.Builder
	for i, l := range e.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i != e.line {
			b.WriteString(tview.Escape(string(l)))
			continue
		}
		b.WriteString(tview.Escape(string(l[:e.col])))
		cursor := " "
		rest := ""
		if e.col < len(l) {
			cursor = string(l[e.col])
			rest = string(l[e.col+1:])
		}
		b.WriteString("[::r]" + tview.Escape(cursor) + "[::-]")
		b.WriteString(tview.Escape(rest))
	}
	e.TextView.SetText(b.String())
	e.ScrollTo(max(e.line-2, 0), 0)
}
