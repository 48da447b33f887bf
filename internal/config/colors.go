package config

import (
	"fmt"

	"github.com/derailed/tcell/v2"
)

// Color represents a color in the application
type Color string

const (
	// DefaultColor represents a default color
	DefaultColor Color = "default"

	// TransparentColor represents the terminal bg color
	TransparentColor Color = "-"
)

// NewColor returns a new color
func NewColor(c string) Color {
	return Color(c)
}

// String returns color as a tview tag color
func (c Color) String() string {
	if c.isHex() {
		return string(c)
	}
	if c == DefaultColor || c == TransparentColor || c == "" {
		return "-"
	}
	col := c.Color().TrueColor().Hex()
	if col < 0 {
		return "-"
	}
	return fmt.Sprintf("#%06x", col)
}

func (c Color) isHex() bool {
	return len(c) == 7 && c[0] == '#'
}

// Color returns a view color
func (c Color) Color() tcell.Color {
	if c == DefaultColor || c == TransparentColor || c == "" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(string(c)).TrueColor()
}

// MailColors defines colors for conversation states
type MailColors struct {
	UnreadColor     Color `yaml:"unreadColor"`
	ReadColor       Color `yaml:"readColor"`
	DraftColor      Color `yaml:"draftColor"`
	AttachmentColor Color `yaml:"attachmentColor"`
}

// FrameColors defines colors for UI frame elements
type FrameColors struct {
	BorderColor Color `yaml:"borderColor"`
	FocusColor  Color `yaml:"focusColor"`
	TitleColor  Color `yaml:"titleColor"`
}

// StatusColors defines colors for the status bar
type StatusColors struct {
	FgColor    Color `yaml:"fgColor"`
	ErrorColor Color `yaml:"errorColor"`
	InfoColor  Color `yaml:"infoColor"`
}

// BodyColors defines colors for body elements
type BodyColors struct {
	FgColor Color `yaml:"fgColor"`
	BgColor Color `yaml:"bgColor"`
}

// ColorsConfig defines the complete color configuration
type ColorsConfig struct {
	Body   BodyColors   `yaml:"body"`
	Frame  FrameColors  `yaml:"frame"`
	Mail   MailColors   `yaml:"mail"`
	Status StatusColors `yaml:"status"`
}

// DefaultColors returns the default color configuration
func DefaultColors() *ColorsConfig {
	return &ColorsConfig{
		Body: BodyColors{
			FgColor: NewColor("#f8f8f2"),
			BgColor: DefaultColor,
		},
		Frame: FrameColors{
			BorderColor: NewColor("#44475a"),
			FocusColor:  NewColor("#8be9fd"),
			TitleColor:  NewColor("#f8f8f2"),
		},
		Mail: MailColors{
			UnreadColor:     NewColor("#ffb86c"),
			ReadColor:       NewColor("#bfbfbf"),
			DraftColor:      NewColor("#f1fa8c"),
			AttachmentColor: NewColor("#50fa7b"),
		},
		Status: StatusColors{
			FgColor:    NewColor("#f8f8f2"),
			ErrorColor: NewColor("#ff5555"),
			InfoColor:  NewColor("#50fa7b"),
		},
	}
}
