package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// themeFile is the on-disk layout of a theme
type themeFile struct {
	CRMMailbox *ColorsConfig `yaml:"crmMailbox"`
}

// LoadTheme reads a YAML theme and fills unset colors from the defaults.
// An empty path returns the defaults.
func LoadTheme(path string) (*ColorsConfig, error) {
	if path == "" {
		return DefaultColors(), nil
	}
	path = ResolvePath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}

	var theme themeFile
	if err := yaml.Unmarshal(data, &theme); err != nil {
		return nil, fmt.Errorf("failed to parse theme file: %w", err)
	}
	if theme.CRMMailbox == nil {
		return nil, fmt.Errorf("invalid theme file: missing crmMailbox section")
	}
	theme.CRMMailbox.fill(DefaultColors())
	return theme.CRMMailbox, nil
}

// SaveTheme writes a theme in the format LoadTheme reads
func SaveTheme(theme *ColorsConfig, path string) error {
	data, err := yaml.Marshal(themeFile{CRMMailbox: theme})
	if err != nil {
		return fmt.Errorf("failed to marshal theme: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write theme file: %w", err)
	}
	return nil
}

func (c *ColorsConfig) fill(d *ColorsConfig) {
	set := func(dst *Color, def Color) {
		if *dst == "" {
			*dst = def
		}
	}
	set(&c.Body.FgColor, d.Body.FgColor)
	set(&c.Body.BgColor, d.Body.BgColor)
	set(&c.Frame.BorderColor, d.Frame.BorderColor)
	set(&c.Frame.FocusColor, d.Frame.FocusColor)
	set(&c.Frame.TitleColor, d.Frame.TitleColor)
	set(&c.Mail.UnreadColor, d.Mail.UnreadColor)
	set(&c.Mail.ReadColor, d.Mail.ReadColor)
	set(&c.Mail.DraftColor, d.Mail.DraftColor)
	set(&c.Mail.AttachmentColor, d.Mail.AttachmentColor)
	set(&c.Status.FgColor, d.Status.FgColor)
	set(&c.Status.ErrorColor, d.Status.ErrorColor)
	set(&c.Status.InfoColor, d.Status.InfoColor)
}
