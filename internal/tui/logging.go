package tui

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/ajramos/crm-mailbox/internal/config"
)

// InitLogger opens the file logger at path, or crm-mailbox.log under the
// default log directory when path is empty. Callers close the returned file.
func InitLogger(path string) (*log.Logger, io.Closer, error) {
	if path == "" {
		path = filepath.Join(config.DefaultLogDir(), "crm-mailbox.log")
	} else {
		path = config.ResolvePath(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(f, "[crm-mailbox] ", log.LstdFlags|log.Lmicroseconds), f, nil
}
