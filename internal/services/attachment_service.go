package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ajramos/crm-mailbox/internal/outlook"
)

// AttachmentServiceImpl implements AttachmentService
type AttachmentServiceImpl struct {
	provider    AttachmentProvider
	errors      *ErrorState
	downloadDir string
	logger      *log.Logger
}

// NewAttachmentService creates a new attachment service. An empty downloadDir
// uses ~/Downloads/crm-mailbox.
func NewAttachmentService(provider AttachmentProvider, errs *ErrorState, downloadDir string) *AttachmentServiceImpl {
	if errs == nil {
		errs = NewErrorState()
	}
	return &AttachmentServiceImpl{
		provider:    provider,
		errors:      errs,
		downloadDir: downloadDir,
	}
}

// SetLogger sets the logger for debug output
func (s *AttachmentServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// List fetches attachment metadata for a message
func (s *AttachmentServiceImpl) List(ctx context.Context, messageID string) ([]outlook.Attachment, error) {
	if messageID == "" {
		return nil, fmt.Errorf("%w: messageID cannot be empty", ErrInvalidMessageID)
	}
	atts, err := s.provider.ListAttachments(ctx, messageID)
	if err != nil {
		s.errors.Report("Failed to load attachments", err)
		return nil, err
	}
	return atts, nil
}

// Download saves an attachment under the download directory using fileName
// (falling back to the provider's name) and returns the written path
func (s *AttachmentServiceImpl) Download(ctx context.Context, messageID, attachmentID, fileName string) (string, error) {
	if messageID == "" || attachmentID == "" {
		return "", fmt.Errorf("%w: messageID and attachmentID cannot be empty", ErrInvalidInput)
	}

	content, err := s.provider.DownloadAttachment(ctx, messageID, attachmentID)
	if err != nil {
		s.errors.Report("Download failed", err)
		return "", err
	}

	name := sanitizeFilename(fileName)
	if name == "" {
		name = sanitizeFilename(content.FileName)
	}
	if name == "" {
		name = "attachment" + getExtensionFromMimeType(content.ContentType)
	}

	dir := s.GetDefaultDownloadPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		err = fmt.Errorf("failed to create directory: %w", err)
		s.errors.Report("Download failed", err)
		return "", err
	}
	path := resolveFilenameConflict(filepath.Join(dir, name))
	if err := os.WriteFile(path, content.Data, 0o644); err != nil {
		err = fmt.Errorf("failed to write file: %w", err)
		s.errors.Report("Download failed", err)
		return "", err
	}

	if s.logger != nil {
		s.logger.Printf("AttachmentService: saved %s (%d bytes)", path, len(content.Data))
	}
	return path, nil
}

// Upload sends one local file to a message or draft. With refreshList the
// attachment list is re-fetched and returned; batch callers pass false and
// list once at the end.
func (s *AttachmentServiceImpl) Upload(ctx context.Context, messageID string, att PendingAttachment, refreshList bool) (*outlook.Attachment, []outlook.Attachment, error) {
	if messageID == "" {
		return nil, nil, fmt.Errorf("%w: messageID cannot be empty", ErrInvalidMessageID)
	}
	if att.Open == nil {
		return nil, nil, fmt.Errorf("%w: attachment %q has no content", ErrInvalidInput, att.Name)
	}

	r, err := att.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", att.Name, err)
	}
	defer r.Close()

	uploaded, err := s.provider.UploadAttachment(ctx, messageID, att.Name, r)
	if err != nil {
		return nil, nil, err
	}
	if s.logger != nil {
		s.logger.Printf("AttachmentService: uploaded %s to %s", att.Name, messageID)
	}
	if !refreshList {
		return uploaded, nil, nil
	}

	list, err := s.provider.ListAttachments(ctx, messageID)
	if err != nil {
		s.errors.Report("Failed to refresh attachments", err)
		return uploaded, nil, nil
	}
	return uploaded, list, nil
}

// Remove deletes an attachment. The caller refreshes whatever list it shows.
func (s *AttachmentServiceImpl) Remove(ctx context.Context, messageID, attachmentID string) error {
	if messageID == "" || attachmentID == "" {
		return fmt.Errorf("%w: messageID and attachmentID cannot be empty", ErrInvalidInput)
	}
	if err := s.provider.DeleteAttachment(ctx, messageID, attachmentID); err != nil {
		s.errors.Report("Failed to remove attachment", err)
		return err
	}
	return nil
}

// GetDefaultDownloadPath returns the download directory
func (s *AttachmentServiceImpl) GetDefaultDownloadPath() string {
	if s.downloadDir != "" {
		if strings.HasPrefix(s.downloadDir, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, s.downloadDir[2:])
			}
		}
		return s.downloadDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Downloads", "crm-mailbox")
	}
	return "./crm-mailbox-attachments"
}

// FileAttachment builds a pending attachment backed by a local file
func FileAttachment(path string) (PendingAttachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return PendingAttachment{}, fmt.Errorf("cannot attach %s: %w", path, err)
	}
	if info.IsDir() {
		return PendingAttachment{}, fmt.Errorf("%w: %s is a directory", ErrInvalidInput, path)
	}
	return PendingAttachment{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// AttachmentCategory groups an attachment for display
func AttachmentCategory(name, contentType string) string {
	contentType = strings.ToLower(contentType)
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.Contains(contentType, "pdf"), ext == ".pdf",
		strings.Contains(contentType, "word"), ext == ".doc", ext == ".docx",
		strings.HasPrefix(contentType, "text/plain"), ext == ".txt", ext == ".md":
		return "document"
	case strings.Contains(contentType, "sheet"), strings.Contains(contentType, "excel"),
		ext == ".xls", ext == ".xlsx", ext == ".csv":
		return "spreadsheet"
	case strings.Contains(contentType, "presentation"), strings.Contains(contentType, "powerpoint"),
		ext == ".ppt", ext == ".pptx":
		return "presentation"
	case strings.Contains(contentType, "zip"), strings.Contains(contentType, "compressed"),
		ext == ".zip", ext == ".tar", ext == ".gz", ext == ".rar":
		return "archive"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.Contains(contentType, "calendar"), ext == ".ics":
		return "calendar"
	default:
		return "file"
	}
}

// sanitizeFilename keeps only the final path element of a provider or user name
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// resolveFilenameConflict adds a _N suffix if the file already exists
func resolveFilenameConflict(originalPath string) string {
	if _, err := os.Stat(originalPath); os.IsNotExist(err) {
		return originalPath
	}

	dir := filepath.Dir(originalPath)
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	for i := 1; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", name, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, strconv.Itoa(os.Getpid()), ext))
}

// getExtensionFromMimeType returns a file extension for a content type
func getExtensionFromMimeType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "text/plain":
		return ".txt"
	case "text/csv":
		return ".csv"
	case "text/calendar":
		return ".ics"
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
