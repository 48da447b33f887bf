package services

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// EmailServiceImpl implements EmailService
type EmailServiceImpl struct {
	provider  MessageActionProvider
	refresher Refresher
	errors    *ErrorState
	logger    *log.Logger
}

// NewEmailService creates a new email service
func NewEmailService(provider MessageActionProvider, refresher Refresher, errs *ErrorState) *EmailServiceImpl {
	if errs == nil {
		errs = NewErrorState()
	}
	return &EmailServiceImpl{
		provider:  provider,
		refresher: refresher,
		errors:    errs,
	}
}

// SetLogger sets the logger for debug output
func (s *EmailServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Reply replies to a message
func (s *EmailServiceImpl) Reply(ctx context.Context, messageID, comment string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message ID cannot be empty", ErrInvalidMessageID)
	}
	if err := s.provider.Reply(ctx, messageID, comment); err != nil {
		s.errors.Report("Failed to send reply", err)
		return err
	}
	s.done(ctx, "replied to %s", messageID)
	return nil
}

// Forward forwards a message to recipients given as free text
func (s *EmailServiceImpl) Forward(ctx context.Context, messageID, recipients, comment string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message ID cannot be empty", ErrInvalidMessageID)
	}
	to := ParseEmails(recipients)
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := s.provider.Forward(ctx, messageID, to, comment); err != nil {
		s.errors.Report("Failed to forward message", err)
		return err
	}
	s.done(ctx, "forwarded %s to %d recipients", messageID, len(to))
	return nil
}

// Move moves a message to a destination folder id
func (s *EmailServiceImpl) Move(ctx context.Context, messageID, destinationID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message ID cannot be empty", ErrInvalidMessageID)
	}
	if strings.TrimSpace(destinationID) == "" {
		return fmt.Errorf("%w: destination cannot be empty", ErrInvalidInput)
	}
	if err := s.provider.Move(ctx, messageID, destinationID); err != nil {
		s.errors.Report("Failed to move message", err)
		return err
	}
	s.done(ctx, "moved %s to %s", messageID, destinationID)
	return nil
}

// Delete deletes a message
func (s *EmailServiceImpl) Delete(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("%w: message ID cannot be empty", ErrInvalidMessageID)
	}
	if err := s.provider.DeleteMessage(ctx, messageID); err != nil {
		s.errors.Report("Failed to delete message", err)
		return err
	}
	s.done(ctx, "deleted %s", messageID)
	return nil
}

func (s *EmailServiceImpl) done(ctx context.Context, format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf("EmailService: "+format, args...)
	}
	if s.refresher != nil {
		_ = s.refresher.Refresh(ctx)
	}
}
