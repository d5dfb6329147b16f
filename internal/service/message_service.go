package service

import (
	"context"

	"whisperbox/internal/models"
	"whisperbox/internal/repository"
	"whisperbox/internal/validation"
)

// Inbox pagination bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// PaginationMeta describes one page of an inbox listing.
type PaginationMeta struct {
	TotalMessages int64 `json:"totalMessages"`
	TotalPages    int   `json:"totalPages"`
	CurrentPage   int   `json:"currentPage"`
	ItemsPerPage  int   `json:"itemsPerPage"`
	HasNextPage   bool  `json:"hasNextPage"`
	HasPrevPage   bool  `json:"hasPrevPage"`
}

// MessageService implements sending and managing direct messages.
type MessageService struct {
	users    repository.UserRepository
	messages repository.MessageRepository
}

// NewMessageService creates a MessageService.
func NewMessageService(users repository.UserRepository, messages repository.MessageRepository) *MessageService {
	return &MessageService{users: users, messages: messages}
}

// Send delivers a message to receiverID. A nil senderID makes the message
// anonymous. Unknown, frozen and unconfirmed receivers are indistinguishable
// from each other so senders cannot probe account state.
func (s *MessageService) Send(ctx context.Context, senderID *uint, receiverID uint, content string) (*models.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if senderID != nil && *senderID == receiverID {
		return nil, models.NewValidationError("Cannot send a message to yourself")
	}

	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	if receiver == nil || receiver.IsDeleted || !receiver.IsConfirmed {
		return nil, models.NewNotFoundError("Receiver not found")
	}

	message := &models.Message{
		Content:     content,
		ReceiverID:  receiverID,
		SenderID:    senderID,
		IsAnonymous: senderID == nil,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// ListInbox returns one page of the receiver's messages, newest first.
func (s *MessageService) ListInbox(ctx context.Context, receiverID uint, page, limit int) ([]models.Message, *PaginationMeta, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	messages, total, err := s.messages.ListInbox(ctx, receiverID, limit, (page-1)*limit)
	if err != nil {
		return nil, nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	meta := &PaginationMeta{
		TotalMessages: total,
		TotalPages:    totalPages,
		CurrentPage:   page,
		ItemsPerPage:  limit,
		HasNextPage:   page < totalPages,
		HasPrevPage:   page > 1,
	}
	return messages, meta, nil
}

// MarkRead marks a received message as viewed.
func (s *MessageService) MarkRead(ctx context.Context, userID, messageID uint) (*models.Message, error) {
	message, err := s.getOwned(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if !message.IsViewed {
		message.IsViewed = true
		if err := s.messages.Update(ctx, message); err != nil {
			return nil, err
		}
	}
	return message, nil
}

// SoftDelete hides a received message from the inbox.
func (s *MessageService) SoftDelete(ctx context.Context, userID, messageID uint) error {
	message, err := s.getOwned(ctx, userID, messageID)
	if err != nil {
		return err
	}
	message.IsDeleted = true
	return s.messages.Update(ctx, message)
}

// getOwned loads a live message and checks the caller is its receiver.
func (s *MessageService) getOwned(ctx context.Context, userID, messageID uint) (*models.Message, error) {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message == nil || message.IsDeleted {
		return nil, models.NewNotFoundError("Message not found")
	}
	if message.ReceiverID != userID {
		return nil, models.NewForbiddenError("Not allowed to access this message")
	}
	return message, nil
}

func validateContent(content string) error {
	if err := validation.ValidateMessageContent(content, models.MessageMinLen, models.MessageMaxLen); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}
