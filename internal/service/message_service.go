package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/config"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
	"github.com/vedran77/relay/pkg/validator"
)

type MessageService struct {
	events
	access      membership
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
	unread      *UnreadDispatcher
	limits      config.LimitsConfig
	now         func() time.Time
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	limits config.LimitsConfig,
) *MessageService {
	return &MessageService{
		events:      events{logger: slog.Default().With("component", "messages")},
		access:      membership{convRepo: convRepo},
		messageRepo: messageRepo,
		convRepo:    convRepo,
		limits:      limits,
		now:         time.Now,
	}
}

// SetUnreadDispatcher enables unread badge updates after sends.
func (s *MessageService) SetUnreadDispatcher(d *UnreadDispatcher) {
	s.unread = d
}

type SendMessageInput struct {
	Content     string     `json:"content"`
	MediaRefs   []string   `json:"media_refs,omitempty"`
	ReplyToID   *uuid.UUID `json:"reply_to_id,omitempty"`
	ClientMsgID *string    `json:"client_msg_id,omitempty"`
}

type EditMessageInput struct {
	Content string `json:"content"`
}

type ListMessagesQuery struct {
	Before *int64
	After  *int64
	Limit  int
}

// Send appends a message to the conversation log. Resending with the same
// client message id returns the message committed the first time.
func (s *MessageService) Send(ctx context.Context, userID, conversationID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	if errs := validator.ValidateMessage(validator.MessageInput{
		Content:     input.Content,
		MediaRefs:   input.MediaRefs,
		ClientMsgID: input.ClientMsgID,
	}, s.limits.MaxContentLength, s.limits.MaxMediaRefs); errs.HasErrors() {
		return nil, apperr.Validation(errs)
	}

	if input.ClientMsgID != nil {
		existing, err := s.messageRepo.GetByClientID(ctx, conversationID, userID, *input.ClientMsgID)
		if err != nil {
			return nil, fmt.Errorf("getting message by client id: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	if input.ReplyToID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *input.ReplyToID)
		if err != nil {
			return nil, fmt.Errorf("getting reply target: %w", err)
		}
		if parent == nil || parent.ConversationID != conversationID {
			return nil, ErrReplyNotFound
		}
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       userID,
		ClientMsgID:    input.ClientMsgID,
		MediaRefs:      input.MediaRefs,
		ReplyToID:      input.ReplyToID,
		CreatedAt:      s.now().UTC(),
	}
	if strings.TrimSpace(input.Content) != "" {
		content := input.Content
		msg.Content = &content
	}

	evt, err := s.messageRepo.Append(ctx, msg)
	switch {
	case errors.Is(err, repository.ErrConflict) && input.ClientMsgID != nil:
		// A concurrent retry with the same client id won.
		existing, getErr := s.messageRepo.GetByClientID(ctx, conversationID, userID, *input.ClientMsgID)
		if getErr != nil {
			return nil, fmt.Errorf("getting message by client id: %w", getErr)
		}
		if existing == nil {
			return nil, ErrDuplicateMessage
		}
		return existing, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrConversationNotFound
	case err != nil:
		return nil, fmt.Errorf("appending message: %w", err)
	}

	s.publish(ctx, evt)
	s.unread.MessageAppended(ctx, msg)
	return msg, nil
}

// List pages through a conversation's log. Before (or no cursor) returns
// newest first; After returns oldest first.
func (s *MessageService) List(ctx context.Context, userID, conversationID uuid.UUID, q ListMessagesQuery) (*domain.MessagePage, error) {
	if q.Before != nil && q.After != nil {
		return nil, apperr.Validation(map[string]string{"cursor": "Use either before or after, not both"})
	}
	if (q.Before != nil && *q.Before < 1) || (q.After != nil && *q.After < 0) {
		return nil, apperr.Validation(map[string]string{"cursor": "Cursor is out of range"})
	}
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	limit := repository.ClampLimit(q.Limit, s.limits.DefaultPageSize, s.limits.MaxPageSize)

	// Fetch limit+1 to know whether another page exists.
	messages, err := s.messageRepo.List(ctx, conversationID, repository.PageQuery{
		Before: q.Before,
		After:  q.After,
		Limit:  limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	page := &domain.MessagePage{Messages: messages, HasMore: hasMore}
	if hasMore {
		next := messages[len(messages)-1].Seq
		page.NextCursor = &next
	}
	return page, nil
}

func (s *MessageService) Edit(ctx context.Context, userID, messageID uuid.UUID, input EditMessageInput) (*domain.Message, error) {
	if errs := validator.ValidateEdit(input.Content, s.limits.MaxContentLength); errs.HasErrors() {
		return nil, apperr.Validation(errs)
	}

	msg, err := s.getLive(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.access.require(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrNotMessageOwner
	}

	updated, evt, err := s.messageRepo.Edit(ctx, messageID, userID, input.Content, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("editing message: %w", err)
	}

	s.publish(ctx, evt)
	return updated, nil
}

// Delete tombstones a message. The sender or a group admin may delete.
func (s *MessageService) Delete(ctx context.Context, userID, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.getLive(ctx, messageID)
	if err != nil {
		return nil, err
	}
	_, member, err := s.access.require(ctx, msg.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID && !member.IsAdmin() {
		return nil, ErrNotMessageOwner
	}

	deleted, evt, err := s.messageRepo.SoftDelete(ctx, messageID, userID, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting message: %w", err)
	}

	s.publish(ctx, evt)
	return deleted, nil
}

func (s *MessageService) getLive(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	if msg == nil || msg.Deleted {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}
