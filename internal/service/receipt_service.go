package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type ReceiptService struct {
	events
	access      membership
	receiptRepo repository.ReceiptRepository
	messageRepo repository.MessageRepository
	unread      *UnreadDispatcher
	now         func() time.Time
}

func NewReceiptService(
	receiptRepo repository.ReceiptRepository,
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
) *ReceiptService {
	return &ReceiptService{
		events:      events{logger: slog.Default().With("component", "receipts")},
		access:      membership{convRepo: convRepo},
		receiptRepo: receiptRepo,
		messageRepo: messageRepo,
		now:         time.Now,
	}
}

// SetUnreadDispatcher enables unread badge updates after the cursor moves.
func (s *ReceiptService) SetUnreadDispatcher(d *UnreadDispatcher) {
	s.unread = d
}

type ReadState struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	LastReadSeq    int64     `json:"last_read_seq"`
	UnreadCount    int64     `json:"unread_count"`
}

// MarkRead moves the caller's read cursor up to messageID. The cursor never
// moves backwards; marking an older message is a no-op.
func (s *ReceiptService) MarkRead(ctx context.Context, userID, conversationID, messageID uuid.UUID) (*ReadState, error) {
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	if msg == nil || msg.ConversationID != conversationID {
		return nil, ErrMessageNotFound
	}

	evt, err := s.receiptRepo.MarkRead(ctx, userID, msg, s.now())
	if err != nil {
		return nil, fmt.Errorf("marking read: %w", err)
	}
	if evt != nil {
		s.publish(ctx, evt)
		s.unread.CursorMoved(ctx, conversationID, userID)
	}

	return s.readState(ctx, conversationID, userID)
}

func (s *ReceiptService) UnreadCount(ctx context.Context, userID, conversationID uuid.UUID) (*ReadState, error) {
	if _, _, err := s.access.require(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.readState(ctx, conversationID, userID)
}

func (s *ReceiptService) readState(ctx context.Context, conversationID, userID uuid.UUID) (*ReadState, error) {
	cursor, err := s.receiptRepo.GetCursor(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting read cursor: %w", err)
	}
	count, err := s.receiptRepo.CountUnread(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("counting unread: %w", err)
	}
	return &ReadState{ConversationID: conversationID, LastReadSeq: cursor, UnreadCount: count}, nil
}

// Receipts lists who has read a message.
func (s *ReceiptService) Receipts(ctx context.Context, userID, messageID uuid.UUID) ([]domain.ReadReceipt, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if _, _, err := s.access.require(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}

	receipts, err := s.receiptRepo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	if receipts == nil {
		receipts = []domain.ReadReceipt{}
	}
	return receipts, nil
}
