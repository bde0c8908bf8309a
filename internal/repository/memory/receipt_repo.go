package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/repository"
)

type ReceiptRepo struct {
	db *DB
}

func NewReceiptRepo(db *DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

func (r *ReceiptRepo) MarkRead(_ context.Context, userID uuid.UUID, upTo *domain.Message, at time.Time) (*domain.Event, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	conv, ok := r.db.convs[upTo.ConversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	key := pairKey{conv.ID, userID}
	old := r.db.cursors[key]
	if upTo.Seq <= old {
		return nil, nil
	}
	r.db.cursors[key] = upTo.Seq

	readAt := at.UTC()
	log := r.db.logs[conv.ID]
	for seq := old + 1; seq <= upTo.Seq && seq <= int64(len(log)); seq++ {
		m := r.db.messages[log[seq-1]]
		if m.SenderID == userID || r.hasReceiptLocked(m.ID, userID) {
			continue
		}
		r.db.receipts[m.ID] = append(r.db.receipts[m.ID], domain.ReadReceipt{
			MessageID: m.ID,
			UserID:    userID,
			ReadAt:    readAt,
		})
	}

	return r.db.appendEvent(conv, domain.EventReceiptRead, userID, readAt, domain.ReceiptPayload{
		UserID:      userID,
		UpToID:      upTo.ID,
		LastReadSeq: upTo.Seq,
	})
}

func (r *ReceiptRepo) hasReceiptLocked(messageID, userID uuid.UUID) bool {
	for _, rr := range r.db.receipts[messageID] {
		if rr.UserID == userID {
			return true
		}
	}
	return false
}

func (r *ReceiptRepo) GetCursor(_ context.Context, conversationID, userID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.cursors[pairKey{conversationID, userID}], nil
}

func (r *ReceiptRepo) CountUnread(_ context.Context, conversationID, userID uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.countUnreadLocked(conversationID, userID, r.db.cursors[pairKey{conversationID, userID}]), nil
}

func (r *ReceiptRepo) ListByMessage(_ context.Context, messageID uuid.UUID) ([]domain.ReadReceipt, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]domain.ReadReceipt, len(r.db.receipts[messageID]))
	copy(out, r.db.receipts[messageID])
	return out, nil
}

// countUnreadLocked counts messages after cursor not sent by userID.
func (db *DB) countUnreadLocked(conversationID, userID uuid.UUID, cursor int64) int64 {
	var n int64
	log := db.logs[conversationID]
	for seq := cursor + 1; seq <= int64(len(log)); seq++ {
		if db.messages[log[seq-1]].SenderID != userID {
			n++
		}
	}
	return n
}
