package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	KindDirect = "direct"
	KindGroup  = "group"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Conversation struct {
	ID             uuid.UUID  `json:"id"`
	Kind           string     `json:"kind"`
	DirectKey      *string    `json:"-"`
	Name           *string    `json:"name,omitempty"`
	Description    *string    `json:"description,omitempty"`
	OwnerID        *uuid.UUID `json:"owner_id,omitempty"`
	IconRef        *string    `json:"icon_ref,omitempty"`
	IsPublic       bool       `json:"is_public"`
	MaxMembers     int        `json:"max_members"`
	MemberCount    int        `json:"member_count"`
	LastMessageSeq int64      `json:"last_message_seq"`
	LastEventSeq   int64      `json:"last_event_seq"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (c *Conversation) IsDirect() bool { return c.Kind == KindDirect }

type Member struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

func (m *Member) IsAdmin() bool { return m != nil && m.Role == RoleAdmin }

// ConversationSummary is a conversation as seen by one member.
type ConversationSummary struct {
	Conversation
	UnreadCount int64 `json:"unread_count"`
	LastReadSeq int64 `json:"last_read_seq"`
	// Set for direct conversations.
	PeerID *uuid.UUID `json:"peer_id,omitempty"`
}

// DirectKey returns the normalized key of an unordered user pair.
func DirectKey(a, b uuid.UUID) string {
	u1, u2 := a.String(), b.String()
	if u1 > u2 {
		u1, u2 = u2, u1
	}
	return u1 + ":" + u2
}
