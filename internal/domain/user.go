package domain

import (
	"github.com/google/uuid"
)

// User mirrors the identity provider's account record.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}
