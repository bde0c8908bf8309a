package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/gomoji"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

const (
	maxGroupNameLength   = 100
	maxDescriptionLength = 1000
	maxClientMsgIDLength = 64
	maxMediaRefLength    = 512
)

type GroupInput struct {
	Name        string
	Description *string
	MaxMembers  int
}

func ValidateGroup(in GroupInput) ValidationErrors {
	errs := make(ValidationErrors)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		errs.Add("name", "Group name is required")
	} else if utf8.RuneCountInString(name) > maxGroupNameLength {
		errs.Add("name", "Group name is too long")
	}

	if in.Description != nil && utf8.RuneCountInString(*in.Description) > maxDescriptionLength {
		errs.Add("description", "Description is too long")
	}

	if in.MaxMembers < 1 {
		errs.Add("max_members", "Max members must be at least 1")
	}

	return errs
}

// ValidateGroupUpdate checks a partial update. Nil fields are left unchanged.
func ValidateGroupUpdate(name, description *string, maxMembers *int, memberCount int) ValidationErrors {
	errs := make(ValidationErrors)

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			errs.Add("name", "Group name cannot be empty")
		} else if utf8.RuneCountInString(trimmed) > maxGroupNameLength {
			errs.Add("name", "Group name is too long")
		}
	}

	if description != nil && utf8.RuneCountInString(*description) > maxDescriptionLength {
		errs.Add("description", "Description is too long")
	}

	if maxMembers != nil {
		switch {
		case *maxMembers < 1:
			errs.Add("max_members", "Max members must be at least 1")
		case *maxMembers < memberCount:
			errs.Add("max_members", fmt.Sprintf("Max members cannot be below the current member count (%d)", memberCount))
		}
	}

	return errs
}

type MessageInput struct {
	Content     string
	MediaRefs   []string
	ClientMsgID *string
}

func ValidateMessage(in MessageInput, maxContent, maxMedia int) ValidationErrors {
	errs := make(ValidationErrors)

	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.MediaRefs) == 0 {
		errs.Add("content", "Message must have content or media")
	} else if utf8.RuneCountInString(in.Content) > maxContent {
		errs.Add("content", fmt.Sprintf("Message content must be at most %d characters", maxContent))
	}

	if len(in.MediaRefs) > maxMedia {
		errs.Add("media_refs", fmt.Sprintf("At most %d media attachments are allowed", maxMedia))
	} else {
		for _, ref := range in.MediaRefs {
			if strings.TrimSpace(ref) == "" || len(ref) > maxMediaRefLength {
				errs.Add("media_refs", "Media reference is invalid")
				break
			}
		}
	}

	if in.ClientMsgID != nil {
		if *in.ClientMsgID == "" {
			errs.Add("client_msg_id", "Client message id cannot be empty")
		} else if len(*in.ClientMsgID) > maxClientMsgIDLength {
			errs.Add("client_msg_id", "Client message id is too long")
		}
	}

	return errs
}

func ValidateEdit(content string, maxContent int) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(content) == "" {
		errs.Add("content", "Message content is required")
	} else if utf8.RuneCountInString(content) > maxContent {
		errs.Add("content", fmt.Sprintf("Message content must be at most %d characters", maxContent))
	}

	return errs
}

// ValidateReaction accepts exactly one emoji, including multi-codepoint
// sequences such as flags and skin tones.
func ValidateReaction(emoji string) ValidationErrors {
	errs := make(ValidationErrors)

	if emoji == "" {
		errs.Add("emoji", "Emoji is required")
		return errs
	}

	found := gomoji.CollectAll(emoji)
	if len(found) != 1 || found[0].Character != emoji {
		errs.Add("emoji", "Reaction must be a single emoji")
	}

	return errs
}
