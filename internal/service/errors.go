package service

import "github.com/vedran77/relay/internal/apperr"

var (
	ErrConversationNotFound = apperr.NewCode(apperr.KindNotFound, "CONVERSATION_NOT_FOUND", "conversation not found")
	ErrGroupNotFound        = apperr.NewCode(apperr.KindNotFound, "GROUP_NOT_FOUND", "group not found")
	ErrUserNotFound         = apperr.NewCode(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrMemberNotFound       = apperr.NewCode(apperr.KindNotFound, "MEMBER_NOT_FOUND", "user is not a member of this conversation")
	ErrMessageNotFound      = apperr.NewCode(apperr.KindNotFound, "MESSAGE_NOT_FOUND", "message not found")
	ErrReplyNotFound        = apperr.NewCode(apperr.KindNotFound, "REPLY_NOT_FOUND", "replied-to message not found in this conversation")

	ErrNotMember       = apperr.NewCode(apperr.KindPermission, "NOT_MEMBER", "you are not a member of this conversation")
	ErrNotAdmin        = apperr.NewCode(apperr.KindPermission, "NOT_ADMIN", "only a group admin can perform this action")
	ErrNotMessageOwner = apperr.NewCode(apperr.KindPermission, "NOT_MESSAGE_OWNER", "only the message sender can perform this action")
	ErrPrivateGroup    = apperr.NewCode(apperr.KindPermission, "PRIVATE_GROUP", "this group can only be joined by invitation")

	ErrSelfConversation = apperr.NewCode(apperr.KindValidation, "SELF_CONVERSATION", "cannot start a conversation with yourself")
	ErrGroupFull        = apperr.NewCode(apperr.KindCapacity, "GROUP_FULL", "group has reached its member limit")
	ErrAlreadyMember    = apperr.NewCode(apperr.KindAlreadyMember, "ALREADY_MEMBER", "user is already a member of this group")
	ErrDuplicateMessage = apperr.NewCode(apperr.KindConflict, "DUPLICATE_CLIENT_MSG_ID", "client message id was already used")
)
