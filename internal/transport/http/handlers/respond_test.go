package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/relay/internal/apperr"
	"github.com/vedran77/relay/internal/service"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		hasField bool
	}{
		{"not found", service.ErrMessageNotFound, http.StatusNotFound, "MESSAGE_NOT_FOUND", false},
		{"permission", service.ErrNotAdmin, http.StatusForbidden, "NOT_ADMIN", false},
		{"capacity", service.ErrGroupFull, http.StatusConflict, "GROUP_FULL", false},
		{"already member", service.ErrAlreadyMember, http.StatusConflict, "ALREADY_MEMBER", false},
		{"conflict", service.ErrDuplicateMessage, http.StatusConflict, "DUPLICATE_CLIENT_MSG_ID", false},
		{"transport", apperr.ErrTransport.Wrap(errors.New("nats down")), http.StatusServiceUnavailable, "TRANSPORT_ERROR", false},
		{"validation fields", apperr.Validation(map[string]string{"emoji": "Invalid emoji"}), http.StatusBadRequest, "VALIDATION_ERROR", true},
		{"validation code", service.ErrSelfConversation, http.StatusBadRequest, "SELF_CONVERSATION", false},
		{"wrapped", fmt.Errorf("joining: %w", service.ErrPrivateGroup), http.StatusForbidden, "PRIVATE_GROUP", false},
		{"unclassified", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			writeServiceError(rec, req, "test", tt.err)

			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error struct {
					Code    string            `json:"code"`
					Message string            `json:"message"`
					Fields  map[string]string `json:"fields"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.hasField, len(body.Error.Fields) > 0)
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}
}

func TestQueryInt64(t *testing.T) {
	rec := httptest.NewRecorder()
	v, ok := queryInt64(rec, httptest.NewRequest(http.MethodGet, "/x", nil), "after")
	assert.True(t, ok)
	assert.Nil(t, v)

	v, ok = queryInt64(rec, httptest.NewRequest(http.MethodGet, "/x?after=42", nil), "after")
	require.True(t, ok)
	assert.Equal(t, int64(42), *v)

	rec = httptest.NewRecorder()
	_, ok = queryInt64(rec, httptest.NewRequest(http.MethodGet, "/x?after=4x", nil), "after")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
