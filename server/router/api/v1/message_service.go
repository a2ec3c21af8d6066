package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/AliceSyndrome285/CradleAI/plugin/ai/msgindex"
	mutationerrors "github.com/AliceSyndrome285/CradleAI/server/internal/errors"
	"github.com/AliceSyndrome285/CradleAI/server/service/message"
	"github.com/AliceSyndrome285/CradleAI/store"
)

// StatusClientClosedRequest is returned when the caller went away mid-mutation.
const StatusClientClosedRequest = 499

// MessagesResponse is the envelope of every message endpoint.
type MessagesResponse struct {
	Success  bool                     `json:"success"`
	Messages []msgindex.ClientMessage `json:"messages,omitempty"`
	Code     string                   `json:"code,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

type editMessageRequest struct {
	Role string                   `json:"role" query:"role"`
	Text string                   `json:"text"`
	View []msgindex.ClientMessage `json:"view"`
}

type deleteMessageRequest struct {
	Role string                   `json:"role" query:"role"`
	View []msgindex.ClientMessage `json:"view"`
}

type regenerateMessageRequest struct {
	CharacterID  string                   `json:"characterId"`
	UserNickname string                   `json:"userNickname"`
	View         []msgindex.ClientMessage `json:"view"`
}

// ListMessages returns the conversation with fresh client ids.
// GET /api/v1/conversations/:id/messages
func (s *APIV1Service) ListMessages(c echo.Context) error {
	messages, err := s.MessageService.Messages(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, MessagesResponse{Error: "conversation not found"})
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Success: true, Messages: messages})
}

// EditMessage replaces the text of a message.
// PATCH /api/v1/conversations/:id/messages/:messageId
func (s *APIV1Service) EditMessage(c echo.Context) error {
	var body editMessageRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	role, ok := parseRole(body.Role)
	if !ok {
		return badRequest(c, "role must be user or model")
	}

	req := &message.EditRequest{
		ConversationID: c.Param("id"),
		MessageID:      c.Param("messageId"),
		Text:           body.Text,
		Settings:       s.settingsFor(c),
		View:           body.View,
	}
	edit := s.MessageService.EditAI
	if role == msgindex.RoleUser {
		edit = s.MessageService.EditUser
	}
	messages, err := edit(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Success: true, Messages: messages})
}

// DeleteMessage deletes a message.
// DELETE /api/v1/conversations/:id/messages/:messageId
func (s *APIV1Service) DeleteMessage(c echo.Context) error {
	var body deleteMessageRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	role, ok := parseRole(body.Role)
	if !ok {
		return badRequest(c, "role must be user or model")
	}

	req := &message.DeleteRequest{
		ConversationID: c.Param("id"),
		MessageID:      c.Param("messageId"),
		Settings:       s.settingsFor(c),
		View:           body.View,
	}
	remove := s.MessageService.DeleteAI
	if role == msgindex.RoleUser {
		remove = s.MessageService.DeleteUser
	}
	messages, err := remove(c.Request().Context(), req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Success: true, Messages: messages})
}

// RegenerateMessage rewrites an AI message and drops everything after it.
// POST /api/v1/conversations/:id/messages/:messageId/regenerate
func (s *APIV1Service) RegenerateMessage(c echo.Context) error {
	var body regenerateMessageRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	nickname := body.UserNickname
	if nickname == "" {
		nickname = s.Profile.UserNickname
	}

	messages, err := s.MessageService.Regenerate(c.Request().Context(), &message.RegenerateRequest{
		ConversationID: c.Param("id"),
		MessageID:      c.Param("messageId"),
		CharacterID:    body.CharacterID,
		UserNickname:   nickname,
		Settings:       s.settingsFor(c),
		View:           body.View,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Success: true, Messages: messages})
}

func (s *APIV1Service) fail(c echo.Context, err error) error {
	code := mutationerrors.GetCodeFromError(err, mutationerrors.ErrCodeUnexpected)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		slog.Error("message request failed", "path", c.Path(), "code", code, "error", err)
	}
	return c.JSON(status, MessagesResponse{Code: string(code), Error: err.Error()})
}

func statusFor(code mutationerrors.ErrorCode) int {
	switch code {
	case mutationerrors.ErrCodeMissingConversationOrCredentials:
		return http.StatusBadRequest
	case mutationerrors.ErrCodeMessageNotFound:
		return http.StatusNotFound
	case mutationerrors.ErrCodeMutationRejected:
		return http.StatusConflict
	case mutationerrors.ErrCodeContextCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, MessagesResponse{Error: msg})
}

// parseRole accepts the log tags as well as the client "bot" sender.
func parseRole(raw string) (msgindex.Role, bool) {
	switch raw {
	case "user":
		return msgindex.RoleUser, true
	case "model", "assistant", "bot":
		return msgindex.RoleModel, true
	}
	return "", false
}
