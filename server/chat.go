package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// maxInputRunes bounds user input length after sanitization.
const maxInputRunes = 1000

// envelope is the standard response wrapper.
type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type interactRequest struct {
	UserID    string            `json:"user_id" validate:"required"`
	Input     string            `json:"input" validate:"required"`
	SessionID string            `json:"session_id"`
	Context   map[string]string `json:"context"`
}

type disambiguateRequest struct {
	ConversationID int64  `json:"conversation_id" validate:"required"`
	UserChoice     string `json:"user_choice" validate:"required"`
}

// sanitizeInput strips dangerous characters before the length check.
func sanitizeInput(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ';', '<', '>', '\'', '"', '\\':
			return -1
		}
		return r
	}, input)
	return strings.TrimSpace(cleaned)
}

func (s *Server) handleInteract(c echo.Context) error {
	request := &interactRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, envelope{Message: "请求格式错误"})
	}
	if err := c.Validate(request); err != nil {
		return c.JSON(http.StatusBadRequest, envelope{Message: "user_id 和 input 为必填项"})
	}
	if !s.userLimits.allow(request.UserID) {
		return c.JSON(http.StatusTooManyRequests, envelope{Message: "请求过于频繁,请稍后再试"})
	}

	input := sanitizeInput(request.Input)
	if input == "" {
		return c.JSON(http.StatusBadRequest, envelope{Message: "输入不能为空"})
	}
	if len([]rune(input)) > maxInputRunes {
		return c.JSON(http.StatusBadRequest, envelope{Message: "输入过长,最多 1000 字符"})
	}

	result, err := s.orchestrator.HandleTurn(c.Request().Context(), request.UserID, request.SessionID, input)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, envelope{
			Message:   "系统处理出现问题,请稍后重试",
			RequestID: uuid.NewString(),
		})
	}
	return c.JSON(http.StatusOK, envelope{
		Success:   true,
		Data:      result,
		RequestID: result.RequestID,
	})
}

// handleDisambiguate routes the answer through the orchestrator so it is
// applied under the same per-session lock turns use.
func (s *Server) handleDisambiguate(c echo.Context) error {
	request := &disambiguateRequest{}
	if err := c.Bind(request); err != nil {
		return c.JSON(http.StatusBadRequest, envelope{Message: "请求格式错误"})
	}
	if err := c.Validate(request); err != nil {
		return c.JSON(http.StatusBadRequest, envelope{Message: "conversation_id 和 user_choice 为必填项"})
	}

	resolution, err := s.orchestrator.ResolveAmbiguityChoice(
		c.Request().Context(), request.ConversationID, request.UserChoice)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, envelope{Message: "处理失败"})
	}
	if resolution == nil {
		return c.JSON(http.StatusNotFound, envelope{Message: "没有待处理的歧义"})
	}
	if !resolution.Resolved {
		return c.JSON(http.StatusBadRequest, envelope{
			Message: "无法识别您的选择,请用序号回答",
			Data:    resolution.Choice,
		})
	}
	return c.JSON(http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"resolved_intent": resolution.Intent,
			"session_id":      resolution.Ambiguity.SessionID,
			"choice":          resolution.Choice,
		},
	})
}

func (s *Server) handleSessionSlots(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, envelope{Message: "session_id 为必填项"})
	}
	wire, err := s.orchestrator.SessionSlots(c.Request().Context(), sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, envelope{Message: "查询失败"})
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: wire})
}

func (s *Server) handleIntentStats(c echo.Context) error {
	stats, err := s.orchestrator.IntentStats(c.Request().Context(), c.Param("intent"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, envelope{Message: "查询失败"})
	}
	if stats == nil {
		return c.JSON(http.StatusNotFound, envelope{Message: "意图不存在"})
	}
	return c.JSON(http.StatusOK, envelope{Success: true, Data: stats})
}
