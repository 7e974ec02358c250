package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/IMBotPlatform/IMBotChat/pkg/ai"
)

// ctxSessionID 是 echo.Context 中记录会话 ID 的键，供请求日志使用。
const ctxSessionID = "session_id"

func sessionIDFrom(c echo.Context) string {
	sid, _ := c.Get(ctxSessionID).(string)
	return sid
}

const readinessTimeout = 2 * time.Second

type errorResponse struct {
	Error string `json:"error"`
}

// generateRequest 是 POST /generate 的请求体。inputs 必填，可以为空串。
type generateRequest struct {
	Inputs    *string `json:"inputs"`
	SessionID *string `json:"session_id"`
	Model     string  `json:"model"`
}

type generateResponse struct {
	Result    string   `json:"result"`
	SessionID string   `json:"session_id"`
	History   []string `json:"history"`
}

type historyResponse struct {
	SessionID string   `json:"session_id"`
	History   []string `json:"history"`
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		// JSON 合法但字段类型不符按校验失败处理
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "field " + typeErr.Field + " must be " + typeErr.Type.String()})
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Inputs == nil {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "inputs is required"})
	}

	var sessionID string
	if req.SessionID != nil {
		sessionID = *req.SessionID
	}
	var opts []ai.ChatOption
	if req.Model != "" {
		opts = append(opts, ai.WithModel(req.Model))
	}

	result, err := s.svc.Generate(c.Request().Context(), sessionID, *req.Inputs, opts...)
	if err != nil {
		c.Set(ctxSessionID, sessionID)
		return s.writeError(c, err)
	}
	c.Set(ctxSessionID, result.SessionID)

	return c.JSON(http.StatusOK, generateResponse{
		Result:    result.Output,
		SessionID: result.SessionID,
		History:   result.History,
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	sessionID := c.Param("id")
	c.Set(ctxSessionID, sessionID)

	limit := s.historyLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
		}
		limit = n
	}

	history, err := s.svc.History(c.Request().Context(), sessionID, limit)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, historyResponse{SessionID: sessionID, History: history})
}

func (s *Server) handleClearSession(c echo.Context) error {
	sessionID := c.Param("id")
	c.Set(ctxSessionID, sessionID)

	if err := s.svc.ClearSession(c.Request().Context(), sessionID); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	if err := s.svc.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// writeError 写出错误响应。500 只返回通用信息，完整错误写入日志。
func (s *Server) writeError(c echo.Context, err error) error {
	status := statusFor(err)
	if status != http.StatusInternalServerError {
		return c.JSON(status, errorResponse{Error: err.Error()})
	}
	s.logger.Error().Err(err).
		Str("uri", c.Request().RequestURI).
		Str("session_id", sessionIDFrom(c)).
		Msg("request failed")
	return c.JSON(status, errorResponse{Error: http.StatusText(status)})
}

// statusFor 将服务层错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, ai.ErrModelNotFound):
		return http.StatusBadRequest
	case errors.Is(err, ai.ErrGeneratorUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
