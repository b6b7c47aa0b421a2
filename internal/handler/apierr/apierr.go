// Package apierr 把服务层错误映射为 HTTP 状态码与错误码。
package apierr

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/ollama-tavern/internal/service/ai"
	chatService "github.com/zhouzirui/ollama-tavern/internal/service/chat"
	"github.com/zhouzirui/ollama-tavern/pkg/utils"
)

// Machine readable error codes carried next to the message.
const (
	CodeInvalidInput         = "invalid_input"
	CodeNotFound             = "not_found"
	CodeSessionBusy          = "session_busy"
	CodeTransportUnavailable = "transport_unavailable"
	CodeTransportFailure     = "transport_failure"
	CodeAborted              = "aborted"
	CodeInternal             = "internal"
)

// Classify returns the status and code for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrInvalidInput),
		errors.Is(err, chatService.ErrPersonaRequired),
		errors.Is(err, chatService.ErrModelRequired):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, chatService.ErrNotFound),
		errors.Is(err, chatService.ErrSessionNotFound),
		errors.Is(err, ai.ErrModelNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, chatService.ErrSessionBusy):
		return http.StatusConflict, CodeSessionBusy
	case errors.Is(err, ai.ErrTransportUnavailable):
		return http.StatusServiceUnavailable, CodeTransportUnavailable
	case errors.Is(err, chatService.ErrTransportFailure):
		return http.StatusBadGateway, CodeTransportFailure
	case errors.Is(err, chatService.ErrAborted):
		return http.StatusInternalServerError, CodeAborted
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// Respond writes err as a JSON error body.
func Respond(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := Classify(err)
	if logger != nil && status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.Int("status", status), zap.String("code", code), zap.Error(err))
	}
	utils.RespondErrorCode(w, status, code, err.Error())
}
