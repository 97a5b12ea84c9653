// internal/pkg/httpapi/response.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"lensmart/internal/pkg/apperr"
	"lensmart/internal/pkg/logger"
)

// ErrorBody 是所有错误响应的统一结构
type ErrorBody struct {
	Code    apperr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON 写出 JSON 响应
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}

// StatusOf 把错误码映射到 HTTP 状态
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeInsufficientStock, apperr.CodeInsufficientPoints, apperr.CodeAlreadyResolved, apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeRetryExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError 按错误码写出错误响应，缺口类错误附带准确的数量
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	body := ErrorBody{Code: code, Message: err.Error()}

	var stockErr *apperr.InsufficientStockError
	var pointsErr *apperr.InsufficientPointsError
	switch {
	case errors.As(err, &stockErr):
		body.Details = map[string]any{
			"productId": stockErr.ProductID,
			"requested": stockErr.Requested,
			"available": stockErr.Available,
			"shortfall": stockErr.Shortfall(),
		}
	case errors.As(err, &pointsErr):
		body.Details = map[string]any{
			"accountId": pointsErr.AccountID,
			"needed":    pointsErr.Needed,
			"available": pointsErr.Available,
			"shortfall": pointsErr.Shortfall(),
		}
	}

	status := StatusOf(code)
	if errors.Is(err, apperr.ErrForbidden) {
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Msg("request failed")
		body.Message = "internal error"
	}
	WriteJSON(ctx, w, status, body)
}

// Forbidden 写出 403，错误码仍为 UNAUTHORIZED
func Forbidden(ctx context.Context, w http.ResponseWriter, msg string) {
	WriteError(ctx, w, apperr.Forbidden("%s", msg))
}
