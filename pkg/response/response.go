package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"SkillSwap/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// StatusFor 根据错误码映射 HTTP 状态码
func StatusFor(code string) int {
	switch code {
	case "RATE_LIMITED":
		return http.StatusTooManyRequests // 429
	case "INVALID_REQUEST", "INVALID_USER_ID", "ONBOARDING_STEP_INVALID", "USERNAME_INVALID":
		return http.StatusBadRequest // 400
	case "UNAUTHORIZED", "TOKEN_EXPIRED":
		return http.StatusUnauthorized // 401
	case "CSRF_INVALID":
		return http.StatusForbidden // 403
	case "USER_NOT_FOUND":
		return http.StatusNotFound // 404
	case "ALREADY_ONBOARDED", "USERNAME_TAKEN", "SUBMISSION_IN_FLIGHT", "SESSION_BUSY":
		return http.StatusConflict // 409
	case "VALIDATION_FAILED":
		return http.StatusUnprocessableEntity // 422
	case "SUBMISSION_FAILED":
		return http.StatusBadGateway // 502
	case "USERNAME_GENERATION_EXHAUSTED":
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

func resolve(err error) (int, string, string) {
	var def errors.Definition
	if stderrors.As(err, &def) {
		return StatusFor(def.Code), def.Code, def.Message
	}
	// 非业务错误不把内部信息暴露给调用方
	return http.StatusInternalServerError, errors.Internal.Code, errors.Internal.Message
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode, code, message := resolve(err)

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content（用于 DELETE 等操作）
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
