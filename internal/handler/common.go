package handler

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"SkillSwap/internal/middleware"
	"SkillSwap/internal/model/dto"
	"SkillSwap/internal/service"
	"SkillSwap/pkg/errors"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/response"
)

// callerFrom 取出认证中间件写入的身份，缺失时已写入 401
func callerFrom(ctx context.Context, c *app.RequestContext) (service.Caller, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Error(ctx, c, errors.Unauthorized)
		return service.Caller{}, false
	}
	return service.Caller{UserID: claims.UserID, Name: claims.Name, AvatarURL: claims.AvatarURL}, true
}

// writeError 校验失败带上字段错误，5xx 记录日志
func writeError(ctx context.Context, c *app.RequestContext, err error) {
	var ve *service.ValidationError
	if stderrors.As(err, &ve) {
		details := dto.ValidationDetails{Errors: ve.Result.Errors}
		if first, ok := ve.Result.First(); ok {
			details.First = &first
		}
		response.ErrorWithDetails(ctx, c, err, map[string]interface{}{
			"errors": details.Errors,
			"first":  details.First,
		})
		return
	}

	var def errors.Definition
	if !stderrors.As(err, &def) || response.StatusFor(def.Code) >= http.StatusInternalServerError {
		logger.Logger.Error("Request failed",
			zap.String("method", string(c.Method())),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
	response.Error(ctx, c, err)
}
