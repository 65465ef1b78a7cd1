package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"SkillSwap/internal/model/dto"
	"SkillSwap/internal/onboarding"
	"SkillSwap/internal/service"
	"SkillSwap/pkg/response"
)

// UserHandler 引导流程依赖的用户接口
type UserHandler struct {
	users       *service.UserService
	redirectURL string
}

func NewUserHandler(users *service.UserService, redirectURL string) *UserHandler {
	return &UserHandler{users: users, redirectURL: redirectURL}
}

// GetUserStatus 获取用户是否存在、是否完成引导
// GET /v1/users/me/status
func (h *UserHandler) GetUserStatus(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}

	status, err := h.users.UserStatus(ctx, caller.UserID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.FromStatus(status))
}

// CheckUsername 用户名查重，自己当前的用户名视为可用
// POST /v1/users/check-username
func (h *UserHandler) CheckUsername(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}

	var req dto.CheckUsernameRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	availability, err := h.users.CheckUsername(ctx, caller.UserID, req.Username)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	username, _ := onboarding.NormalizeUsername(req.Username)
	response.Success(ctx, c, dto.CheckUsernameData{
		Username:     username,
		IsUnique:     availability != onboarding.TakenByOther,
		Availability: availability,
	})
}

// CompleteOnboarding 写入引导结果。已完成引导返回 409 ALREADY_ONBOARDED
// POST /v1/onboarding/complete
func (h *UserHandler) CompleteOnboarding(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}

	var payload onboarding.Payload
	if err := c.BindJSON(&payload); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	u, err := h.users.CompleteOnboarding(ctx, caller.UserID, payload)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	response.Success(ctx, c, dto.CompleteOnboardingData{
		User:        dto.FromUser(u),
		RedirectURL: h.redirectURL,
	})
}
