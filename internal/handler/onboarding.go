package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"SkillSwap/internal/model/dto"
	"SkillSwap/internal/service"
	"SkillSwap/pkg/response"
)

// OnboardingHandler 服务端托管的引导会话
type OnboardingHandler struct {
	svc *service.OnboardingService
}

func NewOnboardingHandler(svc *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{svc: svc}
}

// GetSteps 步骤表
// GET /v1/onboarding/steps
func (h *OnboardingHandler) GetSteps(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, h.svc.Steps())
}

// GetSession 打开或恢复会话，已完成引导时返回 redirect
// GET /v1/onboarding/session
func (h *OnboardingHandler) GetSession(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}
	h.respond(ctx, c)(h.svc.Session(ctx, caller))
}

// Advance 校验当前步骤并前进，失败返回 422 和字段错误
// POST /v1/onboarding/session/advance
func (h *OnboardingHandler) Advance(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}

	var req dto.AdvanceRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	h.respond(ctx, c)(h.svc.Advance(ctx, caller, req.Draft))
}

// Retreat 后退一步
// POST /v1/onboarding/session/retreat
func (h *OnboardingHandler) Retreat(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}
	h.respond(ctx, c)(h.svc.Retreat(ctx, caller))
}

// Reset 回到第一步
// POST /v1/onboarding/session/reset
func (h *OnboardingHandler) Reset(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}
	h.respond(ctx, c)(h.svc.Reset(ctx, caller))
}

// Submit 最后一步提交
// POST /v1/onboarding/session/submit
func (h *OnboardingHandler) Submit(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}

	var req dto.SubmitRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	data, err := h.svc.Submit(ctx, caller, req)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	response.Success(ctx, c, data)
}

// Events 长轮询完成事件，其它标签页提交成功后返回 completed 和跳转地址
// GET /v1/onboarding/session/events
func (h *OnboardingHandler) Events(ctx context.Context, c *app.RequestContext) {
	caller, ok := callerFrom(ctx, c)
	if !ok {
		return
	}

	data, err := h.svc.AwaitCompletion(ctx, caller)
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	response.Success(ctx, c, data)
}

func (h *OnboardingHandler) respond(ctx context.Context, c *app.RequestContext) func(dto.SessionData, error) {
	return func(data dto.SessionData, err error) {
		if err != nil {
			writeError(ctx, c, err)
			return
		}
		response.Success(ctx, c, data)
	}
}
