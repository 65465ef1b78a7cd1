package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/route"

	"SkillSwap/internal/handler"
	"SkillSwap/internal/middleware"
)

// Options 路由依赖
type Options struct {
	Users      *handler.UserHandler
	Onboarding *handler.OnboardingHandler

	RateLimitEnabled       bool
	RateLimitRPS           int
	UsernameCheckPerMinute int

	// CSRFSecret 为空时托管会话不校验 CSRF
	CSRFSecret string
}

func Register(h *server.Hertz, opts Options) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	RegisterRoutes(h.Engine, opts)
}

// RegisterRoutes 只注册路由，不挂全局中间件
func RegisterRoutes(e *route.Engine, opts Options) {
	e.GET("/healthz", handler.Healthz)

	v1 := e.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	if opts.RateLimitEnabled && opts.RateLimitRPS > 0 {
		v1.Use(middleware.RateLimitMiddleware(middleware.GeneralRateLimitConfig(opts.RateLimitRPS)))
	}

	// 用户相关路由
	users := v1.Group("/users")
	{
		users.GET("/me/status", opts.Users.GetUserStatus)
		if opts.RateLimitEnabled && opts.UsernameCheckPerMinute > 0 {
			users.POST("/check-username",
				middleware.RateLimitMiddleware(middleware.UsernameCheckRateLimitConfig(opts.UsernameCheckPerMinute)),
				opts.Users.CheckUsername,
			)
		} else {
			users.POST("/check-username", opts.Users.CheckUsername)
		}
	}

	// 引导路由
	onboarding := v1.Group("/onboarding")
	{
		onboarding.GET("/steps", opts.Onboarding.GetSteps)
		onboarding.POST("/complete", opts.Users.CompleteOnboarding)

		// 托管会话
		session := onboarding.Group("/session")
		if opts.CSRFSecret != "" {
			session.Use(middleware.CSRFMiddleware(opts.CSRFSecret)...)
		}
		{
			session.GET("", opts.Onboarding.GetSession)
			session.GET("/events", opts.Onboarding.Events)
			session.POST("/advance", opts.Onboarding.Advance)
			session.POST("/retreat", opts.Onboarding.Retreat)
			session.POST("/reset", opts.Onboarding.Reset)
			session.POST("/submit", opts.Onboarding.Submit)
		}
	}
}
