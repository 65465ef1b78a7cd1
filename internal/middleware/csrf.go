package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/csrf"
	"github.com/hertz-contrib/sessions"
	"github.com/hertz-contrib/sessions/cookie"

	"SkillSwap/pkg/errors"
	"SkillSwap/pkg/response"
)

const (
	csrfSessionName = "skillswap-csrf"
	// CSRFHeader 客户端回传令牌使用的请求头，安全方法的响应也会带上它
	CSRFHeader = "X-CSRF-Token"
)

// CSRFMiddleware 托管引导会话的写操作需要校验 CSRF 令牌。
// 令牌绑定在 cookie 会话里，GET 响应通过 X-CSRF-Token 头下发。
func CSRFMiddleware(secret string) []app.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
	})

	return []app.HandlerFunc{
		sessions.New(csrfSessionName, store),
		csrf.New(
			csrf.WithSecret(secret),
			csrf.WithKeyLookUp("header:"+CSRFHeader),
			csrf.WithErrorFunc(func(ctx context.Context, c *app.RequestContext) {
				response.Error(ctx, c, errors.CSRFInvalid)
				c.Abort()
			}),
		),
		func(ctx context.Context, c *app.RequestContext) {
			c.Header(CSRFHeader, csrf.GetToken(c))
			c.Next(ctx)
		},
	}
}
