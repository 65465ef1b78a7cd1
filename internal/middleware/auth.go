package middleware

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	"SkillSwap/pkg/errors"
	"SkillSwap/pkg/response"
	"SkillSwap/pkg/token"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

func initAuthMiddleware() error {
	// 与 token 包共用密钥和有效期
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	mw, err := jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "SkillSwap API",
		Key:         sharedGenerator.Key,
		Timeout:     sharedGenerator.Timeout,
		MaxRefresh:  sharedGenerator.MaxRefresh,
		IdentityKey: sharedGenerator.IdentityKey,
		TimeFunc:    sharedGenerator.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims, err := token.ClaimsFromMap(jwt.ExtractClaims(ctx, c))
			if err != nil {
				return nil
			}
			return claims
		},

		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			_, ok := data.(token.Claims)
			return ok
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			response.Error(ctx, c, errors.Unauthorized.WithMessage(message))
		},

		TokenLookup:   "header: Authorization, query: token, cookie: jwt",
		TokenHeadName: "Bearer",
	})
	if err != nil {
		return fmt.Errorf("failed to create auth middleware: %w", err)
	}
	authMiddleware = mw
	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetClaims 从请求上下文中获取令牌声明
func GetClaims(c *app.RequestContext) (token.Claims, bool) {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return token.Claims{}, false
	}
	claims, ok := v.(token.Claims)
	return claims, ok && claims.UserID != ""
}

// GetUserID 从请求上下文中获取用户标识（身份提供方的 subject）
func GetUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	claims, ok := GetClaims(c)
	if !ok {
		return "", false
	}
	return claims.UserID, true
}
