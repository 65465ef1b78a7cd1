package token

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"SkillSwap/config"
	"SkillSwap/pkg/errors"
)

const (
	// IdentityKey 身份提供方的用户标识（subject）
	IdentityKey = "uid"
	// ProfileNameKey / ProfileAvatarKey 可选的资料声明，用于预填基本信息
	ProfileNameKey   = "name"
	ProfileAvatarKey = "picture"
)

var (

	// 这个实例会被 middleware 和 token 包共同使用
	sharedGenerator *jwt.HertzJWTMiddleware
)

func Init() error {
	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(config.Cfg.JWTSecret),
		Timeout:     time.Duration(config.Cfg.JWTExpireMinutes) * time.Minute,
		MaxRefresh:  time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour,
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})

	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// Claims 访问令牌中与引导相关的声明
type Claims struct {
	UserID    string
	Name      string
	AvatarURL string
}

// GenerateAccessToken 签发访问令牌，身份提供方或本地联调时使用
func GenerateAccessToken(c Claims) (string, int, error) {
	if sharedGenerator == nil {
		return "", 0, errors.ErrTokenGeneratorNotInitialized
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(config.Cfg.JWTExpireMinutes) * time.Minute)

	claims := jwtv5.MapClaims{
		IdentityKey: c.UserID,
		"iss":       config.Cfg.JWTIssuer,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	}
	if c.Name != "" {
		claims[ProfileNameKey] = c.Name
	}
	if c.AvatarURL != "" {
		claims[ProfileAvatarKey] = c.AvatarURL
	}

	accessToken, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString([]byte(config.Cfg.JWTSecret))
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate access token: %w", err)
	}

	expiresIn := int(time.Until(expiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return accessToken, expiresIn, nil
}

// ParseAccessToken 校验访问令牌并取出声明
func ParseAccessToken(tokenString string) (Claims, error) {
	token, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(token *jwtv5.Token) (interface{}, error) {
		if token.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return []byte(config.Cfg.JWTSecret), nil
	})

	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return Claims{}, errors.ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwtv5.MapClaims)
	if !ok {
		return Claims{}, errors.ErrInvalidTokenClaims
	}

	return ClaimsFromMap(mapClaims)
}

// ClaimsFromMap 从已校验的声明中取出用户信息
func ClaimsFromMap(m map[string]interface{}) (Claims, error) {
	uid, ok := m[IdentityKey].(string)
	if !ok {

		if uidFloat, ok := m[IdentityKey].(float64); ok {
			uid = fmt.Sprintf("%.0f", uidFloat)
		} else {
			return Claims{}, errors.ErrUserIDNotFound
		}
	}
	if uid == "" {
		return Claims{}, errors.ErrUserIDNotFound
	}

	c := Claims{UserID: uid}
	c.Name, _ = m[ProfileNameKey].(string)
	c.AvatarURL, _ = m[ProfileAvatarKey].(string)
	return c, nil
}

// PeekClaims 不校验签名直接读取声明，仅供持有令牌但没有密钥的客户端展示和预填使用，
// 服务端鉴权必须走 ParseAccessToken
func PeekClaims(tokenString string) (Claims, error) {
	mapClaims := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(tokenString, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}
	return ClaimsFromMap(mapClaims)
}
