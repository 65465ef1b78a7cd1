package errors

import stderrors "errors"

// token 相关的内部错误，不直接返回给客户端。
var (
	ErrTokenGeneratorNotInitialized = stderrors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = stderrors.New("unexpected signing method")
	ErrInvalidToken                 = stderrors.New("invalid token")
	ErrInvalidTokenClaims           = stderrors.New("invalid token claims")
	ErrInvalidTokenType             = stderrors.New("invalid token type")
	ErrUserIDNotFound               = stderrors.New("user id not found in token")
)
