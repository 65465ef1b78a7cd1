package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// WithMessage 复制一份并替换提示信息，错误码不变。
func (d Definition) WithMessage(msg string) Definition {
	d.Message = msg
	return d
}

// Is 按错误码比较，便于 errors.Is 匹配带自定义信息的副本。
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	return ok && t.Code == d.Code
}

// 通用错误。
var (
	InvalidRequest = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	Internal       = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}
	RateLimited    = Definition{Code: "RATE_LIMITED", Message: "Too many requests"}
)

// 认证相关错误。
var (
	Unauthorized  = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidUserID = Definition{Code: "INVALID_USER_ID", Message: "Invalid user ID format"}
	TokenExpired  = Definition{Code: "TOKEN_EXPIRED", Message: "Token expired"}
	CSRFInvalid   = Definition{Code: "CSRF_INVALID", Message: "CSRF token invalid"}
)

// 用户模块错误。
var (
	UserNotFound                = Definition{Code: "USER_NOT_FOUND", Message: "User not found"}
	UsernameTaken               = Definition{Code: "USERNAME_TAKEN", Message: "Username is already taken"}
	UsernameInvalid             = Definition{Code: "USERNAME_INVALID", Message: "Username is invalid"}
	UsernameGenerationExhausted = Definition{Code: "USERNAME_GENERATION_EXHAUSTED", Message: "Could not generate a unique username"}
)

// 引导流程错误。
var (
	OnboardingStepInvalid = Definition{Code: "ONBOARDING_STEP_INVALID", Message: "Onboarding step invalid"}
	ValidationFailed      = Definition{Code: "VALIDATION_FAILED", Message: "Validation failed"}
	AlreadyOnboarded      = Definition{Code: "ALREADY_ONBOARDED", Message: "User already onboarded"}
	SubmissionFailed      = Definition{Code: "SUBMISSION_FAILED", Message: "Could not complete onboarding, please try again"}
	SubmissionInFlight    = Definition{Code: "SUBMISSION_IN_FLIGHT", Message: "Submission already in progress"}
	SessionBusy           = Definition{Code: "SESSION_BUSY", Message: "Onboarding session is being updated"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:              InvalidRequest,
	Internal.Code:                    Internal,
	RateLimited.Code:                 RateLimited,
	Unauthorized.Code:                Unauthorized,
	InvalidUserID.Code:               InvalidUserID,
	TokenExpired.Code:                TokenExpired,
	CSRFInvalid.Code:                 CSRFInvalid,
	UserNotFound.Code:                UserNotFound,
	UsernameTaken.Code:               UsernameTaken,
	UsernameInvalid.Code:             UsernameInvalid,
	UsernameGenerationExhausted.Code: UsernameGenerationExhausted,
	OnboardingStepInvalid.Code:       OnboardingStepInvalid,
	ValidationFailed.Code:            ValidationFailed,
	AlreadyOnboarded.Code:            AlreadyOnboarded,
	SubmissionFailed.Code:            SubmissionFailed,
	SubmissionInFlight.Code:          SubmissionInFlight,
	SessionBusy.Code:                 SessionBusy,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
