package dto

import "SkillSwap/internal/onboarding"

// ========== 引导会话 DTO ==========

// SessionData 托管会话的当前状态
type SessionData struct {
	Step        int                `json:"step"`
	StepKey     string             `json:"step_key"`
	StepName    string             `json:"step_name"`
	StepCount   int                `json:"step_count"`
	Answers     onboarding.Answers `json:"answers"`
	Draft       onboarding.Draft   `json:"draft"`
	Redirect    bool               `json:"redirect"`
	RedirectURL string             `json:"redirect_url,omitempty"`
}

// AdvanceRequest 点击"继续"
type AdvanceRequest struct {
	Draft onboarding.Draft `json:"draft"`
}

// SubmitRequest 最后一步提交，skip_wallet 表示跳过钱包连接
type SubmitRequest struct {
	Draft      onboarding.Draft `json:"draft"`
	SkipWallet bool             `json:"skip_wallet"`
}

// SubmitData 提交结果
type SubmitData struct {
	Outcome     onboarding.Outcome `json:"outcome"`
	Redirect    bool               `json:"redirect"`
	RedirectURL string             `json:"redirect_url"`
}

// CompletionEvent 长轮询结果。completed 为 false 表示等待超时，客户端重新发起即可
type CompletionEvent struct {
	Completed   bool   `json:"completed"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// ValidationDetails 422 响应中的 details
type ValidationDetails struct {
	Errors []onboarding.FieldError `json:"errors"`
	First  *onboarding.FieldError  `json:"first,omitempty"`
}
