package model

// OnboardingCompletedMessage 引导完成事件，worker 据此发放新人徽章
type OnboardingCompletedMessage struct {
	MessageID   string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	UserID      string `json:"user_id"`    // 身份提供方 subject
	PublicID    string `json:"public_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	OccurredAt  string `json:"occurred_at"`
}
