package dto

import (
	"SkillSwap/internal/model"
	"SkillSwap/internal/onboarding"
)

// ========== User 相关 DTO ==========

// UserRecordData 用户记录快照，id 为对外的 public id
type UserRecordData struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Onboarded   bool     `json:"onboarded"`
	Badges      []string `json:"badges,omitempty"`
	Reputation  int      `json:"reputation"`
}

// UserStatusData 用户状态数据
type UserStatusData struct {
	Exists    bool            `json:"exists"`
	Onboarded bool            `json:"onboarded"`
	User      *UserRecordData `json:"user,omitempty"`
}

// CheckUsernameRequest 用户名查重请求
type CheckUsernameRequest struct {
	Username string `json:"username"`
}

// CheckUsernameData 用户名查重结果。is_unique 对自己的用户名同样为 true
type CheckUsernameData struct {
	Username     string                  `json:"username"`
	IsUnique     bool                    `json:"is_unique"`
	Availability onboarding.Availability `json:"availability"`
}

// CompleteOnboardingData 完成引导的响应
type CompleteOnboardingData struct {
	User        UserRecordData `json:"user"`
	RedirectURL string         `json:"redirect_url"`
}

// FromRecord 状态查询的用户快照
func FromRecord(r *onboarding.UserRecord) *UserRecordData {
	if r == nil {
		return nil
	}
	return &UserRecordData{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
		Onboarded:   r.Onboarded,
	}
}

// FromUser 完整记录
func FromUser(u *model.User) UserRecordData {
	return UserRecordData{
		ID:          u.PublicID,
		Username:    u.UsernameValue(),
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Onboarded:   u.Onboarded,
		Badges:      u.Badges,
		Reputation:  u.Reputation,
	}
}

// FromStatus 转换状态
func FromStatus(s onboarding.Status) UserStatusData {
	return UserStatusData{
		Exists:    s.Exists,
		Onboarded: s.Onboarded,
		User:      FromRecord(s.User),
	}
}
