package model

import "time"

// User 用户模型。Subject 是身份提供方给出的稳定标识，
// 引导完成前 Username 为空（数据库中为 NULL，不参与唯一约束）。
type User struct {
	BaseModel
	PublicID    string  `gorm:"uniqueIndex;type:varchar(32);not null" json:"public_id"`
	Subject     string  `gorm:"uniqueIndex;type:varchar(128);not null" json:"-"`
	Username    *string `gorm:"uniqueIndex;type:varchar(30)" json:"username"`
	DisplayName string  `gorm:"type:varchar(50);not null;default:''" json:"display_name"`
	AvatarURL   string  `gorm:"type:text;not null;default:''" json:"avatar_url"`
	Bio         string  `gorm:"type:varchar(500);not null;default:''" json:"bio"`

	Interests   []string          `gorm:"type:jsonb;serializer:json;default:'[]'" json:"interests"`
	SocialLinks map[string]string `gorm:"type:jsonb;serializer:json;default:'{}'" json:"social_links"`

	Occupation string   `gorm:"type:varchar(100);not null;default:''" json:"occupation"`
	Location   string   `gorm:"type:varchar(100);not null;default:''" json:"location"`
	Timezone   string   `gorm:"type:varchar(16);not null;default:''" json:"timezone"`
	Age        *int     `gorm:"type:smallint" json:"age,omitempty"`
	Languages  []string `gorm:"type:jsonb;serializer:json;default:'[]'" json:"languages"`
	Hobbies    []string `gorm:"type:jsonb;serializer:json;default:'[]'" json:"hobbies"`

	// Skills 只保存名称，SkillsDetail 保存完整结构
	Skills        []string      `gorm:"type:jsonb;serializer:json;default:'[]'" json:"skills"`
	SkillsDetail  []SkillDetail `gorm:"type:jsonb;serializer:json;default:'[]'" json:"skills_detail"`
	LearningGoals []string      `gorm:"type:jsonb;serializer:json;default:'[]'" json:"learning_goals"`
	Intents       []string      `gorm:"type:jsonb;serializer:json;default:'[]'" json:"intents"`
	IntentOther   string        `gorm:"type:varchar(200);not null;default:''" json:"intent_other"`
	Availability  []string      `gorm:"type:jsonb;serializer:json;default:'[]'" json:"availability"`

	WalletAddress   string `gorm:"type:varchar(42);not null;default:''" json:"wallet_address,omitempty"`
	WalletSignature string `gorm:"type:varchar(132);not null;default:''" json:"-"`

	Badges     []string `gorm:"type:jsonb;serializer:json;default:'[]'" json:"badges"`
	Reputation int      `gorm:"not null;default:0" json:"reputation"`

	Onboarded   bool       `gorm:"not null;default:false;index:idx_users_onboarded" json:"onboarded"`
	OnboardedAt *time.Time `json:"onboarded_at,omitempty"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// SkillDetail 可教授技能的完整结构
type SkillDetail struct {
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Proficiency string `json:"proficiency"`
}

// UsernameValue Username 为空时返回空字符串
func (u *User) UsernameValue() string {
	if u.Username == nil {
		return ""
	}
	return *u.Username
}

// HasBadge 是否已拥有某个徽章
func (u *User) HasBadge(badge string) bool {
	for _, b := range u.Badges {
		if b == badge {
			return true
		}
	}
	return false
}
