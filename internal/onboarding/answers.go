package onboarding

import "strconv"

// Proficiency 技能熟练度
type Proficiency string

const (
	ProficiencyBeginner     Proficiency = "Beginner"
	ProficiencyIntermediate Proficiency = "Intermediate"
	ProficiencyExpert       Proficiency = "Expert"
)

// Valid 判断熟练度是否属于固定集合
func (p Proficiency) Valid() bool {
	switch p {
	case ProficiencyBeginner, ProficiencyIntermediate, ProficiencyExpert:
		return true
	default:
		return false
	}
}

// OfferedSkill 用户可教授的技能（流程内的完整结构）
type OfferedSkill struct {
	Name        string      `json:"name"`
	Category    string      `json:"category,omitempty"`
	Proficiency Proficiency `json:"proficiency"`
}

// Answers 引导流程累积的答案，按步骤划分字段归属。
// 每个步骤只会写入自己拥有的字段。
type Answers struct {
	// Basic Info
	DisplayName string            `json:"display_name,omitempty"`
	Username    string            `json:"username,omitempty"`
	Bio         string            `json:"bio,omitempty"`
	Interests   []string          `json:"interests,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`

	// About You
	Occupation string   `json:"occupation,omitempty"`
	Location   string   `json:"location,omitempty"`
	Timezone   string   `json:"timezone,omitempty"`
	Age        *int     `json:"age,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Hobbies    []string `json:"hobbies,omitempty"`

	// Skills Offered
	SkillsOffered []OfferedSkill `json:"skills_offered,omitempty"`

	// Intent
	Intents     []string `json:"intents,omitempty"`
	IntentOther string   `json:"intent_other,omitempty"`

	// Skills Wanted
	LearningGoals []string `json:"learning_goals,omitempty"`

	// Availability
	Availability []string `json:"availability,omitempty"`

	// Wallet Connect（可选，地址和签名要么都有要么都没有）
	WalletAddress   string `json:"wallet_address,omitempty"`
	WalletSignature string `json:"wallet_signature,omitempty"`
}

// Clone 深拷贝，避免切片和 map 在会话之间共享
func (a Answers) Clone() Answers {
	out := a
	out.Interests = cloneStrings(a.Interests)
	out.Languages = cloneStrings(a.Languages)
	out.Hobbies = cloneStrings(a.Hobbies)
	out.Intents = cloneStrings(a.Intents)
	out.LearningGoals = cloneStrings(a.LearningGoals)
	out.Availability = cloneStrings(a.Availability)
	if a.SocialLinks != nil {
		out.SocialLinks = make(map[string]string, len(a.SocialLinks))
		for k, v := range a.SocialLinks {
			out.SocialLinks[k] = v
		}
	}
	if a.SkillsOffered != nil {
		out.SkillsOffered = append([]OfferedSkill(nil), a.SkillsOffered...)
	}
	if a.Age != nil {
		age := *a.Age
		out.Age = &age
	}
	return out
}

// Draft 单个步骤中尚未提交的表单输入。
// 与 Answers 不同，Draft 保存用户原样输入的值（例如年龄是文本，职业区分选项和自填）。
type Draft struct {
	DisplayName string            `json:"display_name"`
	Username    string            `json:"username"`
	Bio         string            `json:"bio"`
	Interests   []string          `json:"interests"`
	SocialLinks map[string]string `json:"social_links"`

	OccupationChoice string   `json:"occupation_choice"`
	OccupationOther  string   `json:"occupation_other"`
	Location         string   `json:"location"`
	Timezone         string   `json:"timezone"`
	Age              string   `json:"age"`
	Languages        []string `json:"languages"`
	Hobbies          []string `json:"hobbies"`

	SkillsOffered []OfferedSkill `json:"skills_offered"`

	Intents     []string `json:"intents"`
	IntentOther string   `json:"intent_other"`

	LearningGoals []string `json:"learning_goals"`

	Availability []string `json:"availability"`

	WalletAddress   string `json:"wallet_address"`
	WalletSignature string `json:"wallet_signature"`
}

// DraftFrom 根据已累积的答案生成草稿，用于回退后重新展示某一步
func DraftFrom(a Answers) Draft {
	d := Draft{
		DisplayName:     a.DisplayName,
		Username:        a.Username,
		Bio:             a.Bio,
		Interests:       cloneStrings(a.Interests),
		Location:        a.Location,
		Timezone:        a.Timezone,
		Languages:       cloneStrings(a.Languages),
		Hobbies:         cloneStrings(a.Hobbies),
		Intents:         cloneStrings(a.Intents),
		IntentOther:     a.IntentOther,
		LearningGoals:   cloneStrings(a.LearningGoals),
		Availability:    cloneStrings(a.Availability),
		WalletAddress:   a.WalletAddress,
		WalletSignature: a.WalletSignature,
	}
	if a.SocialLinks != nil {
		d.SocialLinks = make(map[string]string, len(a.SocialLinks))
		for k, v := range a.SocialLinks {
			d.SocialLinks[k] = v
		}
	}
	if a.SkillsOffered != nil {
		d.SkillsOffered = append([]OfferedSkill(nil), a.SkillsOffered...)
	}
	if a.Age != nil {
		d.Age = strconv.Itoa(*a.Age)
	}
	if a.Occupation != "" {
		if IsOccupationOption(a.Occupation) {
			d.OccupationChoice = a.Occupation
		} else {
			d.OccupationChoice = OptionOther
			d.OccupationOther = a.Occupation
		}
	}
	return d
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
