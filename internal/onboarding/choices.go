package onboarding

import "strings"

// OptionOther 选择后需要用户自行填写内容
const OptionOther = "Other"

// 职业选项
var OccupationOptions = []string{
	"Student",
	"Software Engineer",
	"Designer",
	"Teacher",
	"Entrepreneur",
	"Healthcare Professional",
	OptionOther,
}

// 使用 SkillSwap 的意图选项，"other" 需要补充说明
const IntentOptionOther = "other"

var IntentOptions = []string{
	"learn_new_skills",
	"teach_others",
	"find_mentor",
	"build_network",
	"collaborate_on_projects",
	IntentOptionOther,
}

// IsOccupationOption 判断是否为固定的职业选项
func IsOccupationOption(v string) bool {
	for _, opt := range OccupationOptions {
		if opt == v {
			return true
		}
	}
	return false
}

// IsIntentOption 判断是否为固定的意图选项
func IsIntentOption(v string) bool {
	for _, opt := range IntentOptions {
		if opt == v {
			return true
		}
	}
	return false
}

// EffectiveValue 选择 Other 时以自填内容为准，否则使用选项本身。
// 校验必须基于替换后的值进行。
func EffectiveValue(choice, other string) string {
	choice = strings.TrimSpace(choice)
	if strings.EqualFold(choice, OptionOther) {
		return strings.TrimSpace(other)
	}
	return choice
}
