package model

// OnboardingStepInfo 步骤表中的一项，供前端渲染
type OnboardingStepInfo struct {
	Index  int      `json:"index"`
	Key    string   `json:"key"`
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}
