package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultLanguage 未填写偏好语言时的默认值
const DefaultLanguage = "English"

// Payload 提交给 complete-onboarding 的结构
type Payload struct {
	DisplayName string            `json:"display_name"`
	Username    string            `json:"username"`
	Bio         string            `json:"bio"`
	Interests   []string          `json:"interests"`
	SocialLinks map[string]string `json:"social_links,omitempty"`

	Occupation string   `json:"occupation"`
	Location   string   `json:"location"`
	Timezone   string   `json:"timezone"`
	Age        *int     `json:"age,omitempty"`
	Languages  []string `json:"languages"`
	Hobbies    []string `json:"hobbies"`

	// Skills 只保留技能名称，SkillsDetail 保留完整结构
	Skills       []string       `json:"skills"`
	SkillsDetail []OfferedSkill `json:"skills_detail"`

	Intents       []string `json:"intents"`
	IntentOther   string   `json:"intent_other,omitempty"`
	LearningGoals []string `json:"learning_goals"`
	Availability  []string `json:"availability"`

	WalletAddress   string `json:"wallet_address,omitempty"`
	WalletSignature string `json:"wallet_signature,omitempty"`
}

// Project 把累积答案投影为提交结构，并补齐可选字段的默认值
func Project(a Answers) Payload {
	return ProjectWith(a, DefaultLanguage, DetectTimezone)
}

// ProjectWith 同 Project，可指定默认语言和时区探测
func ProjectWith(a Answers, defaultLanguage string, detect func() string) Payload {
	a = a.Clone()

	p := Payload{
		DisplayName:     a.DisplayName,
		Username:        a.Username,
		Bio:             a.Bio,
		Interests:       nonNil(a.Interests),
		SocialLinks:     a.SocialLinks,
		Occupation:      a.Occupation,
		Location:        a.Location,
		Timezone:        a.Timezone,
		Age:             a.Age,
		Languages:       a.Languages,
		Hobbies:         nonNil(a.Hobbies),
		SkillsDetail:    a.SkillsOffered,
		Intents:         nonNil(a.Intents),
		IntentOther:     a.IntentOther,
		LearningGoals:   nonNil(a.LearningGoals),
		Availability:    nonNil(a.Availability),
		WalletAddress:   a.WalletAddress,
		WalletSignature: a.WalletSignature,
	}

	p.Skills = make([]string, 0, len(a.SkillsOffered))
	for _, s := range a.SkillsOffered {
		p.Skills = append(p.Skills, s.Name)
	}
	if p.SkillsDetail == nil {
		p.SkillsDetail = []OfferedSkill{}
	}

	if len(p.Languages) == 0 && defaultLanguage != "" {
		p.Languages = []string{defaultLanguage}
	}
	if p.Timezone == "" && detect != nil {
		p.Timezone = detect()
	}

	// 钱包字段要么都有要么都没有
	if p.WalletAddress == "" || p.WalletSignature == "" {
		p.WalletAddress = ""
		p.WalletSignature = ""
	}
	return p
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// DetectTimezone 当前进程所在时区，格式 UTC±HH:MM
func DetectTimezone() string {
	_, offset := time.Now().Zone()
	return FormatOffset(offset)
}

// FormatOffset 把秒级偏移格式化为 UTC±HH:MM
func FormatOffset(offsetSeconds int) string {
	sign := '+'
	if offsetSeconds < 0 {
		sign = '-'
		offsetSeconds = -offsetSeconds
	}
	minutes := offsetSeconds / 60
	return fmt.Sprintf("UTC%c%02d:%02d", sign, minutes/60, minutes%60)
}

// Completer 完成引导的持久化协作方。已完成时返回 ErrAlreadyOnboarded
type Completer interface {
	CompleteOnboarding(ctx context.Context, p Payload) error
}

// Outcome 提交结果
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyOnboarded Outcome = "already_onboarded"
)

// SubmissionError 提交失败（网络或服务端错误），会话保持不变，可直接重试
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return "submission failed: " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Submitter 提交适配器
type Submitter struct {
	completer       Completer
	defaultLanguage string
	detect          func() string
}

// SubmitterOption 配置项
type SubmitterOption func(*Submitter)

// WithDefaultLanguage 覆盖默认语言
func WithDefaultLanguage(lang string) SubmitterOption {
	return func(s *Submitter) { s.defaultLanguage = lang }
}

// WithTimezoneDetector 覆盖时区探测
func WithTimezoneDetector(fn func() string) SubmitterOption {
	return func(s *Submitter) { s.detect = fn }
}

func NewSubmitter(completer Completer, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		completer:       completer,
		defaultLanguage: DefaultLanguage,
		detect:          DetectTimezone,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Payload 投影，便于调用方记录或检查将要发送的内容
func (s *Submitter) Payload(a Answers) Payload {
	return ProjectWith(a, s.defaultLanguage, s.detect)
}

// Submit 执行一次写入。已完成引导按成功处理，其它错误包装为 SubmissionError
func (s *Submitter) Submit(ctx context.Context, a Answers) (Outcome, error) {
	err := s.completer.CompleteOnboarding(ctx, s.Payload(a))
	switch {
	case err == nil:
		return OutcomeCompleted, nil
	case errors.Is(err, ErrAlreadyOnboarded):
		return OutcomeAlreadyOnboarded, nil
	default:
		return "", &SubmissionError{Err: err}
	}
}

// AnswersFromPayload Project 的逆投影，技能以 SkillsDetail 为准；
// 只有名称列表时按 Beginner 补齐
func AnswersFromPayload(p Payload) Answers {
	a := Answers{
		DisplayName:     p.DisplayName,
		Username:        p.Username,
		Bio:             p.Bio,
		Interests:       p.Interests,
		SocialLinks:     p.SocialLinks,
		Occupation:      p.Occupation,
		Location:        p.Location,
		Timezone:        p.Timezone,
		Age:             p.Age,
		Languages:       p.Languages,
		Hobbies:         p.Hobbies,
		SkillsOffered:   p.SkillsDetail,
		Intents:         p.Intents,
		IntentOther:     p.IntentOther,
		LearningGoals:   p.LearningGoals,
		Availability:    p.Availability,
		WalletAddress:   p.WalletAddress,
		WalletSignature: p.WalletSignature,
	}
	if len(a.SkillsOffered) == 0 && len(p.Skills) > 0 {
		a.SkillsOffered = make([]OfferedSkill, 0, len(p.Skills))
		for _, name := range p.Skills {
			a.SkillsOffered = append(a.SkillsOffered, OfferedSkill{Name: name, Proficiency: ProficiencyBeginner})
		}
	}
	return a.Clone()
}
