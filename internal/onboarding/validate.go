package onboarding

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	displayNameMin = 2
	displayNameMax = 50
	usernameMin    = 3
	usernameMax    = 30
	bioMax         = 500
	socialLinksMax = 10
	intentOtherMax = 200
	AgeMin         = 13
	AgeMax         = 120
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	timezonePattern = regexp.MustCompile(`^UTC[+-](\d{2}):(\d{2})$`)
	walletPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	signPattern     = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)
)

// FieldError 单个字段的校验错误
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Result 校验结果。成功时 Data 只包含该步骤拥有的字段（已规整），失败时 Errors 非空
type Result struct {
	Success bool         `json:"success"`
	Data    Answers      `json:"data"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// First 返回第一个错误，用于提示条展示
func (r Result) First() (FieldError, bool) {
	if len(r.Errors) == 0 {
		return FieldError{}, false
	}
	return r.Errors[0], true
}

// ErrorFor 返回指定字段的错误
func (r Result) ErrorFor(field string) (FieldError, bool) {
	for _, e := range r.Errors {
		if e.Field == field {
			return e, true
		}
	}
	return FieldError{}, false
}

// collector 每个字段只保留第一条错误
type collector struct {
	errs []FieldError
}

func (c *collector) add(field, code, message string) {
	for _, e := range c.errs {
		if e.Field == field {
			return
		}
	}
	c.errs = append(c.errs, FieldError{Field: field, Code: code, Message: message})
}

func (c *collector) has(field string) bool {
	for _, e := range c.errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

func (c *collector) result(data Answers) Result {
	if len(c.errs) > 0 {
		return Result{Success: false, Errors: c.errs}
	}
	return Result{Success: true, Data: data}
}

// Validate 按步骤校验草稿
func Validate(step StepID, d Draft) Result {
	def, ok := Lookup(step)
	if !ok {
		return Result{Errors: []FieldError{{Field: "step", Code: "step_invalid", Message: "Unknown onboarding step"}}}
	}
	return def.Validate(d)
}

func validateWelcome(Draft) Result {
	return Result{Success: true}
}

func validateBasicInfo(d Draft) Result {
	var c collector
	var out Answers

	displayName := strings.TrimSpace(d.DisplayName)
	switch n := utf8.RuneCountInString(displayName); {
	case n == 0:
		c.add("display_name", "display_name_required", "Display name is required")
	case n < displayNameMin:
		c.add("display_name", "display_name_too_short", fmt.Sprintf("Display name must be at least %d characters", displayNameMin))
	case n > displayNameMax:
		c.add("display_name", "display_name_too_long", fmt.Sprintf("Display name must be at most %d characters", displayNameMax))
	}
	out.DisplayName = displayName

	username, fe := NormalizeUsername(d.Username)
	if fe != nil {
		c.add(fe.Field, fe.Code, fe.Message)
	}
	out.Username = username

	bio := strings.TrimSpace(d.Bio)
	if utf8.RuneCountInString(bio) > bioMax {
		c.add("bio", "bio_too_long", fmt.Sprintf("Bio must be at most %d characters", bioMax))
	}
	out.Bio = bio

	out.Interests = NormalizeTags(d.Interests)
	if len(out.Interests) == 0 {
		c.add("interests", "interests_required", "Add at least one interest")
	}

	links := make(map[string]string, len(d.SocialLinks))
	for platform, raw := range d.SocialLinks {
		platform = strings.TrimSpace(platform)
		raw = strings.TrimSpace(raw)
		if platform == "" && raw == "" {
			continue
		}
		if platform == "" {
			c.add("social_links", "social_links_invalid", "Social link platform is required")
			continue
		}
		if !isHTTPURL(raw) {
			c.add("social_links", "social_links_invalid", fmt.Sprintf("Social link for %s must be a valid URL", platform))
			continue
		}
		links[platform] = raw
	}
	if len(links) > socialLinksMax {
		c.add("social_links", "social_links_too_many", fmt.Sprintf("At most %d social links are allowed", socialLinksMax))
	}
	if len(links) > 0 {
		out.SocialLinks = links
	}

	return c.result(out)
}

// NormalizeUsername 去除空白并转为小写，同时校验长度和字符集
func NormalizeUsername(raw string) (string, *FieldError) {
	username := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(username)
	switch {
	case n == 0:
		return "", &FieldError{Field: "username", Code: "username_required", Message: "Username is required"}
	case n < usernameMin:
		return "", &FieldError{Field: "username", Code: "username_too_short", Message: fmt.Sprintf("Username must be at least %d characters", usernameMin)}
	case n > usernameMax:
		return "", &FieldError{Field: "username", Code: "username_too_long", Message: fmt.Sprintf("Username must be at most %d characters", usernameMax)}
	case !usernamePattern.MatchString(username):
		return "", &FieldError{Field: "username", Code: "username_invalid", Message: "Username may only contain letters, numbers, underscores and hyphens"}
	}
	return strings.ToLower(username), nil
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateAboutYou(d Draft) Result {
	var c collector
	var out Answers

	choice := strings.TrimSpace(d.OccupationChoice)
	occupation := EffectiveValue(choice, d.OccupationOther)
	switch {
	case choice == "":
		c.add("occupation", "occupation_required", "Occupation is required")
	case strings.EqualFold(choice, OptionOther) && occupation == "":
		c.add("occupation", "occupation_required", "Please specify your occupation")
	case !strings.EqualFold(choice, OptionOther) && !IsOccupationOption(choice):
		c.add("occupation", "occupation_invalid", "Choose an occupation from the list or select Other")
	}
	out.Occupation = occupation

	out.Location = strings.TrimSpace(d.Location)

	tz := strings.TrimSpace(d.Timezone)
	if tz == "" {
		c.add("timezone", "timezone_required", "Timezone is required")
	} else if !ValidTimezone(tz) {
		c.add("timezone", "timezone_invalid", "Timezone must look like UTC+05:30")
	}
	out.Timezone = tz

	age, fe := ParseAge(d.Age)
	if fe != nil {
		c.add(fe.Field, fe.Code, fe.Message)
	}
	out.Age = age

	out.Languages = NormalizeTags(d.Languages)
	if len(out.Languages) == 0 {
		c.add("languages", "languages_required", "Add at least one preferred language")
	}
	out.Hobbies = NormalizeTags(d.Hobbies)

	return c.result(out)
}

// ValidTimezone 校验 UTC±HH:MM 格式，小时不超过 14，分钟小于 60
func ValidTimezone(tz string) bool {
	m := timezonePattern.FindStringSubmatch(tz)
	if m == nil {
		return false
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return hh <= 14 && mm < 60
}

// ParseAge 解析年龄输入。空输入表示尚未填写，与 0 区分开
func ParseAge(raw string) (*int, *FieldError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &FieldError{Field: "age", Code: "age_required", Message: "Age is required"}
	}
	age, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &FieldError{Field: "age", Code: "age_invalid", Message: "Age must be a whole number"}
	}
	if age < AgeMin {
		return nil, &FieldError{Field: "age", Code: "age_too_young", Message: fmt.Sprintf("You must be at least %d years old", AgeMin)}
	}
	if age > AgeMax {
		return nil, &FieldError{Field: "age", Code: "age_too_old", Message: fmt.Sprintf("Age must be %d or less", AgeMax)}
	}
	return &age, nil
}

func validateSkillsOffered(d Draft) Result {
	var c collector
	var out Answers

	seen := make(map[string]bool, len(d.SkillsOffered))
	for _, s := range d.SkillsOffered {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			c.add("skills_offered", "skills_offered_invalid", "Skill name is required")
			continue
		}
		if seen[name] {
			c.add("skills_offered", "skills_offered_duplicate", fmt.Sprintf("%s is listed more than once", name))
			continue
		}
		if !s.Proficiency.Valid() {
			c.add("skills_offered", "skills_offered_proficiency", fmt.Sprintf("Choose a proficiency for %s", name))
			continue
		}
		seen[name] = true
		out.SkillsOffered = append(out.SkillsOffered, OfferedSkill{
			Name:        name,
			Category:    strings.TrimSpace(s.Category),
			Proficiency: s.Proficiency,
		})
	}
	if len(out.SkillsOffered) == 0 && !c.has("skills_offered") {
		c.add("skills_offered", "skills_offered_required", "Add at least one skill you can teach")
	}

	return c.result(out)
}

func validateIntent(d Draft) Result {
	var c collector
	var out Answers

	out.Intents = NormalizeTags(d.Intents)
	if len(out.Intents) == 0 {
		c.add("intents", "intents_required", "Choose at least one reason for joining")
	}
	for _, intent := range out.Intents {
		if !IsIntentOption(intent) {
			c.add("intents", "intents_invalid", fmt.Sprintf("%s is not a supported option", intent))
			break
		}
	}

	if TagList(out.Intents).Contains(IntentOptionOther) {
		other := strings.TrimSpace(d.IntentOther)
		switch {
		case other == "":
			c.add("intent_other", "intent_other_required", "Tell us more about what brings you here")
		case utf8.RuneCountInString(other) > intentOtherMax:
			c.add("intent_other", "intent_other_too_long", fmt.Sprintf("Keep it under %d characters", intentOtherMax))
		}
		out.IntentOther = other
	}

	return c.result(out)
}

func validateSkillsWanted(d Draft) Result {
	var c collector
	var out Answers

	out.LearningGoals = NormalizeTags(d.LearningGoals)
	if len(out.LearningGoals) == 0 {
		c.add("learning_goals", "learning_goals_required", "Add at least one skill you want to learn")
	}
	return c.result(out)
}

func validateAvailability(d Draft) Result {
	var c collector
	var out Answers

	out.Availability = NormalizeTags(d.Availability)
	if len(out.Availability) == 0 {
		c.add("availability", "availability_required", "Select at least one time slot")
	}
	return c.result(out)
}

func validateWallet(d Draft) Result {
	var c collector
	var out Answers

	address := strings.TrimSpace(d.WalletAddress)
	signature := strings.TrimSpace(d.WalletSignature)

	switch {
	case address == "" && signature == "":
		// 未连接钱包
	case address == "":
		c.add("wallet_address", "wallet_address_required", "Connect a wallet before signing")
	case !walletPattern.MatchString(address):
		c.add("wallet_address", "wallet_address_invalid", "Wallet address must be 0x followed by 40 hex characters")
	case signature == "":
		c.add("wallet_signature", "wallet_signature_required", "Sign the message to prove wallet ownership")
	case !signPattern.MatchString(signature):
		c.add("wallet_signature", "wallet_signature_invalid", "Wallet signature is malformed")
	}
	out.WalletAddress = address
	out.WalletSignature = signature

	return c.result(out)
}

// ValidateAll 依次用每个步骤的校验器检查完整答案，服务端收到提交时使用。
// 成功时 Data 为所有步骤规整后合并的结果
func ValidateAll(a Answers) Result {
	d := DraftFrom(a)
	var out Answers
	var errs []FieldError
	for _, def := range Steps {
		res := def.Validate(d)
		if !res.Success {
			errs = append(errs, res.Errors...)
			continue
		}
		def.Merge(&out, res.Data)
	}
	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Success: true, Data: out}
}
