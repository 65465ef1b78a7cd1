package onboarding

// StepID 引导步骤标识，取值即步骤下标
type StepID int

const (
	StepWelcome StepID = iota
	StepBasicInfo
	StepAboutYou
	StepSkillsOffered
	StepIntent
	StepSkillsWanted
	StepAvailability
	StepWalletConnect
)

// StepDefinition 步骤表中的一项：校验草稿，并把规整后的数据合并进累积答案
type StepDefinition struct {
	ID       StepID
	Key      string
	Name     string
	Fields   []string
	Validate func(Draft) Result
	Merge    func(dst *Answers, src Answers)
}

// Steps 唯一的步骤表，所有步骤都由它驱动
var Steps = []StepDefinition{
	{
		ID:       StepWelcome,
		Key:      "welcome",
		Name:     "Welcome",
		Validate: validateWelcome,
		Merge:    func(*Answers, Answers) {},
	},
	{
		ID:       StepBasicInfo,
		Key:      "basic_info",
		Name:     "Basic Info",
		Fields:   []string{"display_name", "username", "bio", "interests", "social_links"},
		Validate: validateBasicInfo,
		Merge: func(dst *Answers, src Answers) {
			dst.DisplayName = src.DisplayName
			dst.Username = src.Username
			dst.Bio = src.Bio
			dst.Interests = src.Interests
			dst.SocialLinks = src.SocialLinks
		},
	},
	{
		ID:       StepAboutYou,
		Key:      "about_you",
		Name:     "About You",
		Fields:   []string{"occupation", "location", "timezone", "age", "languages", "hobbies"},
		Validate: validateAboutYou,
		Merge: func(dst *Answers, src Answers) {
			dst.Occupation = src.Occupation
			dst.Location = src.Location
			dst.Timezone = src.Timezone
			dst.Age = src.Age
			dst.Languages = src.Languages
			dst.Hobbies = src.Hobbies
		},
	},
	{
		ID:       StepSkillsOffered,
		Key:      "skills_offered",
		Name:     "Skills Offered",
		Fields:   []string{"skills_offered"},
		Validate: validateSkillsOffered,
		Merge: func(dst *Answers, src Answers) {
			dst.SkillsOffered = src.SkillsOffered
		},
	},
	{
		ID:       StepIntent,
		Key:      "intent",
		Name:     "Intent",
		Fields:   []string{"intents", "intent_other"},
		Validate: validateIntent,
		Merge: func(dst *Answers, src Answers) {
			dst.Intents = src.Intents
			dst.IntentOther = src.IntentOther
		},
	},
	{
		ID:       StepSkillsWanted,
		Key:      "skills_wanted",
		Name:     "Skills Wanted",
		Fields:   []string{"learning_goals"},
		Validate: validateSkillsWanted,
		Merge: func(dst *Answers, src Answers) {
			dst.LearningGoals = src.LearningGoals
		},
	},
	{
		ID:       StepAvailability,
		Key:      "availability",
		Name:     "Availability",
		Fields:   []string{"availability"},
		Validate: validateAvailability,
		Merge: func(dst *Answers, src Answers) {
			dst.Availability = src.Availability
		},
	},
	{
		ID:       StepWalletConnect,
		Key:      "wallet_connect",
		Name:     "Wallet Connect",
		Fields:   []string{"wallet_address", "wallet_signature"},
		Validate: validateWallet,
		Merge: func(dst *Answers, src Answers) {
			dst.WalletAddress = src.WalletAddress
			dst.WalletSignature = src.WalletSignature
		},
	},
}

// StepCount 步骤总数
var StepCount = len(Steps)

// LastStep 最后一步（钱包连接），提交在这一步完成
var LastStep = StepID(len(Steps) - 1)

// Lookup 根据标识查找步骤定义
func Lookup(id StepID) (StepDefinition, bool) {
	if id < 0 || int(id) >= len(Steps) {
		return StepDefinition{}, false
	}
	return Steps[id], true
}

func (id StepID) String() string {
	if def, ok := Lookup(id); ok {
		return def.Key
	}
	return "unknown"
}
