package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"SkillSwap/internal/cache"
	"SkillSwap/internal/model"
	"SkillSwap/internal/onboarding"
	"SkillSwap/internal/repository"
	pkgerrors "SkillSwap/pkg/errors"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/metrics"
	"SkillSwap/pkg/snowflake"
)

// EventPublisher 领域事件发布
type EventPublisher interface {
	PublishOnboardingCompleted(ctx context.Context, msg model.OnboardingCompletedMessage) error
}

// ValidationError 服务端校验失败，Result 中带字段错误
type ValidationError struct {
	Result onboarding.Result
}

func (e *ValidationError) Error() string {
	if fe, ok := e.Result.First(); ok {
		return "validation failed: " + fe.Error()
	}
	return "validation failed"
}

func (e *ValidationError) Unwrap() error {
	return pkgerrors.ValidationFailed
}

// UserService 用户相关的协作方：状态、用户名查重与生成、完成引导
type UserService struct {
	repo        repository.UserRepository
	statusCache *cache.UserStatusCache
	events      EventPublisher
	signal      onboarding.CompletionSignal
	maxAttempts int
	now         func() time.Time
}

type UserServiceOption func(*UserService)

func WithStatusCache(c *cache.UserStatusCache) UserServiceOption {
	return func(s *UserService) { s.statusCache = c }
}

func WithEventPublisher(p EventPublisher) UserServiceOption {
	return func(s *UserService) { s.events = p }
}

func WithCompletionSignal(sig onboarding.CompletionSignal) UserServiceOption {
	return func(s *UserService) { s.signal = sig }
}

// WithMaxUsernameAttempts 用户名生成最多尝试的候选数量
func WithMaxUsernameAttempts(n int) UserServiceOption {
	return func(s *UserService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewUserService(repo repository.UserRepository, opts ...UserServiceOption) *UserService {
	s := &UserService{
		repo:        repo,
		maxAttempts: 20,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserStatus 实现 onboarding.StatusProvider
func (s *UserService) UserStatus(ctx context.Context, userID string) (onboarding.Status, error) {
	if s.statusCache != nil {
		if status, hit := s.statusCache.Get(ctx, userID); hit {
			return status, nil
		}
	}

	u, err := s.repo.FindBySubject(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		status := onboarding.Status{}
		s.cacheStatus(ctx, userID, status)
		return status, nil
	}
	if err != nil {
		return onboarding.Status{}, fmt.Errorf("failed to query user: %w", err)
	}

	status := onboarding.Status{
		Exists:    true,
		Onboarded: u.Onboarded,
		User:      toRecord(u),
	}
	s.cacheStatus(ctx, userID, status)
	return status, nil
}

func (s *UserService) cacheStatus(ctx context.Context, userID string, status onboarding.Status) {
	if s.statusCache != nil {
		s.statusCache.Set(ctx, userID, status)
	}
}

func (s *UserService) invalidateStatus(ctx context.Context, userID string) {
	if s.statusCache != nil {
		s.statusCache.Invalidate(ctx, userID)
	}
}

// GetUser 返回完整记录
func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.repo.FindBySubject(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, pkgerrors.UserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// CheckUsername 以 caller 身份检查用户名，caller 自己的用户名视为可用
func (s *UserService) CheckUsername(ctx context.Context, caller, raw string) (onboarding.Availability, error) {
	start := time.Now()
	username, fe := onboarding.NormalizeUsername(raw)
	if fe != nil {
		metrics.RecordUsernameCheck(ctx, "invalid", time.Since(start).Seconds())
		return "", pkgerrors.UsernameInvalid.WithMessage(fe.Message)
	}

	u, err := s.repo.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		metrics.RecordUsernameCheck(ctx, string(onboarding.Available), time.Since(start).Seconds())
		return onboarding.Available, nil
	case err != nil:
		metrics.RecordUsernameCheck(ctx, "error", time.Since(start).Seconds())
		return "", fmt.Errorf("failed to query username: %w", err)
	case u.Subject == caller:
		metrics.RecordUsernameCheck(ctx, string(onboarding.TakenBySelf), time.Since(start).Seconds())
		return onboarding.TakenBySelf, nil
	default:
		metrics.RecordUsernameCheck(ctx, string(onboarding.TakenByOther), time.Since(start).Seconds())
		return onboarding.TakenByOther, nil
	}
}

// CheckerFor 绑定调用者身份，供 UsernameGate 使用
func (s *UserService) CheckerFor(caller string) onboarding.UsernameChecker {
	return usernameChecker{svc: s, caller: caller}
}

type usernameChecker struct {
	svc    *UserService
	caller string
}

func (c usernameChecker) CheckUsername(ctx context.Context, username string) (onboarding.Availability, error) {
	return c.svc.CheckUsername(ctx, c.caller, username)
}

// SuggestUsername 由显示名生成一个当前可用的用户名：先试原始 slug，再依次追加 1、2、3…
// 超过尝试上限时返回 UsernameGenerationExhausted
func (s *UserService) SuggestUsername(ctx context.Context, displayName string) (string, error) {
	base := usernameSlug(displayName)

	for i := 0; i < s.maxAttempts; i++ {
		candidate := base
		if i > 0 {
			candidate = base + strconv.Itoa(i)
		}
		_, err := s.repo.FindByUsername(ctx, candidate)
		if errors.Is(err, repository.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to query username: %w", err)
		}
	}

	logger.Logger.Warn("Username generation exhausted",
		zap.String("base", base),
		zap.Int("attempts", s.maxAttempts),
	)
	return "", pkgerrors.UsernameGenerationExhausted
}

// usernameSlug 保留字母数字、下划线和连字符，空白转为下划线；
// 结果过短时补 "user" 前缀，过长时截断并给计数后缀留出空间
func usernameSlug(displayName string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(displayName)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		case r == ' ' || r == '.':
			sb.WriteByte('_')
		}
	}
	slug := strings.Trim(sb.String(), "_-")
	if len(slug) < 3 {
		slug = "user" + slug
	}
	if len(slug) > 26 {
		slug = slug[:26]
	}
	return slug
}

// EnsureUser 为新身份创建用户记录，已存在时直接返回
func (s *UserService) EnsureUser(ctx context.Context, userID string, profile onboarding.Profile) (*model.User, error) {
	u, err := s.repo.FindBySubject(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	publicID, err := snowflake.NextIDString()
	if err != nil {
		return nil, fmt.Errorf("failed to generate public id: %w", err)
	}

	u = &model.User{
		PublicID:    publicID,
		Subject:     userID,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// 并发请求已创建
			return s.repo.FindBySubject(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.invalidateStatus(ctx, userID)
	logger.Logger.Info("User created",
		zap.String("user_id", userID),
		zap.String("public_id", publicID),
	)
	return u, nil
}

// CompleteOnboarding 校验并持久化引导结果。已完成引导返回 AlreadyOnboarded，
// 用户名被他人占用返回 UsernameTaken。成功后发布事件并广播完成信号，二者失败只记录日志
func (s *UserService) CompleteOnboarding(ctx context.Context, userID string, p onboarding.Payload) (*model.User, error) {
	res := onboarding.ValidateAll(onboarding.AnswersFromPayload(p))
	if !res.Success {
		return nil, &ValidationError{Result: res}
	}
	a := res.Data

	existing, err := s.EnsureUser(ctx, userID, onboarding.Profile{DisplayName: a.DisplayName})
	if err != nil {
		return nil, err
	}
	if existing.Onboarded {
		return nil, pkgerrors.AlreadyOnboarded
	}

	availability, err := s.CheckUsername(ctx, userID, a.Username)
	if err != nil {
		return nil, err
	}
	if availability == onboarding.TakenByOther {
		return nil, pkgerrors.UsernameTaken
	}

	now := s.now()
	u, err := s.repo.CompleteOnboarding(ctx, userID, func(u *model.User) error {
		if u.Onboarded {
			return pkgerrors.AlreadyOnboarded
		}
		applyAnswers(u, a)
		u.Onboarded = true
		u.OnboardedAt = &now
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, pkgerrors.UsernameTaken
	case err != nil:
		return nil, err
	}

	s.invalidateStatus(ctx, userID)
	logger.Logger.Info("Onboarding completed",
		zap.String("user_id", userID),
		zap.String("username", a.Username),
	)

	if s.events != nil {
		if err := s.events.PublishOnboardingCompleted(ctx, model.OnboardingCompletedMessage{
			UserID:      userID,
			PublicID:    u.PublicID,
			Username:    u.UsernameValue(),
			DisplayName: u.DisplayName,
		}); err != nil {
			logger.Logger.Warn("Onboarding event not published", zap.String("user_id", userID), zap.Error(err))
		}
	}
	if s.signal != nil {
		if err := s.signal.Broadcast(ctx, userID); err != nil {
			logger.Logger.Warn("Completion signal not broadcast", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return u, nil
}

// CompleterFor 绑定用户身份，供 onboarding.Submitter 使用
func (s *UserService) CompleterFor(userID string) onboarding.Completer {
	return completer{svc: s, userID: userID}
}

type completer struct {
	svc    *UserService
	userID string
}

func (c completer) CompleteOnboarding(ctx context.Context, p onboarding.Payload) error {
	_, err := c.svc.CompleteOnboarding(ctx, c.userID, p)
	if errors.Is(err, pkgerrors.AlreadyOnboarded) {
		return onboarding.ErrAlreadyOnboarded
	}
	return err
}

// applyAnswers 写入规整后的答案
func applyAnswers(u *model.User, a onboarding.Answers) {
	username := a.Username
	u.Username = &username
	u.DisplayName = a.DisplayName
	u.Bio = a.Bio
	u.Interests = a.Interests
	u.SocialLinks = a.SocialLinks
	u.Occupation = a.Occupation
	u.Location = a.Location
	u.Timezone = a.Timezone
	u.Age = a.Age
	u.Languages = a.Languages
	u.Hobbies = a.Hobbies
	u.Intents = a.Intents
	u.IntentOther = a.IntentOther
	u.LearningGoals = a.LearningGoals
	u.Availability = a.Availability
	u.WalletAddress = a.WalletAddress
	u.WalletSignature = a.WalletSignature

	u.Skills = make([]string, 0, len(a.SkillsOffered))
	u.SkillsDetail = make([]model.SkillDetail, 0, len(a.SkillsOffered))
	for _, skill := range a.SkillsOffered {
		u.Skills = append(u.Skills, skill.Name)
		u.SkillsDetail = append(u.SkillsDetail, model.SkillDetail{
			Name:        skill.Name,
			Category:    skill.Category,
			Proficiency: string(skill.Proficiency),
		})
	}
}

func toRecord(u *model.User) *onboarding.UserRecord {
	return &onboarding.UserRecord{
		ID:          u.PublicID,
		Username:    u.UsernameValue(),
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Onboarded:   u.Onboarded,
	}
}
