package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"SkillSwap/internal/cache"
	"SkillSwap/internal/model"
	"SkillSwap/internal/model/dto"
	"SkillSwap/internal/onboarding"
	pkgerrors "SkillSwap/pkg/errors"
	"SkillSwap/pkg/logger"
	"SkillSwap/pkg/metrics"
)

// sessionKeyPrefix 托管会话在 Redis 中的 key 前缀
const sessionKeyPrefix = "onboarding:session"

// Caller 当前请求的身份，来自访问令牌
type Caller struct {
	UserID    string
	Name      string
	AvatarURL string
}

func (c Caller) CurrentUserID(context.Context) (string, bool) {
	return c.UserID, c.UserID != ""
}

func (c Caller) CurrentUserProfile(context.Context) (onboarding.Profile, error) {
	return onboarding.Profile{DisplayName: c.Name, AvatarURL: c.AvatarURL}, nil
}

// OnboardingConfig 托管流程配置
type OnboardingConfig struct {
	DefaultLanguage      string
	RedirectURL          string
	UsernameCheckTimeout time.Duration
	// LockTTL 单次请求持有会话锁的上限
	LockTTL time.Duration
	// EventsTimeout 完成事件长轮询的最长等待
	EventsTimeout time.Duration
}

// OnboardingService 服务端托管的引导流程。每个请求加锁后打开一次 Flow，
// 会话保存在 SessionStore 中，用户名查重直接走 UserService。
type OnboardingService struct {
	users  *UserService
	store  onboarding.SessionStore
	signal onboarding.CompletionSignal
	cfg    OnboardingConfig
}

func NewOnboardingService(users *UserService, store onboarding.SessionStore, signal onboarding.CompletionSignal, cfg OnboardingConfig) *OnboardingService {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = onboarding.DefaultLanguage
	}
	if cfg.UsernameCheckTimeout <= 0 {
		cfg.UsernameCheckTimeout = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.EventsTimeout <= 0 {
		cfg.EventsTimeout = 25 * time.Second
	}
	return &OnboardingService{users: users, store: store, signal: signal, cfg: cfg}
}

// Steps 步骤表
func (s *OnboardingService) Steps() []model.OnboardingStepInfo {
	out := make([]model.OnboardingStepInfo, 0, onboarding.StepCount)
	for _, def := range onboarding.Steps {
		out = append(out, model.OnboardingStepInfo{
			Index:  int(def.ID),
			Key:    def.Key,
			Name:   def.Name,
			Fields: def.Fields,
		})
	}
	return out
}

// Session 打开（或恢复）会话
func (s *OnboardingService) Session(ctx context.Context, caller Caller) (dto.SessionData, error) {
	return s.withFlow(ctx, caller, nil)
}

// Advance 校验当前步骤并前进。校验失败返回 *ValidationError，会话不变
func (s *OnboardingService) Advance(ctx context.Context, caller Caller, d onboarding.Draft) (dto.SessionData, error) {
	return s.withFlow(ctx, caller, func(f *onboarding.Flow) error {
		from := f.Step()
		res, err := f.Advance(ctx, d)
		if err != nil {
			return err
		}
		if !res.Success {
			for _, fe := range res.Errors {
				metrics.RecordStepRejected(ctx, from.String(), fe.Field)
			}
			return &ValidationError{Result: res}
		}
		metrics.RecordStepTransition(ctx, from.String(), f.Step().String(), "forward")
		return nil
	})
}

// Retreat 后退一步
func (s *OnboardingService) Retreat(ctx context.Context, caller Caller) (dto.SessionData, error) {
	return s.withFlow(ctx, caller, func(f *onboarding.Flow) error {
		from := f.Step()
		if err := f.Retreat(ctx); err != nil {
			return err
		}
		if to := f.Step(); to != from {
			metrics.RecordStepTransition(ctx, from.String(), to.String(), "back")
		}
		return nil
	})
}

// Reset 回到第一步并清空答案
func (s *OnboardingService) Reset(ctx context.Context, caller Caller) (dto.SessionData, error) {
	return s.withFlow(ctx, caller, func(f *onboarding.Flow) error {
		from := f.Step()
		if err := f.JumpToStart(ctx); err != nil {
			return err
		}
		metrics.RecordStepTransition(ctx, from.String(), onboarding.StepWelcome.String(), "reset")
		return nil
	})
}

// Submit 最后一步提交。已完成引导同样返回跳转
func (s *OnboardingService) Submit(ctx context.Context, caller Caller, req dto.SubmitRequest) (dto.SubmitData, error) {
	var result onboarding.SubmitResult
	data, err := s.withFlow(ctx, caller, func(f *onboarding.Flow) error {
		start := time.Now()
		metrics.AddActiveSubmission(ctx, 1)
		defer metrics.AddActiveSubmission(ctx, -1)

		res, err := f.Submit(ctx, req.Draft, req.SkipWallet)
		if err != nil {
			metrics.RecordSubmission(ctx, "error", time.Since(start).Seconds())
			return submitError(err)
		}
		if !res.Validation.Success {
			metrics.RecordSubmission(ctx, "invalid", time.Since(start).Seconds())
			return &ValidationError{Result: res.Validation}
		}
		metrics.RecordSubmission(ctx, string(res.Outcome), time.Since(start).Seconds())
		result = res
		return nil
	})
	if err != nil {
		return dto.SubmitData{}, err
	}

	if result.Outcome == "" {
		// 打开时已经完成引导
		result.Outcome = onboarding.OutcomeAlreadyOnboarded
	}
	return dto.SubmitData{
		Outcome:     result.Outcome,
		Redirect:    data.Redirect || result.Redirect,
		RedirectURL: s.cfg.RedirectURL,
	}, nil
}

// AwaitCompletion 长轮询：等待该用户在其它标签页或实例上完成引导。
// 会话锁只在打开流程时持有，等待期间其它请求照常处理。
func (s *OnboardingService) AwaitCompletion(ctx context.Context, caller Caller) (dto.CompletionEvent, error) {
	if s.signal == nil {
		return dto.CompletionEvent{}, errors.New("completion signal is not configured")
	}

	var flow *onboarding.Flow
	data, err := s.withFlow(ctx, caller, func(f *onboarding.Flow) error {
		flow = f
		return nil
	})
	if err != nil {
		return dto.CompletionEvent{}, err
	}
	completed := dto.CompletionEvent{Completed: true, RedirectURL: s.cfg.RedirectURL}
	if data.Redirect {
		return completed, nil
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.EventsTimeout)
	defer cancel()

	redirect, err := flow.WatchCompletion(wctx)
	if err != nil {
		return dto.CompletionEvent{}, err
	}
	// 打开流程和订阅之间完成的情况只能从哨兵键看到
	done, err := s.signal.Completed(ctx, caller.UserID)
	if err != nil {
		return dto.CompletionEvent{}, err
	}
	if done {
		return completed, nil
	}

	if _, ok := <-redirect; ok {
		return completed, nil
	}
	if err := ctx.Err(); err != nil {
		return dto.CompletionEvent{}, err
	}
	return dto.CompletionEvent{}, nil
}

// submitError 把流程错误映射为业务错误码，未知错误统一为 SubmissionFailed
func submitError(err error) error {
	switch {
	case errors.Is(err, onboarding.ErrNotLastStep):
		return pkgerrors.OnboardingStepInvalid.WithMessage(err.Error())
	case errors.Is(err, onboarding.ErrSubmissionInFlight):
		return pkgerrors.SubmissionInFlight
	}

	var se *onboarding.SubmissionError
	if !errors.As(err, &se) {
		return err
	}
	var def pkgerrors.Definition
	if errors.As(se.Err, &def) {
		return se.Err
	}
	return fmt.Errorf("%w: %w", pkgerrors.SubmissionFailed, se.Err)
}

// withFlow 加锁、确保用户存在、打开流程后执行 fn，最后返回会话快照。
// 用户已完成引导时不执行 fn，返回 Redirect
func (s *OnboardingService) withFlow(ctx context.Context, caller Caller, fn func(f *onboarding.Flow) error) (dto.SessionData, error) {
	if caller.UserID == "" {
		return dto.SessionData{}, pkgerrors.Unauthorized
	}

	lockKey := sessionKeyPrefix + ":" + caller.UserID
	token, ok, err := cache.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		return dto.SessionData{}, err
	}
	if !ok {
		return dto.SessionData{}, pkgerrors.SessionBusy
	}
	defer func() {
		if err := cache.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			logger.Logger.Warn("Failed to release session lock", zap.String("user_id", caller.UserID), zap.Error(err))
		}
	}()

	profile, _ := caller.CurrentUserProfile(ctx)
	if _, err := s.users.EnsureUser(ctx, caller.UserID, profile); err != nil {
		return dto.SessionData{}, err
	}

	gate := onboarding.NewUsernameGate(
		s.users.CheckerFor(caller.UserID),
		onboarding.WithCheckTimeout(s.cfg.UsernameCheckTimeout),
	)
	defer gate.Close()

	f, err := onboarding.Open(ctx, caller.UserID, onboarding.Deps{
		Store:  s.store,
		Status: s.users,
		Submitter: onboarding.NewSubmitter(
			s.users.CompleterFor(caller.UserID),
			onboarding.WithDefaultLanguage(s.cfg.DefaultLanguage),
		),
		Gate:      gate,
		Signal:    s.signal,
		Suggester: s.users,
		Identity:  caller,
		KeyPrefix: sessionKeyPrefix,
	})
	if errors.Is(err, onboarding.ErrAlreadyOnboarded) {
		return dto.SessionData{Redirect: true, RedirectURL: s.cfg.RedirectURL}, nil
	}
	if err != nil {
		return dto.SessionData{}, err
	}

	if fn != nil {
		if err := fn(f); err != nil {
			return dto.SessionData{}, err
		}
	}
	return s.snapshot(f), nil
}

func (s *OnboardingService) snapshot(f *onboarding.Flow) dto.SessionData {
	session := f.Session()
	def, _ := onboarding.Lookup(session.Step)
	data := dto.SessionData{
		Step:      int(session.Step),
		StepKey:   def.Key,
		StepName:  def.Name,
		StepCount: onboarding.StepCount,
		Answers:   session.Answers,
		Draft:     f.Draft(),
	}
	return data
}
