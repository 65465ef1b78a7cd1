package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"SkillSwap/pkg/logger"
)

// Deps 流程依赖的协作方。Gate、Signal、Suggester、Identity 可以为空
type Deps struct {
	Store     SessionStore
	Status    StatusProvider
	Submitter *Submitter
	Gate      *UsernameGate
	Signal    CompletionSignal
	Suggester UsernameSuggester
	Identity  Identity
	// KeyPrefix 持久化 key 前缀，默认 "onboarding"
	KeyPrefix string
	Now       func() time.Time
}

// SubmitResult 提交步骤的结果。校验失败时 Validation.Success 为 false
type SubmitResult struct {
	Validation Result  `json:"validation"`
	Outcome    Outcome `json:"outcome,omitempty"`
	Redirect   bool    `json:"redirect"`
}

// Flow 单个用户的引导状态机。
// 所有变更都先写入内存会话，再同步持久化。
type Flow struct {
	userID string
	key    string
	deps   Deps

	mu         sync.Mutex
	session    Session
	submitting bool
}

// Open 打开流程：查询一次用户状态，已完成引导则返回 ErrAlreadyOnboarded（调用方跳转），
// 否则读取已持久化的会话，没有时创建新会话并预填基本信息。
func Open(ctx context.Context, userID string, deps Deps) (*Flow, error) {
	if userID == "" && deps.Identity != nil {
		if id, ok := deps.Identity.CurrentUserID(ctx); ok {
			userID = id
		}
	}
	if userID == "" {
		return nil, ErrNoUser
	}
	if deps.Store == nil || deps.Status == nil || deps.Submitter == nil {
		return nil, errors.New("onboarding flow requires store, status provider and submitter")
	}
	if deps.KeyPrefix == "" {
		deps.KeyPrefix = "onboarding"
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	f := &Flow{
		userID: userID,
		key:    deps.KeyPrefix + ":" + userID,
		deps:   deps,
	}

	status, err := deps.Status.UserStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user status: %w", err)
	}
	done := status.Onboarded
	if !done && deps.Signal != nil {
		if done, err = deps.Signal.Completed(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to read completion signal: %w", err)
		}
	}
	if done {
		if err := deps.Store.Delete(ctx, f.key); err != nil {
			return nil, fmt.Errorf("failed to clear session: %w", err)
		}
		return nil, ErrAlreadyOnboarded
	}

	s, ok, err := deps.Store.Load(ctx, f.key)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if ok {
		if _, valid := Lookup(s.Step); !valid {
			s.Step = StepWelcome
		}
		f.session = s
		return f, nil
	}

	f.session = NewSession()
	f.session.Prefill = f.prefill(ctx, status)
	if err := f.saveLocked(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Flow) prefill(ctx context.Context, status Status) Prefill {
	var p Prefill
	if status.User != nil {
		p.DisplayName = status.User.DisplayName
		p.AvatarURL = status.User.AvatarURL
		p.Username = status.User.Username
	}
	if f.deps.Identity != nil {
		profile, err := f.deps.Identity.CurrentUserProfile(ctx)
		if err != nil {
			logger.Logger.Warn("Failed to fetch identity profile for prefill",
				zap.String("user_id", f.userID),
				zap.Error(err))
		} else {
			if profile.DisplayName != "" {
				p.DisplayName = profile.DisplayName
			}
			if profile.AvatarURL != "" {
				p.AvatarURL = profile.AvatarURL
			}
		}
	}
	if p.Username == "" && p.DisplayName != "" && f.deps.Suggester != nil {
		// 生成失败不影响打开流程，用户可以自己填写
		username, err := f.deps.Suggester.SuggestUsername(ctx, p.DisplayName)
		if err != nil {
			logger.Logger.Warn("Failed to suggest username",
				zap.String("user_id", f.userID),
				zap.Error(err))
		} else {
			p.Username = username
		}
	}
	return p
}

// UserID 流程所属用户
func (f *Flow) UserID() string {
	return f.userID
}

// Session 当前会话的副本
func (f *Flow) Session() Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Clone()
}

// Step 当前步骤
func (f *Flow) Step() StepID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session.Step
}

// Draft 当前步骤用于展示的草稿：已确认的答案，基本信息为空时使用预填值
func (f *Flow) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := DraftFrom(f.session.Answers)
	if d.DisplayName == "" {
		d.DisplayName = f.session.Prefill.DisplayName
	}
	if d.Username == "" {
		d.Username = f.session.Prefill.Username
	}
	return d
}

// Advance 校验当前步骤的草稿，成功则合并并前进一步；失败时什么都不改变。
// 等待用户名查重期间不持有锁，用户可以后退；期间步骤变了则放弃合并。
func (f *Flow) Advance(ctx context.Context, d Draft) (Result, error) {
	f.mu.Lock()
	step := f.session.Step
	f.mu.Unlock()

	def, ok := Lookup(step)
	if !ok {
		return Result{}, fmt.Errorf("unknown step %d", step)
	}

	res := def.Validate(d)
	if !res.Success {
		return res, nil
	}

	if step == StepBasicInfo && f.deps.Gate != nil {
		v, err := f.deps.Gate.Await(ctx, res.Data.Username)
		if err != nil {
			return Result{}, err
		}
		if fe := v.FieldError(); fe != nil {
			return Result{Errors: []FieldError{*fe}}, nil
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.Step != step {
		return res, nil
	}

	prev := f.session.Clone()
	def.Merge(&f.session.Answers, res.Data.Clone())
	f.session.Step = min(step+1, LastStep)
	if err := f.saveLocked(ctx); err != nil {
		f.session = prev
		return Result{}, err
	}
	return res, nil
}

// Retreat 后退一步，不校验也不丢弃数据
func (f *Flow) Retreat(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.session.Step
	f.session.Step = max(prev-1, StepWelcome)
	if f.session.Step == prev {
		return nil
	}
	if err := f.saveLocked(ctx); err != nil {
		f.session.Step = prev
		return err
	}
	return nil
}

// JumpToStart 回到第 0 步并清空答案，同时删除持久化的副本
func (f *Flow) JumpToStart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetLocked(ctx)
}

func (f *Flow) resetLocked(ctx context.Context) error {
	f.session = NewSession()
	if err := f.deps.Store.Delete(ctx, f.key); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Submit 在最后一步提交。skipWallet 为 true 时先清空钱包字段。
// 成功或已完成引导时会话被重置并要求跳转；其它失败会话保持不变。
func (f *Flow) Submit(ctx context.Context, d Draft, skipWallet bool) (SubmitResult, error) {
	f.mu.Lock()
	if f.session.Step != LastStep {
		f.mu.Unlock()
		return SubmitResult{}, ErrNotLastStep
	}
	if f.submitting {
		f.mu.Unlock()
		return SubmitResult{}, ErrSubmissionInFlight
	}

	if skipWallet {
		d.WalletAddress = ""
		d.WalletSignature = ""
	}
	res := validateWallet(d)
	if !res.Success {
		f.mu.Unlock()
		return SubmitResult{Validation: res}, nil
	}

	prev := f.session.Clone()
	Steps[StepWalletConnect].Merge(&f.session.Answers, res.Data)
	if err := f.saveLocked(ctx); err != nil {
		f.session = prev
		f.mu.Unlock()
		return SubmitResult{}, err
	}

	answers := f.session.Answers.Clone()
	f.submitting = true
	f.mu.Unlock()

	outcome, err := f.deps.Submitter.Submit(ctx, answers)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if err != nil {
		return SubmitResult{Validation: res}, err
	}

	if err := f.resetLocked(ctx); err != nil {
		return SubmitResult{}, err
	}
	// 资料已经写入，广播失败只影响其它标签页，它们下次打开时会从状态接口得知
	if f.deps.Signal != nil {
		if err := f.deps.Signal.Broadcast(ctx, f.userID); err != nil {
			logger.Logger.Warn("Failed to broadcast onboarding completion",
				zap.String("user_id", f.userID),
				zap.Error(err))
		}
	}
	return SubmitResult{Validation: res, Outcome: outcome, Redirect: true}, nil
}

// WatchCompletion 监听其它标签页/实例的完成信号。
// 收到信号后重置流程，并在返回的 channel 上通知调用方跳转。ctx 结束时停止监听。
func (f *Flow) WatchCompletion(ctx context.Context) (<-chan struct{}, error) {
	if f.deps.Signal == nil {
		return nil, errors.New("completion signal is not configured")
	}
	signals, err := f.deps.Signal.Watch(ctx, f.userID)
	if err != nil {
		return nil, err
	}

	redirect := make(chan struct{}, 1)
	go func() {
		defer close(redirect)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				f.mu.Lock()
				err := f.resetLocked(context.WithoutCancel(ctx))
				f.mu.Unlock()
				if err != nil {
					logger.Logger.Warn("Failed to reset onboarding session after completion signal",
						zap.String("user_id", f.userID),
						zap.Error(err))
					continue
				}
				select {
				case redirect <- struct{}{}:
				default:
				}
				return
			}
		}
	}()
	return redirect, nil
}

func (f *Flow) saveLocked(ctx context.Context) error {
	f.session.UpdatedAt = f.deps.Now()
	if err := f.deps.Store.Save(ctx, f.key, f.session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
