package onboarding

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadyOnboarded 用户已完成引导（提交时的冲突状态，按成功处理）
	ErrAlreadyOnboarded = errors.New("user already onboarded")
	// ErrSubmissionInFlight 已有提交在进行中
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrNotLastStep 只有最后一步可以提交
	ErrNotLastStep = errors.New("submission is only allowed from the last step")
	// ErrNoUser 当前没有登录用户
	ErrNoUser = errors.New("no current user")
)

// Profile 身份提供方给出的资料，用于预填基本信息
type Profile struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Identity 身份提供方
type Identity interface {
	CurrentUserID(ctx context.Context) (string, bool)
	CurrentUserProfile(ctx context.Context) (Profile, error)
}

// UserRecord 用户记录快照
type UserRecord struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Onboarded   bool   `json:"onboarded"`
}

// Status 用户是否存在、是否已完成引导
type Status struct {
	Exists    bool        `json:"exists"`
	Onboarded bool        `json:"onboarded"`
	User      *UserRecord `json:"user,omitempty"`
}

// StatusProvider 打开流程时查询一次用户状态
type StatusProvider interface {
	UserStatus(ctx context.Context, userID string) (Status, error)
}

// UsernameSuggester 为新用户生成一个可用的用户名（可选）
type UsernameSuggester interface {
	SuggestUsername(ctx context.Context, displayName string) (string, error)
}

// CompletionSignal 跨标签页/跨实例的完成信号。
// 观察到信号后流程回到初始状态并跳转。
type CompletionSignal interface {
	Broadcast(ctx context.Context, userID string) error
	Completed(ctx context.Context, userID string) (bool, error)
	Watch(ctx context.Context, userID string) (<-chan struct{}, error)
}

// MemorySignal 进程内实现
type MemorySignal struct {
	mu        sync.Mutex
	completed map[string]bool
	watchers  map[string][]chan struct{}
}

func NewMemorySignal() *MemorySignal {
	return &MemorySignal{
		completed: make(map[string]bool),
		watchers:  make(map[string][]chan struct{}),
	}
}

func (m *MemorySignal) Broadcast(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed[userID] = true
	for _, ch := range m.watchers[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *MemorySignal) Completed(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[userID], nil
}

func (m *MemorySignal) Watch(ctx context.Context, userID string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	m.watchers[userID] = append(m.watchers[userID], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[userID]
		for i, c := range list {
			if c == ch {
				m.watchers[userID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}()

	return ch, nil
}
