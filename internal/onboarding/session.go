package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session 引导会话：当前步骤下标 + 已累积的答案
type Session struct {
	Step      StepID    `json:"step"`
	Answers   Answers   `json:"answers"`
	Prefill   Prefill   `json:"prefill"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Prefill 打开流程时的预填值，只用于展示，不属于已确认的答案
type Prefill struct {
	DisplayName string `json:"display_name,omitempty"`
	Username    string `json:"username,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// NewSession 初始状态：第 0 步，答案为空
func NewSession() Session {
	return Session{Step: StepWelcome}
}

// Clone 深拷贝
func (s Session) Clone() Session {
	out := s
	out.Answers = s.Answers.Clone()
	return out
}

// SessionStore 会话持久化适配器：打开时读取一次，每次变更同步写入
type SessionStore interface {
	Load(ctx context.Context, key string) (Session, bool, error)
	Save(ctx context.Context, key string, s Session) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore 进程内存实现，主要用于测试
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return Session{}, false, nil
	}
	return s.Clone(), true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[key] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	return nil
}

// FileStore 本地文件实现，每个 key 一个 JSON 文件
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) string {
	// key 里可能有 "/"（如 idp|org/user），整体转义成单个文件名
	return filepath.Join(f.dir, url.PathEscape(key)+".json")
}

func (f *FileStore) Load(_ context.Context, key string) (Session, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, true, nil
}

func (f *FileStore) Save(_ context.Context, key string, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	// 先写临时文件再重命名，避免读到写了一半的会话
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return os.Rename(tmp, f.path(key))
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
