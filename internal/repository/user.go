package repository

import (
	"context"
	"errors"

	"SkillSwap/internal/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 违反唯一约束（subject、public_id 或 username）
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository 用户持久化
type UserRepository interface {
	FindBySubject(ctx context.Context, subject string) (*model.User, error)
	// FindByUsername 用户名按小写精确匹配
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, u *model.User) error
	// CompleteOnboarding 锁定用户行后调用 apply，apply 返回错误时不写入
	CompleteOnboarding(ctx context.Context, subject string, apply func(u *model.User) error) (*model.User, error)
	// AwardBadge 发放徽章并增加声望，已拥有时返回 false 且不做修改
	AwardBadge(ctx context.Context, subject, badge string, reputation int) (bool, error)
}
