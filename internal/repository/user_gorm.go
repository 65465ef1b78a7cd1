package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"SkillSwap/internal/model"
)

// GormUserRepository 基于 gorm 的实现
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindBySubject(ctx context.Context, subject string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).Where("subject = ?", subject).First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	// 查重结果决定能否继续，读主库避免副本延迟
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Where("username = ?", username).First(&u).Error
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, u *model.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error)
}

func (r *GormUserRepository) CompleteOnboarding(ctx context.Context, subject string, apply func(u *model.User) error) (*model.User, error) {
	var out model.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("subject = ?", subject).First(&out).Error; err != nil {
			return err
		}
		if err := apply(&out); err != nil {
			return err
		}
		return tx.Save(&out).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (r *GormUserRepository) AwardBadge(ctx context.Context, subject, badge string, reputation int) (bool, error) {
	awarded := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("subject = ?", subject).First(&u).Error; err != nil {
			return err
		}
		if u.HasBadge(badge) {
			return nil
		}
		u.Badges = append(u.Badges, badge)
		u.Reputation += reputation
		awarded = true
		return tx.Model(&u).Select("badges", "reputation").Updates(&u).Error
	})
	if err != nil {
		return false, translate(err)
	}
	return awarded, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
