package repository

import (
	"context"
	"sync"
	"time"

	"SkillSwap/internal/model"
)

// MemoryUserRepository 进程内实现，用于测试和本地运行
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*model.User // subject -> user
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*model.User)}
}

func (r *MemoryUserRepository) FindBySubject(_ context.Context, subject string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.UsernameValue() == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.Subject]; ok {
		return ErrDuplicate
	}
	for _, other := range r.users {
		if other.PublicID == u.PublicID || (u.Username != nil && other.UsernameValue() == *u.Username) {
			return ErrDuplicate
		}
	}

	r.nextID++
	now := time.Now()
	u.ID = r.nextID
	u.CreatedAt = now
	u.UpdatedAt = now
	r.users[u.Subject] = cloneUser(u)
	return nil
}

func (r *MemoryUserRepository) CompleteOnboarding(_ context.Context, subject string, apply func(u *model.User) error) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[subject]
	if !ok {
		return nil, ErrNotFound
	}

	u := cloneUser(stored)
	if err := apply(u); err != nil {
		return nil, err
	}
	if u.Username != nil {
		for s, other := range r.users {
			if s != subject && other.UsernameValue() == *u.Username {
				return nil, ErrDuplicate
			}
		}
	}

	u.UpdatedAt = time.Now()
	r.users[subject] = u
	return cloneUser(u), nil
}

func (r *MemoryUserRepository) AwardBadge(_ context.Context, subject, badge string, reputation int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[subject]
	if !ok {
		return false, ErrNotFound
	}
	if u.HasBadge(badge) {
		return false, nil
	}
	u.Badges = append(append([]string(nil), u.Badges...), badge)
	u.Reputation += reputation
	u.UpdatedAt = time.Now()
	return true, nil
}

func cloneUser(u *model.User) *model.User {
	out := *u
	if u.Username != nil {
		name := *u.Username
		out.Username = &name
	}
	if u.Age != nil {
		age := *u.Age
		out.Age = &age
	}
	if u.OnboardedAt != nil {
		at := *u.OnboardedAt
		out.OnboardedAt = &at
	}
	out.Interests = cloneStrings(u.Interests)
	out.Languages = cloneStrings(u.Languages)
	out.Hobbies = cloneStrings(u.Hobbies)
	out.Skills = cloneStrings(u.Skills)
	out.LearningGoals = cloneStrings(u.LearningGoals)
	out.Intents = cloneStrings(u.Intents)
	out.Availability = cloneStrings(u.Availability)
	out.Badges = cloneStrings(u.Badges)
	if u.SkillsDetail != nil {
		out.SkillsDetail = append([]model.SkillDetail(nil), u.SkillsDetail...)
	}
	if u.SocialLinks != nil {
		out.SocialLinks = make(map[string]string, len(u.SocialLinks))
		for k, v := range u.SocialLinks {
			out.SocialLinks[k] = v
		}
	}
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
