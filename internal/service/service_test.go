package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkillSwap/internal/cache"
	"SkillSwap/internal/model"
	"SkillSwap/internal/model/dto"
	"SkillSwap/internal/onboarding"
	"SkillSwap/internal/repository"
	pkgerrors "SkillSwap/pkg/errors"
	"SkillSwap/pkg/snowflake"
	"SkillSwap/storage/redis"
)

func TestMain(m *testing.M) {
	if err := snowflake.Init(1, 1); err != nil {
		panic(err)
	}
	m.Run()
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []model.OnboardingCompletedMessage
	err  error
}

func (p *recordingPublisher) PublishOnboardingCompleted(_ context.Context, msg model.OnboardingCompletedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func newRedis(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	redis.SetClient(client)
	t.Cleanup(func() {
		_ = client.Close()
		redis.SetClient(nil)
	})
	return client
}

func seedUser(t *testing.T, repo repository.UserRepository, subject, username string) {
	t.Helper()
	u := &model.User{PublicID: "p-" + subject, Subject: subject, DisplayName: subject}
	if username != "" {
		u.Username = &username
	}
	require.NoError(t, repo.Create(context.Background(), u))
}

func validPayload() onboarding.Payload {
	age := 34
	return onboarding.Project(onboarding.Answers{
		DisplayName:   "Jo",
		Username:      "jo99",
		Interests:     []string{"Music"},
		Occupation:    "Teacher",
		Timezone:      "UTC+05:30",
		Age:           &age,
		Languages:     []string{"English"},
		SkillsOffered: []onboarding.OfferedSkill{{Name: "Go", Category: "Programming", Proficiency: onboarding.ProficiencyExpert}},
		Intents:       []string{"teach_others"},
		LearningGoals: []string{"Rust"},
		Availability:  []string{"weekends"},
	})
}

func TestUserStatus(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()
	svc := NewUserService(repo)

	status, err := svc.UserStatus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Nil(t, status.User)

	seedUser(t, repo, "u1", "jo99")
	status, err = svc.UserStatus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.False(t, status.Onboarded)
	require.NotNil(t, status.User)
	assert.Equal(t, "p-u1", status.User.ID)
	assert.Equal(t, "jo99", status.User.Username)
}

func TestUserStatusUsesCache(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	repo := repository.NewMemoryUserRepository()
	svc := NewUserService(repo, WithStatusCache(cache.NewUserStatusCache(client)))

	status, err := svc.UserStatus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Exists)

	// 直接写仓库不会失效缓存
	seedUser(t, repo, "u1", "")
	status, err = svc.UserStatus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Exists)

	// EnsureUser 走服务，会失效缓存
	_, err = svc.EnsureUser(ctx, "u2", onboarding.Profile{DisplayName: "Kim"})
	require.NoError(t, err)
	status, err = svc.UserStatus(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.Equal(t, "Kim", status.User.DisplayName)
}

func TestCheckUsername(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()
	seedUser(t, repo, "u1", "jo99")
	svc := NewUserService(repo)

	tests := []struct {
		name   string
		caller string
		raw    string
		want   onboarding.Availability
	}{
		{name: "free", caller: "u2", raw: "kim", want: onboarding.Available},
		{name: "taken by other", caller: "u2", raw: "jo99", want: onboarding.TakenByOther},
		{name: "own username", caller: "u1", raw: "jo99", want: onboarding.TakenBySelf},
		{name: "case insensitive", caller: "u2", raw: " JO99 ", want: onboarding.TakenByOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CheckUsername(ctx, tt.caller, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := svc.CheckUsername(ctx, "u2", "a!")
	assert.ErrorIs(t, err, pkgerrors.UsernameInvalid)
}

func TestSuggestUsername(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()
	seedUser(t, repo, "u1", "jo_smith")
	seedUser(t, repo, "u2", "jo_smith1")
	svc := NewUserService(repo)

	got, err := svc.SuggestUsername(ctx, "Jo Smith")
	require.NoError(t, err)
	assert.Equal(t, "jo_smith2", got)

	got, err = svc.SuggestUsername(ctx, "李")
	require.NoError(t, err)
	assert.Equal(t, "user", got)
}

func TestSuggestUsernameExhausted(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()
	seedUser(t, repo, "u1", "jo_smith")
	seedUser(t, repo, "u2", "jo_smith1")
	svc := NewUserService(repo, WithMaxUsernameAttempts(2))

	_, err := svc.SuggestUsername(ctx, "Jo Smith")
	assert.ErrorIs(t, err, pkgerrors.UsernameGenerationExhausted)
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()
	svc := NewUserService(repo)

	first, err := svc.EnsureUser(ctx, "u1", onboarding.Profile{DisplayName: "Jo", AvatarURL: "https://img/jo.png"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.PublicID)
	assert.Equal(t, "https://img/jo.png", first.AvatarURL)

	second, err := svc.EnsureUser(ctx, "u1", onboarding.Profile{DisplayName: "Other"})
	require.NoError(t, err)
	assert.Equal(t, first.PublicID, second.PublicID)
	assert.Equal(t, "Jo", second.DisplayName)
}

func TestCompleteOnboarding(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryUserRepository()
	pub := &recordingPublisher{}
	signal := onboarding.NewMemorySignal()
	svc := NewUserService(repo, WithEventPublisher(pub), WithCompletionSignal(signal))

	u, err := svc.CompleteOnboarding(ctx, "u1", validPayload())
	require.NoError(t, err)
	assert.True(t, u.Onboarded)
	assert.NotNil(t, u.OnboardedAt)
	assert.Equal(t, "jo99", u.UsernameValue())
	assert.Equal(t, []string{"Go"}, u.Skills)
	require.Len(t, u.SkillsDetail, 1)
	assert.Equal(t, "Expert", u.SkillsDetail[0].Proficiency)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "u1", pub.msgs[0].UserID)
	assert.Equal(t, u.PublicID, pub.msgs[0].PublicID)

	done, err := signal.Completed(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, done)

	_, err = svc.CompleteOnboarding(ctx, "u1", validPayload())
	assert.ErrorIs(t, err, pkgerrors.AlreadyOnboarded)

	err = svc.CompleterFor("u1").CompleteOnboarding(ctx, validPayload())
	assert.ErrorIs(t, err, onboarding.ErrAlreadyOnboarded)
}

func TestCompleteOnboardingPublishFailureIsNotFatal(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewUserService(repo, WithEventPublisher(pub))

	u, err := svc.CompleteOnboarding(context.Background(), "u1", validPayload())
	require.NoError(t, err)
	assert.True(t, u.Onboarded)
}

func TestCompleteOnboardingUsernameTaken(t *testing.T) {
	repo := repository.NewMemoryUserRepository()
	seedUser(t, repo, "u2", "jo99")
	svc := NewUserService(repo)

	_, err := svc.CompleteOnboarding(context.Background(), "u1", validPayload())
	assert.ErrorIs(t, err, pkgerrors.UsernameTaken)

	status, err := svc.UserStatus(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, status.Onboarded)
}

func TestCompleteOnboardingValidation(t *testing.T) {
	p := validPayload()
	p.Languages = nil
	p.Age = nil

	svc := NewUserService(repository.NewMemoryUserRepository())
	_, err := svc.CompleteOnboarding(context.Background(), "u1", p)
	require.ErrorIs(t, err, pkgerrors.ValidationFailed)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	_, ok := ve.Result.ErrorFor("age")
	assert.True(t, ok)
	_, ok = ve.Result.ErrorFor("languages")
	assert.True(t, ok)
}

func newOnboardingService(t *testing.T) (*OnboardingService, *UserService, repository.UserRepository) {
	t.Helper()
	client := newRedis(t)
	repo := repository.NewMemoryUserRepository()
	signal := cache.NewCompletionSignal(client, 0)
	users := NewUserService(repo, WithCompletionSignal(signal))
	svc := NewOnboardingService(users, cache.NewSessionStore(client, 0), signal, OnboardingConfig{
		RedirectURL: "/dashboard",
	})
	return svc, users, repo
}

var caller = Caller{UserID: "u1", Name: "Jo Smith", AvatarURL: "https://img/jo.png"}

func TestOnboardingSessionPrefills(t *testing.T) {
	svc, _, _ := newOnboardingService(t)

	data, err := svc.Session(context.Background(), caller)
	require.NoError(t, err)
	assert.False(t, data.Redirect)
	assert.Equal(t, 0, data.Step)
	assert.Equal(t, "welcome", data.StepKey)
	assert.Equal(t, onboarding.StepCount, data.StepCount)
	assert.Equal(t, "Jo Smith", data.Draft.DisplayName)
	assert.Equal(t, "jo_smith", data.Draft.Username)
}

func TestOnboardingAdvanceAndRetreat(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newOnboardingService(t)

	data, err := svc.Advance(ctx, caller, onboarding.Draft{})
	require.NoError(t, err)
	assert.Equal(t, 1, data.Step)

	_, err = svc.Advance(ctx, caller, onboarding.Draft{DisplayName: "Jo"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	_, ok := ve.Result.ErrorFor("username")
	assert.True(t, ok)

	data, err = svc.Session(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, 1, data.Step)

	data, err = svc.Advance(ctx, caller, onboarding.Draft{DisplayName: "Jo", Username: "jo99", Interests: []string{"Music"}})
	require.NoError(t, err)
	assert.Equal(t, 2, data.Step)
	assert.Equal(t, "jo99", data.Answers.Username)

	data, err = svc.Retreat(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, 1, data.Step)
	assert.Equal(t, "jo99", data.Answers.Username)

	data, err = svc.Reset(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, 0, data.Step)
	assert.Empty(t, data.Answers.Username)
}

func TestOnboardingAdvanceRejectsTakenUsername(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := newOnboardingService(t)
	seedUser(t, repo, "u2", "jo99")

	_, err := svc.Advance(ctx, caller, onboarding.Draft{})
	require.NoError(t, err)

	_, err = svc.Advance(ctx, caller, onboarding.Draft{DisplayName: "Jo", Username: "jo99", Interests: []string{"Music"}})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	fe, ok := ve.Result.ErrorFor("username")
	require.True(t, ok)
	assert.Equal(t, "username_taken", fe.Code)
}

func walkHosted(t *testing.T, svc *OnboardingService) {
	t.Helper()
	ctx := context.Background()
	drafts := []onboarding.Draft{
		{},
		{DisplayName: "Jo", Username: "jo99", Interests: []string{"Music"}},
		{OccupationChoice: "Teacher", Timezone: "UTC+05:30", Age: "34", Languages: []string{"English"}},
		{SkillsOffered: []onboarding.OfferedSkill{{Name: "Go", Proficiency: onboarding.ProficiencyExpert}}},
		{Intents: []string{"teach_others"}},
		{LearningGoals: []string{"Rust"}},
		{Availability: []string{"weekends"}},
	}
	for i, d := range drafts {
		_, err := svc.Advance(ctx, caller, d)
		require.NoError(t, err, "step %d", i)
	}
}

func TestOnboardingSubmit(t *testing.T) {
	ctx := context.Background()
	svc, users, _ := newOnboardingService(t)

	_, err := svc.Submit(ctx, caller, dto.SubmitRequest{SkipWallet: true})
	assert.ErrorIs(t, err, pkgerrors.OnboardingStepInvalid)

	walkHosted(t, svc)

	out, err := svc.Submit(ctx, caller, dto.SubmitRequest{SkipWallet: true})
	require.NoError(t, err)
	assert.Equal(t, onboarding.OutcomeCompleted, out.Outcome)
	assert.True(t, out.Redirect)
	assert.Equal(t, "/dashboard", out.RedirectURL)

	status, err := users.UserStatus(ctx, caller.UserID)
	require.NoError(t, err)
	assert.True(t, status.Onboarded)

	data, err := svc.Session(ctx, caller)
	require.NoError(t, err)
	assert.True(t, data.Redirect)

	out, err = svc.Submit(ctx, caller, dto.SubmitRequest{SkipWallet: true})
	require.NoError(t, err)
	assert.Equal(t, onboarding.OutcomeAlreadyOnboarded, out.Outcome)
	assert.True(t, out.Redirect)
}

func TestOnboardingSubmitUsernameTakenKeepsSession(t *testing.T) {
	ctx := context.Background()
	svc, _, repo := newOnboardingService(t)
	walkHosted(t, svc)

	// 在最后一步之前用户名被他人抢注
	seedUser(t, repo, "u2", "jo99")

	_, err := svc.Submit(ctx, caller, dto.SubmitRequest{SkipWallet: true})
	assert.ErrorIs(t, err, pkgerrors.UsernameTaken)

	data, err := svc.Session(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, int(onboarding.LastStep), data.Step)
	assert.Equal(t, "jo99", data.Answers.Username)
}

func TestOnboardingSessionBusy(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newOnboardingService(t)

	token, ok, err := cache.TryLock(ctx, sessionKeyPrefix+":"+caller.UserID, 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Session(ctx, caller)
	assert.ErrorIs(t, err, pkgerrors.SessionBusy)

	require.NoError(t, cache.Unlock(ctx, sessionKeyPrefix+":"+caller.UserID, token))
	_, err = svc.Session(ctx, caller)
	assert.NoError(t, err)
}

func newEventsService(t *testing.T, wait time.Duration) (*OnboardingService, *cache.CompletionSignal) {
	t.Helper()
	client := newRedis(t)
	signal := cache.NewCompletionSignal(client, 0)
	users := NewUserService(repository.NewMemoryUserRepository(), WithCompletionSignal(signal))
	svc := NewOnboardingService(users, cache.NewSessionStore(client, 0), signal, OnboardingConfig{
		RedirectURL:   "/dashboard",
		EventsTimeout: wait,
	})
	return svc, signal
}

func TestAwaitCompletionTimesOut(t *testing.T) {
	svc, _ := newEventsService(t, 100*time.Millisecond)

	ev, err := svc.AwaitCompletion(context.Background(), caller)
	require.NoError(t, err)
	assert.False(t, ev.Completed)
	assert.Empty(t, ev.RedirectURL)
}

func TestAwaitCompletionSignalledFromAnotherTab(t *testing.T) {
	ctx := context.Background()
	svc, signal := newEventsService(t, 5*time.Second)
	_, err := svc.Advance(ctx, caller, onboarding.Draft{})
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = signal.Broadcast(context.Background(), caller.UserID)
	}()

	start := time.Now()
	ev, err := svc.AwaitCompletion(ctx, caller)
	require.NoError(t, err)
	assert.True(t, ev.Completed)
	assert.Equal(t, "/dashboard", ev.RedirectURL)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAwaitCompletionDoesNotHoldSessionLock(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	signal := cache.NewCompletionSignal(client, 0)
	users := NewUserService(repository.NewMemoryUserRepository(), WithCompletionSignal(signal))
	svc := NewOnboardingService(users, cache.NewSessionStore(client, 0), signal, OnboardingConfig{
		EventsTimeout: 2 * time.Second,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.AwaitCompletion(ctx, caller)
	}()

	channel := redis.Key("onboarding:completed", caller.UserID)
	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && n[channel] > 0
	}, time.Second, 10*time.Millisecond)

	// 长轮询已经在订阅，前进请求仍然能拿到会话锁
	data, err := svc.Advance(ctx, caller, onboarding.Draft{})
	require.NoError(t, err)
	assert.Equal(t, 1, data.Step)
	<-done
}

func TestAwaitCompletionAlreadyCompleted(t *testing.T) {
	ctx := context.Background()
	svc, signal := newEventsService(t, 5*time.Second)
	require.NoError(t, signal.Broadcast(ctx, caller.UserID))

	ev, err := svc.AwaitCompletion(ctx, caller)
	require.NoError(t, err)
	assert.True(t, ev.Completed)
}

func TestSubmitErrorMapping(t *testing.T) {
	err := submitError(&onboarding.SubmissionError{Err: errors.New("connection reset")})
	assert.ErrorIs(t, err, pkgerrors.SubmissionFailed)

	err = submitError(onboarding.ErrSubmissionInFlight)
	assert.ErrorIs(t, err, pkgerrors.SubmissionInFlight)
}

func TestSteps(t *testing.T) {
	svc := NewOnboardingService(NewUserService(repository.NewMemoryUserRepository()), onboarding.NewMemoryStore(), nil, OnboardingConfig{})
	steps := svc.Steps()
	require.Len(t, steps, onboarding.StepCount)
	assert.Equal(t, "welcome", steps[0].Key)
	assert.Equal(t, "wallet_connect", steps[len(steps)-1].Key)
}
