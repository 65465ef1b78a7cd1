package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkillSwap/internal/model/dto"
	"SkillSwap/internal/onboarding"
	"SkillSwap/pkg/errors"
)

// fakeAPI 最小的协作方服务端
type fakeAPI struct {
	mu        sync.Mutex
	onboarded bool
	taken     map[string]bool
	payloads  []onboarding.Payload
	auth      []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/v1/users/me/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": dto.UserStatusData{
			Exists:    true,
			Onboarded: f.onboarded,
			User:      &dto.UserRecordData{ID: "42", DisplayName: "Jo Smith"},
		}})
	})
	mux.HandleFunc("/v1/users/check-username", func(w http.ResponseWriter, r *http.Request) {
		var req dto.CheckUsernameRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		taken := f.taken[req.Username]
		f.mu.Unlock()

		availability := onboarding.Available
		if taken {
			availability = onboarding.TakenByOther
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": dto.CheckUsernameData{
			Username: req.Username, IsUnique: !taken, Availability: availability,
		}})
	})
	mux.HandleFunc("/v1/onboarding/complete", func(w http.ResponseWriter, r *http.Request) {
		var p onboarding.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.onboarded {
			writeJSON(w, http.StatusConflict, map[string]interface{}{"error": map[string]string{
				"code": errors.AlreadyOnboarded.Code, "message": errors.AlreadyOnboarded.Message,
			}})
			return
		}
		if f.taken[p.Username] {
			writeJSON(w, http.StatusConflict, map[string]interface{}{"error": map[string]string{
				"code": errors.UsernameTaken.Code, "message": errors.UsernameTaken.Message,
			}})
			return
		}
		f.onboarded = true
		f.payloads = append(f.payloads, p)
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]string{"redirect_url": "/dashboard"}})
	})
	return mux
}

func newClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", "token-1")
	require.NoError(t, err)
	return c
}

func TestUserStatus(t *testing.T) {
	api := &fakeAPI{}
	c := newClient(t, api)

	status, err := c.UserStatus(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.False(t, status.Onboarded)
	require.NotNil(t, status.User)
	assert.Equal(t, "Jo Smith", status.User.DisplayName)
	assert.Equal(t, []string{"Bearer token-1"}, api.auth)
}

func TestCheckUsername(t *testing.T) {
	c := newClient(t, &fakeAPI{taken: map[string]bool{"jo99": true}})

	got, err := c.CheckUsername(context.Background(), "jo99")
	require.NoError(t, err)
	assert.Equal(t, onboarding.TakenByOther, got)

	got, err = c.CheckUsername(context.Background(), "kim")
	require.NoError(t, err)
	assert.Equal(t, onboarding.Available, got)
}

func TestCompleteOnboardingConflicts(t *testing.T) {
	api := &fakeAPI{taken: map[string]bool{"jo99": true}}
	c := newClient(t, api)

	err := c.CompleteOnboarding(context.Background(), onboarding.Payload{Username: "jo99"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.UsernameTaken)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	require.NoError(t, c.CompleteOnboarding(context.Background(), onboarding.Payload{Username: "kim"}))

	err = c.CompleteOnboarding(context.Background(), onboarding.Payload{Username: "kim"})
	assert.ErrorIs(t, err, onboarding.ErrAlreadyOnboarded)
}

func TestServerErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "")
	require.NoError(t, err)

	_, err = c.UserStatus(context.Background(), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.ErrorIs(t, err, errors.Internal)
}

// 本地运行完整流程：文件持久化 + 远程协作方
func TestLocalFlowAgainstAPI(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	c := newClient(t, api)

	store, err := onboarding.NewFileStore(t.TempDir())
	require.NoError(t, err)

	gate := onboarding.NewUsernameGate(c, onboarding.WithDebounce(0))
	defer gate.Close()

	f, err := onboarding.Open(ctx, "idp|1", onboarding.Deps{
		Store:     store,
		Status:    c,
		Submitter: onboarding.NewSubmitter(c),
		Gate:      gate,
	})
	require.NoError(t, err)
	assert.Equal(t, "Jo Smith", f.Draft().DisplayName)

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
		res, err := f.Advance(ctx, d)
		require.NoError(t, err)
		require.True(t, res.Success, "step %d: %v", i, res.Errors)
	}

	res, err := f.Submit(ctx, onboarding.Draft{}, true)
	require.NoError(t, err)
	assert.Equal(t, onboarding.OutcomeCompleted, res.Outcome)
	assert.True(t, res.Redirect)

	require.Len(t, api.payloads, 1)
	assert.Equal(t, "jo99", api.payloads[0].Username)
	assert.Equal(t, []string{"Go"}, api.payloads[0].Skills)
	assert.Empty(t, api.payloads[0].WalletAddress)

	_, err = onboarding.Open(ctx, "idp|1", onboarding.Deps{
		Store:     store,
		Status:    c,
		Submitter: onboarding.NewSubmitter(c),
	})
	assert.ErrorIs(t, err, onboarding.ErrAlreadyOnboarded)
}
