package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SkillSwap/config"
	"SkillSwap/internal/onboarding"
)

const answersYAML = `
basic_info:
  display_name: Jo
  username: jo99
  interests: [Music]
  social_links:
    github: https://github.com/jo
about_you:
  occupation_choice: Teacher
  timezone: UTC+05:30
  age: 34
  languages: [English]
skills_offered:
  skills_offered:
    - name: Go
      proficiency: Expert
intent:
  intents: [teach_others]
skills_wanted:
  learning_goals: [Rust]
availability:
  availability: [weekends]
`

type fakeBackend struct {
	mu       sync.Mutex
	taken    map[string]bool
	checked  []string
	payloads []onboarding.Payload
}

func (b *fakeBackend) UserStatus(context.Context, string) (onboarding.Status, error) {
	return onboarding.Status{}, nil
}

func (b *fakeBackend) CheckUsername(_ context.Context, username string) (onboarding.Availability, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checked = append(b.checked, username)
	if b.taken[username] {
		return onboarding.TakenByOther, nil
	}
	return onboarding.Available, nil
}

func (b *fakeBackend) CompleteOnboarding(_ context.Context, p onboarding.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, p)
	return nil
}

func openLocal(t *testing.T, b *fakeBackend, store onboarding.SessionStore) *onboarding.Flow {
	t.Helper()
	gate := onboarding.NewUsernameGate(b, onboarding.WithDebounce(0))
	t.Cleanup(gate.Close)

	f, err := onboarding.Open(context.Background(), "idp|cli", onboarding.Deps{
		Store:     store,
		Status:    b,
		Submitter: onboarding.NewSubmitter(b),
		Gate:      gate,
	})
	require.NoError(t, err)
	return f
}

func TestParseAnswers(t *testing.T) {
	drafts, err := parseAnswers([]byte(answersYAML))
	require.NoError(t, err)

	assert.Equal(t, "jo99", drafts["basic_info"].Username)
	assert.Equal(t, "https://github.com/jo", drafts["basic_info"].SocialLinks["github"])
	assert.Equal(t, "34", drafts["about_you"].Age)
	require.Len(t, drafts["skills_offered"].SkillsOffered, 1)
	assert.Equal(t, onboarding.ProficiencyExpert, drafts["skills_offered"].SkillsOffered[0].Proficiency)
}

func TestParseAnswersRejectsUnknownKeys(t *testing.T) {
	_, err := parseAnswers([]byte("hobbies_step:\n  hobbies: [chess]\n"))
	assert.ErrorContains(t, err, "unknown step")

	_, err = parseAnswers([]byte("basic_info:\n  nickname: jo\n"))
	assert.ErrorContains(t, err, "basic_info")
}

func TestRunWizardSubmits(t *testing.T) {
	drafts, err := parseAnswers([]byte(answersYAML))
	require.NoError(t, err)

	b := &fakeBackend{}
	f := openLocal(t, b, onboarding.NewMemoryStore())

	var out bytes.Buffer
	require.NoError(t, runWizard(context.Background(), &out, f, drafts, false))

	assert.Contains(t, out.String(), "submitted: completed")
	require.Len(t, b.payloads, 1)
	assert.Equal(t, "jo99", b.payloads[0].Username)
	assert.Equal(t, "Teacher", b.payloads[0].Occupation)
	assert.Empty(t, b.payloads[0].WalletAddress)
}

func TestRunWizardStopsAtRejectedStepAndResumes(t *testing.T) {
	drafts, err := parseAnswers([]byte(answersYAML))
	require.NoError(t, err)

	b := &fakeBackend{taken: map[string]bool{"jo99": true}}
	store := onboarding.NewMemoryStore()
	f := openLocal(t, b, store)

	var out bytes.Buffer
	err = runWizard(context.Background(), &out, f, drafts, true)
	require.ErrorIs(t, err, errStepRejected)
	assert.Contains(t, out.String(), "username:")
	assert.Equal(t, onboarding.StepBasicInfo, f.Step())
	assert.Empty(t, b.payloads)

	// 换一个用户名重新执行，从保存的步骤继续
	d := drafts["basic_info"]
	d.Username = "jo_100"
	drafts["basic_info"] = d

	f = openLocal(t, b, store)
	assert.Equal(t, onboarding.StepBasicInfo, f.Step())
	require.NoError(t, runWizard(context.Background(), &out, f, drafts, true))
	require.Len(t, b.payloads, 1)
	assert.Equal(t, "jo_100", b.payloads[0].Username)
}

func TestPickUsernameChecksOnlySettledCandidate(t *testing.T) {
	b := &fakeBackend{taken: map[string]bool{"jo99": true}}
	gate := onboarding.NewUsernameGate(b, onboarding.WithDebounce(time.Hour))
	t.Cleanup(gate.Close)

	var hints bytes.Buffer
	v, err := pickUsername(context.Background(), strings.NewReader("ab\njo99\n\nJo_100\n"), &hints, gate)
	require.NoError(t, err)

	assert.Equal(t, "jo_100", v.Username)
	assert.Equal(t, onboarding.VerdictAvailable, v.Status)
	assert.Contains(t, hints.String(), "ab: Username must be at least")
	// 中间输入被防抖吞掉，只查了最后一个
	assert.Equal(t, []string{"jo_100"}, b.checked)
}

func TestPickUsernameRequiresInput(t *testing.T) {
	gate := onboarding.NewUsernameGate(&fakeBackend{})
	t.Cleanup(gate.Close)

	_, err := pickUsername(context.Background(), strings.NewReader("\n  \n"), io.Discard, gate)
	assert.ErrorContains(t, err, "no username entered")
}

func TestCommandsWithoutToken(t *testing.T) {
	cmd := newRootCmd(&config.ClientConfig{StateDir: t.TempDir()})
	cmd.SetArgs([]string{"status"})
	assert.ErrorContains(t, cmd.Execute(), "access token required")

	var out bytes.Buffer
	cmd = newRootCmd(&config.ClientConfig{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"steps"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "key: basic_info")
	assert.Contains(t, out.String(), "name: Wallet Connect")
}
