package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeChecker 按用户名返回预设结果，可以让某个用户名的请求阻塞到手动放行
type fakeChecker struct {
	mu       sync.Mutex
	results  map[string]Availability
	errs     map[string]error
	gates    map[string]chan struct{}
	calls    []string
	started  chan string
	finished chan string
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{
		results:  make(map[string]Availability),
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		started:  make(chan string, 16),
		finished: make(chan string, 16),
	}
}

func (f *fakeChecker) set(username string, a Availability) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[username] = a
}

func (f *fakeChecker) fail(username string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[username] = err
}

func (f *fakeChecker) hold(username string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[username] = ch
	return ch
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeChecker) CheckUsername(ctx context.Context, username string) (Availability, error) {
	f.mu.Lock()
	f.calls = append(f.calls, username)
	gate := f.gates[username]
	a, ok := f.results[username]
	err := f.errs[username]
	f.mu.Unlock()

	f.started <- username
	defer func() { f.finished <- username }()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return Available, nil
	}
	return a, nil
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func TestGateLatestIssuedWinsOverLateResponse(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := newFakeChecker()
	checker.set("abc", TakenByOther)
	checker.set("abcd", Available)
	release := checker.hold("abc")

	gate := NewUsernameGate(checker)
	defer gate.Close()
	ctx := context.Background()

	abcDone := make(chan Verdict, 1)
	go func() {
		v, _ := gate.Check(ctx, "abc")
		abcDone <- v
	}()
	waitFor(t, checker.started, "abc")

	v, err := gate.Check(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, VerdictAvailable, v.Status)

	// "abc" 的响应晚于 "abcd" 到达
	close(release)
	stale := <-abcDone
	assert.Equal(t, VerdictTaken, stale.Status)

	current := gate.Current()
	assert.Equal(t, "abcd", current.Username)
	assert.Equal(t, VerdictAvailable, current.Status)
	assert.True(t, current.OK())
}

func TestGateScheduleDiscardsSupersededResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := newFakeChecker()
	checker.set("abc", Available)
	checker.set("abcd", TakenByOther)
	release := checker.hold("abc")

	gate := NewUsernameGate(checker, WithDebounce(5*time.Millisecond))
	defer gate.Close()

	gate.Schedule("abc")
	waitFor(t, checker.started, "abc")
	assert.Equal(t, VerdictPending, gate.Current().Status)

	gate.Schedule("abcd")
	waitFor(t, checker.started, "abcd")
	waitFor(t, checker.finished, "abcd")

	close(release)
	waitFor(t, checker.finished, "abc")

	require.Eventually(t, func() bool {
		return gate.Current().Status == VerdictTaken
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "abcd", gate.Current().Username)
	assert.Equal(t, "username_taken", gate.Current().FieldError().Code)
}

func TestGateDebounceCoalescesKeystrokes(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := newFakeChecker()
	gate := NewUsernameGate(checker, WithDebounce(30*time.Millisecond))
	defer gate.Close()

	for _, s := range []string{"jo9", "jo99", "jo999"} {
		gate.Schedule(s)
	}
	assert.Equal(t, "jo999", gate.Current().Username)
	assert.Equal(t, VerdictPending, gate.Current().Status)

	waitFor(t, checker.finished, "jo999")
	require.Eventually(t, func() bool {
		return gate.Current().Status == VerdictAvailable
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, checker.callCount())
}

func TestGateAwaitFlushesPendingSchedule(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := newFakeChecker()
	checker.set("jo99", TakenBySelf)
	gate := NewUsernameGate(checker, WithDebounce(time.Hour))
	defer gate.Close()

	gate.Schedule("Jo99")
	v, err := gate.Await(context.Background(), " JO99 ")
	require.NoError(t, err)
	assert.Equal(t, VerdictSelf, v.Status)
	assert.True(t, v.OK())
	assert.Nil(t, v.FieldError())
	assert.Equal(t, 1, checker.callCount())

	// 已有针对同一用户名的结果，不再重复请求
	v, err = gate.Await(context.Background(), "jo99")
	require.NoError(t, err)
	assert.Equal(t, VerdictSelf, v.Status)
	assert.Equal(t, 1, checker.callCount())
}

func TestGateCheckFailureBlocks(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := newFakeChecker()
	checker.fail("jo99", errors.New("connection refused"))
	gate := NewUsernameGate(checker)
	defer gate.Close()

	v, err := gate.Check(context.Background(), "jo99")
	require.NoError(t, err)
	assert.Equal(t, VerdictFailed, v.Status)
	assert.False(t, v.OK())

	fe := v.FieldError()
	require.NotNil(t, fe)
	assert.Equal(t, "username_unverified", fe.Code)
	assert.Equal(t, "Unable to verify username, try again", fe.Message)
}

func TestGateInvalidUsernameSkipsNetwork(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := newFakeChecker()
	gate := NewUsernameGate(checker)
	defer gate.Close()

	gate.Schedule("a!")
	v := gate.Current()
	assert.Equal(t, VerdictInvalid, v.Status)
	assert.Equal(t, "username_too_short", v.FieldError().Code)
	assert.Equal(t, 0, checker.callCount())
}

func TestGateAwaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	checker := newFakeChecker()
	release := checker.hold("slowpoke")
	gate := NewUsernameGate(checker)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gate.Await(ctx, "slowpoke")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, VerdictPending, gate.Current().Status)

	close(release)
	gate.Close()
	assert.Equal(t, VerdictAvailable, gate.Current().Status)
}
