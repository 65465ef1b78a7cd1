package onboarding

import (
	"context"
	"sync"
	"time"
)

// Availability 用户名查重服务的返回值
type Availability string

const (
	Available    Availability = "available"
	TakenByOther Availability = "taken_by_other"
	TakenBySelf  Availability = "taken_by_self" // 当前用户自己的用户名，视为可用
)

// UsernameChecker 用户名查重协作方，入参已去空白并转小写
type UsernameChecker interface {
	CheckUsername(ctx context.Context, username string) (Availability, error)
}

// VerdictStatus 最新一次查重的状态
type VerdictStatus string

const (
	VerdictIdle      VerdictStatus = "idle"
	VerdictPending   VerdictStatus = "pending"
	VerdictAvailable VerdictStatus = "available"
	VerdictSelf      VerdictStatus = "self"
	VerdictTaken     VerdictStatus = "taken"
	VerdictFailed    VerdictStatus = "failed"
	VerdictInvalid   VerdictStatus = "invalid"
)

// Verdict 某个用户名的查重结论
type Verdict struct {
	Username string        `json:"username"`
	Status   VerdictStatus `json:"status"`
	Reason   *FieldError   `json:"reason,omitempty"`
	Err      error         `json:"-"`
}

// OK 可用或属于自己
func (v Verdict) OK() bool {
	return v.Status == VerdictAvailable || v.Status == VerdictSelf
}

// FieldError 把结论转换为 username 字段错误，可用时返回 nil
func (v Verdict) FieldError() *FieldError {
	switch v.Status {
	case VerdictAvailable, VerdictSelf:
		return nil
	case VerdictTaken:
		return &FieldError{Field: "username", Code: "username_taken", Message: "This username is already taken"}
	case VerdictFailed:
		return &FieldError{Field: "username", Code: "username_unverified", Message: "Unable to verify username, try again"}
	case VerdictInvalid:
		if v.Reason != nil {
			return v.Reason
		}
		return &FieldError{Field: "username", Code: "username_invalid", Message: "Username is invalid"}
	default:
		return &FieldError{Field: "username", Code: "username_pending", Message: "Still checking username availability"}
	}
}

func verdictFrom(username string, a Availability, err error) Verdict {
	if err != nil {
		return Verdict{Username: username, Status: VerdictFailed, Err: err}
	}
	switch a {
	case Available:
		return Verdict{Username: username, Status: VerdictAvailable}
	case TakenBySelf:
		return Verdict{Username: username, Status: VerdictSelf}
	case TakenByOther:
		return Verdict{Username: username, Status: VerdictTaken}
	default:
		return Verdict{Username: username, Status: VerdictFailed}
	}
}

type usernameCheck struct {
	seq      uint64
	username string
	done     chan struct{}
	verdict  Verdict
}

// UsernameGate 对查重请求做防抖，并保证只有最后发出的请求能决定结果。
// 被取代的请求会继续执行完，但结果被丢弃。
type UsernameGate struct {
	checker  UsernameChecker
	debounce time.Duration
	timeout  time.Duration

	mu        sync.Mutex
	seq       uint64
	latest    *usernameCheck
	invalid   *Verdict
	scheduled string
	timer     *time.Timer
	timerGen  uint64
	wg        sync.WaitGroup
}

// GateOption 配置项
type GateOption func(*UsernameGate)

// WithDebounce 用户停止输入多久后才发出请求
func WithDebounce(d time.Duration) GateOption {
	return func(g *UsernameGate) { g.debounce = d }
}

// WithCheckTimeout 单次查重的超时时间
func WithCheckTimeout(d time.Duration) GateOption {
	return func(g *UsernameGate) { g.timeout = d }
}

func NewUsernameGate(checker UsernameChecker, opts ...GateOption) *UsernameGate {
	g := &UsernameGate{
		checker:  checker,
		debounce: 400 * time.Millisecond,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Schedule 输入变化时调用，防抖后发出查重
func (g *UsernameGate) Schedule(raw string) {
	username, fe := NormalizeUsername(raw)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopTimerLocked()
	if fe != nil {
		g.supersedeLocked(Verdict{Username: username, Status: VerdictInvalid, Reason: fe})
		return
	}

	g.invalid = nil
	g.scheduled = username
	gen := g.timerGen
	g.timer = time.AfterFunc(g.debounce, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.timerGen != gen || g.scheduled != username {
			return
		}
		g.issueLocked(username)
	})
}

// Check 立即发出查重并等待该请求自身的结果
func (g *UsernameGate) Check(ctx context.Context, raw string) (Verdict, error) {
	username, fe := NormalizeUsername(raw)

	g.mu.Lock()
	g.stopTimerLocked()
	if fe != nil {
		v := Verdict{Username: username, Status: VerdictInvalid, Reason: fe}
		g.supersedeLocked(v)
		g.mu.Unlock()
		return v, nil
	}
	c := g.issueLocked(username)
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	case <-c.done:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return c.verdict, nil
}

// Await 点击"继续"时调用：等待针对该用户名的最新请求完成；
// 若没有针对该用户名的请求，则立即发出一个。
// 等待期间若被更新的请求取代，返回 Pending。
func (g *UsernameGate) Await(ctx context.Context, raw string) (Verdict, error) {
	username, fe := NormalizeUsername(raw)
	if fe != nil {
		return Verdict{Username: username, Status: VerdictInvalid, Reason: fe}, nil
	}

	g.mu.Lock()
	c := g.latest
	if g.scheduled != "" || g.invalid != nil || c == nil || c.username != username {
		g.stopTimerLocked()
		c = g.issueLocked(username)
	}
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	case <-c.done:
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latest != c || g.scheduled != "" {
		return Verdict{Username: username, Status: VerdictPending}, nil
	}
	return c.verdict, nil
}

// Current 最新一次发出的查重的状态
func (g *UsernameGate) Current() Verdict {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.invalid != nil:
		return *g.invalid
	case g.scheduled != "":
		return Verdict{Username: g.scheduled, Status: VerdictPending}
	case g.latest == nil:
		return Verdict{Status: VerdictIdle}
	}

	select {
	case <-g.latest.done:
		return g.latest.verdict
	default:
		return Verdict{Username: g.latest.username, Status: VerdictPending}
	}
}

// Close 停止防抖计时器并等待在途请求结束
func (g *UsernameGate) Close() {
	g.mu.Lock()
	g.stopTimerLocked()
	g.scheduled = ""
	g.mu.Unlock()

	g.wg.Wait()
}

func (g *UsernameGate) stopTimerLocked() {
	g.timerGen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// supersedeLocked 无需请求即可得出结论（格式错误），同时让在途请求失效
func (g *UsernameGate) supersedeLocked(v Verdict) {
	g.seq++
	g.latest = nil
	g.scheduled = ""
	g.invalid = &v
}

func (g *UsernameGate) issueLocked(username string) *usernameCheck {
	g.seq++
	c := &usernameCheck{seq: g.seq, username: username, done: make(chan struct{})}
	g.latest = c
	g.scheduled = ""
	g.invalid = nil

	g.wg.Add(1)
	go g.run(c)
	return c
}

func (g *UsernameGate) run(c *usernameCheck) {
	defer g.wg.Done()

	// 不跟随调用方取消：被取代的请求允许跑完，只是结果不再生效
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	a, err := g.checker.CheckUsername(ctx, c.username)
	v := verdictFrom(c.username, a, err)

	g.mu.Lock()
	c.verdict = v
	close(c.done)
	g.mu.Unlock()
}
