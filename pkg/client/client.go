// Package client 通过 REST 接口实现引导流程的协作方，
// 使 Go 进程可以在本地运行 onboarding.Flow。
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"

	"SkillSwap/internal/model/dto"
	"SkillSwap/internal/onboarding"
	"SkillSwap/pkg/errors"
)

// APIError 服务端返回的业务错误，可用 errors.Is 与 pkg/errors 中的定义比较
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("skillswap api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return errors.Get(e.Code)
}

// Client 使用调用者的访问令牌访问协作方接口
type Client struct {
	hc      *client.Client
	baseURL string
	token   string
	timeout time.Duration
}

type Option func(*Client)

// WithTimeout 单次请求超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL, accessToken string, opts ...Option) (*Client, error) {
	hc, err := client.NewClient(client.WithDialTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	c := &Client{
		hc:      hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   accessToken,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UserStatus 实现 onboarding.StatusProvider。用户由令牌确定，userID 只用于校验调用方
func (c *Client) UserStatus(ctx context.Context, _ string) (onboarding.Status, error) {
	var data dto.UserStatusData
	if err := c.do(ctx, http.MethodGet, "/v1/users/me/status", nil, &data); err != nil {
		return onboarding.Status{}, err
	}

	status := onboarding.Status{Exists: data.Exists, Onboarded: data.Onboarded}
	if data.User != nil {
		status.User = &onboarding.UserRecord{
			ID:          data.User.ID,
			Username:    data.User.Username,
			DisplayName: data.User.DisplayName,
			AvatarURL:   data.User.AvatarURL,
			Onboarded:   data.User.Onboarded,
		}
	}
	return status, nil
}

// CheckUsername 实现 onboarding.UsernameChecker
func (c *Client) CheckUsername(ctx context.Context, username string) (onboarding.Availability, error) {
	var data dto.CheckUsernameData
	if err := c.do(ctx, http.MethodPost, "/v1/users/check-username", dto.CheckUsernameRequest{Username: username}, &data); err != nil {
		return "", err
	}
	if data.Availability == "" {
		// 只返回 is_unique 的旧版本服务端
		if data.IsUnique {
			return onboarding.Available, nil
		}
		return onboarding.TakenByOther, nil
	}
	return data.Availability, nil
}

// CompleteOnboarding 实现 onboarding.Completer，409 映射为 ErrAlreadyOnboarded
func (c *Client) CompleteOnboarding(ctx context.Context, p onboarding.Payload) error {
	err := c.do(ctx, http.MethodPost, "/v1/onboarding/complete", p, nil)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusConflict && apiErr.Code == errors.AlreadyOnboarded.Code {
		return onboarding.ErrAlreadyOnboarded
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer func() {
		protocol.ReleaseRequest(req)
		protocol.ReleaseResponse(resp)
	}()

	req.SetRequestURI(c.baseURL + path)
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(b)
	}

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &envelope)
		if envelope.Error.Code == "" {
			envelope.Error.Code = errors.Internal.Code
			envelope.Error.Message = http.StatusText(status)
		}
		return &APIError{Status: status, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}

	if out == nil {
		return nil
	}
	envelope := struct {
		Data interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
