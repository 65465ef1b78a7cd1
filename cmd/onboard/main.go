// Command skillswap-onboard 在终端里运行引导流程：本地保存会话，
// 通过 REST 接口完成用户状态查询、用户名查重和最终提交。
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"SkillSwap/config"
	"SkillSwap/internal/onboarding"
	"SkillSwap/pkg/client"
	"SkillSwap/pkg/token"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// needsAPI 标注需要访问令牌和 API 客户端的子命令
const needsAPI = "needs-api"

var apiAnnotation = map[string]string{needsAPI: "true"}

// cli 命令共享的状态，在 PersistentPreRunE 中按最终的 flag 值初始化
type cli struct {
	cfg    *config.ClientConfig
	api    *client.Client
	claims token.Claims
}

func newRootCmd(cfg *config.ClientConfig) *cobra.Command {
	c := &cli{cfg: cfg}

	cmd := &cobra.Command{
		Use:           "skillswap-onboard",
		Short:         "Complete SkillSwap onboarding from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[needsAPI] == "" {
				return nil
			}
			return c.connect()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "SkillSwap API base URL")
	flags.StringVar(&cfg.AccessToken, "token", cfg.AccessToken, "Bearer token issued by the identity provider")
	flags.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "Directory holding the local wizard session")
	flags.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "Per-request timeout")

	cmd.AddCommand(
		stepsCmd(),
		c.statusCmd(),
		c.checkUsernameCmd(),
		c.applyCmd(),
		c.resetCmd(),
	)
	return cmd
}

func (c *cli) connect() error {
	if c.cfg.AccessToken == "" {
		return errors.New("access token required: set SKILLSWAP_TOKEN or pass --token")
	}
	claims, err := token.PeekClaims(c.cfg.AccessToken)
	if err != nil {
		return err
	}
	api, err := client.New(c.cfg.BaseURL, c.cfg.AccessToken, client.WithTimeout(c.cfg.HTTPTimeout))
	if err != nil {
		return err
	}
	c.claims = claims
	c.api = api
	return nil
}

// CurrentUserID 实现 onboarding.Identity
func (c *cli) CurrentUserID(context.Context) (string, bool) {
	return c.claims.UserID, c.claims.UserID != ""
}

func (c *cli) CurrentUserProfile(context.Context) (onboarding.Profile, error) {
	return onboarding.Profile{DisplayName: c.claims.Name, AvatarURL: c.claims.AvatarURL}, nil
}

func stepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List wizard steps and the fields each one owns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type step struct {
				Key    string   `json:"key"`
				Name   string   `json:"name"`
				Fields []string `json:"fields,omitempty"`
			}
			out := make([]step, 0, len(onboarding.Steps))
			for _, def := range onboarding.Steps {
				out = append(out, step{Key: def.Key, Name: def.Name, Fields: def.Fields})
			}
			return writeYAML(cmd.OutOrStdout(), out)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Annotations: apiAnnotation,
		Short:       "Show whether the current user exists and has finished onboarding",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.api.UserStatus(cmd.Context(), c.claims.UserID)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), st)
		},
	}
}

func (c *cli) checkUsernameCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "check-username [USERNAME]",
		Annotations: apiAnnotation,
		Short:       "Check whether a username is free",
		Long: `Without an argument, candidates are read from stdin one per line and
each line counts as an edit: only the candidate that stays unchanged for the
debounce window (or the last one) is sent to the server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate := onboarding.NewUsernameGate(c.api,
				onboarding.WithDebounce(c.cfg.Debounce),
				onboarding.WithCheckTimeout(c.cfg.HTTPTimeout),
			)
			defer gate.Close()

			var v onboarding.Verdict
			var err error
			if len(args) == 1 {
				v, err = gate.Check(cmd.Context(), args[0])
			} else {
				v, err = pickUsername(cmd.Context(), cmd.InOrStdin(), cmd.ErrOrStderr(), gate)
			}
			if err != nil {
				return err
			}

			out := map[string]string{"username": v.Username, "status": string(v.Status)}
			if fe := v.FieldError(); fe != nil {
				out["message"] = fe.Message
			}
			if v.Err != nil {
				out["error"] = v.Err.Error()
			}
			return writeYAML(cmd.OutOrStdout(), out)
		},
	}
}

// pickUsername 逐行读取候选用户名，每行都按一次输入变化防抖，
// 格式错误立即提示；输入结束后等待最后一个候选的查重结论
func pickUsername(ctx context.Context, in io.Reader, hints io.Writer, gate *onboarding.UsernameGate) (onboarding.Verdict, error) {
	var last string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		gate.Schedule(line)
		if v := gate.Current(); v.Status == onboarding.VerdictInvalid {
			fmt.Fprintf(hints, "%s: %s\n", line, v.FieldError().Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return onboarding.Verdict{}, fmt.Errorf("failed to read usernames: %w", err)
	}
	if last == "" {
		return onboarding.Verdict{}, errors.New("no username entered")
	}
	return gate.Await(ctx, last)
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "reset",
		Annotations: apiAnnotation,
		Short:       "Discard the local session and start over",
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, closeFlow, err := c.openFlow(cmd.Context())
			if errors.Is(err, onboarding.ErrAlreadyOnboarded) {
				fmt.Fprintln(cmd.OutOrStdout(), "already onboarded")
				return nil
			}
			if err != nil {
				return err
			}
			defer closeFlow()

			if err := f.JumpToStart(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session reset")
			return nil
		},
	}
}

// openFlow 打开本地流程，返回的 close 释放用户名查重门
func (c *cli) openFlow(ctx context.Context) (*onboarding.Flow, func(), error) {
	store, err := onboarding.NewFileStore(c.cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	gate := onboarding.NewUsernameGate(c.api,
		onboarding.WithDebounce(c.cfg.Debounce),
		onboarding.WithCheckTimeout(c.cfg.HTTPTimeout),
	)

	f, err := onboarding.Open(ctx, "", onboarding.Deps{
		Store:     store,
		Status:    c.api,
		Submitter: onboarding.NewSubmitter(c.api, onboarding.WithDefaultLanguage(c.cfg.DefaultLanguage)),
		Gate:      gate,
		Identity:  c,
	})
	if err != nil {
		gate.Close()
		return nil, nil, err
	}
	return f, gate.Close, nil
}

// writeYAML 先按 json 标签转成通用结构再输出，字段名与 API 保持一致
func writeYAML(w io.Writer, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var plain interface{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plain); err != nil {
		return err
	}
	return enc.Close()
}
