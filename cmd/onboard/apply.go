package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"SkillSwap/internal/onboarding"
)

func (c *cli) applyCmd() *cobra.Command {
	var skipWallet bool

	cmd := &cobra.Command{
		Use:   "apply ANSWERS.yaml",
		Short: "Walk the wizard with answers from a YAML file and submit",
		Long: `Answers are grouped by step key (see "steps"). Steps missing from the
file reuse what the local session already holds, so a rejected run can be
fixed and re-applied without repeating earlier steps.`,
		Annotations: apiAnnotation,
		Args:        cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := loadAnswers(args[0])
			if err != nil {
				return err
			}

			f, closeFlow, err := c.openFlow(cmd.Context())
			if errors.Is(err, onboarding.ErrAlreadyOnboarded) {
				fmt.Fprintln(cmd.OutOrStdout(), "already onboarded")
				return nil
			}
			if err != nil {
				return err
			}
			defer closeFlow()

			return runWizard(cmd.Context(), cmd.OutOrStdout(), f, drafts, skipWallet)
		},
	}
	cmd.Flags().BoolVar(&skipWallet, "skip-wallet", false, "Submit without connecting a wallet")
	return cmd
}

// errStepRejected 某一步校验失败，会话停在该步
var errStepRejected = errors.New("step rejected")

// runWizard 从会话当前步骤开始逐步前进，到达最后一步后提交
func runWizard(ctx context.Context, out io.Writer, f *onboarding.Flow, drafts map[string]onboarding.Draft, skipWallet bool) error {
	for f.Step() != onboarding.LastStep {
		def, _ := onboarding.Lookup(f.Step())
		d, ok := drafts[def.Key]
		if !ok {
			d = f.Draft()
		}

		res, err := f.Advance(ctx, d)
		if err != nil {
			return err
		}
		if !res.Success {
			printErrors(out, def.Name, res.Errors)
			return fmt.Errorf("%w: %s", errStepRejected, def.Key)
		}
		fmt.Fprintf(out, "ok  %s\n", def.Name)
	}

	def, _ := onboarding.Lookup(onboarding.LastStep)
	d, ok := drafts[def.Key]
	if !ok {
		skipWallet = true
	}

	res, err := f.Submit(ctx, d, skipWallet)
	if err != nil {
		return err
	}
	if !res.Validation.Success {
		printErrors(out, def.Name, res.Validation.Errors)
		return fmt.Errorf("%w: %s", errStepRejected, def.Key)
	}
	fmt.Fprintf(out, "submitted: %s\n", res.Outcome)
	return nil
}

func printErrors(out io.Writer, step string, errs []onboarding.FieldError) {
	fmt.Fprintf(out, "--  %s\n", step)
	for _, fe := range errs {
		fmt.Fprintf(out, "    %s: %s\n", fe.Field, fe.Message)
	}
}

// loadAnswers 读取按步骤分组的答案文件
func loadAnswers(path string) (map[string]onboarding.Draft, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}
	return parseAnswers(raw)
}

func parseAnswers(raw []byte) (map[string]onboarding.Draft, error) {
	var doc map[string]map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse answers: %w", err)
	}

	known := make(map[string]bool, len(onboarding.Steps))
	for _, def := range onboarding.Steps {
		known[def.Key] = true
	}

	drafts := make(map[string]onboarding.Draft, len(doc))
	for key, fields := range doc {
		if !known[key] {
			return nil, fmt.Errorf("unknown step %q", key)
		}
		// 年龄在草稿里是原始输入，YAML 写成数字时按文本处理
		if age, ok := fields["age"].(int); ok {
			fields["age"] = strconv.Itoa(age)
		}

		buf, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(buf))
		dec.DisallowUnknownFields()

		var d onboarding.Draft
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("step %q: %w", key, err)
		}
		drafts[key] = d
	}
	return drafts, nil
}
