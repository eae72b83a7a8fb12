package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/dataloom-agent/internal/agent"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
	"github.com/KaramelBytes/dataloom-agent/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	anaQuestions string
	anaOutput    string
	anaTimeout   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Answer a question set against local files and print the JSON answers",
	Example: `  dataloom analyze -q questions.txt sales.csv
  dataloom analyze -q questions.txt --output answers.json data.xlsx notes.md
  dataloom analyze -q questions.txt   # questions that name a URL scrape it`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if anaQuestions == "" {
			return fmt.Errorf("--questions is required")
		}
		text, err := os.ReadFile(anaQuestions)
		if err != nil {
			return fmt.Errorf("read questions: %w", err)
		}
		files := make(map[string]string, len(args))
		for _, p := range args {
			st, err := os.Stat(p)
			if err != nil {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			if st.IsDir() {
				return fmt.Errorf("%s is a directory", p)
			}
			name := filepath.Base(p)
			if _, dup := files[name]; dup {
				return fmt.Errorf("duplicate file name %q", name)
			}
			files[name] = p
		}

		c, err := requireConfig()
		if err != nil {
			return err
		}
		defer setupLogging(c, c.Debug)()

		a, err := newAgent(c)
		if err != nil {
			return err
		}
		timeout := c.RequestTimeoutSec
		if anaTimeout > 0 {
			timeout = anaTimeout
		}
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, cancel := context.WithTimeout(parent, time.Duration(timeout)*time.Second)
		defer cancel()
		ctx = logger.WithContext(ctx, logger.L().With("request_id", uuid.NewString()))

		answers, err := a.Run(ctx, agent.Request{Questions: string(text), Files: files})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("analysis timed out after %ds", timeout)
			}
			return err
		}
		out, err := utils.PrettyJSON(answers)
		if err != nil {
			return err
		}
		if anaOutput != "" {
			if err := utils.SafeWriteFile(anaOutput, append(out, '\n'), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote answers to %s\n", anaOutput)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaQuestions, "questions", "q", "", "path to the questions file (numbered list)")
	analyzeCmd.Flags().StringVarP(&anaOutput, "output", "o", "", "optional path to write the JSON answers")
	analyzeCmd.Flags().IntVar(&anaTimeout, "timeout", 0, "analysis timeout in seconds (overrides request_timeout_sec)")
}
