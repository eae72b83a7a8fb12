package cmd

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
	cfgpkg "github.com/KaramelBytes/dataloom-agent/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set DataLoom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "api_key: %s\n", mask(c.APIKey))
		fmt.Fprintf(out, "provider: %s\n", c.Provider)
		fmt.Fprintf(out, "model: %s\n", c.Model)
		if c.BaseURL != "" {
			fmt.Fprintf(out, "base_url: %s\n", c.BaseURL)
		}
		if c.Provider == ai.ProviderOllama {
			fmt.Fprintf(out, "ollama_host: %s\n", c.OllamaHost)
		}
		fmt.Fprintf(out, "max_tokens: %d\n", c.MaxTokens)
		fmt.Fprintf(out, "temperature: %.3f\n", c.Temperature)
		fmt.Fprintf(out, "listen_addr: %s\n", c.ListenAddr)
		fmt.Fprintf(out, "request_timeout_sec: %d\n", c.RequestTimeoutSec)
		fmt.Fprintf(out, "max_upload_mb: %d\n", c.MaxUploadMB)
		fmt.Fprintf(out, "max_rows: %d\n", c.MaxRows)
		fmt.Fprintf(out, "sample_rows: %d\n", c.SampleRows)
		fmt.Fprintf(out, "image_max_bytes: %d\n", c.ImageMaxBytes)
		fmt.Fprintf(out, "log_dir: %s\n", c.LogDir)
		fmt.Fprintf(out, "debug: %t\n", c.Debug)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(c, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	intVal := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "api_key":
		c.APIKey = val
	case "provider":
		p := strings.ToLower(strings.TrimSpace(val))
		if p == "local" {
			p = ai.ProviderOllama
		}
		if !slices.Contains(ai.Providers(), p) {
			return fmt.Errorf("invalid provider: %s (use %s)", val, strings.Join(ai.Providers(), ", "))
		}
		c.Provider = p
	case "model":
		c.Model = val
	case "base_url":
		c.BaseURL = val
	case "ollama_host":
		c.OllamaHost = val
	case "max_tokens":
		c.MaxTokens, err = intVal()
	case "temperature":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid float for temperature: %v", val)
		}
		c.Temperature = f
	case "http_timeout_sec":
		c.HTTPTimeoutSec, err = intVal()
	case "retry_max_attempts":
		c.RetryMaxAttempts, err = intVal()
	case "retry_base_delay_ms":
		c.RetryBaseDelayMs, err = intVal()
	case "retry_max_delay_ms":
		c.RetryMaxDelayMs, err = intVal()
	case "listen_addr":
		c.ListenAddr = val
	case "request_timeout_sec":
		c.RequestTimeoutSec, err = intVal()
	case "max_upload_mb":
		c.MaxUploadMB, err = intVal()
	case "max_rows":
		c.MaxRows, err = intVal()
	case "sample_rows":
		c.SampleRows, err = intVal()
	case "image_max_bytes":
		c.ImageMaxBytes, err = intVal()
	case "scrape_user_agent":
		c.ScrapeUserAgent = val
	case "log_dir":
		c.LogDir = val
	case "debug":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for debug: %v", val)
		}
		c.Debug = b
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
