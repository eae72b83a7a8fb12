package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/dataloom-agent/internal/logger"
	"github.com/KaramelBytes/dataloom-agent/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveWorkDir string
	serveTimeout int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis service",
	Long: `Starts the HTTP service. POST a multipart form to /api/ with a
questions.txt field and any number of data files; the answers come back as JSON.`,
	Example: `  dataloom serve
  dataloom serve --addr :9000 --timeout 300
  curl -F "questions.txt=@questions.txt" -F "data.csv=@data.csv" http://localhost:8000/api/`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		defer setupLogging(c, true)()

		a, err := newAgent(c)
		if err != nil {
			return err
		}
		addr := c.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		timeout := c.RequestTimeoutSec
		if serveTimeout > 0 {
			timeout = serveTimeout
		}
		srv := server.New(a, server.Config{
			Version:        Version,
			RequestTimeout: time.Duration(timeout) * time.Second,
			MaxUploadBytes: int64(c.MaxUploadMB) << 20,
			WorkDir:        serveWorkDir,
			Debug:          c.Debug,
		})

		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.L().Info("server.starting", "addr", addr, "provider", c.Provider, "model", c.Model, "version", Version)
		fmt.Printf("✓ Listening on %s\n", addr)
		if err := srv.Run(ctx, addr); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		fmt.Println("✓ Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr and PORT)")
	serveCmd.Flags().StringVar(&serveWorkDir, "work-dir", "", "directory for per-request workspaces (default: system temp dir)")
	serveCmd.Flags().IntVar(&serveTimeout, "timeout", 0, "per-request analysis timeout in seconds (overrides request_timeout_sec)")
}
