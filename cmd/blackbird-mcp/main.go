// blackbird-mcp exposes the Blackbird Compass API as MCP tools, allowing
// Claude Desktop and any MCP-compatible AI host to fact-check text and
// analyze images for AI generation.
//
// Add to Claude Desktop (~/.claude/claude_desktop_config.json):
//
//	{
//	  "mcpServers": {
//	    "blackbird": {
//	      "command": "/path/to/blackbird-mcp",
//	      "env": {
//	        "BLACKBIRD_CLIENT_KEY": "...",
//	        "BLACKBIRD_SECRET_KEY": "..."
//	      }
//	    }
//	  }
//	}
//
// Username/password credentials work too (BLACKBIRD_USERNAME and
// BLACKBIRD_PASSWORD); the client-key pair wins when both are set.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackbird-ai/blackbird-mcp/internal/config"
	"github.com/blackbird-ai/blackbird-mcp/internal/mcpserver"
	"github.com/blackbird-ai/blackbird-mcp/internal/ops"
	"github.com/blackbird-ai/blackbird-mcp/pkg/compass"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blackbird-mcp",
	Short: "MCP server for the Blackbird Compass API",
	Long: `blackbird-mcp is a stdio MCP server that exposes two Blackbird Compass
tools to any MCP-compatible AI host (Claude Desktop, Cursor, etc.):

  check_context — fact-check the claims in a passage of text
  check_vision  — detect whether an image is fake or AI-generated

Credentials come from the environment: either BLACKBIRD_CLIENT_KEY and
BLACKBIRD_SECRET_KEY, or BLACKBIRD_USERNAME and BLACKBIRD_PASSWORD.

The server runs in stdio mode (the MCP standard for local servers).
All logging goes to stderr so it does not interfere with the protocol.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ~/.blackbird-mcp/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the blackbird-mcp version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println(version)
	},
}

func run(cmd *cobra.Command, _ []string) error {
	// stdout is the protocol channel; zap's production config sinks to stderr.
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// A missing or partial credential pair is fatal before anything starts.
	creds, err := compass.ResolveCredentials(os.Getenv)
	if err != nil {
		return err
	}
	logger.Info("credentials resolved", zap.String("auth_mode", string(creds.Mode)))

	opts := []compass.Option{
		compass.WithBaseURL(cfg.BaseURL),
		compass.WithLogger(logger),
		compass.WithRetryPolicy(cfg.Retry),
		compass.WithPollConfig(cfg.Poll),
		compass.WithTokenMargin(cfg.TokenMargin),
		compass.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		compass.WithHooks(compass.Hooks{
			OnAttempt:      ops.RecordAttempt,
			OnRetry:        ops.RecordRetry,
			OnTokenRefresh: ops.RecordTokenRefresh,
		}),
	}
	if cfg.AuthURL != "" {
		opts = append(opts, compass.WithAuthURL(cfg.AuthURL))
	}

	client, err := compass.New(creds, opts...)
	if err != nil {
		return fmt.Errorf("create compass client: %w", err)
	}

	tools, err := mcpserver.NewToolRegistry(client, logger)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}
	tools.SetCallRecorder(ops.RecordToolCall)

	server := mcpserver.NewServer(os.Stdout, tools, version, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OpsAddr != "" {
		opsSrv := ops.New(cfg.OpsAddr, cfg.OpsCORSOrigins, ops.HealthInfo{
			Version:  version,
			AuthMode: string(creds.Mode),
			BaseURL:  client.BaseURL(),
		}, logger)
		go opsSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			opsSrv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	logger.Info("blackbird MCP server ready",
		zap.String("base_url", client.BaseURL()),
		zap.String("tools", "check_context, check_vision"),
	)

	return server.Serve(ctx, os.Stdin)
}
