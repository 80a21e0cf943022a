package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JayThibs/uk-bio-bank-chat-app/internal/web"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the HTTP server exposing the JSON API:

  POST /api/ingest          load CSV files       {"paths": [...], "store": "", "force": false}
  GET  /api/schema          table -> columns     ?store=
  GET  /api/schema/{table}  column details
  POST /api/query           run read-only SQL    {"sql": "...", "limit": 50}
  POST /api/sql             question -> SQL      {"question": "..."}
  POST /api/ask             question -> report   {"question": "..."}
  GET  /api/history         recent activity      ?store=&limit=
  GET  /healthz

The question endpoints require ANTHROPIC_API_KEY and are rate limited.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "addr", "a", "", "Address to listen on (default from config, :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) {
	a := mustApp(cmd)
	defer a.cleanup()

	addr := a.cfg.ListenAddr
	if listenAddr != "" {
		addr = listenAddr
	}

	svc, err := a.assistant(true)
	if err != nil {
		a.logger.Warn("Question answering disabled", "error", err)
		svc = nil
	}

	handler := web.NewRouter(web.ServerConfig{
		Registry:           a.registry,
		Catalog:            a.catalog,
		Ingestor:           a.ingestor,
		Assistant:          svc,
		History:            a.meta,
		QueryRowLimit:      a.cfg.QueryRowLimit,
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
		RateLimit: web.RateLimitConfig{
			RequestsPerSecond: a.cfg.RateLimitRPS,
			Burst:             a.cfg.RateLimitBurst,
		},
		Logger: a.logger,
	})

	fmt.Printf("Starting UK Biobank Explorer web server...\n")
	fmt.Printf("Data directory: %s\n", a.cfg.DataDir)
	fmt.Printf("Store: %s\n", a.registry.DefaultID())
	fmt.Printf("Address: %s\n", addr)
	if svc == nil {
		fmt.Printf("Question answering: disabled (set ANTHROPIC_API_KEY)\n")
	}
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := web.ListenAndServe(ctx, addr, handler, a.logger); err != nil {
		a.fail(err, "Server failed")
	}
}
