// Alicia is a conversational clinic assistant.
//
// It answers patient chat messages, manages doctor appointments through
// the clinic calendar, answers questions from the clinic knowledge
// base, and holds sensitive actions for staff approval. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	alicia serve             Start the API server
//	alicia ask <question>    Ask a single question (for testing)
//	alicia init [dir]        Write an example config and knowledge doc
//	alicia version           Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kliniksehat/alicia/internal/agent"
	"github.com/kliniksehat/alicia/internal/api"
	"github.com/kliniksehat/alicia/internal/approval"
	"github.com/kliniksehat/alicia/internal/buildinfo"
	"github.com/kliniksehat/alicia/internal/calendar"
	"github.com/kliniksehat/alicia/internal/config"
	"github.com/kliniksehat/alicia/internal/email"
	"github.com/kliniksehat/alicia/internal/embeddings"
	"github.com/kliniksehat/alicia/internal/knowledge"
	"github.com/kliniksehat/alicia/internal/llm"
	"github.com/kliniksehat/alicia/internal/memory"
	"github.com/kliniksehat/alicia/internal/schedule"
	"github.com/kliniksehat/alicia/internal/tools"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. OS-level dependencies are injected so
// the lifecycle can be driven from tests.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			}
		}
	}

	switch command {
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "", "serve":
		return serve(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: alicia ask <question>")
		}
		return ask(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return initDir(stdout, dir)
	case "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command %q (try: alicia help)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, `Alicia — clinic assistant agent

Usage:
  alicia [flags] <command>

Commands:
  serve              Start the API server (default)
  ask <question>     Ask a single question (for testing)
  init [dir]         Write an example config and knowledge doc
  version            Print version and build information
  help               Show this help

Flags:
  -config <path>     Config file path (default: auto-discover)`)
	return nil
}

// app bundles everything built from one config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	loop      *agent.Loop
	server    *api.Server
	kb        *knowledge.Base
	store     *memory.SQLiteStore
	approvals *approval.SQLiteStore
}

func (a *app) close() {
	if a.kb != nil {
		a.kb.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.approvals != nil {
		a.approvals.Close()
	}
}

// build constructs every collaborator explicitly and wires them into
// the agent loop. No globals: substitution with fakes happens at these
// seams in tests.
func build(w io.Writer, configPath string) (*app, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	slog.SetDefault(logger)

	logger.Info("starting", "version", buildinfo.Version, "config", path)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	week, err := schedule.ParseWeekly(cfg.Clinic.Availability)
	if err != nil {
		return nil, fmt.Errorf("clinic availability: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Clinic.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clinic timezone: %w", err)
	}

	cal, err := calendar.NewClient(calendar.Config{
		URL:      cfg.Calendar.URL,
		Username: cfg.Calendar.Username,
		Password: cfg.Calendar.Password,
		Path:     cfg.Calendar.Path,
		Timezone: cfg.Clinic.Timezone,
	}, logger.With("component", "calendar"))
	if err != nil {
		return nil, fmt.Errorf("calendar client: %w", err)
	}

	smtpCfg := email.SMTPConfig{
		Host:       cfg.SMTP.Host,
		Port:       cfg.SMTP.Port,
		StartTLS:   cfg.SMTP.StartTLS,
		Username:   cfg.SMTP.Username,
		Password:   cfg.SMTP.Password,
		From:       cfg.SMTP.From,
		SenderName: cfg.SMTP.SenderName,
	}
	mailer := email.NewService(email.NewSMTPMailer(smtpCfg), smtpCfg, cfg.Clinic.Name,
		logger.With("component", "email"))

	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
	})

	kb, err := knowledge.NewBase(filepath.Join(cfg.DataDir, "knowledge.db"), embedder, knowledge.Config{
		DocsDir:      cfg.Knowledge.DocsDir,
		ChunkSize:    cfg.Knowledge.ChunkSize,
		ChunkOverlap: cfg.Knowledge.ChunkOverlap,
		TopK:         cfg.Knowledge.TopK,
	}, logger.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("knowledge base: %w", err)
	}

	store, err := memory.NewSQLiteStore(filepath.Join(cfg.DataDir, "conversations.db"), 100)
	if err != nil {
		kb.Close()
		return nil, fmt.Errorf("conversation store: %w", err)
	}

	approvals, err := approval.NewSQLiteStore(filepath.Join(cfg.DataDir, "approvals.db"))
	if err != nil {
		kb.Close()
		store.Close()
		return nil, fmt.Errorf("approval store: %w", err)
	}

	var longterm memory.LongTerm = memory.NoopLongTerm{}
	if cfg.Memory.BaseURL != "" {
		longterm = memory.NewLongTermClient(memory.LongTermConfig{
			BaseURL: cfg.Memory.BaseURL,
			APIKey:  cfg.Memory.APIKey,
		})
	}

	registry := tools.NewRegistry(tools.Deps{
		Calendar:      cal,
		Email:         mailer,
		Knowledge:     kb,
		Schedule:      week,
		Location:      loc,
		ClinicName:    cfg.Clinic.Name,
		ClinicAddress: cfg.Clinic.Location,
		Logger:        logger.With("component", "tools"),
	})

	client := llm.NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.BaseURL,
		logger.With("component", "llm"))

	loop := agent.New(logger.With("component", "agent"), client, registry,
		store, longterm, approvals, week, agent.Config{
			Model:         cfg.Gemini.Model,
			ClinicName:    cfg.Clinic.Name,
			ClinicAddress: cfg.Clinic.Location,
		})

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, approvals,
		logger.With("component", "api"))

	return &app{
		cfg:       cfg,
		logger:    logger,
		loop:      loop,
		server:    server,
		kb:        kb,
		store:     store,
		approvals: approvals,
	}, nil
}

func serve(ctx context.Context, stdout io.Writer, configPath string) error {
	a, err := build(stdout, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	// SIGINT/SIGTERM trigger graceful shutdown.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.cfg.Knowledge.DocsDir != "" {
		syncCtx, syncCancel := context.WithTimeout(ctx, 5*time.Minute)
		if err := a.kb.Sync(syncCtx); err != nil {
			a.logger.Warn("knowledge base sync failed", "error", err)
		}
		syncCancel()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return a.server.Shutdown(shutdownCtx)
}

func ask(ctx context.Context, stdout io.Writer, configPath, question string) error {
	a, err := build(os.Stderr, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Knowledge.DocsDir != "" {
		if err := a.kb.Sync(ctx); err != nil {
			a.logger.Warn("knowledge base sync failed", "error", err)
		}
	}

	resp, err := a.loop.Run(ctx, "cli", a.cfg.Memory.DefaultUser, question)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, resp.Content)
	if resp.PendingApproval {
		fmt.Fprintf(stdout, "(approval pending: %s)\n", resp.ApprovalID)
	}
	return nil
}
