// Package main provides the CLI entry point for the Experience Server,
// the voice/chat multiplexer that binds a single local agent Runtime to
// HTTP chat and WebRTC/SSE voice transports. There is no Slack endpoint.
//
// # Basic Usage
//
// Start the server:
//
//	experienced serve --config experience.yaml
//
// Check local install health without starting a listener:
//
//	experienced doctor-lite
//
// Rebuild the durable session discovery index from disk:
//
//	experienced migrate-index
//
// # Environment Variables
//
//   - EXPERIENCE_CONFIG: Path to configuration file, used when --config is
//     not given (with neither set, built-in defaults are used and no file
//     is read)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/nexus-experience/internal/backend"
	"github.com/haasonsaas/nexus-experience/internal/backupstore"
	"github.com/haasonsaas/nexus-experience/internal/config"
	"github.com/haasonsaas/nexus-experience/internal/cronjobs"
	"github.com/haasonsaas/nexus-experience/internal/discovery"
	"github.com/haasonsaas/nexus-experience/internal/httpapi"
	"github.com/haasonsaas/nexus-experience/internal/metrics"
	"github.com/haasonsaas/nexus-experience/internal/runtime"
	"github.com/haasonsaas/nexus-experience/internal/transcript"
	"github.com/haasonsaas/nexus-experience/internal/voiceconn"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
	debug      bool
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "experienced",
		Short: "Experience Server - voice and chat multiplexer for a local agent runtime",
		Long: `experienced binds a single local agent Runtime to an HTTP chat
API and a WebRTC/SSE voice transport, sharing one Session Backend
across both.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd(), buildDoctorLiteCmd(), buildMigrateIndexCmd())
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("EXPERIENCE_CONFIG"); env != "" {
		return env
	}
	return ""
}

func buildServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Experience Server",
		Long: `Start the Experience Server.

The server will:
1. Load configuration from the specified file (or EXPERIENCE_CONFIG)
2. Construct the Session Backend against the local agent Runtime
3. Wire the Voice Connection manager's Streaming Hook and Protocol
   Adapters onto every session the backend creates
4. Serve the HTTP chat routes and /apps/voice/* routes

Graceful shutdown is handled on SIGINT/SIGTERM, draining in-flight
sessions within the bounds spec.md §5 defines.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, cfgPath string, debugMode bool) error {
	if debugMode {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.LoadExperienceConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting experience server",
		"version", version,
		"commit", commit,
		"config", cfgPath,
		"bind_address", cfg.BindAddress,
		"runtime_home", cfg.RuntimeHome,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The local agent Runtime is an external collaborator (spec.md's
	// Session Backend module talks to it over its own process boundary);
	// this module ships a deterministic in-memory Runtime so the server
	// can be exercised end-to-end without that external dependency.
	rt := runtime.NewMockRuntime()

	mgr := voiceconn.NewManager(nil, cfg.RuntimeHome, slog.Default())
	be := backend.NewRuntimeBackend(rt, cfg.RuntimeHome, mgr.WireFunc(), slog.Default())
	mgr.SetBackend(be)

	idx, err := discovery.OpenIndex(cfg.DiscoveryIndexPath)
	if err != nil {
		return fmt.Errorf("failed to open discovery index: %w", err)
	}
	defer idx.Close()

	scanner := discovery.NewScanner(cfg.RuntimeHome)
	transcripts := transcript.NewStore(cfg.VoiceSessionsRoot)

	collector := metrics.NewCollector()
	collector.Subscribe()

	scheduler := cronjobs.NewScheduler(slog.Default())
	if cfg.DiscoverySyncCron != "" {
		if err := scheduler.ScheduleDiscoverySync(cfg.DiscoverySyncCron, idx, scanner); err != nil {
			return fmt.Errorf("schedule discovery sync: %w", err)
		}
	}
	if cfg.TranscriptCompactionCron != "" {
		if err := scheduler.ScheduleTranscriptCompaction(cfg.TranscriptCompactionCron, transcripts); err != nil {
			return fmt.Errorf("schedule transcript compaction: %w", err)
		}
	}
	if cfg.BackupS3Bucket != "" && cfg.BackupArchivalCron != "" {
		backupCtx, backupCancel := context.WithTimeout(ctx, 30*time.Second)
		backup, err := backupstore.NewStore(backupCtx, backupstore.Config{
			Bucket:          cfg.BackupS3Bucket,
			Region:          cfg.BackupS3Region,
			Endpoint:        cfg.BackupS3Endpoint,
			Prefix:          cfg.BackupS3Prefix,
			AccessKeyID:     cfg.BackupS3AccessKeyID,
			SecretAccessKey: cfg.BackupS3SecretAccessKey,
			UsePathStyle:    cfg.BackupS3UsePathStyle,
		})
		backupCancel()
		if err != nil {
			return fmt.Errorf("configure backup store: %w", err)
		}
		if err := scheduler.ScheduleBackupArchival(cfg.BackupArchivalCron, transcripts, backup); err != nil {
			return fmt.Errorf("schedule backup archival: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiCfg := httpapi.Config{
		APIKey:               cfg.APIKey,
		EphemeralTokenSecret: cfg.EphemeralTokenSecret,
		EphemeralTokenTTL:    cfg.EphemeralTokenTTL,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		AssistantName:        cfg.AssistantName,
		Model:                cfg.Model,
		Voice:                cfg.Voice,
		Version:              version,
	}
	server := httpapi.NewServer(be, mgr, transcripts, scanner, idx, collector, apiCfg, slog.Default())

	listener, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.BindAddress, err)
	}
	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("experience server ready",
		"bind_address", cfg.BindAddress,
		"discovery_index", cfg.DiscoveryIndexPath,
	)

	<-ctx.Done()
	slog.Info("experience server shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "error", err)
	}
	be.Stop(shutdownCtx)
	return nil
}

func buildDoctorLiteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor-lite",
		Short: "Check local install health without starting a listener",
		Long: `doctor-lite verifies the configured runtime home exists and is
scannable, and that the discovery index can be opened, without binding
any network listener.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctorLite(resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runDoctorLite(cfgPath string) error {
	cfg, err := config.LoadExperienceConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	scanner := discovery.NewScanner(cfg.RuntimeHome)
	sessions, err := scanner.ListSessions(0, "")
	if err != nil {
		return fmt.Errorf("runtime home not scannable at %q: %w", cfg.RuntimeHome, err)
	}
	fmt.Printf("runtime_home: %s (%d discoverable sessions)\n", cfg.RuntimeHome, len(sessions))

	idx, err := discovery.OpenIndex(cfg.DiscoveryIndexPath)
	if err != nil {
		return fmt.Errorf("discovery index not openable at %q: %w", cfg.DiscoveryIndexPath, err)
	}
	defer idx.Close()
	fmt.Printf("discovery_index: %s (ok)\n", cfg.DiscoveryIndexPath)

	fmt.Printf("bind_address: %s\n", cfg.BindAddress)
	fmt.Println("doctor-lite: ok")
	return nil
}

func buildMigrateIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate-index",
		Short: "Rebuild the durable discovery index from disk",
		Long: `migrate-index performs a full filesystem scan of the runtime home
and replaces the discovery index's contents with what it finds,
exactly as discovery.Index.Sync's transactional full-replace does.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateIndex(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runMigrateIndex(ctx context.Context, cfgPath string) error {
	cfg, err := config.LoadExperienceConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	idx, err := discovery.OpenIndex(cfg.DiscoveryIndexPath)
	if err != nil {
		return fmt.Errorf("open discovery index: %w", err)
	}
	defer idx.Close()

	scanner := discovery.NewScanner(cfg.RuntimeHome)
	n, err := idx.Sync(ctx, scanner)
	if err != nil {
		return fmt.Errorf("sync discovery index: %w", err)
	}

	fmt.Printf("migrate-index: synced %d sessions into %s\n", n, cfg.DiscoveryIndexPath)
	return nil
}
