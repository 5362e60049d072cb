package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/veil/internal/auditlog"
	"github.com/dativo-io/veil/internal/config"
	"github.com/dativo-io/veil/internal/pipeline"
	"github.com/dativo-io/veil/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP anonymization API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", config.DefaultAddr, "HTTP listen address")
	serveCmd.Flags().String("log-file", config.DefaultLogFile, "audit log path")
	serveCmd.Flags().String("audit-format", config.DefaultAuditFormat, "audit log format (text, json)")
	_ = viper.BindPFlag(config.KeyAddr, serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag(config.KeyLogFile, serveCmd.Flags().Lookup("log-file"))
	_ = viper.BindPFlag(config.KeyAuditFormat, serveCmd.Flags().Lookup("audit-format"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.WarnIfNoEncryptionKey()

	eng, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}

	audit, err := auditlog.Open(cfg.LogFile, cfg.AuditFormat, cfg.AuditOptions()...)
	if err != nil {
		return fmt.Errorf("initializing audit log: %w", err)
	}
	defer func() {
		if err := audit.Close(); err != nil {
			log.Warn().Err(err).Msg("audit_log_close_failed")
		}
		if n := audit.Dropped(); n > 0 {
			log.Warn().Int64("dropped", n).Str("path", audit.Path()).Msg("audit_log_entries_dropped")
		}
	}()

	svc := pipeline.New(eng, buildAnonymizer(cfg), audit)
	srv := server.NewServer(svc,
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithCatalog(eng),
		server.WithAuditStatus(audit),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes()),
	)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", cfg.Addr).
		Str("audit_log", audit.Path()).
		Str("audit_format", cfg.AuditFormat).
		Strs("languages", eng.Languages()).
		Int("recognizers", len(eng.Recognizers())).
		Strs("cors_origins", cfg.CORSOrigins).
		Msg("veil_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
