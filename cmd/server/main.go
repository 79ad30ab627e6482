package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nathannewyen/fhir-gateway/internal/accesscheck"
	"github.com/nathannewyen/fhir-gateway/internal/allowedqueries"
	"github.com/nathannewyen/fhir-gateway/internal/audit"
	"github.com/nathannewyen/fhir-gateway/internal/bundle"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/discovery"
	"github.com/nathannewyen/fhir-gateway/internal/gateway"
	"github.com/nathannewyen/fhir-gateway/internal/gwconfig"
	"github.com/nathannewyen/fhir-gateway/internal/handlers"
	"github.com/nathannewyen/fhir-gateway/internal/httplog"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
	"github.com/nathannewyen/fhir-gateway/internal/upstream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fhir-gateway",
		Short: "Authorizing reverse proxy in front of a FHIR REST API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway's HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func validateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the gateway's environment configuration without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gwconfig.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			fmt.Println("configuration is valid")
			return nil
		},
	}
}

// runServer wires every component (C1-C10) into one chi router and serves
// it until an interrupt or terminate signal requests a graceful shutdown.
func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := gwconfig.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	verifier := jwtauth.NewVerifier(cfg.TokenIssuer, cfg.WellKnownEndpoint, cfg.IsDev())
	discoveryCache := jwtauth.NewDiscoveryCache(cfg.WellKnownEndpoint)

	pathConfig, err := compartment.LoadPathConfig(cfg.PatientPathsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load patient-paths configuration")
	}
	resolver := compartment.NewResolver(pathConfig)

	allowed, err := allowedqueries.Load(cfg.AllowedQueriesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load allowed-queries configuration")
	}

	registry := accesscheck.NewRegistry()

	upstreamClient, err := buildUpstreamClient(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build upstream FHIR client")
	}

	auditSink, err := buildAuditSink(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build audit sink")
	}

	interceptor := &gateway.Interceptor{
		Verifier:    verifier,
		Resolver:    resolver,
		Bundles:     bundle.NewProcessor(resolver),
		Allowed:     allowed,
		Registry:    registry,
		CheckerName: cfg.AccessChecker,
		Store:       upstreamClient,
		Upstream:    upstreamClient,
		Audit:       auditSink,
		Logger:      logger,
	}
	discoveryHandler := discovery.NewHandler(cfg.TokenIssuer, discoveryCache, upstreamClient, logger)

	r := chi.NewRouter()
	r.Use(httplog.RequestID)
	r.Use(httplog.Logger(logger))
	r.Use(httplog.Recoverer(logger))

	healthHandler := handlers.NewHealthHandler()
	r.Get("/healthz", healthHandler.Check)
	r.Get("/.well-known/smart-configuration", discoveryHandler.ServeSmartConfiguration)
	r.Get("/metadata", discoveryHandler.ServeMetadata)
	r.Handle("/*", interceptor)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting gateway server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server exited")
	return nil
}

// buildUpstreamClient builds the Upstream FHIR Client (C7) with the
// credential source matching cfg.BackendType.
func buildUpstreamClient(ctx context.Context, cfg *gwconfig.Config) (*upstream.Client, error) {
	var creds upstream.CredentialSource
	switch cfg.BackendType {
	case gwconfig.BackendGCP:
		gcpCreds, err := upstream.NewGCPCredentials(ctx, cfg.GCPServiceAccount)
		if err != nil {
			return nil, fmt.Errorf("loading GCP credentials: %w", err)
		}
		creds = gcpCreds
	default:
		if cfg.HAPIUsername != "" {
			creds = upstream.BasicCredentials{Username: cfg.HAPIUsername, Password: cfg.HAPIPassword}
		} else {
			creds = upstream.NoCredentials{}
		}
	}

	return upstream.New(cfg.ProxyTo, cfg.ProxyPublicBase, cfg.UpstreamTimeout, creds)
}

// buildAuditSink selects the AuditRecorder implementation named by
// cfg.AuditSink, defaulting to the always-available LogSink.
func buildAuditSink(cfg *gwconfig.Config, logger zerolog.Logger) (gateway.AuditRecorder, error) {
	switch cfg.AuditSink {
	case "postgres":
		return audit.NewPostgresSink(cfg.AuditDatabaseURL)
	case "mongo":
		return audit.NewMongoSink(cfg.AuditDatabaseURL, "fhir_gateway")
	default:
		return audit.NewLogSink(logger), nil
	}
}
