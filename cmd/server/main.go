package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"oracle-fhir/internal/config"
	"oracle-fhir/internal/domain/auth"
	"oracle-fhir/internal/infrastructure/cerner"
	"oracle-fhir/internal/infrastructure/store"
	httpiface "oracle-fhir/internal/interface/http"
	mw "oracle-fhir/internal/pkg/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "oracle-fhir",
		Short: "Oracle Health FHIR API integration backend",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the integration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// checkCmd prints the resolved configuration and upstream endpoints without
// starting the server.
func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Print resolved configuration and upstream endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Printf("env:          %s\n", cfg.Env)
			fmt.Printf("port:         %s\n", cfg.Port)
			fmt.Printf("client id:    %s\n", orUnset(cfg.ClientID))
			fmt.Printf("tenant id:    %s\n", orUnset(cfg.TenantID))
			fmt.Printf("redirect uri: %s\n", orUnset(cfg.RedirectURI))
			fmt.Printf("scopes:       %s\n", cfg.Scopes)
			fmt.Printf("authorize:    %s\n", cfg.AuthorizeURL())
			fmt.Printf("token:        %s\n", cfg.TokenURL())
			fmt.Printf("fhir base:    %s\n", cfg.FHIRBaseURL())
			fmt.Printf("sandbox:      %s\n", cfg.OpenBaseURL())
			if err := cfg.Validate(); err != nil {
				fmt.Printf("\nNOT READY: %v\n", err)
				return nil
			}
			fmt.Println("\nconfiguration complete, flow endpoints are ready")
			return nil
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	// The server still starts without flow configuration so /health and the
	// sandbox proxy stay available; flow endpoints answer not_configured.
	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("authorization flow not configured")
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.HTTPTimeout) * time.Second}
	client := &cerner.Client{
		ClientID:     cfg.ClientID,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       cfg.ScopeList(),
		AuthorizeURL: cfg.AuthorizeURL(),
		TokenURL:     cfg.TokenURL(),
		FHIRBase:     cfg.FHIRBaseURL(),
		OpenBase:     cfg.OpenBaseURL(),
		HTTP:         httpClient,
	}
	mem := store.NewMemory()
	uc := auth.NewUseCase(client, mem)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.INFO)

	e.Use(mw.Recovery(logger))
	e.Use(mw.RequestID())
	e.Use(mw.Logger(logger))

	h := &httpiface.Handler{UC: uc, Client: client, Cfg: cfg}
	h.RegisterRoutes(e)
	sandbox := httpiface.NewSandboxHandler(client)
	sandbox.RegisterRoutes(e)

	addr := ":" + cfg.Port
	logger.Info().Str("addr", addr).Str("tenant", cfg.TenantID).Msg("starting server")
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
