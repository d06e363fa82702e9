package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/finagent/internal/config"
	"github.com/harun/finagent/internal/logger"
	"github.com/harun/finagent/internal/observability"
	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/assistant"
)

const version = "0.1.0"

var (
	cfgFile     string
	logLevel    string
	metricsAddr string
)

// openService builds the assistant; tests swap it to inject fakes
var openService = assistant.Open

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "finagent",
	Short: "Finagent - personal finance assistant",
	Long: `Finagent answers questions about your bank transactions.
It ingests CSV statements, classifies every transaction into a fixed
category taxonomy and answers questions with a tool-calling agent whose
runs are combined by majority vote.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.finagent/finagent.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address while the command runs")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// runtime is everything a command needs once configuration is loaded
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	service *assistant.Service
	metrics *http.Server
}

// loadConfig reads the config file and applies global flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = metricsAddr
	}
	return cfg, nil
}

// setup loads configuration, installs logging, tracing and metrics and opens
// the assistant service. The returned runtime must be closed.
func setup() (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, err
	}

	zl := log.Zerolog()

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry("finagent", cfg.Tracing.SampleRatio); err != nil {
			zl.Warn().Err(err).Msg("Failed to initialize tracing")
		}
	}

	rt := &runtime{cfg: cfg, log: log}

	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		zl.Warn().Err(err).Msg("Audit trail disabled")
	}

	if cfg.Metrics.Enabled {
		rt.metrics = serveMetrics(cfg.Metrics.Listen, log.Component("metrics"))
	}

	service, err := openService(cfg, assistant.WithLogger(zl))
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.service = service

	return rt, nil
}

func serveMetrics(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics listener stopped")
		}
	}()
	return srv
}

func (rt *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rt.service != nil {
		_ = rt.service.Close()
	}
	if rt.metrics != nil {
		_ = rt.metrics.Shutdown(ctx)
	}
	_ = tracing.ShutdownOpenTelemetry(ctx)
	_ = observability.CloseAuditLogger()
	if rt.log != nil {
		_ = rt.log.Close()
	}
}
