package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/ops-harvester/internal"
	"github.com/Qubut/ops-harvester/internal/config"
	"github.com/Qubut/ops-harvester/internal/telemetry"
)

var (
	cfgFile  string
	cfg      config.Config
	logger   *zap.SugaredLogger
	tracer   trace.Tracer
	meter    metric.Meter
	shutdown func(context.Context) error
	services *internal.Services
	Version  = "dev" // Set at build time: go build -ldflags "-X github.com/Qubut/ops-harvester/cmd.Version=v1.0.0"
)

var RootCmd = &cobra.Command{
	Use:   "ops-harvester",
	Short: "EPO OPS patent search and export CLI",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logDir := cfg.Log.LogDir
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}

		logFile := filepath.Join(logDir,
			fmt.Sprintf("ops-harvester[%s].log", time.Now().Format("20060102-150405")))

		teleCfg := telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			LogFile:     logFile,
			LogLevel:    cfg.Log.LogLevel,
		}
		if !cfg.Telemetry.Enabled {
			teleCfg.Exporter = "none"
		}
		tracer, meter, logger, shutdown, err = telemetry.Init(teleCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		services, err = internal.InitServices(cfg, tracer, logger, meter)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
				logger.Errorw("shutdown error", "err", err)
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHarvest()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of ops-harvester",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the current loaded configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		printable := cfg
		printable.Auth.ClientSecret = "***"
		data, err := json.MarshalIndent(printable, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")

	// Flag map to avoid repetition
	type flagDef struct {
		name, def, usage string
	}
	flags := []flagDef{
		{"log-level", "info", "Log level (debug/info/warn/error)"},
		{"telemetry.enabled", "true", "Enable OpenTelemetry"},
		{"telemetry.exporter", "otlp", "Telemetry exporter (otlp|stdout|none)"},
		{"telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)"},
		{"telemetry.protocol", "grpc", "OTLP protocol (grpc|http)"},
		{"telemetry.insecure", "true", "Allow insecure OTLP connection"},
		{"telemetry.service-name", "ops-harvester", "Service name for telemetry"},
		{"ops.base-url", "", "OPS REST services base URL"},
		{"ops.auth-url", "", "OPS access-token endpoint"},
		{"ops.timeout", "30s", "Request timeout (duration)"},
		{"ops.max-retries", "3", "Max retries per call"},
		{"ops.call-interval", "600ms", "Minimum delay between API calls"},
		{"auth.client-id", "", "OPS consumer key"},
		{"auth.client-secret", "", "OPS consumer secret"},
		{"search.year", "", "Publication year to search"},
		{"search.date-from", "", "Publication date range start (YYYY-MM-DD)"},
		{"search.date-to", "", "Publication date range end (YYYY-MM-DD)"},
		{"search.page-size", "25", "Search page size"},
		{"search.max-records", "100", "Maximum records to collect"},
		{"search.with-biblio", "true", "Fetch bibliographic detail per record"},
		{"search.with-classification", "true", "Fetch classification per record"},
		{"search.include-register", "false", "Fetch register data per record"},
		{"export.csv-path", "", "CSV output path (default epo_patents_<year>.csv)"},
		{"export.xlsx-path", "", "XLSX output path (optional)"},
	}
	for _, f := range flags {
		RootCmd.PersistentFlags().String(f.name, f.def, f.usage)
		viper.BindPFlag(
			strings.ReplaceAll(f.name, "-", "_"),
			RootCmd.PersistentFlags().Lookup(f.name),
		)
	}

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(harvestCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
