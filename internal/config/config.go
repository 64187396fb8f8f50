package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Log       `mapstructure:"log"       validate:"required"`
	Telemetry Telemetry `mapstructure:"telemetry" validate:"required"`
	OPS       OPS       `mapstructure:"ops"       validate:"required"`
	Auth      Auth      `mapstructure:"auth"`
	Search    Search    `mapstructure:"search"`
	Export    Export    `mapstructure:"export"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDir   string `mapstructure:"log_dir"   validate:"omitempty,dir"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name"`
}

type OPS struct {
	BaseURL    string        `mapstructure:"base_url"    validate:"required,url"`
	AuthURL    string        `mapstructure:"auth_url"    validate:"required,url"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"required,gt=0"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	// CallInterval is the minimum delay between consecutive API calls.
	CallInterval time.Duration `mapstructure:"call_interval" validate:"min=0"`
}

type Auth struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type Search struct {
	Year               int    `mapstructure:"year"                validate:"omitempty,min=1900,max=2100"`
	DateFrom           string `mapstructure:"date_from"`
	DateTo             string `mapstructure:"date_to"`
	PageSize           int    `mapstructure:"page_size"           validate:"min=1,max=100"`
	MaxRecords         int    `mapstructure:"max_records"         validate:"min=1"`
	WithBiblio         bool   `mapstructure:"with_biblio"`
	WithClassification bool   `mapstructure:"with_classification"`
	IncludeRegister    bool   `mapstructure:"include_register"`
}

type Export struct {
	CSVPath  string `mapstructure:"csv_path"`
	XLSXPath string `mapstructure:"xlsx_path"`
}

func Load(cfgFile string) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("OPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ops-harvester")
		v.AddConfigPath("/etc/ops-harvester")
		v.SetConfigType("yaml")
	}

	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_dir", "logs")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "ops-harvester")
	v.SetDefault("ops.base_url", "https://ops.epo.org/3.2/rest-services")
	v.SetDefault("ops.auth_url", "https://ops.epo.org/3.2/auth/accesstoken")
	v.SetDefault("ops.timeout", 30*time.Second)
	v.SetDefault("ops.max_retries", 3)
	v.SetDefault("ops.call_interval", 600*time.Millisecond)
	v.SetDefault("search.year", time.Now().Year()-1)
	v.SetDefault("search.page_size", 25)
	v.SetDefault("search.max_records", 100)
	v.SetDefault("search.with_biblio", true)
	v.SetDefault("search.with_classification", true)
	v.SetDefault("search.include_register", false)
	v.SetDefault("export.csv_path", "")
	v.SetDefault("export.xlsx_path", "")

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
		// Not found is ok, use defaults/env
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return Config{}, fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	if (cfg.Search.DateFrom == "") != (cfg.Search.DateTo == "") {
		return Config{}, fmt.Errorf("search.date_from and search.date_to must be set together")
	}
	return cfg, nil
}
