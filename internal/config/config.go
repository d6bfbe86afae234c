package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Trust     TrustConfig     `yaml:"trust" mapstructure:"trust"`
	Authority AuthorityConfig `yaml:"authority" mapstructure:"authority"`
	Verify    VerifyConfig    `yaml:"verify" mapstructure:"verify"`
	Geo       GeoConfig       `yaml:"geo" mapstructure:"geo"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ScrapeConfig configures the ingestion driver and its fetcher.
type ScrapeConfig struct {
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerHost    float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	Retries        int     `yaml:"retries" mapstructure:"retries"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	CachePath      string  `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours  int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// TrustConfig points at an external tier table; empty means built-in.
type TrustConfig struct {
	TableFile string `yaml:"table_file" mapstructure:"table_file"`
}

// AuthorityConfig points at an external authority matrix; empty means built-in.
type AuthorityConfig struct {
	MatrixFile string `yaml:"matrix_file" mapstructure:"matrix_file"`
}

// VerifyConfig configures cross-source verification.
type VerifyConfig struct {
	Adapters []string `yaml:"adapters" mapstructure:"adapters"`
}

// GeoConfig configures district classification.
type GeoConfig struct {
	DistrictShapefile string `yaml:"district_shapefile" mapstructure:"district_shapefile"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("scrape.concurrency", 4)
	v.SetDefault("scrape.rate_per_host", 1.0)
	v.SetDefault("scrape.retries", 3)
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.user_agent", "propsight-market-cli/1.0")
	v.SetDefault("scrape.cache_path", "")
	v.SetDefault("scrape.cache_ttl_hours", 24)
	v.SetDefault("verify.adapters", []string{"propertyguru", "99co", "edgeprop"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on, collecting every
// problem into one error so the operator fixes them in one pass.
func (c *Config) Validate(mode string) error {
	var problems []string

	needDB := func() {
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "scrape", "diff", "upload", "verify", "review":
		needDB()
		if c.Scrape.Concurrency < 1 || c.Scrape.Concurrency > 32 {
			problems = append(problems, "scrape.concurrency must be between 1 and 32")
		}
		if c.Scrape.RatePerHost <= 0 {
			problems = append(problems, "scrape.rate_per_host must be > 0")
		}
	case "serve":
		needDB()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "migrate":
		needDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
