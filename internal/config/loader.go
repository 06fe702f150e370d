package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".gocorpus"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, e.g. GOCORPUS_SCAN_BASELINE.
const envPrefix = "GOCORPUS"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
	}

	readErr := v.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := v.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Corpus: CorpusConfig{Metadata: DefaultMetadata, Archives: DefaultArchives},
		Fetch: FetchConfig{
			Timeout:        DefaultFetchTimeout,
			RateLimit:      DefaultRateLimit,
			MaxArchiveSize: DefaultMaxArchiveSize,
		},
		Scan:    ScanConfig{Baseline: DefaultBaseline, MaxResults: DefaultMaxResults},
		Server:  ServerConfig{Addr: DefaultServerAddr},
		Logging: LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("corpus.metadata", DefaultMetadata)
	v.SetDefault("corpus.archives", DefaultArchives)

	v.SetDefault("fetch.timeout", DefaultFetchTimeout)
	v.SetDefault("fetch.rate_limit", DefaultRateLimit)
	v.SetDefault("fetch.max_archive_size", DefaultMaxArchiveSize)

	v.SetDefault("scan.baseline", DefaultBaseline)
	v.SetDefault("scan.max_results", DefaultMaxResults)

	v.SetDefault("server.addr", DefaultServerAddr)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_insecure", false)
}
