// Package config loads taskstation's environment-driven configuration
// (spec §6.3) via viper: environment variables first, with an optional
// YAML file for local overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	DataDir     string `mapstructure:"data_dir"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	JobQueueMax       int    `mapstructure:"job_queue_max"`
	CPUTimeoutSecs    int    `mapstructure:"cpu_timeout"`
	IOTimeoutSecs     int    `mapstructure:"io_timeout"`
	BestEffortTimeout int    `mapstructure:"best_effort_timeout"`
	JobPersistPath    string `mapstructure:"job_persist_path"`
	PrimeMethod       string `mapstructure:"prime_number_method"`
	JobRetentionSecs  int    `mapstructure:"job_retention"`

	CPUWorkers int `mapstructure:"workers_cpu"`
	IOWorkers  int `mapstructure:"workers_io"`
}

// CPUTimeout and IOTimeout convert the configured second counts to
// time.Duration for executor/jobmanager construction.
func (c Config) CPUTimeout() time.Duration { return time.Duration(c.CPUTimeoutSecs) * time.Second }
func (c Config) IOTimeout() time.Duration  { return time.Duration(c.IOTimeoutSecs) * time.Second }
func (c Config) BestEffortDeadline() time.Duration {
	return time.Duration(c.BestEffortTimeout) * time.Millisecond
}
func (c Config) JobRetention() time.Duration {
	return time.Duration(c.JobRetentionSecs) * time.Second
}

// Load resolves configuration from environment variables (primary
// source per §6.3), optionally overlaid with a YAML file at
// configPath if non-empty.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("job_queue_max", 100)
	v.SetDefault("cpu_timeout", 60)
	v.SetDefault("io_timeout", 120)
	v.SetDefault("best_effort_timeout", 2000)
	v.SetDefault("job_persist_path", "./data/jobs.jsonl")
	v.SetDefault("prime_number_method", "MILLER_RABIN")
	v.SetDefault("workers_cpu", 2)
	v.SetDefault("workers_io", 2)
	v.SetDefault("job_retention", 600)

	for _, key := range []string{
		"http_addr", "metrics_addr", "data_dir", "log_level", "log_format",
		"job_queue_max", "cpu_timeout", "io_timeout", "best_effort_timeout",
		"job_persist_path", "prime_number_method", "workers_cpu", "workers_io",
		"job_retention",
	} {
		_ = v.BindEnv(key, strings.ToUpper(key))
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
