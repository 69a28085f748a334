package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service settings. Values come from environment variables,
// falling back to the optional CONFIG_FILE (YAML) and then to built-in defaults.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Station and arrival data source.
	DatabaseURL      string
	StationsTable    string
	RecordsTable     string
	DBConnectRetries int
	QueryTimeout     time.Duration

	// Rules file and report cache.
	RulesPath       string
	ReportCacheSize int
	ReportCacheTTL  time.Duration

	// Kafka report publication.
	KafkaBrokers     []string
	KafkaReportTopic string
	KafkaEnabled     bool
	PublishTimeout   time.Duration
}

// fileConfig mirrors the keys accepted in CONFIG_FILE.
type fileConfig struct {
	HTTPAddr         string   `yaml:"http_addr"`
	LogLevel         string   `yaml:"log_level"`
	LogFormat        string   `yaml:"log_format"`
	ShutdownTimeout  string   `yaml:"shutdown_timeout"`
	DatabaseURL      string   `yaml:"database_url"`
	StationsTable    string   `yaml:"stations_table"`
	RecordsTable     string   `yaml:"records_table"`
	DBConnectRetries *int     `yaml:"db_connect_retries"`
	QueryTimeout     string   `yaml:"query_timeout"`
	RulesPath        string   `yaml:"rules_path"`
	ReportCacheSize  *int     `yaml:"report_cache_size"`
	ReportCacheTTL   string   `yaml:"report_cache_ttl"`
	KafkaBrokers     []string `yaml:"kafka_brokers"`
	KafkaReportTopic string   `yaml:"kafka_report_topic"`
	PublishTimeout   string   `yaml:"publish_timeout"`
}

// Load reads configuration, applying defaults where unset.
func Load() (*Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", orDefault(file.ShutdownTimeout, "10s"))
	if err != nil {
		return nil, err
	}
	queryTimeout, err := parseDuration("QUERY_TIMEOUT", orDefault(file.QueryTimeout, "30s"))
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("REPORT_CACHE_TTL", orDefault(file.ReportCacheTTL, "5m"))
	if err != nil {
		return nil, err
	}
	publishTimeout, err := parseDuration("PUBLISH_TIMEOUT", orDefault(file.PublishTimeout, "5s"))
	if err != nil {
		return nil, err
	}
	retries, err := parseInt("DB_CONNECT_RETRIES", intOrDefault(file.DBConnectRetries, 5), 0)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("REPORT_CACHE_SIZE", intOrDefault(file.ReportCacheSize, 64), 0)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(envOrDefault("KAFKA_BROKERS", strings.Join(file.KafkaBrokers, ",")))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", orDefault(file.HTTPAddr, ":8080")),
		LogLevel:        envOrDefault("LOG_LEVEL", orDefault(file.LogLevel, "info")),
		LogFormat:       envOrDefault("LOG_FORMAT", orDefault(file.LogFormat, "json")),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL:      envOrDefault("DATABASE_URL", orDefault(file.DatabaseURL, "postgres://localhost:5432/arrivals?sslmode=disable")),
		StationsTable:    envOrDefault("STATIONS_TABLE", orDefault(file.StationsTable, "stations")),
		RecordsTable:     envOrDefault("RECORDS_TABLE", orDefault(file.RecordsTable, "one_day_data")),
		DBConnectRetries: retries,
		QueryTimeout:     queryTimeout,

		RulesPath:       envOrDefault("RULES_PATH", orDefault(file.RulesPath, "config/report_rules.json")),
		ReportCacheSize: cacheSize,
		ReportCacheTTL:  cacheTTL,

		KafkaBrokers:     brokers,
		KafkaReportTopic: envOrDefault("KAFKA_REPORT_TOPIC", orDefault(file.KafkaReportTopic, "monthly-arrival-reports")),
		KafkaEnabled:     kafkaEnabled,
		PublishTimeout:   publishTimeout,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RulesPath == "" {
		return nil, errors.New("RULES_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaReportTopic == "" {
		return nil, errors.New("KAFKA_REPORT_TOPIC is required when Kafka is enabled")
	}

	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse CONFIG_FILE: %w", err)
	}
	return fc, nil
}

// envOrDefault returns the environment value for key, or fallback when unset or empty.
func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func intOrDefault(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, fallback, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		if fallback < minimum {
			return 0, fmt.Errorf("invalid %s", key)
		}
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// parseBrokers splits a comma-separated broker list, dropping blanks.
func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
