package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml and applies env overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return decode(v)
}

// LoadFromFile loads configuration from an explicit YAML path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// bindEnvKeys makes AutomaticEnv see keys that have no YAML entry.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"database.postgres.host", "database.postgres.user", "database.postgres.password", "database.postgres.database",
		"database.redis.address", "database.mongo.uri",
		"notifications.smtp.host", "notifications.smtp.username", "notifications.smtp.password",
		"notifications.postmark.server_token", "notifications.postmark.account_token",
		"notifications.email.provider", "notifications.email.from_email",
		"camunda.broker_address",
	} {
		_ = v.BindEnv(key)
	}
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok || !strings.Contains(strVal, "$") {
			continue
		}
		if expanded := os.ExpandEnv(strVal); expanded != strVal {
			v.Set(key, expanded)
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally provided under short env names.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Notifications.SMTP.Host, "SMTP_HOST")
	setIfEmpty(&cfg.Notifications.SMTP.Username, "SMTP_USER")
	setIfEmpty(&cfg.Notifications.SMTP.Password, "SMTP_PASS")
	setIfEmpty(&cfg.Notifications.Email.FromEmail, "SMTP_FROM")
	setIfEmpty(&cfg.Notifications.Postmark.ServerToken, "POSTMARK_SERVER_TOKEN")
	setIfEmpty(&cfg.Notifications.Postmark.AccountToken, "POSTMARK_ACCOUNT_TOKEN")
}

func setIfEmpty(target *string, envKey string) {
	if *target != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*target = val
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "clinic-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Mongo.Database == "" {
		cfg.Database.Mongo.Database = "clinic"
	}
	if cfg.Database.Mongo.ConnectTimeout == 0 {
		cfg.Database.Mongo.ConnectTimeout = 10000
	}
	if cfg.Database.Mongo.MaxPoolSize == 0 {
		cfg.Database.Mongo.MaxPoolSize = 100
	}
	if cfg.Database.Mongo.RetryAttempts == 0 {
		cfg.Database.Mongo.RetryAttempts = 3
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Sequence.Backend == "" {
		cfg.Sequence.Backend = BackendPostgres
	}
	if cfg.Notifications.RecordBackend == "" {
		cfg.Notifications.RecordBackend = BackendPostgres
	}
	if cfg.Notifications.DispatchTimeout == 0 {
		cfg.Notifications.DispatchTimeout = 15000
	}
	if cfg.Notifications.Email.FromEmail == "" {
		cfg.Notifications.Email.FromEmail = "no-reply@clinic.local"
	}
	if cfg.Notifications.SMTP.Port == 0 {
		cfg.Notifications.SMTP.Port = 587
	}
	if cfg.Notifications.Directory.CacheTTL == 0 {
		cfg.Notifications.Directory.CacheTTL = 300000
	}
	if cfg.Notifications.Audit.Index == "" {
		cfg.Notifications.Audit.Index = "notification-records"
	}

	if cfg.Scheduler.Tick == 0 {
		cfg.Scheduler.Tick = 600000
	}
	if cfg.Scheduler.ReminderOffset == 0 {
		cfg.Scheduler.ReminderOffset = 86400000
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 200
	}
	if cfg.Scheduler.RundownAt == "" {
		cfg.Scheduler.RundownAt = "06:00"
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Asia/Colombo"
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "clinic.events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "clinic-workers"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	backends := []string{cfg.Sequence.Backend, cfg.Notifications.RecordBackend}
	for _, b := range backends {
		switch b {
		case BackendPostgres, BackendRedis, BackendMongo, BackendMemory:
		default:
			return fmt.Errorf("unsupported backend %q", b)
		}
	}
	if cfg.Notifications.RecordBackend == BackendRedis {
		return fmt.Errorf("notifications.record_backend does not support redis")
	}

	// the directory and event source always read Postgres
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if usesBackend(cfg, BackendRedis) && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required for the redis sequence backend")
	}
	if usesBackend(cfg, BackendMongo) && cfg.Database.Mongo.URI == "" {
		return fmt.Errorf("database.mongo.uri is required for the mongo backend")
	}
	if cfg.Notifications.Audit.Enabled && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when audit is enabled")
	}

	switch cfg.Notifications.Email.Provider {
	case EmailProviderNone, EmailProviderSES, EmailProviderSMTP, EmailProviderPostmark:
	default:
		return fmt.Errorf("unsupported notifications.email.provider %q", cfg.Notifications.Email.Provider)
	}
	if (cfg.Notifications.Email.Provider == EmailProviderSES || cfg.Notifications.SMS.Enabled) &&
		cfg.Notifications.AWS.Region == "" {
		return fmt.Errorf("notifications.aws.region is required for SES or SNS")
	}

	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if _, err := ParseClock(cfg.Scheduler.RundownAt); err != nil {
		return fmt.Errorf("scheduler.rundown_at: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}

func usesBackend(cfg *Config, backend string) bool {
	return cfg.Sequence.Backend == backend || cfg.Notifications.RecordBackend == backend
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// GetWorkerConfig returns the named worker's settings or the defaults.
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}
