package config

import "fmt"

// Config is the root configuration of the worker manager.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Sequence      SequenceConfig          `mapstructure:"sequence"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Kafka         KafkaConfig             `mapstructure:"kafka"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Tracing       TracingConfig           `mapstructure:"tracing"`
	Server        ServerConfig            `mapstructure:"server"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Mongo         MongoConfig         `mapstructure:"mongo"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the lib/pq connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // milliseconds
	MaxPoolSize    uint64 `mapstructure:"max_pool_size"`
	RetryAttempts  int    `mapstructure:"retry_attempts"`
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the explicit URL or the first address.
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// Backend names shared by the sequence and record store sections.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

type SequenceConfig struct {
	Backend string `mapstructure:"backend"`
}

type NotificationConfig struct {
	RecordBackend    string          `mapstructure:"record_backend"`
	DispatchTimeout  int             `mapstructure:"dispatch_timeout"` // milliseconds
	Email            EmailConfig     `mapstructure:"email"`
	SMS              SMSConfig       `mapstructure:"sms"`
	SMTP             SMTPConfig      `mapstructure:"smtp"`
	Postmark         PostmarkConfig  `mapstructure:"postmark"`
	AWS              AWSConfig       `mapstructure:"aws"`
	Directory        DirectoryConfig `mapstructure:"directory"`
	Audit            AuditConfig     `mapstructure:"audit"`
	TemplateRegistry string          `mapstructure:"template_registry"`
}

// Email providers.
const (
	EmailProviderNone     = ""
	EmailProviderSES      = "ses"
	EmailProviderSMTP     = "smtp"
	EmailProviderPostmark = "postmark"
)

type EmailConfig struct {
	Provider  string `mapstructure:"provider"`
	FromEmail string `mapstructure:"from_email"`
}

type SMSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SenderID string `mapstructure:"sender_id"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type PostmarkConfig struct {
	ServerToken  string `mapstructure:"server_token"`
	AccountToken string `mapstructure:"account_token"`
	Tag          string `mapstructure:"tag"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type DirectoryConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // milliseconds, negative disables the redis cache
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Index   string `mapstructure:"index"`
}

type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Tick           int    `mapstructure:"tick"`            // milliseconds
	ReminderOffset int    `mapstructure:"reminder_offset"` // milliseconds
	BatchSize      int    `mapstructure:"batch_size"`
	RundownAt      string `mapstructure:"rundown_at"` // HH:MM in Timezone
	Timezone       string `mapstructure:"timezone"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// WorkerConfig holds the settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}
