package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"skillswap"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"skillswap"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`
	// 只读副本 DSN，逗号分隔，为空时不启用读写分离
	PostgreSQLReplicas []string `env:"POSTGRESQL_REPLICA_DSNS" envSeparator:","`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"skillswap"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"skillswap.events"`

	// JWT 配置，身份提供方签发的 bearer token
	JWTSecret        string `env:"JWT_SECRET"` // 必填
	JWTIssuer        string `env:"JWT_ISSUER" envDefault:"skillswap"`
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// OpenTelemetry 配置，endpoint 为空时不导出
	OTelEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTelSampler  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数
	// 用户名查重每个用户每分钟的上限
	UsernameCheckPerMinute int `env:"USERNAME_CHECK_PER_MINUTE" envDefault:"60"`

	// 引导流程配置
	OnboardingSessionTTL  time.Duration `env:"ONBOARDING_SESSION_TTL" envDefault:"720h"`
	UsernameCheckTimeout  time.Duration `env:"USERNAME_CHECK_TIMEOUT" envDefault:"5s"`
	UsernameMaxAttempts   int           `env:"USERNAME_MAX_ATTEMPTS" envDefault:"20"`
	DefaultLanguage       string        `env:"ONBOARDING_DEFAULT_LANGUAGE" envDefault:"English"`
	OnboardingRedirectURL string        `env:"ONBOARDING_REDIRECT_URL" envDefault:"/dashboard"`
	OnboardingEventsWait  time.Duration `env:"ONBOARDING_EVENTS_WAIT" envDefault:"25s"`
	NewcomerBadge         string        `env:"NEWCOMER_BADGE" envDefault:"newcomer"`
	NewcomerReputation    int           `env:"NEWCOMER_REPUTATION" envDefault:"10"`
	WorkerConcurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"2"`
	CSRFEnabled           bool          `env:"CSRF_ENABLED" envDefault:"false"`
	SessionSecret         string        `env:"SESSION_SECRET"`
}

// ClientConfig 命令行客户端配置，只需要访问令牌，不需要服务端密钥
type ClientConfig struct {
	BaseURL         string        `env:"COLLABORATOR_BASE_URL" envDefault:"http://localhost:8888"`
	HTTPTimeout     time.Duration `env:"COLLABORATOR_HTTP_TIMEOUT" envDefault:"10s"`
	AccessToken     string        `env:"SKILLSWAP_TOKEN"`
	StateDir        string        `env:"SKILLSWAP_STATE_DIR" envDefault:".skillswap"`
	Debounce        time.Duration `env:"USERNAME_CHECK_DEBOUNCE" envDefault:"400ms"`
	DefaultLanguage string        `env:"ONBOARDING_DEFAULT_LANGUAGE" envDefault:"English"`
}

// LoadClient 读取客户端配置，.env 缺失时静默使用环境变量
func LoadClient() (*ClientConfig, error) {
	_ = godotenv.Load()

	cfg := ClientConfig{}
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load 读取 .env 与环境变量，解析并校验后写入 Cfg
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Cfg = cfg
	return &Cfg, nil
}

// MustLoad 供 main 使用，失败直接退出
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.UsernameMaxAttempts <= 0 {
		return errors.New("USERNAME_MAX_ATTEMPTS must be positive")
	}
	if c.CSRFEnabled && len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 bytes when CSRF is enabled")
	}
	if c.WorkerConcurrency <= 0 {
		return errors.New("WORKER_CONCURRENCY must be positive")
	}
	if c.OTelSampler < 0 || c.OTelSampler > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_RATIO must be within [0, 1]")
	}
	return nil
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

// ReplicaDSNs 去掉空白项后的副本 DSN
func (c *Config) ReplicaDSNs() []string {
	out := make([]string, 0, len(c.PostgreSQLReplicas))
	for _, dsn := range c.PostgreSQLReplicas {
		if dsn = strings.TrimSpace(dsn); dsn != "" {
			out = append(out, dsn)
		}
	}
	return out
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
