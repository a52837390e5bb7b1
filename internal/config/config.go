package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from the environment.
type Config struct {
	Environment string

	Server     ServerConfig
	Redis      RedisConfig
	Scylla     ScyllaConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	SMS        SMSConfig
	Auth       AuthConfig
	Hashing    HashingConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	CertFile     string
	KeyFile      string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
	Table    string
}

type SMSConfig struct {
	Provider string // "http" or "noop"
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type AuthConfig struct {
	// OtpWindow is the minimum interval between successive OTP issuances
	// for the same phone and purpose.
	OtpWindow time.Duration
	// VerifyWindow is the maximum age at which a code is still accepted.
	VerifyWindow time.Duration
	// ExpiryWindow is the coarse storage-hygiene cutoff used by the sweep;
	// it must exceed VerifyWindow.
	ExpiryWindow time.Duration
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval time.Duration
	// MaxVerifyAttempts caps failed verification attempts per phone within
	// the verify window.
	MaxVerifyAttempts int

	JwtPrivateKeyPath string
	JwtPublicKeyPath  string
	TokenTTL          time.Duration
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment, honouring a local
// .env file when present.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvList("SCYLLA_NODES", "127.0.0.1"),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "safarapi_auth"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Enabled:      getEnvBool("KAFKA_ENABLED", false),
			Brokers:      getEnvList("KAFKA_BROKERS", "localhost:9092"),
			Topic:        getEnv("KAFKA_TOPIC", "auth-events"),
			WriteTimeout: getEnvDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Database: getEnv("CLICKHOUSE_DATABASE", "audit"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Table:    getEnv("CLICKHOUSE_TABLE", "auth_audit"),
		},
		SMS: SMSConfig{
			Provider: getEnv("SMS_PROVIDER", "noop"),
			Endpoint: getEnv("SMS_ENDPOINT", ""),
			APIKey:   getEnv("SMS_API_KEY", ""),
			Timeout:  getEnvDuration("SMS_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			OtpWindow:         getEnvDuration("AUTH_OTP_WINDOW", 120*time.Second),
			VerifyWindow:      getEnvDuration("AUTH_VERIFY_WINDOW", 2*time.Minute),
			ExpiryWindow:      getEnvDuration("AUTH_EXPIRY_WINDOW", 10*time.Minute),
			SweepInterval:     getEnvDuration("AUTH_SWEEP_INTERVAL", time.Minute),
			MaxVerifyAttempts: getEnvInt("AUTH_MAX_VERIFY_ATTEMPTS", 5),
			JwtPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "certs/jwt_private.pem"),
			JwtPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "certs/jwt_public.pem"),
			TokenTTL:          getEnvDuration("JWT_TOKEN_TTL", 24*time.Hour),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 65536),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
