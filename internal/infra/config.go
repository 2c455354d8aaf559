package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса аутентификации.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP и gRPC серверов.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL (хранилище пользователей).
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectAttempts uint          `mapstructure:"connect_attempts"`
}

// RedisConfig описывает подключение к Redis (revocation list, кэш принципалов).
type RedisConfig struct {
	Addr            string `mapstructure:"addr"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	ConnectAttempts uint   `mapstructure:"connect_attempts"`
}

// AuthConfig содержит настройки проверки bearer-токенов.
type AuthConfig struct {
	Header           string        `mapstructure:"header"`
	Scheme           string        `mapstructure:"scheme"`
	Algorithm        string        `mapstructure:"algorithm"` // RS256 или HS256
	PublicKeyPath    string        `mapstructure:"public_key_path"`
	JWKSURL          string        `mapstructure:"jwks_url"`
	Issuer           string        `mapstructure:"issuer"`
	Leeway           time.Duration `mapstructure:"leeway"`
	MaxTokenTTL      time.Duration `mapstructure:"max_token_ttl"`
	RejectionMessage string        `mapstructure:"rejection_message"`
	AdminAuthority   string        `mapstructure:"admin_authority"`
	PublicKey        []byte
	HMACSecret       []byte
}

// ResolverConfig настраивает загрузку принципалов: кэш, лимитер и Circuit Breaker.
type ResolverConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl"` // 0 отключает кэш
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateBurst        int           `mapstructure:"rate_burst"`
	CBMaxRequests    uint32        `mapstructure:"cb_max_requests"`
	CBInterval       time.Duration `mapstructure:"cb_interval"`
	CBTimeout        time.Duration `mapstructure:"cb_timeout"`
	CBFailureTrigger uint32        `mapstructure:"cb_failure_trigger"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// AUTH_ISSUER=... перекроет auth.issuer. AutomaticEnv видит только ключи,
	// известные viper, поэтому каждый ключ зарегистрирован в setDefaults.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Сначала проверяем, не лежит ли сам ключ в ENV (для Docker/K8s),
	// иначе читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.HMACSecret = loadKeyResource("", "AUTH_HMAC_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает конфигурации, с которыми нельзя проверить ни один токен.
func (c *Config) Validate() error {
	switch strings.ToUpper(c.Auth.Algorithm) {
	case "RS256":
		if len(c.Auth.PublicKey) == 0 && c.Auth.JWKSURL == "" {
			return errors.New("config: auth.algorithm RS256 requires a public key or auth.jwks_url")
		}
	case "HS256":
		if len(c.Auth.HMACSecret) == 0 {
			return errors.New("config: auth.algorithm HS256 requires AUTH_HMAC_SECRET")
		}
	default:
		return fmt.Errorf("config: unsupported auth.algorithm %q", c.Auth.Algorithm)
	}
	if c.Auth.Header == "" {
		return errors.New("config: auth.header must not be empty")
	}
	if c.Resolver.RateLimit <= 0 {
		return errors.New("config: resolver.rate_limit must be positive")
	}
	if c.Resolver.RateBurst <= 0 {
		return errors.New("config: resolver.rate_burst must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 50052)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.connect_attempts", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_attempts", 5)
	v.SetDefault("auth.header", "Authorization")
	v.SetDefault("auth.scheme", "Bearer")
	v.SetDefault("auth.algorithm", "RS256")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", 30*time.Second)
	v.SetDefault("auth.max_token_ttl", 24*time.Hour)
	v.SetDefault("auth.rejection_message", "invalid or expired token")
	v.SetDefault("auth.admin_authority", "ADMIN")
	v.SetDefault("resolver.cache_ttl", time.Minute)
	v.SetDefault("resolver.rate_limit", 200)
	v.SetDefault("resolver.rate_burst", 50)
	v.SetDefault("resolver.cb_max_requests", 3)
	v.SetDefault("resolver.cb_interval", 5*time.Second)
	v.SetDefault("resolver.cb_timeout", 30*time.Second)
	v.SetDefault("resolver.cb_failure_trigger", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// loadKeyResource читает ключевой материал из ENV или из файла по пути.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
