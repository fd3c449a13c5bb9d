package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации Integrity Gateway.
// Загружается один раз при старте процесса; рантайм-изменения не поддерживаются
// (смена лимитов или whitelist — только через рестарт).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Signer   SignerConfig   `mapstructure:"signer"`
	Evidence EvidenceConfig `mapstructure:"evidence"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера шлюза.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ConsolePort  int           `mapstructure:"console_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GuardConfig — пороги и политика цепочки guardrail'ов.
type GuardConfig struct {
	// ShadowMode: вердикты считаются и пишутся в evidence, но запросы не блокируются.
	ShadowMode bool `mapstructure:"shadow_mode"`

	// RateLimitPerMinute: лимит запросов за 60с окно. 0 — лимитер выключен.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	// BurstLimit: лимит запросов за короткое 10с окно.
	BurstLimit int `mapstructure:"burst_limit"`

	// Whitelist: IP и CIDR, освобожденные от проверок (и от учета в окнах).
	Whitelist []string `mapstructure:"whitelist"`

	// TrustProxyHeader: доверять ли заголовку с клиентским IP от прокси.
	// Включать только если шлюз стоит за доверенным LB.
	TrustProxyHeader bool   `mapstructure:"trust_proxy_header"`
	ProxyHeader      string `mapstructure:"proxy_header"`

	// JanitorInterval: период фоновой уборки устаревшего состояния окон.
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

// SignerConfig — подключение к внешнему сервису подписи (transparency log).
type SignerConfig struct {
	URL string `mapstructure:"url"` // пусто — подпись выключена, бандлы идут как "failed"

	// Timeout: жесткий потолок на один вызов Sign. Единственный таймаут в ядре.
	Timeout time.Duration `mapstructure:"timeout"`

	// Исходящий троттлинг к сервису подписи (чтобы не зафлудить его при пиках)
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

// EvidenceConfig — настройки конвейера evidence-бандлов.
type EvidenceConfig struct {
	Dir           string        `mapstructure:"dir"` // каталог content-addressed хранилища
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// DatabaseConfig описывает подключение к PostgreSQL (индекс evidence для консоли).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"` // пусто — Postgres-синк выключен
	MaxConns int    `mapstructure:"max_conns"`
}

// RedisConfig описывает подключение к Redis (анонсы evidence для внешних подписчиков).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // пусто — анонсер выключен
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит ключи RS256 и учетку оператора для консоли аудита.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	OperatorLogin  string        `mapstructure:"operator_login"`
	// bcrypt-хеш пароля оператора; сам пароль в конфиге не храним
	OperatorPasswordHash string `mapstructure:"operator_password_hash"`
	PublicKey            []byte
	PrivateKey           []byte
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: GUARD_SHADOW_MODE=false перекроет guard.shadow_mode
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV (для Docker/K8s ключ кладут прямо в ENV)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	// 7. Валидация порогов. Невалидный конфиг — фатальная ошибка старта:
	// шлюз не имеет права принимать трафик с кривой политикой.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.console_port", 8000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	// Политика по умолчанию: shadow-режим, 100 rpm, 20 за 10с,
	// loopback и приватные сети освобождены от проверок.
	v.SetDefault("guard.shadow_mode", true)
	v.SetDefault("guard.rate_limit_per_minute", 100)
	v.SetDefault("guard.burst_limit", 20)
	v.SetDefault("guard.whitelist", []string{
		"127.0.0.0/8", "::1",
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16",
	})
	v.SetDefault("guard.proxy_header", "X-Forwarded-For")
	v.SetDefault("guard.janitor_interval", 5*time.Minute)

	v.SetDefault("signer.timeout", 2*time.Second)
	v.SetDefault("signer.rate_per_second", 50.0)
	v.SetDefault("signer.rate_burst", 10)

	v.SetDefault("evidence.dir", "./evidence")
	v.SetDefault("evidence.buffer_size", 10000)
	v.SetDefault("evidence.batch_size", 100)
	v.SetDefault("evidence.flush_interval", 500*time.Millisecond)

	v.SetDefault("database.max_conns", 25)

	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
}

// Validate проверяет численные пороги. Разбор whitelist-записей живет в пакете
// guard (NewWhitelist) и тоже фатален на старте — см. cmd/igw.
func (c *Config) Validate() error {
	if c.Guard.RateLimitPerMinute < 0 {
		return fmt.Errorf("guard.rate_limit_per_minute must be >= 0, got %d", c.Guard.RateLimitPerMinute)
	}
	if c.Guard.BurstLimit < 0 {
		return fmt.Errorf("guard.burst_limit must be >= 0, got %d", c.Guard.BurstLimit)
	}
	if c.Guard.JanitorInterval <= 0 {
		return fmt.Errorf("guard.janitor_interval must be positive, got %v", c.Guard.JanitorInterval)
	}
	if c.Signer.Timeout <= 0 {
		return fmt.Errorf("signer.timeout must be positive, got %v", c.Signer.Timeout)
	}
	if c.Evidence.BufferSize <= 0 || c.Evidence.BatchSize <= 0 {
		return fmt.Errorf("evidence buffer_size and batch_size must be positive")
	}
	return nil
}

// loadKeyResource — универсальный хелпер: ключ либо напрямую в ENV, либо файлом
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
