// Package config предоставляет загрузку конфигурации из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config содержит полную конфигурацию payment-service.
type Config struct {
	App         AppConfig
	HTTP        HTTPConfig
	MySQL       MySQLConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	JWT         JWTConfig
	Jaeger      JaegerConfig
	Metrics     MetricsConfig
	RateLimit   RateLimitConfig
	PixGateway  PixGatewayConfig
	MercadoPago MercadoPagoConfig
	Telegram    TelegramConfig
	Utmify      UtmifyConfig
	Reminder    ReminderConfig
	Inventory   InventoryConfig
}

// AppConfig содержит общие настройки приложения.
type AppConfig struct {
	Name           string `env:"APP_NAME" envDefault:"payment-service"`
	Env            string `env:"APP_ENV" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"false"`
}

// HTTPConfig — настройки HTTP сервера.
type HTTPConfig struct {
	Host         string        `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// Addr возвращает адрес HTTP сервера.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MySQLConfig содержит настройки подключения к MySQL.
type MySQLConfig struct {
	Host            string        `env:"MYSQL_HOST" envDefault:"localhost"`
	Port            int           `env:"MYSQL_PORT" envDefault:"3306"`
	User            string        `env:"MYSQL_USER" envDefault:"root"`
	Password        string        `env:"MYSQL_PASSWORD" envDefault:"root"`
	Database        string        `env:"MYSQL_DATABASE" envDefault:"funnel_payments"`
	MaxOpenConns    int           `env:"MYSQL_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MYSQL_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"MYSQL_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN возвращает строку подключения к MySQL.
// Время хранится в UTC: даты уходят в UTMify и сравниваются с reminded_at.
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// MigrateURL возвращает URL для golang-migrate (драйвер mysql).
func (c MySQLConfig) MigrateURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig содержит настройки подключения к Redis.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr возвращает адрес Redis сервера.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig содержит настройки подключения к Kafka.
// Пустой список брокеров отключает outbox worker и consumer трекинга.
type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"payment-service-tracking"`
}

// JWTConfig — настройки валидации access token (HS256, общий секрет с auth-провайдером).
type JWTConfig struct {
	Secret   string `env:"JWT_SECRET,required"`
	Issuer   string `env:"JWT_ISSUER" envDefault:""`
	Audience string `env:"JWT_AUDIENCE" envDefault:"authenticated"`
}

// JaegerConfig содержит настройки трассировки Jaeger.
type JaegerConfig struct {
	Enabled  bool   `env:"JAEGER_ENABLED" envDefault:"true"`
	Host     string `env:"JAEGER_HOST" envDefault:"localhost"`
	OTLPPort int    `env:"JAEGER_OTLP_PORT" envDefault:"4317"` // OTLP gRPC порт
}

// OTLPEndpoint возвращает OTLP gRPC endpoint для Jaeger.
func (c JaegerConfig) OTLPEndpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.OTLPPort)
}

// MetricsConfig содержит настройки Prometheus метрик.
type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`
	Port    int  `env:"METRICS_PORT" envDefault:"9090"`
}

// Addr возвращает адрес для Metrics HTTP сервера.
func (c MetricsConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RateLimitConfig — настройки ограничения запросов к /api/v1.
type RateLimitConfig struct {
	Enabled       bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsLimit int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// PixGatewayConfig — прямой PIX-шлюз (учётная запись платформы).
type PixGatewayConfig struct {
	BaseURL     string        `env:"PIXGATEWAY_BASE_URL" envDefault:"https://api.pixgateway.com.br"`
	SecretKey   string        `env:"PIXGATEWAY_SECRET_KEY"`
	PostbackURL string        `env:"PIXGATEWAY_POSTBACK_URL"`
	Timeout     time.Duration `env:"PIXGATEWAY_TIMEOUT" envDefault:"15s"`
}

// MercadoPagoConfig — Mercado Pago (токены продавцов хранятся в БД).
type MercadoPagoConfig struct {
	BaseURL         string        `env:"MERCADOPAGO_BASE_URL" envDefault:"https://api.mercadopago.com"`
	NotificationURL string        `env:"MERCADOPAGO_NOTIFICATION_URL"`
	Timeout         time.Duration `env:"MERCADOPAGO_TIMEOUT" envDefault:"15s"`
}

// TelegramConfig — Bot API (токены ботов хранятся в БД).
type TelegramConfig struct {
	APIURL  string        `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`
	Timeout time.Duration `env:"TELEGRAM_TIMEOUT" envDefault:"10s"`
}

// UtmifyConfig — внешний сервис атрибуции.
type UtmifyConfig struct {
	BaseURL  string        `env:"UTMIFY_BASE_URL" envDefault:"https://api.utmify.com.br"`
	Platform string        `env:"UTMIFY_PLATFORM" envDefault:"FunnelBot"`
	Timeout  time.Duration `env:"UTMIFY_TIMEOUT" envDefault:"10s"`
	IsTest   bool          `env:"UTMIFY_IS_TEST" envDefault:"false"`
}

// ReminderConfig — настройки напоминаний о неоплаченных PIX.
// SweepInterval = 0 отключает встроенный планировщик (остаётся только HTTP триггер).
type ReminderConfig struct {
	DefaultMinutes int           `env:"REMINDER_DEFAULT_MINUTES" envDefault:"5"`
	SweepInterval  time.Duration `env:"REMINDER_SWEEP_INTERVAL" envDefault:"0s"`
	BatchSize      int           `env:"REMINDER_BATCH_SIZE" envDefault:"100"`
}

// InventoryConfig — резервирование товаров маркетплейса на время оплаты.
type InventoryConfig struct {
	HoldTTL time.Duration `env:"INVENTORY_HOLD_TTL" envDefault:"30m"`
}

// Load загружает конфигурацию из переменных окружения.
// Опционально загружает .env файл, если он существует.
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файл не найден)
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// LoadFromFile загружает конфигурацию из указанного .env файла.
func LoadFromFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("ошибка загрузки .env файла %s: %w", path, err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	return cfg, nil
}

// IsDevelopment возвращает true, если приложение запущено в development режиме.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction возвращает true, если приложение запущено в production режиме.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
