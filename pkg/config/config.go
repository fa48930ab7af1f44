package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"log"

	"github.com/joho/godotenv"
)

// CommonConfig содержит общую конфигурацию сервиса
type CommonConfig struct {
	HTTP     HTTPConfig
	Postgres PostgresConfig
	RabbitMQ RabbitMQConfig
}

// HTTPConfig содержит настройки HTTP сервера
type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig содержит настройки базы данных PostgreSQL
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RabbitMQConfig содержит настройки RabbitMQ
type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	VHost    string
}

// ShopifyConfig содержит настройки доступа к Admin API платформы
type ShopifyConfig struct {
	ShopDomain  string // например my-shop.myshopify.com
	AccessToken string
	APIKey      string // client id приложения, он же audience session token
	APISecret   string // ключ подписи session token
	APIVersion  string
}

// GraphQLEndpoint возвращает URL GraphQL эндпоинта Admin API
func (c ShopifyConfig) GraphQLEndpoint() string {
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", c.ShopDomain, c.APIVersion)
}

// PollingConfig содержит настройки опроса асинхронных операций
type PollingConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// LoadCommonConfig загружает общую конфигурацию из переменных окружения
func LoadCommonConfig(serviceName string, port string) *CommonConfig {
	// Загружаем переменные окружения из .env файла, если он существует
	godotenv.Load()

	return &CommonConfig{
		HTTP: HTTPConfig{
			Port: GetEnv("HTTP_PORT", port),
			// Создание бандла с медиа может занимать десятки секунд,
			// поэтому таймаут записи заметно больше, чем у обычного CRUD
			ReadTimeout:  GetEnvAsDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: GetEnvAsDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     GetEnv("POSTGRES_HOST", "localhost"),
			Port:     GetEnv("POSTGRES_PORT", "5432"),
			User:     GetEnv("POSTGRES_USER", "postgres"),
			Password: GetEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:   GetEnv("POSTGRES_DB", serviceName),
			SSLMode:  GetEnv("POSTGRES_SSLMODE", "disable"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     GetEnv("RABBITMQ_HOST", "localhost"),
			Port:     GetEnv("RABBITMQ_PORT", "5672"),
			User:     GetEnv("RABBITMQ_USER", "guest"),
			Password: GetEnv("RABBITMQ_PASSWORD", "guest"),
			VHost:    GetEnv("RABBITMQ_VHOST", "/"),
		},
	}
}

// LoadShopifyConfig загружает конфигурацию Admin API из переменных окружения
func LoadShopifyConfig() *ShopifyConfig {
	cfg := &ShopifyConfig{
		ShopDomain:  GetEnv("SHOPIFY_SHOP_DOMAIN", ""),
		AccessToken: GetEnv("SHOPIFY_ACCESS_TOKEN", ""),
		APIKey:      GetEnv("SHOPIFY_API_KEY", ""),
		APISecret:   GetEnv("SHOPIFY_API_SECRET", ""),
		APIVersion:  GetEnv("SHOPIFY_API_VERSION", "2024-07"),
	}

	if cfg.AccessToken == "" {
		log.Println("ВНИМАНИЕ: SHOPIFY_ACCESS_TOKEN не задан! Запросы к Admin API будут отклонены платформой.")
	}
	if cfg.APISecret == "" {
		log.Println("ВНИМАНИЕ: SHOPIFY_API_SECRET не задан! Проверка session token работать не будет.")
	}

	return cfg
}

// LoadPollingConfig загружает настройки опроса асинхронных операций
func LoadPollingConfig() *PollingConfig {
	return &PollingConfig{
		Interval: GetEnvAsDuration("JOB_POLL_INTERVAL", time.Second),
		Timeout:  GetEnvAsDuration("JOB_POLL_TIMEOUT", 20*time.Second),
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := GetEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsSlice читает список значений, разделенных запятыми
func GetEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := GetEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
