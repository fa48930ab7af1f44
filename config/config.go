package config

import (
	"github.com/director74/bundle-service/pkg/config"
)

// Config содержит конфигурацию сервиса бандлов
type Config struct {
	HTTP     config.HTTPConfig
	Postgres config.PostgresConfig
	RabbitMQ config.RabbitMQConfig
	Shopify  config.ShopifyConfig
	Polling  config.PollingConfig
}

func NewConfig() (*Config, error) {
	// Загружаем общую конфигурацию
	commonConfig := config.LoadCommonConfig("bundles", "8080")
	shopifyConfig := config.LoadShopifyConfig()
	pollingConfig := config.LoadPollingConfig()

	return &Config{
		HTTP:     commonConfig.HTTP,
		Postgres: commonConfig.Postgres,
		RabbitMQ: commonConfig.RabbitMQ,
		Shopify:  *shopifyConfig,
		Polling:  *pollingConfig,
	}, nil
}
