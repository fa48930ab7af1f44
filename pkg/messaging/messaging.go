package messaging

import (
	"github.com/director74/bundle-service/pkg/config"
	"github.com/director74/bundle-service/pkg/rabbitmq"
)

// MessagePublisher интерфейс для публикации сообщений
type MessagePublisher interface {
	PublishMessage(exchange, routingKey string, message interface{}) error
	PublishMessageWithRetry(exchange, routingKey string, message interface{}, retries int) error
}

// MessageBroker объединяет публикацию и настройку топологии
type MessageBroker interface {
	MessagePublisher
	DeclareExchange(name string, kind string) error
	DeclareQueue(name string) error
	BindQueue(queueName, exchangeName, routingKey string) error
	Close() error
}

// InitRabbitMQ инициализирует подключение к RabbitMQ с общими параметрами
func InitRabbitMQ(cfg config.RabbitMQConfig) (*rabbitmq.RabbitMQ, error) {
	rmqCfg := rabbitmq.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		VHost:    cfg.VHost,
	}

	rmq, err := rabbitmq.NewRabbitMQ(rmqCfg)
	if err != nil {
		return nil, err
	}

	return rmq, nil
}

// SetupExchangesAndQueues настраивает exchanges и очереди для сервиса
func SetupExchangesAndQueues(broker MessageBroker, exchanges map[string]string, queues map[string]map[string]string) error {
	// Настраиваем exchanges
	for name, kind := range exchanges {
		if err := broker.DeclareExchange(name, kind); err != nil {
			return err
		}
	}

	// Настраиваем очереди и привязки: queueName -> exchange -> routingKey
	for queueName, bindings := range queues {
		if err := broker.DeclareQueue(queueName); err != nil {
			return err
		}
		for exchangeName, routingKey := range bindings {
			if err := broker.BindQueue(queueName, exchangeName, routingKey); err != nil {
				return err
			}
		}
	}

	return nil
}
