package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/director74/bundle-service/config"
	httpController "github.com/director74/bundle-service/internal/controller/http"
	"github.com/director74/bundle-service/internal/entity"
	"github.com/director74/bundle-service/internal/repo"
	"github.com/director74/bundle-service/internal/usecase"
	"github.com/director74/bundle-service/internal/usecase/webapi"
	"github.com/director74/bundle-service/pkg/auth"
	"github.com/director74/bundle-service/pkg/database"
	"github.com/director74/bundle-service/pkg/errors"
	"github.com/director74/bundle-service/pkg/messaging"
	"github.com/director74/bundle-service/pkg/rabbitmq"
)

// BundleEventsExchange exchange событий жизненного цикла бандлов
const BundleEventsExchange = "bundle_events"

// App представляет приложение
type App struct {
	config     *config.Config
	httpServer *http.Server
	db         *gorm.DB
	rabbitMQ   *rabbitmq.RabbitMQ
}

func NewApp(cfg *config.Config) (*App, error) {
	var db *gorm.DB
	var rmq *rabbitmq.RabbitMQ
	var err error

	// Инициализируем подключение к PostgreSQL
	db, err = database.NewPostgresDB(cfg.Postgres)
	if err != nil {
		return nil, errors.AppendPrefix(err, "не удалось подключиться к базе данных")
	}

	// Автомиграция локальных записей бандлов
	if err := database.AutoMigrateWithCleanup(db, &entity.Bundle{}); err != nil {
		return nil, errors.AppendPrefix(err, "не удалось выполнить миграцию")
	}

	// Инициализируем подключение к RabbitMQ
	rmq, err = messaging.InitRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		database.CloseDB(db)
		return nil, errors.AppendPrefix(err, "не удалось подключиться к RabbitMQ")
	}

	// Настраиваем exchanges в RabbitMQ; очереди объявляют потребители событий
	exchanges := map[string]string{
		BundleEventsExchange: "topic",
	}
	queues := map[string]map[string]string{}

	if err := messaging.SetupExchangesAndQueues(rmq, exchanges, queues); err != nil {
		database.CloseDB(db)
		rmq.Close()
		return nil, errors.AppendPrefix(err, "ошибка при настройке RabbitMQ")
	}

	// Проверка session token встроенного приложения
	tokenManager := auth.NewSessionTokenManager(auth.NewConfig(cfg.Shopify.APIKey, cfg.Shopify.APISecret))
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	// Клиент Admin API платформы
	shopifyClient := webapi.NewShopifyClient(cfg.Shopify.GraphQLEndpoint(), cfg.Shopify.AccessToken)

	// Создаем репозитории
	bundleRepo := repo.NewBundleRepository(db)

	// Собираем сагу создания бандла
	uploader := usecase.NewStagedUploadManager(shopifyClient, nil)
	polling := usecase.PollConfig{
		Interval: cfg.Polling.Interval,
		Timeout:  cfg.Polling.Timeout,
	}
	orchestrator := usecase.NewBundleOrchestrator(shopifyClient, uploader, bundleRepo, rmq, BundleEventsExchange, polling, nil)
	bundleUseCase := usecase.NewBundleUseCase(orchestrator, shopifyClient, bundleRepo, nil)

	// Создаем HTTP контроллеры
	bundleHandler := httpController.NewBundleHandler(bundleUseCase, authMiddleware)

	// Инициализируем Gin роутер
	router := gin.Default()

	// Добавляем middleware для обработки ошибок и восстановления после паники
	router.Use(errors.RecoveryMiddleware())
	router.Use(errors.ErrorMiddleware())

	// Настраиваем обработчики для 404 и 405 ошибок
	router.NoRoute(errors.NotFoundHandler())
	router.NoMethod(errors.MethodNotAllowedHandler())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Регистрируем эндпоинты
	bundleHandler.RegisterRoutes(router)

	// Настраиваем HTTP сервер
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &App{
		config:     cfg,
		httpServer: httpServer,
		db:         db,
		rabbitMQ:   rmq,
	}, nil
}

// Run запускает приложение
func (a *App) Run() error {
	// Настраиваем обработку сигналов завершения
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем HTTP сервер в горутине
	go func() {
		log.Printf("HTTP сервер запущен на порту %s", a.config.HTTP.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ошибка запуска HTTP сервера: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Получен сигнал завершения, закрываем приложение...")
	case <-ctx.Done():
		log.Println("Контекст завершен, закрываем приложение...")
	}

	return a.Shutdown()
}

// Shutdown корректно завершает работу приложения
func (a *App) Shutdown() error {
	errGroup := errors.NewErrorGroup()

	// Закрываем HTTP сервер
	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := a.httpServer.Shutdown(ctx); err != nil {
			errGroup.AddPrefix(err, "ошибка при закрытии HTTP сервера")
		}
	}

	// Закрываем RabbitMQ
	if a.rabbitMQ != nil {
		a.rabbitMQ.Close()
	}

	// Закрываем соединение с базой данных
	if a.db != nil {
		if err := database.CloseDB(a.db); err != nil {
			errGroup.AddPrefix(err, "ошибка при закрытии соединения с базой данных")
		}
	}

	if errGroup.HasErrors() {
		errors.LogError(errGroup, "Shutdown")
		return errGroup
	}

	log.Println("Приложение успешно завершено")
	return nil
}
