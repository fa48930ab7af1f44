package usecase

import (
	"context"
	"io"

	"github.com/director74/bundle-service/internal/usecase/webapi"
)

// ShopifyAPI интерфейс для работы с Admin API платформы
type ShopifyAPI interface {
	CreateProductBundle(ctx context.Context, input webapi.BundleCreateInput) (webapi.JobHandle, error)
	UpdateProductBundle(ctx context.Context, input webapi.BundleUpdateInput) (webapi.JobHandle, error)
	GetProductOperation(ctx context.Context, jobID string, componentLimit int) (webapi.BundleOperation, error)
	CreateStagedUploads(ctx context.Context, inputs []webapi.StagedUploadInput) ([]webapi.StagedTarget, error)
	UploadToStagedTarget(ctx context.Context, target webapi.StagedTarget, filename string, source io.Reader) error
	CreateProductMedia(ctx context.Context, productID string, media []webapi.CreateMediaInput) ([]webapi.UserError, error)
	UpdateProduct(ctx context.Context, input webapi.ProductUpdateInput) ([]webapi.UserError, error)
	BulkUpdateVariants(ctx context.Context, productID string, variants []webapi.VariantBulkInput) ([]webapi.UserError, error)
	GetBundle(ctx context.Context, productID string, componentLimit int) (webapi.BundleDetails, error)
	GetShopInfo(ctx context.Context) (webapi.ShopInfo, error)
}

// MediaUploadAPI часть Admin API, нужная загрузчику медиа
type MediaUploadAPI interface {
	CreateStagedUploads(ctx context.Context, inputs []webapi.StagedUploadInput) ([]webapi.StagedTarget, error)
	UploadToStagedTarget(ctx context.Context, target webapi.StagedTarget, filename string, source io.Reader) error
	CreateProductMedia(ctx context.Context, productID string, media []webapi.CreateMediaInput) ([]webapi.UserError, error)
}

// EventPublisher интерфейс для публикации событий жизненного цикла бандла
type EventPublisher interface {
	PublishMessage(exchange, routingKey string, message interface{}) error
	PublishMessageWithRetry(exchange, routingKey string, message interface{}, retries int) error
}
