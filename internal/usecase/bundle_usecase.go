package usecase

import (
	"context"
	"log"

	"github.com/director74/bundle-service/internal/entity"
	"github.com/director74/bundle-service/internal/repo"
	"github.com/director74/bundle-service/internal/usecase/webapi"
)

// BundleUseCase фасад операций с бандлами: создание и обновление делегируются
// саге, чтение обслуживается локальным репозиторием и Admin API напрямую
type BundleUseCase struct {
	orchestrator *BundleOrchestrator
	api          ShopifyAPI
	bundleRepo   repo.BundleRepository
	logger       *log.Logger
}

func NewBundleUseCase(
	orchestrator *BundleOrchestrator,
	api ShopifyAPI,
	bundleRepo repo.BundleRepository,
	logger *log.Logger,
) *BundleUseCase {
	if logger == nil {
		logger = log.New(log.Writer(), "[BundleUseCase] ", log.LstdFlags)
	}
	return &BundleUseCase{
		orchestrator: orchestrator,
		api:          api,
		bundleRepo:   bundleRepo,
		logger:       logger,
	}
}

// CreateBundle запускает сагу создания составного товара
func (uc *BundleUseCase) CreateBundle(ctx context.Context, draft *entity.BundleDraft) (*entity.BundleResult, error) {
	return uc.orchestrator.CreateBundle(ctx, draft)
}

// UpdateBundle запускает сагу пересборки компонентов созданного бандла
func (uc *BundleUseCase) UpdateBundle(ctx context.Context, req entity.UpdateBundleRequest) (*entity.BundleResult, error) {
	return uc.orchestrator.UpdateBundle(ctx, req.ProductID, req.Products)
}

// ListBundles возвращает страницу локальных записей бандлов магазина
func (uc *BundleUseCase) ListBundles(ctx context.Context, shop string, limit, offset int) (*entity.ListBundlesResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	bundles, total, err := uc.bundleRepo.ListByShop(ctx, shop, limit, offset)
	if err != nil {
		return nil, err
	}
	return &entity.ListBundlesResponse{
		Bundles: bundles,
		Total:   total,
	}, nil
}

// GetBundle возвращает локальную запись и, если товар уже создан,
// его актуальное состояние с платформы
func (uc *BundleUseCase) GetBundle(ctx context.Context, id uint) (*entity.Bundle, *webapi.BundleDetails, error) {
	record, err := uc.bundleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if record.ProductBundleID == nil {
		return record, nil, nil
	}

	details, err := uc.api.GetBundle(ctx, *record.ProductBundleID, 50)
	if err != nil {
		// Платформа недоступна — локальная запись все равно отдается
		uc.logger.Printf("[WARN] не удалось получить товар %s: %v", *record.ProductBundleID, err)
		return record, nil, nil
	}
	return record, &details, nil
}

// DeleteBundle удаляет локальную запись бандла. Товар на платформе
// не затрагивается.
func (uc *BundleUseCase) DeleteBundle(ctx context.Context, id uint) error {
	return uc.bundleRepo.Delete(ctx, id)
}

// GetShopInfo возвращает справочные данные магазина для мастера создания
func (uc *BundleUseCase) GetShopInfo(ctx context.Context) (*webapi.ShopInfo, error) {
	info, err := uc.api.GetShopInfo(ctx)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ValidateBundle проверяет состав без отправки на платформу — для
// инкрементальной проверки в мастере создания
func (uc *BundleUseCase) ValidateBundle(components []entity.ProductComponent) LimitReport {
	return ValidateComponents(components)
}
