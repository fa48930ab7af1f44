package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/director74/bundle-service/internal/entity"
)

// BundleRepository интерфейс репозитория локальных записей бандлов
type BundleRepository interface {
	Create(ctx context.Context, bundle *entity.Bundle) error
	GetByID(ctx context.Context, id uint) (*entity.Bundle, error)
	ListByShop(ctx context.Context, shop string, limit, offset int) ([]entity.Bundle, int64, error)
	SetRemoteProduct(ctx context.Context, id uint, productID, productHandle string) error
	Delete(ctx context.Context, id uint) error
}

// ErrBundleNotFound ошибка, когда запись бандла не найдена
var ErrBundleNotFound = errors.New("запись бандла не найдена")

// BundleRepositoryImpl реализация репозитория бандлов на GORM
type BundleRepositoryImpl struct {
	db *gorm.DB
}

func NewBundleRepository(db *gorm.DB) BundleRepository {
	return &BundleRepositoryImpl{
		db: db,
	}
}

func (r *BundleRepositoryImpl) Create(ctx context.Context, bundle *entity.Bundle) error {
	return r.db.WithContext(ctx).Create(bundle).Error
}

func (r *BundleRepositoryImpl) GetByID(ctx context.Context, id uint) (*entity.Bundle, error) {
	var bundle entity.Bundle
	result := r.db.WithContext(ctx).First(&bundle, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrBundleNotFound
		}
		return nil, result.Error
	}
	return &bundle, nil
}

func (r *BundleRepositoryImpl) ListByShop(ctx context.Context, shop string, limit, offset int) ([]entity.Bundle, int64, error) {
	var bundles []entity.Bundle
	var total int64

	if err := r.db.WithContext(ctx).
		Model(&entity.Bundle{}).
		Where("shop = ?", shop).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := r.db.WithContext(ctx).
		Where("shop = ?", shop).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&bundles)

	if result.Error != nil {
		return nil, 0, result.Error
	}
	return bundles, total, nil
}

// SetRemoteProduct записывает идентификатор и handle созданного товара.
// Это единственное обновление записи после создания — контрольная точка саги.
func (r *BundleRepositoryImpl) SetRemoteProduct(ctx context.Context, id uint, productID, productHandle string) error {
	result := r.db.WithContext(ctx).
		Model(&entity.Bundle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"product_bundle_id": productID,
			"product_handle":    productHandle,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBundleNotFound
	}
	return nil
}

func (r *BundleRepositoryImpl) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entity.Bundle{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBundleNotFound
	}
	return nil
}
