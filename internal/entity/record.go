package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Bundle локальная запись черновика бандла. Components хранит снимок
// компонентов в JSONB. ProductBundleID и ProductHandle заполняются один раз —
// на контрольной точке саги после разрешения асинхронной операции, чтобы
// созданный товар никогда не остался без привязки к локальной записи.
type Bundle struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	Name            string          `json:"name" gorm:"not null"`
	Description     string          `json:"description" gorm:"type:text"`
	DiscountType    string          `json:"discount_type" gorm:"type:varchar(20)"`
	DiscountValue   decimal.Decimal `json:"discount_value" gorm:"type:numeric(12,2)"`
	Components      datatypes.JSON  `json:"components" gorm:"not null;default:'[]'"`
	Shop            string          `json:"shop" gorm:"index;type:varchar(255)"`
	UserID          string          `json:"user_id" gorm:"type:varchar(64)"`
	ProductBundleID *string         `json:"product_bundle_id,omitempty" gorm:"type:varchar(255);index"`
	ProductHandle   *string         `json:"product_handle,omitempty" gorm:"type:varchar(255)"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	DeletedAt       *time.Time      `json:"-" gorm:"index"`
}

// TableName задает имя таблицы для GORM
func (Bundle) TableName() string {
	return "bundles"
}

// ListBundlesResponse ответ на запрос списка локальных записей
type ListBundlesResponse struct {
	Bundles []Bundle `json:"bundles"`
	Total   int64    `json:"total"`
}
