package entity

import (
	"io"

	"github.com/shopspring/decimal"
)

// BundleStatus статус составного товара на платформе
type BundleStatus string

const (
	BundleStatusActive BundleStatus = "ACTIVE"
	BundleStatusDraft  BundleStatus = "DRAFT"
)

// DiscountType тип скидки бандла
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "PERCENTAGE"
	DiscountTypeFixed      DiscountType = "FIXED"
)

// DiscountRule правило расчета скидки. При Optional=true скидка не применяется
// и цены компонентов проходят без изменений.
type DiscountRule struct {
	Type     DiscountType    `json:"type"`
	Value    decimal.Decimal `json:"value"`
	Optional bool            `json:"optional"`
}

// OptionValue значение опции компонента с признаком выбора
type OptionValue struct {
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}

// ComponentOption опция товара-компонента (например "Size" или "Color").
// Опция с именем "Title" — синтетическая опция платформы для товаров
// с единственным вариантом, она не участвует в подсчете лимитов.
type ComponentOption struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Values []OptionValue `json:"values"`
}

// SelectedValues возвращает выбранные значения опции
func (o ComponentOption) SelectedValues() []string {
	values := make([]string, 0, len(o.Values))
	for _, v := range o.Values {
		if v.Selected {
			values = append(values, v.Value)
		}
	}
	return values
}

// ProductComponent товар каталога, входящий в бандл
type ProductComponent struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Vendor   string            `json:"vendor"`
	Quantity int               `json:"quantity"`
	Options  []ComponentOption `json:"options"`
}

// MediaAsset медиафайл бандла. Source — локальный источник байтов,
// принадлежит вызывающему до передачи в загрузчик.
type MediaAsset struct {
	Filename  string    `json:"name"`
	MimeType  string    `json:"type"`
	SizeBytes int64     `json:"size"`
	AltText   string    `json:"altText"`
	Source    io.Reader `json:"-"`
}

// CollectionRef ссылка на коллекцию платформы
type CollectionRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// BundleDraft черновик составного товара — единица работы саги.
// RemoteID заполняется только после успешного шага создания.
type BundleDraft struct {
	Name        string             `json:"bundleName"`
	Description string             `json:"description"`
	Status      BundleStatus       `json:"status"`
	Components  []ProductComponent `json:"products"`
	Discount    DiscountRule       `json:"discount"`
	Media       []MediaAsset       `json:"media"`
	Collections []CollectionRef    `json:"collectionsToJoin"`
	Tags        []string           `json:"productTags"`
	ProductType string             `json:"productType"`
	Shop        string             `json:"-"`
	UserID      string             `json:"-"`
	RemoteID    string             `json:"-"`
}

// BundleResult агрегированный результат саги. Warnings содержит ошибки
// некритичных шагов (медиа, метаданные, цены) — они не влияют на Success.
type BundleResult struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	BundleID      uint     `json:"bundle_id,omitempty"`
	ProductID     string   `json:"product_id,omitempty"`
	ProductHandle string   `json:"product_handle,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// CreateBundleRequest тело части formData запроса на создание бандла.
// Файлы медиа приходят отдельными частями multipart формы media_<i>.
type CreateBundleRequest struct {
	BundleName        string             `json:"bundleName" binding:"required"`
	Description       string             `json:"description"`
	Status            string             `json:"status"`
	DiscountType      string             `json:"discountType"`
	DiscountValue     decimal.Decimal    `json:"discountValue"`
	DiscountOptional  bool               `json:"discountOptional"`
	Products          []ProductComponent `json:"products" binding:"required,min=1"`
	Media             []MediaMeta        `json:"media"`
	CollectionsToJoin []CollectionRef    `json:"collectionsToJoin"`
	ProductTags       []string           `json:"productTags"`
	ProductType       string             `json:"productType"`
}

// MediaMeta описание медиафайла в formData (сами байты — в частях media_<i>)
type MediaMeta struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	AltText string `json:"altText"`
}

// UpdateBundleRequest запрос на пересборку компонентов созданного бандла
type UpdateBundleRequest struct {
	ProductID string             `json:"id" binding:"required"`
	Products  []ProductComponent `json:"products" binding:"required,min=1"`
}

// Discount собирает правило скидки из запроса. Неизвестный тип считается
// отсутствием скидки и дает тождественный расчет цены.
func (r CreateBundleRequest) Discount() DiscountRule {
	rule := DiscountRule{Value: r.DiscountValue, Optional: r.DiscountOptional}
	switch r.DiscountType {
	case "percentage":
		rule.Type = DiscountTypePercentage
	case "fixed":
		rule.Type = DiscountTypeFixed
	default:
		rule.Optional = true
	}
	return rule
}

// BundleStatusFromRequest нормализует статус из запроса ("active"/"draft")
func BundleStatusFromRequest(status string) BundleStatus {
	if status == "active" || status == "ACTIVE" {
		return BundleStatusActive
	}
	return BundleStatusDraft
}
