package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/director74/bundle-service/internal/entity"
)

var percentBase = decimal.NewFromInt(100)

// ApplyDiscount вычисляет цену со скидкой. Промежуточная арифметика идет
// без округления, округление до копеек выполняется только на выводе
// (FormatPrice).
//
// Процентная скидка выше 100 дает отрицательную цену — фиксированная скидка
// при этом ограничена нулем. Несимметрично, но так считает платформа-источник.
func ApplyDiscount(rule entity.DiscountRule, originalPrice decimal.Decimal) decimal.Decimal {
	if rule.Optional {
		return originalPrice
	}

	switch rule.Type {
	case entity.DiscountTypePercentage:
		factor := decimal.NewFromInt(1).Sub(rule.Value.Div(percentBase))
		return originalPrice.Mul(factor)
	case entity.DiscountTypeFixed:
		discounted := originalPrice.Sub(rule.Value)
		if discounted.IsNegative() {
			return decimal.Zero
		}
		return discounted
	default:
		// Неизвестный тип скидки — цена проходит без изменений
		return originalPrice
	}
}

// FormatPrice форматирует цену для отправки платформе (2 знака после запятой)
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}
