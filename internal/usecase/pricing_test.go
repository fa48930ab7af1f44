package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/director74/bundle-service/internal/entity"
)

func TestApplyDiscountPercentage(t *testing.T) {
	rule := entity.DiscountRule{
		Type:  entity.DiscountTypePercentage,
		Value: decimal.NewFromInt(25),
	}

	price := ApplyDiscount(rule, decimal.NewFromFloat(100.00))
	assert.Equal(t, "75.00", FormatPrice(price))
}

func TestApplyDiscountPercentageNoIntermediateRounding(t *testing.T) {
	// 10.01 * (1 - 1/3*100/100) не должно округляться до вывода
	rule := entity.DiscountRule{
		Type:  entity.DiscountTypePercentage,
		Value: decimal.NewFromFloat(33.33),
	}

	price := ApplyDiscount(rule, decimal.NewFromFloat(10.01))
	assert.Equal(t, "6.67", FormatPrice(price))
}

func TestApplyDiscountPercentageOverHundredGoesNegative(t *testing.T) {
	// Процентная скидка выше 100 дает отрицательную цену — поведение
	// платформы-источника, нулем не ограничивается
	rule := entity.DiscountRule{
		Type:  entity.DiscountTypePercentage,
		Value: decimal.NewFromInt(150),
	}

	price := ApplyDiscount(rule, decimal.NewFromInt(100))
	assert.True(t, price.IsNegative())
	assert.Equal(t, "-50.00", FormatPrice(price))
}

func TestApplyDiscountFixed(t *testing.T) {
	rule := entity.DiscountRule{
		Type:  entity.DiscountTypeFixed,
		Value: decimal.NewFromFloat(15.50),
	}

	price := ApplyDiscount(rule, decimal.NewFromInt(100))
	assert.Equal(t, "84.50", FormatPrice(price))
}

func TestApplyDiscountFixedFlooredAtZero(t *testing.T) {
	// Фиксированная скидка, в отличие от процентной, ограничена нулем
	rule := entity.DiscountRule{
		Type:  entity.DiscountTypeFixed,
		Value: decimal.NewFromInt(150),
	}

	price := ApplyDiscount(rule, decimal.NewFromInt(100))
	assert.True(t, price.IsZero())
	assert.Equal(t, "0.00", FormatPrice(price))
}

func TestApplyDiscountOptionalIsIdentity(t *testing.T) {
	rule := entity.DiscountRule{
		Type:     entity.DiscountTypePercentage,
		Value:    decimal.NewFromInt(50),
		Optional: true,
	}

	original := decimal.NewFromFloat(49.99)
	price := ApplyDiscount(rule, original)
	assert.True(t, price.Equal(original))
}

func TestApplyDiscountUnknownTypeIsIdentity(t *testing.T) {
	rule := entity.DiscountRule{
		Type:  entity.DiscountType("BOGOF"),
		Value: decimal.NewFromInt(50),
	}

	original := decimal.NewFromFloat(19.90)
	price := ApplyDiscount(rule, original)
	assert.True(t, price.Equal(original))
}

func TestFormatPriceTwoDecimalPlaces(t *testing.T) {
	assert.Equal(t, "10.00", FormatPrice(decimal.NewFromInt(10)))
	assert.Equal(t, "3.33", FormatPrice(decimal.NewFromFloat(10).Div(decimal.NewFromInt(3))))
}
