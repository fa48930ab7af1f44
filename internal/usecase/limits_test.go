package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/director74/bundle-service/internal/entity"
)

func makeComponent(id string, options ...entity.ComponentOption) entity.ProductComponent {
	return entity.ProductComponent{
		ID:       id,
		Title:    "Товар " + id,
		Quantity: 1,
		Options:  options,
	}
}

func makeOption(id, name string, selected int, total int) entity.ComponentOption {
	values := make([]entity.OptionValue, 0, total)
	for i := 0; i < total; i++ {
		values = append(values, entity.OptionValue{
			Value:    fmt.Sprintf("%s-%d", name, i),
			Selected: i < selected,
		})
	}
	return entity.ComponentOption{ID: id, Name: name, Values: values}
}

func TestValidateComponentsEmptyBundle(t *testing.T) {
	report := ValidateComponents(nil)

	assert.False(t, report.HasErrors())
	assert.Equal(t, 0, report.Limits.Products)
	assert.Equal(t, 0, report.Limits.Options)
	// Пустое произведение равно 1
	assert.Equal(t, 1, report.Limits.Variants)
}

func TestValidateComponentsVariantsMultiply(t *testing.T) {
	// 2 выбранных размера * 3 выбранных цвета * 2 материала = 12 вариантов
	components := []entity.ProductComponent{
		makeComponent("gid://shopify/Product/1",
			makeOption("opt-size", "Size", 2, 4),
			makeOption("opt-color", "Color", 3, 3),
		),
		makeComponent("gid://shopify/Product/2",
			makeOption("opt-material", "Material", 2, 2),
		),
	}

	report := ValidateComponents(components)

	assert.False(t, report.HasErrors())
	assert.Equal(t, 2, report.Limits.Products)
	assert.Equal(t, 3, report.Limits.Options)
	assert.Equal(t, 12, report.Limits.Variants)
}

func TestValidateComponentsTitleOptionExcluded(t *testing.T) {
	// Синтетическая опция Title не считается и не умножает варианты
	components := []entity.ProductComponent{
		makeComponent("gid://shopify/Product/1",
			makeOption("opt-title", "Title", 1, 1),
		),
		makeComponent("gid://shopify/Product/2",
			makeOption("opt-size", "Size", 2, 2),
		),
	}

	report := ValidateComponents(components)

	assert.False(t, report.HasErrors())
	assert.Equal(t, 1, report.Limits.Options)
	assert.Equal(t, 2, report.Limits.Variants)
}

func TestValidateComponentsUnselectedOptionBlocks(t *testing.T) {
	components := []entity.ProductComponent{
		makeComponent("gid://shopify/Product/1",
			makeOption("opt-size", "Size", 0, 3),
		),
	}

	report := ValidateComponents(components)

	assert.True(t, report.HasErrors())
	assert.Contains(t, report.ComponentErrors, "gid://shopify/Product/1")
	assert.Contains(t, report.ComponentErrors["gid://shopify/Product/1"], "opt-size")
}

func TestValidateComponentsProductLimit(t *testing.T) {
	components := make([]entity.ProductComponent, 0, 31)
	for i := 0; i < 31; i++ {
		components = append(components, makeComponent(fmt.Sprintf("gid://shopify/Product/%d", i)))
	}

	report := ValidateComponents(components)

	assert.True(t, report.HasErrors())
	assert.True(t, report.LimitErrors["products"])
	assert.False(t, report.LimitErrors["options"])
	assert.False(t, report.LimitErrors["variants"])
}

func TestValidateComponentsOptionLimit(t *testing.T) {
	// 4 опции при лимите 3; вариантов 2*2*2*2=16 — лимит вариантов не превышен
	components := []entity.ProductComponent{
		makeComponent("gid://shopify/Product/1",
			makeOption("opt-a", "Size", 2, 2),
			makeOption("opt-b", "Color", 2, 2),
		),
		makeComponent("gid://shopify/Product/2",
			makeOption("opt-c", "Material", 2, 2),
			makeOption("opt-d", "Style", 2, 2),
		),
	}

	report := ValidateComponents(components)

	assert.True(t, report.HasErrors())
	assert.True(t, report.LimitErrors["options"])
	assert.False(t, report.LimitErrors["variants"])
	assert.Equal(t, 4, report.Limits.Options)
}

func TestValidateComponentsVariantLimit(t *testing.T) {
	// 11 * 10 = 110 > 100, опций всего две — лимит опций не превышен
	components := []entity.ProductComponent{
		makeComponent("gid://shopify/Product/1", makeOption("opt-a", "Size", 11, 11)),
		makeComponent("gid://shopify/Product/2", makeOption("opt-b", "Color", 10, 10)),
	}

	report := ValidateComponents(components)

	assert.True(t, report.HasErrors())
	assert.True(t, report.LimitErrors["variants"])
	assert.False(t, report.LimitErrors["options"])
	assert.Equal(t, 110, report.Limits.Variants)
}

func TestValidateComponentsAgainstCustomCeilings(t *testing.T) {
	components := []entity.ProductComponent{
		makeComponent("gid://shopify/Product/1", makeOption("opt-a", "Size", 2, 2)),
		makeComponent("gid://shopify/Product/2", makeOption("opt-b", "Color", 2, 2)),
	}

	report := ValidateComponentsAgainst(components, BundleLimits{Products: 1, Options: 1, Variants: 3})

	assert.True(t, report.LimitErrors["products"])
	assert.True(t, report.LimitErrors["options"])
	assert.True(t, report.LimitErrors["variants"])
}

func TestValidateComponentsIsPure(t *testing.T) {
	components := []entity.ProductComponent{
		makeComponent("gid://shopify/Product/1", makeOption("opt-a", "Size", 2, 3)),
	}

	first := ValidateComponents(components)
	second := ValidateComponents(components)

	assert.Equal(t, first, second)
}
