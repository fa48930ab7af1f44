package usecase

import (
	"fmt"

	"github.com/director74/bundle-service/internal/entity"
)

// defaultOptionName синтетическая опция платформы для товаров с единственным
// вариантом, не участвует в подсчете лимитов
const defaultOptionName = "Title"

// BundleLimits предельные значения платформы для составного товара
type BundleLimits struct {
	Products int `json:"products"`
	Options  int `json:"options"`
	Variants int `json:"variants"`
}

// DefaultBundleLimits ограничения платформы на состав бандла
var DefaultBundleLimits = BundleLimits{
	Products: 30,
	Options:  3,
	Variants: 100,
}

// LimitReport результат проверки состава бандла. ComponentErrors заполняется
// для опций без единого выбранного значения, Limits содержит вычисленные
// суммарные значения, LimitErrors — флаги превышения по каждому ключу.
type LimitReport struct {
	ComponentErrors map[string]map[string]string `json:"component_errors"`
	Limits          BundleLimits                 `json:"limits"`
	LimitErrors     map[string]bool              `json:"limit_errors"`
}

// HasErrors проверяет, есть ли ошибки выбора или превышения лимитов
func (r LimitReport) HasErrors() bool {
	if len(r.ComponentErrors) > 0 {
		return true
	}
	for _, exceeded := range r.LimitErrors {
		if exceeded {
			return true
		}
	}
	return false
}

// ValidateComponents проверяет состав бандла против лимитов платформы.
// Чистая функция без побочных эффектов: повторный вызов на неизменных
// данных дает идентичный результат.
func ValidateComponents(components []entity.ProductComponent) LimitReport {
	return ValidateComponentsAgainst(components, DefaultBundleLimits)
}

// ValidateComponentsAgainst проверяет состав против заданных лимитов
func ValidateComponentsAgainst(components []entity.ProductComponent, ceilings BundleLimits) LimitReport {
	report := LimitReport{
		ComponentErrors: make(map[string]map[string]string),
		Limits: BundleLimits{
			Products: len(components),
			Options:  0,
			// Количество вариантов — произведение вкладов компонентов,
			// пустое произведение равно 1 (так платформа генерирует SKU)
			Variants: 1,
		},
		LimitErrors: make(map[string]bool),
	}

	for _, component := range components {
		// Опция без единого выбранного значения блокирует отправку
		for _, option := range component.Options {
			if len(option.SelectedValues()) == 0 {
				if report.ComponentErrors[component.ID] == nil {
					report.ComponentErrors[component.ID] = make(map[string]string)
				}
				report.ComponentErrors[component.ID][option.ID] = fmt.Sprintf("необходимо выбрать хотя бы одно значение %s", option.Name)
			}
		}

		componentVariants := 1
		for _, option := range component.Options {
			if option.Name == defaultOptionName {
				continue
			}
			report.Limits.Options++

			if selected := len(option.SelectedValues()); selected > 0 {
				componentVariants *= selected
			}
		}
		report.Limits.Variants *= componentVariants
	}

	report.LimitErrors["products"] = report.Limits.Products > ceilings.Products
	report.LimitErrors["options"] = report.Limits.Options > ceilings.Options
	report.LimitErrors["variants"] = report.Limits.Variants > ceilings.Variants

	return report
}
