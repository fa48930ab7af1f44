package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/director74/bundle-service/internal/entity"
	"github.com/director74/bundle-service/internal/repo"
	"github.com/director74/bundle-service/internal/usecase/webapi"
)

// SagaStep шаг саги создания бандла. Шаги строго упорядочены, возврата
// назад нет; ABORTED достижим из любой точки.
type SagaStep string

const (
	StepDraftValidated   SagaStep = "draft_validated"
	StepJobSubmitted     SagaStep = "job_submitted"
	StepJobPolling       SagaStep = "job_polling"
	StepJobResolved      SagaStep = "job_resolved"
	StepMediaStaged      SagaStep = "media_staged"
	StepMediaTransferred SagaStep = "media_transferred"
	StepMetadataUpdated  SagaStep = "metadata_updated"
	StepPricingUpdated   SagaStep = "pricing_updated"
	StepPersisted        SagaStep = "persisted"
	StepDone             SagaStep = "done"
	StepAborted          SagaStep = "aborted"
)

// ValidationError ошибка проверки состава бандла: блокирует отправку,
// ни один удаленный вызов не выполняется
type ValidationError struct {
	Report LimitReport
}

func (e *ValidationError) Error() string {
	reasons := make([]string, 0)
	for componentID, optionErrors := range e.Report.ComponentErrors {
		for _, message := range optionErrors {
			reasons = append(reasons, fmt.Sprintf("компонент %s: %s", componentID, message))
		}
	}
	for key, exceeded := range e.Report.LimitErrors {
		if exceeded {
			reasons = append(reasons, fmt.Sprintf("превышен лимит %s", key))
		}
	}
	return "состав бандла не прошел проверку: " + strings.Join(reasons, "; ")
}

// BundleEventPayload событие жизненного цикла бандла
type BundleEventPayload struct {
	Type      string `json:"type"` // "bundle.created" или "bundle.failed"
	BundleID  uint   `json:"bundle_id"`
	Shop      string `json:"shop"`
	ProductID string `json:"product_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// BundleOrchestrator оркестратор саги создания составного товара.
// Сага не транзакция: созданный товар не откатывается при сбое шагов
// после создания — они выполняются по принципу best-effort, а созданный
// товар привязывается к локальной записи на контрольной точке.
type BundleOrchestrator struct {
	api            ShopifyAPI
	uploader       *StagedUploadManager
	bundleRepo     repo.BundleRepository
	publisher      EventPublisher
	eventExchange  string
	polling        PollConfig
	componentLimit int
	logger         *log.Logger
}

// NewBundleOrchestrator создает новый оркестратор саги
func NewBundleOrchestrator(
	api ShopifyAPI,
	uploader *StagedUploadManager,
	bundleRepo repo.BundleRepository,
	publisher EventPublisher,
	eventExchange string,
	polling PollConfig,
	logger *log.Logger,
) *BundleOrchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[BundleOrchestrator] [Saga] ", log.LstdFlags)
	}

	return &BundleOrchestrator{
		api:            api,
		uploader:       uploader,
		bundleRepo:     bundleRepo,
		publisher:      publisher,
		eventExchange:  eventExchange,
		polling:        polling,
		componentLimit: 50,
		logger:         logger,
	}
}

// buildComponentInputs собирает компоненты для мутации создания/обновления.
// Имя каждой опции квалифицируется названием товара-владельца: у двух
// компонентов может быть одноименная опция (например "Size").
func buildComponentInputs(components []entity.ProductComponent) []webapi.BundleComponentInput {
	inputs := make([]webapi.BundleComponentInput, 0, len(components))
	for _, component := range components {
		selections := make([]webapi.OptionSelectionInput, 0, len(component.Options))
		for _, option := range component.Options {
			selections = append(selections, webapi.OptionSelectionInput{
				ComponentOptionID: option.ID,
				Name:              fmt.Sprintf("%s %s", component.Title, option.Name),
				Values:            option.SelectedValues(),
			})
		}
		inputs = append(inputs, webapi.BundleComponentInput{
			Quantity:         component.Quantity,
			ProductID:        component.ID,
			OptionSelections: selections,
		})
	}
	return inputs
}

// CreateBundle выполняет сагу создания бандла: проверка состава, отправка
// запроса, ожидание асинхронной операции, контрольная точка в локальной
// записи, загрузка медиа, обновление метаданных и цен.
// Шаги 1-4 фатальны; сбои шагов 5-8 собираются в Warnings и не влияют
// на Success.
func (o *BundleOrchestrator) CreateBundle(ctx context.Context, draft *entity.BundleDraft) (*entity.BundleResult, error) {
	sagaID := fmt.Sprintf("saga-bundle-%s", uuid.NewString())
	o.logger.Printf("SagaID=%s: начато создание бандла %q: компонентов=%d, медиа=%d", sagaID, draft.Name, len(draft.Components), len(draft.Media))

	// Шаг 1: проверка состава — до каких-либо удаленных вызовов
	report := ValidateComponents(draft.Components)
	if report.HasErrors() {
		vErr := &ValidationError{Report: report}
		o.logger.Printf("[WARN] SagaID=%s: сага прервана (%s): %v", sagaID, StepAborted, vErr)
		return &entity.BundleResult{Success: false, Message: vErr.Error()}, vErr
	}
	o.logStep(sagaID, StepDraftValidated)

	// Создаем локальную запись черновика до отправки на платформу
	componentsJSON, err := json.Marshal(draft.Components)
	if err != nil {
		return o.abort(sagaID, 0, draft.Shop, fmt.Errorf("ошибка сериализации компонентов: %w", err))
	}

	record := &entity.Bundle{
		Name:          draft.Name,
		Description:   draft.Description,
		DiscountType:  string(draft.Discount.Type),
		DiscountValue: draft.Discount.Value,
		Components:    componentsJSON,
		Shop:          draft.Shop,
		UserID:        draft.UserID,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := o.bundleRepo.Create(ctx, record); err != nil {
		return o.abort(sagaID, 0, draft.Shop, fmt.Errorf("ошибка создания локальной записи: %w", err))
	}
	o.logger.Printf("SagaID=%s: локальная запись создана: ID=%d", sagaID, record.ID)

	// Шаг 2: отправка запроса на создание — платформа вернет асинхронную операцию
	handle, err := o.api.CreateProductBundle(ctx, webapi.BundleCreateInput{
		Title:      draft.Name,
		Components: buildComponentInputs(draft.Components),
	})
	if err != nil {
		return o.abort(sagaID, record.ID, draft.Shop, err)
	}
	o.logStep(sagaID, StepJobSubmitted)
	o.logger.Printf("SagaID=%s: операция платформы: %s", sagaID, handle.ID)

	// Шаг 3: ожидание разрешения операции
	o.logStep(sagaID, StepJobPolling)
	op, err := AwaitBundleOperation(ctx, handle.ID, func(ctx context.Context) (webapi.BundleOperation, error) {
		return o.api.GetProductOperation(ctx, handle.ID, o.componentLimit)
	}, o.polling)
	if err != nil {
		return o.abort(sagaID, record.ID, draft.Shop, err)
	}
	if op.Product == nil {
		return o.abort(sagaID, record.ID, draft.Shop, fmt.Errorf("операция %s завершилась без товара", handle.ID))
	}
	o.logStep(sagaID, StepJobResolved)

	// Шаг 4: контрольная точка — созданный товар сразу привязывается к
	// локальной записи, чтобы не осиротеть при сбое следующих шагов
	if err := o.bundleRepo.SetRemoteProduct(ctx, record.ID, op.Product.ID, op.Product.Handle); err != nil {
		return o.abort(sagaID, record.ID, draft.Shop, fmt.Errorf("ошибка записи контрольной точки: %w", err))
	}
	draft.RemoteID = op.Product.ID
	o.logger.Printf("SagaID=%s: контрольная точка записана: товар %s (handle=%s)", sagaID, op.Product.ID, op.Product.Handle)

	warnings := make([]string, 0)

	// Шаг 5: выделение целей загрузки медиа — best-effort
	targets, stageWarnings, err := o.uploader.StageAll(ctx, draft.Media)
	if err != nil {
		// Отсутствие источника байтов — ошибка программирования вызывающего
		return o.abort(sagaID, record.ID, draft.Shop, err)
	}
	warnings = append(warnings, stageWarnings...)
	o.logStep(sagaID, StepMediaStaged)

	// Шаг 6: передача байтов и регистрация медиа — сбои отдельных файлов
	// собираются, без целей передача не начинается
	if len(targets) > 0 {
		warnings = append(warnings, o.uploader.TransferAndRegister(ctx, op.Product.ID, draft.Media, targets)...)
	}
	o.logStep(sagaID, StepMediaTransferred)

	// Шаг 7: метаданные товара одним вызовом — best-effort
	collectionIDs := make([]string, 0, len(draft.Collections))
	for _, collection := range draft.Collections {
		collectionIDs = append(collectionIDs, collection.ID)
	}
	userErrors, err := o.api.UpdateProduct(ctx, webapi.ProductUpdateInput{
		ID:                op.Product.ID,
		DescriptionHTML:   draft.Description,
		CollectionsToJoin: collectionIDs,
		Status:            string(draft.Status),
		Tags:              draft.Tags,
		ProductType:       draft.ProductType,
	})
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("не удалось обновить метаданные товара: %v", err))
	}
	for _, ue := range userErrors {
		warnings = append(warnings, fmt.Sprintf("ошибка обновления метаданных: %s", ue.Error()))
	}
	o.logStep(sagaID, StepMetadataUpdated)

	// Шаг 8: пересчет цен вариантов — best-effort
	warnings = append(warnings, o.updateVariantPrices(ctx, sagaID, op.Product, draft.Discount)...)
	o.logStep(sagaID, StepPricingUpdated)

	// Контрольная точка шага 4 — единственная долговременная запись;
	// здесь фиксируется только завершение прогона
	o.logStep(sagaID, StepPersisted)

	o.publishEvent(sagaID, BundleEventPayload{
		Type:      "bundle.created",
		BundleID:  record.ID,
		Shop:      draft.Shop,
		ProductID: op.Product.ID,
	})

	o.logStep(sagaID, StepDone)
	return &entity.BundleResult{
		Success:       true,
		Message:       "бандл создан",
		BundleID:      record.ID,
		ProductID:     op.Product.ID,
		ProductHandle: op.Product.Handle,
		Warnings:      warnings,
	}, nil
}

// UpdateBundle выполняет короткую сагу пересборки компонентов созданного
// бандла: проверка состава, отправка обновления, ожидание операции.
// Поллер и валидация общие с сагой создания.
func (o *BundleOrchestrator) UpdateBundle(ctx context.Context, productID string, components []entity.ProductComponent) (*entity.BundleResult, error) {
	sagaID := fmt.Sprintf("saga-bundle-update-%s", uuid.NewString())
	o.logger.Printf("SagaID=%s: начато обновление бандла %s: компонентов=%d", sagaID, productID, len(components))

	report := ValidateComponents(components)
	if report.HasErrors() {
		vErr := &ValidationError{Report: report}
		o.logger.Printf("[WARN] SagaID=%s: сага прервана (%s): %v", sagaID, StepAborted, vErr)
		return &entity.BundleResult{Success: false, Message: vErr.Error()}, vErr
	}
	o.logStep(sagaID, StepDraftValidated)

	handle, err := o.api.UpdateProductBundle(ctx, webapi.BundleUpdateInput{
		ProductID:  productID,
		Components: buildComponentInputs(components),
	})
	if err != nil {
		o.logger.Printf("[ERROR] SagaID=%s: сага прервана (%s): %v", sagaID, StepAborted, err)
		return &entity.BundleResult{Success: false, Message: err.Error()}, err
	}
	o.logStep(sagaID, StepJobSubmitted)

	op, err := AwaitBundleOperation(ctx, handle.ID, func(ctx context.Context) (webapi.BundleOperation, error) {
		return o.api.GetProductOperation(ctx, handle.ID, o.componentLimit)
	}, o.polling)
	if err != nil {
		o.logger.Printf("[ERROR] SagaID=%s: сага прервана (%s): %v", sagaID, StepAborted, err)
		return &entity.BundleResult{Success: false, Message: err.Error()}, err
	}
	o.logStep(sagaID, StepJobResolved)

	result := &entity.BundleResult{
		Success:   true,
		Message:   "бандл обновлен",
		ProductID: productID,
	}
	if op.Product != nil {
		result.ProductID = op.Product.ID
		result.ProductHandle = op.Product.Handle
	}
	o.logStep(sagaID, StepDone)
	return result, nil
}

// updateVariantPrices выставляет каждому варианту созданного товара
// compareAtPrice = исходная цена и price = цена со скидкой, одним bulk-вызовом
func (o *BundleOrchestrator) updateVariantPrices(ctx context.Context, sagaID string, product *webapi.RemoteProduct, discount entity.DiscountRule) []string {
	if len(product.Variants) == 0 {
		return nil
	}

	warnings := make([]string, 0)
	inputs := make([]webapi.VariantBulkInput, 0, len(product.Variants))
	for _, variant := range product.Variants {
		originalPrice, err := decimal.NewFromString(variant.Price)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("некорректная цена варианта %s: %q", variant.ID, variant.Price))
			continue
		}
		inputs = append(inputs, webapi.VariantBulkInput{
			ID:             variant.ID,
			Price:          FormatPrice(ApplyDiscount(discount, originalPrice)),
			CompareAtPrice: variant.Price,
		})
	}

	if len(inputs) == 0 {
		return warnings
	}

	userErrors, err := o.api.BulkUpdateVariants(ctx, product.ID, inputs)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("не удалось обновить цены вариантов: %v", err))
		return warnings
	}
	for _, ue := range userErrors {
		warnings = append(warnings, fmt.Sprintf("ошибка обновления цены: %s", ue.Error()))
	}

	o.logger.Printf("SagaID=%s: обновлены цены %d вариантов", sagaID, len(inputs))
	return warnings
}

// abort прерывает сагу: локальная запись не помечается успешной, событие
// сбоя публикуется best-effort
func (o *BundleOrchestrator) abort(sagaID string, bundleID uint, shop string, err error) (*entity.BundleResult, error) {
	o.logger.Printf("[ERROR] SagaID=%s: сага прервана (%s): %v", sagaID, StepAborted, err)

	o.publishEvent(sagaID, BundleEventPayload{
		Type:     "bundle.failed",
		BundleID: bundleID,
		Shop:     shop,
		Reason:   err.Error(),
	})

	return &entity.BundleResult{
		Success:  false,
		Message:  err.Error(),
		BundleID: bundleID,
	}, err
}

// publishEvent публикует событие жизненного цикла с повторами; сбой
// публикации логируется и не влияет на исход саги
func (o *BundleOrchestrator) publishEvent(sagaID string, payload BundleEventPayload) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishMessageWithRetry(o.eventExchange, payload.Type, payload, 3); err != nil {
		o.logger.Printf("[ERROR] SagaID=%s: ошибка публикации события %s: %v", sagaID, payload.Type, err)
	}
}

func (o *BundleOrchestrator) logStep(sagaID string, step SagaStep) {
	o.logger.Printf("SagaID=%s: шаг %s завершен", sagaID, step)
}
