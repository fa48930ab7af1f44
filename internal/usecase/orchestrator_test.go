package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/director74/bundle-service/internal/entity"
	"github.com/director74/bundle-service/internal/usecase/webapi"
)

// Мок для ShopifyAPI
type MockShopifyAPI struct {
	mock.Mock
}

func (m *MockShopifyAPI) CreateProductBundle(ctx context.Context, input webapi.BundleCreateInput) (webapi.JobHandle, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(webapi.JobHandle), args.Error(1)
}

func (m *MockShopifyAPI) UpdateProductBundle(ctx context.Context, input webapi.BundleUpdateInput) (webapi.JobHandle, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(webapi.JobHandle), args.Error(1)
}

func (m *MockShopifyAPI) GetProductOperation(ctx context.Context, jobID string, componentLimit int) (webapi.BundleOperation, error) {
	args := m.Called(ctx, jobID, componentLimit)
	return args.Get(0).(webapi.BundleOperation), args.Error(1)
}

func (m *MockShopifyAPI) CreateStagedUploads(ctx context.Context, inputs []webapi.StagedUploadInput) ([]webapi.StagedTarget, error) {
	args := m.Called(ctx, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]webapi.StagedTarget), args.Error(1)
}

func (m *MockShopifyAPI) UploadToStagedTarget(ctx context.Context, target webapi.StagedTarget, filename string, source io.Reader) error {
	args := m.Called(ctx, target, filename, source)
	return args.Error(0)
}

func (m *MockShopifyAPI) CreateProductMedia(ctx context.Context, productID string, media []webapi.CreateMediaInput) ([]webapi.UserError, error) {
	args := m.Called(ctx, productID, media)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]webapi.UserError), args.Error(1)
}

func (m *MockShopifyAPI) UpdateProduct(ctx context.Context, input webapi.ProductUpdateInput) ([]webapi.UserError, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]webapi.UserError), args.Error(1)
}

func (m *MockShopifyAPI) BulkUpdateVariants(ctx context.Context, productID string, variants []webapi.VariantBulkInput) ([]webapi.UserError, error) {
	args := m.Called(ctx, productID, variants)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]webapi.UserError), args.Error(1)
}

func (m *MockShopifyAPI) GetBundle(ctx context.Context, productID string, componentLimit int) (webapi.BundleDetails, error) {
	args := m.Called(ctx, productID, componentLimit)
	return args.Get(0).(webapi.BundleDetails), args.Error(1)
}

func (m *MockShopifyAPI) GetShopInfo(ctx context.Context) (webapi.ShopInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(webapi.ShopInfo), args.Error(1)
}

// Мок для BundleRepository
type MockBundleRepository struct {
	mock.Mock
}

func (m *MockBundleRepository) Create(ctx context.Context, bundle *entity.Bundle) error {
	args := m.Called(ctx, bundle)
	// Имитируем установку ID записи, как это делает реальная БД
	if bundle.ID == 0 {
		bundle.ID = 10
	}
	return args.Error(0)
}

func (m *MockBundleRepository) GetByID(ctx context.Context, id uint) (*entity.Bundle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Bundle), args.Error(1)
}

func (m *MockBundleRepository) ListByShop(ctx context.Context, shop string, limit, offset int) ([]entity.Bundle, int64, error) {
	args := m.Called(ctx, shop, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]entity.Bundle), args.Get(1).(int64), args.Error(2)
}

func (m *MockBundleRepository) SetRemoteProduct(ctx context.Context, id uint, productID, productHandle string) error {
	args := m.Called(ctx, id, productID, productHandle)
	return args.Error(0)
}

func (m *MockBundleRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Мок для EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishMessage(exchange, routingKey string, message interface{}) error {
	args := m.Called(exchange, routingKey, message)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishMessageWithRetry(exchange, routingKey string, message interface{}, retries int) error {
	args := m.Called(exchange, routingKey, message, retries)
	return args.Error(0)
}

func newTestOrchestrator(api *MockShopifyAPI, bundleRepo *MockBundleRepository, publisher *MockEventPublisher) *BundleOrchestrator {
	polling := PollConfig{Interval: 2 * time.Millisecond, Timeout: 100 * time.Millisecond}
	uploader := NewStagedUploadManager(api, nil)
	return NewBundleOrchestrator(api, uploader, bundleRepo, publisher, "bundle_events", polling, nil)
}

func validDraft() *entity.BundleDraft {
	return &entity.BundleDraft{
		Name:        "Летний набор",
		Description: "<p>Два товара по цене полутора</p>",
		Status:      entity.BundleStatusActive,
		Components: []entity.ProductComponent{
			{
				ID:       "gid://shopify/Product/1",
				Title:    "Футболка",
				Quantity: 1,
				Options: []entity.ComponentOption{
					{
						ID:   "gid://shopify/ProductOption/11",
						Name: "Size",
						Values: []entity.OptionValue{
							{Value: "S", Selected: true},
							{Value: "M", Selected: true},
						},
					},
				},
			},
			{
				ID:       "gid://shopify/Product/2",
				Title:    "Кепка",
				Quantity: 2,
			},
		},
		Discount: entity.DiscountRule{
			Type:  entity.DiscountTypePercentage,
			Value: decimal.NewFromInt(50),
		},
		Collections: []entity.CollectionRef{{ID: "gid://shopify/Collection/5"}},
		Tags:        []string{"bundle", "summer"},
		Shop:        "test-shop.myshopify.com",
		UserID:      "101",
	}
}

func completedOperation() webapi.BundleOperation {
	return webapi.BundleOperation{
		ID:     "gid://shopify/ProductOperation/1",
		Status: webapi.OperationStatusComplete,
		Product: &webapi.RemoteProduct{
			ID:     "gid://shopify/Product/100",
			Handle: "letnij-nabor",
			Variants: []webapi.ProductVariant{
				{ID: "gid://shopify/ProductVariant/1001", Price: "100.00"},
				{ID: "gid://shopify/ProductVariant/1002", Price: "150.00"},
			},
		},
	}
}

func TestCreateBundleHappyPath(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	bundleRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	api.On("CreateProductBundle", mock.Anything, mock.MatchedBy(func(input webapi.BundleCreateInput) bool {
		// Имя опции квалифицируется названием товара-владельца
		return input.Title == "Летний набор" &&
			len(input.Components) == 2 &&
			input.Components[0].OptionSelections[0].Name == "Футболка Size"
	})).Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/1", Status: "CREATED"}, nil)

	// Первый опрос — операция еще идет, второй — завершена
	api.On("GetProductOperation", mock.Anything, "gid://shopify/ProductOperation/1", 50).
		Return(webapi.BundleOperation{ID: "gid://shopify/ProductOperation/1", Status: "RUNNING"}, nil).Once()
	api.On("GetProductOperation", mock.Anything, "gid://shopify/ProductOperation/1", 50).
		Return(completedOperation(), nil).Once()

	bundleRepo.On("SetRemoteProduct", mock.Anything, uint(10), "gid://shopify/Product/100", "letnij-nabor").Return(nil)
	api.On("UpdateProduct", mock.Anything, mock.MatchedBy(func(input webapi.ProductUpdateInput) bool {
		return input.ID == "gid://shopify/Product/100" &&
			input.Status == "ACTIVE" &&
			len(input.CollectionsToJoin) == 1
	})).Return([]webapi.UserError{}, nil)
	api.On("BulkUpdateVariants", mock.Anything, "gid://shopify/Product/100", mock.MatchedBy(func(variants []webapi.VariantBulkInput) bool {
		// Скидка 50%: исходная цена уходит в compareAtPrice
		return len(variants) == 2 &&
			variants[0].Price == "50.00" && variants[0].CompareAtPrice == "100.00" &&
			variants[1].Price == "75.00" && variants[1].CompareAtPrice == "150.00"
	})).Return([]webapi.UserError{}, nil)
	publisher.On("PublishMessageWithRetry", "bundle_events", "bundle.created", mock.Anything, 3).Return(nil)

	result, err := orchestrator.CreateBundle(context.Background(), validDraft())

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, uint(10), result.BundleID)
	assert.Equal(t, "gid://shopify/Product/100", result.ProductID)
	assert.Equal(t, "letnij-nabor", result.ProductHandle)
	assert.Empty(t, result.Warnings)
	api.AssertExpectations(t)
	bundleRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestCreateBundleValidationBlocksRemoteCalls(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	draft := validDraft()
	// Опция без единого выбранного значения
	draft.Components[0].Options[0].Values = []entity.OptionValue{
		{Value: "S", Selected: false},
	}

	result, err := orchestrator.CreateBundle(context.Background(), draft)

	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.False(t, result.Success)
	assert.Contains(t, vErr.Report.ComponentErrors, "gid://shopify/Product/1")
	// Ни одного удаленного вызова и ни одной записи в БД
	api.AssertNotCalled(t, "CreateProductBundle")
	bundleRepo.AssertNotCalled(t, "Create")
	publisher.AssertNotCalled(t, "PublishMessageWithRetry")
}

func TestCreateBundleJobFailedAborts(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	bundleRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	api.On("CreateProductBundle", mock.Anything, mock.Anything).
		Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/2", Status: "CREATED"}, nil)
	api.On("GetProductOperation", mock.Anything, "gid://shopify/ProductOperation/2", 50).
		Return(webapi.BundleOperation{
			ID:     "gid://shopify/ProductOperation/2",
			Status: webapi.OperationStatusFailed,
			UserErrors: []webapi.UserError{
				{Field: []string{"components"}, Message: "компонент не может быть бандлом"},
			},
		}, nil)
	publisher.On("PublishMessageWithRetry", "bundle_events", "bundle.failed", mock.MatchedBy(func(payload interface{}) bool {
		event, ok := payload.(BundleEventPayload)
		return ok && event.BundleID == 10 && event.Shop == "test-shop.myshopify.com"
	}), 3).Return(nil)

	result, err := orchestrator.CreateBundle(context.Background(), validDraft())

	var failedErr *JobFailedError
	assert.True(t, errors.As(err, &failedErr))
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "компонент не может быть бандлом")
	// Контрольная точка не записывается, шаги после сбоя не выполняются
	bundleRepo.AssertNotCalled(t, "SetRemoteProduct")
	api.AssertNotCalled(t, "UpdateProduct")
	api.AssertNotCalled(t, "BulkUpdateVariants")
	publisher.AssertExpectations(t)
}

func TestCreateBundleCheckpointFailureIsFatal(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	bundleRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	api.On("CreateProductBundle", mock.Anything, mock.Anything).
		Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/3", Status: "CREATED"}, nil)
	api.On("GetProductOperation", mock.Anything, mock.Anything, 50).Return(completedOperation(), nil)
	bundleRepo.On("SetRemoteProduct", mock.Anything, uint(10), mock.Anything, mock.Anything).
		Return(errors.New("база данных недоступна"))
	publisher.On("PublishMessageWithRetry", "bundle_events", "bundle.failed", mock.Anything, 3).Return(nil)

	result, err := orchestrator.CreateBundle(context.Background(), validDraft())

	assert.Error(t, err)
	assert.False(t, result.Success)
	// Сбой контрольной точки фатален: цены и метаданные не трогаются
	api.AssertNotCalled(t, "UpdateProduct")
	api.AssertNotCalled(t, "BulkUpdateVariants")
}

func TestCreateBundleBestEffortFailuresBecomeWarnings(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	bundleRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	api.On("CreateProductBundle", mock.Anything, mock.Anything).
		Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/4", Status: "CREATED"}, nil)
	api.On("GetProductOperation", mock.Anything, mock.Anything, 50).Return(completedOperation(), nil)
	bundleRepo.On("SetRemoteProduct", mock.Anything, uint(10), mock.Anything, mock.Anything).Return(nil)
	// Метаданные и цены падают — сага все равно успешна
	api.On("UpdateProduct", mock.Anything, mock.Anything).Return(nil, errors.New("THROTTLED"))
	api.On("BulkUpdateVariants", mock.Anything, mock.Anything, mock.Anything).
		Return([]webapi.UserError{{Field: []string{"price"}, Message: "некорректная цена"}}, nil)
	publisher.On("PublishMessageWithRetry", "bundle_events", "bundle.created", mock.Anything, 3).Return(nil)

	result, err := orchestrator.CreateBundle(context.Background(), validDraft())

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Warnings, 2)
	publisher.AssertExpectations(t)
}

func TestCreateBundleMediaFailureDoesNotAffectOutcome(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	bundleRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	api.On("CreateProductBundle", mock.Anything, mock.Anything).
		Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/7", Status: "CREATED"}, nil)
	api.On("GetProductOperation", mock.Anything, mock.Anything, 50).Return(completedOperation(), nil)
	bundleRepo.On("SetRemoteProduct", mock.Anything, uint(10), mock.Anything, mock.Anything).Return(nil)

	targets := []webapi.StagedTarget{
		{URL: "https://upload/1", ResourceURL: "https://cdn/1"},
		{URL: "https://upload/2", ResourceURL: "https://cdn/2"},
	}
	api.On("CreateStagedUploads", mock.Anything, mock.Anything).Return(targets, nil)
	api.On("UploadToStagedTarget", mock.Anything, targets[0], "cover.png", mock.Anything).Return(nil)
	// Второй файл не доходит, остальные шаги не страдают
	api.On("UploadToStagedTarget", mock.Anything, targets[1], "gallery.png", mock.Anything).
		Return(errors.New("обрыв соединения"))
	api.On("CreateProductMedia", mock.Anything, "gid://shopify/Product/100", mock.MatchedBy(func(media []webapi.CreateMediaInput) bool {
		return len(media) == 1 && media[0].OriginalSource == "https://cdn/1"
	})).Return([]webapi.UserError{}, nil)
	api.On("UpdateProduct", mock.Anything, mock.Anything).Return([]webapi.UserError{}, nil)
	api.On("BulkUpdateVariants", mock.Anything, mock.Anything, mock.Anything).Return([]webapi.UserError{}, nil)
	publisher.On("PublishMessageWithRetry", "bundle_events", "bundle.created", mock.Anything, 3).Return(nil)

	draft := validDraft()
	draft.Media = []entity.MediaAsset{
		{Filename: "cover.png", MimeType: "image/png", SizeBytes: 100, Source: strings.NewReader("a")},
		{Filename: "gallery.png", MimeType: "image/png", SizeBytes: 100, Source: strings.NewReader("b")},
	}

	result, err := orchestrator.CreateBundle(context.Background(), draft)

	assert.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "gallery.png")
	// Метаданные и цены обновляются несмотря на сбой медиа
	api.AssertCalled(t, "UpdateProduct", mock.Anything, mock.Anything)
	api.AssertCalled(t, "BulkUpdateVariants", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBundlePublisherFailureDoesNotAffectOutcome(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	bundleRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	api.On("CreateProductBundle", mock.Anything, mock.Anything).
		Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/5", Status: "CREATED"}, nil)
	api.On("GetProductOperation", mock.Anything, mock.Anything, 50).Return(completedOperation(), nil)
	bundleRepo.On("SetRemoteProduct", mock.Anything, uint(10), mock.Anything, mock.Anything).Return(nil)
	api.On("UpdateProduct", mock.Anything, mock.Anything).Return([]webapi.UserError{}, nil)
	api.On("BulkUpdateVariants", mock.Anything, mock.Anything, mock.Anything).Return([]webapi.UserError{}, nil)
	publisher.On("PublishMessageWithRetry", "bundle_events", "bundle.created", mock.Anything, 3).
		Return(errors.New("соединение закрыто"))

	result, err := orchestrator.CreateBundle(context.Background(), validDraft())

	assert.NoError(t, err)
	assert.True(t, result.Success)
}

func TestCreateBundleLogsStepSequence(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	uploader := NewStagedUploadManager(api, logger)
	polling := PollConfig{Interval: 2 * time.Millisecond, Timeout: 100 * time.Millisecond}
	orchestrator := NewBundleOrchestrator(api, uploader, bundleRepo, publisher, "bundle_events", polling, logger)

	bundleRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	api.On("CreateProductBundle", mock.Anything, mock.Anything).
		Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/8", Status: "CREATED"}, nil)
	api.On("GetProductOperation", mock.Anything, mock.Anything, 50).Return(completedOperation(), nil)
	bundleRepo.On("SetRemoteProduct", mock.Anything, uint(10), mock.Anything, mock.Anything).Return(nil)
	api.On("UpdateProduct", mock.Anything, mock.Anything).Return([]webapi.UserError{}, nil)
	api.On("BulkUpdateVariants", mock.Anything, mock.Anything, mock.Anything).Return([]webapi.UserError{}, nil)
	publisher.On("PublishMessageWithRetry", "bundle_events", "bundle.created", mock.Anything, 3).Return(nil)

	_, err := orchestrator.CreateBundle(context.Background(), validDraft())
	require.NoError(t, err)

	// Журнал шагов следует порядку машины состояний саги
	steps := []SagaStep{
		StepDraftValidated,
		StepJobSubmitted,
		StepJobPolling,
		StepJobResolved,
		StepMediaStaged,
		StepMediaTransferred,
		StepMetadataUpdated,
		StepPricingUpdated,
		StepPersisted,
		StepDone,
	}
	output := buf.String()
	last := -1
	for _, step := range steps {
		pos := strings.Index(output, fmt.Sprintf("шаг %s завершен", step))
		require.Greater(t, pos, last, "шаг %s должен идти после предыдущего", step)
		last = pos
	}
}

func TestUpdateBundleHappyPath(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	api.On("UpdateProductBundle", mock.Anything, mock.MatchedBy(func(input webapi.BundleUpdateInput) bool {
		return input.ProductID == "gid://shopify/Product/100" && len(input.Components) == 2
	})).Return(webapi.JobHandle{ID: "gid://shopify/ProductOperation/6", Status: "CREATED"}, nil)
	api.On("GetProductOperation", mock.Anything, "gid://shopify/ProductOperation/6", 50).
		Return(completedOperation(), nil)

	result, err := orchestrator.UpdateBundle(context.Background(), "gid://shopify/Product/100", validDraft().Components)

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "gid://shopify/Product/100", result.ProductID)
	api.AssertExpectations(t)
}

func TestUpdateBundleValidationBlocks(t *testing.T) {
	api := new(MockShopifyAPI)
	bundleRepo := new(MockBundleRepository)
	publisher := new(MockEventPublisher)
	orchestrator := newTestOrchestrator(api, bundleRepo, publisher)

	components := validDraft().Components
	components[0].Options[0].Values = []entity.OptionValue{{Value: "S", Selected: false}}

	result, err := orchestrator.UpdateBundle(context.Background(), "gid://shopify/Product/100", components)

	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.False(t, result.Success)
	api.AssertNotCalled(t, "UpdateProductBundle")
}
