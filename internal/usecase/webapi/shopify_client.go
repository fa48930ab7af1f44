package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// UserError доменная ошибка, которую платформа вернула на принятый запрос
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

func (e UserError) Error() string {
	if len(e.Field) > 0 {
		return fmt.Sprintf("%s: %s", strings.Join(e.Field, "."), e.Message)
	}
	return e.Message
}

// FormatUserErrors собирает список доменных ошибок в одну строку
func FormatUserErrors(errs []UserError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

// RequestError транспортная ошибка удаленного вызова (не-2xx, сетевой сбой)
type RequestError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ошибка запроса %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("неуспешный ответ платформы на %s: статус %d", e.Operation, e.StatusCode)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// graphQLError ошибка верхнего уровня GraphQL ответа
type graphQLError struct {
	Message string `json:"message"`
}

// graphQLResponse конверт GraphQL ответа
type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// BundleOperationStatus статус асинхронной операции платформы
type BundleOperationStatus string

const (
	OperationStatusComplete BundleOperationStatus = "COMPLETE"
	OperationStatusFailed   BundleOperationStatus = "FAILED"
)

// JobHandle идентификатор асинхронной операции. Живет только в рамках
// одного прогона саги и не сохраняется.
type JobHandle struct {
	ID     string
	Status BundleOperationStatus
}

// ProductOption опция созданного товара
type ProductOption struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// ProductVariant вариант товара с ценами. Цены платформа отдает строками.
type ProductVariant struct {
	ID             string `json:"id"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compareAtPrice"`
}

// RemoteProduct созданный/запрошенный товар платформы
type RemoteProduct struct {
	ID                    string
	Title                 string
	Handle                string
	HasOnlyDefaultVariant bool
	Options               []ProductOption
	Variants              []ProductVariant
}

// BundleOperation состояние асинхронной операции создания/обновления бандла
type BundleOperation struct {
	ID         string
	Status     BundleOperationStatus
	Product    *RemoteProduct
	UserErrors []UserError
}

// OptionSelectionInput выбор значений опции компонента. Name квалифицируется
// названием товара-владельца, чтобы различать одноименные опции разных
// компонентов.
type OptionSelectionInput struct {
	ComponentOptionID string   `json:"componentOptionId"`
	Name              string   `json:"name"`
	Values            []string `json:"values"`
}

// BundleComponentInput компонент бандла в запросе на создание/обновление
type BundleComponentInput struct {
	Quantity         int                    `json:"quantity"`
	ProductID        string                 `json:"productId"`
	OptionSelections []OptionSelectionInput `json:"optionSelections"`
}

// BundleCreateInput входные данные мутации productBundleCreate
type BundleCreateInput struct {
	Title      string                 `json:"title"`
	Components []BundleComponentInput `json:"components"`
}

// BundleUpdateInput входные данные мутации productBundleUpdate
type BundleUpdateInput struct {
	ProductID  string                 `json:"productId"`
	Components []BundleComponentInput `json:"components"`
}

// StagedUploadInput описание файла для выделения цели загрузки
type StagedUploadInput struct {
	Filename   string `json:"filename"`
	MimeType   string `json:"mimeType"`
	HTTPMethod string `json:"httpMethod"`
	FileSize   string `json:"fileSize,omitempty"`
	Resource   string `json:"resource"`
}

// StagedParameter подписанный параметр формы цели загрузки. Параметры
// обязаны воспроизводиться на загрузке дословно и в исходном порядке.
type StagedParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StagedTarget выделенная платформой цель загрузки
type StagedTarget struct {
	URL         string            `json:"url"`
	ResourceURL string            `json:"resourceUrl"`
	Parameters  []StagedParameter `json:"parameters"`
}

// CreateMediaInput регистрация загруженного ресурса как медиа товара
type CreateMediaInput struct {
	MediaContentType string `json:"mediaContentType"`
	OriginalSource   string `json:"originalSource"`
	Alt              string `json:"alt"`
}

// ProductUpdateInput обновление метаданных созданного товара
type ProductUpdateInput struct {
	ID                string   `json:"id"`
	DescriptionHTML   string   `json:"descriptionHtml"`
	CollectionsToJoin []string `json:"collectionsToJoin"`
	Status            string   `json:"status"`
	Tags              []string `json:"tags"`
	ProductType       string   `json:"productType"`
}

// VariantBulkInput обновление цены одного варианта
type VariantBulkInput struct {
	ID             string `json:"id"`
	Price          string `json:"price"`
	CompareAtPrice string `json:"compareAtPrice"`
}

// BundleComponentDetails компонент созданного бандла при чтении
type BundleComponentDetails struct {
	Product          RemoteProduct
	Quantity         int
	OptionSelections []ComponentOptionSelection
}

// ComponentOptionSelection выбор значений опции в существующем бандле
type ComponentOptionSelection struct {
	OptionID   string
	OptionName string
	Values     []SelectionValue
}

// SelectionValue значение опции с признаком выбора
type SelectionValue struct {
	Value           string `json:"value"`
	SelectionStatus string `json:"selectionStatus"`
}

// BundleDetails созданный бандл с компонентами
type BundleDetails struct {
	Product    RemoteProduct
	Components []BundleComponentDetails
}

// ProductCategory категория каталога магазина
type ProductCategory struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

// ShopInfo справочные данные магазина для мастера создания бандла
type ShopInfo struct {
	Name               string
	Categories         []ProductCategory
	ProductTags        []string
	ProductTypes       []string
	MaxProductVariants int
}

const productFragment = `
fragment ProductFragment on Product {
  id
  title
  handle
  options(first: 3) {
    id
    name
    values
  }
  hasOnlyDefaultVariant
  variants(first: 250) {
    edges {
      node {
        id
        price
        compareAtPrice
      }
    }
  }
}
`

const productBundleCreateMutation = `
mutation ProductBundleCreate($input: ProductBundleCreateInput!) {
  productBundleCreate(input: $input) {
    productBundleOperation {
      id
      status
    }
    userErrors {
      field
      message
    }
  }
}
`

const productBundleUpdateMutation = `
mutation ProductBundleUpdate($input: ProductBundleUpdateInput!) {
  productBundleUpdate(input: $input) {
    productBundleOperation {
      id
      status
    }
    userErrors {
      field
      message
    }
  }
}
`

const jobPollerQuery = `
query JobPoller($jobId: ID!, $componentLimit: Int = 50) {
  productOperation(id: $jobId) {
    ... on ProductBundleOperation {
      id
      status
      product {
        ...ProductFragment
        bundleComponents(first: $componentLimit) {
          edges {
            node {
              quantity
            }
          }
        }
      }
      userErrors {
        field
        message
        code
      }
    }
  }
}
` + productFragment

const stagedUploadsCreateMutation = `
mutation UploadStagedMedia($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters {
        name
        value
      }
    }
    userErrors {
      field
      message
    }
  }
}
`

const productCreateMediaMutation = `
mutation ProductCreateMedia($productId: ID!, $media: [CreateMediaInput!]!) {
  productCreateMedia(productId: $productId, media: $media) {
    media {
      ... on Media {
        mediaContentType
      }
    }
    mediaUserErrors {
      field
      message
    }
  }
}
`

const productUpdateMutation = `
mutation productUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
    }
    userErrors {
      field
      message
    }
  }
}
`

const productVariantsBulkUpdateMutation = `
mutation productVariantsBulkUpdate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    product {
      id
    }
    productVariants {
      id
      price
    }
    userErrors {
      field
      message
    }
  }
}
`

const fetchBundleQuery = `
query ProductBundle($id: ID!, $componentLimit: Int = 50) {
  product(id: $id) {
    ...ProductFragment
    bundleComponents(first: $componentLimit) {
      edges {
        node {
          componentProduct {
            ...ProductFragment
          }
          optionSelections {
            componentOption {
              id
              name
            }
            values {
              selectionStatus
              value
            }
          }
          quantity
        }
      }
    }
  }
}
` + productFragment

const fetchShopInfoQuery = `
query {
  shop {
    name
    allProductCategoriesList {
      id
      fullName
    }
    productTags(first: 250) {
      edges {
        node
      }
    }
    productTypes(first: 250) {
      edges {
        node
      }
    }
    resourceLimits {
      maxProductVariants
    }
  }
}
`

// ShopifyClient представляет HTTP клиент Admin GraphQL API. Передается явно
// во все компоненты саги, глобального состояния сессии нет.
type ShopifyClient struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

func NewShopifyClient(endpoint, accessToken string) *ShopifyClient {
	return &ShopifyClient{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewShopifyClientWithHTTP создает клиент с заданным http.Client (для тестов)
func NewShopifyClientWithHTTP(endpoint, accessToken string, httpClient *http.Client) *ShopifyClient {
	return &ShopifyClient{
		endpoint:    endpoint,
		accessToken: accessToken,
		httpClient:  httpClient,
	}
}

// execute выполняет GraphQL запрос и декодирует data в out.
// Некорректная форма ответа приводит к ошибке декодирования, а не к
// распространению неопределенных значений.
func (c *ShopifyClient) execute(ctx context.Context, operation, query string, variables map[string]interface{}, out interface{}) error {
	payload := map[string]interface{}{
		"query": query,
	}
	if variables != nil {
		payload["variables"] = variables
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка маршалинга запроса %s: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса %s: %w", operation, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &RequestError{Operation: operation, StatusCode: resp.StatusCode}
	}

	var envelope graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("ошибка декодирования ответа %s: %w", operation, err)
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return &RequestError{Operation: operation, Err: fmt.Errorf("GraphQL ошибки: %s", strings.Join(messages, "; "))}
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("ошибка декодирования данных %s: %w", operation, err)
		}
	}

	return nil
}

// operationPayload общий фрагмент ответа мутаций создания/обновления бандла
type operationPayload struct {
	ProductBundleOperation *struct {
		ID     string                `json:"id"`
		Status BundleOperationStatus `json:"status"`
	} `json:"productBundleOperation"`
	UserErrors []UserError `json:"userErrors"`
}

// CreateProductBundle отправляет запрос на создание бандла и возвращает
// идентификатор асинхронной операции
func (c *ShopifyClient) CreateProductBundle(ctx context.Context, input BundleCreateInput) (JobHandle, error) {
	var data struct {
		ProductBundleCreate operationPayload `json:"productBundleCreate"`
	}

	err := c.execute(ctx, "productBundleCreate", productBundleCreateMutation, map[string]interface{}{
		"input": input,
	}, &data)
	if err != nil {
		return JobHandle{}, err
	}

	if len(data.ProductBundleCreate.UserErrors) > 0 {
		return JobHandle{}, fmt.Errorf("платформа отклонила создание бандла: %s", FormatUserErrors(data.ProductBundleCreate.UserErrors))
	}
	if data.ProductBundleCreate.ProductBundleOperation == nil {
		return JobHandle{}, fmt.Errorf("ответ productBundleCreate не содержит операции")
	}

	op := data.ProductBundleCreate.ProductBundleOperation
	return JobHandle{ID: op.ID, Status: op.Status}, nil
}

// UpdateProductBundle отправляет запрос на пересборку компонентов бандла
func (c *ShopifyClient) UpdateProductBundle(ctx context.Context, input BundleUpdateInput) (JobHandle, error) {
	var data struct {
		ProductBundleUpdate operationPayload `json:"productBundleUpdate"`
	}

	err := c.execute(ctx, "productBundleUpdate", productBundleUpdateMutation, map[string]interface{}{
		"input": input,
	}, &data)
	if err != nil {
		return JobHandle{}, err
	}

	if len(data.ProductBundleUpdate.UserErrors) > 0 {
		return JobHandle{}, fmt.Errorf("платформа отклонила обновление бандла: %s", FormatUserErrors(data.ProductBundleUpdate.UserErrors))
	}
	if data.ProductBundleUpdate.ProductBundleOperation == nil {
		return JobHandle{}, fmt.Errorf("ответ productBundleUpdate не содержит операции")
	}

	op := data.ProductBundleUpdate.ProductBundleOperation
	return JobHandle{ID: op.ID, Status: op.Status}, nil
}

// wireProduct форма товара в GraphQL ответе (варианты через edges)
type wireProduct struct {
	ID                    string          `json:"id"`
	Title                 string          `json:"title"`
	Handle                string          `json:"handle"`
	HasOnlyDefaultVariant bool            `json:"hasOnlyDefaultVariant"`
	Options               []ProductOption `json:"options"`
	Variants              struct {
		Edges []struct {
			Node ProductVariant `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

func (p *wireProduct) toRemoteProduct() *RemoteProduct {
	product := &RemoteProduct{
		ID:                    p.ID,
		Title:                 p.Title,
		Handle:                p.Handle,
		HasOnlyDefaultVariant: p.HasOnlyDefaultVariant,
		Options:               p.Options,
	}
	for _, edge := range p.Variants.Edges {
		product.Variants = append(product.Variants, edge.Node)
	}
	return product
}

// GetProductOperation запрашивает статус асинхронной операции создания бандла
func (c *ShopifyClient) GetProductOperation(ctx context.Context, jobID string, componentLimit int) (BundleOperation, error) {
	if componentLimit <= 0 {
		componentLimit = 50
	}

	var data struct {
		ProductOperation *struct {
			ID         string                `json:"id"`
			Status     BundleOperationStatus `json:"status"`
			Product    *wireProduct          `json:"product"`
			UserErrors []UserError           `json:"userErrors"`
		} `json:"productOperation"`
	}

	err := c.execute(ctx, "productOperation", jobPollerQuery, map[string]interface{}{
		"jobId":          jobID,
		"componentLimit": componentLimit,
	}, &data)
	if err != nil {
		return BundleOperation{}, err
	}

	if data.ProductOperation == nil {
		return BundleOperation{}, fmt.Errorf("операция %s не найдена на платформе", jobID)
	}

	op := BundleOperation{
		ID:         data.ProductOperation.ID,
		Status:     data.ProductOperation.Status,
		UserErrors: data.ProductOperation.UserErrors,
	}
	if data.ProductOperation.Product != nil {
		op.Product = data.ProductOperation.Product.toRemoteProduct()
	}
	return op, nil
}

// CreateStagedUploads запрашивает цели загрузки одним батчем для всех файлов.
// Платформа выделяет подписанные цели набором, поэтому запрос обязан быть
// единым; ответ позиционно соответствует входному списку.
func (c *ShopifyClient) CreateStagedUploads(ctx context.Context, inputs []StagedUploadInput) ([]StagedTarget, error) {
	var data struct {
		StagedUploadsCreate struct {
			StagedTargets []StagedTarget `json:"stagedTargets"`
			UserErrors    []UserError    `json:"userErrors"`
		} `json:"stagedUploadsCreate"`
	}

	err := c.execute(ctx, "stagedUploadsCreate", stagedUploadsCreateMutation, map[string]interface{}{
		"input": inputs,
	}, &data)
	if err != nil {
		return nil, err
	}

	if len(data.StagedUploadsCreate.UserErrors) > 0 {
		return nil, fmt.Errorf("платформа отклонила выделение целей загрузки: %s", FormatUserErrors(data.StagedUploadsCreate.UserErrors))
	}

	return data.StagedUploadsCreate.StagedTargets, nil
}

// UploadToStagedTarget передает байты файла на подписанную цель.
// Параметры цели воспроизводятся в форме дословно и в исходном порядке,
// файл добавляется последней частью.
func (c *ShopifyClient) UploadToStagedTarget(ctx context.Context, target StagedTarget, filename string, source io.Reader) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, param := range target.Parameters {
		if err := writer.WriteField(param.Name, param.Value); err != nil {
			return fmt.Errorf("ошибка записи параметра %s: %w", param.Name, err)
		}
	}

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("ошибка создания части файла: %w", err)
	}
	if _, err := io.Copy(part, source); err != nil {
		return fmt.Errorf("ошибка чтения источника файла %s: %w", filename, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия multipart формы: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &buf)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса загрузки: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Operation: "stagedUpload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Operation: "stagedUpload", StatusCode: resp.StatusCode}
	}

	return nil
}

// CreateProductMedia регистрирует загруженные ресурсы как медиа товара.
// Доменные ошибки возвращаются списком, без прерывания.
func (c *ShopifyClient) CreateProductMedia(ctx context.Context, productID string, media []CreateMediaInput) ([]UserError, error) {
	var data struct {
		ProductCreateMedia struct {
			MediaUserErrors []UserError `json:"mediaUserErrors"`
		} `json:"productCreateMedia"`
	}

	err := c.execute(ctx, "productCreateMedia", productCreateMediaMutation, map[string]interface{}{
		"productId": productID,
		"media":     media,
	}, &data)
	if err != nil {
		return nil, err
	}

	return data.ProductCreateMedia.MediaUserErrors, nil
}

// UpdateProduct обновляет метаданные созданного товара одним вызовом
func (c *ShopifyClient) UpdateProduct(ctx context.Context, input ProductUpdateInput) ([]UserError, error) {
	var data struct {
		ProductUpdate struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"productUpdate"`
	}

	err := c.execute(ctx, "productUpdate", productUpdateMutation, map[string]interface{}{
		"input": input,
	}, &data)
	if err != nil {
		return nil, err
	}

	return data.ProductUpdate.UserErrors, nil
}

// BulkUpdateVariants обновляет цены вариантов одним bulk-вызовом
func (c *ShopifyClient) BulkUpdateVariants(ctx context.Context, productID string, variants []VariantBulkInput) ([]UserError, error) {
	var data struct {
		ProductVariantsBulkUpdate struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"productVariantsBulkUpdate"`
	}

	err := c.execute(ctx, "productVariantsBulkUpdate", productVariantsBulkUpdateMutation, map[string]interface{}{
		"productId": productID,
		"variants":  variants,
	}, &data)
	if err != nil {
		return nil, err
	}

	return data.ProductVariantsBulkUpdate.UserErrors, nil
}

// GetBundle читает созданный бандл с компонентами и выборами опций
func (c *ShopifyClient) GetBundle(ctx context.Context, productID string, componentLimit int) (BundleDetails, error) {
	if componentLimit <= 0 {
		componentLimit = 50
	}

	var data struct {
		Product *struct {
			wireProduct
			BundleComponents struct {
				Edges []struct {
					Node struct {
						ComponentProduct wireProduct `json:"componentProduct"`
						OptionSelections []struct {
							ComponentOption struct {
								ID   string `json:"id"`
								Name string `json:"name"`
							} `json:"componentOption"`
							Values []SelectionValue `json:"values"`
						} `json:"optionSelections"`
						Quantity int `json:"quantity"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"bundleComponents"`
		} `json:"product"`
	}

	err := c.execute(ctx, "productBundle", fetchBundleQuery, map[string]interface{}{
		"id":             productID,
		"componentLimit": componentLimit,
	}, &data)
	if err != nil {
		return BundleDetails{}, err
	}

	if data.Product == nil {
		return BundleDetails{}, fmt.Errorf("бандл %s не найден на платформе", productID)
	}

	details := BundleDetails{
		Product: *data.Product.toRemoteProduct(),
	}
	for _, edge := range data.Product.BundleComponents.Edges {
		component := BundleComponentDetails{
			Product:  *edge.Node.ComponentProduct.toRemoteProduct(),
			Quantity: edge.Node.Quantity,
		}
		for _, selection := range edge.Node.OptionSelections {
			component.OptionSelections = append(component.OptionSelections, ComponentOptionSelection{
				OptionID:   selection.ComponentOption.ID,
				OptionName: selection.ComponentOption.Name,
				Values:     selection.Values,
			})
		}
		details.Components = append(details.Components, component)
	}

	return details, nil
}

// GetShopInfo запрашивает справочные данные магазина одним вызовом
func (c *ShopifyClient) GetShopInfo(ctx context.Context) (ShopInfo, error) {
	var data struct {
		Shop struct {
			Name                     string            `json:"name"`
			AllProductCategoriesList []ProductCategory `json:"allProductCategoriesList"`
			ProductTags              struct {
				Edges []struct {
					Node string `json:"node"`
				} `json:"edges"`
			} `json:"productTags"`
			ProductTypes struct {
				Edges []struct {
					Node string `json:"node"`
				} `json:"edges"`
			} `json:"productTypes"`
			ResourceLimits struct {
				MaxProductVariants int `json:"maxProductVariants"`
			} `json:"resourceLimits"`
		} `json:"shop"`
	}

	if err := c.execute(ctx, "shopInfo", fetchShopInfoQuery, nil, &data); err != nil {
		return ShopInfo{}, err
	}

	info := ShopInfo{
		Name:               data.Shop.Name,
		Categories:         data.Shop.AllProductCategoriesList,
		MaxProductVariants: data.Shop.ResourceLimits.MaxProductVariants,
	}
	for _, edge := range data.Shop.ProductTags.Edges {
		info.ProductTags = append(info.ProductTags, edge.Node)
	}
	for _, edge := range data.Shop.ProductTypes.Edges {
		info.ProductTypes = append(info.ProductTypes, edge.Node)
	}

	return info, nil
}
