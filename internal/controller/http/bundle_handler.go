package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/director74/bundle-service/internal/entity"
	"github.com/director74/bundle-service/internal/repo"
	"github.com/director74/bundle-service/internal/usecase"
	"github.com/director74/bundle-service/pkg/auth"
	apperrors "github.com/director74/bundle-service/pkg/errors"
)

// BundleHandler обработчик HTTP запросов для работы с бандлами
type BundleHandler struct {
	bundleUseCase  *usecase.BundleUseCase
	authMiddleware *auth.AuthMiddleware
}

func NewBundleHandler(bundleUseCase *usecase.BundleUseCase, authMiddleware *auth.AuthMiddleware) *BundleHandler {
	return &BundleHandler{
		bundleUseCase:  bundleUseCase,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes регистрирует маршруты для бандлов
func (h *BundleHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.Use(h.authMiddleware.AuthRequired())
	{
		bundles := api.Group("/bundles")
		{
			bundles.POST("", h.CreateBundle)
			bundles.GET("", h.ListBundles)
			bundles.GET("/:id", h.GetBundle)
			bundles.PUT("/:id", h.UpdateBundle)
			bundles.DELETE("/:id", h.DeleteBundle)
			bundles.POST("/validate", h.ValidateBundle)
		}
		api.GET("/shop-info", h.GetShopInfo)
	}
}

// CreateBundle обрабатывает запрос на создание бандла.
// Запрос приходит multipart формой: поле formData содержит JSON с описанием
// бандла, байты медиафайлов — в отдельных частях media_0, media_1, ...
func (h *BundleHandler) CreateBundle(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse("ожидается multipart форма: "+err.Error(), nil))
		return
	}

	formData := form.Value["formData"]
	if len(formData) == 0 {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse("отсутствует поле formData", nil))
		return
	}

	var req entity.CreateBundleRequest
	if err := json.Unmarshal([]byte(formData[0]), &req); err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse("ошибка разбора formData: "+err.Error(), nil))
		return
	}
	if req.BundleName == "" || len(req.Products) == 0 {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse("bundleName и products обязательны", nil))
		return
	}

	// Байты медиа сопоставляются с req.Media позиционно по индексу части
	assets := make([]entity.MediaAsset, 0, len(req.Media))
	openedFiles := make([]io.Closer, 0, len(req.Media))
	defer func() {
		for _, f := range openedFiles {
			f.Close()
		}
	}()

	for i, meta := range req.Media {
		fileHeaders := form.File[fmt.Sprintf("media_%d", i)]
		if len(fileHeaders) == 0 {
			c.JSON(http.StatusBadRequest, apperrors.ErrorResponse(
				fmt.Sprintf("отсутствует часть media_%d для файла %s", i, meta.Name), nil))
			return
		}
		file, err := fileHeaders[0].Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, apperrors.ErrorResponse(
				fmt.Sprintf("не удалось открыть файл %s: %v", meta.Name, err), nil))
			return
		}
		openedFiles = append(openedFiles, file)
		assets = append(assets, entity.MediaAsset{
			Filename:  meta.Name,
			MimeType:  meta.Type,
			SizeBytes: meta.Size,
			AltText:   meta.AltText,
			Source:    file,
		})
	}

	draft := &entity.BundleDraft{
		Name:        req.BundleName,
		Description: req.Description,
		Status:      entity.BundleStatusFromRequest(req.Status),
		Components:  req.Products,
		Discount:    req.Discount(),
		Media:       assets,
		Collections: req.CollectionsToJoin,
		Tags:        req.ProductTags,
		ProductType: req.ProductType,
		Shop:        auth.GetShop(c),
		UserID:      auth.GetUserID(c),
	}

	result, err := h.bundleUseCase.CreateBundle(c.Request.Context(), draft)
	if err != nil {
		var vErr *usecase.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success":          false,
				"message":          vErr.Error(),
				"component_errors": vErr.Report.ComponentErrors,
				"limits":           vErr.Report.Limits,
				"limit_errors":     vErr.Report.LimitErrors,
			})
			return
		}
		c.JSON(http.StatusBadGateway, result)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// UpdateBundle обрабатывает запрос на пересборку компонентов бандла
func (h *BundleHandler) UpdateBundle(c *gin.Context) {
	var req entity.UpdateBundleRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}
	req.ProductID = productGID(c.Param("id"), req.ProductID)

	result, err := h.bundleUseCase.UpdateBundle(c.Request.Context(), req)
	if err != nil {
		var vErr *usecase.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success":          false,
				"message":          vErr.Error(),
				"component_errors": vErr.Report.ComponentErrors,
				"limits":           vErr.Report.Limits,
				"limit_errors":     vErr.Report.LimitErrors,
			})
			return
		}
		c.JSON(http.StatusBadGateway, result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListBundles возвращает страницу локальных записей бандлов магазина
func (h *BundleHandler) ListBundles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := h.bundleUseCase.ListBundles(c.Request.Context(), auth.GetShop(c), limit, offset)
	if err != nil {
		apperrors.HandleGinError(c, apperrors.NewInternalServerError(err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetBundle возвращает локальную запись и актуальное состояние товара
func (h *BundleHandler) GetBundle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse("некорректный ID бандла", nil))
		return
	}

	record, details, err := h.bundleUseCase.GetBundle(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, repo.ErrBundleNotFound) {
			apperrors.HandleGinError(c, apperrors.NewNotFoundError("Бандл", id))
			return
		}
		apperrors.HandleGinError(c, apperrors.NewInternalServerError(err))
		return
	}

	// Запись другого магазина не отдается
	if record.Shop != auth.GetShop(c) {
		apperrors.HandleGinError(c, apperrors.NewNotFoundError("Бандл", id))
		return
	}

	resp := gin.H{"bundle": record}
	if details != nil {
		resp["product"] = details
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteBundle удаляет локальную запись; товар на платформе не затрагивается
func (h *BundleHandler) DeleteBundle(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse("некорректный ID бандла", nil))
		return
	}

	record, _, err := h.bundleUseCase.GetBundle(c.Request.Context(), uint(id))
	if err != nil || record.Shop != auth.GetShop(c) {
		apperrors.HandleGinError(c, apperrors.NewNotFoundError("Бандл", id))
		return
	}

	if err := h.bundleUseCase.DeleteBundle(c.Request.Context(), uint(id)); err != nil {
		apperrors.HandleGinError(c, apperrors.NewInternalServerError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ValidateBundle проверяет состав без отправки на платформу
func (h *BundleHandler) ValidateBundle(c *gin.Context) {
	var req struct {
		Products []entity.ProductComponent `json:"products" binding:"required"`
	}
	if !apperrors.BindJSON(c, &req) {
		return
	}

	report := h.bundleUseCase.ValidateBundle(req.Products)
	c.JSON(http.StatusOK, gin.H{
		"valid":            !report.HasErrors(),
		"component_errors": report.ComponentErrors,
		"limits":           report.Limits,
		"limit_errors":     report.LimitErrors,
	})
}

// GetShopInfo возвращает справочные данные магазина для мастера создания
func (h *BundleHandler) GetShopInfo(c *gin.Context) {
	info, err := h.bundleUseCase.GetShopInfo(c.Request.Context())
	if err != nil {
		apperrors.HandleGinError(c, apperrors.NewInternalServerError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":                 info.Name,
		"categories":           info.Categories,
		"product_tags":         info.ProductTags,
		"product_types":        info.ProductTypes,
		"max_product_variants": info.MaxProductVariants,
	})
}

// productGID возвращает идентификатор товара: приоритет у тела запроса,
// путь используется как запасной вариант
func productGID(pathID, bodyID string) string {
	if bodyID != "" {
		return bodyID
	}
	return pathID
}
