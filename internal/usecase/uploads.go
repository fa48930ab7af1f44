package usecase

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/director74/bundle-service/internal/entity"
	"github.com/director74/bundle-service/internal/usecase/webapi"
)

// mediaContentTypes отображение MIME типа в тип медиа платформы
var mediaContentTypes = map[string]string{
	"image/jpeg":        "IMAGE",
	"image/png":         "IMAGE",
	"image/gif":         "IMAGE",
	"image/webp":        "IMAGE",
	"image/svg+xml":     "IMAGE",
	"video/mp4":         "VIDEO",
	"video/webm":        "VIDEO",
	"video/ogg":         "VIDEO",
	"model/gltf-binary": "MODEL_3D",
	"model/gltf+json":   "MODEL_3D",
}

// MediaContentTypeFromMIME возвращает тип медиа платформы для MIME типа.
// Неизвестный тип намеренно считается изображением, а не ошибкой валидации.
func MediaContentTypeFromMIME(mimeType string) string {
	if kind, ok := mediaContentTypes[mimeType]; ok {
		return kind
	}
	return "IMAGE"
}

// StagedUploadManager выполняет двухфазную загрузку медиа: запрос целей
// одним батчем, затем передача байтов и регистрация ресурсов на товаре.
// Источники байтов не удерживаются после завершения загрузки.
type StagedUploadManager struct {
	api    MediaUploadAPI
	logger *log.Logger
}

func NewStagedUploadManager(api MediaUploadAPI, logger *log.Logger) *StagedUploadManager {
	if logger == nil {
		logger = log.New(log.Writer(), "[StagedUpload] ", log.LstdFlags)
	}
	return &StagedUploadManager{
		api:    api,
		logger: logger,
	}
}

// StageAll выделяет цели загрузки для всех файлов одним батчем.
// Возвращает цели, список некритичных ошибок и фатальную ошибку. Фатальна
// только ошибка программирования вызывающего — объявленный файл без
// источника байтов; отказ платформы выделить цели собирается в некритичные
// ошибки, целей при этом нет и передача не начинается.
func (m *StagedUploadManager) StageAll(ctx context.Context, assets []entity.MediaAsset) ([]webapi.StagedTarget, []string, error) {
	if len(assets) == 0 {
		return nil, nil, nil
	}

	inputs := make([]webapi.StagedUploadInput, 0, len(assets))
	for i, asset := range assets {
		if asset.Source == nil {
			return nil, nil, fmt.Errorf("у файла %s (№%d) отсутствует источник байтов", asset.Filename, i+1)
		}
		inputs = append(inputs, webapi.StagedUploadInput{
			Filename:   asset.Filename,
			MimeType:   asset.MimeType,
			HTTPMethod: "POST",
			FileSize:   strconv.FormatInt(asset.SizeBytes, 10),
			Resource:   MediaContentTypeFromMIME(asset.MimeType),
		})
	}

	// Цели выделяются платформой набором, запрос обязан быть единым
	targets, err := m.api.CreateStagedUploads(ctx, inputs)
	if err != nil {
		return nil, []string{fmt.Sprintf("не удалось выделить цели загрузки: %v", err)}, nil
	}

	// Контракт не дает correlation id — соответствие позиционное.
	// При расхождении размеров фаза передачи не начинается.
	if len(targets) != len(assets) {
		return nil, []string{fmt.Sprintf("платформа вернула %d целей загрузки на %d файлов", len(targets), len(assets))}, nil
	}

	m.logger.Printf("BatchID=%s: выделено %d целей загрузки", uuid.NewString(), len(targets))
	return targets, nil, nil
}

// TransferAndRegister передает байты файлов на выделенные цели и регистрирует
// успешно переданные как медиа товара. Передачи независимы и идут
// параллельно; сбой одного файла не прерывает остальные и собирается
// в список некритичных ошибок.
func (m *StagedUploadManager) TransferAndRegister(ctx context.Context, productID string, assets []entity.MediaAsset, targets []webapi.StagedTarget) []string {
	transferErrs := make([]error, len(assets))
	var wg sync.WaitGroup
	for i := range assets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			transferErrs[i] = m.api.UploadToStagedTarget(ctx, targets[i], assets[i].Filename, assets[i].Source)
		}(i)
	}
	wg.Wait()

	warnings := make([]string, 0)
	mediaInputs := make([]webapi.CreateMediaInput, 0, len(assets))
	for i, asset := range assets {
		if transferErrs[i] != nil {
			warnings = append(warnings, fmt.Sprintf("не удалось загрузить файл %s (№%d): %v", asset.Filename, i+1, transferErrs[i]))
			continue
		}
		m.logger.Printf("товар %s: файл %s загружен", productID, asset.Filename)
		mediaInputs = append(mediaInputs, webapi.CreateMediaInput{
			MediaContentType: MediaContentTypeFromMIME(asset.MimeType),
			OriginalSource:   targets[i].ResourceURL,
			Alt:              asset.AltText,
		})
	}

	if len(mediaInputs) == 0 {
		return warnings
	}

	// Регистрация загруженных ресурсов на товаре одним вызовом
	userErrors, err := m.api.CreateProductMedia(ctx, productID, mediaInputs)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("не удалось зарегистрировать медиа: %v", err))
		return warnings
	}
	for _, ue := range userErrors {
		warnings = append(warnings, fmt.Sprintf("ошибка регистрации медиа: %s", ue.Error()))
	}

	return warnings
}

// UploadAll загружает все файлы и регистрирует их как медиа товара —
// композиция обеих фаз для вызывающих, которым промежуточное состояние
// не нужно
func (m *StagedUploadManager) UploadAll(ctx context.Context, productID string, assets []entity.MediaAsset) ([]string, error) {
	targets, warnings, err := m.StageAll(ctx, assets)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return warnings, nil
	}
	return append(warnings, m.TransferAndRegister(ctx, productID, assets, targets)...), nil
}
