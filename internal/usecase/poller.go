package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/director74/bundle-service/internal/usecase/webapi"
)

// PollConfig настройки опроса асинхронной операции. Значения задаются на
// каждый вызов, чтобы тесты могли использовать короткие интервалы.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPollConfig возвращает настройки опроса по умолчанию
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: time.Second,
		Timeout:  20 * time.Second,
	}
}

// JobFailedError терминальная ошибка: платформа завершила операцию со сбоем
type JobFailedError struct {
	JobID      string
	UserErrors []webapi.UserError
}

func (e *JobFailedError) Error() string {
	if len(e.UserErrors) > 0 {
		return fmt.Sprintf("операция %s завершилась с ошибкой: %s", e.JobID, webapi.FormatUserErrors(e.UserErrors))
	}
	return fmt.Sprintf("операция %s завершилась с ошибкой", e.JobID)
}

// JobTimedOutError терминальная ошибка: операция не разрешилась до дедлайна
type JobTimedOutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *JobTimedOutError) Error() string {
	return fmt.Sprintf("операция %s не завершилась за %s", e.JobID, e.Timeout)
}

// OperationFetcher один запрос статуса операции — блокирующий удаленный вызов
type OperationFetcher func(ctx context.Context) (webapi.BundleOperation, error)

// AwaitBundleOperation опрашивает статус операции до терминального состояния
// или дедлайна. Дедлайн проверяется после запроса и до сна: ответ, пришедший
// уже после истечения срока, все равно разрешается, а не отбрасывается.
// FAILED и TIMEOUT терминальны и поллером не ретраятся — политика повторов
// принадлежит вызывающему.
func AwaitBundleOperation(ctx context.Context, jobID string, fetch OperationFetcher, cfg PollConfig) (webapi.BundleOperation, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	deadline := time.Now().Add(cfg.Timeout)

	for {
		op, err := fetch(ctx)
		if err != nil {
			return webapi.BundleOperation{}, err
		}

		switch op.Status {
		case webapi.OperationStatusComplete:
			return op, nil
		case webapi.OperationStatusFailed:
			return op, &JobFailedError{JobID: jobID, UserErrors: op.UserErrors}
		}

		if !time.Now().Before(deadline) {
			return webapi.BundleOperation{}, &JobTimedOutError{JobID: jobID, Timeout: cfg.Timeout}
		}

		select {
		case <-ctx.Done():
			return webapi.BundleOperation{}, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}
