package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/director74/bundle-service/internal/usecase/webapi"
)

func testPollConfig() PollConfig {
	return PollConfig{
		Interval: 5 * time.Millisecond,
		Timeout:  200 * time.Millisecond,
	}
}

func TestAwaitBundleOperationResolvesOnThirdFetch(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (webapi.BundleOperation, error) {
		calls++
		if calls < 3 {
			return webapi.BundleOperation{ID: "job-1", Status: "CREATED"}, nil
		}
		return webapi.BundleOperation{
			ID:      "job-1",
			Status:  webapi.OperationStatusComplete,
			Product: &webapi.RemoteProduct{ID: "gid://shopify/Product/42"},
		}, nil
	}

	cfg := testPollConfig()
	start := time.Now()
	op, err := AwaitBundleOperation(context.Background(), "job-1", fetch, cfg)
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, webapi.OperationStatusComplete, op.Status)
	assert.NotNil(t, op.Product)
	// Два сна между тремя запросами
	assert.GreaterOrEqual(t, elapsed, 2*cfg.Interval)
	assert.Less(t, elapsed, cfg.Timeout)
}

func TestAwaitBundleOperationFailedIsTerminal(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (webapi.BundleOperation, error) {
		calls++
		return webapi.BundleOperation{
			ID:     "job-2",
			Status: webapi.OperationStatusFailed,
			UserErrors: []webapi.UserError{
				{Field: []string{"components"}, Message: "товар не найден"},
			},
		}, nil
	}

	op, err := AwaitBundleOperation(context.Background(), "job-2", fetch, testPollConfig())

	// FAILED терминален: ровно один запрос, без ретраев
	assert.Equal(t, 1, calls)
	var failedErr *JobFailedError
	assert.True(t, errors.As(err, &failedErr))
	assert.Equal(t, "job-2", failedErr.JobID)
	assert.Contains(t, failedErr.Error(), "товар не найден")
	assert.Equal(t, webapi.OperationStatusFailed, op.Status)
}

func TestAwaitBundleOperationTimesOut(t *testing.T) {
	fetch := func(ctx context.Context) (webapi.BundleOperation, error) {
		return webapi.BundleOperation{ID: "job-3", Status: "RUNNING"}, nil
	}

	cfg := PollConfig{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond}
	start := time.Now()
	_, err := AwaitBundleOperation(context.Background(), "job-3", fetch, cfg)
	elapsed := time.Since(start)

	var timeoutErr *JobTimedOutError
	assert.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, "job-3", timeoutErr.JobID)
	assert.GreaterOrEqual(t, elapsed, cfg.Timeout)
	// Дедлайн срабатывает не позже чем через интервал после истечения срока
	assert.Less(t, elapsed, cfg.Timeout+cfg.Interval+50*time.Millisecond)
}

func TestAwaitBundleOperationLateResponseStillResolves(t *testing.T) {
	// Ответ, пришедший уже после дедлайна, разрешается, а не отбрасывается:
	// дедлайн проверяется после запроса, незавершенный запрос не обрывается
	cfg := PollConfig{Interval: 5 * time.Millisecond, Timeout: 20 * time.Millisecond}
	fetch := func(ctx context.Context) (webapi.BundleOperation, error) {
		time.Sleep(cfg.Timeout + 20*time.Millisecond)
		return webapi.BundleOperation{
			ID:      "job-4",
			Status:  webapi.OperationStatusComplete,
			Product: &webapi.RemoteProduct{ID: "gid://shopify/Product/7"},
		}, nil
	}

	op, err := AwaitBundleOperation(context.Background(), "job-4", fetch, cfg)

	assert.NoError(t, err)
	assert.Equal(t, webapi.OperationStatusComplete, op.Status)
}

func TestAwaitBundleOperationFetchErrorPropagates(t *testing.T) {
	fetchErr := errors.New("сетевая ошибка")
	fetch := func(ctx context.Context) (webapi.BundleOperation, error) {
		return webapi.BundleOperation{}, fetchErr
	}

	_, err := AwaitBundleOperation(context.Background(), "job-5", fetch, testPollConfig())

	assert.ErrorIs(t, err, fetchErr)
}

func TestAwaitBundleOperationContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context) (webapi.BundleOperation, error) {
		cancel()
		return webapi.BundleOperation{ID: "job-6", Status: "RUNNING"}, nil
	}

	cfg := PollConfig{Interval: time.Second, Timeout: time.Minute}
	_, err := AwaitBundleOperation(ctx, "job-6", fetch, cfg)

	assert.ErrorIs(t, err, context.Canceled)
}
