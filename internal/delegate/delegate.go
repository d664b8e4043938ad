// Package delegate — HTTP-клиент внешнего сервиса выполнения workflow.
//
// Delegate выполняет фактическую работу (персонализация и доставка
// SMS/AlimTalk); для executor'а он непрозрачен за пределами
// успех/ошибка и HTTP-статуса. Таймаут вызова принадлежит этому
// клиенту, а не машине состояний executor'а.
package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/telemetry"
)

const defaultTimeout = 30 * time.Second

// Request — запрос на выполнение workflow.
type Request struct {
	// WorkflowID — идентификатор workflow.
	WorkflowID uuid.UUID `json:"workflowId"`

	// Snapshot — снапшот workflow на момент планирования.
	// Delegate работает со снапшотом, не с живым определением.
	Snapshot domain.WorkflowSnapshot `json:"workflowSnapshot"`

	// JobID — идентификатор job, инициировавшего выполнение.
	JobID uuid.UUID `json:"jobId"`

	// ScheduledExecution — признак запуска по расписанию.
	ScheduledExecution bool `json:"scheduledExecution"`

	// EnableRealSending — реальная отправка сообщений.
	// Для scheduler-триггеров всегда true.
	EnableRealSending bool `json:"enableRealSending"`
}

// Result — итог вызова delegate.
type Result struct {
	// StatusCode — HTTP-код ответа delegate.
	StatusCode int

	// Body — тело ответа (опаковое для executor'а).
	Body json.RawMessage
}

// Client — HTTP-клиент delegate.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient создаёт клиента из окружения.
//
// Переменные:
//   - WORKFLOW_EXECUTE_URL — адрес execute-endpoint'а (обязательно)
//   - DELEGATE_TIMEOUT_SEC — таймаут вызова (default: 30)
func NewClient() (*Client, error) {
	baseURL := os.Getenv("WORKFLOW_EXECUTE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("WORKFLOW_EXECUTE_URL is not set")
	}

	timeout := defaultTimeout
	if v := os.Getenv("DELEGATE_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			timeout = time.Duration(sec) * time.Second
		}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
	}, nil
}

// NewClientWithURL создаёт клиента с явным адресом (для тестов).
func NewClientWithURL(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		timeout:    timeout,
	}
}

// Execute вызывает delegate и возвращает его ответ.
//
// Ошибка транспорта или не-2xx статус считаются неуспехом; тело
// ответа обрезается в диагностике до разумного размера.
func (c *Client) Execute(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer func() {
		telemetry.DelegateCallDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal delegate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create delegate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call delegate: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read delegate response: %w", err)
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("delegate returned HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	return result, nil
}

// truncate обрезает строку до maxLen символов.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
