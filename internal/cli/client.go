package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// JobResponse — job из API.
type JobResponse struct {
	ID           string `json:"id"`
	WorkflowID   string `json:"workflowId"`
	WorkflowName string `json:"workflowName,omitempty"`
	ScheduledAt  string `json:"scheduledAt"`
	Status       string `json:"status"`
	RetryCount   int    `json:"retryCount"`
	MaxRetries   int    `json:"maxRetries"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ExecutedAt   string `json:"executedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
	FailedAt     string `json:"failedAt,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// SignalResponse — аудит-запись вызова из API.
type SignalResponse struct {
	ID             string            `json:"id"`
	InvokedAt      string            `json:"invokedAt"`
	Source         string            `json:"source"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ResponseStatus int               `json:"responseStatus,omitempty"`
	ExecutedCount  int               `json:"executedCount"`
	DurationMS     int64             `json:"durationMs,omitempty"`
	CompletedAt    string            `json:"completedAt,omitempty"`
}

// ScheduleResponse — расписание кампании из API.
type ScheduleResponse struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflowId"`
	Name        string `json:"name,omitempty"`
	CronExpr    string `json:"cronExpr,omitempty"`
	IntervalSec int    `json:"intervalSec,omitempty"`
	Timezone    string `json:"timezone"`
	Enabled     bool   `json:"enabled"`
	NextDueAt   string `json:"nextDueAt,omitempty"`
	LastRunAt   string `json:"lastRunAt,omitempty"`
	LastJobID   string `json:"lastJobId,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// ExecuteResponse — итог вызова executor'а.
type ExecuteResponse struct {
	ExecutedCount    int                  `json:"executedCount"`
	Results          []ExecuteJobResponse `json:"results"`
	DebugInfo        []string             `json:"debugInfo,omitempty"`
	TotalPendingJobs int                  `json:"totalPendingJobs"`
	Timestamp        string               `json:"timestamp"`
}

// ExecuteJobResponse — по-объектный итог в ответе execute.
type ExecuteJobResponse struct {
	JobID      string `json:"jobId"`
	WorkflowID string `json:"workflowId"`
	Status     string `json:"status"`
	WillRetry  bool   `json:"willRetry,omitempty"`
	RetryCount int    `json:"retryCount"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// CreateScheduleRequest — создание расписания.
type CreateScheduleRequest struct {
	WorkflowID  string `json:"workflowId"`
	Name        string `json:"name,omitempty"`
	CronExpr    string `json:"cronExpr,omitempty"`
	IntervalSec int    `json:"intervalSec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// ListJobsOpts — параметры фильтрации jobs.
type ListJobsOpts struct {
	WorkflowID string
	Status     string
	Limit      int
}

// envelope — конверт ответа API.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Client — HTTP-клиент executor API.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewClient создаёт клиент. secret уходит в заголовок x-cron-secret;
// пустой secret означает расчёт на development-режим сервера.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		httpClient: &http.Client{
			// Execute может выполнять jobs; даём запас
			Timeout: 120 * time.Second,
		},
	}
}

// --- Jobs ---

// ListJobs возвращает jobs с фильтрацией.
func (c *Client) ListJobs(opts ListJobsOpts) ([]JobResponse, error) {
	params := url.Values{}
	if opts.WorkflowID != "" {
		params.Set("workflowId", opts.WorkflowID)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var jobs []JobResponse
	err := c.get(withParams("/api/scheduler/jobs", params), &jobs)
	return jobs, err
}

// GetJob возвращает job по ID.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/scheduler/jobs/"+id, &job)
	return &job, err
}

// CancelJob отменяет pending job.
func (c *Client) CancelJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.post("/api/scheduler/jobs/"+id+"/cancel", nil, &job)
	return &job, err
}

// --- Signals ---

// ListSignals возвращает недавние аудит-записи.
func (c *Client) ListSignals(limit int) ([]SignalResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var signals []SignalResponse
	err := c.get(withParams("/api/scheduler/signals", params), &signals)
	return signals, err
}

// GetSignal возвращает аудит-запись по ID.
func (c *Client) GetSignal(id string) (*SignalResponse, error) {
	var signal SignalResponse
	err := c.get("/api/scheduler/signals/"+id, &signal)
	return &signal, err
}

// --- Schedules ---

// ListSchedules возвращает расписания. workflowID опционален.
func (c *Client) ListSchedules(workflowID string) ([]ScheduleResponse, error) {
	params := url.Values{}
	if workflowID != "" {
		params.Set("workflowId", workflowID)
	}

	var schedules []ScheduleResponse
	err := c.get(withParams("/api/scheduler/schedules", params), &schedules)
	return schedules, err
}

// CreateSchedule создаёт расписание.
func (c *Client) CreateSchedule(req CreateScheduleRequest) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.post("/api/scheduler/schedules", req, &schedule)
	return &schedule, err
}

// GetSchedule возвращает расписание по ID.
func (c *Client) GetSchedule(id string) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.get("/api/scheduler/schedules/"+id, &schedule)
	return &schedule, err
}

// SetScheduleEnabled включает/выключает расписание.
func (c *Client) SetScheduleEnabled(id string, enabled bool) (*ScheduleResponse, error) {
	var schedule ScheduleResponse
	err := c.put("/api/scheduler/schedules/"+id+"/enabled", map[string]bool{"enabled": enabled}, &schedule)
	return &schedule, err
}

// DeleteSchedule удаляет расписание.
func (c *Client) DeleteSchedule(id string) error {
	return c.doJSON(http.MethodDelete, "/api/scheduler/schedules/"+id, nil, nil)
}

// --- Execute ---

// Execute запускает один проход executor'а.
func (c *Client) Execute() (*ExecuteResponse, error) {
	var result ExecuteResponse
	err := c.post("/api/scheduler/execute", nil, &result)
	return &result, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doJSON(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body, result any) error {
	return c.doJSON(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body, result any) error {
	return c.doJSON(http.MethodPut, path, body, result)
}

func (c *Client) doJSON(method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("x-cron-secret", c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("API error: %s", msg)
	}

	if result != nil && env.Data != nil {
		return json.Unmarshal(env.Data, result)
	}
	return nil
}

func withParams(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}
