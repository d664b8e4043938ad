package delegate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
)

func sampleRequest() Request {
	return Request{
		WorkflowID: uuid.New(),
		JobID:      uuid.New(),
		Snapshot: domain.WorkflowSnapshot{
			Name: "welcome",
			MessageConfig: domain.MessageConfig{
				Steps: []domain.MessageStep{{Order: 1, Channel: domain.ChannelSMS, Content: "hi"}},
			},
		},
		ScheduledExecution: true,
		EnableRealSending:  true,
	}
}

func TestExecuteSuccess(t *testing.T) {
	var gotBody Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sent":42}`))
	}))
	defer srv.Close()

	c := NewClientWithURL(srv.URL, 5*time.Second)
	req := sampleRequest()

	res, err := c.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}
	if string(res.Body) != `{"sent":42}` {
		t.Errorf("body = %s", res.Body)
	}

	if gotBody.WorkflowID != req.WorkflowID || gotBody.JobID != req.JobID {
		t.Error("request identifiers not propagated")
	}
	if !gotBody.ScheduledExecution || !gotBody.EnableRealSending {
		t.Error("scheduled execution flags not propagated")
	}
	if len(gotBody.Snapshot.MessageConfig.Steps) != 1 {
		t.Error("workflow snapshot not propagated")
	}
}

func TestExecuteNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClientWithURL(srv.URL, 5*time.Second)

	res, err := c.Execute(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected error for HTTP 502")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("error should mention the status code: %v", err)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error should carry the response body: %v", err)
	}
	// Результат возвращается и при ошибке: статус и тело нужны аудиту
	if res == nil || res.StatusCode != http.StatusBadGateway {
		t.Error("result with status code must accompany the error")
	}
}

func TestExecuteTruncatesLongErrorBody(t *testing.T) {
	long := strings.Repeat("x", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	c := NewClientWithURL(srv.URL, 5*time.Second)

	_, err := c.Execute(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(err.Error()) > 400 {
		t.Errorf("error message not truncated: %d chars", len(err.Error()))
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Errorf("truncated body should end with ellipsis: %q", err.Error())
	}
}

func TestExecuteTimeout(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := NewClientWithURL(srv.URL, 50*time.Millisecond)

	start := time.Now()
	_, err := c.Execute(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s, client timeout not applied", elapsed)
	}
}

func TestExecuteRespectsCallerContext(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	c := NewClientWithURL(srv.URL, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Execute(ctx, sampleRequest())
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
}
