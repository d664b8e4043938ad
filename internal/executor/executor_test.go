package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/delegate"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
)

// --- Fakes ---

// fakeJobStore — in-memory store с теми же per-row CAS гарантиями,
// что и Postgres-репозиторий: все переходы под одним мьютексом.
type fakeJobStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*domain.ScheduledJob
	transitions int // счётчик успешных изменений строк
}

func newFakeJobStore(jobs ...*domain.ScheduledJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[uuid.UUID]*domain.ScheduledJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) listByStatus(status domain.JobStatus) []domain.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ScheduledJob
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out
}

func (s *fakeJobStore) ListPending(ctx context.Context) ([]domain.ScheduledJob, error) {
	return s.listByStatus(domain.JobStatusPending), nil
}

func (s *fakeJobStore) ListRunning(ctx context.Context) ([]domain.ScheduledJob, error) {
	return s.listByStatus(domain.JobStatusRunning), nil
}

func (s *fakeJobStore) ClaimPending(ctx context.Context, ids []uuid.UUID, executedAt time.Time) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []uuid.UUID
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok || j.Status != domain.JobStatusPending {
			continue
		}
		j.Status = domain.JobStatusRunning
		at := executedAt
		j.ExecutedAt = &at
		j.UpdatedAt = executedAt
		s.transitions++
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (s *fakeJobStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.JobStatus, f repo.TransitionFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}

	j.Status = to
	if f.ErrorMessage != nil {
		j.ErrorMessage = *f.ErrorMessage
	}
	if f.RetryCount != nil {
		j.RetryCount = *f.RetryCount
	}
	if f.CompletedAt != nil {
		j.CompletedAt = f.CompletedAt
	}
	if f.FailedAt != nil {
		j.FailedAt = f.FailedAt
	}
	s.transitions++
	return true, nil
}

func (s *fakeJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *j
	return &copied, nil
}

func (s *fakeJobStore) get(id uuid.UUID) domain.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeJobStore) transitionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions
}

type fakeWorkflowStore struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*domain.Workflow
}

func newFakeWorkflowStore(wfs ...*domain.Workflow) *fakeWorkflowStore {
	s := &fakeWorkflowStore{workflows: make(map[uuid.UUID]*domain.Workflow)}
	for _, wf := range wfs {
		s.workflows[wf.ID] = wf
	}
	return s
}

func (s *fakeWorkflowStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *wf
	return &copied, nil
}

type fakeSignalStore struct {
	mu        sync.Mutex
	created   int
	completed int
}

func (s *fakeSignalStore) Create(ctx context.Context, signal *domain.CronSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	return nil
}

func (s *fakeSignalStore) Complete(ctx context.Context, id uuid.UUID, responseStatus, executedCount int, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	return nil
}

// fakeDelegate — управляемый delegate: последовательность ошибок, затем успех.
type fakeDelegate struct {
	mu       sync.Mutex
	calls    int
	failures int // первые failures вызовов возвращают ошибку
	panics   bool
}

func (d *fakeDelegate) Execute(ctx context.Context, req delegate.Request) (*delegate.Result, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()

	if d.panics {
		panic("delegate exploded")
	}
	if n <= d.failures {
		return nil, errors.New("delivery service unavailable")
	}
	return &delegate.Result{StatusCode: 200}, nil
}

func (d *fakeDelegate) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// --- Helpers ---

var testNow = time.Date(2025, 11, 10, 12, 0, 0, 0, kst.Location)

func validSnapshot(name string) domain.WorkflowSnapshot {
	return domain.WorkflowSnapshot{
		Name: name,
		TargetConfig: domain.TargetConfig{
			Groups: []domain.TargetGroup{{ID: "grp-1", Name: "vip"}},
		},
		MessageConfig: domain.MessageConfig{
			Steps: []domain.MessageStep{{Order: 1, Channel: domain.ChannelSMS, Content: "hello"}},
		},
	}
}

func activeWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:     uuid.New(),
		Name:   "welcome-campaign",
		Status: domain.WorkflowStatusActive,
	}
}

func pendingJob(workflowID uuid.UUID, scheduledAt time.Time) *domain.ScheduledJob {
	return &domain.ScheduledJob{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		Snapshot:    validSnapshot("welcome-campaign"),
		ScheduledAt: kst.Format(scheduledAt),
		Status:      domain.JobStatusPending,
		MaxRetries:  3,
		CreatedAt:   scheduledAt.Add(-time.Hour),
		UpdatedAt:   scheduledAt.Add(-time.Hour),
	}
}

func newTestExecutor(jobs *fakeJobStore, wfs *fakeWorkflowStore, d Delegate) (*Executor, *fakeSignalStore) {
	signals := &fakeSignalStore{}
	e := New(Config{
		Jobs:      jobs,
		Workflows: wfs,
		Signals:   signals,
		Delegate:  d,
		Tolerance: time.Minute,
		Clock:     func() time.Time { return testNow },
		Logger:    slog.New(slog.DiscardHandler),
	})
	return e, signals
}

func trigger() Trigger {
	return Trigger{Source: domain.SignalSourceManual}
}

// --- Tests ---

// Гонка N конкурентных вызовов за один due job: job выполняется ровно
// один раз, остальные вызовы его не содержат.
func TestConcurrentInvocationsClaimJobOnce(t *testing.T) {
	wf := activeWorkflow()
	job := pendingJob(wf.ID, testNow.Add(-time.Minute))
	store := newFakeJobStore(job)
	d := &fakeDelegate{}

	const invocations = 8
	results := make([]*Result, invocations)

	var wg sync.WaitGroup
	for i := 0; i < invocations; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)
			res, err := e.Execute(context.Background(), trigger())
			if err != nil {
				t.Errorf("invocation %d: unexpected error: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	totalExecuted := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		totalExecuted += res.ExecutedCount
		for _, jr := range res.Results {
			if jr.JobID != job.ID {
				t.Errorf("unexpected job in results: %s", jr.JobID)
			}
		}
	}

	if totalExecuted != 1 {
		t.Fatalf("job executed %d times across %d concurrent invocations, want exactly 1", totalExecuted, invocations)
	}
	if got := d.callCount(); got != 1 {
		t.Fatalf("delegate called %d times, want 1", got)
	}
	if got := store.get(job.ID).Status; got != domain.JobStatusCompleted {
		t.Fatalf("final status = %s, want completed", got)
	}
}

// Job, зависший в running дольше порога, чинится в failed; свежий
// running job не трогается.
func TestStuckJobRepair(t *testing.T) {
	wf := activeWorkflow()

	stuck := pendingJob(wf.ID, testNow.Add(-time.Hour))
	stuck.Status = domain.JobStatusRunning
	staleStart := testNow.Add(-10 * time.Minute)
	stuck.ExecutedAt = &staleStart

	fresh := pendingJob(wf.ID, testNow.Add(-time.Hour))
	fresh.Status = domain.JobStatusRunning
	freshStart := testNow.Add(-time.Minute)
	fresh.ExecutedAt = &freshStart

	noStart := pendingJob(wf.ID, testNow.Add(-time.Hour))
	noStart.Status = domain.JobStatusRunning
	noStart.ExecutedAt = nil

	store := newFakeJobStore(stuck, fresh, noStart)
	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), &fakeDelegate{})

	if _, err := e.Execute(context.Background(), trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.get(stuck.ID); got.Status != domain.JobStatusFailed {
		t.Errorf("stuck job status = %s, want failed", got.Status)
	} else if got.ErrorMessage == "" {
		t.Error("stuck job has empty error message")
	}

	if got := store.get(noStart.ID).Status; got != domain.JobStatusFailed {
		t.Errorf("running job without executed_at: status = %s, want failed", got)
	}

	if got := store.get(fresh.ID).Status; got != domain.JobStatusRunning {
		t.Errorf("fresh running job status = %s, want running (untouched)", got)
	}
}

// Повторный проход reconciler'а без сдвига времени ничего не меняет.
func TestReconciliationIsIdempotent(t *testing.T) {
	wf := activeWorkflow()
	stuck := pendingJob(wf.ID, testNow.Add(-time.Hour))
	stuck.Status = domain.JobStatusRunning
	staleStart := testNow.Add(-10 * time.Minute)
	stuck.ExecutedAt = &staleStart

	store := newFakeJobStore(stuck)
	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), &fakeDelegate{})

	e.repairStuck(context.Background(), testNow)
	after := store.transitionCount()

	e.repairStuck(context.Background(), testNow)
	if got := store.transitionCount(); got != after {
		t.Fatalf("second reconciliation changed state: %d transitions, want %d", got, after)
	}
}

// Исчерпание retry: после maxRetries+1 неудач job терминально failed
// и больше не возвращается в pending.
func TestRetryBound(t *testing.T) {
	wf := activeWorkflow()
	job := pendingJob(wf.ID, testNow.Add(-time.Minute))
	job.MaxRetries = 2
	store := newFakeJobStore(job)
	d := &fakeDelegate{failures: 100} // всегда падает

	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)

	// Попытки 1 и 2: возврат в pending с инкрементом
	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := e.Execute(context.Background(), trigger()); err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", attempt, err)
		}
		got := store.get(job.ID)
		if got.Status != domain.JobStatusPending {
			t.Fatalf("attempt %d: status = %s, want pending", attempt, got.Status)
		}
		if got.RetryCount != attempt {
			t.Fatalf("attempt %d: retry_count = %d, want %d", attempt, got.RetryCount, attempt)
		}
	}

	// Попытка 3: лимит исчерпан, терминальный failed
	if _, err := e.Execute(context.Background(), trigger()); err != nil {
		t.Fatalf("final attempt: unexpected error: %v", err)
	}
	got := store.get(job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("final status = %s, want failed", got.Status)
	}

	// Дальнейшие вызовы job не трогают
	res, err := e.Execute(context.Background(), trigger())
	if err != nil {
		t.Fatalf("post-terminal invocation: unexpected error: %v", err)
	}
	if res.ExecutedCount != 0 {
		t.Fatalf("post-terminal invocation executed %d jobs, want 0", res.ExecutedCount)
	}
	if got := store.get(job.ID).Status; got != domain.JobStatusFailed {
		t.Fatalf("post-terminal status = %s, want failed", got)
	}
}

// Сценарий spec-уровня: delegate падает один раз — job возвращается в
// pending с retry_count=1, ошибкой и немедленно становится due снова.
func TestDelegateFailureReturnsJobToPending(t *testing.T) {
	wf := activeWorkflow()
	job := pendingJob(wf.ID, testNow.Add(-30*time.Second))
	store := newFakeJobStore(job)
	d := &fakeDelegate{failures: 1}

	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)

	res, err := e.Execute(context.Background(), trigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExecutedCount != 1 {
		t.Fatalf("executed = %d, want 1", res.ExecutedCount)
	}
	if !res.Results[0].WillRetry {
		t.Error("result should indicate retry")
	}

	got := store.get(job.ID)
	if got.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1", got.RetryCount)
	}
	if got.ErrorMessage == "" {
		t.Fatal("error_message is empty")
	}

	// scheduled_at не сдвинут — job немедленно due на следующем вызове
	res, err = e.Execute(context.Background(), trigger())
	if err != nil {
		t.Fatalf("second invocation: unexpected error: %v", err)
	}
	if res.ExecutedCount != 1 {
		t.Fatalf("second invocation executed = %d, want 1 (retry is due immediately)", res.ExecutedCount)
	}
	if got := store.get(job.ID).Status; got != domain.JobStatusCompleted {
		t.Fatalf("final status = %s, want completed", got)
	}
}

// Деактивированный workflow: job отменяется, delegate не вызывается.
func TestInactiveWorkflowCancelsJob(t *testing.T) {
	wf := activeWorkflow()
	wf.Status = domain.WorkflowStatusPaused
	job := pendingJob(wf.ID, testNow.Add(-time.Minute))
	store := newFakeJobStore(job)
	d := &fakeDelegate{}

	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)

	if _, err := e.Execute(context.Background(), trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.get(job.ID).Status; got != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
	if got := d.callCount(); got != 0 {
		t.Fatalf("delegate called %d times for inactive workflow, want 0", got)
	}
}

// Отсутствующее workflow-определение — data error: терминальный failed
// без retry, delegate не вызывается.
func TestMissingWorkflowFailsJobTerminally(t *testing.T) {
	job := pendingJob(uuid.New(), testNow.Add(-time.Minute))
	store := newFakeJobStore(job)
	d := &fakeDelegate{}

	e, _ := newTestExecutor(store, newFakeWorkflowStore(), d)

	if _, err := e.Execute(context.Background(), trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.get(job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1 (attempt consumed)", got.RetryCount)
	}
	if d.callCount() != 0 {
		t.Fatal("delegate must not be called for missing workflow")
	}
}

// Граница окна допуска: ровно T−tolerance — due, раньше — нет.
func TestToleranceWindowBoundary(t *testing.T) {
	wf := activeWorkflow()

	cases := []struct {
		name        string
		scheduledAt time.Time
		wantDue     bool
	}{
		{"exactly at T-tolerance", testNow.Add(time.Minute), true},
		{"one second inside window", testNow.Add(time.Minute - time.Second), true},
		{"one second outside window", testNow.Add(time.Minute + time.Second), false},
		{"well in the past", testNow.Add(-time.Hour), true},
		{"well in the future", testNow.Add(time.Hour), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := pendingJob(wf.ID, tc.scheduledAt)
			store := newFakeJobStore(job)
			d := &fakeDelegate{}
			e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)

			res, err := e.Execute(context.Background(), trigger())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tc.wantDue && res.ExecutedCount != 1 {
				t.Fatalf("executed = %d, want 1 (job should be due)", res.ExecutedCount)
			}
			if !tc.wantDue {
				if res.ExecutedCount != 0 {
					t.Fatalf("executed = %d, want 0 (job not due yet)", res.ExecutedCount)
				}
				if got := store.get(job.ID).Status; got != domain.JobStatusPending {
					t.Fatalf("not-due job status = %s, want pending", got)
				}
			}
			if res.TotalPendingJobs != 1 {
				t.Fatalf("total_pending = %d, want 1", res.TotalPendingJobs)
			}
		})
	}
}

// Две гонящиеся инвокации: одна выполняет job, вторая видит его в
// totalPendingJobs, но не в своём наборе результатов.
func TestRacingInvocationsReportConsistently(t *testing.T) {
	wf := activeWorkflow()
	job := pendingJob(wf.ID, testNow.Add(-time.Minute))
	store := newFakeJobStore(job)
	d := &fakeDelegate{}

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)
			res, err := e.Execute(context.Background(), trigger())
			if err != nil {
				t.Errorf("invocation %d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if results[0] == nil || results[1] == nil {
		t.Fatal("missing results")
	}

	executed := results[0].ExecutedCount + results[1].ExecutedCount
	if executed != 1 {
		t.Fatalf("combined executed = %d, want exactly 1", executed)
	}

	// Каждая инвокация видела job среди pending (обе стартовали до
	// того, как он стал терминальным, либо одна уже увидела 0 pending —
	// оба исхода корректны; главное, что job не задвоился)
	for i, res := range results {
		if res.ExecutedCount == 0 && len(res.Results) != 0 {
			t.Errorf("invocation %d lost the claim race but reports results", i)
		}
	}
}

// Непарсибельный scheduled_at — data error: job уходит в failed,
// delegate не вызывается, сиблинги выполняются.
func TestUnparsableScheduledAtFailsJob(t *testing.T) {
	wf := activeWorkflow()

	bad := pendingJob(wf.ID, testNow.Add(-time.Minute))
	bad.ScheduledAt = "next tuesday after lunch"

	good := pendingJob(wf.ID, testNow.Add(-time.Minute))

	store := newFakeJobStore(bad, good)
	d := &fakeDelegate{}
	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)

	res, err := e.Execute(context.Background(), trigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.get(bad.ID).Status; got != domain.JobStatusFailed {
		t.Errorf("bad job status = %s, want failed", got)
	}
	if got := store.get(good.ID).Status; got != domain.JobStatusCompleted {
		t.Errorf("good job status = %s, want completed", got)
	}
	if res.ExecutedCount != 1 {
		t.Errorf("executed = %d, want 1", res.ExecutedCount)
	}
	if d.callCount() != 1 {
		t.Errorf("delegate called %d times, want 1 (only the good job)", d.callCount())
	}
}

// Паника внутри обработки одного job не валит вызов и не оставляет
// job в running.
func TestPanicInJobProcessingIsIsolated(t *testing.T) {
	wf := activeWorkflow()
	job := pendingJob(wf.ID, testNow.Add(-time.Minute))
	job.MaxRetries = 0 // без retry: сразу терминальный failed
	store := newFakeJobStore(job)
	d := &fakeDelegate{panics: true}

	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)

	res, err := e.Execute(context.Background(), trigger())
	if err != nil {
		t.Fatalf("invocation must survive a panicking delegate: %v", err)
	}
	if res.ExecutedCount != 1 {
		t.Fatalf("executed = %d, want 1", res.ExecutedCount)
	}

	got := store.get(job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed (never left running)", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("panic diagnostic missing from error_message")
	}
}

// Jobs выполняются по возрастанию нормализованного scheduled instant,
// несмотря на разнородные текстовые форматы.
func TestDueJobsRunInScheduledOrder(t *testing.T) {
	wf := activeWorkflow()

	late := pendingJob(wf.ID, testNow.Add(-10*time.Minute))
	early := pendingJob(wf.ID, testNow.Add(-2*time.Hour))
	// Наивный формат без offset: свежесозданный job трактуется как KST
	middle := pendingJob(wf.ID, testNow.Add(-time.Hour))
	middle.ScheduledAt = testNow.Add(-time.Hour).In(kst.Location).Format("2006-01-02 15:04:05")
	middle.CreatedAt = testNow.Add(-2 * time.Hour)

	store := newFakeJobStore(late, early, middle)
	d := &fakeDelegate{}
	e, _ := newTestExecutor(store, newFakeWorkflowStore(wf), d)

	res, err := e.Execute(context.Background(), trigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExecutedCount != 3 {
		t.Fatalf("executed = %d, want 3", res.ExecutedCount)
	}

	wantOrder := []uuid.UUID{early.ID, middle.ID, late.ID}
	for i, want := range wantOrder {
		if res.Results[i].JobID != want {
			var got []string
			for _, r := range res.Results {
				got = append(got, r.JobID.String())
			}
			t.Fatalf("execution order = %v, want [%s %s %s]", got, wantOrder[0], wantOrder[1], wantOrder[2])
		}
	}
}
