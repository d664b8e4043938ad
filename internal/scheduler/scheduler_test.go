package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/domain"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/kst"
	"github.com/hanowl-1/CRM-for-SMB-3q-sub001/internal/repo"
)

// --- Fakes ---

type fakeScheduleStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*domain.CampaignSchedule
	updates   int
}

func newFakeScheduleStore(scheds ...*domain.CampaignSchedule) *fakeScheduleStore {
	s := &fakeScheduleStore{schedules: make(map[uuid.UUID]*domain.CampaignSchedule)}
	for _, sc := range scheds {
		s.schedules[sc.ID] = sc
	}
	return s
}

func (s *fakeScheduleStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.CampaignSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CampaignSchedule
	for _, sc := range s.schedules {
		if sc.IsDue(now) && len(out) < limit {
			out = append(out, *sc)
		}
	}
	return out, nil
}

func (s *fakeScheduleStore) Update(ctx context.Context, schedule *domain.CampaignSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *schedule
	s.schedules[schedule.ID] = &copied
	s.updates++
	return nil
}

func (s *fakeScheduleStore) get(id uuid.UUID) domain.CampaignSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.schedules[id]
}

type fakeJobStore struct {
	mu     sync.Mutex
	byKey  map[string]*domain.ScheduledJob
	byID   map[uuid.UUID]*domain.ScheduledJob
	writes int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		byKey: make(map[string]*domain.ScheduledJob),
		byID:  make(map[uuid.UUID]*domain.ScheduledJob),
	}
}

func (s *fakeJobStore) Create(ctx context.Context, job *domain.ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byKey[job.IdempotencyKey]; exists && job.IdempotencyKey != "" {
		return fmt.Errorf("duplicate idempotency key %q", job.IdempotencyKey)
	}
	copied := *job
	s.byID[job.ID] = &copied
	if job.IdempotencyKey != "" {
		s.byKey[job.IdempotencyKey] = &copied
	}
	s.writes++
	return nil
}

func (s *fakeJobStore) GetByIdempotencyKey(ctx context.Context, workflowID uuid.UUID, key string) (*domain.ScheduledJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.byKey[key]
	if !ok || j.WorkflowID != workflowID {
		return nil, repo.ErrNotFound
	}
	copied := *j
	return &copied, nil
}

func (s *fakeJobStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *fakeJobStore) only() domain.ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.byID {
		return *j
	}
	panic("no jobs in store")
}

type fakeWorkflowStore struct {
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
	wf, ok := s.workflows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *wf
	return &copied, nil
}

// --- Helpers ---

var tickNow = time.Date(2025, 11, 10, 12, 0, 0, 0, kst.Location)

func activeWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:     uuid.New(),
		Name:   "weekly-digest",
		Status: domain.WorkflowStatusActive,
		TargetConfig: domain.TargetConfig{
			Groups: []domain.TargetGroup{{ID: "grp-1"}},
		},
		MessageConfig: domain.MessageConfig{
			Steps: []domain.MessageStep{{Order: 1, Channel: domain.ChannelSMS, Content: "digest"}},
		},
	}
}

func intervalSchedule(workflowID uuid.UUID, dueAt time.Time) *domain.CampaignSchedule {
	due := dueAt
	return &domain.CampaignSchedule{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		Name:        "hourly",
		IntervalSec: 3600,
		Timezone:    kst.Zone,
		Enabled:     true,
		NextDueAt:   &due,
		CreatedAt:   dueAt.Add(-24 * time.Hour),
		UpdatedAt:   dueAt.Add(-24 * time.Hour),
	}
}

func newTestScheduler(scheds *fakeScheduleStore, jobs *fakeJobStore, wfs *fakeWorkflowStore) *Scheduler {
	return New(Config{
		Schedules:  scheds,
		Jobs:       jobs,
		Workflows:  wfs,
		MaxRetries: 3,
		Clock:      func() time.Time { return tickNow },
		Logger:     slog.New(slog.DiscardHandler),
	})
}

// --- Tests ---

func TestTickMaterializesDueSchedule(t *testing.T) {
	wf := activeWorkflow()
	dueAt := tickNow.Add(-time.Minute)
	sched := intervalSchedule(wf.ID, dueAt)

	scheds := newFakeScheduleStore(sched)
	jobs := newFakeJobStore()
	s := newTestScheduler(scheds, jobs, newFakeWorkflowStore(wf))

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobs.count() != 1 {
		t.Fatalf("job count = %d, want 1", jobs.count())
	}

	job := jobs.only()
	if job.WorkflowID != wf.ID {
		t.Errorf("job workflow_id = %s, want %s", job.WorkflowID, wf.ID)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("job status = %s, want pending", job.Status)
	}
	if job.MaxRetries != 3 {
		t.Errorf("job max_retries = %d, want 3", job.MaxRetries)
	}
	if want := kst.Format(dueAt); job.ScheduledAt != want {
		t.Errorf("job scheduled_at = %q, want %q", job.ScheduledAt, want)
	}
	if want := fmt.Sprintf("%s_%d", sched.ID, dueAt.Unix()); job.IdempotencyKey != want {
		t.Errorf("idempotency key = %q, want %q", job.IdempotencyKey, want)
	}
	if len(job.Snapshot.MessageConfig.Steps) != 1 {
		t.Error("workflow snapshot not embedded in job")
	}

	// Расписание продвинуто на интервал от момента тика
	after := scheds.get(sched.ID)
	if after.NextDueAt == nil {
		t.Fatal("next_due_at cleared")
	}
	if want := tickNow.Add(time.Hour); !after.NextDueAt.Equal(want) {
		t.Errorf("next_due_at = %s, want %s", after.NextDueAt, want)
	}
	if after.LastJobID == nil || *after.LastJobID != job.ID {
		t.Error("last_job_id not recorded")
	}
}

// Повторный тик с тем же due-моментом не плодит дубликат: job находится
// по ключу идемпотентности, расписание всё равно продвигается.
func TestTickIsIdempotentPerDueInstant(t *testing.T) {
	wf := activeWorkflow()
	dueAt := tickNow.Add(-time.Minute)
	sched := intervalSchedule(wf.ID, dueAt)

	scheds := newFakeScheduleStore(sched)
	jobs := newFakeJobStore()
	s := newTestScheduler(scheds, jobs, newFakeWorkflowStore(wf))

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	existing := jobs.only()

	// Откатываем next_due_at, имитируя второй процесс, увидевший
	// то же due-состояние до записи первого
	stale := scheds.get(sched.ID)
	stale.NextDueAt = &dueAt
	if err := scheds.Update(context.Background(), &stale); err != nil {
		t.Fatal(err)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if jobs.count() != 1 {
		t.Fatalf("job count after duplicate tick = %d, want 1", jobs.count())
	}

	after := scheds.get(sched.ID)
	if after.LastJobID == nil || *after.LastJobID != existing.ID {
		t.Error("last_job_id should point at the existing job")
	}
	if want := tickNow.Add(time.Hour); after.NextDueAt == nil || !after.NextDueAt.Equal(want) {
		t.Error("schedule must be advanced even when the job already exists")
	}
}

// Неактивный workflow: job не создаётся, но next_due_at продвигается —
// иначе расписание будет due на каждом тике.
func TestTickSkipsInactiveWorkflowAndAdvances(t *testing.T) {
	wf := activeWorkflow()
	wf.Status = domain.WorkflowStatusPaused
	sched := intervalSchedule(wf.ID, tickNow.Add(-time.Minute))

	scheds := newFakeScheduleStore(sched)
	jobs := newFakeJobStore()
	s := newTestScheduler(scheds, jobs, newFakeWorkflowStore(wf))

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobs.count() != 0 {
		t.Fatalf("job count = %d, want 0 for paused workflow", jobs.count())
	}

	after := scheds.get(sched.ID)
	if want := tickNow.Add(time.Hour); after.NextDueAt == nil || !after.NextDueAt.Equal(want) {
		t.Error("next_due_at must advance for paused workflow")
	}
	if after.LastJobID != nil {
		t.Error("last_job_id must stay empty for a skipped run")
	}
}

// Расписание с удалённым workflow пропускается без продвижения:
// чинить ссылку — забота оператора.
func TestTickSkipsMissingWorkflow(t *testing.T) {
	dueAt := tickNow.Add(-time.Minute)
	sched := intervalSchedule(uuid.New(), dueAt)

	scheds := newFakeScheduleStore(sched)
	jobs := newFakeJobStore()
	s := newTestScheduler(scheds, jobs, newFakeWorkflowStore())

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobs.count() != 0 {
		t.Fatalf("job count = %d, want 0", jobs.count())
	}
	after := scheds.get(sched.ID)
	if after.NextDueAt == nil || !after.NextDueAt.Equal(dueAt) {
		t.Error("next_due_at must not move when the workflow is missing")
	}
}

// Ошибка одного расписания не блокирует обработку остальных.
func TestTickIsolatesPerScheduleFailures(t *testing.T) {
	wf := activeWorkflow()

	broken := intervalSchedule(wf.ID, tickNow.Add(-time.Minute))
	broken.IntervalSec = 0 // ни cron, ни интервал

	healthy := intervalSchedule(wf.ID, tickNow.Add(-time.Minute))

	scheds := newFakeScheduleStore(broken, healthy)
	jobs := newFakeJobStore()
	s := newTestScheduler(scheds, jobs, newFakeWorkflowStore(wf))

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Для сломанного расписания job материализован, но next_due_at
	// остался на месте — его починит оператор
	if jobs.count() != 2 {
		t.Fatalf("job count = %d, want 2", jobs.count())
	}
	healthyAfter := scheds.get(healthy.ID)
	if want := tickNow.Add(time.Hour); healthyAfter.NextDueAt == nil || !healthyAfter.NextDueAt.Equal(want) {
		t.Error("healthy schedule must advance despite a broken sibling")
	}
}

func TestCalculateNextDueCron(t *testing.T) {
	sched := &domain.CampaignSchedule{
		CronExpr: "0 9 * * *",
		Timezone: kst.Zone,
	}

	// 12:00 KST → следующий запуск завтра в 9:00 KST
	next, err := CalculateNextDue(sched, tickNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 11, 11, 9, 0, 0, 0, kst.Location)
	if !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}
	if next.Location() != time.UTC {
		t.Errorf("next must be normalized to UTC, got %s", next.Location())
	}
}

func TestCalculateNextDueDefaultsToKST(t *testing.T) {
	sched := &domain.CampaignSchedule{CronExpr: "30 18 * * *"}

	next, err := CalculateNextDue(sched, tickNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 11, 10, 18, 30, 0, 0, kst.Location)
	if !next.Equal(want) {
		t.Errorf("next = %s, want %s (18:30 Korean time)", next, want)
	}
}

func TestCalculateNextDueInterval(t *testing.T) {
	sched := &domain.CampaignSchedule{IntervalSec: 900}

	next, err := CalculateNextDue(sched, tickNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := tickNow.Add(15 * time.Minute); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}
}

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"0 9 * * *", "*/5 * * * *", "30 18 * * 1-5", "0 0 1 * *"}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("ValidateCronExpr(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{"", "not a cron", "0 9 * *", "0 9 * * * *", "61 * * * *"}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("ValidateCronExpr(%q) = nil, want error", expr)
		}
	}
}
