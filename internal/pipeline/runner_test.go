package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pressroom/internal/collab"
	"pressroom/internal/models"
)

// --- fakes ---

type fakeExecStore struct {
	mu        sync.Mutex
	running   []string
	recorded  []models.Action
	performed [][]models.Action
}

func (f *fakeExecStore) MarkRunning(execID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = append(f.running, execID)
	return nil
}

func (f *fakeExecStore) RecordActionResult(_ string, action models.Action, _ string, performed []models.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, action)
	cp := make([]models.Action, len(performed))
	copy(cp, performed)
	f.performed = append(f.performed, cp)
	return nil
}

type finalizeCall struct {
	status  models.ExecutionStatus
	errMsg  string
	nextRun *time.Time
}

type fakeJobStore struct {
	mu    sync.Mutex
	calls []finalizeCall
}

func (f *fakeJobStore) FinalizeRun(_ *models.AutomationJob, _ *models.JobExecution, status models.ExecutionStatus, execErr string, _ time.Time, nextRun *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, finalizeCall{status: status, errMsg: execErr, nextRun: nextRun})
	return nil
}

func (f *fakeJobStore) last(t *testing.T) finalizeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls, "FinalizeRun was never called")
	return f.calls[len(f.calls)-1]
}

type fakeScraper struct {
	result *collab.ScrapeResult
	err    error
}

func (f *fakeScraper) Scrape(context.Context, string) (*collab.ScrapeResult, error) {
	return f.result, f.err
}

type fakeGenerator struct {
	result *collab.GenerateResult
	err    error
}

func (f *fakeGenerator) Generate(context.Context, string, collab.GenerateSettings) (*collab.GenerateResult, error) {
	return f.result, f.err
}

type fakeSender struct {
	result       *collab.SendResult
	err          error
	gotDraftID   string
	gotTestMode  bool
	gotWorkspace string
}

func (f *fakeSender) Send(_ context.Context, newsletterID, workspaceID string, testMode bool) (*collab.SendResult, error) {
	f.gotDraftID = newsletterID
	f.gotWorkspace = workspaceID
	f.gotTestMode = testMode
	return f.result, f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) ExecutionFailed(*models.AutomationJob, *models.JobExecution, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

// --- helpers ---

func testJob(t *testing.T, actions ...models.Action) *models.AutomationJob {
	t.Helper()
	job := &models.AutomationJob{
		ID:           7,
		WorkspaceID:  "ws-1",
		Name:         "daily digest",
		ScheduleType: models.ScheduleDaily,
		ScheduleTime: "08:00",
		Timezone:     "UTC",
		Status:       models.JobStatusActive,
		IsEnabled:    true,
	}
	require.NoError(t, job.SetActionList(actions))
	return job
}

func testExec(job *models.AutomationJob, testMode bool) *models.JobExecution {
	return &models.JobExecution{
		ID:          "exec-1",
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		Status:      models.ExecutionPending,
		TestMode:    testMode,
	}
}

func newTestRunner(deps Deps) (*Runner, *fakeExecStore, *fakeJobStore) {
	execs := &fakeExecStore{}
	jobs := &fakeJobStore{}
	deps.Executions = execs
	deps.Jobs = jobs
	r := NewRunner(deps, time.Minute, zap.NewNop())
	r.clock = func() time.Time { return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC) }
	return r, execs, jobs
}

// --- tests ---

func TestRun_FullChainCompletes(t *testing.T) {
	sender := &fakeSender{result: &collab.SendResult{SentCount: 120}}
	r, execs, jobs := newTestRunner(Deps{
		Scraper:   &fakeScraper{result: &collab.ScrapeResult{TotalItems: 12}},
		Generator: &fakeGenerator{result: &collab.GenerateResult{DraftID: "draft-42"}},
		Sender:    sender,
	})

	job := testJob(t, models.ActionScrape, models.ActionGenerate, models.ActionSend)
	exec := testExec(job, false)

	status := r.Run(context.Background(), job, exec)

	assert.Equal(t, models.ExecutionCompleted, status)
	assert.Equal(t, []string{"exec-1"}, execs.running)
	assert.Equal(t, []models.Action{models.ActionScrape, models.ActionGenerate, models.ActionSend}, execs.recorded)
	assert.Equal(t, "draft-42", sender.gotDraftID, "the generated draft flows into send")
	assert.Equal(t, "ws-1", sender.gotWorkspace)

	call := jobs.last(t)
	assert.Equal(t, models.ExecutionCompleted, call.status)
	assert.Empty(t, call.errMsg)
	require.NotNil(t, call.nextRun, "active enabled jobs get a fresh next_run_at")
	assert.WithinDuration(t, time.Date(2026, 1, 16, 8, 0, 0, 0, time.UTC), *call.nextRun, 0)
}

func TestRun_HardFailureAbortsChain(t *testing.T) {
	notifier := &fakeNotifier{}
	r, execs, jobs := newTestRunner(Deps{
		Scraper:   &fakeScraper{err: errors.New("scraper unreachable")},
		Generator: &fakeGenerator{result: &collab.GenerateResult{DraftID: "never"}},
		Sender:    &fakeSender{result: &collab.SendResult{}},
		Notifier:  notifier,
	})

	job := testJob(t, models.ActionScrape, models.ActionGenerate, models.ActionSend)
	status := r.Run(context.Background(), job, testExec(job, false))

	assert.Equal(t, models.ExecutionFailed, status)
	assert.Equal(t, []models.Action{models.ActionScrape}, execs.recorded,
		"generate and send never run after a hard scrape failure")

	call := jobs.last(t)
	assert.Equal(t, models.ExecutionFailed, call.status)
	assert.Contains(t, call.errMsg, "scraper unreachable")
	assert.Equal(t, 1, notifier.calls, "hard failures alert the operator")
}

func TestRun_SoftFailureContinuesAsPartial(t *testing.T) {
	notifier := &fakeNotifier{}
	r, execs, jobs := newTestRunner(Deps{
		Scraper:   &fakeScraper{result: &collab.ScrapeResult{TotalItems: 0}},
		Generator: &fakeGenerator{result: &collab.GenerateResult{DraftID: "draft-1"}},
		Sender:    &fakeSender{result: &collab.SendResult{SentCount: 3}},
		Notifier:  notifier,
	})

	job := testJob(t, models.ActionScrape, models.ActionGenerate, models.ActionSend)
	status := r.Run(context.Background(), job, testExec(job, false))

	assert.Equal(t, models.ExecutionPartial, status)
	assert.Equal(t, []models.Action{models.ActionScrape, models.ActionGenerate, models.ActionSend}, execs.recorded,
		"an empty scrape is a soft failure, the chain keeps going")

	call := jobs.last(t)
	assert.Equal(t, models.ExecutionPartial, call.status)
	assert.Empty(t, call.errMsg)
	assert.Equal(t, 0, notifier.calls, "partial runs do not alert")
}

func TestRun_SoftFailureOnLastAction(t *testing.T) {
	r, execs, jobs := newTestRunner(Deps{
		Scraper:   &fakeScraper{result: &collab.ScrapeResult{TotalItems: 5}},
		Generator: &fakeGenerator{result: &collab.GenerateResult{DraftID: "draft-1"}},
		Sender:    &fakeSender{err: collab.ErrNoContent},
	})

	job := testJob(t, models.ActionScrape, models.ActionGenerate, models.ActionSend)
	status := r.Run(context.Background(), job, testExec(job, false))

	assert.Equal(t, models.ExecutionPartial, status)
	require.Len(t, execs.performed, 3)
	assert.Len(t, execs.performed[2], 3, "actions_performed includes the soft-failed action")
	assert.Equal(t, models.ExecutionPartial, jobs.last(t).status)
}

func TestRun_TestModePassesThrough(t *testing.T) {
	sender := &fakeSender{result: &collab.SendResult{SentCount: 1, TestRecipient: "ops@example.com"}}
	r, _, _ := newTestRunner(Deps{
		Scraper:   &fakeScraper{result: &collab.ScrapeResult{TotalItems: 2}},
		Generator: &fakeGenerator{result: &collab.GenerateResult{DraftID: "draft-9"}},
		Sender:    sender,
	})

	job := testJob(t, models.ActionScrape, models.ActionGenerate, models.ActionSend)
	r.Run(context.Background(), job, testExec(job, true))

	assert.True(t, sender.gotTestMode)
}

func TestRun_PausedJobGetsNoNextRun(t *testing.T) {
	r, _, jobs := newTestRunner(Deps{
		Scraper:   &fakeScraper{result: &collab.ScrapeResult{TotalItems: 2}},
		Generator: &fakeGenerator{result: &collab.GenerateResult{DraftID: "draft-9"}},
		Sender:    &fakeSender{result: &collab.SendResult{}},
	})

	// Run-now on a paused job: the run happens but no reschedule.
	job := testJob(t, models.ActionScrape, models.ActionGenerate, models.ActionSend)
	job.Status = models.JobStatusPaused
	status := r.Run(context.Background(), job, testExec(job, false))

	assert.Equal(t, models.ExecutionCompleted, status)
	assert.Nil(t, jobs.last(t).nextRun)
}

func TestRun_EvaluatorFailureRetriesOnLaterTick(t *testing.T) {
	r, _, jobs := newTestRunner(Deps{
		Scraper:   &fakeScraper{result: &collab.ScrapeResult{TotalItems: 2}},
		Generator: &fakeGenerator{result: &collab.GenerateResult{DraftID: "d"}},
		Sender:    &fakeSender{result: &collab.SendResult{}},
	})

	job := testJob(t, models.ActionScrape)
	job.Timezone = "Mars/Olympus"
	status := r.Run(context.Background(), job, testExec(job, false))

	// The run itself succeeded; only the reschedule failed. A nil nextRun
	// tells the store to keep the previous next_run_at so the job is
	// retried on a later tick instead of dropping out of evaluation.
	assert.Equal(t, models.ExecutionCompleted, status)
	call := jobs.last(t)
	assert.Nil(t, call.nextRun)
	assert.Contains(t, call.errMsg, "next run computation failed")
}

type slowScraper struct {
	d time.Duration
}

func (s slowScraper) Scrape(context.Context, string) (*collab.ScrapeResult, error) {
	time.Sleep(s.d)
	return &collab.ScrapeResult{TotalItems: 1}, nil
}

func TestGo_DrainWaitsForDispatchedRuns(t *testing.T) {
	r, _, jobs := newTestRunner(Deps{
		Scraper:   slowScraper{d: 20 * time.Millisecond},
		Generator: &fakeGenerator{},
		Sender:    &fakeSender{},
	})

	job := testJob(t, models.ActionScrape)
	r.Go(context.Background(), job, testExec(job, false))
	r.Drain()

	// Drain returns only after the dispatched run has been finalized.
	assert.Equal(t, models.ExecutionCompleted, jobs.last(t).status)
}

type panickyScraper struct{}

func (panickyScraper) Scrape(context.Context, string) (*collab.ScrapeResult, error) {
	panic("scraper blew up")
}

func TestRun_PanicFinalizesAsFailed(t *testing.T) {
	r, _, jobs := newTestRunner(Deps{
		Scraper:   panickyScraper{},
		Generator: &fakeGenerator{},
		Sender:    &fakeSender{},
	})

	job := testJob(t, models.ActionScrape)
	status := r.Run(context.Background(), job, testExec(job, false))

	assert.Equal(t, models.ExecutionFailed, status)
	call := jobs.last(t)
	assert.Equal(t, models.ExecutionFailed, call.status)
	assert.Contains(t, call.errMsg, "panic")
}

func TestRun_InvalidActionListFailsFast(t *testing.T) {
	r, execs, jobs := newTestRunner(Deps{
		Scraper:   &fakeScraper{},
		Generator: &fakeGenerator{},
		Sender:    &fakeSender{},
	})

	job := testJob(t, models.ActionScrape)
	job.Actions = "{not json"
	status := r.Run(context.Background(), job, testExec(job, false))

	assert.Equal(t, models.ExecutionFailed, status)
	assert.Empty(t, execs.recorded)
	assert.Contains(t, jobs.last(t).errMsg, "invalid action list")
}
