package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pressroom/internal/models"
	"pressroom/internal/repository"
)

type fakeJobSource struct {
	mu       sync.Mutex
	due      []models.AutomationJob
	dueErr   error
	admitted map[uint]bool
	admits   int
	rejects  int
}

func newFakeJobSource(due ...models.AutomationJob) *fakeJobSource {
	return &fakeJobSource{due: due, admitted: make(map[uint]bool)}
}

func (f *fakeJobSource) Due(time.Time) ([]models.AutomationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, f.dueErr
}

// AdmitRun mirrors the database guard: the first claim per job wins, every
// later one loses until the flag is cleared.
func (f *fakeJobSource) AdmitRun(job *models.AutomationJob, testMode bool) (*models.JobExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.admitted[job.ID] {
		f.rejects++
		return nil, repository.ErrJobAlreadyRunning
	}
	f.admitted[job.ID] = true
	f.admits++
	return &models.JobExecution{
		ID:          "exec-for-" + job.Name,
		JobID:       job.ID,
		WorkspaceID: job.WorkspaceID,
		Status:      models.ExecutionPending,
		TestMode:    testMode,
	}, nil
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	slow time.Duration
}

func (f *fakeRunner) Run(_ context.Context, _ *models.AutomationJob, exec *models.JobExecution) models.ExecutionStatus {
	if f.slow > 0 {
		time.Sleep(f.slow)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, exec.ID)
	return models.ExecutionCompleted
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func dueJob(id uint, name string) models.AutomationJob {
	return models.AutomationJob{
		ID:          id,
		WorkspaceID: "ws-1",
		Name:        name,
		Status:      models.JobStatusActive,
		IsEnabled:   true,
	}
}

func runScheduler(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	err := s.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_AdmitsEachDueJobOnce(t *testing.T) {
	source := newFakeJobSource(dueJob(1, "digest"), dueJob(2, "weekly-roundup"))
	runner := &fakeRunner{}
	s := New(Config{TickInterval: 5 * time.Millisecond}, source, runner, zap.NewNop())

	runScheduler(t, s, 60*time.Millisecond)

	// The guard admits each job exactly once even though the jobs stay "due"
	// on every tick; later ticks lose the claim.
	assert.Equal(t, 2, source.admits)
	assert.Greater(t, source.rejects, 0, "repeat ticks must hit the guard")
	assert.Equal(t, 2, runner.count())
}

func TestScheduler_ConcurrentDuplicateAdmissionsLose(t *testing.T) {
	source := newFakeJobSource(dueJob(1, "digest"))
	job := source.due[0]

	var wg sync.WaitGroup
	var admitted, rejected int
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := source.AdmitRun(&job, false)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, repository.ErrJobAlreadyRunning) {
				rejected++
				return
			}
			admitted++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "exactly one concurrent admission wins")
	assert.Equal(t, 7, rejected)
}

func TestScheduler_DrainsInFlightRunsOnShutdown(t *testing.T) {
	source := newFakeJobSource(dueJob(1, "digest"))
	runner := &fakeRunner{slow: 30 * time.Millisecond}
	s := New(Config{TickInterval: 5 * time.Millisecond}, source, runner, zap.NewNop())

	// Cancel while the run is still sleeping; Run must wait for it.
	runScheduler(t, s, 15*time.Millisecond)

	assert.Equal(t, 1, runner.count(), "shutdown waits for in-flight executions")
}

func TestScheduler_DueScanErrorSkipsTick(t *testing.T) {
	source := newFakeJobSource()
	source.dueErr = errors.New("db gone")
	runner := &fakeRunner{}
	s := New(Config{TickInterval: 5 * time.Millisecond}, source, runner, zap.NewNop())

	runScheduler(t, s, 30*time.Millisecond)

	assert.Zero(t, runner.count())
}

func TestScheduler_DefaultTickInterval(t *testing.T) {
	s := New(Config{}, newFakeJobSource(), &fakeRunner{}, zap.NewNop())
	assert.Equal(t, 30*time.Second, s.cfg.TickInterval)
}
