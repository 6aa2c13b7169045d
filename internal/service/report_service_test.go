package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/cbta-eval-api/internal/dto"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	"github.com/noah-isme/cbta-eval-api/internal/repository"
	appErrors "github.com/noah-isme/cbta-eval-api/pkg/errors"
	"github.com/noah-isme/cbta-eval-api/pkg/jobs"
)

type reportRepoStub struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(ctx context.Context, job *models.ReportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *reportRepoStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *reportRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *reportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type sessionFinderStub struct {
	known map[string]bool
	err   error
}

func (s sessionFinderStub) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.known[id] {
		return nil, sql.ErrNoRows
	}
	return &models.Session{ID: id}, nil
}

func newReportServiceForTest(t *testing.T) (*ReportService, *reportRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	exportSvc, _ := newExportServiceForTest(t, &reporterStub{report: sampleSessionReport()})
	ratings := NewEvaluationService(nil, nil, nil, nil, EvaluationConfig{}, nil)
	svc := NewReportService(repo, sessionFinderStub{known: map[string]bool{"session-1": true}}, ratings, queue, exportSvc, nil, zap.NewNop(), ReportServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
	})
	return svc, repo, queue, exportSvc
}

func TestReportServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	resp, err := svc.CreateJob(context.Background(), dto.GenerateReportRequest{
		SessionID:     "session-1",
		Format:        models.ReportFormatXLSX,
		SafetyRatings: map[string]int{"Ana": 4},
	}, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, reportJobType, queue.jobs[0].Type)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)

	stored := repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "session-1", stored.SessionID)
	assert.Equal(t, "user-1", stored.CreatedBy)
	assert.Equal(t, map[string]int{"Ana": 4}, stored.Params.SafetyRatings)
}

func TestReportServiceCreateJobRejections(t *testing.T) {
	cases := []struct {
		name string
		req  dto.GenerateReportRequest
		want *appErrors.Error
	}{
		{"missing session", dto.GenerateReportRequest{Format: models.ReportFormatCSV}, appErrors.ErrValidation},
		{"bad format", dto.GenerateReportRequest{SessionID: "session-1", Format: "docx"}, appErrors.ErrValidation},
		{"rating out of range", dto.GenerateReportRequest{SessionID: "session-1", Format: models.ReportFormatCSV, SafetyRatings: map[string]int{"Ana": 6}}, appErrors.ErrOutOfRangeRating},
		{"unknown session", dto.GenerateReportRequest{SessionID: "nope", Format: models.ReportFormatCSV}, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, queue, _ := newReportServiceForTest(t)
			_, err := svc.CreateJob(context.Background(), tc.req, "user-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, repo.jobs)
			assert.Empty(t, queue.jobs)
		})
	}
}

func TestReportServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	queue.err = errors.New("queue down")
	_, err := svc.CreateJob(context.Background(), dto.GenerateReportRequest{SessionID: "session-1", Format: models.ReportFormatCSV}, "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceGetStatus(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	msg := "boom"
	job := &models.ReportJob{
		ID:           "job-1",
		SessionID:    "session-1",
		Params:       models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:       models.ReportStatusFailed,
		Progress:     100,
		CreatedBy:    "owner",
		ErrorMessage: &msg,
	}
	repo.jobs[job.ID] = job

	resp, err := svc.GetStatus(context.Background(), job.ID, "owner", models.RoleInstructor)
	require.NoError(t, err)
	assert.Equal(t, job.Status, resp.Status)
	assert.Equal(t, "session-1", resp.SessionID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", *resp.Error)

	_, err = svc.GetStatus(context.Background(), job.ID, "other", models.RoleInstructor)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.GetStatus(context.Background(), job.ID, "admin", models.RoleAdmin)
	assert.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "missing", "admin", models.RoleAdmin)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestReportServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-download",
		SessionID: "session-1",
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: "owner",
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	assert.Equal(t, models.ReportFormatCSV, download.Format)

	_, err = svc.ResolveDownload(context.Background(), "garbage")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	job.Status = models.ReportStatusProcessing
	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	repo.jobs["a"] = &models.ReportJob{ID: "a", Status: models.ReportStatusQueued}
	repo.jobs["b"] = &models.ReportJob{ID: "b", Status: models.ReportStatusFinished}

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "a", queue.jobs[0].ID)
}

func TestReportServiceCleanupExpired(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := &models.ReportJob{ID: "old", SessionID: "session-1", Params: models.ReportJobParams{Format: models.ReportFormatCSV}, Status: models.ReportStatusFinished}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	finished := time.Now().Add(-2 * time.Hour)
	job.ResultURL = &result.URL
	job.FinishedAt = &finished

	svc.cleanupExpired(context.Background())

	_, err = exportSvc.Open(result.RelativePath)
	assert.Error(t, err)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedJobRepo() *reportRepoStub {
	return &reportRepoStub{
		jobs: map[string]*models.ReportJob{
			"job-1": {
				ID:        "job-1",
				SessionID: "session-1",
				Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
				Status:    models.ReportStatusQueued,
				CreatedBy: "owner",
			},
		},
	}
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := queuedJobRepo()
	metrics := NewMetricsService()
	worker := NewReportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}, metrics, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/v1/export/token", *job.ResultURL)
	assert.NotNil(t, job.FinishedAt)
}

func TestReportWorkerHandleFailureRequeues(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.Error(t, err)
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "boom", *job.ErrorMessage)
}

func TestReportWorkerExhaustedMarksFailed(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{}, nil, zap.NewNop())

	worker.Exhausted(context.Background(), jobs.Job{ID: "job-1", Attempt: 4}, errors.New("boom"))
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFailed, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.NotNil(t, job.FinishedAt)
}

func TestReportWorkerWithQueueExhaustion(t *testing.T) {
	repo := queuedJobRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, zap.NewNop())
	done := make(chan struct{})
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnExhausted: func(ctx context.Context, job jobs.Job, err error) {
			worker.Exhausted(ctx, job, err)
			close(done)
		},
	})
	queue.Start(context.Background())
	defer queue.Stop()

	require.NoError(t, queue.Enqueue(jobs.Job{ID: "job-1", Type: reportJobType}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not exhausted")
	}
	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFailed, job.Status)
}
