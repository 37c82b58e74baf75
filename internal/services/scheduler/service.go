// Package scheduler runs recurring deployments off cron expressions
// persisted in the database.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"sitedeploy/internal/models"
	"sitedeploy/internal/services/deploy"
)

// jobTimeout caps one scheduled deployment run.
const jobTimeout = 30 * time.Minute

// Runner executes one deployment. Each invocation gets a fresh
// orchestrator; the scheduler never runs two deployments for the same job
// concurrently because cron skips a tick while the previous run of that
// entry is still registered synchronously.
type Runner interface {
	Run(ctx context.Context, opts deploy.Options) *deploy.Result
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context, opts deploy.Options) *deploy.Result

func (f RunnerFunc) Run(ctx context.Context, opts deploy.Options) *deploy.Result {
	return f(ctx, opts)
}

// Service manages scheduled deployments: persistence, cron registration
// and execution.
type Service struct {
	db     *gorm.DB
	ctx    context.Context
	cron   *cron.Cron
	runner Runner
	log    zerolog.Logger

	jobsMu sync.RWMutex
	jobs   map[string]cron.EntryID // job ID -> cron entry ID
}

// NewService builds a scheduler. ctx bounds every job execution.
func NewService(db *gorm.DB, ctx context.Context, runner Runner, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		ctx:    ctx,
		cron:   cron.New(cron.WithSeconds()),
		runner: runner,
		log:    log,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Start migrates the table, loads enabled jobs and starts the cron loop.
func (s *Service) Start() error {
	if err := s.db.AutoMigrate(&models.ScheduledDeployment{}); err != nil {
		return fmt.Errorf("failed to migrate scheduled_deployments table: %w", err)
	}

	s.cron.Start()

	var jobs []models.ScheduledDeployment
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled deployments: %w", err)
	}
	for i := range jobs {
		job := &jobs[i]
		if err := s.scheduleJob(job); err != nil {
			s.log.Warn().Str("job", job.Name).Err(err).Msg("failed to schedule deployment")
			continue
		}
		s.log.Info().Str("job", job.Name).Str("cron", job.Cron).Msg("scheduled deployment registered")
	}
	s.log.Info().Int("jobs", len(jobs)).Msg("scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.log.Info().Msg("scheduler stopped")
	}
}

// ListJobs returns every scheduled deployment, newest first, with the next
// fire time computed from the stored cron expression.
func (s *Service) ListJobs() ([]JobListResponse, error) {
	var jobs []models.ScheduledDeployment
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list scheduled deployments: %w", err)
	}
	responses := make([]JobListResponse, len(jobs))
	for i := range jobs {
		responses[i] = toJobListResponse(&jobs[i])
	}
	return responses, nil
}

// UpsertJob creates or updates a scheduled deployment keyed by name and
// (re)registers it with cron. Returns the job ID.
func (s *Service) UpsertJob(req UpsertJobRequest) (string, error) {
	if req.Name == "" || req.ProfileName == "" || req.Cron == "" {
		return "", fmt.Errorf("name, profile_name, and cron are required")
	}
	normalized, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}

	var job models.ScheduledDeployment
	result := s.db.Where("name = ?", req.Name).First(&job)
	if result.Error != nil {
		if result.Error != gorm.ErrRecordNotFound {
			return "", fmt.Errorf("failed to query scheduled deployment: %w", result.Error)
		}
		job = models.ScheduledDeployment{
			ID:   uuid.New().String(),
			Name: req.Name,
		}
	}

	job.ProfileName = req.ProfileName
	job.Cron = normalized
	job.Enabled = req.Enabled
	job.AppOffline = req.AppOffline
	job.Cleanup = req.Cleanup

	if result.Error == gorm.ErrRecordNotFound {
		if err := s.db.Create(&job).Error; err != nil {
			return "", fmt.Errorf("failed to create scheduled deployment: %w", err)
		}
	} else {
		if err := s.db.Save(&job).Error; err != nil {
			return "", fmt.Errorf("failed to update scheduled deployment: %w", err)
		}
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule deployment: %w", err)
	}
	return job.ID, nil
}

// DeleteJob unregisters and removes a scheduled deployment by ID.
func (s *Service) DeleteJob(jobID string) error {
	s.jobsMu.Lock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
	s.jobsMu.Unlock()

	if err := s.db.Delete(&models.ScheduledDeployment{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete scheduled deployment: %w", err)
	}
	return nil
}

// scheduleJob registers an enabled job with cron, replacing any previous
// entry for the same ID.
func (s *Service) scheduleJob(job *models.ScheduledDeployment) error {
	s.jobsMu.Lock()
	if entryID, exists := s.jobs[job.ID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, job.ID)
	}
	s.jobsMu.Unlock()

	if !job.Enabled {
		return nil
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(job.Cron, func() {
		s.executeJob(jobID)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron entry: %w", err)
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = entryID
	s.jobsMu.Unlock()
	return nil
}

// rescheduleJob reloads a job from the database and re-registers it; a
// deleted job is dropped from cron.
func (s *Service) rescheduleJob(jobID string) error {
	var job models.ScheduledDeployment
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.jobsMu.Lock()
			if entryID, exists := s.jobs[jobID]; exists {
				s.cron.Remove(entryID)
				delete(s.jobs, jobID)
			}
			s.jobsMu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to load scheduled deployment: %w", err)
	}
	return s.scheduleJob(&job)
}

// executeJob runs one scheduled deployment and records the outcome on the
// job row.
func (s *Service) executeJob(jobID string) {
	var job models.ScheduledDeployment
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		s.log.Error().Str("job", jobID).Err(err).Msg("failed to load scheduled deployment")
		return
	}

	s.log.Info().Str("job", job.Name).Str("profile", job.ProfileName).Msg("running scheduled deployment")

	cleanup := deploy.CleanupNone
	if job.Cleanup {
		cleanup = deploy.CleanupFull
	}
	opts := deploy.Options{
		ProfileName:  job.ProfileName,
		AppOffline:   job.AppOffline,
		Cleanup:      cleanup,
		PreConfirmed: true,
	}

	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()
	result := s.runner.Run(ctx, opts)

	status := "failed"
	switch {
	case result == nil:
		s.log.Error().Str("job", job.Name).Msg("scheduled deployment returned no result")
	case result.Cancelled:
		status = "cancelled"
	case result.Success:
		status = "success"
	}

	now := time.Now()
	job.LastRunAt = &now
	job.LastStatus = status
	if err := s.db.Save(&job).Error; err != nil {
		s.log.Warn().Str("job", job.Name).Err(err).Msg("failed to update scheduled deployment run status")
	}

	if result != nil {
		s.log.Info().
			Str("job", job.Name).
			Str("status", status).
			Int("uploaded", result.UploadedFiles).
			Int("failed", result.FailedFiles).
			Dur("duration", result.Duration()).
			Msg("scheduled deployment finished")
	}
}

// normalizeCron converts a standard 5-field cron expression to the 6-field
// format the scheduler stores by prepending a zero seconds field. A valid
// 6-field expression passes through unchanged.
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	fields := strings.Fields(cronExpr)

	if len(fields) == 6 {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 6-field cron expression: %w", err)
		}
		return cronExpr, nil
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

func toJobListResponse(job *models.ScheduledDeployment) JobListResponse {
	resp := JobListResponse{
		ID:          job.ID,
		Name:        job.Name,
		ProfileName: job.ProfileName,
		Cron:        job.Cron,
		Enabled:     job.Enabled,
		AppOffline:  job.AppOffline,
		Cleanup:     job.Cleanup,
		LastStatus:  job.LastStatus,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
	if job.LastRunAt != nil {
		lastRun := job.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &lastRun
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if schedule, err := parser.Parse(job.Cron); err == nil {
		next := schedule.Next(time.Now()).Format(time.RFC3339)
		resp.NextRun = &next
	}
	return resp
}
