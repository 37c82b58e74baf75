// Package deploy contains the deployment orchestrator: the state machine
// that sequences stages, delegates uploads to the transfer engine, and
// reports stage and progress notifications.
package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sitedeploy/internal/build"
	"sitedeploy/internal/fileset"
	"sitedeploy/internal/models"
	"sitedeploy/internal/remote"
	"sitedeploy/internal/services/retry"
	"sitedeploy/internal/services/transfer"
)

// appOfflineFile is the maintenance marker uploaded to the remote root
// while files are being replaced.
const appOfflineFile = "app_offline.htm"

const appOfflineContent = `<!DOCTYPE html>
<html>
<head><title>Maintenance</title></head>
<body><h1>Site under maintenance</h1><p>A deployment is in progress. Please check back shortly.</p></body>
</html>
`

// ProfileStore loads a connection profile and its decrypted password.
type ProfileStore interface {
	Load(name string) (*models.ConnectionProfile, string, error)
}

// HistoryRecorder persists one record per deployment run.
type HistoryRecorder interface {
	Record(rec models.DeploymentRecord) error
}

// Confirmer is asked once, after the pre-deployment summary, unless the
// deployment is pre-confirmed. Returning false cancels the deployment.
type Confirmer func(State) bool

// Orchestrator runs the deployment state machine. One Orchestrator runs
// one deployment at a time.
type Orchestrator struct {
	profiles ProfileStore
	builder  build.Builder
	factory  remote.Factory
	history  HistoryRecorder
	confirm  Confirmer
	log      zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	stageListeners    []func(StageChange)
	progressListeners []func(State)
}

func NewOrchestrator(profiles ProfileStore, builder build.Builder, factory remote.Factory, history HistoryRecorder, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		profiles: profiles,
		builder:  builder,
		factory:  factory,
		history:  history,
		log:      log,
	}
}

// OnStageChange registers a stage-changed subscriber. Callbacks run
// synchronously on the deployment goroutine and must not block.
func (o *Orchestrator) OnStageChange(fn func(StageChange)) {
	o.stageListeners = append(o.stageListeners, fn)
}

// OnProgress registers a progress-updated subscriber. Callbacks may run on
// transfer worker goroutines and must not block.
func (o *Orchestrator) OnProgress(fn func(State)) {
	o.progressListeners = append(o.progressListeners, fn)
}

// SetConfirmer installs the pre-deployment confirmation hook.
func (o *Orchestrator) SetConfirmer(fn Confirmer) { o.confirm = fn }

// Cancel requests cooperative cancellation. The orchestrator checks the
// flag between stages; the transfer engine observes the shared context
// inside its worker loops. In-flight single-file transfers are never
// force-terminated.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	o.state.CancelRequested = true
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Execute runs the full deployment sequence and always returns a terminal
// Result. Failures are reported in the Result, not as a separate error.
func (o *Orchestrator) Execute(ctx context.Context, opts Options) *Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	now := time.Now()
	o.mu.Lock()
	o.cancel = cancel
	o.state = State{
		ID:             uuid.New().String(),
		Stage:          StageNotStarted,
		StartedAt:      now,
		StageStartedAt: now,
		ProfileName:    opts.ProfileName,
		ProjectPath:    opts.ProjectPath,
	}
	o.mu.Unlock()

	result := o.run(ctx, opts)

	// History recording for failed and cancelled runs is best-effort and
	// happens after the terminal stage; the success path records inside
	// run() so its warning lands in the Result.
	if result.FinalStage != StageCompleted && !opts.DryRun {
		if err := o.history.Record(o.historyRecord(result)); err != nil {
			o.log.Warn().Err(err).Msg("failed to record deployment history")
		}
	}
	return result
}

func (o *Orchestrator) run(ctx context.Context, opts Options) *Result {
	// Stage 1: load profile.
	o.setStage(StageLoadingProfile)
	prof, password, err := o.profiles.Load(opts.ProfileName)
	if err != nil {
		return o.fail(fmt.Sprintf("failed to load profile %q: %v", opts.ProfileName, err), err)
	}
	o.mu.Lock()
	o.state.Host = prof.ServerURL
	o.mu.Unlock()

	connCfg := remote.ConnectionConfig{
		ServerURL:  prof.ServerURL,
		Username:   prof.Username,
		Password:   password,
		RemoteRoot: prof.RemoteRoot,
		Timeout:    opts.ConnectTimeout,
	}

	// Stage 2: validate we can reach and authenticate against the server.
	// Connection attempts go through the transient-aware retry handler.
	if cancelled := o.checkCancelled(ctx); cancelled != nil {
		return cancelled
	}
	o.setStage(StageValidatingConnection)
	handler := retry.NewHandler(retry.DefaultPolicy(), o.log)
	var session remote.Client
	err = handler.Execute(ctx, "connect", func(ctx context.Context) error {
		c, err := o.factory.NewClient(connCfg)
		if err != nil {
			return err
		}
		if err := c.Connect(ctx); err != nil {
			c.Close()
			return err
		}
		session = c
		return nil
	})
	if err != nil {
		return o.fail(fmt.Sprintf("failed to connect to %s: %v", prof.ServerURL, err), err)
	}
	defer session.Close()

	// Stage 3: build. Build failures are never retried.
	if cancelled := o.checkCancelled(ctx); cancelled != nil {
		return cancelled
	}
	o.setStage(StageBuildingProject)
	outputPath := opts.OutputPath
	if outputPath == "" {
		dir, err := os.MkdirTemp("", "sitedeploy-build-*")
		if err != nil {
			return o.fail(fmt.Sprintf("failed to create build output directory: %v", err), err)
		}
		defer os.RemoveAll(dir)
		outputPath = dir
	}
	buildRes, err := o.builder.Build(ctx, opts.ProjectPath, outputPath, opts.Configuration)
	if err != nil {
		return o.fail(fmt.Sprintf("build failed: %v", err), err)
	}
	if !buildRes.Success {
		berr := &build.Error{Errors: buildRes.Errors}
		return o.fail(fmt.Sprintf("build failed: %s", strings.Join(buildRes.Errors, "; ")), berr)
	}
	if buildRes.OutputPath != "" {
		outputPath = buildRes.OutputPath
	}

	// Stage 4: the session proper. ValidatingConnection proved the
	// credentials; this stage marks the connection the remaining stages
	// lease for listing, app-offline handling and cleanup.
	if cancelled := o.checkCancelled(ctx); cancelled != nil {
		return cancelled
	}
	o.setStage(StageConnectingToServer)
	if !session.IsConnected() {
		err = handler.Execute(ctx, "reconnect", func(ctx context.Context) error {
			return session.Connect(ctx)
		})
		if err != nil {
			return o.fail(fmt.Sprintf("failed to reconnect to %s: %v", prof.ServerURL, err), err)
		}
	}

	// Stage 5: scan output and publish the pre-deployment summary.
	if cancelled := o.checkCancelled(ctx); cancelled != nil {
		return cancelled
	}
	o.setStage(StagePreDeploymentSummary)
	tasks, err := fileset.Scan(outputPath, opts.ExcludePatterns)
	if err != nil {
		return o.fail(fmt.Sprintf("failed to scan build output: %v", err), err)
	}
	o.mu.Lock()
	o.state.TotalFiles = len(tasks)
	o.state.TotalBytes = fileset.TotalBytes(tasks)
	summary := o.snapshotLocked()
	o.mu.Unlock()
	o.publishProgress(summary)
	o.log.Info().Int("files", summary.TotalFiles).Int64("bytes", summary.TotalBytes).Msg("pre-deployment summary")

	if o.confirm != nil && !opts.PreConfirmed {
		if !o.confirm(summary) {
			return o.cancelled()
		}
	}
	if opts.DryRun {
		o.log.Info().Msg("dry run: skipping upload and cleanup")
		return o.complete()
	}

	// Stage 6: upload the maintenance marker, when enabled.
	if opts.AppOffline {
		if cancelled := o.checkCancelled(ctx); cancelled != nil {
			return cancelled
		}
		o.setStage(StageUploadingAppOffline)
		if err := o.uploadAppOffline(ctx, session); err != nil {
			return o.fail(fmt.Sprintf("failed to upload %s: %v", appOfflineFile, err), err)
		}
	}

	// Stage 7: hand the task list to the transfer engine.
	if cancelled := o.checkCancelled(ctx); cancelled != nil {
		return cancelled
	}
	o.setStage(StageUploadingFiles)
	engine, err := transfer.NewEngine(o.factory, transfer.Config{
		MaxConcurrency: opts.MaxConcurrency,
		MaxRetries:     opts.MaxRetries,
		Connection:     connCfg,
	}, o.log)
	if err != nil {
		return o.fail(fmt.Sprintf("invalid transfer configuration: %v", err), err)
	}
	defer engine.Close()

	uploaded := make(map[string]struct{}, len(tasks))
	var uploadedMu sync.Mutex
	engine.OnResult(func(r transfer.Result) {
		if r.Success {
			uploadedMu.Lock()
			uploaded[r.Task.RemotePath] = struct{}{}
			uploadedMu.Unlock()
			return
		}
		o.mu.Lock()
		o.state.FailedPaths = append(o.state.FailedPaths, r.Task.RemotePath)
		o.mu.Unlock()
	})
	engine.OnProgress(func(p transfer.Progress) {
		o.mu.Lock()
		o.state.CompletedFiles = p.CompletedFiles
		o.state.FailedFiles = p.Failed
		o.state.UploadedBytes = p.UploadedBytes
		snapshot := o.snapshotLocked()
		o.mu.Unlock()
		o.publishProgress(snapshot)
	})

	results, err := engine.UploadAll(ctx, tasks)
	engine.Close()
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled mid-upload; partial counters stay in the state.
			return o.cancelled()
		}
		return o.fail(fmt.Sprintf("upload failed: %v", err), err)
	}

	var failed int
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		// Any permanent per-file failure fails the deployment; the
		// app-offline marker is deliberately left in place so the site
		// stays offline for inspection.
		err := &StageError{Stage: StageUploadingFiles, Err: fmt.Errorf("%d of %d files failed to upload", failed, len(tasks))}
		return o.fail(err.Err.Error(), err)
	}

	// Stage 8: delete remote files no deployment owns anymore.
	if opts.Cleanup != "" && opts.Cleanup != CleanupNone {
		if cancelled := o.checkCancelled(ctx); cancelled != nil {
			return cancelled
		}
		o.setStage(StageCleaningUpObsoleteFiles)
		if err := o.cleanupObsolete(ctx, session, uploaded, opts.ExcludePatterns); err != nil {
			return o.fail(fmt.Sprintf("cleanup failed: %v", err), err)
		}
	}

	// Stage 9: remove the maintenance marker, success path only.
	if opts.AppOffline {
		if cancelled := o.checkCancelled(ctx); cancelled != nil {
			return cancelled
		}
		o.setStage(StageDeletingAppOffline)
		if err := session.DeleteFile(ctx, appOfflineFile); err != nil {
			return o.fail(fmt.Sprintf("failed to delete %s, site remains offline: %v", appOfflineFile, err), err)
		}
	}

	// Stage 10: history. Failures here are warnings, not deployment
	// failures.
	o.setStage(StageRecordingHistory)
	o.mu.Lock()
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	if err := o.history.Record(o.historyRecord(NewSuccessResult(&snapshot))); err != nil {
		o.log.Warn().Err(err).Msg("failed to record deployment history")
		o.addWarning(fmt.Sprintf("failed to record deployment history: %v", err))
	}

	return o.complete()
}

// uploadAppOffline writes the maintenance page to a temp file and uploads
// it to the remote root.
func (o *Orchestrator) uploadAppOffline(ctx context.Context, session remote.Client) error {
	tmp, err := os.CreateTemp("", "app_offline-*.htm")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(appOfflineContent); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	_, err = session.UploadFile(ctx, tmp.Name(), appOfflineFile, true, false)
	return err
}

// cleanupObsolete lists the remote tree and deletes entries no longer part
// of the uploaded set. Individual deletion failures downgrade to warnings.
func (o *Orchestrator) cleanupObsolete(ctx context.Context, session remote.Client, uploaded map[string]struct{}, excludes []string) error {
	entries, err := session.ListDirectory(ctx, "/")
	if err != nil {
		return err
	}
	// The marker file is owned by the deployment, never obsolete.
	patterns := append(append([]string(nil), excludes...), appOfflineFile)
	obsolete := fileset.Obsolete(entries, uploaded, patterns)

	o.mu.Lock()
	o.state.ObsoleteFound = len(obsolete)
	o.mu.Unlock()

	for _, p := range obsolete {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := session.DeleteFile(ctx, p); err != nil {
			o.log.Warn().Str("path", p).Err(err).Msg("failed to delete obsolete file")
			o.addWarning(fmt.Sprintf("failed to delete obsolete file %s: %v", p, err))
			continue
		}
		o.mu.Lock()
		o.state.ObsoleteDeleted++
		snapshot := o.snapshotLocked()
		o.mu.Unlock()
		o.publishProgress(snapshot)
	}
	o.log.Info().Int("found", len(obsolete)).Msg("obsolete file cleanup finished")
	return nil
}

// checkCancelled returns the cancelled result when a cancellation request
// or context cancellation is pending, nil otherwise.
func (o *Orchestrator) checkCancelled(ctx context.Context) *Result {
	o.mu.Lock()
	requested := o.state.CancelRequested
	o.mu.Unlock()
	if requested || ctx.Err() != nil {
		return o.cancelled()
	}
	return nil
}

func (o *Orchestrator) complete() *Result {
	o.finishState()
	o.setStage(StageCompleted)
	o.mu.Lock()
	s := o.snapshotLocked()
	o.mu.Unlock()
	return NewSuccessResult(&s)
}

func (o *Orchestrator) fail(message string, err error) *Result {
	o.mu.Lock()
	o.state.ErrorMessage = message
	o.mu.Unlock()
	o.finishState()
	o.setStage(StageFailed)
	o.mu.Lock()
	s := o.snapshotLocked()
	o.mu.Unlock()
	o.log.Error().Str("deployment", s.ID).Msg(message)
	return NewFailureResult(&s, "", err)
}

func (o *Orchestrator) cancelled() *Result {
	o.finishState()
	o.setStage(StageCancelled)
	o.mu.Lock()
	s := o.snapshotLocked()
	o.mu.Unlock()
	o.log.Warn().Str("deployment", s.ID).Msg("deployment cancelled")
	return NewCancelledResult(&s)
}

func (o *Orchestrator) finishState() {
	o.mu.Lock()
	now := time.Now()
	o.state.CompletedAt = &now
	o.mu.Unlock()
}

// setStage advances the state machine and fires the stage-changed
// notification synchronously.
func (o *Orchestrator) setStage(to Stage) {
	o.mu.Lock()
	from := o.state.Stage
	o.state.Stage = to
	o.state.StageStartedAt = time.Now()
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	change := StageChange{From: from, To: to, At: snapshot.StageStartedAt}
	o.log.Info().Str("deployment", snapshot.ID).Stringer("from", from).Stringer("to", to).Msg("stage changed")
	for _, fn := range o.stageListeners {
		fn(change)
	}
	o.publishProgress(snapshot)
}

func (o *Orchestrator) publishProgress(s State) {
	for _, fn := range o.progressListeners {
		fn(s)
	}
}

func (o *Orchestrator) addWarning(msg string) {
	o.mu.Lock()
	o.state.Warnings = append(o.state.Warnings, msg)
	o.mu.Unlock()
}

// snapshotLocked copies the state, including its slices, so subscribers
// never observe later mutations. Callers must hold o.mu.
func (o *Orchestrator) snapshotLocked() State {
	s := o.state
	s.Warnings = append([]string(nil), o.state.Warnings...)
	s.FailedPaths = append([]string(nil), o.state.FailedPaths...)
	return s
}

// historyRecord flattens a Result into the persisted model.
func (o *Orchestrator) historyRecord(r *Result) models.DeploymentRecord {
	o.mu.Lock()
	profileName := o.state.ProfileName
	host := o.state.Host
	o.mu.Unlock()

	errorsJSON, _ := json.Marshal(r.Errors)
	warningsJSON, _ := json.Marshal(r.Warnings)
	completed := r.CompletedAt
	return models.DeploymentRecord{
		ID:              r.ID,
		ProfileName:     profileName,
		Host:            host,
		Success:         r.Success,
		FinalStage:      r.FinalStage.String(),
		Cancelled:       r.Cancelled,
		TotalFiles:      r.TotalFiles,
		UploadedFiles:   r.UploadedFiles,
		FailedFiles:     r.FailedFiles,
		UploadedBytes:   r.UploadedBytes,
		ObsoleteDeleted: r.ObsoleteDeleted,
		Errors:          string(errorsJSON),
		Warnings:        string(warningsJSON),
		StartedAt:       r.StartedAt,
		CompletedAt:     &completed,
	}
}
