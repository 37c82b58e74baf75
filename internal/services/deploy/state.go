package deploy

import (
	"time"
)

// CleanupMode controls the obsolete-file cleanup stage.
type CleanupMode string

const (
	CleanupNone CleanupMode = "none"
	CleanupFull CleanupMode = "full"
)

// Options parameterizes one deployment run.
type Options struct {
	ProfileName     string
	ProjectPath     string
	OutputPath      string
	Configuration   string
	AppOffline      bool
	Cleanup         CleanupMode
	ExcludePatterns []string
	MaxConcurrency  int
	MaxRetries      int
	ConnectTimeout  time.Duration
	DryRun          bool
	PreConfirmed    bool
}

// State is the mutable snapshot of an in-flight deployment. It is mutated
// only by the orchestrator and the transfer engine's progress callback;
// subscribers receive value copies.
type State struct {
	ID             string
	Stage          Stage
	StartedAt      time.Time
	StageStartedAt time.Time
	CompletedAt    *time.Time

	ProfileName string
	ProjectPath string
	Host        string

	TotalFiles     int
	CompletedFiles int
	FailedFiles    int
	TotalBytes     int64
	UploadedBytes  int64

	ObsoleteFound   int
	ObsoleteDeleted int

	CancelRequested bool
	ErrorMessage    string
	Warnings        []string
	FailedPaths     []string
}

// StageChange is the payload of a stage-changed notification.
type StageChange struct {
	From Stage
	To   Stage
	At   time.Time
}

// Result is the immutable terminal outcome of a deployment, derived from
// the final State.
type Result struct {
	ID          string
	Success     bool
	Cancelled   bool
	FinalStage  Stage
	StartedAt   time.Time
	CompletedAt time.Time

	TotalFiles      int
	UploadedFiles   int
	FailedFiles     int
	TotalBytes      int64
	UploadedBytes   int64
	ObsoleteDeleted int

	Errors      []string
	Warnings    []string
	FailedPaths []string
	Err         error
}

// Duration is the total wall time of the deployment.
func (r *Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// NewSuccessResult copies a final State into a successful Result.
func NewSuccessResult(s *State) *Result {
	r := newResult(s)
	r.Success = true
	r.FinalStage = StageCompleted
	return r
}

// NewFailureResult copies a final State into a failed Result carrying a
// human-readable message and the causing error, when one exists.
func NewFailureResult(s *State, message string, err error) *Result {
	r := newResult(s)
	r.FinalStage = StageFailed
	r.Err = err
	if message != "" {
		r.Errors = append(r.Errors, message)
	}
	return r
}

// NewCancelledResult copies a final State, with whatever partial counters
// had accumulated, into a cancelled Result.
func NewCancelledResult(s *State) *Result {
	r := newResult(s)
	r.Cancelled = true
	r.FinalStage = StageCancelled
	r.Errors = append(r.Errors, "deployment cancelled")
	return r
}

func newResult(s *State) *Result {
	completed := time.Now()
	if s.CompletedAt != nil {
		completed = *s.CompletedAt
	}
	r := &Result{
		ID:              s.ID,
		StartedAt:       s.StartedAt,
		CompletedAt:     completed,
		TotalFiles:      s.TotalFiles,
		UploadedFiles:   s.CompletedFiles - s.FailedFiles,
		FailedFiles:     s.FailedFiles,
		TotalBytes:      s.TotalBytes,
		UploadedBytes:   s.UploadedBytes,
		ObsoleteDeleted: s.ObsoleteDeleted,
		Warnings:        append([]string(nil), s.Warnings...),
		FailedPaths:     append([]string(nil), s.FailedPaths...),
	}
	if s.ErrorMessage != "" {
		r.Errors = append(r.Errors, s.ErrorMessage)
	}
	return r
}
