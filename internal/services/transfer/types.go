package transfer

import "time"

// Task describes one file scheduled for upload. Immutable once enqueued.
type Task struct {
	LocalPath  string            `json:"local_path"`
	RemotePath string            `json:"remote_path"`
	Size       int64             `json:"size"`
	Overwrite  bool              `json:"overwrite"`
	CreateDirs bool              `json:"create_dirs"`
	Priority   int               `json:"priority"` // lower = sooner
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Status is the terminal outcome of one task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped" // remote file existed, overwrite off
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Result records the outcome of one task. Exactly one Result is produced
// per enqueued Task, after its retries are exhausted or it succeeds.
type Result struct {
	Task          Task      `json:"task"`
	Success       bool      `json:"success"`
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
	Err           error     `json:"-"`
	RetryAttempts int       `json:"retry_attempts"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Duration is the wall time the task spent in processing, retries included.
func (r Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Throughput returns bytes per second, or 0 for instantaneous transfers.
func (r Result) Throughput() float64 {
	d := r.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(r.Task.Size) / d
}

// Progress is an aggregate snapshot, republished after initialization and
// after every Result.
type Progress struct {
	TotalFiles     int   `json:"total_files"`
	CompletedFiles int   `json:"completed_files"`
	ActiveFiles    int   `json:"active_files"`
	PendingFiles   int   `json:"pending_files"`
	Succeeded      int   `json:"succeeded"`
	Failed         int   `json:"failed"`
	TotalBytes     int64 `json:"total_bytes"`
	UploadedBytes  int64 `json:"uploaded_bytes"`

	// BytesPerSecond equals AverageBytesPerSecond: the "instantaneous"
	// rate is the running average, not a recent-window rate.
	BytesPerSecond        float64 `json:"bytes_per_second"`
	AverageBytesPerSecond float64 `json:"average_bytes_per_second"`

	// EstimatedRemaining is nil until the average throughput is positive.
	EstimatedRemaining *time.Duration `json:"estimated_remaining,omitempty"`

	StartedAt time.Time `json:"started_at"`
}
