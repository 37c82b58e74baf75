package scheduler

// JobListResponse is a scheduled deployment in list responses, with run
// times rendered as ISO 8601 strings.
type JobListResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	ProfileName string  `json:"profile_name"`
	Cron        string  `json:"cron"`
	Enabled     bool    `json:"enabled"`
	AppOffline  bool    `json:"app_offline"`
	Cleanup     bool    `json:"cleanup"`
	LastRunAt   *string `json:"last_run_at"`
	LastStatus  string  `json:"last_status"`
	NextRun     *string `json:"next_run"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// UpsertJobRequest creates or updates a scheduled deployment, keyed by
// Name.
type UpsertJobRequest struct {
	Name        string `json:"name"`
	ProfileName string `json:"profile_name"`
	Cron        string `json:"cron"`
	Enabled     bool   `json:"enabled"`
	AppOffline  bool   `json:"app_offline"`
	Cleanup     bool   `json:"cleanup"`
}
