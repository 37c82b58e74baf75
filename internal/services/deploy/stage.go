package deploy

// Stage is one step of the fixed deployment sequence. The integer value is
// a monotonically increasing index used for progress display; a deployment
// only moves forward, or jumps directly to Failed or Cancelled.
type Stage int

const (
	StageNotStarted Stage = iota
	StageLoadingProfile
	StageValidatingConnection
	StageBuildingProject
	StageConnectingToServer
	StagePreDeploymentSummary
	StageUploadingAppOffline
	StageUploadingFiles
	StageCleaningUpObsoleteFiles
	StageDeletingAppOffline
	StageRecordingHistory
	StageCompleted
	StageFailed
	StageCancelled
)

var stageNames = map[Stage]string{
	StageNotStarted:              "NotStarted",
	StageLoadingProfile:          "LoadingProfile",
	StageValidatingConnection:    "ValidatingConnection",
	StageBuildingProject:         "BuildingProject",
	StageConnectingToServer:      "ConnectingToServer",
	StagePreDeploymentSummary:    "PreDeploymentSummary",
	StageUploadingAppOffline:     "UploadingAppOffline",
	StageUploadingFiles:          "UploadingFiles",
	StageCleaningUpObsoleteFiles: "CleaningUpObsoleteFiles",
	StageDeletingAppOffline:      "DeletingAppOffline",
	StageRecordingHistory:        "RecordingHistory",
	StageCompleted:               "Completed",
	StageFailed:                  "Failed",
	StageCancelled:               "Cancelled",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Terminal reports whether s is one of the mutually exclusive end states.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}
