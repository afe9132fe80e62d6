package domain

// JobStatus represents the server-observed status of an async job.
// The client only ever reads these; transitions are server-driven.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailure JobStatus = "failure"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// JobKind distinguishes the two async jobs a sync run drives.
type JobKind string

const (
	JobKindValidate JobKind = "validate"
	JobKindExecute  JobKind = "execute"
)

// JobState is one observation of an async job's status.
type JobState struct {
	Status JobStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// UploadTask identifies one accepted upload. Immutable once created;
// superseded when the pipeline resets.
type UploadTask struct {
	ID           string
	FileName     string
	RepositoryID string
}

// UploadReceipt is the server's acknowledgement of an accepted upload.
type UploadReceipt struct {
	JobID        string `json:"job_id"`
	UploadTaskID string `json:"upload_task_id"`
}

// ExecuteReceipt is the server's acknowledgement of an accepted execute
// request. HistoryID durably identifies the result once the job succeeds.
type ExecuteReceipt struct {
	ExecuteJobID string `json:"execute_job_id"`
	HistoryID    string `json:"history_id"`
}
