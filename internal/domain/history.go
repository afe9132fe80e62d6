package domain

import "time"

// FileInfo is the immutable metadata attached to a persisted sync result.
type FileInfo struct {
	FileName   string    `json:"file_name"`
	Operator   string    `json:"operator"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// HistoryResult is one page of a persisted execution result, retrievable by
// its durable history identifier long after the pipeline that produced it
// is gone.
type HistoryResult struct {
	Rows     []DiffRow `json:"rows"`
	Summary  Summary   `json:"summary"`
	FileInfo FileInfo  `json:"file_info"`
}
