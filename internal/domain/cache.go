package domain

// CacheResult is the outcome of refreshing the group cache for one
// repository, keyed by its FQDN.
type CacheResult struct {
	FQDN       string `json:"fqdn"`
	Status     string `json:"status"`
	Code       string `json:"code,omitempty"`
	Repository string `json:"repository,omitempty"`
	Updated    string `json:"updated,omitempty"`
}

// CacheTask is a progress snapshot of a running group-cache refresh.
// The task is complete when Done == Total and Total > 0; the server clears
// the snapshot once a completed task has been observed.
type CacheTask struct {
	Current string        `json:"current"`
	Done    int           `json:"done"`
	Total   int           `json:"total"`
	Results []CacheResult `json:"results,omitempty"`
}

// Finished reports whether the refresh has processed every repository.
func (t CacheTask) Finished() bool {
	return t.Total > 0 && t.Done == t.Total
}
