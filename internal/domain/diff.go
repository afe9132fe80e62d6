package domain

// DiffRow is one subject's computed outcome from a validate or execute job.
// Rows are historical records: once produced by a job they never change.
// Row is the 1-based display number assigned client-side from the page
// position; it is not part of the wire payload.
type DiffRow struct {
	Row        int      `json:"row,omitempty"`
	UserID     string   `json:"user_id"`
	Name       string   `json:"name"`
	EPPNs      []string `json:"eppns,omitempty"`
	Emails     []string `json:"emails,omitempty"`
	Groups     []string `json:"groups,omitempty"`
	Category   Category `json:"category"`
	Diagnostic string   `json:"diagnostic,omitempty"`
}

// Summary holds the per-category row counts for a whole job, independent of
// any page or filter applied to the row listing.
type Summary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	Skip   int `json:"skip"`
	Error  int `json:"error"`
}

// Total is the derived sum of all five category counts. The server never
// reports a total; this is the only authoritative aggregate.
func (s Summary) Total() int {
	return s.Create + s.Update + s.Delete + s.Skip + s.Error
}

// Count returns the count for one category.
func (s Summary) Count(c Category) int {
	switch c {
	case CategoryCreate:
		return s.Create
	case CategoryUpdate:
		return s.Update
	case CategoryDelete:
		return s.Delete
	case CategorySkip:
		return s.Skip
	case CategoryError:
		return s.Error
	default:
		return 0
	}
}

// Add increments the count for one category.
func (s *Summary) Add(c Category) {
	switch c {
	case CategoryCreate:
		s.Create++
	case CategoryUpdate:
		s.Update++
	case CategoryDelete:
		s.Delete++
	case CategorySkip:
		s.Skip++
	case CategoryError:
		s.Error++
	}
}

// OrphanUser is a directory user that is absent from the uploaded file and
// therefore a candidate for deletion. Discovered during validation; its
// lifetime is bounded to one pipeline run.
type OrphanUser struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	EPPN   string   `json:"eppn,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// ResultPage is one page of a validation result listing plus the whole-job
// summary and the orphan users discovered by the job.
type ResultPage struct {
	Rows         []DiffRow    `json:"rows"`
	Summary      Summary      `json:"summary"`
	MissingUsers []OrphanUser `json:"missing_users,omitempty"`
}
