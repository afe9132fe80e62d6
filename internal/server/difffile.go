package server

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/ivis-weko3-dev/jairocloud-groups-manager/internal/domain"
)

// MultiValueSeparator splits repeated attributes (eppn, email, group) inside
// one cell of the uploaded file.
const MultiValueSeparator = ";"

// fileRecord is one parsed data row of an uploaded user file.
type fileRecord struct {
	row  int
	user User
	err  string
}

// parseUserFile parses a CSV or TSV user file into records. The delimiter is
// chosen by file extension. xlsx uploads are accepted at the HTTP surface
// but cannot be parsed here, so they surface as a job-level parse error.
func parseUserFile(fileName string, data []byte) ([]fileRecord, error) {
	var comma rune
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		comma = ','
	case ".tsv":
		comma = '\t'
	default:
		return nil, fmt.Errorf("%w: cannot parse %q", domain.ErrUnsupportedFormat, fileName)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"id", "name"} {
		if _, ok := colMap[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	cell := func(record []string, col string) string {
		idx, ok := colMap[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var records []fileRecord
	rowNum := 1 // row 0 is the header
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			records = append(records, fileRecord{row: rowNum, err: err.Error()})
			continue
		}

		rec := fileRecord{
			row: rowNum,
			user: User{
				ID:     cell(record, "id"),
				Name:   cell(record, "name"),
				EPPNs:  splitMulti(cell(record, "eppn")),
				Emails: splitMulti(cell(record, "email")),
				Groups: splitMulti(cell(record, "group")),
			},
		}
		switch {
		case rec.user.ID == "":
			rec.err = "id is required"
		case rec.user.Name == "":
			rec.err = "name is required"
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitMulti(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, MultiValueSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// changePlan is the pending mutation a validate job computes and an execute
// job later applies.
type changePlan struct {
	upserts []User
}

// diffOutcome is everything a validate job produces for review.
type diffOutcome struct {
	rows    []domain.DiffRow
	summary domain.Summary
	missing []domain.OrphanUser
	plan    changePlan
}

// computeDiff classifies each file record against the current directory
// content and collects directory users absent from the file as deletion
// candidates. File order is preserved for the row listing.
func computeDiff(records []fileRecord, existing map[string]User) diffOutcome {
	var out diffOutcome
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if rec.err != "" {
			row := diffRow(rec.user, domain.CategoryError, fmt.Sprintf("row %d: %s", rec.row, rec.err))
			out.rows = append(out.rows, row)
			out.summary.Add(domain.CategoryError)
			continue
		}
		if _, dup := seen[rec.user.ID]; dup {
			row := diffRow(rec.user, domain.CategoryError, fmt.Sprintf("row %d: duplicate id", rec.row))
			out.rows = append(out.rows, row)
			out.summary.Add(domain.CategoryError)
			continue
		}
		seen[rec.user.ID] = struct{}{}

		current, ok := existing[rec.user.ID]
		switch {
		case !ok:
			out.rows = append(out.rows, diffRow(rec.user, domain.CategoryCreate, ""))
			out.summary.Add(domain.CategoryCreate)
			out.plan.upserts = append(out.plan.upserts, rec.user)
		case sameUser(current, rec.user):
			out.rows = append(out.rows, diffRow(rec.user, domain.CategorySkip, ""))
			out.summary.Add(domain.CategorySkip)
		default:
			out.rows = append(out.rows, diffRow(rec.user, domain.CategoryUpdate, ""))
			out.summary.Add(domain.CategoryUpdate)
			out.plan.upserts = append(out.plan.upserts, rec.user)
		}
	}

	for id, u := range existing {
		if _, ok := seen[id]; ok {
			continue
		}
		orphan := domain.OrphanUser{ID: u.ID, Name: u.Name, Groups: u.Groups}
		if len(u.EPPNs) > 0 {
			orphan.EPPN = u.EPPNs[0]
		}
		out.missing = append(out.missing, orphan)
	}
	sort.Slice(out.missing, func(i, j int) bool { return out.missing[i].ID < out.missing[j].ID })

	return out
}

func sameUser(a, b User) bool {
	return a.Name == b.Name &&
		slices.Equal(a.EPPNs, b.EPPNs) &&
		slices.Equal(a.Emails, b.Emails) &&
		slices.Equal(a.Groups, b.Groups)
}
