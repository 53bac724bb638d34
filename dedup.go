package cttso_pieriandx_gateway

import (
	"log/slog"
	"sort"
	"strconv"
	"time"
)

// staleCaseAge is how old an abandoned duplicate case must be before it is
// garbage collected.
const staleCaseAge = 7 * 24 * time.Hour

// FindDuplicateCaseIDs garbage-collects diagnostics cases that multiplied
// through retries or manual re-submission. Within each (subject, library,
// run) group of unassigned cases:
//   - when the latest case has both workflow and report complete, every
//     earlier case is redundant;
//   - when the latest case was created but never progressed (no statuses)
//     and has sat for over a week while a sibling did progress, the latest
//     one is the abandoned duplicate.
//
// Cases with an assignee are under manual review and never auto-removed.
// The pass is idempotent: re-running it on its own output removes nothing.
func FindDuplicateCaseIDs(rows []MergedRecord, clock Clock, logger *slog.Logger) []string {
	groups := make(map[mergeGroupKey][]*DiagnosticsCase)
	for i := range rows {
		row := rows[i]
		if row.Case == nil || row.Case.Assignee != "" {
			continue
		}
		k := mergeGroupKey{row.SubjectID, row.LibraryID, row.RunID()}
		groups[k] = append(groups[k], row.Case)
	}

	now := clock.Now()
	var removable []string
	for k, cases := range groups {
		sort.Slice(cases, func(i, j int) bool {
			return caseIDValue(cases[i].CaseID) < caseIDValue(cases[j].CaseID)
		})

		// the rules cascade: dropping an abandoned latest can expose a
		// complete latest that supersedes the remainder, so each group is
		// reduced to a fixed point within the pass
		for len(cases) >= 2 {
			latest := cases[len(cases)-1]

			if latest.JobStatus == StatusComplete && latest.ReportStatus == StatusComplete {
				for _, c := range cases[:len(cases)-1] {
					logger.Info("Marking superseded duplicate case for removal",
						"case_id", c.CaseID, "kept_case_id", latest.CaseID,
						"subject_id", k.SubjectID, "library_id", k.LibraryID)
					removable = append(removable, c.CaseID)
				}
				cases = cases[len(cases)-1:]
				continue
			}

			siblingProgressed := false
			for _, c := range cases[:len(cases)-1] {
				if c.JobStatus != "" || c.ReportStatus != "" {
					siblingProgressed = true
				}
			}
			if latest.JobStatus == "" && latest.ReportStatus == "" &&
				!latest.CreationDate.IsZero() && now.Sub(latest.CreationDate) > staleCaseAge &&
				siblingProgressed {
				logger.Info("Marking abandoned duplicate case for removal",
					"case_id", latest.CaseID,
					"subject_id", k.SubjectID, "library_id", k.LibraryID)
				removable = append(removable, latest.CaseID)
				cases = cases[:len(cases)-1]
				continue
			}
			break
		}
	}
	sort.Strings(removable)
	return removable
}

func caseIDValue(id string) int64 {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return -1
	}
	return v
}

// RemoveCases purges rows holding any of the given case ids from the
// in-flight merged table.
func RemoveCases(rows []MergedRecord, caseIDs []string) []MergedRecord {
	if len(caseIDs) == 0 {
		return rows
	}
	removable := make(map[string]bool, len(caseIDs))
	for _, id := range caseIDs {
		removable[id] = true
	}
	var kept []MergedRecord
	for _, row := range rows {
		if row.Case != nil && removable[row.Case.CaseID] {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// PurgeTrackingCases drops tracking rows holding any of the given case ids.
// The caller rewrites the store afterwards; this is the one sanctioned way
// a live row disappears outside the retirement flow.
func PurgeTrackingCases(tracking []TrackingRow, caseIDs []string) []TrackingRow {
	if len(caseIDs) == 0 {
		return tracking
	}
	removable := make(map[string]bool, len(caseIDs))
	for _, id := range caseIDs {
		removable[id] = true
	}
	var kept []TrackingRow
	for _, row := range tracking {
		if removable[row.CaseID] {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}
