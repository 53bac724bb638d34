package cttso_pieriandx_gateway

import (
	"log/slog"
	"reflect"
	"sort"
)

// TrackingDiff is the minimal write set against the tracking store: rows to
// update in place and rows to append. The diff never removes a row; only
// the retirement flow does that.
type TrackingDiff struct {
	Updates []RowPatch
	Appends []TrackingRow
}

// DiffTracking matches every candidate row against the store and decides
// append, update or leave-alone. Matching starts from (subject, library)
// and narrows by run id when the row claims pipeline presence, by case id
// when it claims diagnostics presence, and to case-less store rows when the
// sample has upstream evidence but no case yet. An ambiguous match is
// logged and skipped, never guessed. A matched row updates only when the
// sole change is the case id turning pending, or when a presence flag flips
// from false to true; anything else is noise, not progress.
func DiffTracking(candidates []TrackingRow, existing []TrackingRow, positions map[RowKey]int, logger *slog.Logger) TrackingDiff {
	diff := TrackingDiff{}
	for _, candidate := range candidates {
		matches := matchTrackingRows(candidate, existing)
		if len(matches) > 1 {
			logger.Warn("Candidate row matches multiple tracking rows, requires manual resolution",
				"subject_id", candidate.SubjectID, "library_id", candidate.LibraryID,
				"run_id", candidate.WorkflowRunID, "matches", len(matches))
			continue
		}
		if len(matches) == 0 {
			diff.Appends = append(diff.Appends, candidate)
			continue
		}

		current := matches[0]
		position, ok := positions[current.Key()]
		if !ok {
			logger.Warn("Matched tracking row has no position index entry, skipping",
				"subject_id", current.SubjectID, "library_id", current.LibraryID)
			continue
		}

		merged := mergeForUpdate(current, candidate)
		if reflect.DeepEqual(current.Cells(), merged.Cells()) {
			continue
		}
		if !updateJustified(current, merged) {
			logger.Debug("Skipping tracking row change with no new progress",
				"subject_id", candidate.SubjectID, "library_id", candidate.LibraryID)
			continue
		}
		diff.Updates = append(diff.Updates, RowPatch{Row: merged, Position: position})
	}

	sort.SliceStable(diff.Appends, func(i, j int) bool {
		a, b := diff.Appends[i], diff.Appends[j]
		if a.SequenceRunName != b.SequenceRunName {
			return a.SequenceRunName < b.SequenceRunName
		}
		if a.WorkflowRunEnd != b.WorkflowRunEnd {
			return a.WorkflowRunEnd < b.WorkflowRunEnd
		}
		return a.CaseCreationDate < b.CaseCreationDate
	})
	return diff
}

func matchTrackingRows(candidate TrackingRow, existing []TrackingRow) []TrackingRow {
	var matches []TrackingRow
	for _, row := range existing {
		if row.SubjectID != candidate.SubjectID || row.LibraryID != candidate.LibraryID {
			continue
		}
		if candidate.InPipeline && row.WorkflowRunID != candidate.WorkflowRunID {
			continue
		}
		if candidate.InDiagnostics && row.CaseID != candidate.CaseID {
			continue
		}
		if (candidate.InClinicalCapture || candidate.InPipeline) && !candidate.InDiagnostics && row.InDiagnostics {
			continue
		}
		matches = append(matches, row)
	}
	return matches
}

// mergeForUpdate folds the candidate over the stored row without losing
// facts: presence flags never revert to false here, and an established
// submission time or case id sticks unless the candidate brings a real one.
func mergeForUpdate(current, candidate TrackingRow) TrackingRow {
	merged := candidate
	merged.InRegistry = current.InRegistry || candidate.InRegistry
	merged.InClinicalCapture = current.InClinicalCapture || candidate.InClinicalCapture
	merged.InPipeline = current.InPipeline || candidate.InPipeline
	merged.InDiagnostics = current.InDiagnostics || candidate.InDiagnostics
	if merged.SubmissionTime == "" {
		merged.SubmissionTime = current.SubmissionTime
	}
	if merged.CaseID == "" {
		merged.CaseID = current.CaseID
	}
	return merged
}

func updateJustified(current, merged TrackingRow) bool {
	if current.CaseID == "" && merged.CaseID == CaseIDPending {
		pendingOnly := merged
		pendingOnly.CaseID = current.CaseID
		pendingOnly.SubmissionTime = current.SubmissionTime
		if reflect.DeepEqual(current.Cells(), pendingOnly.Cells()) {
			return true
		}
	}
	return (!current.InRegistry && merged.InRegistry) ||
		(!current.InClinicalCapture && merged.InClinicalCapture) ||
		(!current.InPipeline && merged.InPipeline) ||
		(!current.InDiagnostics && merged.InDiagnostics)
}
