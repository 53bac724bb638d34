package cttso_pieriandx_gateway

import (
	"context"
	"log/slog"
)

// RowPatch is an in-place update of one physical tracking row.
type RowPatch struct {
	Row      TrackingRow
	Position int
}

// rowNeedsPolling reports whether a tracking row's case is still moving.
// A row polls while its case id is the pending sentinel, or while a real
// case has non-terminal workflow/report status. A canceled report is final
// and never re-enters polling.
func rowNeedsPolling(t TrackingRow) bool {
	if t.CaseID == CaseIDPending {
		return true
	}
	if !t.HasRealCaseID() {
		return false
	}
	if t.ReportStatus == StatusCanceled {
		return false
	}
	return !(TerminalStatuses[t.JobStatus] && TerminalStatuses[t.ReportStatus])
}

// resolvePendingCaseID joins a pending tracking row against the merged
// table on (subject, library, run) and returns the real case id when
// exactly one matching row carries one. An ambiguous match resolves to
// nothing rather than guessing.
func resolvePendingCaseID(t TrackingRow, merged []MergedRecord, logger *slog.Logger) (string, bool) {
	var ids []string
	for _, m := range merged {
		if m.SubjectID != t.SubjectID || m.LibraryID != t.LibraryID {
			continue
		}
		if t.WorkflowRunID != "" && m.RunID() != t.WorkflowRunID {
			continue
		}
		if m.Case != nil {
			ids = append(ids, m.Case.CaseID)
		}
	}
	if len(ids) == 1 {
		return ids[0], true
	}
	if len(ids) > 1 {
		logger.Warn("Pending case id resolves ambiguously, leaving pending",
			"subject_id", t.SubjectID, "library_id", t.LibraryID, "run_id", t.WorkflowRunID,
			"candidate_case_ids", ids)
	}
	return "", false
}

// BuildStatusPatches produces the update-only patch set for every tracking
// row whose case is still in flight: pending sentinels are resolved to real
// case ids via the merged table, then current workflow/report status is
// fetched per case.
func BuildStatusPatches(ctx context.Context, diag *PierianDxService, tracking []TrackingRow, positions map[RowKey]int, merged []MergedRecord, logger *slog.Logger) []RowPatch {
	var patches []RowPatch
	for _, t := range tracking {
		if !rowNeedsPolling(t) {
			continue
		}
		position, ok := positions[t.Key()]
		if !ok {
			logger.Warn("Tracking row has no position index entry, skipping poll",
				"subject_id", t.SubjectID, "library_id", t.LibraryID, "case_id", t.CaseID)
			continue
		}

		caseID := t.CaseID
		if caseID == CaseIDPending {
			resolved, ok := resolvePendingCaseID(t, merged, logger)
			if !ok {
				continue
			}
			caseID = resolved
		}

		dc, err := diag.CaseStatus(ctx, caseID)
		if err != nil {
			// a vanished case is the retirement flow's problem, not ours
			logger.Warn("Failed to fetch case status, skipping poll",
				"case_id", caseID, "error", err)
			continue
		}
		patches = append(patches, RowPatch{Row: applyCaseStatus(t, dc), Position: position})
	}
	return patches
}

func applyCaseStatus(t TrackingRow, dc DiagnosticsCase) TrackingRow {
	t.InDiagnostics = true
	t.CaseID = dc.CaseID
	t.CaseAccessionNumber = dc.AccessionNumber
	if !dc.CreationDate.IsZero() {
		t.CaseCreationDate = dc.CreationDate.Format(TrackingTimeLayout)
	}
	t.CaseAssignee = dc.Assignee
	t.CaseIdentified = boolCell(dc.Identified)
	t.CaseDiseaseCode = dc.DiseaseCode
	t.CaseDiseaseLabel = dc.DiseaseLabel
	t.CasePanelType = dc.PanelName
	t.CaseSampleType = dc.SampleType
	t.JobID = dc.JobID
	t.JobStatus = dc.JobStatus
	t.ReportID = dc.ReportID
	t.ReportStatus = dc.ReportStatus
	t.ReportSignedOut = boolCell(dc.ReportSignedOut)
	return t
}
