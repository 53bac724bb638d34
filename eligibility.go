package cttso_pieriandx_gateway

import (
	"log/slog"
	"time"
)

type SubmissionRoute string

const (
	// RouteValidation submits with the hardcoded clinical defaults.
	RouteValidation SubmissionRoute = "validation"
	// RouteClinical submits with the captured clinical metadata.
	RouteClinical SubmissionRoute = "clinical"
)

// SubmissionCandidate is one sample cleared for a new submission, routed to
// its submission path.
type SubmissionCandidate struct {
	Record MergedRecord
	Route  SubmissionRoute
}

// submissionCooldown is how long an accepted submission blocks the sample
// from re-submission while its case id is still unresolved.
const submissionCooldown = 7 * 24 * time.Hour

// SelectEligible picks the samples cleared for a new submission this cycle.
// A sample qualifies only when it has no surviving case, no recent pending
// submission, a succeeded pipeline run on a non-failed sequencing run, and
// either complete clinical capture or a registry entry that waives it.
// Previously retired samples are excluded with a warning, and the survivors
// are capped at maxSubmissions, truncating in retrieval order.
func SelectEligible(rows []MergedRecord, tracking []TrackingRow, retired []RetiredRecord, clock Clock, maxSubmissions int, logger *slog.Logger) []SubmissionCandidate {
	retiredKeys := make(map[mergeGroupKey]bool, len(retired))
	for _, r := range retired {
		retiredKeys[mergeGroupKey{r.SubjectID, r.LibraryID, r.WorkflowRunID}] = true
	}

	now := clock.Now()
	var candidates []SubmissionCandidate
	for _, row := range rows {
		if row.Case != nil || row.InDiagnostics {
			continue
		}
		if row.Run == nil || row.Run.EndStatus != RunStatusSucceeded || row.Run.SequenceRunFailed {
			continue
		}
		if hasRecentSubmission(tracking, row, now) {
			continue
		}
		clinicalComplete := row.Clinical != nil && row.Clinical.IsComplete
		captureWaived := row.Registry != nil && !row.Registry.NeedsClinicalCapture
		if !clinicalComplete && !captureWaived {
			continue
		}
		if retiredKeys[mergeGroupKey{row.SubjectID, row.LibraryID, row.RunID()}] {
			logger.Warn("Skipping previously retired sample",
				"subject_id", row.SubjectID, "library_id", row.LibraryID, "run_id", row.RunID())
			continue
		}

		route := RouteClinical
		if captureWaived && !clinicalComplete {
			route = RouteValidation
		}
		candidates = append(candidates, SubmissionCandidate{Record: row, Route: route})
	}

	if maxSubmissions > 0 && len(candidates) > maxSubmissions {
		logger.Info("Capping submissions for this cycle",
			"eligible", len(candidates), "cap", maxSubmissions)
		candidates = candidates[:maxSubmissions]
	}
	return candidates
}

// hasRecentSubmission reports whether the sample's tracking rows record a
// submission attempt inside the cooldown window.
func hasRecentSubmission(tracking []TrackingRow, row MergedRecord, now time.Time) bool {
	for _, t := range tracking {
		if t.SubjectID != row.SubjectID || t.LibraryID != row.LibraryID {
			continue
		}
		if t.WorkflowRunID != "" && row.RunID() != "" && t.WorkflowRunID != row.RunID() {
			continue
		}
		if t.SubmissionTime == "" {
			continue
		}
		submitted, err := time.Parse(TrackingTimeLayout, t.SubmissionTime)
		if err != nil {
			continue
		}
		if now.Sub(submitted) < submissionCooldown {
			return true
		}
	}
	return false
}

// FindSubmissionMismatches returns eligible samples whose tracking rows
// already carry a real case id. Such a sample reappearing as eligible
// signals a prior-cycle bug; the engine treats it as unrecoverable.
func FindSubmissionMismatches(candidates []SubmissionCandidate, tracking []TrackingRow) []SubmissionCandidate {
	var mismatched []SubmissionCandidate
	for _, c := range candidates {
		for _, t := range tracking {
			if t.SubjectID != c.Record.SubjectID || t.LibraryID != c.Record.LibraryID {
				continue
			}
			if t.WorkflowRunID != "" && c.Record.RunID() != "" && t.WorkflowRunID != c.Record.RunID() {
				continue
			}
			if t.HasRealCaseID() {
				mismatched = append(mismatched, c)
				break
			}
		}
	}
	return mismatched
}
