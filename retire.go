package cttso_pieriandx_gateway

import (
	"log/slog"
)

// RetirementPlan is the outcome of the retirement flow: the rows that stay
// live, the audit records to append, and the retired case ids to purge from
// the in-flight merged table so nothing resubmits them this cycle.
type RetirementPlan struct {
	Live           []TrackingRow
	Retired        []RetiredRecord
	RetiredCaseIDs []string
}

// PlanRetirement moves tracking rows out of the live store when their case
// was reassigned to the to-be-deleted owner or no longer exists in a fresh
// case listing. Audit appends are deduplicated by case id against rows
// already retired.
func PlanRetirement(tracking []TrackingRow, cases []DiagnosticsCase, existingRetired []RetiredRecord, clock Clock, logger *slog.Logger) RetirementPlan {
	liveCaseIDs := make(map[string]bool, len(cases))
	for _, c := range cases {
		liveCaseIDs[c.CaseID] = true
	}
	alreadyRetired := make(map[string]bool, len(existingRetired))
	for _, r := range existingRetired {
		if r.CaseID != "" {
			alreadyRetired[r.CaseID] = true
		}
	}

	plan := RetirementPlan{}
	retiredAt := clock.Now().Format(TrackingTimeLayout)
	for _, row := range tracking {
		retire := false
		switch {
		case row.CaseAssignee == AssigneeToBeDeleted:
			logger.Info("Retiring tracking row flagged for deletion",
				"case_id", row.CaseID, "subject_id", row.SubjectID, "library_id", row.LibraryID)
			retire = true
		case row.HasRealCaseID() && !liveCaseIDs[row.CaseID]:
			logger.Info("Retiring tracking row whose case vanished upstream",
				"case_id", row.CaseID, "subject_id", row.SubjectID, "library_id", row.LibraryID)
			retire = true
		}
		if !retire {
			plan.Live = append(plan.Live, row)
			continue
		}
		if row.CaseID != "" {
			plan.RetiredCaseIDs = append(plan.RetiredCaseIDs, row.CaseID)
		}
		if row.CaseID != "" && alreadyRetired[row.CaseID] {
			continue
		}
		alreadyRetired[row.CaseID] = true
		plan.Retired = append(plan.Retired, RetiredRecord{TrackingRow: row, RetiredAt: retiredAt})
	}
	return plan
}
