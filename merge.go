package cttso_pieriandx_gateway

import (
	"log/slog"
)

// MergeSources outer-joins the collapsed pipeline runs, the registry rows
// and the clinical capture records on SampleKey. Every sample observed by
// any source yields a row; presence booleans default to false for the
// sources that miss it.
func MergeSources(runs []RunRecord, registry []RegistryRecord, clinical []ClinicalCaptureRecord) []MergedRecord {
	runByKey := make(map[SampleKey]RunRecord, len(runs))
	registryByKey := make(map[SampleKey]RegistryRecord, len(registry))
	clinicalByKey := make(map[SampleKey]ClinicalCaptureRecord, len(clinical))

	var order []SampleKey
	seen := make(map[SampleKey]bool)
	note := func(k SampleKey) {
		if !seen[k] {
			seen[k] = true
			order = append(order, k)
		}
	}
	for _, r := range runs {
		runByKey[r.Key()] = r
		note(r.Key())
	}
	for _, r := range registry {
		registryByKey[r.Key()] = r
		note(r.Key())
	}
	for _, c := range clinical {
		clinicalByKey[c.Key()] = c
		note(c.Key())
	}

	rows := make([]MergedRecord, 0, len(order))
	for _, k := range order {
		row := MergedRecord{SubjectID: k.SubjectID, LibraryID: k.LibraryID}
		if r, ok := runByKey[k]; ok {
			run := r
			row.Run = &run
			row.InPipeline = true
		}
		if r, ok := registryByKey[k]; ok {
			reg := r
			row.Registry = &reg
			row.InRegistry = true
		}
		if c, ok := clinicalByKey[k]; ok {
			cl := c
			row.Clinical = &cl
			row.InClinicalCapture = true
		}
		rows = append(rows, row)
	}
	return rows
}

// AttachCases outer-joins the diagnostics cases on SampleKey. A sample with
// several cases fans out into one row per case, each carrying the same
// upstream facets; cases with no upstream evidence still get a row of their
// own.
func AttachCases(rows []MergedRecord, cases []DiagnosticsCase) []MergedRecord {
	casesByKey := make(map[SampleKey][]DiagnosticsCase)
	for _, c := range cases {
		casesByKey[c.Key()] = append(casesByKey[c.Key()], c)
	}

	var out []MergedRecord
	matched := make(map[SampleKey]bool)
	for _, row := range rows {
		keyCases := casesByKey[row.Key()]
		if len(keyCases) == 0 {
			out = append(out, row)
			continue
		}
		matched[row.Key()] = true
		for _, c := range keyCases {
			dup := row
			kase := c
			dup.Case = &kase
			dup.InDiagnostics = true
			out = append(out, dup)
		}
	}
	for _, c := range cases {
		if matched[c.Key()] {
			continue
		}
		kase := c
		out = append(out, MergedRecord{
			SubjectID:     c.SubjectID,
			LibraryID:     c.LibraryID,
			Case:          &kase,
			InDiagnostics: true,
		})
	}
	return out
}

// invalidateCase treats the row as if it never had a diagnostics case.
func invalidateCase(row *MergedRecord) {
	row.Case = nil
	row.InDiagnostics = false
}

// FilterCaseValidity removes or invalidates diagnostics cases that cannot
// belong to the sample's current pipeline run:
//   - a case created strictly before the run finished is stale;
//   - a case with no supporting evidence in any upstream source is an
//     orphan and its row is dropped;
//   - a case attached to a run that did not succeed is invalid;
//   - after invalidation, rows that still hold a case win over case-less
//     duplicates within the same (subject, library, run) group.
func FilterCaseValidity(rows []MergedRecord, logger *slog.Logger) []MergedRecord {
	var filtered []MergedRecord
	for _, row := range rows {
		if row.InDiagnostics && !row.InRegistry && !row.InClinicalCapture && !row.InPipeline {
			logger.Warn("Dropping orphaned diagnostics case",
				"case_id", row.CaseID(), "subject_id", row.SubjectID, "library_id", row.LibraryID)
			continue
		}
		if row.Case != nil && row.Run != nil {
			if !row.Case.CreationDate.IsZero() && !row.Run.EndTimestamp.IsZero() &&
				row.Case.CreationDate.Before(row.Run.EndTimestamp) {
				logger.Info("Invalidating case created before its pipeline run finished",
					"case_id", row.Case.CaseID, "subject_id", row.SubjectID, "library_id", row.LibraryID)
				invalidateCase(&row)
			} else if row.Run.EndStatus != RunStatusSucceeded {
				logger.Info("Invalidating case attached to an unsuccessful pipeline run",
					"case_id", row.Case.CaseID, "run_status", row.Run.EndStatus,
					"subject_id", row.SubjectID, "library_id", row.LibraryID)
				invalidateCase(&row)
			}
		}
		filtered = append(filtered, row)
	}
	return preferCaseRows(filtered)
}

type mergeGroupKey struct {
	SubjectID string
	LibraryID string
	RunID     string
}

// preferCaseRows keeps case-less rows in a (subject, library, run) group
// only when every row in the group is case-less.
func preferCaseRows(rows []MergedRecord) []MergedRecord {
	groupHasCase := make(map[mergeGroupKey]bool)
	for _, row := range rows {
		k := mergeGroupKey{row.SubjectID, row.LibraryID, row.RunID()}
		if row.Case != nil {
			groupHasCase[k] = true
		}
	}

	kept := make([]MergedRecord, 0, len(rows))
	seenCaseless := make(map[mergeGroupKey]bool)
	for _, row := range rows {
		k := mergeGroupKey{row.SubjectID, row.LibraryID, row.RunID()}
		if row.Case == nil {
			if groupHasCase[k] {
				continue
			}
			// collapse duplicate case-less rows left by invalidation
			if seenCaseless[k] {
				continue
			}
			seenCaseless[k] = true
		}
		kept = append(kept, row)
	}
	return kept
}
