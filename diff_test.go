package cttso_pieriandx_gateway

import (
	"reflect"
	"testing"
)

func trackedRow(caseID string) TrackingRow {
	return TrackingRow{
		SubjectID:         "SBJ00001",
		LibraryID:         "L0000001",
		InRegistry:        true,
		InPipeline:        true,
		WorkflowRunID:     "wfr.a",
		WorkflowRunStatus: RunStatusSucceeded,
		SequenceRunName:   "210714_A00130_0165_BH2NYMDSX2",
		CaseID:            caseID,
	}
}

func positionIndex(rows []TrackingRow) map[RowKey]int {
	positions := make(map[RowKey]int, len(rows))
	for i, r := range rows {
		positions[r.Key()] = i + 2
	}
	return positions
}

func TestDiffTracking(t *testing.T) {

	t.Run("unknown sample is appended", func(t *testing.T) {
		candidate := trackedRow("")
		diff := DiffTracking([]TrackingRow{candidate}, nil, map[RowKey]int{}, testLogger)
		if len(diff.Appends) != 1 || len(diff.Updates) != 0 {
			t.Errorf("got %d appends %d updates want 1/0", len(diff.Appends), len(diff.Updates))
		}
	})

	t.Run("identical row is left alone", func(t *testing.T) {
		existing := []TrackingRow{trackedRow("100")}
		candidate := trackedRow("100")
		diff := DiffTracking([]TrackingRow{candidate}, existing, positionIndex(existing), testLogger)
		if len(diff.Appends) != 0 || len(diff.Updates) != 0 {
			t.Errorf("got %d appends %d updates want 0/0", len(diff.Appends), len(diff.Updates))
		}
	})

	t.Run("pending transition updates in place", func(t *testing.T) {
		existing := []TrackingRow{trackedRow("")}
		candidate := trackedRow(CaseIDPending)
		candidate.SubmissionTime = "2021-07-20T00:00:00Z"
		diff := DiffTracking([]TrackingRow{candidate}, existing, positionIndex(existing), testLogger)
		if len(diff.Updates) != 1 || len(diff.Appends) != 0 {
			t.Fatalf("got %d updates %d appends want 1/0", len(diff.Updates), len(diff.Appends))
		}
		if diff.Updates[0].Row.CaseID != CaseIDPending {
			t.Errorf("got case id %v want %v", diff.Updates[0].Row.CaseID, CaseIDPending)
		}
		if diff.Updates[0].Position != 2 {
			t.Errorf("got position %d want 2", diff.Updates[0].Position)
		}
	})

	t.Run("presence flag flip updates in place", func(t *testing.T) {
		existing := []TrackingRow{trackedRow("")}
		candidate := trackedRow("")
		candidate.InClinicalCapture = true
		candidate.ClinicalCaptureComplete = "TRUE"
		diff := DiffTracking([]TrackingRow{candidate}, existing, positionIndex(existing), testLogger)
		if len(diff.Updates) != 1 {
			t.Fatalf("got %d updates want 1", len(diff.Updates))
		}
		if !diff.Updates[0].Row.InClinicalCapture {
			t.Error("clinical capture flag did not flip")
		}
	})

	t.Run("presence flags never revert", func(t *testing.T) {
		stored := trackedRow("")
		stored.InClinicalCapture = true
		existing := []TrackingRow{stored}
		candidate := trackedRow("")
		diff := DiffTracking([]TrackingRow{candidate}, existing, positionIndex(existing), testLogger)
		for _, u := range diff.Updates {
			if !u.Row.InClinicalCapture {
				t.Error("presence flag reverted to false")
			}
		}
	})

	t.Run("cosmetic change is skipped", func(t *testing.T) {
		existing := []TrackingRow{trackedRow("")}
		candidate := trackedRow("")
		candidate.SequenceRunName = "210715_A00130_0166_BH2NYMDSX3"
		diff := DiffTracking([]TrackingRow{candidate}, existing, positionIndex(existing), testLogger)
		if len(diff.Updates) != 0 || len(diff.Appends) != 0 {
			t.Errorf("got %d updates %d appends want 0/0", len(diff.Updates), len(diff.Appends))
		}
	})

	t.Run("ambiguous match is skipped", func(t *testing.T) {
		a := trackedRow("")
		a.WorkflowRunID = ""
		b := trackedRow("")
		b.WorkflowRunID = ""
		b.SequenceRunName = "other"
		existing := []TrackingRow{a, b}
		candidate := trackedRow(CaseIDPending)
		candidate.InPipeline = false
		candidate.WorkflowRunID = ""
		diff := DiffTracking([]TrackingRow{candidate}, existing, positionIndex(existing), testLogger)
		if len(diff.Updates) != 0 || len(diff.Appends) != 0 {
			t.Errorf("ambiguous candidate produced writes: %d updates %d appends", len(diff.Updates), len(diff.Appends))
		}
	})

	t.Run("appends sort by run name then end then case creation", func(t *testing.T) {
		early := trackedRow("")
		early.SequenceRunName = "210701_A00130_0160_AAAA"
		late := trackedRow("")
		late.SubjectID = "SBJ00002"
		late.SequenceRunName = "210714_A00130_0165_BH2NYMDSX2"
		diff := DiffTracking([]TrackingRow{late, early}, nil, map[RowKey]int{}, testLogger)
		if len(diff.Appends) != 2 {
			t.Fatalf("got %d appends want 2", len(diff.Appends))
		}
		want := []string{"210701_A00130_0160_AAAA", "210714_A00130_0165_BH2NYMDSX2"}
		got := []string{diff.Appends[0].SequenceRunName, diff.Appends[1].SequenceRunName}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v want %v", got, want)
		}
	})
}
