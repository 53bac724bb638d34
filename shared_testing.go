package cttso_pieriandx_gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"time"
)

// testLogger discards output so tests stay quiet.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// CaseJSON is a representative diagnostics case payload used across tests.
var CaseJSON = `
{
  "id": 100161,
  "specimenLabId": "SBJ00595_L2100721_001",
  "dateCreated": "2021-07-15T03:08:10",
  "assignee": [
    "Kenneth",
    "ToBeDeleted"
  ],
  "dagDescription": "cromwell_tso500_ctdna_workflow_1.0.4",
  "disease": {
    "code": "285645000",
    "label": "Disseminated malignancy of unknown primary"
  },
  "specimens": [
    {
      "accessionNumber": "SBJ00595_L2100721_001",
      "dateAccessioned": "2021-07-15T03:08:10",
      "dateReceived": "2021-07-15T03:08:10",
      "datecollected": "2021-07-15T03:08:10",
      "externalSpecimenId": "PRJ210123",
      "name": "pDNA Synthetic"
    }
  ],
  "informaticsJobs": [
    {
      "id": "10582",
      "status": "complete"
    }
  ],
  "reports": [
    {
      "id": "9574",
      "status": "complete",
      "signedOut": false
    }
  ]
}
`

// RunJSON is a representative pipeline workflow row used across tests.
var RunJSON = `
{
  "id": 1953,
  "wfr_name": "umccr__automated__tso_ctdna_tumor_only__SBJ00595__L2100721__202107142205",
  "wfr_id": "wfr.7fe3b8b4f21849e5a4b4e0a1a5a9ba8c",
  "type_name": "tso_ctdna_tumor_only",
  "end_status": "Succeeded",
  "end": "2021-07-15T01:32:21",
  "portal_run_id": "20210715a1b2c3d4",
  "sequence_run_name": "210714_A00130_0165_BH2NYMDSX2"
}
`

func UnmarshalT[T any](b []byte) (T, error) {
	var target T
	if err := json.Unmarshal(b, &target); err != nil {
		return target, err
	}
	return target, nil
}

// FixedClock pins Now for deterministic eligibility and dedup tests.
type FixedClock struct {
	Time time.Time
}

func (f FixedClock) Now() time.Time { return f.Time }

func mustTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

// testMergedRecord builds a merged row with all three upstream facets
// present and a succeeded pipeline run, for tests to mutate.
func testMergedRecord(subjectID, libraryID, runID string) MergedRecord {
	run := RunRecord{
		SubjectID:       subjectID,
		LibraryID:       libraryID,
		RunID:           runID,
		SequenceRunName: "210714_A00130_0165_BH2NYMDSX2",
		EndStatus:       RunStatusSucceeded,
		EndTimestamp:    mustTime("2021-07-15T01:32:21Z"),
	}
	registry := RegistryRecord{
		SubjectID:    subjectID,
		LibraryID:    libraryID,
		ProjectOwner: "UMCCR",
		ProjectName:  "Validation",
		Panel:        "main",
		SampleType:   "validation",
	}
	clinical := ClinicalCaptureRecord{
		SubjectID:  subjectID,
		LibraryID:  libraryID,
		IsComplete: true,
	}
	return MergedRecord{
		SubjectID:         subjectID,
		LibraryID:         libraryID,
		Run:               &run,
		Registry:          &registry,
		Clinical:          &clinical,
		InPipeline:        true,
		InRegistry:        true,
		InClinicalCapture: true,
	}
}
