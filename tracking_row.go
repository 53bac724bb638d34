package cttso_pieriandx_gateway

import (
	"time"
)

// TrackingTimeLayout is the stringified timestamp format used throughout the
// tracking store.
const TrackingTimeLayout = time.RFC3339

// TrackingRow is one persisted row of the tracking store: the flat union of
// every source's fields plus the four presence booleans. Optional values are
// kept as strings so absence survives a round trip as the empty cell.
type TrackingRow struct {
	SubjectID string
	LibraryID string

	InRegistry        bool
	InClinicalCapture bool
	InPipeline        bool
	InDiagnostics     bool

	ProjectOwner            string
	ProjectName             string
	Panel                   string
	RegistrySampleType      string
	IsIdentified            string
	DefaultSnomedTerm       string
	NeedsClinicalCapture    string
	ClinicalCaptureComplete string

	WorkflowRunID     string
	WorkflowRunEnd    string
	WorkflowRunStatus string
	SequenceRunName   string
	SequenceRunFailed string

	SubmissionTime      string
	CaseID              string
	CaseAccessionNumber string
	CaseCreationDate    string
	CaseAssignee        string
	CaseIdentified      string
	CaseDiseaseCode     string
	CaseDiseaseLabel    string
	CasePanelType       string
	CaseSampleType      string
	JobID               string
	JobStatus           string
	ReportID            string
	ReportStatus        string
	ReportSignedOut     string
}

// RowKey is the tracking row identity tuple.
type RowKey struct {
	SubjectID     string
	LibraryID     string
	WorkflowRunID string
	CaseID        string
}

func (t TrackingRow) Key() RowKey {
	return RowKey{
		SubjectID:     t.SubjectID,
		LibraryID:     t.LibraryID,
		WorkflowRunID: t.WorkflowRunID,
		CaseID:        t.CaseID,
	}
}

func (t TrackingRow) SampleKey() SampleKey {
	return SampleKey{SubjectID: t.SubjectID, LibraryID: t.LibraryID}
}

// HasRealCaseID reports whether the row carries a service-assigned case id,
// as opposed to being empty or holding a submission sentinel.
func (t TrackingRow) HasRealCaseID() bool {
	return t.CaseID != "" && t.CaseID != CaseIDPending && t.CaseID != CaseIDFailed
}

// RetiredRecord is a TrackingRow moved to the audit table.
type RetiredRecord struct {
	TrackingRow
	RetiredAt string
}

// TrackingHeader is the tracking sheet column order. RetiredHeader appends
// the retirement timestamp.
var TrackingHeader = []string{
	"subject_id",
	"library_id",
	"in_glims",
	"in_redcap",
	"in_portal",
	"in_pieriandx",
	"glims_project_owner",
	"glims_project_name",
	"glims_panel",
	"glims_sample_type",
	"glims_is_identified",
	"glims_default_snomed_term",
	"glims_needs_redcap",
	"redcap_is_complete",
	"portal_wfr_id",
	"portal_wfr_end",
	"portal_wfr_status",
	"portal_sequence_run_name",
	"portal_is_failed_run",
	"pieriandx_submission_time",
	"pieriandx_case_id",
	"pieriandx_case_accession_number",
	"pieriandx_case_creation_date",
	"pieriandx_assignee",
	"pieriandx_case_identified",
	"pieriandx_disease_code",
	"pieriandx_disease_label",
	"pieriandx_panel_type",
	"pieriandx_sample_type",
	"pieriandx_workflow_id",
	"pieriandx_workflow_status",
	"pieriandx_report_id",
	"pieriandx_report_status",
	"pieriandx_report_signed_out",
}

var RetiredHeader = append(append([]string{}, TrackingHeader...), "date_removed")

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func cellBool(s string) bool {
	return s == "TRUE" || s == "true" || s == "True"
}

// Cells serializes the row in TrackingHeader order. Every value is a string;
// absent values are empty cells.
func (t TrackingRow) Cells() []string {
	return []string{
		t.SubjectID,
		t.LibraryID,
		boolCell(t.InRegistry),
		boolCell(t.InClinicalCapture),
		boolCell(t.InPipeline),
		boolCell(t.InDiagnostics),
		t.ProjectOwner,
		t.ProjectName,
		t.Panel,
		t.RegistrySampleType,
		t.IsIdentified,
		t.DefaultSnomedTerm,
		t.NeedsClinicalCapture,
		t.ClinicalCaptureComplete,
		t.WorkflowRunID,
		t.WorkflowRunEnd,
		t.WorkflowRunStatus,
		t.SequenceRunName,
		t.SequenceRunFailed,
		t.SubmissionTime,
		t.CaseID,
		t.CaseAccessionNumber,
		t.CaseCreationDate,
		t.CaseAssignee,
		t.CaseIdentified,
		t.CaseDiseaseCode,
		t.CaseDiseaseLabel,
		t.CasePanelType,
		t.CaseSampleType,
		t.JobID,
		t.JobStatus,
		t.ReportID,
		t.ReportStatus,
		t.ReportSignedOut,
	}
}

// TrackingRowFromCells is the inverse of Cells. Short rows are tolerated:
// trailing columns default to empty.
func TrackingRowFromCells(cells []string) TrackingRow {
	get := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return TrackingRow{
		SubjectID:               get(0),
		LibraryID:               get(1),
		InRegistry:              cellBool(get(2)),
		InClinicalCapture:       cellBool(get(3)),
		InPipeline:              cellBool(get(4)),
		InDiagnostics:           cellBool(get(5)),
		ProjectOwner:            get(6),
		ProjectName:             get(7),
		Panel:                   get(8),
		RegistrySampleType:      get(9),
		IsIdentified:            get(10),
		DefaultSnomedTerm:       get(11),
		NeedsClinicalCapture:    get(12),
		ClinicalCaptureComplete: get(13),
		WorkflowRunID:           get(14),
		WorkflowRunEnd:          get(15),
		WorkflowRunStatus:       get(16),
		SequenceRunName:         get(17),
		SequenceRunFailed:       get(18),
		SubmissionTime:          get(19),
		CaseID:                  get(20),
		CaseAccessionNumber:     get(21),
		CaseCreationDate:        get(22),
		CaseAssignee:            get(23),
		CaseIdentified:          get(24),
		CaseDiseaseCode:         get(25),
		CaseDiseaseLabel:        get(26),
		CasePanelType:           get(27),
		CaseSampleType:          get(28),
		JobID:                   get(29),
		JobStatus:               get(30),
		ReportID:                get(31),
		ReportStatus:            get(32),
		ReportSignedOut:         get(33),
	}
}

func (r RetiredRecord) Cells() []string {
	return append(r.TrackingRow.Cells(), r.RetiredAt)
}

func RetiredRecordFromCells(cells []string) RetiredRecord {
	rr := RetiredRecord{TrackingRow: TrackingRowFromCells(cells)}
	if len(cells) > len(TrackingHeader) {
		rr.RetiredAt = cells[len(TrackingHeader)]
	}
	return rr
}

// MergedToTrackingRow flattens a merged record into the tracking store
// schema. The submission time is carried from the existing store row (or set
// by the engine when a new submission is accepted); it is not an upstream
// fact.
func MergedToTrackingRow(m MergedRecord, submissionTime string) TrackingRow {
	row := TrackingRow{
		SubjectID:         m.SubjectID,
		LibraryID:         m.LibraryID,
		InRegistry:        m.InRegistry,
		InClinicalCapture: m.InClinicalCapture,
		InPipeline:        m.InPipeline,
		InDiagnostics:     m.InDiagnostics,
		SubmissionTime:    submissionTime,
	}
	if m.Registry != nil {
		row.ProjectOwner = m.Registry.ProjectOwner
		row.ProjectName = m.Registry.ProjectName
		row.Panel = m.Registry.Panel
		row.RegistrySampleType = m.Registry.SampleType
		row.IsIdentified = boolCell(m.Registry.IsIdentified)
		row.DefaultSnomedTerm = m.Registry.DefaultSnomedTerm
		row.NeedsClinicalCapture = boolCell(m.Registry.NeedsClinicalCapture)
	}
	if m.Clinical != nil {
		row.ClinicalCaptureComplete = boolCell(m.Clinical.IsComplete)
	}
	if m.Run != nil {
		row.WorkflowRunID = m.Run.RunID
		if !m.Run.EndTimestamp.IsZero() {
			row.WorkflowRunEnd = m.Run.EndTimestamp.Format(TrackingTimeLayout)
		}
		row.WorkflowRunStatus = m.Run.EndStatus
		row.SequenceRunName = m.Run.SequenceRunName
		row.SequenceRunFailed = boolCell(m.Run.SequenceRunFailed)
	}
	if m.Case != nil {
		row.CaseID = m.Case.CaseID
		row.CaseAccessionNumber = m.Case.AccessionNumber
		if !m.Case.CreationDate.IsZero() {
			row.CaseCreationDate = m.Case.CreationDate.Format(TrackingTimeLayout)
		}
		row.CaseAssignee = m.Case.Assignee
		row.CaseIdentified = boolCell(m.Case.Identified)
		row.CaseDiseaseCode = m.Case.DiseaseCode
		row.CaseDiseaseLabel = m.Case.DiseaseLabel
		row.CasePanelType = m.Case.PanelName
		row.CaseSampleType = m.Case.SampleType
		row.JobID = m.Case.JobID
		row.JobStatus = m.Case.JobStatus
		row.ReportID = m.Case.ReportID
		row.ReportStatus = m.Case.ReportStatus
		row.ReportSignedOut = boolCell(m.Case.ReportSignedOut)
	}
	return row
}
