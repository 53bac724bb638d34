package cttso_pieriandx_gateway

import (
	"fmt"
	"regexp"
	"time"
)

// SampleKey identifies a biological sample across every upstream system.
type SampleKey struct {
	SubjectID string
	LibraryID string
}

func (k SampleKey) String() string {
	return fmt.Sprintf("%s/%s", k.SubjectID, k.LibraryID)
}

const (
	RunStatusSucceeded = "Succeeded"
	RunStatusFailed    = "Failed"
	RunStatusAborted   = "Aborted"
)

const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// TerminalStatuses are the workflow/report states after which no further
// polling is required.
var TerminalStatuses = map[string]bool{
	StatusComplete: true,
	StatusFailed:   true,
	StatusCanceled: true,
}

const (
	// CaseIDPending marks a tracking row whose submission was accepted but
	// whose case id has not yet been observed on the diagnostics service.
	CaseIDPending = "pending"
	// CaseIDFailed marks a tracking row whose submission was rejected.
	CaseIDFailed = "failed"
	// AssigneeToBeDeleted is set by operators on cases queued for retirement.
	AssigneeToBeDeleted = "ToBeDeleted"
)

const (
	PanelMain     = "tso500_ctDNA_vcf_workflow_university_of_melbourne"
	PanelSubpanel = "tso500_ctDNA_vcf_subpanel_workflow_university_of_melbourne"

	SampleTypePatientCare = "patientcare"
	SampleTypeValidation  = "validation"

	WorkflowTypeName = "tso_ctdna_tumor_only"
	InformaticsDag   = "cromwell_tso500_ctdna_workflow_1.0.1"
)

// WorkflowRunNameRegex extracts the subject and library ids embedded in an
// automated ctTSO workflow run name.
var WorkflowRunNameRegex = regexp.MustCompile(`umccr__automated__tso_ctdna_tumor_only__(SBJ\d{5})__(L\d{7})__\S+`)

// RunOutputSuffixes are the per-sample sequencing output files shipped to the
// diagnostics service's storage, in upload order. The done marker goes last.
var RunOutputSuffixes = []string{
	"_Fusions.csv",
	"_MergedSmallVariants.genome.vcf.gz",
	"_CopyNumberVariants.vcf.gz",
	".tmb.json.gz",
	".msi.json.gz",
}

const (
	CoverageFileSuffix = "_Failed_Exon_coverage_QC.txt"
	DoneMarkerFile     = "done.txt"
)

// RunRecord is one pipeline execution for a SampleKey, joined to its
// originating sequencing run's pass/fail state.
type RunRecord struct {
	SubjectID         string
	LibraryID         string
	RunID             string
	EndTimestamp      time.Time
	EndStatus         string
	SequenceRunName   string
	SequenceRunFailed bool
}

func (r RunRecord) Key() SampleKey {
	return SampleKey{SubjectID: r.SubjectID, LibraryID: r.LibraryID}
}

// RegistryRecord is one lab registry row for a SampleKey after the project
// mapping table has been applied.
type RegistryRecord struct {
	SubjectID         string
	LibraryID         string
	ProjectOwner      string
	ProjectName       string
	Panel             string
	SampleType        string
	IsIdentified      bool
	DefaultSnomedTerm string
	SequenceRunName   string
	// NeedsClinicalCapture is derived, not stored upstream: true iff the
	// mapping entry carries no default disease term.
	NeedsClinicalCapture bool
}

func (r RegistryRecord) Key() SampleKey {
	return SampleKey{SubjectID: r.SubjectID, LibraryID: r.LibraryID}
}

// ClinicalCaptureRecord is the joined raw+label view of one clinical form.
type ClinicalCaptureRecord struct {
	SubjectID          string
	LibraryID          string
	PhysicianFirstName string
	PhysicianLastName  string
	DiseaseCode        string
	DiseaseLabel       string
	PatientFirstName   string
	PatientLastName    string
	PatientDOB         string
	MRN                string
	Gender             string
	DateCollected      string
	DateReceived       string
	TimeCollected      string
	SampleType         string
	IsComplete         bool
}

func (c ClinicalCaptureRecord) Key() SampleKey {
	return SampleKey{SubjectID: c.SubjectID, LibraryID: c.LibraryID}
}

// DiagnosticsCase is the normalized view of one case on the diagnostics
// service, with subject/library derived from the accession number and the
// assignee list reduced to its last element.
type DiagnosticsCase struct {
	CaseID          string
	AccessionNumber string
	SubjectID       string
	LibraryID       string
	CreationDate    time.Time
	Assignee        string
	Identified      bool
	DiseaseCode     string
	DiseaseLabel    string
	PanelName       string
	SampleType      string
	JobID           string
	JobStatus       string
	ReportID        string
	ReportStatus    string
	ReportSignedOut bool
}

func (d DiagnosticsCase) Key() SampleKey {
	return SampleKey{SubjectID: d.SubjectID, LibraryID: d.LibraryID}
}

// MergedRecord is one row of the reconciliation master table: typed optional
// facets per source plus the four presence booleans. A SampleKey may span
// multiple MergedRecords while duplicate diagnostics cases exist.
type MergedRecord struct {
	SubjectID string
	LibraryID string

	Registry *RegistryRecord
	Run      *RunRecord
	Clinical *ClinicalCaptureRecord
	Case     *DiagnosticsCase

	InRegistry        bool
	InPipeline        bool
	InClinicalCapture bool
	InDiagnostics     bool
}

func (m MergedRecord) Key() SampleKey {
	return SampleKey{SubjectID: m.SubjectID, LibraryID: m.LibraryID}
}

// RunID returns the current pipeline run id, or "" when the sample has no
// pipeline presence.
func (m MergedRecord) RunID() string {
	if m.Run == nil {
		return ""
	}
	return m.Run.RunID
}

// CaseID returns the current diagnostics case id, or "" when none survives
// validity filtering.
func (m MergedRecord) CaseID() string {
	if m.Case == nil {
		return ""
	}
	return m.Case.CaseID
}

// Clock supplies the current time to the engine so multi-pass behavior is
// deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}
