package cttso_pieriandx_gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SubmissionState tracks progress through the case submission sequence.
// States are strictly ordered; no transition may be skipped, and each one
// requires the diagnostics-service call behind it to succeed.
type SubmissionState int

const (
	NotStarted SubmissionState = iota
	CaseExistenceChecked
	CaseCreated
	SequencingRunCreated
	CaseFilesUploaded
	FilesUploadedToStorage
	InformaticsJobLaunched
)

func (s SubmissionState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case CaseExistenceChecked:
		return "CaseExistenceChecked"
	case CaseCreated:
		return "CaseCreated"
	case SequencingRunCreated:
		return "SequencingRunCreated"
	case CaseFilesUploaded:
		return "CaseFilesUploaded"
	case FilesUploadedToStorage:
		return "FilesUploadedToStorage"
	case InformaticsJobLaunched:
		return "InformaticsJobLaunched"
	}
	return fmt.Sprintf("SubmissionState(%d)", int(s))
}

// DryrunSentinelID is assigned in place of every service id when no network
// call is made.
const DryrunSentinelID = "0"

// AccessionPayload is the full accession metadata blob handed to the
// submission trigger, base64-encoded in transit.
type AccessionPayload struct {
	AccessionNumber    string `json:"case_accession_number"`
	DiseaseCode        string `json:"disease_code"`
	DiseaseLabel       string `json:"disease_label"`
	SpecimenCode       string `json:"specimen_code"`
	SpecimenLabel      string `json:"specimen_label"`
	Indication         string `json:"indication"`
	DateAccessioned    string `json:"date_accessioned"`
	DateReceived       string `json:"date_received"`
	DateCollected      string `json:"date_collected"`
	Gender             string `json:"gender"`
	Ethnicity          string `json:"ethnicity"`
	Race               string `json:"race"`
	StudyIdentifier    string `json:"study_identifier"`
	StudySubject       string `json:"study_subject_identifier"`
	ExternalSpecimenID string `json:"external_specimen_id"`
	PatientFirstName   string `json:"first_name"`
	PatientLastName    string `json:"last_name"`
	PatientDOB         string `json:"date_of_birth"`
	MRN                string `json:"mrn"`
	Facility           string `json:"facility"`
	HospitalNumber     string `json:"hospital_number"`
	PhysicianFirstName string `json:"requesting_physician_first_name"`
	PhysicianLastName  string `json:"requesting_physician_last_name"`
	SequencerRunID     string `json:"sequencer_run_id"`
	SampleID           string `json:"sample_id"`
	SamplesheetPath    string `json:"samplesheet_path"`
	RunOutputDir       string `json:"run_output_dir"`
}

// SubmissionRequest is the entry payload consumed by the submission
// trigger.
type SubmissionRequest struct {
	SubjectID     string `json:"subject_id"`
	LibraryID     string `json:"library_id"`
	WorkflowRunID string `json:"ica_workflow_run_id"`
	PanelType     string `json:"panel_type"`
	SampleType    string `json:"sample_type"`
	IsIdentified  bool   `json:"is_identified"`
	AccessionJSON string `json:"accession_json_base64_str"`
	Dryrun        bool   `json:"dryrun"`
	Verbose       bool   `json:"verbose"`

	accession *AccessionPayload
}

func (r SubmissionRequest) Key() SampleKey {
	return SampleKey{SubjectID: r.SubjectID, LibraryID: r.LibraryID}
}

// Accession decodes the base64 accession blob.
func (r *SubmissionRequest) Accession() (AccessionPayload, error) {
	if r.accession != nil {
		return *r.accession, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.AccessionJSON)
	if err != nil {
		return AccessionPayload{}, ArgumentError{Msg: fmt.Sprintf("accession blob is not valid base64: %v", err)}
	}
	payload, err := UnmarshalT[AccessionPayload](data)
	if err != nil {
		return AccessionPayload{}, ArgumentError{Msg: fmt.Sprintf("accession blob is not valid JSON: %v", err)}
	}
	r.accession = &payload
	return payload, nil
}

// EncodeAccession is the inverse of Accession, used when building a request.
func EncodeAccession(payload AccessionPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("Failed to marshal accession payload: %v", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// CaseSubmission drives one sample through the case submission sequence.
// All transitions are strictly sequential; separate samples run as separate
// CaseSubmission values.
type CaseSubmission struct {
	diag      *PierianDxService
	s3        *AWSS3Service
	s3Bucket  string
	req       SubmissionRequest
	accession AccessionPayload
	logger    *slog.Logger

	state            SubmissionState
	CaseID           string
	SequencerRunID   string
	InformaticsJobID string
}

func NewCaseSubmission(diag *PierianDxService, s3 *AWSS3Service, s3Bucket string, req SubmissionRequest, logger *slog.Logger) (*CaseSubmission, error) {
	accession, err := (&req).Accession()
	if err != nil {
		return nil, err
	}
	if err := ValidateAccessionNumber(req.Key(), accession.AccessionNumber); err != nil {
		return nil, err
	}
	return &CaseSubmission{
		diag:      diag,
		s3:        s3,
		s3Bucket:  s3Bucket,
		req:       req,
		accession: accession,
		logger:    logger.With("accession_number", accession.AccessionNumber),
		state:     NotStarted,
	}, nil
}

func (c *CaseSubmission) State() SubmissionState { return c.state }

// Submit walks every state in order. The first failed transition aborts the
// sequence and surfaces its typed error; the submission is observed by the
// next reconciliation pass, never resumed in place.
func (c *CaseSubmission) Submit(ctx context.Context) error {
	steps := []struct {
		next SubmissionState
		run  func(context.Context) error
	}{
		{CaseExistenceChecked, c.checkCaseExistence},
		{CaseCreated, c.createCase},
		{SequencingRunCreated, c.createSequencerRun},
		{CaseFilesUploaded, c.uploadCaseFiles},
		{FilesUploadedToStorage, c.uploadRunOutputs},
		{InformaticsJobLaunched, c.launchInformaticsJob},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			c.logger.Error("Submission aborted", "state", c.state.String(), "error", err)
			return err
		}
		c.state = step.next
		c.logger.Info("Submission advanced", "state", c.state.String())
	}
	return nil
}

func (c *CaseSubmission) checkCaseExistence(ctx context.Context) error {
	if c.req.Dryrun {
		c.logger.Info("Dryrun: would check case existence")
		return nil
	}
	exists, err := c.diag.CheckCaseExists(ctx, c.accession.AccessionNumber)
	if err != nil {
		return err
	}
	if exists {
		// never silently reuse an accession number
		return CaseExistsError{AccessionNumber: c.accession.AccessionNumber}
	}
	return nil
}

func (c *CaseSubmission) createCase(ctx context.Context) error {
	variant := c.caseVariant()
	if c.req.Dryrun {
		payload, _ := json.Marshal(variant.BuildCaseRequest())
		c.logger.Info("Dryrun: would create case", "payload", string(payload))
		c.CaseID = DryrunSentinelID
		return nil
	}
	caseID, err := c.diag.CreateCase(ctx, variant)
	if err != nil {
		return err
	}
	c.CaseID = caseID
	return nil
}

func (c *CaseSubmission) caseVariant() CaseVariant {
	a := c.accession
	disease := Disease{Code: a.DiseaseCode, Label: a.DiseaseLabel}
	specimenType := SpecimenType{Code: a.SpecimenCode, Label: a.SpecimenLabel}
	physician := Physician{FirstName: a.PhysicianFirstName, LastName: a.PhysicianLastName}
	if c.req.IsIdentified {
		return IdentifiedCase{
			AccessionNumber:    a.AccessionNumber,
			ExternalSpecimenID: a.ExternalSpecimenID,
			Disease:            disease,
			SpecimenType:       specimenType,
			PanelName:          c.panelName(),
			SampleType:         c.req.SampleType,
			Indication:         a.Indication,
			DateAccessioned:    a.DateAccessioned,
			DateReceived:       a.DateReceived,
			DateCollected:      a.DateCollected,
			Gender:             a.Gender,
			Ethnicity:          a.Ethnicity,
			Race:               a.Race,
			Physician:          physician,
			PatientFirstName:   a.PatientFirstName,
			PatientLastName:    a.PatientLastName,
			PatientDOB:         a.PatientDOB,
			MRN:                a.MRN,
			Facility:           a.Facility,
			HospitalNumber:     a.HospitalNumber,
		}
	}
	return DeIdentifiedCase{
		AccessionNumber: a.AccessionNumber,
		StudyIdentifier: a.StudyIdentifier,
		StudySubject:    a.StudySubject,
		Disease:         disease,
		SpecimenType:    specimenType,
		PanelName:       c.panelName(),
		SampleType:      c.req.SampleType,
		Indication:      a.Indication,
		DateAccessioned: a.DateAccessioned,
		DateReceived:    a.DateReceived,
		DateCollected:   a.DateCollected,
		Gender:          a.Gender,
		Ethnicity:       a.Ethnicity,
		Race:            a.Race,
		Physician:       physician,
	}
}

func (c *CaseSubmission) panelName() string {
	if c.req.PanelType == "subpanel" {
		return PanelSubpanel
	}
	return PanelMain
}

func (c *CaseSubmission) createSequencerRun(ctx context.Context) error {
	sheet, err := ReadSamplesheet(c.accession.SamplesheetPath)
	if err != nil {
		return SequencingRunCreationError{RunID: c.accession.SequencerRunID, Err: err}
	}
	if err := sheet.FilterToSample(c.accession.SampleID); err != nil {
		return SequencingRunCreationError{RunID: c.accession.SequencerRunID, Err: err}
	}
	if err := sheet.Write(c.accession.SamplesheetPath); err != nil {
		return SequencingRunCreationError{RunID: c.accession.SequencerRunID, Err: err}
	}
	entries, err := sheet.EntriesFor(c.accession.SampleID)
	if err != nil {
		return SequencingRunCreationError{RunID: c.accession.SequencerRunID, Err: err}
	}

	req := CreateSequencerRunRequest{
		RunID: c.accession.SequencerRunID,
		Type:  "pairedEnd",
	}
	for _, e := range entries {
		req.Specimens = append(req.Specimens, SequencerRunSpecimen{
			AccessionNumber: c.accession.AccessionNumber,
			Lane:            e.Lane,
			Barcode:         e.Barcode(),
			SampleID:        e.SampleID,
			SampleType:      c.req.SampleType,
		})
	}
	if c.req.Dryrun {
		payload, _ := json.Marshal(req)
		c.logger.Info("Dryrun: would create sequencer run", "payload", string(payload))
		c.SequencerRunID = DryrunSentinelID
		return nil
	}
	runID, err := c.diag.CreateSequencerRun(ctx, req)
	if err != nil {
		return err
	}
	c.SequencerRunID = runID
	return nil
}

func (c *CaseSubmission) uploadCaseFiles(ctx context.Context) error {
	suffixes := append(append([]string{}, RunOutputSuffixes...), CoverageFileSuffix)
	for _, suffix := range suffixes {
		filename := c.accession.SampleID + suffix
		path := filepath.Join(c.accession.RunOutputDir, filename)
		content, err := os.ReadFile(path)
		if err != nil {
			return UploadCaseFileError{CaseID: c.CaseID, Filename: filename, Err: err}
		}
		if c.req.Dryrun {
			c.logger.Info("Dryrun: would upload case file", "filename", filename)
			continue
		}
		if err := c.diag.UploadCaseFile(ctx, c.CaseID, filename, content); err != nil {
			return err
		}
	}
	return nil
}

func (c *CaseSubmission) uploadRunOutputs(ctx context.Context) error {
	runPrefix := fmt.Sprintf("%s/%s", c.accession.SequencerRunID, c.accession.SampleID)
	if c.req.Dryrun {
		c.logger.Info("Dryrun: would upload run outputs", "bucket", c.s3Bucket, "prefix", runPrefix)
		return nil
	}
	return c.s3.UploadRunOutputs(ctx, c.s3Bucket, runPrefix, c.accession.RunOutputDir)
}

func (c *CaseSubmission) launchInformaticsJob(ctx context.Context) error {
	req := CreateInformaticsJobRequest{
		Input: []InformaticsJobInput{{
			AccessionNumber:   c.accession.AccessionNumber,
			SequencerRunInfos: []SequencerRunInfo{{RunID: c.accession.SequencerRunID}},
		}},
	}
	if c.req.Dryrun {
		payload, _ := json.Marshal(req)
		c.logger.Info("Dryrun: would launch informatics job", "payload", string(payload))
		c.InformaticsJobID = DryrunSentinelID
		return nil
	}
	jobID, err := c.diag.CreateInformaticsJob(ctx, c.CaseID, req)
	if err != nil {
		return err
	}
	c.InformaticsJobID = jobID
	return nil
}
