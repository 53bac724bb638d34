package cttso_pieriandx_gateway

import "encoding/json"

// Wire payloads for the diagnostics service. One explicit struct per
// endpoint; the case payload has a DeIdentified and an Identified variant,
// chosen through the CaseVariant interface rather than by mutating a shared
// shape.

type Disease struct {
	Code  string `json:"code"`
	Label string `json:"label,omitempty"`
}

type SpecimenType struct {
	Code  string `json:"code"`
	Label string `json:"label,omitempty"`
}

type MedicalFacility struct {
	Facility       string `json:"facility"`
	HospitalNumber string `json:"hospitalNumber"`
}

type MedicalRecordNumber struct {
	MRN             string          `json:"mrn"`
	MedicalFacility MedicalFacility `json:"medicalFacility"`
}

type Physician struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type CaseSpecimen struct {
	AccessionNumber string       `json:"accessionNumber"`
	DateAccessioned string       `json:"dateAccessioned"`
	DateReceived    string       `json:"dateReceived"`
	DateCollected   string       `json:"dateCollected"`
	Name            string       `json:"name"`
	Type            SpecimenType `json:"type"`
	Gender          string       `json:"gender,omitempty"`
	Ethnicity       string       `json:"ethnicity,omitempty"`
	Race            string       `json:"race,omitempty"`

	// de-identified variant
	StudyIdentifier        string `json:"studyIdentifier,omitempty"`
	StudySubjectIdentifier string `json:"studySubjectIdentifier,omitempty"`

	// identified variant
	ExternalSpecimenID   string                `json:"externalSpecimenId,omitempty"`
	FirstName            string                `json:"firstName,omitempty"`
	LastName             string                `json:"lastName,omitempty"`
	DateOfBirth          string                `json:"dateOfBirth,omitempty"`
	MedicalRecordNumbers []MedicalRecordNumber `json:"medicalRecordNumbers,omitempty"`
}

type CreateCaseRequest struct {
	Identified bool           `json:"identified"`
	Indication string         `json:"indication,omitempty"`
	PanelName  string         `json:"panelName"`
	SampleType string         `json:"sampleType"`
	Disease    Disease        `json:"disease"`
	Physicians []Physician    `json:"physicians,omitempty"`
	Specimens  []CaseSpecimen `json:"specimens"`
}

// CaseVariant builds the case payload for one of the two case shapes.
type CaseVariant interface {
	BuildCaseRequest() CreateCaseRequest
}

// DeIdentifiedCase carries only study identifiers, no patient identity.
type DeIdentifiedCase struct {
	AccessionNumber string
	StudyIdentifier string
	StudySubject    string
	Disease         Disease
	SpecimenType    SpecimenType
	PanelName       string
	SampleType      string
	Indication      string
	DateAccessioned string
	DateReceived    string
	DateCollected   string
	Gender          string
	Ethnicity       string
	Race            string
	Physician       Physician
}

func (c DeIdentifiedCase) BuildCaseRequest() CreateCaseRequest {
	return CreateCaseRequest{
		Identified: false,
		Indication: c.Indication,
		PanelName:  c.PanelName,
		SampleType: c.SampleType,
		Disease:    c.Disease,
		Physicians: []Physician{c.Physician},
		Specimens: []CaseSpecimen{{
			AccessionNumber:        c.AccessionNumber,
			DateAccessioned:        c.DateAccessioned,
			DateReceived:           c.DateReceived,
			DateCollected:          c.DateCollected,
			Name:                   c.SpecimenType.Label,
			Type:                   c.SpecimenType,
			Gender:                 c.Gender,
			Ethnicity:              c.Ethnicity,
			Race:                   c.Race,
			StudyIdentifier:        c.StudyIdentifier,
			StudySubjectIdentifier: c.StudySubject,
		}},
	}
}

// IdentifiedCase carries patient identity and the external specimen id.
type IdentifiedCase struct {
	AccessionNumber    string
	ExternalSpecimenID string
	Disease            Disease
	SpecimenType       SpecimenType
	PanelName          string
	SampleType         string
	Indication         string
	DateAccessioned    string
	DateReceived       string
	DateCollected      string
	Gender             string
	Ethnicity          string
	Race               string
	Physician          Physician
	PatientFirstName   string
	PatientLastName    string
	PatientDOB         string
	MRN                string
	Facility           string
	HospitalNumber     string
}

func (c IdentifiedCase) BuildCaseRequest() CreateCaseRequest {
	return CreateCaseRequest{
		Identified: true,
		Indication: c.Indication,
		PanelName:  c.PanelName,
		SampleType: c.SampleType,
		Disease:    c.Disease,
		Physicians: []Physician{c.Physician},
		Specimens: []CaseSpecimen{{
			AccessionNumber:    c.AccessionNumber,
			DateAccessioned:    c.DateAccessioned,
			DateReceived:       c.DateReceived,
			DateCollected:      c.DateCollected,
			Name:               c.SpecimenType.Label,
			Type:               c.SpecimenType,
			Gender:             c.Gender,
			Ethnicity:          c.Ethnicity,
			Race:               c.Race,
			ExternalSpecimenID: c.ExternalSpecimenID,
			FirstName:          c.PatientFirstName,
			LastName:           c.PatientLastName,
			DateOfBirth:        c.PatientDOB,
			MedicalRecordNumbers: []MedicalRecordNumber{{
				MRN: c.MRN,
				MedicalFacility: MedicalFacility{
					Facility:       c.Facility,
					HospitalNumber: c.HospitalNumber,
				},
			}},
		}},
	}
}

type SequencerRunSpecimen struct {
	AccessionNumber string `json:"accessionNumber"`
	Lane            int    `json:"lane"`
	Barcode         string `json:"barcode"`
	SampleID        string `json:"sampleId"`
	SampleType      string `json:"sampleType"`
}

type CreateSequencerRunRequest struct {
	RunID     string                 `json:"runId"`
	Type      string                 `json:"type"`
	Specimens []SequencerRunSpecimen `json:"specimens"`
}

type SequencerRunInfo struct {
	RunID string `json:"runId"`
}

type InformaticsJobInput struct {
	AccessionNumber   string             `json:"accessionNumber"`
	SequencerRunInfos []SequencerRunInfo `json:"sequencerRunInfos"`
}

type CreateInformaticsJobRequest struct {
	Input []InformaticsJobInput `json:"input"`
}

// Wire responses.

type wireIDResponse struct {
	ID json.Number `json:"id"`
}

type wireJobResponse struct {
	JobID json.Number `json:"jobId"`
}

type wireInformaticsJob struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
}

type wireReport struct {
	ID        json.Number `json:"id"`
	Status    string      `json:"status"`
	SignedOut bool        `json:"signedOut"`
}

type wireCaseSpecimen struct {
	AccessionNumber string `json:"accessionNumber"`
}

type wireCase struct {
	ID                  json.Number          `json:"id"`
	CaseAccessionNumber string               `json:"caseAccessionNumber"`
	DateCreated         string               `json:"dateCreated"`
	Assignee            []string             `json:"assignee"`
	Identified          bool                 `json:"identified"`
	Disease             Disease              `json:"disease"`
	PanelName           string               `json:"panelName"`
	SampleType          string               `json:"sampleType"`
	InformaticsJobs     []wireInformaticsJob `json:"informaticsJobs"`
	Reports             []wireReport         `json:"reports"`
	Specimens           []wireCaseSpecimen   `json:"specimens"`
}
