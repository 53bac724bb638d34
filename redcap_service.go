package cttso_pieriandx_gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Clinical defaults used when a sample is allowed to skip clinical capture
// or when a captured field is blank.
const (
	DefaultDiseaseCode        = "285645000"
	DefaultDiseaseLabel       = "Disseminated malignancy of unknown primary"
	DefaultSpecimenCode       = "122561005"
	DefaultSpecimenLabel      = "Blood specimen from patient"
	DefaultPhysicianFirstName = "Sean"
	DefaultPhysicianLastName  = "Grimmond"
	DefaultPatientFirstName   = "John"
	DefaultPatientLastName    = "Doe"
	DefaultGender             = "unknown"
	DefaultEthnicity          = "unknown"
	DefaultRace               = "unknown"
	DefaultHospitalNumber     = "99"
	// timestamps captured without a zone get the lab's local offset
	AusTimezoneSuffix = "+10:00"
)

// RedCapService reads the clinical data capture project. Every fetch joins
// the raw and label views of the same records, since codes live in one and
// human-readable values in the other.
type RedCapService struct {
	baseURL string
	token   string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

func NewRedCapService(baseURL, token string, retry RetryPolicy, logger *slog.Logger) *RedCapService {
	return &RedCapService{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
		retry:   retry,
		logger:  logger,
	}
}

type redcapRawRow struct {
	SubjectID      string `json:"subjectid"`
	LibraryID      string `json:"libraryid"`
	Disease        string `json:"disease"`
	DateCollection string `json:"date_collection"`
	TimeCollected  string `json:"time_collected"`
	DateReceipt    string `json:"date_receipt"`
}

type redcapLabelRow struct {
	SubjectID          string `json:"subjectid"`
	LibraryID          string `json:"libraryid"`
	Disease            string `json:"disease"`
	ClinicianFirstName string `json:"clinician_firstname"`
	ClinicianLastName  string `json:"clinician_lastname"`
	PatientFirstName   string `json:"p_firstname"`
	PatientLastName    string `json:"p_lastname"`
	PatientDOB         string `json:"dob"`
	MRN                string `json:"mrn"`
	Gender             string `json:"gender"`
	ReportType         string `json:"report_type"`
	MetadataComplete   string `json:"pieriandx_metadata_complete"`
}

// Fetch returns every clinical capture record in the project, raw and label
// views joined on subject/library. Raw rows with no label sibling are
// dropped with a warning (half-entered forms).
func (r *RedCapService) Fetch(ctx context.Context) ([]ClinicalCaptureRecord, error) {
	rawRows, err := fetchRecords[redcapRawRow](ctx, r, "raw")
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch raw clinical records: %v", err)
	}
	labelRows, err := fetchRecords[redcapLabelRow](ctx, r, "label")
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch label clinical records: %v", err)
	}

	labelByKey := make(map[SampleKey]redcapLabelRow, len(labelRows))
	for _, row := range labelRows {
		labelByKey[SampleKey{SubjectID: row.SubjectID, LibraryID: row.LibraryID}] = row
	}

	var records []ClinicalCaptureRecord
	for _, raw := range rawRows {
		key := SampleKey{SubjectID: raw.SubjectID, LibraryID: raw.LibraryID}
		label, ok := labelByKey[key]
		if !ok {
			r.logger.Warn("Clinical record has no label sibling", "subject_id", raw.SubjectID, "library_id", raw.LibraryID)
			continue
		}
		records = append(records, joinClinicalRows(raw, label))
	}
	return records, nil
}

// FetchSample returns the clinical record for one sample. When none exists
// and allowMissing is set, a record synthesized from the clinical defaults
// is returned instead of an error.
func (r *RedCapService) FetchSample(ctx context.Context, key SampleKey, allowMissing bool) (ClinicalCaptureRecord, error) {
	records, err := r.Fetch(ctx)
	if err != nil {
		return ClinicalCaptureRecord{}, err
	}
	for _, rec := range records {
		if rec.Key() == key {
			return rec, nil
		}
	}
	if !allowMissing {
		return ClinicalCaptureRecord{}, fmt.Errorf("no clinical record found for '%s'", key)
	}
	r.logger.Info("No clinical record found, using defaults", "subject_id", key.SubjectID, "library_id", key.LibraryID)
	return DefaultClinicalRecord(key), nil
}

// DefaultClinicalRecord builds a stand-in clinical record from the
// hardcoded defaults for samples that skip clinical capture.
func DefaultClinicalRecord(key SampleKey) ClinicalCaptureRecord {
	return ClinicalCaptureRecord{
		SubjectID:          key.SubjectID,
		LibraryID:          key.LibraryID,
		PhysicianFirstName: DefaultPhysicianFirstName,
		PhysicianLastName:  DefaultPhysicianLastName,
		DiseaseCode:        DefaultDiseaseCode,
		DiseaseLabel:       DefaultDiseaseLabel,
		PatientFirstName:   DefaultPatientFirstName,
		PatientLastName:    DefaultPatientLastName,
		Gender:             DefaultGender,
		IsComplete:         false,
	}
}

func joinClinicalRows(raw redcapRawRow, label redcapLabelRow) ClinicalCaptureRecord {
	return ClinicalCaptureRecord{
		SubjectID:          raw.SubjectID,
		LibraryID:          raw.LibraryID,
		PhysicianFirstName: label.ClinicianFirstName,
		PhysicianLastName:  label.ClinicianLastName,
		DiseaseCode:        raw.Disease,
		DiseaseLabel:       label.Disease,
		PatientFirstName:   label.PatientFirstName,
		PatientLastName:    label.PatientLastName,
		PatientDOB:         label.PatientDOB,
		MRN:                label.MRN,
		Gender:             strings.ToLower(label.Gender),
		DateCollected:      assembleTimestamp(raw.DateCollection, raw.TimeCollected),
		DateReceived:       assembleTimestamp(raw.DateReceipt, ""),
		TimeCollected:      raw.TimeCollected,
		SampleType:         strings.ToLower(label.ReportType),
		IsComplete:         label.MetadataComplete == "Complete",
	}
}

// assembleTimestamp combines the separately captured date and time fields
// into one zoned timestamp string.
func assembleTimestamp(date, clock string) string {
	if date == "" {
		return ""
	}
	if clock == "" {
		clock = "00:00"
	}
	return fmt.Sprintf("%sT%s:00%s", date, clock, AusTimezoneSuffix)
}

func fetchRecords[T any](ctx context.Context, r *RedCapService, rawOrLabel string) ([]T, error) {
	form := url.Values{}
	form.Set("token", r.token)
	form.Set("content", "record")
	form.Set("format", "json")
	form.Set("rawOrLabel", rawOrLabel)
	form.Set("rawOrLabelHeaders", "raw")

	var rows []T
	err := r.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("clinical capture returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		rows = nil
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
