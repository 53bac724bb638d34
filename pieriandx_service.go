package cttso_pieriandx_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// PierianDxService wraps the diagnostics service HTTP API. Every call runs
// under the injected retry policy; exhausting it surfaces the corresponding
// typed error.
type PierianDxService struct {
	baseURL     string
	email       string
	authToken   string
	institution string
	client      *http.Client
	retry       RetryPolicy
	logger      *slog.Logger
}

func NewPierianDxService(baseURL, email, authToken, institution string, retry RetryPolicy, logger *slog.Logger) *PierianDxService {
	return &PierianDxService{
		baseURL:     baseURL,
		email:       email,
		authToken:   authToken,
		institution: institution,
		client:      &http.Client{Timeout: 120 * time.Second},
		retry:       retry,
		logger:      logger,
	}
}

func (p *PierianDxService) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Auth-Email", p.email)
	req.Header.Set("X-Auth-Key", p.authToken)
	req.Header.Set("X-Auth-Institution", p.institution)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (p *PierianDxService) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var data []byte
	err := p.retry.Do(ctx, func() error {
		var body io.Reader
		contentType := ""
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("Failed to marshal payload for '%s': %v", path, err)
			}
			body = bytes.NewReader(b)
			contentType = "application/json"
		}
		req, err := p.newRequest(ctx, method, path, body, contentType)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("diagnostics service returned status %d for '%s %s'", resp.StatusCode, method, path)
		}
		return nil
	})
	return data, err
}

// Ping probes the service before the engine commits to a submission phase.
func (p *PierianDxService) Ping(ctx context.Context) error {
	_, err := p.do(ctx, http.MethodGet, "/health", nil)
	return err
}

func (p *PierianDxService) listCases(ctx context.Context) ([]wireCase, error) {
	data, err := p.do(ctx, http.MethodGet, "/case", nil)
	if err != nil {
		return nil, ListCasesError{Err: err}
	}
	cases, err := UnmarshalT[[]wireCase](data)
	if err != nil {
		return nil, ListCasesError{Err: err}
	}
	return cases, nil
}

// FetchCases lists every case and normalizes it: the sample key is derived
// from the accession number (cases whose accession cannot be parsed are
// dropped, not propagated as errors) and the assignee list is reduced to
// its last element.
func (p *PierianDxService) FetchCases(ctx context.Context) ([]DiagnosticsCase, error) {
	wire, err := p.listCases(ctx)
	if err != nil {
		return nil, err
	}
	var cases []DiagnosticsCase
	for _, wc := range wire {
		dc, ok := p.normalizeCase(wc)
		if !ok {
			continue
		}
		cases = append(cases, dc)
	}
	return cases, nil
}

// ListAccessionNumbers returns every accession number currently present on
// the service, including ones whose sample key cannot be parsed.
func (p *PierianDxService) ListAccessionNumbers(ctx context.Context) ([]string, error) {
	wire, err := p.listCases(ctx)
	if err != nil {
		return nil, err
	}
	var accessions []string
	for _, wc := range wire {
		if acc := caseAccession(wc); acc != "" {
			accessions = append(accessions, acc)
		}
	}
	return accessions, nil
}

// CheckCaseExists reports whether any case already carries the accession
// number.
func (p *PierianDxService) CheckCaseExists(ctx context.Context, accessionNumber string) (bool, error) {
	accessions, err := p.ListAccessionNumbers(ctx)
	if err != nil {
		return false, err
	}
	for _, acc := range accessions {
		if acc == accessionNumber {
			return true, nil
		}
	}
	return false, nil
}

// CreateCase submits the case payload for either case shape and returns the
// service-assigned case id.
func (p *PierianDxService) CreateCase(ctx context.Context, variant CaseVariant) (string, error) {
	req := variant.BuildCaseRequest()
	data, err := p.do(ctx, http.MethodPost, "/case", req)
	if err != nil {
		return "", CaseCreationError{AccessionNumber: req.Specimens[0].AccessionNumber, Err: err}
	}
	resp, err := UnmarshalT[wireIDResponse](data)
	if err != nil {
		return "", CaseCreationError{AccessionNumber: req.Specimens[0].AccessionNumber, Err: err}
	}
	return resp.ID.String(), nil
}

// CreateSequencerRun registers a sequencer run and returns its id.
func (p *PierianDxService) CreateSequencerRun(ctx context.Context, req CreateSequencerRunRequest) (string, error) {
	data, err := p.do(ctx, http.MethodPost, "/sequencerRun", req)
	if err != nil {
		return "", SequencingRunCreationError{RunID: req.RunID, Err: err}
	}
	resp, err := UnmarshalT[wireIDResponse](data)
	if err != nil {
		return "", SequencingRunCreationError{RunID: req.RunID, Err: err}
	}
	return resp.ID.String(), nil
}

// UploadCaseFile multipart-uploads one pre-generated QC file to a case.
func (p *PierianDxService) UploadCaseFile(ctx context.Context, caseID, filename string, content []byte) error {
	path := fmt.Sprintf("/case/%s/caseFiles/%s/", caseID, filename)
	err := p.retry.Do(ctx, func() error {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(content); err != nil {
			return err
		}
		if err := writer.Close(); err != nil {
			return err
		}
		req, err := p.newRequest(ctx, http.MethodPost, path, &buf, writer.FormDataContentType())
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("diagnostics service returned status %d for case file '%s'", resp.StatusCode, filename)
		}
		return nil
	})
	if err != nil {
		return UploadCaseFileError{CaseID: caseID, Filename: filename, Err: err}
	}
	return nil
}

// CreateInformaticsJob launches the analysis for a case and returns the job
// id.
func (p *PierianDxService) CreateInformaticsJob(ctx context.Context, caseID string, req CreateInformaticsJobRequest) (string, error) {
	data, err := p.do(ctx, http.MethodPost, fmt.Sprintf("/case/%s/informaticsJobs", caseID), req)
	if err != nil {
		return "", JobCreationError{CaseID: caseID, Err: err}
	}
	resp, err := UnmarshalT[wireJobResponse](data)
	if err != nil {
		return "", JobCreationError{CaseID: caseID, Err: err}
	}
	return resp.JobID.String(), nil
}

// CaseStatus fetches the full case and reduces its informatics jobs and
// reports to the numerically-highest (current) entries.
func (p *PierianDxService) CaseStatus(ctx context.Context, caseID string) (DiagnosticsCase, error) {
	data, err := p.do(ctx, http.MethodGet, fmt.Sprintf("/case/%s", caseID), nil)
	if err != nil {
		return DiagnosticsCase{}, CaseNotFoundError{CaseID: caseID}
	}
	wc, err := UnmarshalT[wireCase](data)
	if err != nil {
		return DiagnosticsCase{}, fmt.Errorf("Failed to unmarshal case '%s': %v", caseID, err)
	}
	dc, ok := p.normalizeCase(wc)
	if !ok {
		return DiagnosticsCase{}, ArgumentError{Msg: fmt.Sprintf("case '%s' has an unparseable accession number", caseID)}
	}
	return dc, nil
}

// DownloadReport fetches one rendered report for a case.
func (p *PierianDxService) DownloadReport(ctx context.Context, caseID, reportID, format string) ([]byte, error) {
	path := fmt.Sprintf("/case/%s/reports/%s?format=%s", caseID, reportID, format)
	data, err := p.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("Failed to download report '%s' for case '%s': %v", reportID, caseID, err)
	}
	return data, nil
}

func (p *PierianDxService) normalizeCase(wc wireCase) (DiagnosticsCase, bool) {
	accession := caseAccession(wc)
	key, err := SplitAccessionNumber(accession)
	if err != nil {
		p.logger.Debug("Dropping case with unparseable accession number", "case_id", wc.ID.String(), "accession_number", accession)
		return DiagnosticsCase{}, false
	}

	dc := DiagnosticsCase{
		CaseID:          wc.ID.String(),
		AccessionNumber: accession,
		SubjectID:       key.SubjectID,
		LibraryID:       key.LibraryID,
		CreationDate:    parseCaseDate(wc.DateCreated),
		Identified:      wc.Identified,
		DiseaseCode:     wc.Disease.Code,
		DiseaseLabel:    wc.Disease.Label,
		PanelName:       wc.PanelName,
		SampleType:      wc.SampleType,
	}
	if len(wc.Assignee) > 0 {
		dc.Assignee = wc.Assignee[len(wc.Assignee)-1]
	}
	if job, ok := currentJob(wc.InformaticsJobs); ok {
		dc.JobID = job.ID.String()
		dc.JobStatus = job.Status
	}
	if report, ok := currentReport(wc.Reports); ok {
		dc.ReportID = report.ID.String()
		dc.ReportStatus = report.Status
		dc.ReportSignedOut = report.SignedOut
	}
	return dc, true
}

func caseAccession(wc wireCase) string {
	if wc.CaseAccessionNumber != "" {
		return wc.CaseAccessionNumber
	}
	if len(wc.Specimens) > 0 {
		return wc.Specimens[0].AccessionNumber
	}
	return ""
}

// currentJob picks the numerically-highest job id; only that entry reflects
// the case's present analysis state.
func currentJob(jobs []wireInformaticsJob) (wireInformaticsJob, bool) {
	var current wireInformaticsJob
	found := false
	for _, j := range jobs {
		if !found || numberValue(j.ID) > numberValue(current.ID) {
			current = j
			found = true
		}
	}
	return current, found
}

func currentReport(reports []wireReport) (wireReport, bool) {
	var current wireReport
	found := false
	for _, r := range reports {
		if !found || numberValue(r.ID) > numberValue(current.ID) {
			current = r
			found = true
		}
	}
	return current, found
}

func numberValue(n json.Number) int64 {
	v, err := n.Int64()
	if err != nil {
		return -1
	}
	return v
}

func parseCaseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
