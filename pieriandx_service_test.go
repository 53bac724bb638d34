package cttso_pieriandx_gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

var zeroDelayRetry = RetryPolicy{MaxAttempts: 3, Delay: 0}

func newPierianDxTestService(serverURL string) *PierianDxService {
	return NewPierianDxService(serverURL, "test@umccr.org", "token", "melbournetest", zeroDelayRetry, testLogger)
}

func TestPierianDxServiceFetchCases(t *testing.T) {

	t.Run("normalizes the case payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-Auth-Institution"); got != "melbournetest" {
				t.Errorf("got institution header %q want melbournetest", got)
			}
			fmt.Fprintf(w, "[%s]", CaseJSON)
		}))
		defer server.Close()

		cases, err := newPierianDxTestService(server.URL).FetchCases(context.Background())
		if err != nil {
			t.Fatalf("cannot fetch cases: %q", err)
		}
		if len(cases) != 1 {
			t.Fatalf("got %d cases want 1", len(cases))
		}

		got := cases[0]
		if got.CaseID != "100161" {
			t.Errorf("got case id %v want 100161", got.CaseID)
		}
		if got.SubjectID != "SBJ00595" || got.LibraryID != "L2100721" {
			t.Errorf("sample key not derived from accession: %+v", got)
		}
		if got.Assignee != "ToBeDeleted" {
			t.Errorf("got assignee %v want the last list element", got.Assignee)
		}
		if got.JobID != "10582" || got.JobStatus != "complete" {
			t.Errorf("current informatics job wrong: %+v", got)
		}
		if got.ReportID != "9574" || got.ReportStatus != "complete" || got.ReportSignedOut {
			t.Errorf("current report wrong: %+v", got)
		}
		if got.CreationDate.IsZero() {
			t.Error("creation date not parsed")
		}
	})

	t.Run("drops cases with unparseable accessions", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[
				{"id": 1, "caseAccessionNumber": "NOT_AN_ACCESSION"},
				{"id": 2, "caseAccessionNumber": "SBJ00001_L0000001_001"}
			]`)
		}))
		defer server.Close()

		cases, err := newPierianDxTestService(server.URL).FetchCases(context.Background())
		if err != nil {
			t.Fatalf("cannot fetch cases: %q", err)
		}
		if len(cases) != 1 || cases[0].CaseID != "2" {
			t.Errorf("got %+v want only case 2", cases)
		}
	})

	t.Run("unparseable accessions still count for accession listing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[
				{"id": 1, "caseAccessionNumber": "SBJ00001_L0000001"},
				{"id": 2, "caseAccessionNumber": "SBJ00001_L0000001_001"}
			]`)
		}))
		defer server.Close()

		got, err := newPierianDxTestService(server.URL).ListAccessionNumbers(context.Background())
		if err != nil {
			t.Fatalf("cannot list accessions: %q", err)
		}
		want := []string{"SBJ00001_L0000001", "SBJ00001_L0000001_001"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v want %v", got, want)
		}
	})

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `[]`)
		}))
		defer server.Close()

		if _, err := newPierianDxTestService(server.URL).FetchCases(context.Background()); err != nil {
			t.Fatalf("fetch did not recover: %q", err)
		}
		if calls != 3 {
			t.Errorf("got %d calls want 3", calls)
		}
	})

	t.Run("exhausted retries surface a typed error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := newPierianDxTestService(server.URL).FetchCases(context.Background())
		var listErr ListCasesError
		if !errors.As(err, &listErr) {
			t.Errorf("got %T want ListCasesError", err)
		}
	})
}

func TestPierianDxServiceCheckCaseExists(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 1, "caseAccessionNumber": "SBJ00001_L0000001_001"}]`)
	}))
	defer server.Close()
	service := newPierianDxTestService(server.URL)

	t.Run("existing accession", func(t *testing.T) {
		exists, err := service.CheckCaseExists(context.Background(), "SBJ00001_L0000001_001")
		if err != nil {
			t.Fatalf("cannot check case existence: %q", err)
		}
		if !exists {
			t.Error("got false want true")
		}
	})

	t.Run("unknown accession", func(t *testing.T) {
		exists, err := service.CheckCaseExists(context.Background(), "SBJ00001_L0000001_002")
		if err != nil {
			t.Fatalf("cannot check case existence: %q", err)
		}
		if exists {
			t.Error("got true want false")
		}
	})
}

func TestPierianDxServiceCreateCase(t *testing.T) {

	t.Run("posts the de-identified shape and returns the id", func(t *testing.T) {
		var posted CreateCaseRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &posted); err != nil {
				t.Errorf("cannot unmarshal posted case: %q", err)
			}
			fmt.Fprint(w, `{"id": 100162}`)
		}))
		defer server.Close()

		variant := DeIdentifiedCase{
			AccessionNumber: "SBJ00595_L2100721_001",
			StudyIdentifier: "Validation",
			StudySubject:    "SBJ00595",
			Disease:         Disease{Code: DefaultDiseaseCode, Label: DefaultDiseaseLabel},
			SpecimenType:    SpecimenType{Code: DefaultSpecimenCode, Label: DefaultSpecimenLabel},
			PanelName:       PanelMain,
			SampleType:      SampleTypeValidation,
		}
		id, err := newPierianDxTestService(server.URL).CreateCase(context.Background(), variant)
		if err != nil {
			t.Fatalf("cannot create case: %q", err)
		}
		if id != "100162" {
			t.Errorf("got id %v want 100162", id)
		}
		if posted.Identified {
			t.Error("de-identified case posted as identified")
		}
		if len(posted.Specimens) != 1 || posted.Specimens[0].StudySubjectIdentifier != "SBJ00595" {
			t.Errorf("specimen shape wrong: %+v", posted.Specimens)
		}
		if posted.Specimens[0].FirstName != "" {
			t.Error("de-identified specimen carries patient identity")
		}
	})

	t.Run("identified shape carries the medical record number", func(t *testing.T) {
		variant := IdentifiedCase{
			AccessionNumber:  "SBJ00595_L2100721_001",
			PatientFirstName: "Alex",
			PatientLastName:  "Chen",
			MRN:              "3069999",
			Facility:         "Peter Mac",
			HospitalNumber:   DefaultHospitalNumber,
		}
		req := variant.BuildCaseRequest()
		if !req.Identified {
			t.Error("identified case built as de-identified")
		}
		mrns := req.Specimens[0].MedicalRecordNumbers
		if len(mrns) != 1 || mrns[0].MRN != "3069999" || mrns[0].MedicalFacility.HospitalNumber != DefaultHospitalNumber {
			t.Errorf("medical record numbers wrong: %+v", mrns)
		}
		if req.Specimens[0].StudyIdentifier != "" {
			t.Error("identified specimen carries study identifiers")
		}
	})

	t.Run("creation failure surfaces a typed error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		variant := DeIdentifiedCase{AccessionNumber: "SBJ00595_L2100721_001"}
		_, err := newPierianDxTestService(server.URL).CreateCase(context.Background(), variant)
		var caseErr CaseCreationError
		if !errors.As(err, &caseErr) {
			t.Fatalf("got %T want CaseCreationError", err)
		}
		if caseErr.AccessionNumber != "SBJ00595_L2100721_001" {
			t.Errorf("got accession %v in error want SBJ00595_L2100721_001", caseErr.AccessionNumber)
		}
	})
}

func TestPierianDxServiceUploadCaseFile(t *testing.T) {

	t.Run("multipart uploads to the case files path", func(t *testing.T) {
		var gotPath, gotContentType string
		var gotBody []byte
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotContentType = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
		}))
		defer server.Close()

		content := []byte("gene,exon,coverage\n")
		err := newPierianDxTestService(server.URL).UploadCaseFile(context.Background(), "100161", "L2100721_Failed_Exon_coverage_QC.txt", content)
		if err != nil {
			t.Fatalf("cannot upload case file: %q", err)
		}
		if gotPath != "/case/100161/caseFiles/L2100721_Failed_Exon_coverage_QC.txt/" {
			t.Errorf("got path %v", gotPath)
		}
		if !strings.HasPrefix(gotContentType, "multipart/form-data") {
			t.Errorf("got content type %v want multipart/form-data", gotContentType)
		}
		if !strings.Contains(string(gotBody), "gene,exon,coverage") {
			t.Error("uploaded body does not contain the file content")
		}
	})
}

func TestPierianDxServiceCaseStatus(t *testing.T) {

	t.Run("reduces jobs and reports to the current entries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"id": 100161,
				"caseAccessionNumber": "SBJ00595_L2100721_001",
				"informaticsJobs": [
					{"id": "10581", "status": "failed"},
					{"id": "10582", "status": "complete"}
				],
				"reports": [
					{"id": "9573", "status": "canceled"},
					{"id": "9574", "status": "complete", "signedOut": true}
				]
			}`)
		}))
		defer server.Close()

		got, err := newPierianDxTestService(server.URL).CaseStatus(context.Background(), "100161")
		if err != nil {
			t.Fatalf("cannot fetch case status: %q", err)
		}
		if got.JobID != "10582" || got.JobStatus != "complete" {
			t.Errorf("got job %v/%v want 10582/complete", got.JobID, got.JobStatus)
		}
		if got.ReportID != "9574" || !got.ReportSignedOut {
			t.Errorf("got report %v signed_out=%v want 9574/true", got.ReportID, got.ReportSignedOut)
		}
	})

	t.Run("missing case surfaces a typed error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := newPierianDxTestService(server.URL).CaseStatus(context.Background(), "999999")
		var notFound CaseNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("got %T want CaseNotFoundError", err)
		}
	})
}

func TestParseCaseDate(t *testing.T) {

	tests := []struct {
		name  string
		input string
		zero  bool
	}{
		{"rfc3339", "2021-07-15T03:08:10Z", false},
		{"no zone", "2021-07-15T03:08:10", false},
		{"date only", "2021-07-15", false},
		{"empty", "", true},
		{"garbage", "last tuesday", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := parseCaseDate(tc.input)
			if got.IsZero() != tc.zero {
				t.Errorf("got %v, zero=%v want zero=%v", got, got.IsZero(), tc.zero)
			}
		})
	}
}
