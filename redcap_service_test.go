package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func redcapTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("cannot parse form: %q", err)
		}
		if got := r.PostFormValue("content"); got != "record" {
			t.Errorf("got content %q want record", got)
		}
		switch r.PostFormValue("rawOrLabel") {
		case "raw":
			fmt.Fprint(w, `[
				{"subjectid": "SBJ00595", "libraryid": "L2100721", "disease": "55342001", "date_collection": "2021-07-10", "time_collected": "09:30", "date_receipt": "2021-07-12"},
				{"subjectid": "SBJ00777", "libraryid": "L2100777", "disease": "55342001", "date_collection": "2021-07-10", "date_receipt": "2021-07-12"}
			]`)
		case "label":
			fmt.Fprint(w, `[
				{"subjectid": "SBJ00595", "libraryid": "L2100721", "disease": "Neoplastic disease", "clinician_firstname": "Jane", "clinician_lastname": "Smith", "p_firstname": "Alex", "p_lastname": "Chen", "dob": "1970-01-01", "mrn": "3069999", "gender": "Female", "report_type": "PatientCare", "pieriandx_metadata_complete": "Complete"}
			]`)
		default:
			t.Errorf("unexpected rawOrLabel %q", r.PostFormValue("rawOrLabel"))
		}
	}))
}

func TestRedCapServiceFetch(t *testing.T) {

	zeroDelay := RetryPolicy{MaxAttempts: 2, Delay: 0}

	t.Run("joins raw and label views", func(t *testing.T) {
		server := redcapTestServer(t)
		defer server.Close()

		service := NewRedCapService(server.URL, "token", zeroDelay, testLogger)
		records, err := service.Fetch(context.Background())
		if err != nil {
			t.Fatalf("cannot fetch clinical records: %q", err)
		}
		// the raw row with no label sibling is dropped
		if len(records) != 1 {
			t.Fatalf("got %d records want 1", len(records))
		}

		got := records[0]
		if got.DiseaseCode != "55342001" || got.DiseaseLabel != "Neoplastic disease" {
			t.Errorf("disease join wrong: %+v", got)
		}
		if got.PhysicianFirstName != "Jane" || got.PatientLastName != "Chen" {
			t.Errorf("name join wrong: %+v", got)
		}
		if got.Gender != "female" {
			t.Errorf("got gender %v want female", got.Gender)
		}
		if got.SampleType != "patientcare" {
			t.Errorf("got sample type %v want patientcare", got.SampleType)
		}
		if !got.IsComplete {
			t.Error("completed form not marked complete")
		}
		if got.DateCollected != "2021-07-10T09:30:00+10:00" {
			t.Errorf("got collection timestamp %v want 2021-07-10T09:30:00+10:00", got.DateCollected)
		}
		if got.DateReceived != "2021-07-12T00:00:00+10:00" {
			t.Errorf("got receipt timestamp %v want 2021-07-12T00:00:00+10:00", got.DateReceived)
		}
	})

	t.Run("missing sample falls back to defaults when allowed", func(t *testing.T) {
		server := redcapTestServer(t)
		defer server.Close()

		service := NewRedCapService(server.URL, "token", zeroDelay, testLogger)
		key := SampleKey{SubjectID: "SBJ00001", LibraryID: "L0000001"}
		got, err := service.FetchSample(context.Background(), key, true)
		if err != nil {
			t.Fatalf("cannot fetch sample with defaults: %q", err)
		}
		if got.PhysicianLastName != DefaultPhysicianLastName || got.DiseaseCode != DefaultDiseaseCode {
			t.Errorf("got %+v want the clinical defaults", got)
		}
		if got.IsComplete {
			t.Error("synthesized record must not count as complete")
		}

		if _, err := service.FetchSample(context.Background(), key, false); err == nil {
			t.Error("expected an error when defaults are not allowed")
		}
	})
}

func TestAssembleTimestamp(t *testing.T) {

	tests := []struct {
		name  string
		date  string
		clock string
		want  string
	}{
		{"date and time", "2021-07-10", "09:30", "2021-07-10T09:30:00+10:00"},
		{"date only", "2021-07-10", "", "2021-07-10T00:00:00+10:00"},
		{"empty date", "", "09:30", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := assembleTimestamp(tc.date, tc.clock); got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
		})
	}
}
