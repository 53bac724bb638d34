package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestCollapseRuns(t *testing.T) {

	base := RunRecord{SubjectID: "SBJ00595", LibraryID: "L2100721"}

	t.Run("non-failed sequencing run wins", func(t *testing.T) {
		onFailed := base
		onFailed.RunID = "wfr.failedseq"
		onFailed.EndStatus = RunStatusSucceeded
		onFailed.SequenceRunName = "210720_A00130_0166"
		onFailed.SequenceRunFailed = true
		onGood := base
		onGood.RunID = "wfr.good"
		onGood.EndStatus = RunStatusFailed
		onGood.SequenceRunName = "210714_A00130_0165"

		got := CollapseRuns([]RunRecord{onFailed, onGood})
		if len(got) != 1 || got[0].RunID != "wfr.good" {
			t.Errorf("got %+v want wfr.good", got)
		}
	})

	t.Run("succeeded status wins next", func(t *testing.T) {
		failed := base
		failed.RunID = "wfr.failed"
		failed.EndStatus = RunStatusFailed
		failed.SequenceRunName = "210714_A00130_0165"
		succeeded := base
		succeeded.RunID = "wfr.succeeded"
		succeeded.EndStatus = RunStatusSucceeded
		succeeded.SequenceRunName = "210714_A00130_0165"

		got := CollapseRuns([]RunRecord{failed, succeeded})
		if len(got) != 1 || got[0].RunID != "wfr.succeeded" {
			t.Errorf("got %+v want wfr.succeeded", got)
		}
	})

	t.Run("latest sequencing run then latest end break ties", func(t *testing.T) {
		early := base
		early.RunID = "wfr.early"
		early.EndStatus = RunStatusSucceeded
		early.SequenceRunName = "210714_A00130_0165"
		early.EndTimestamp = mustTime("2021-07-15T01:00:00Z")
		late := base
		late.RunID = "wfr.late"
		late.EndStatus = RunStatusSucceeded
		late.SequenceRunName = "210714_A00130_0165"
		late.EndTimestamp = mustTime("2021-07-15T02:00:00Z")

		got := CollapseRuns([]RunRecord{early, late})
		if len(got) != 1 || got[0].RunID != "wfr.late" {
			t.Errorf("got %+v want wfr.late", got)
		}
	})

	t.Run("collapsing is a fixed point", func(t *testing.T) {
		a := base
		a.RunID = "wfr.a"
		a.EndStatus = RunStatusSucceeded
		b := RunRecord{SubjectID: "SBJ00596", LibraryID: "L2100722", RunID: "wfr.b", EndStatus: RunStatusSucceeded}

		once := CollapseRuns([]RunRecord{a, b})
		twice := CollapseRuns(once)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("got %v after recollapse, want %v", twice, once)
		}
	})
}

func TestPortalServiceFetch(t *testing.T) {

	zeroDelay := RetryPolicy{MaxAttempts: 2, Delay: 0}

	t.Run("joins workflows to failed sequencing runs", func(t *testing.T) {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/workflows":
				fmt.Fprint(w, `{"links": {"next": ""}, "results": [
					{"wfr_id": "wfr.good", "wfr_name": "umccr__automated__tso_ctdna_tumor_only__SBJ00595__L2100721__202107142205", "end": "2021-07-15T01:32:21Z", "end_status": "Succeeded"},
					{"wfr_id": "wfr.onfailed", "wfr_name": "umccr__automated__tso_ctdna_tumor_only__SBJ00596__L2100722__202107201000", "end": "2021-07-21T01:00:00Z", "end_status": "Succeeded"},
					{"wfr_id": "wfr.noise", "wfr_name": "some_other_workflow", "end": "", "end_status": "Succeeded"}
				]}`)
			case "/sequencerun":
				fmt.Fprint(w, `{"links": {"next": ""}, "results": [
					{"name": "202107201000", "status": "Failed"}
				]}`)
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		service := NewPortalService(server.URL, "token", zeroDelay, testLogger)
		records, err := service.Fetch(context.Background())
		if err != nil {
			t.Fatalf("cannot fetch runs: %q", err)
		}
		if len(records) != 2 {
			t.Fatalf("got %d records want 2", len(records))
		}
		byID := make(map[string]RunRecord)
		for _, r := range records {
			byID[r.RunID] = r
		}
		good := byID["wfr.good"]
		if good.SubjectID != "SBJ00595" || good.LibraryID != "L2100721" || good.SequenceRunFailed {
			t.Errorf("wfr.good parsed wrong: %+v", good)
		}
		if good.SequenceRunName != "202107142205" {
			t.Errorf("got sequence run name %v want 202107142205", good.SequenceRunName)
		}
		if !byID["wfr.onfailed"].SequenceRunFailed {
			t.Error("wfr.onfailed not marked as sitting on a failed sequencing run")
		}
	})

	t.Run("pagination drains every page", func(t *testing.T) {
		var server *httptest.Server
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/workflows":
				if r.URL.Query().Get("page") == "2" {
					fmt.Fprint(w, `{"links": {"next": ""}, "results": [
						{"wfr_id": "wfr.b", "wfr_name": "umccr__automated__tso_ctdna_tumor_only__SBJ00596__L2100722__202107142205", "end": "2021-07-15T01:32:21Z", "end_status": "Succeeded"}
					]}`)
					return
				}
				fmt.Fprintf(w, `{"links": {"next": "%s/workflows?page=2"}, "results": [
					{"wfr_id": "wfr.a", "wfr_name": "umccr__automated__tso_ctdna_tumor_only__SBJ00595__L2100721__202107142205", "end": "2021-07-15T01:32:21Z", "end_status": "Succeeded"}
				]}`, server.URL)
			case "/sequencerun":
				fmt.Fprint(w, `{"links": {"next": ""}, "results": []}`)
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		service := NewPortalService(server.URL, "token", zeroDelay, testLogger)
		records, err := service.Fetch(context.Background())
		if err != nil {
			t.Fatalf("cannot fetch runs: %q", err)
		}
		if len(records) != 2 {
			t.Errorf("got %d records want 2", len(records))
		}
	})

	t.Run("metadata lookup filters to the exact sample", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"links": {"next": ""}, "results": [
				{"subject_id": "SBJ00999", "library_id": "L2100721", "external_subject_id": "X1", "external_sample_id": "S1"},
				{"subject_id": "SBJ00595", "library_id": "L2100721", "external_subject_id": "EXT-595", "external_sample_id": "PRJ210123"}
			]}`)
		}))
		defer server.Close()

		service := NewPortalService(server.URL, "token", zeroDelay, testLogger)
		got, err := service.FetchSampleMetadata(context.Background(), SampleKey{SubjectID: "SBJ00595", LibraryID: "L2100721"})
		if err != nil {
			t.Fatalf("cannot fetch metadata: %q", err)
		}
		if got.ExternalSubjectID != "EXT-595" || got.ExternalSampleID != "PRJ210123" {
			t.Errorf("got %+v want the exact sample's external ids", got)
		}
	})
}
