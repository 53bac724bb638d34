package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func newTestReconcileService(diag *PierianDxService) *ReconcileService {
	clock := FixedClock{Time: mustTime("2021-07-30T00:00:00Z")}
	config := TestConfig
	config.MaxSubmissions = 1
	return NewReconcileService(nil, nil, nil, diag, nil, nil, clock, config, testLogger)
}

func submissionTestCandidates(n int) []SubmissionCandidate {
	candidates := make([]SubmissionCandidate, 0, n)
	for i := 0; i < n; i++ {
		record := testMergedRecord("SBJ00001", fmt.Sprintf("L%07d", i+1), "wfr.a")
		candidates = append(candidates, SubmissionCandidate{Record: record, Route: RouteValidation})
	}
	return candidates
}

func TestSubmitCandidates(t *testing.T) {

	t.Run("blocks only on enqueue acknowledgement", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))
		defer server.Close()
		rs := newTestReconcileService(newPierianDxTestService(server.URL))

		candidates := submissionTestCandidates(20)

		release := make(chan struct{})
		var mu sync.Mutex
		executed := 0
		runner := func(ctx context.Context, intent SubmissionIntent) {
			<-release
			mu.Lock()
			executed++
			mu.Unlock()
		}

		queue := NewSubmissionQueue(context.Background(), 1, len(candidates), runner, testLogger)
		marks := rs.submitCandidates(context.Background(), queue, candidates)

		// every intent is accepted and marked pending while the single
		// worker is still parked on its first submission
		if len(marks) != len(candidates) {
			t.Fatalf("got %d marks want %d", len(marks), len(candidates))
		}
		for _, c := range candidates {
			mark, ok := marks[candidateGroupKey(c)]
			if !ok {
				t.Fatalf("no mark recorded for %s", c.Record.LibraryID)
			}
			if mark.caseID != CaseIDPending {
				t.Errorf("got mark %v for %s want %v", mark.caseID, c.Record.LibraryID, CaseIDPending)
			}
		}
		mu.Lock()
		if executed != 0 {
			t.Errorf("%d submissions executed before release", executed)
		}
		mu.Unlock()

		close(release)
		queue.Shutdown()
		mu.Lock()
		if executed != len(candidates) {
			t.Errorf("got %d executed submissions want %d", executed, len(candidates))
		}
		mu.Unlock()
	})

	t.Run("accession listing failure rejects every candidate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()
		rs := newTestReconcileService(newPierianDxTestService(server.URL))

		candidates := submissionTestCandidates(2)
		queue := NewSubmissionQueue(context.Background(), 1, len(candidates), func(context.Context, SubmissionIntent) {}, testLogger)
		defer queue.Shutdown()

		marks := rs.submitCandidates(context.Background(), queue, candidates)
		for _, c := range candidates {
			if mark := marks[candidateGroupKey(c)]; mark.caseID != CaseIDFailed {
				t.Errorf("got mark %v for %s want %v", mark.caseID, c.Record.LibraryID, CaseIDFailed)
			}
		}
	})
}
