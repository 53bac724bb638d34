package cttso_pieriandx_gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"
)

// PortalService reads pipeline executions and sequencing runs from the data
// portal API and collapses them to one current run per sample.
type PortalService struct {
	baseURL string
	token   string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

func NewPortalService(baseURL, token string, retry RetryPolicy, logger *slog.Logger) *PortalService {
	return &PortalService{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 60 * time.Second},
		retry:   retry,
		logger:  logger,
	}
}

type portalPage[T any] struct {
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
	Results []T `json:"results"`
}

type portalWorkflowRun struct {
	ID        int    `json:"id"`
	WfrID     string `json:"wfr_id"`
	WfrName   string `json:"wfr_name"`
	End       string `json:"end"`
	EndStatus string `json:"end_status"`
}

type portalSequenceRun struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type portalMetadata struct {
	SubjectID         string `json:"subject_id"`
	LibraryID         string `json:"library_id"`
	ExternalSubjectID string `json:"external_subject_id"`
	ExternalSampleID  string `json:"external_sample_id"`
}

// SampleMetadata carries the portal's external identifiers for one library,
// needed when building an identified case payload.
type SampleMetadata struct {
	SubjectID         string
	LibraryID         string
	ExternalSubjectID string
	ExternalSampleID  string
}

// Fetch drains the workflow and sequence-run endpoints, joins each workflow
// run to its sequencing run's pass/fail state, derives the sample key from
// the run name, and collapses to exactly one current run per sample.
func (p *PortalService) Fetch(ctx context.Context) ([]RunRecord, error) {
	params := url.Values{}
	params.Set("type_name", WorkflowTypeName)
	workflows, err := fetchAllPages[portalWorkflowRun](ctx, p, "/workflows", params)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch workflow runs: %v", err)
	}

	failedRuns, err := p.fetchFailedSequenceRuns(ctx)
	if err != nil {
		return nil, err
	}

	var records []RunRecord
	for _, wf := range workflows {
		m := WorkflowRunNameRegex.FindStringSubmatch(wf.WfrName)
		if m == nil {
			p.logger.Debug("Skipping workflow run with unparseable name", "wfr_name", wf.WfrName)
			continue
		}
		end, err := time.Parse(time.RFC3339, wf.End)
		if err != nil && wf.End != "" {
			p.logger.Warn("Skipping workflow run with unparseable end timestamp", "wfr_id", wf.WfrID, "end", wf.End)
			continue
		}
		seqRunName := sequenceRunNameFromWorkflowName(wf.WfrName)
		records = append(records, RunRecord{
			SubjectID:         m[1],
			LibraryID:         m[2],
			RunID:             wf.WfrID,
			EndTimestamp:      end,
			EndStatus:         wf.EndStatus,
			SequenceRunName:   seqRunName,
			SequenceRunFailed: failedRuns[seqRunName],
		})
	}
	return CollapseRuns(records), nil
}

// FetchSampleMetadata returns the portal's external identifiers for one
// library.
func (p *PortalService) FetchSampleMetadata(ctx context.Context, key SampleKey) (SampleMetadata, error) {
	params := url.Values{}
	params.Set("library_id", key.LibraryID)
	rows, err := fetchAllPages[portalMetadata](ctx, p, "/metadata", params)
	if err != nil {
		return SampleMetadata{}, fmt.Errorf("Failed to fetch metadata for '%s': %v", key, err)
	}
	for _, row := range rows {
		if row.SubjectID == key.SubjectID && row.LibraryID == key.LibraryID {
			return SampleMetadata{
				SubjectID:         row.SubjectID,
				LibraryID:         row.LibraryID,
				ExternalSubjectID: row.ExternalSubjectID,
				ExternalSampleID:  row.ExternalSampleID,
			}, nil
		}
	}
	return SampleMetadata{}, fmt.Errorf("no portal metadata found for '%s'", key)
}

func (p *PortalService) fetchFailedSequenceRuns(ctx context.Context) (map[string]bool, error) {
	runs, err := fetchAllPages[portalSequenceRun](ctx, p, "/sequencerun", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch sequence runs: %v", err)
	}
	failed := make(map[string]bool)
	for _, run := range runs {
		if run.Status == "Failed" || run.Status == "failed" {
			failed[run.Name] = true
		}
	}
	return failed, nil
}

// sequenceRunNameFromWorkflowName extracts the trailing portion of the
// automated run name, which carries the originating sequencing run.
func sequenceRunNameFromWorkflowName(wfrName string) string {
	m := WorkflowRunNameRegex.FindStringSubmatch(wfrName)
	if m == nil {
		return ""
	}
	// run name is the final double-underscore component
	prefix := fmt.Sprintf("umccr__automated__%s__%s__%s__", WorkflowTypeName, m[1], m[2])
	if len(wfrName) <= len(prefix) {
		return ""
	}
	return wfrName[len(prefix):]
}

func fetchAllPages[T any](ctx context.Context, p *PortalService, path string, params url.Values) ([]T, error) {
	var all []T
	params.Set("rowsPerPage", "1000")
	next := fmt.Sprintf("%s%s?%s", p.baseURL, path, params.Encode())
	for next != "" {
		var page portalPage[T]
		err := p.retry.Do(ctx, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+p.token)
			resp, err := p.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("portal returned status %d for '%s'", resp.StatusCode, next)
			}
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			page = portalPage[T]{}
			return json.Unmarshal(body, &page)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		next = page.Links.Next
	}
	return all, nil
}

// CollapseRuns reduces multiple pipeline executions per sample to exactly
// one, applying each preference in order, each step only breaking ties left
// by the previous: non-failed sequencing run, then Succeeded end status,
// then latest sequencing run name, then latest end timestamp. Collapsing an
// already collapsed set is a fixed point.
func CollapseRuns(records []RunRecord) []RunRecord {
	byKey := make(map[SampleKey][]RunRecord)
	var order []SampleKey
	for _, r := range records {
		k := r.Key()
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], r)
	}

	collapsed := make([]RunRecord, 0, len(order))
	for _, k := range order {
		group := byKey[k]

		if subset := filterRuns(group, func(r RunRecord) bool { return !r.SequenceRunFailed }); len(subset) > 0 {
			group = subset
		}
		if subset := filterRuns(group, func(r RunRecord) bool { return r.EndStatus == RunStatusSucceeded }); len(subset) > 0 {
			group = subset
		}
		latestName := ""
		for _, r := range group {
			if r.SequenceRunName > latestName {
				latestName = r.SequenceRunName
			}
		}
		group = filterRuns(group, func(r RunRecord) bool { return r.SequenceRunName == latestName })

		sort.SliceStable(group, func(i, j int) bool {
			return group[i].EndTimestamp.Before(group[j].EndTimestamp)
		})
		collapsed = append(collapsed, group[len(group)-1])
	}
	return collapsed
}

func filterRuns(records []RunRecord, keep func(RunRecord) bool) []RunRecord {
	var out []RunRecord
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
