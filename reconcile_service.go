package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReconcileService runs one reconciliation pass per invocation: fetch the
// four sources, merge, garbage-collect and retire diagnostics cases, poll
// in-flight submissions, submit newly eligible samples, and write the
// minimal diff back to the tracking store.
type ReconcileService struct {
	portal *PortalService
	glims  *GLIMSService
	redcap *RedCapService
	diag   *PierianDxService
	lims   *LimsService
	s3     *AWSS3Service
	clock  Clock
	logger *slog.Logger

	slackURL       string
	maxSubmissions int
	leaseBucket    string
	leaseKey       string
	disableKey     string
	pdxBucket      string
	stagingRoot    string
}

func NewReconcileService(portal *PortalService, glims *GLIMSService, redcap *RedCapService, diag *PierianDxService, lims *LimsService, s3 *AWSS3Service, clock Clock, config Config, logger *slog.Logger) *ReconcileService {
	return &ReconcileService{
		portal:         portal,
		glims:          glims,
		redcap:         redcap,
		diag:           diag,
		lims:           lims,
		s3:             s3,
		clock:          clock,
		logger:         logger,
		slackURL:       config.SlackURL,
		maxSubmissions: config.MaxSubmissions,
		leaseBucket:    config.LimsBucket,
		leaseKey:       config.LimsKey + ".lock",
		disableKey:     config.LimsKey + ".disabled",
		pdxBucket:      config.PierianDxBucket,
		stagingRoot:    config.StagingRoot,
	}
}

const (
	runMsg              = "Entering reconciliation pass"
	fetchSourcesMsg     = "Fetching the four upstream sources"
	mergeMsg            = "Merging sources and filtering case validity"
	dedupMsg            = "Garbage collecting duplicate diagnostics cases"
	retireMsg           = "Retiring deleted and vanished cases"
	pollMsg             = "Polling in-flight case statuses"
	eligibilityMsg      = "Selecting samples eligible for submission"
	healthProbeMsg      = "Probing submission-handling services"
	submitMsg           = "Enqueueing submissions"
	writeBackMsg        = "Writing tracking store diff"
	subjectIDKey        = "Subject ID"
	libraryIDKey        = "Library ID"
	mismatchNotifyMsg = "Submitted sample reappeared as eligible; disabling the reconcile trigger"
	leaseTTL          = time.Hour
)

type submissionMark struct {
	caseID      string
	submittedAt string
}

// Run performs one full reconciliation pass.
func (rs *ReconcileService) Run(ctx context.Context, tracer trace.Tracer) error {
	runCtx, runSpan := tracer.Start(ctx, runMsg)
	defer runSpan.End()

	disabled, err := rs.s3.ObjectExists(runCtx, rs.leaseBucket, rs.disableKey)
	if err != nil {
		return fmt.Errorf("Failed to check the disable marker: %v", err)
	}
	if disabled {
		return fmt.Errorf("reconcile trigger is disabled; remove %s:%s after resolving the mismatch", rs.leaseBucket, rs.disableKey)
	}

	holder := uuid.NewString()
	if err := rs.s3.AcquireLease(runCtx, rs.leaseBucket, rs.leaseKey, holder, leaseTTL, rs.clock); err != nil {
		return err
	}
	defer func() {
		if err := rs.s3.ReleaseLease(context.WithoutCancel(runCtx), rs.leaseBucket, rs.leaseKey); err != nil {
			rs.logger.Error("Failed to release reconcile lease", "error", err)
		}
	}()

	if err := rs.lims.Open(runCtx); err != nil {
		return err
	}
	defer rs.lims.Close()

	runSpan.AddEvent(fetchSourcesMsg)
	runs, registry, clinical, cases, err := rs.fetchSources(runCtx)
	if err != nil {
		recordError(runSpan, err)
		return err
	}

	runSpan.AddEvent(mergeMsg)
	merged := FilterCaseValidity(AttachCases(MergeSources(runs, registry, clinical), cases), rs.logger)

	tracking, positions, err := rs.lims.ReadAll()
	if err != nil {
		recordError(runSpan, err)
		return err
	}

	runSpan.AddEvent(dedupMsg)
	duplicates := FindDuplicateCaseIDs(merged, rs.clock, rs.logger)
	if len(duplicates) > 0 {
		tracking = PurgeTrackingCases(tracking, duplicates)
		if err := rs.lims.ReplaceAll(tracking); err != nil {
			recordError(runSpan, err)
			return err
		}
		merged = RemoveCases(merged, duplicates)
		if tracking, positions, err = rs.lims.ReadAll(); err != nil {
			recordError(runSpan, err)
			return err
		}
	}

	runSpan.AddEvent(retireMsg)
	existingRetired, err := rs.lims.ReadRetired()
	if err != nil {
		recordError(runSpan, err)
		return err
	}
	plan := PlanRetirement(tracking, cases, existingRetired, rs.clock, rs.logger)
	if len(plan.Retired) > 0 || len(plan.RetiredCaseIDs) > 0 {
		if err := rs.lims.ReplaceAll(plan.Live); err != nil {
			recordError(runSpan, err)
			return err
		}
		if err := rs.lims.AppendRetired(plan.Retired); err != nil {
			recordError(runSpan, err)
			return err
		}
		merged = RemoveCases(merged, plan.RetiredCaseIDs)
		if tracking, positions, err = rs.lims.ReadAll(); err != nil {
			recordError(runSpan, err)
			return err
		}
		if existingRetired, err = rs.lims.ReadRetired(); err != nil {
			recordError(runSpan, err)
			return err
		}
	}

	runSpan.AddEvent(pollMsg)
	patches := BuildStatusPatches(runCtx, rs.diag, tracking, positions, merged, rs.logger)
	for _, patch := range patches {
		if err := rs.lims.UpdateRow(patch.Row, patch.Position); err != nil {
			recordError(runSpan, err)
			return err
		}
	}
	if len(patches) > 0 {
		if tracking, positions, err = rs.lims.ReadAll(); err != nil {
			recordError(runSpan, err)
			return err
		}
	}

	runSpan.AddEvent(eligibilityMsg)
	candidates := SelectEligible(merged, tracking, existingRetired, rs.clock, rs.maxSubmissions, rs.logger)
	if mismatched := FindSubmissionMismatches(candidates, tracking); len(mismatched) > 0 {
		return rs.disableAfterMismatch(runCtx, runSpan, mismatched)
	}

	var probeErr error
	marks := make(map[mergeGroupKey]submissionMark)
	if len(candidates) > 0 {
		runSpan.AddEvent(healthProbeMsg)
		if probeErr = rs.diag.Ping(runCtx); probeErr != nil {
			// never partially submit against a cold service
			probeErr = fmt.Errorf("submission phase aborted, diagnostics service unreachable: %w", probeErr)
			recordError(runSpan, probeErr)
		} else {
			runSpan.AddEvent(submitMsg)
			queue := NewSubmissionQueue(runCtx, rs.maxSubmissions, len(candidates), rs.submissionRunner(tracer), rs.logger)
			// drained only after the write-back below, so the pending
			// sentinels and cooldown timestamps land while submissions are
			// still in flight
			defer queue.Shutdown()
			marks = rs.submitCandidates(runCtx, queue, candidates)
		}
	}

	runSpan.AddEvent(writeBackMsg)
	if err := rs.writeBack(merged, marks, tracking, positions); err != nil {
		recordError(runSpan, err)
		return err
	}
	if err := rs.lims.Save(runCtx); err != nil {
		recordError(runSpan, err)
		return err
	}
	return probeErr
}

// fetchSources pulls the four adapters concurrently; all must succeed
// before the merge begins.
func (rs *ReconcileService) fetchSources(ctx context.Context) ([]RunRecord, []RegistryRecord, []ClinicalCaptureRecord, []DiagnosticsCase, error) {
	var (
		wg       sync.WaitGroup
		runs     []RunRecord
		registry []RegistryRecord
		clinical []ClinicalCaptureRecord
		cases    []DiagnosticsCase
		errs     [4]error
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		runs, errs[0] = rs.portal.Fetch(ctx)
	}()
	go func() {
		defer wg.Done()
		registry, errs[1] = rs.glims.Fetch(ctx)
	}()
	go func() {
		defer wg.Done()
		clinical, errs[2] = rs.redcap.Fetch(ctx)
	}()
	go func() {
		defer wg.Done()
		cases, errs[3] = rs.diag.FetchCases(ctx)
	}()
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}
	return runs, registry, clinical, cases, nil
}

// submitCandidates enqueues one submission intent per candidate on a worker
// pool. The engine blocks only on each accept/reject; case creation and
// everything after it proceeds out-of-band and is observed on a later pass.
func (rs *ReconcileService) submitCandidates(ctx context.Context, queue *SubmissionQueue, candidates []SubmissionCandidate) map[mergeGroupKey]submissionMark {
	marks := make(map[mergeGroupKey]submissionMark, len(candidates))
	now := rs.clock.Now().Format(TrackingTimeLayout)

	existingAccessions, err := rs.diag.ListAccessionNumbers(ctx)
	if err != nil {
		rs.logger.Error("Failed to list existing accession numbers, rejecting all submissions", "error", err)
		for _, c := range candidates {
			marks[candidateGroupKey(c)] = submissionMark{caseID: CaseIDFailed, submittedAt: now}
		}
		return marks
	}

	for _, candidate := range candidates {
		key := candidateGroupKey(candidate)
		request, err := rs.buildSubmissionRequest(ctx, candidate, existingAccessions)
		if err != nil {
			rs.logger.Error("Failed to build submission request",
				"subject_id", candidate.Record.SubjectID, "library_id", candidate.Record.LibraryID, "error", err)
			marks[key] = submissionMark{caseID: CaseIDFailed, submittedAt: now}
			continue
		}
		existingAccessions = append(existingAccessions, mustAccession(request))

		intent := SubmissionIntent{ID: uuid.New(), Request: request}
		if err := queue.Enqueue(intent); err != nil {
			rs.logger.Error("Submission intent rejected",
				"subject_id", candidate.Record.SubjectID, "library_id", candidate.Record.LibraryID, "error", err)
			marks[key] = submissionMark{caseID: CaseIDFailed, submittedAt: now}
			continue
		}
		marks[key] = submissionMark{caseID: CaseIDPending, submittedAt: now}
	}
	return marks
}

func candidateGroupKey(c SubmissionCandidate) mergeGroupKey {
	return mergeGroupKey{c.Record.SubjectID, c.Record.LibraryID, c.Record.RunID()}
}

func mustAccession(request SubmissionRequest) string {
	accession, err := (&request).Accession()
	if err != nil {
		return ""
	}
	return accession.AccessionNumber
}

// submissionRunner drives one sample's case submission sequence on the
// worker pool. Failures land in span events and logs; the tracking store
// learns about them through polling on a later pass.
func (rs *ReconcileService) submissionRunner(tracer trace.Tracer) SubmissionRunner {
	return func(ctx context.Context, intent SubmissionIntent) {
		_, span := tracer.Start(ctx, "Driving case submission")
		span.SetAttributes(attribute.String(subjectIDKey, intent.Request.SubjectID))
		span.SetAttributes(attribute.String(libraryIDKey, intent.Request.LibraryID))
		defer span.End()

		submission, err := NewCaseSubmission(rs.diag, rs.s3, rs.pdxBucket, intent.Request, rs.logger)
		if handleError(err, "Error preparing case submission", span) {
			return
		}
		if handleError(submission.Submit(ctx), "Error driving case submission", span) {
			return
		}
		span.AddEvent(fmt.Sprintf("Submission reached %s", submission.State()))
	}
}

// buildSubmissionRequest assembles the entry payload for one candidate:
// a fresh accession number, the route-appropriate clinical fields, and the
// run-scoped staging paths.
func (rs *ReconcileService) buildSubmissionRequest(ctx context.Context, candidate SubmissionCandidate, existingAccessions []string) (SubmissionRequest, error) {
	record := candidate.Record
	if record.Registry == nil {
		return SubmissionRequest{}, ArgumentError{Msg: fmt.Sprintf("candidate %s/%s has no registry record", record.SubjectID, record.LibraryID)}
	}
	if record.Run == nil {
		return SubmissionRequest{}, ArgumentError{Msg: fmt.Sprintf("candidate %s/%s has no pipeline run", record.SubjectID, record.LibraryID)}
	}

	key := record.Key()
	accessionNumber := GenerateAccessionNumber(key, existingAccessions)
	now := rs.clock.Now()

	payload := AccessionPayload{
		AccessionNumber: accessionNumber,
		SpecimenCode:    DefaultSpecimenCode,
		SpecimenLabel:   DefaultSpecimenLabel,
		DateAccessioned: now.Format(TrackingTimeLayout),
		DateReceived:    now.Format(TrackingTimeLayout),
		DateCollected:   now.Format(TrackingTimeLayout),
		Gender:          DefaultGender,
		Ethnicity:       DefaultEthnicity,
		Race:            DefaultRace,
		SequencerRunID:  record.Run.SequenceRunName,
		SampleID:        record.LibraryID,
		SamplesheetPath: filepath.Join(rs.stagingRoot, record.Run.SequenceRunName, "SampleSheet.csv"),
		RunOutputDir:    filepath.Join(rs.stagingRoot, record.Run.SequenceRunName, record.LibraryID),
	}

	switch candidate.Route {
	case RouteValidation:
		defaults := DefaultClinicalRecord(key)
		payload.DiseaseCode = record.Registry.DefaultSnomedTerm
		payload.DiseaseLabel = ""
		if payload.DiseaseCode == "" {
			payload.DiseaseCode = DefaultDiseaseCode
			payload.DiseaseLabel = DefaultDiseaseLabel
		}
		payload.StudyIdentifier = record.Registry.ProjectName
		payload.StudySubject = record.SubjectID
		payload.PhysicianFirstName = defaults.PhysicianFirstName
		payload.PhysicianLastName = defaults.PhysicianLastName
		payload.PatientFirstName = defaults.PatientFirstName
		payload.PatientLastName = defaults.PatientLastName
	case RouteClinical:
		clinical := record.Clinical
		if clinical == nil || !clinical.IsComplete {
			return SubmissionRequest{}, ArgumentError{Msg: fmt.Sprintf("candidate %s is routed clinically without complete clinical capture", key)}
		}
		payload.DiseaseCode = clinical.DiseaseCode
		payload.DiseaseLabel = clinical.DiseaseLabel
		payload.PhysicianFirstName = clinical.PhysicianFirstName
		payload.PhysicianLastName = clinical.PhysicianLastName
		payload.PatientFirstName = clinical.PatientFirstName
		payload.PatientLastName = clinical.PatientLastName
		payload.PatientDOB = clinical.PatientDOB
		payload.MRN = clinical.MRN
		payload.HospitalNumber = DefaultHospitalNumber
		if clinical.Gender != "" {
			payload.Gender = clinical.Gender
		}
		if clinical.DateCollected != "" {
			payload.DateCollected = clinical.DateCollected
		}
		if clinical.DateReceived != "" {
			payload.DateReceived = clinical.DateReceived
		}
		if record.Registry.IsIdentified {
			metadata, err := rs.portal.FetchSampleMetadata(ctx, key)
			if err != nil {
				return SubmissionRequest{}, err
			}
			payload.ExternalSpecimenID = metadata.ExternalSampleID
			payload.StudySubject = metadata.ExternalSubjectID
		} else {
			payload.StudyIdentifier = record.Registry.ProjectName
			payload.StudySubject = record.SubjectID
		}
	}

	blob, err := EncodeAccession(payload)
	if err != nil {
		return SubmissionRequest{}, err
	}
	panelType := "main"
	if record.Registry.Panel == "subpanel" {
		panelType = "subpanel"
	}
	return SubmissionRequest{
		SubjectID:     record.SubjectID,
		LibraryID:     record.LibraryID,
		WorkflowRunID: record.Run.RunID,
		PanelType:     panelType,
		SampleType:    record.Registry.SampleType,
		IsIdentified:  record.Registry.IsIdentified,
		AccessionJSON: blob,
	}, nil
}

// writeBack flattens the merged table, applies this cycle's submission
// sentinels, and writes the minimal diff to the store.
func (rs *ReconcileService) writeBack(merged []MergedRecord, marks map[mergeGroupKey]submissionMark, tracking []TrackingRow, positions map[RowKey]int) error {
	candidates := make([]TrackingRow, 0, len(merged))
	for _, m := range merged {
		row := MergedToTrackingRow(m, "")
		if mark, ok := marks[mergeGroupKey{m.SubjectID, m.LibraryID, m.RunID()}]; ok && row.CaseID == "" {
			row.CaseID = mark.caseID
			row.SubmissionTime = mark.submittedAt
		}
		candidates = append(candidates, row)
	}

	diff := DiffTracking(candidates, tracking, positions, rs.logger)
	for _, patch := range diff.Updates {
		if err := rs.lims.UpdateRow(patch.Row, patch.Position); err != nil {
			return err
		}
	}
	if len(diff.Appends) > 0 {
		if err := rs.lims.AppendRows(diff.Appends); err != nil {
			return err
		}
	}
	return nil
}

// disableAfterMismatch writes the disable marker, alerts the operators and
// fails the pass. An already-submitted sample reappearing as eligible means
// a prior cycle recorded the wrong thing; submitting again would double the
// damage.
func (rs *ReconcileService) disableAfterMismatch(ctx context.Context, span trace.Span, mismatched []SubmissionCandidate) error {
	for _, c := range mismatched {
		rs.logger.Error("Submitted sample reappeared as eligible",
			"subject_id", c.Record.SubjectID, "library_id", c.Record.LibraryID, "run_id", c.Record.RunID())
	}
	if err := rs.s3.PutObject(ctx, rs.leaseBucket, rs.disableKey, []byte(mismatchNotifyMsg), "text/plain"); err != nil {
		rs.logger.Error("Failed to write the disable marker", "error", err)
	}
	if err := NotifyViaSlack(ctx, mismatchNotifyMsg, rs.slackURL); err != nil {
		rs.logger.Error("Failed to notify via Slack", "error", err)
	}
	err := fmt.Errorf("%d submitted sample(s) reappeared as eligible; trigger disabled", len(mismatched))
	recordError(span, err)
	return err
}

func recordError(span trace.Span, err error) {
	span.AddEvent(err.Error())
	span.SetStatus(codes.Error, err.Error())
}

func handleError(err error, message string, span trace.Span) bool {
	if err != nil {
		msg := fmt.Sprintf("%s: %v", message, err)
		span.AddEvent(msg)
		span.SetStatus(codes.Error, msg)
		return true
	}
	return false
}
