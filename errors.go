package cttso_pieriandx_gateway

import "fmt"

// CaseExistsError is fatal: an accession number targeted for creation is
// already present on the diagnostics service.
type CaseExistsError struct {
	AccessionNumber string
}

func (e CaseExistsError) Error() string {
	return fmt.Sprintf("case with accession number '%s' already exists", e.AccessionNumber)
}

type CaseNotFoundError struct {
	CaseID string
}

func (e CaseNotFoundError) Error() string {
	return fmt.Sprintf("case '%s' not found", e.CaseID)
}

type RunNotFoundError struct {
	RunID string
}

func (e RunNotFoundError) Error() string {
	return fmt.Sprintf("sequencer run '%s' not found", e.RunID)
}

type CaseCreationError struct {
	AccessionNumber string
	Err             error
}

func (e CaseCreationError) Error() string {
	return fmt.Sprintf("failed to create case '%s': %v", e.AccessionNumber, e.Err)
}

func (e CaseCreationError) Unwrap() error { return e.Err }

type SequencingRunCreationError struct {
	RunID string
	Err   error
}

func (e SequencingRunCreationError) Error() string {
	return fmt.Sprintf("failed to create sequencer run '%s': %v", e.RunID, e.Err)
}

func (e SequencingRunCreationError) Unwrap() error { return e.Err }

type UploadCaseFileError struct {
	CaseID   string
	Filename string
	Err      error
}

func (e UploadCaseFileError) Error() string {
	return fmt.Sprintf("failed to upload case file '%s' to case '%s': %v", e.Filename, e.CaseID, e.Err)
}

func (e UploadCaseFileError) Unwrap() error { return e.Err }

type JobCreationError struct {
	CaseID string
	Err    error
}

func (e JobCreationError) Error() string {
	return fmt.Sprintf("failed to create informatics job for case '%s': %v", e.CaseID, e.Err)
}

func (e JobCreationError) Unwrap() error { return e.Err }

type ListCasesError struct {
	Err error
}

func (e ListCasesError) Error() string {
	return fmt.Sprintf("failed to list cases: %v", e.Err)
}

func (e ListCasesError) Unwrap() error { return e.Err }

type S3UploadError struct {
	Key string
	Err error
}

func (e S3UploadError) Error() string {
	return fmt.Sprintf("failed to upload '%s': %v", e.Key, e.Err)
}

func (e S3UploadError) Unwrap() error { return e.Err }

// ArgumentError is fatal: the caller handed the core something malformed.
type ArgumentError struct {
	Msg string
}

func (e ArgumentError) Error() string { return e.Msg }
