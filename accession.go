package cttso_pieriandx_gateway

import (
	"fmt"
	"regexp"
)

// Accession numbers take the form {subject}_{library}_{3-digit sequence}.
// Parsing an accession observed on the diagnostics service tolerates a
// missing sequence suffix (historical cases were created without one), but
// every accession generated here carries the suffix and is validated
// strictly before use.
var (
	accessionSplitRegex  = regexp.MustCompile(`^(SBJ\d+)_(L\d+)(?:_(\d+))?$`)
	accessionStrictRegex = regexp.MustCompile(`^SBJ\d+_L\d+_\d{3}$`)
)

// SplitAccessionNumber parses an existing accession number into its subject
// and library ids. The numeric suffix, when present, is ignored.
func SplitAccessionNumber(accession string) (SampleKey, error) {
	m := accessionSplitRegex.FindStringSubmatch(accession)
	if m == nil {
		return SampleKey{}, ArgumentError{Msg: fmt.Sprintf("accession number '%s' does not match the expected format", accession)}
	}
	return SampleKey{SubjectID: m[1], LibraryID: m[2]}, nil
}

// ValidateAccessionNumber checks that a generated accession number carries
// the mandatory 3-digit sequence suffix for the given sample.
func ValidateAccessionNumber(key SampleKey, accession string) error {
	if !accessionStrictRegex.MatchString(accession) {
		return ArgumentError{Msg: fmt.Sprintf("accession number '%s' is missing the 3-digit sequence suffix", accession)}
	}
	prefix := fmt.Sprintf("%s_%s_", key.SubjectID, key.LibraryID)
	if len(accession) != len(prefix)+3 || accession[:len(prefix)] != prefix {
		return ArgumentError{Msg: fmt.Sprintf("accession number '%s' does not belong to sample %s", accession, key)}
	}
	return nil
}

// GenerateAccessionNumber returns the next unused accession number for a
// sample: the smallest sequence suffix >= 1 that does not collide with any
// accession already present on the diagnostics service.
func GenerateAccessionNumber(key SampleKey, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[e] = true
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%s_%03d", key.SubjectID, key.LibraryID, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
