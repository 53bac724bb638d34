package cttso_pieriandx_gateway

import (
	"testing"
)

func TestSplitAccessionNumber(t *testing.T) {

	t.Run("with suffix", func(t *testing.T) {
		key, err := SplitAccessionNumber("SBJ00595_L2100721_001")
		if err != nil {
			t.Fatalf("cannot split accession: %q", err)
		}
		want := SampleKey{SubjectID: "SBJ00595", LibraryID: "L2100721"}
		if key != want {
			t.Errorf("got %v want %v", key, want)
		}
	})

	t.Run("without suffix", func(t *testing.T) {
		key, err := SplitAccessionNumber("SBJ00595_L2100721")
		if err != nil {
			t.Fatalf("cannot split legacy accession: %q", err)
		}
		want := SampleKey{SubjectID: "SBJ00595", LibraryID: "L2100721"}
		if key != want {
			t.Errorf("got %v want %v", key, want)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := SplitAccessionNumber("NOT_AN_ACCESSION"); err == nil {
			t.Error("expected an error for a malformed accession")
		}
	})
}

func TestValidateAccessionNumber(t *testing.T) {

	key := SampleKey{SubjectID: "SBJ00595", LibraryID: "L2100721"}

	t.Run("valid", func(t *testing.T) {
		if err := ValidateAccessionNumber(key, "SBJ00595_L2100721_001"); err != nil {
			t.Errorf("unexpected error: %q", err)
		}
	})

	t.Run("missing suffix", func(t *testing.T) {
		if err := ValidateAccessionNumber(key, "SBJ00595_L2100721"); err == nil {
			t.Error("expected an error for a missing suffix")
		}
	})

	t.Run("wrong sample", func(t *testing.T) {
		if err := ValidateAccessionNumber(key, "SBJ00001_L0000001_001"); err == nil {
			t.Error("expected an error for another sample's accession")
		}
	})
}

func TestGenerateAccessionNumber(t *testing.T) {

	key := SampleKey{SubjectID: "SBJ00595", LibraryID: "L2100721"}

	t.Run("no existing accessions", func(t *testing.T) {
		got := GenerateAccessionNumber(key, nil)
		want := "SBJ00595_L2100721_001"
		if got != want {
			t.Errorf("got %v want %v", got, want)
		}
	})

	t.Run("skips taken suffixes", func(t *testing.T) {
		existing := []string{"SBJ00595_L2100721_001", "SBJ00595_L2100721_002"}
		got := GenerateAccessionNumber(key, existing)
		want := "SBJ00595_L2100721_003"
		if got != want {
			t.Errorf("got %v want %v", got, want)
		}
	})

	t.Run("fills gaps", func(t *testing.T) {
		existing := []string{"SBJ00595_L2100721_001", "SBJ00595_L2100721_003"}
		got := GenerateAccessionNumber(key, existing)
		want := "SBJ00595_L2100721_002"
		if got != want {
			t.Errorf("got %v want %v", got, want)
		}
	})

	t.Run("other samples do not collide", func(t *testing.T) {
		existing := []string{"SBJ00001_L0000001_001"}
		got := GenerateAccessionNumber(key, existing)
		want := "SBJ00595_L2100721_001"
		if got != want {
			t.Errorf("got %v want %v", got, want)
		}
	})

	t.Run("generated accession validates", func(t *testing.T) {
		got := GenerateAccessionNumber(key, nil)
		if err := ValidateAccessionNumber(key, got); err != nil {
			t.Errorf("generated accession does not validate: %q", err)
		}
	})
}
