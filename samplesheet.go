package cttso_pieriandx_gateway

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Samplesheet is a sectioned Illumina sample sheet. Sections are kept as
// raw lines so a read-modify-write round trip preserves everything outside
// the Data section untouched.
type Samplesheet struct {
	sectionOrder []string
	sections     map[string][]string
}

const dataSection = "Data"

// SamplesheetEntry is one row of the Data section.
type SamplesheetEntry struct {
	Lane     int
	SampleID string
	Index    string
	Index2   string
}

// Barcode is the lane barcode in the form the diagnostics service expects.
func (e SamplesheetEntry) Barcode() string {
	if e.Index2 == "" {
		return e.Index
	}
	return fmt.Sprintf("%s-%s", e.Index, e.Index2)
}

// ReadSamplesheet parses a sectioned sample sheet from disk.
func ReadSamplesheet(path string) (*Samplesheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Failed to open samplesheet '%s': %v", path, err)
	}
	defer f.Close()

	s := &Samplesheet{sections: make(map[string][]string)}
	current := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		trimmed := strings.TrimRight(line, ",")
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = strings.Trim(trimmed, "[]")
			s.sectionOrder = append(s.sectionOrder, current)
			continue
		}
		if current == "" {
			continue
		}
		s.sections[current] = append(s.sections[current], line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read samplesheet '%s': %v", path, err)
	}
	if _, ok := s.sections[dataSection]; !ok {
		return nil, ArgumentError{Msg: fmt.Sprintf("samplesheet '%s' has no Data section", path)}
	}
	return s, nil
}

// Write renders the sheet back to disk in its original section order.
func (s *Samplesheet) Write(path string) error {
	var b strings.Builder
	for _, name := range s.sectionOrder {
		fmt.Fprintf(&b, "[%s]\n", name)
		for _, line := range s.sections[name] {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("Failed to write samplesheet '%s': %v", path, err)
	}
	return nil
}

// DataEntries parses the Data section rows.
func (s *Samplesheet) DataEntries() ([]SamplesheetEntry, error) {
	lines := s.sections[dataSection]
	if len(lines) == 0 {
		return nil, ArgumentError{Msg: "samplesheet Data section is empty"}
	}
	header := strings.Split(lines[0], ",")
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"Lane", "Sample_ID", "index"} {
		if _, ok := col[required]; !ok {
			return nil, ArgumentError{Msg: fmt.Sprintf("samplesheet Data section is missing column '%s'", required)}
		}
	}

	var entries []SamplesheetEntry
	for _, line := range lines[1:] {
		if strings.TrimSpace(strings.ReplaceAll(line, ",", "")) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[i])
		}
		lane, err := strconv.Atoi(get("Lane"))
		if err != nil {
			return nil, ArgumentError{Msg: fmt.Sprintf("samplesheet lane '%s' is not numeric", get("Lane"))}
		}
		entries = append(entries, SamplesheetEntry{
			Lane:     lane,
			SampleID: get("Sample_ID"),
			Index:    get("index"),
			Index2:   get("index2"),
		})
	}
	return entries, nil
}

// EntriesFor returns the Data rows for one sample id. A library sequenced
// over multiple lanes yields one entry per lane.
func (s *Samplesheet) EntriesFor(sampleID string) ([]SamplesheetEntry, error) {
	entries, err := s.DataEntries()
	if err != nil {
		return nil, err
	}
	var matched []SamplesheetEntry
	for _, e := range entries {
		if e.SampleID == sampleID {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil, ArgumentError{Msg: fmt.Sprintf("sample '%s' not found in samplesheet", sampleID)}
	}
	return matched, nil
}

// FilterToSample truncates the Data section to the rows of one sample,
// keeping the header row. Used before handing the sheet to the sequencer
// run registration.
func (s *Samplesheet) FilterToSample(sampleID string) error {
	lines := s.sections[dataSection]
	if len(lines) == 0 {
		return ArgumentError{Msg: "samplesheet Data section is empty"}
	}
	kept := []string{lines[0]}
	header := strings.Split(lines[0], ",")
	sampleCol := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "Sample_ID" {
			sampleCol = i
		}
	}
	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		if sampleCol < len(fields) && strings.TrimSpace(fields[sampleCol]) == sampleID {
			kept = append(kept, line)
		}
	}
	if len(kept) == 1 {
		return ArgumentError{Msg: fmt.Sprintf("sample '%s' not found in samplesheet", sampleID)}
	}
	s.sections[dataSection] = kept
	return nil
}
