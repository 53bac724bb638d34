package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const (
	trackingSheet = "Tracking"
	retiredSheet  = "Retired"
	// blank trailing rows appended on a full rewrite so operators can keep
	// making manual edits without resizing the sheet
	blankPadRows = 100
)

// LimsService is the tracking store adapter: an xlsx workbook holding the
// live tracking sheet and the retired-records audit sheet. The workbook's
// durable home is S3; Open pulls it down and Save pushes it back.
type LimsService struct {
	s3     *AWSS3Service
	bucket string
	key    string
	path   string
	file   *excelize.File
	logger *slog.Logger
}

func NewLimsService(s3 *AWSS3Service, bucket, key, scratchDir string, logger *slog.Logger) *LimsService {
	return &LimsService{
		s3:     s3,
		bucket: bucket,
		key:    key,
		path:   filepath.Join(scratchDir, filepath.Base(key)),
		logger: logger,
	}
}

// Open fetches the workbook and prepares both sheets. A missing workbook is
// created empty with headers, so a fresh deployment starts from a valid
// store.
func (l *LimsService) Open(ctx context.Context) error {
	if l.s3 != nil {
		exists, err := l.s3.ObjectExists(ctx, l.bucket, l.key)
		if err != nil {
			return fmt.Errorf("Failed to check tracking workbook %s:%s: %v", l.bucket, l.key, err)
		}
		if exists {
			data, err := l.s3.GetObject(ctx, l.bucket, l.key)
			if err != nil {
				return fmt.Errorf("Failed to download tracking workbook: %v", err)
			}
			if err := os.WriteFile(l.path, data, 0o644); err != nil {
				return fmt.Errorf("Failed to stage tracking workbook at '%s': %v", l.path, err)
			}
		}
	}

	if _, err := os.Stat(l.path); err == nil {
		f, err := excelize.OpenFile(l.path)
		if err != nil {
			return fmt.Errorf("Failed to open tracking workbook '%s': %v", l.path, err)
		}
		l.file = f
	} else {
		l.file = excelize.NewFile()
	}
	if err := l.ensureSheet(trackingSheet, TrackingHeader); err != nil {
		return err
	}
	if err := l.ensureSheet(retiredSheet, RetiredHeader); err != nil {
		return err
	}
	return nil
}

// Save writes the workbook locally and pushes it back to its S3 home.
func (l *LimsService) Save(ctx context.Context) error {
	if err := l.file.SaveAs(l.path); err != nil {
		return fmt.Errorf("Failed to save tracking workbook '%s': %v", l.path, err)
	}
	if l.s3 == nil {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("Failed to read tracking workbook '%s': %v", l.path, err)
	}
	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if err := l.s3.PutObject(ctx, l.bucket, l.key, data, contentType); err != nil {
		return fmt.Errorf("Failed to upload tracking workbook: %v", err)
	}
	return nil
}

func (l *LimsService) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *LimsService) ensureSheet(name string, header []string) error {
	index, err := l.file.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("Failed to look up sheet '%s': %v", name, err)
	}
	if index == -1 {
		if _, err := l.file.NewSheet(name); err != nil {
			return fmt.Errorf("Failed to create sheet '%s': %v", name, err)
		}
		for i, h := range header {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			if err := l.file.SetCellValue(name, cell, h); err != nil {
				return fmt.Errorf("Failed to write header for sheet '%s': %v", name, err)
			}
		}
	}
	return nil
}

// ReadAll returns every tracking row along with the position index mapping
// row identity to its 1-based physical row number (the header occupies row
// 1), for targeted in-place updates.
func (l *LimsService) ReadAll() ([]TrackingRow, map[RowKey]int, error) {
	rows, err := l.file.GetRows(trackingSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to read tracking sheet: %v", err)
	}
	var records []TrackingRow
	positions := make(map[RowKey]int)
	for i, cells := range rows {
		if i == 0 {
			continue
		}
		if rowIsBlank(cells) {
			continue
		}
		row := TrackingRowFromCells(cells)
		records = append(records, row)
		positions[row.Key()] = i + 1
	}
	return records, positions, nil
}

// UpdateRow rewrites one physical row in place.
func (l *LimsService) UpdateRow(row TrackingRow, position int) error {
	if position < 2 {
		return ArgumentError{Msg: fmt.Sprintf("invalid tracking row position %d", position)}
	}
	return l.writeRow(trackingSheet, row.Cells(), position)
}

// AppendRows adds rows after the last populated tracking row.
func (l *LimsService) AppendRows(rows []TrackingRow) error {
	next, err := l.nextRowNumber(trackingSheet)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if err := l.writeRow(trackingSheet, row.Cells(), next+i); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceAll rewrites the live sheet from scratch. Used only by cleanup
// passes that shrink the table; trailing blank rows are padded in so the
// sheet keeps room for manual edits.
func (l *LimsService) ReplaceAll(rows []TrackingRow) error {
	if err := l.file.DeleteSheet(trackingSheet); err != nil {
		return fmt.Errorf("Failed to reset tracking sheet: %v", err)
	}
	if err := l.ensureSheet(trackingSheet, TrackingHeader); err != nil {
		return err
	}
	for i, row := range rows {
		if err := l.writeRow(trackingSheet, row.Cells(), i+2); err != nil {
			return err
		}
	}
	blank := make([]string, len(TrackingHeader))
	for i := 0; i < blankPadRows; i++ {
		if err := l.writeRow(trackingSheet, blank, len(rows)+2+i); err != nil {
			return err
		}
	}
	return nil
}

// ReadRetired returns the audit table.
func (l *LimsService) ReadRetired() ([]RetiredRecord, error) {
	rows, err := l.file.GetRows(retiredSheet)
	if err != nil {
		return nil, fmt.Errorf("Failed to read retired sheet: %v", err)
	}
	var records []RetiredRecord
	for i, cells := range rows {
		if i == 0 || rowIsBlank(cells) {
			continue
		}
		records = append(records, RetiredRecordFromCells(cells))
	}
	return records, nil
}

// AppendRetired appends to the audit table. The table is append-only.
func (l *LimsService) AppendRetired(records []RetiredRecord) error {
	next, err := l.nextRowNumber(retiredSheet)
	if err != nil {
		return err
	}
	for i, record := range records {
		if err := l.writeRow(retiredSheet, record.Cells(), next+i); err != nil {
			return err
		}
	}
	return nil
}

func (l *LimsService) writeRow(sheet string, cells []string, position int) error {
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	cell, _ := excelize.CoordinatesToCellName(1, position)
	if err := l.file.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("Failed to write row %d of sheet '%s': %v", position, sheet, err)
	}
	return nil
}

func (l *LimsService) nextRowNumber(sheet string) (int, error) {
	rows, err := l.file.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("Failed to read sheet '%s': %v", sheet, err)
	}
	last := 1
	for i, cells := range rows {
		if i == 0 {
			continue
		}
		if !rowIsBlank(cells) {
			last = i + 1
		}
	}
	return last + 1, nil
}

func rowIsBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
