package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"

	"github.com/viewheel/backend/internal/models"
)

// Tracking sheet layout: one header row, then name | size | wallet |
// airtime (PST) | tx.
const (
	headerRows     = 1
	trackedColumns = 5
	airtimeColumn  = 3
)

// SheetTracker appends one row per submission and keeps the sheet
// ordered by airtime.
type SheetTracker struct {
	svc           *sheets.Service
	spreadsheetID string
	valueRange    string
	title         string
}

func NewSheetTracker(svc *sheets.Service, spreadsheetID, valueRange, title string) *SheetTracker {
	return &SheetTracker{svc: svc, spreadsheetID: spreadsheetID, valueRange: valueRange, title: title}
}

func (s *SheetTracker) Append(ctx context.Context, rec models.UploadRecord) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{rec.Row()}}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.valueRange, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("sheet append: %w", err)
	}
	return nil
}

// SortByTimestamp sorts every row below the header by the airtime column.
func (s *SheetTracker) SortByTimestamp(ctx context.Context) error {
	sheetID, err := s.sheetID(ctx)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			SortRange: &sheets.SortRangeRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    headerRows,
					StartColumnIndex: 0,
					EndColumnIndex:   trackedColumns,
					ForceSendFields:  []string{"SheetId", "StartColumnIndex"},
				},
				SortSpecs: []*sheets.SortSpec{{
					DimensionIndex: airtimeColumn,
					SortOrder:      "ASCENDING",
				}},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheet sort: %w", err)
	}
	return nil
}

func (s *SheetTracker) sheetID(ctx context.Context) (int64, error) {
	meta, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheet lookup: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.title {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", s.title)
}
