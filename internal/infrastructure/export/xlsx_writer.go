package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/uxone/internal/application/port"
	"github.com/garyjia/uxone/internal/domain/entity"
)

const (
	SummarySheet = "Summary"
	LogSheet     = "Approval Log"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout      = "2006-01-02 15:04:05"
)

var logHeader = []string{"Department", "Decision", "Actor", "Timestamp", "Comment"}

// XLSXWriter renders an aggregate's approval log as an Excel workbook
type XLSXWriter struct {
	location *time.Location
}

// NewXLSXWriter creates a writer that prints timestamps in loc (UTC when nil)
func NewXLSXWriter(loc *time.Location) *XLSXWriter {
	if loc == nil {
		loc = time.UTC
	}
	return &XLSXWriter{location: loc}
}

// ContentType returns the workbook MIME type
func (w *XLSXWriter) ContentType() string { return xlsxContentType }

// Extension returns the workbook file extension
func (w *XLSXWriter) Extension() string { return ".xlsx" }

// Write builds the workbook. Log rows are grouped by department in approval order,
// then any department outside the required set, each group in submission order.
func (w *XLSXWriter) Write(agg *entity.WorkflowAggregate) ([]byte, error) {
	if agg == nil {
		return nil, fmt.Errorf("aggregate is nil")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(LogSheet); err != nil {
		return nil, fmt.Errorf("failed to create log sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := w.writeSummary(f, agg, bold); err != nil {
		return nil, err
	}
	if err := w.writeLog(f, agg, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *XLSXWriter) writeSummary(f *excelize.File, agg *entity.WorkflowAggregate, headerStyle int) error {
	released := "No"
	if agg.Released {
		released = "Yes"
	}

	rows := [][]interface{}{
		{"Code", agg.Code},
		{"Kind", string(agg.Kind)},
		{"Title", agg.Title},
		{"Owner", agg.OwnerID},
		{"Status", string(agg.Status)},
		{"Released", released},
	}
	if agg.ReleasedAt != nil {
		rows = append(rows, []interface{}{"Released At", w.format(*agg.ReleasedAt)})
	}

	for i, row := range rows {
		if err := setRow(f, SummarySheet, i+1, row); err != nil {
			return err
		}
	}

	// Per-department positions below the header block
	start := len(rows) + 2
	if err := setRow(f, SummarySheet, start, []interface{}{"Department", "Status", "Decided By", "Decided At", "Decisions"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, fmt.Sprintf("A%d", start), fmt.Sprintf("E%d", start), headerStyle); err != nil {
		return fmt.Errorf("failed to style summary header: %w", err)
	}

	for i, ds := range agg.DepartmentStatuses() {
		decidedAt := ""
		if ds.DecidedAt != nil {
			decidedAt = w.format(*ds.DecidedAt)
		}
		row := []interface{}{string(ds.Department), string(ds.Status), ds.DecidedBy, decidedAt, ds.Decisions}
		if err := setRow(f, SummarySheet, start+1+i, row); err != nil {
			return err
		}
	}

	return f.SetColWidth(SummarySheet, "A", "E", 18)
}

func (w *XLSXWriter) writeLog(f *excelize.File, agg *entity.WorkflowAggregate, headerStyle int) error {
	header := make([]interface{}, len(logHeader))
	for i, h := range logHeader {
		header[i] = h
	}
	if err := setRow(f, LogSheet, 1, header); err != nil {
		return err
	}
	if err := f.SetCellStyle(LogSheet, "A1", "E1", headerStyle); err != nil {
		return fmt.Errorf("failed to style log header: %w", err)
	}

	row := 2
	for _, dept := range logOrder(agg) {
		for _, rec := range agg.ApprovalLog[dept] {
			values := []interface{}{string(dept), string(rec.Status), rec.Actor, w.format(rec.Timestamp), rec.Comment}
			if err := setRow(f, LogSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}

	if err := f.SetColWidth(LogSheet, "A", "D", 20); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(LogSheet, "E", "E", 48)
}

func (w *XLSXWriter) format(t time.Time) string {
	return t.In(w.location).Format(timeLayout)
}

// logOrder lists required departments first, then any other logged department sorted
func logOrder(agg *entity.WorkflowAggregate) []entity.Department {
	seen := make(map[entity.Department]bool, len(agg.Departments))
	order := make([]entity.Department, 0, len(agg.Departments))
	for _, dept := range agg.Departments {
		if !seen[dept] {
			seen[dept] = true
			order = append(order, dept)
		}
	}
	for _, dept := range agg.ApprovalLog.Departments() {
		if !seen[dept] {
			seen[dept] = true
			order = append(order, dept)
		}
	}
	return order
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to resolve row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to set %s row %d: %w", sheet, row, err)
	}
	return nil
}

// Verify interface compliance
var _ port.ApprovalLogWriter = (*XLSXWriter)(nil)
