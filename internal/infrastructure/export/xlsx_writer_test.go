package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/uxone/internal/domain/entity"
)

func sampleAggregate() *entity.WorkflowAggregate {
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	log := entity.ApprovalLog{}
	log.Append(entity.DepartmentQA, entity.DecisionRecord{Status: entity.DecisionRejected, Timestamp: base, Actor: "qa-head", Comment: "missing drawings"})
	log.Append(entity.DepartmentLogistics, entity.DecisionRecord{Status: entity.DecisionApproved, Timestamp: base.Add(time.Minute), Actor: "log-head"})
	log.Append(entity.DepartmentQA, entity.DecisionRecord{Status: entity.DecisionApproved, Timestamp: base.Add(2 * time.Hour), Actor: "qa-head"})

	return &entity.WorkflowAggregate{
		ID:          7,
		Code:        "PRJ-20261017-001",
		Kind:        entity.KindProject,
		Title:       "Line 3 retrofit",
		OwnerID:     "owner-1",
		Departments: []entity.Department{entity.DepartmentLogistics, entity.DepartmentQA, entity.DepartmentPC},
		ApprovalLog: log,
		Status:      entity.StatusPending,
	}
}

func openWorkbook(t *testing.T, content []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestXLSXWriter_Metadata(t *testing.T) {
	w := NewXLSXWriter(nil)
	assert.Equal(t, ".xlsx", w.Extension())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.ContentType())
}

func TestXLSXWriter_Write(t *testing.T) {
	content, err := NewXLSXWriter(time.UTC).Write(sampleAggregate())
	require.NoError(t, err)

	f := openWorkbook(t, content)
	assert.Equal(t, []string{SummarySheet, LogSheet}, f.GetSheetList())

	code, err := f.GetCellValue(SummarySheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "PRJ-20261017-001", code)

	status, err := f.GetCellValue(SummarySheet, "B5")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", status)

	released, err := f.GetCellValue(SummarySheet, "B6")
	require.NoError(t, err)
	assert.Equal(t, "No", released)

	rows, err := f.GetRows(LogSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, logHeader, rows[0])

	// Required department order, then submission order within a department
	assert.Equal(t, []string{"logistics", "APPROVED", "log-head", "2026-10-17 09:01:00"}, rows[1])
	assert.Equal(t, []string{"qa", "REJECTED", "qa-head", "2026-10-17 09:00:00", "missing drawings"}, rows[2])
	assert.Equal(t, []string{"qa", "APPROVED", "qa-head", "2026-10-17 11:00:00"}, rows[3])
}

func TestXLSXWriter_SummaryDepartments(t *testing.T) {
	content, err := NewXLSXWriter(time.UTC).Write(sampleAggregate())
	require.NoError(t, err)

	rows, err := openWorkbook(t, content).GetRows(SummarySheet)
	require.NoError(t, err)

	// Six header rows, a blank row, the department header, then one row per department
	require.Len(t, rows, 11)
	assert.Equal(t, "Department", rows[7][0])
	assert.Equal(t, []string{"logistics", "APPROVED", "log-head", "2026-10-17 09:01:00", "1"}, rows[8])
	assert.Equal(t, []string{"qa", "APPROVED", "qa-head", "2026-10-17 11:00:00", "2"}, rows[9])
	assert.Equal(t, []string{"pc", "PENDING", "", "", "0"}, rows[10])
}

func TestXLSXWriter_ReleasedAndTimezone(t *testing.T) {
	agg := sampleAggregate()
	releasedAt := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	agg.Status = entity.StatusApproved
	agg.Released = true
	agg.ReleasedAt = &releasedAt

	loc := time.FixedZone("UTC+8", 8*3600)
	content, err := NewXLSXWriter(loc).Write(agg)
	require.NoError(t, err)

	f := openWorkbook(t, content)
	released, err := f.GetCellValue(SummarySheet, "B6")
	require.NoError(t, err)
	assert.Equal(t, "Yes", released)

	at, err := f.GetCellValue(SummarySheet, "B7")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17 20:00:00", at)
}

func TestXLSXWriter_OutsideDepartmentsAppended(t *testing.T) {
	agg := sampleAggregate()
	agg.ApprovalLog.Append(entity.DepartmentFinance, entity.DecisionRecord{
		Status: entity.DecisionApproved, Timestamp: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), Actor: "admin",
	})

	content, err := NewXLSXWriter(nil).Write(agg)
	require.NoError(t, err)

	rows, err := openWorkbook(t, content).GetRows(LogSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "finance", rows[4][0])
}

func TestXLSXWriter_EmptyLogAndNil(t *testing.T) {
	agg := sampleAggregate()
	agg.ApprovalLog = entity.ApprovalLog{}

	content, err := NewXLSXWriter(nil).Write(agg)
	require.NoError(t, err)

	rows, err := openWorkbook(t, content).GetRows(LogSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = NewXLSXWriter(nil).Write(nil)
	assert.Error(t, err)
}
