package attendance

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"campus-backend/internal/platform/auth"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportSheet     = "Attendance"
	exportTimeFmt   = "2006-01-02 15:04:05"
)

var exportHeader = []any{"No", "Name", "Email", "Student Code", "Status", "Checked In At (UTC)", "Note"}

// ExportSession: 詳細と同じ権限。出席者（打刻順）→ 欠席者（名簿順）
func (s *Service) ExportSession(ctx context.Context, caller auth.Caller, id string) (*bytes.Buffer, string, error) {
	d, err := s.GetSessionDetails(ctx, caller, id)
	if err != nil {
		return nil, "", err
	}
	buf, err := buildWorkbook(d)
	if err != nil {
		return nil, "", fmt.Errorf("export session %s: %w", id, err)
	}
	name := fmt.Sprintf("attendance_%s_%s_%s.xlsx", d.Class.Code, d.Subject.Code, d.Session.Date.Format("20060102_1504"))
	return buf, name, nil
}

func buildWorkbook(d *SessionDetails) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	summary := [][]any{
		{"Class", d.Class.Name, d.Class.Code},
		{"Subject", d.Subject.Name, d.Subject.Code},
		{"Date (UTC)", d.Session.Date.Format(exportTimeFmt)},
		{"Attended", d.Session.AttendedCount, "of", d.Session.TotalStudents},
	}
	row := 1
	for _, r := range summary {
		if err := setRow(f, row, r); err != nil {
			return nil, err
		}
		row++
	}
	row++

	headerRow := row
	if err := setRow(f, row, exportHeader); err != nil {
		return nil, err
	}
	row++

	no := 1
	for _, a := range d.AttendedStudents {
		note := ""
		if a.Note != nil {
			note = *a.Note
		}
		if err := setRow(f, row, []any{no, a.Student.Name, a.Student.Email, strOrEmpty(a.Student.StudentCode),
			string(a.Status), a.CheckedInAt.Format(exportTimeFmt), note}); err != nil {
			return nil, err
		}
		row++
		no++
	}
	for _, m := range d.AbsentStudents {
		if err := setRow(f, row, []any{no, m.Name, m.Email, strOrEmpty(m.StudentCode), string(StatusAbsent), "", ""}); err != nil {
			return nil, err
		}
		row++
		no++
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), headerRow)
	if err := f.SetCellStyle(exportSheet, first, last, bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "B", "G", 22); err != nil {
		return nil, err
	}
	return f.WriteToBuffer()
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(exportSheet, cell, &values)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
