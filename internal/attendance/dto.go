package attendance

import "time"

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

type CreateSessionRequest struct {
	ClassID   string `json:"classId" binding:"required"`
	SubjectID string `json:"subjectId" binding:"required"`
	Duration  *int   `json:"duration,omitempty"`  // 分、既定 15
	AllowLate *bool  `json:"allowLate,omitempty"` // 既定 true
}

type CheckInRequest struct {
	Code string `json:"code" binding:"required"`
}

type MarkManualRequest struct {
	AttendanceID string `json:"attendanceId" binding:"required"`
	StudentID    string `json:"studentId" binding:"required"`
	Status       Status `json:"status,omitempty" binding:"omitempty,attendance_status"`
}

type RecordResponse struct {
	StudentID   string    `json:"studentId"`
	Status      Status    `json:"status"`
	CheckedInAt time.Time `json:"checkedInAt"`
	Note        *string   `json:"note,omitempty"`
}

type SessionResponse struct {
	ID            string           `json:"id"`
	ClassID       string           `json:"classId"`
	SubjectID     string           `json:"subjectId"`
	TeacherID     string           `json:"teacherId"`
	Code          string           `json:"code"`
	Duration      int              `json:"duration"`
	AllowLate     bool             `json:"allowLate"`
	Date          time.Time        `json:"date"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	IsActive      bool             `json:"isActive"`
	IsOpen        bool             `json:"isOpen"`
	TotalStudents int              `json:"totalStudents"`
	AttendedCount int              `json:"attendedCount"`
	Attendances   []RecordResponse `json:"attendances"`
}

type CheckInResponse struct {
	Message     string    `json:"message"`
	Status      Status    `json:"status"`
	CheckedInAt time.Time `json:"checkedInAt"`
	SubjectName string    `json:"subjectName"`
	ClassName   string    `json:"className"`
}

type MarkManualResponse struct {
	Message string         `json:"message"`
	Created bool           `json:"created"`
	Record  RecordResponse `json:"record"`
}

type StudentRef struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email,omitempty"`
	StudentCode *string `json:"studentCode,omitempty"`
}

type AttendedStudent struct {
	Student     StudentRef `json:"student"`
	Status      Status     `json:"status"`
	CheckedInAt time.Time  `json:"checkedInAt"`
	Note        *string    `json:"note,omitempty"`
}

type SessionDetails struct {
	Session          SessionResponse   `json:"session"`
	Subject          Ref               `json:"subject"`
	Class            Ref               `json:"class"`
	AttendedStudents []AttendedStudent `json:"attendedStudents"`
	AbsentStudents   []StudentRef      `json:"absentStudents"`
}

type StatsResponse struct {
	TotalSessions int     `json:"totalSessions"`
	Present       int     `json:"present"`
	Late          int     `json:"late"`
	Absent        int     `json:"absent"`
	PresentRate   float64 `json:"presentRate"`
}

type HistoryEntry struct {
	ID          string     `json:"id"`
	Date        time.Time  `json:"date"`
	Subject     Ref        `json:"subject"`
	Class       Ref        `json:"class"`
	Status      Status     `json:"status"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	IsLate      bool       `json:"isLate"`
	Note        *string    `json:"note,omitempty"`
}

type Pagination struct {
	Total int `json:"total"`
	Pages int `json:"pages"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type HistoryResponse struct {
	History    []HistoryEntry `json:"history"`
	Pagination Pagination     `json:"pagination"`
}

func (r Record) toDTO() RecordResponse {
	return RecordResponse{
		StudentID:   r.StudentID,
		Status:      r.Status,
		CheckedInAt: r.CheckedInAt.UTC(),
		Note:        r.Note,
	}
}

func (s *Session) toDTO(now time.Time) SessionResponse {
	recs := make([]RecordResponse, 0, len(s.Records))
	for _, r := range s.Records {
		recs = append(recs, r.toDTO())
	}
	return SessionResponse{
		ID:            s.ID,
		ClassID:       s.ClassID,
		SubjectID:     s.SubjectID,
		TeacherID:     s.TeacherID,
		Code:          s.Code,
		Duration:      s.Duration,
		AllowLate:     s.AllowLate,
		Date:          s.StartedAt.UTC(),
		ExpiresAt:     s.ExpiresAt.UTC(),
		IsActive:      s.IsActive,
		IsOpen:        s.IsOpen(now),
		TotalStudents: s.TotalStudents,
		AttendedCount: s.AttendedCount,
		Attendances:   recs,
	}
}

func (h HistoryRow) toDTO() HistoryEntry {
	at := h.Record.CheckedInAt.UTC()
	return HistoryEntry{
		ID:          h.SessionID,
		Date:        h.Date.UTC(),
		Subject:     h.Subject,
		Class:       h.Class,
		Status:      h.Record.Status,
		CheckedInAt: &at,
		IsLate:      h.Record.Status == StatusLate,
		Note:        h.Record.Note,
	}
}
