package attendance

import "time"

type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent:
		return true
	}
	return false
}

const (
	DefaultDuration = 15 // 分
	MinDuration     = 5
	MaxDuration     = 60
	LateGrace       = 15 * time.Minute
	lateNote        = "late check-in"
)

// Record: 1 生徒 1 セッションにつき最大 1 件
type Record struct {
	StudentID   string
	Status      Status
	CheckedInAt time.Time
	Note        *string
}

type Session struct {
	ID            string
	ClassID       string
	SubjectID     string
	TeacherID     string
	Code          string
	Duration      int // 分
	AllowLate     bool
	StartedAt     time.Time
	ExpiresAt     time.Time
	IsActive      bool
	TotalStudents int
	AttendedCount int
	Records       []Record // 登録順
	Version       uint64
	CreatedAt     time.Time
}

// IsOpen: 期限切れは読み取り時に判定する（状態遷移はしない）
func (s *Session) IsOpen(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

func (s *Session) Record(studentID string) (Record, bool) {
	for _, r := range s.Records {
		if r.StudentID == studentID {
			return r, true
		}
	}
	return Record{}, false
}

// statusAt: 遅刻判定は開始時刻基準。allowLate=false なら猶予 0
func (s *Session) statusAt(now time.Time) Status {
	grace := time.Duration(0)
	if s.AllowLate {
		grace = LateGrace
	}
	if now.After(s.StartedAt.Add(grace)) {
		return StatusLate
	}
	return StatusPresent
}

// putRecord: 既存なら status/note を上書き（checkedInAt は維持）、無ければ追加。
// 書き込むべき確定レコードを返す
func (s *Session) putRecord(r Record) (Record, bool) {
	for i := range s.Records {
		if s.Records[i].StudentID == r.StudentID {
			s.Records[i].Status = r.Status
			if r.Note != nil {
				s.Records[i].Note = r.Note
			}
			return s.Records[i], false
		}
	}
	s.Records = append(s.Records, r)
	s.AttendedCount = len(s.Records)
	return r, true
}

// 出欠画面・履歴用の参照（ID / 名前 / コード）
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// HistoryRow: 生徒 1 人から見たセッション 1 件と、その生徒の記録
type HistoryRow struct {
	SessionID string
	Date      time.Time
	Subject   Ref
	Class     Ref
	Record    Record
}

// StudentCounts: 生徒の記録のステータス別件数
type StudentCounts struct {
	Total   int
	Present int
	Late    int
	Absent  int
}
