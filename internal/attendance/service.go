package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"campus-backend/internal/directory"
	"campus-backend/internal/platform/apierr"
	"campus-backend/internal/platform/auth"
	"campus-backend/internal/platform/ids"
	"campus-backend/internal/platform/logger"
)

const maxCodeRetries = 5

// Notifier: 投げっぱなしの通知先。失敗してもセッション操作は巻き戻さない
type Notifier interface {
	Notify(ctx context.Context, userID, message, link string)
}

type Service struct {
	store    Store
	dir      directory.Directory
	notifier Notifier
	clock    ids.Clock
	id       ids.IDGen
	codes    func() (string, error)
}

func NewService(store Store, dir directory.Directory, notifier Notifier) *Service {
	return &Service{
		store:    store,
		dir:      dir,
		notifier: notifier,
		clock:    ids.SystemClock{},
		id:       ids.NewULIDGen(),
		codes:    GenerateCode,
	}
}

// POST /attendance/generate
func (s *Service) CreateSession(ctx context.Context, caller auth.Caller, req CreateSessionRequest) (*SessionResponse, error) {
	if !caller.HasRole(auth.RoleTeacher, auth.RoleAdmin) {
		return nil, apierr.Forbidden("only teachers can open attendance sessions")
	}
	duration := DefaultDuration
	if req.Duration != nil {
		duration = *req.Duration
	}
	if duration < MinDuration || duration > MaxDuration {
		return nil, apierr.Invalid(fmt.Sprintf("duration must be between %d and %d minutes", MinDuration, MaxDuration))
	}
	allowLate := true
	if req.AllowLate != nil {
		allowLate = *req.AllowLate
	}

	class, subject, err := s.lookup(ctx, req.ClassID, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if !caller.CanManage(class.OwnerID()) {
		return nil, apierr.Forbidden("not the teacher of this class")
	}
	if !class.HasSubject(subject.ID) {
		return nil, apierr.Invalid("subject is not assigned to this class")
	}

	if err := s.ensureNoOpenSession(ctx, class.ID, subject.ID); err != nil {
		return nil, err
	}

	id, err := s.id.New()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	sess := &Session{
		ID:            id,
		ClassID:       class.ID,
		SubjectID:     subject.ID,
		TeacherID:     caller.UserID,
		Duration:      duration,
		AllowLate:     allowLate,
		StartedAt:     now,
		ExpiresAt:     now.Add(time.Duration(duration) * time.Minute),
		IsActive:      true,
		TotalStudents: len(class.StudentIDs),
		CreatedAt:     now,
	}
	// 作成者が admin でも担任がいれば担任の所有にする
	if caller.IsAdmin() && class.OwnerID() != "" {
		sess.TeacherID = class.OwnerID()
	}

	for attempt := 0; ; attempt++ {
		if sess.Code, err = s.codes(); err != nil {
			return nil, err
		}
		err = s.store.Create(ctx, sess)
		if errors.Is(err, ErrDuplicateCode) && attempt+1 < maxCodeRetries {
			continue
		}
		break
	}
	switch {
	case errors.Is(err, ErrActiveSessionExists):
		return nil, apierr.Conflict("an active attendance session already exists for this class and subject")
	case errors.Is(err, ErrDuplicateCode):
		return nil, apierr.Internal("could not allocate a unique attendance code")
	case err != nil:
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger.Infof("attendance session %s opened class=%s subject=%s by=%s", sess.ID, class.ID, subject.ID, caller.UserID)
	msg := fmt.Sprintf("Attendance for %s (%s) is open until %s UTC", subject.Name, class.Name, sess.ExpiresAt.UTC().Format("15:04"))
	for _, studentID := range class.StudentIDs {
		s.notifier.Notify(ctx, studentID, msg, "/attendance")
	}

	res := sess.toDTO(now)
	return &res, nil
}

// ensureNoOpenSession: 開いているセッションがあれば Conflict。
// is_active のまま期限切れのものは閉じてから進める
func (s *Service) ensureNoOpenSession(ctx context.Context, classID, subjectID string) error {
	existing, err := s.store.FindActive(ctx, classID, subjectID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find active session: %w", err)
	}
	_, err = s.mutate(ctx, existing.ID, func(sess *Session, now time.Time) ([]Record, error) {
		if sess.IsOpen(now) {
			return nil, apierr.Conflict("an active attendance session already exists for this class and subject")
		}
		sess.IsActive = false
		return nil, nil
	})
	if err != nil {
		return err
	}
	logger.Infof("attendance session %s expired, closed before reopening", existing.ID)
	return nil
}

// POST /attendance/student/submit
func (s *Service) CheckIn(ctx context.Context, caller auth.Caller, rawCode string) (*CheckInResponse, error) {
	if !caller.HasRole(auth.RoleStudent) {
		return nil, apierr.Forbidden("only students can check in")
	}
	code := NormalizeCode(rawCode)
	if code == "" {
		return nil, apierr.Invalid("code is required")
	}
	if !validCode(code) {
		return nil, apierr.InvalidCode("invalid or expired attendance code")
	}

	found, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apierr.InvalidCode("invalid or expired attendance code")
	}
	if err != nil {
		return nil, fmt.Errorf("get session by code: %w", err)
	}
	if !found.IsOpen(s.clock.Now()) {
		return nil, apierr.InvalidCode("invalid or expired attendance code")
	}

	class, subject, err := s.lookup(ctx, found.ClassID, found.SubjectID)
	if err != nil {
		return nil, err
	}
	if !class.HasStudent(caller.UserID) {
		return nil, apierr.Forbidden("you are not enrolled in this class")
	}

	var rec Record
	_, err = s.mutate(ctx, found.ID, func(sess *Session, now time.Time) ([]Record, error) {
		// 再読込の間にコードが更新・締切された場合も無効コード扱い
		if sess.Code != code || !sess.IsOpen(now) {
			return nil, apierr.InvalidCode("invalid or expired attendance code")
		}
		if _, ok := sess.Record(caller.UserID); ok {
			return nil, apierr.Conflict("already checked in")
		}
		rec = Record{StudentID: caller.UserID, Status: sess.statusAt(now), CheckedInAt: now}
		if rec.Status == StatusLate {
			note := lateNote
			rec.Note = &note
		}
		sess.putRecord(rec)
		return []Record{rec}, nil
	})
	if err != nil {
		return nil, err
	}

	msg := "checked in"
	if rec.Status == StatusLate {
		msg = "checked in late"
	}
	return &CheckInResponse{
		Message:     msg,
		Status:      rec.Status,
		CheckedInAt: rec.CheckedInAt.UTC(),
		SubjectName: subject.Name,
		ClassName:   class.Name,
	}, nil
}

// POST /attendance/close/:id
func (s *Service) CloseSession(ctx context.Context, caller auth.Caller, id string) (*SessionResponse, error) {
	if !caller.HasRole(auth.RoleTeacher, auth.RoleAdmin) {
		return nil, apierr.Forbidden("only teachers can close attendance sessions")
	}
	sess, err := s.mutate(ctx, id, func(sess *Session, now time.Time) ([]Record, error) {
		if !caller.CanManage(sess.TeacherID) {
			return nil, apierr.Forbidden("not the owner of this session")
		}
		if !sess.IsOpen(now) {
			return nil, apierr.InvalidState("session is already closed or expired")
		}
		sess.IsActive = false
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("attendance session %s closed by=%s", id, caller.UserID)
	res := sess.toDTO(s.clock.Now())
	return &res, nil
}

// POST /attendance/refresh/:id
func (s *Service) RefreshCode(ctx context.Context, caller auth.Caller, id string) (*SessionResponse, error) {
	sess, err := s.mutate(ctx, id, func(sess *Session, now time.Time) ([]Record, error) {
		if !caller.HasRole(auth.RoleTeacher, auth.RoleAdmin) || !caller.CanManage(sess.TeacherID) {
			return nil, apierr.Forbidden("not the owner of this session")
		}
		if !sess.IsOpen(now) {
			return nil, apierr.InvalidState("session is not active")
		}
		code, err := s.codes()
		if err != nil {
			return nil, err
		}
		sess.Code = code
		sess.ExpiresAt = now.Add(time.Duration(sess.Duration) * time.Minute)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	res := sess.toDTO(s.clock.Now())
	return &res, nil
}

// POST /attendance/mark-manual
func (s *Service) MarkManually(ctx context.Context, caller auth.Caller, req MarkManualRequest) (*MarkManualResponse, error) {
	if !caller.HasRole(auth.RoleTeacher, auth.RoleAdmin) {
		return nil, apierr.Forbidden("not the owner of this session")
	}
	status := req.Status
	if status == "" {
		status = StatusPresent
	}
	if !status.Valid() {
		return nil, apierr.Invalid("status must be present, late or absent")
	}

	found, err := s.load(ctx, req.AttendanceID)
	if err != nil {
		return nil, err
	}
	if !caller.CanManage(found.TeacherID) {
		return nil, apierr.Forbidden("not the owner of this session")
	}
	class, subject, err := s.lookup(ctx, found.ClassID, found.SubjectID)
	if err != nil {
		return nil, err
	}

	var (
		rec     Record
		created bool
	)
	_, err = s.mutate(ctx, found.ID, func(sess *Session, now time.Time) ([]Record, error) {
		if !caller.CanManage(sess.TeacherID) {
			return nil, apierr.Forbidden("not the owner of this session")
		}
		if !sess.IsOpen(now) {
			return nil, apierr.InvalidState("session is closed or expired")
		}
		if !class.HasStudent(req.StudentID) {
			return nil, apierr.Invalid("student is not enrolled in this class")
		}
		rec, created = sess.putRecord(Record{StudentID: req.StudentID, Status: status, CheckedInAt: now})
		return []Record{rec}, nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("attendance session %s: %s marked %s by=%s", found.ID, req.StudentID, status, caller.UserID)
	s.notifier.Notify(ctx, req.StudentID,
		fmt.Sprintf("Your attendance for %s (%s) was marked as %s", subject.Name, class.Name, status), "/attendance/history")

	return &MarkManualResponse{Message: "attendance updated", Created: created, Record: rec.toDTO()}, nil
}

// GET /attendance/details/:id
// 担任以外の teacher も閲覧できる
func (s *Service) GetSessionDetails(ctx context.Context, caller auth.Caller, id string) (*SessionDetails, error) {
	if !caller.HasRole(auth.RoleTeacher, auth.RoleAdmin) {
		return nil, apierr.Forbidden("only teachers and admins can view session details")
	}
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	class, subject, err := s.lookup(ctx, sess.ClassID, sess.SubjectID)
	if err != nil {
		return nil, err
	}
	roster, err := s.dir.Roster(ctx, sess.ClassID)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}

	byID := make(map[string]directory.Member, len(roster))
	for _, m := range roster {
		byID[m.ID] = m
	}
	out := &SessionDetails{
		Session:          sess.toDTO(s.clock.Now()),
		Subject:          Ref{ID: subject.ID, Name: subject.Name, Code: subject.Code},
		Class:            Ref{ID: class.ID, Name: class.Name, Code: class.Code},
		AttendedStudents: make([]AttendedStudent, 0, len(sess.Records)),
		AbsentStudents:   []StudentRef{},
	}
	for _, r := range sess.Records {
		ref := StudentRef{ID: r.StudentID}
		if m, ok := byID[r.StudentID]; ok {
			ref = memberRef(m)
		}
		out.AttendedStudents = append(out.AttendedStudents, AttendedStudent{
			Student:     ref,
			Status:      r.Status,
			CheckedInAt: r.CheckedInAt.UTC(),
			Note:        r.Note,
		})
	}
	for _, m := range roster {
		if _, ok := sess.Record(m.ID); !ok {
			out.AbsentStudents = append(out.AbsentStudents, memberRef(m))
		}
	}
	return out, nil
}

// GET /attendance/class/:classId
func (s *Service) ListClassSessions(ctx context.Context, caller auth.Caller, classID string) ([]SessionResponse, error) {
	class, err := s.dir.GetClass(ctx, classID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, apierr.NotFound("class not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	if !caller.CanManage(class.OwnerID()) {
		return nil, apierr.Forbidden("not the teacher of this class")
	}
	list, err := s.store.ListByClass(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	now := s.clock.Now()
	out := make([]SessionResponse, 0, len(list))
	for i := range list {
		out = append(out, list[i].toDTO(now))
	}
	return out, nil
}

// GET /attendance/stats
func (s *Service) GetStats(ctx context.Context, caller auth.Caller) (*StatsResponse, error) {
	if !caller.HasRole(auth.RoleStudent) {
		return nil, apierr.Forbidden("only students have attendance stats")
	}
	c, err := s.store.CountsForStudent(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &StatsResponse{
		TotalSessions: c.Total,
		Present:       c.Present,
		Late:          c.Late,
		Absent:        c.Absent,
		PresentRate:   presentRate(c),
	}, nil
}

// presentRate: 小数 1 桁。セッション 0 件なら 0
func presentRate(c StudentCounts) float64 {
	if c.Total == 0 {
		return 0
	}
	rate := float64(c.Present+c.Late) / float64(c.Total) * 100
	return math.Round(rate*10) / 10
}

// GET /attendance/history
func (s *Service) GetHistory(ctx context.Context, caller auth.Caller, page, limit int) (*HistoryResponse, error) {
	if !caller.HasRole(auth.RoleStudent) {
		return nil, apierr.Forbidden("only students have attendance history")
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if page < 1 {
		return nil, apierr.Invalid("page must be >= 1")
	}
	if limit < 1 || limit > MaxPageLimit {
		return nil, apierr.Invalid(fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit))
	}

	rows, total, err := s.store.ListForStudent(ctx, caller.UserID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	out := &HistoryResponse{
		History: make([]HistoryEntry, 0, len(rows)),
		Pagination: Pagination{
			Total: total,
			Pages: (total + limit - 1) / limit,
			Page:  page,
			Limit: limit,
		},
	}
	for _, r := range rows {
		out.History = append(out.History, r.toDTO())
	}
	return out, nil
}

// ===== helpers =====

// mutate: セッション行をロックして fn を適用する。fn は最新の状態を受け取る。
// コード衝突（refresh）のときだけ fn をやり直す
func (s *Service) mutate(ctx context.Context, id string, fn func(sess *Session, now time.Time) ([]Record, error)) (*Session, error) {
	for attempt := 1; ; attempt++ {
		sess, err := s.store.Update(ctx, id, func(sess *Session) ([]Record, error) {
			return fn(sess, s.clock.Now())
		})
		var api *apierr.APIError
		switch {
		case err == nil:
			return sess, nil
		case errors.As(err, &api):
			return nil, err
		case errors.Is(err, ErrSessionNotFound):
			return nil, apierr.NotFound("attendance session not found")
		case errors.Is(err, ErrDuplicateCode):
			if attempt >= maxCodeRetries {
				return nil, apierr.Internal("could not allocate a unique attendance code")
			}
		default:
			return nil, fmt.Errorf("update session %s: %w", id, err)
		}
	}
}

func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apierr.NotFound("attendance session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

func (s *Service) lookup(ctx context.Context, classID, subjectID string) (*directory.Class, *directory.Subject, error) {
	class, err := s.dir.GetClass(ctx, classID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil, apierr.NotFound("class not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get class: %w", err)
	}
	subject, err := s.dir.GetSubject(ctx, subjectID)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, nil, apierr.NotFound("subject not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get subject: %w", err)
	}
	return class, subject, nil
}

func memberRef(m directory.Member) StudentRef {
	return StudentRef{ID: m.ID, Name: m.Name, Email: m.Email, StudentCode: m.StudentCode}
}
