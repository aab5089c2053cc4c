package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"campus-backend/internal/platform/auth"
	"campus-backend/internal/platform/db"
	"campus-backend/internal/platform/ids"
	"campus-backend/internal/platform/logger"
)

type SeedUser struct {
	Name        string    `yaml:"name"`
	Email       string    `yaml:"email"`
	Password    string    `yaml:"password"`
	Role        auth.Role `yaml:"role"`
	StudentCode string    `yaml:"student_code"`
}

type SeedSubject struct {
	Name    string `yaml:"name"`
	Code    string `yaml:"code"`
	Credits int    `yaml:"credits"`
}

type SeedClass struct {
	Name        string   `yaml:"name"`
	Code        string   `yaml:"code"`
	Description string   `yaml:"description"`
	Teacher     string   `yaml:"teacher"`  // email
	Students    []string `yaml:"students"` // email
	Subjects    []string `yaml:"subjects"` // subject code
}

type SeedFile struct {
	Users    []SeedUser    `yaml:"users"`
	Subjects []SeedSubject `yaml:"subjects"`
	Classes  []SeedClass   `yaml:"classes"`
}

// UserEnsurer: email で冪等にユーザを用意する（auth.Service）
type UserEnsurer interface {
	EnsureUser(ctx context.Context, req auth.SignupRequest, role auth.Role) (*auth.User, error)
}

func LoadSeed(path string) (*SeedFile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(buf, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate: 参照整合性（email / 科目コード / ロール）
func (f *SeedFile) Validate() error {
	roles := map[string]auth.Role{}
	for i, u := range f.Users {
		if u.Name == "" || u.Email == "" || u.Password == "" {
			return fmt.Errorf("users[%d]: name, email and password are required", i)
		}
		if !u.Role.Valid() {
			return fmt.Errorf("users[%d]: invalid role %q", i, u.Role)
		}
		roles[strings.ToLower(u.Email)] = u.Role
	}
	codes := map[string]bool{}
	for i, s := range f.Subjects {
		if s.Name == "" || s.Code == "" {
			return fmt.Errorf("subjects[%d]: name and code are required", i)
		}
		codes[s.Code] = true
	}
	for i, c := range f.Classes {
		if c.Name == "" {
			return fmt.Errorf("classes[%d]: name is required", i)
		}
		if c.Teacher != "" && roles[strings.ToLower(c.Teacher)] != auth.RoleTeacher {
			return fmt.Errorf("classes[%d]: teacher %q is not a seeded teacher", i, c.Teacher)
		}
		for _, e := range c.Students {
			if roles[strings.ToLower(e)] != auth.RoleStudent {
				return fmt.Errorf("classes[%d]: student %q is not a seeded student", i, e)
			}
		}
		for _, code := range c.Subjects {
			if !codes[code] {
				return fmt.Errorf("classes[%d]: unknown subject %q", i, code)
			}
		}
	}
	return nil
}

// Seed: 何度流しても同じ状態になる（email / 科目コード / クラス名で突合）
func Seed(ctx context.Context, conn *sql.DB, f *SeedFile, users UserEnsurer) error {
	userIDs := map[string]string{}
	for _, u := range f.Users {
		req := auth.SignupRequest{Name: u.Name, Email: u.Email, Password: u.Password}
		if u.StudentCode != "" {
			sc := u.StudentCode
			req.StudentCode = &sc
		}
		created, err := users.EnsureUser(ctx, req, u.Role)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		userIDs[strings.ToLower(u.Email)] = created.ID
	}

	gen := ids.NewULIDGen()
	return db.RunInTx(ctx, conn, nil, func(ctx context.Context, tx db.DBTX) error {
		subjectIDs := map[string]string{}
		for _, s := range f.Subjects {
			id, err := ensureRow(ctx, tx, gen, `SELECT id FROM subjects WHERE code = ?`, s.Code,
				`INSERT INTO subjects (id, name, code, credits) VALUES (?, ?, ?, ?)`, s.Name, s.Code, s.Credits)
			if err != nil {
				return fmt.Errorf("seed subject %s: %w", s.Code, err)
			}
			subjectIDs[s.Code] = id
		}

		for _, c := range f.Classes {
			var teacher any
			if c.Teacher != "" {
				teacher = userIDs[strings.ToLower(c.Teacher)]
			}
			var desc any
			if c.Description != "" {
				desc = c.Description
			}
			id, err := ensureRow(ctx, tx, gen, `SELECT id FROM classes WHERE name = ?`, c.Name,
				`INSERT INTO classes (id, name, code, description, teacher_id) VALUES (?, ?, ?, ?, ?)`, c.Name, c.Code, desc, teacher)
			if err != nil {
				return fmt.Errorf("seed class %s: %w", c.Name, err)
			}
			for _, e := range c.Students {
				if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO class_students (class_id, student_id) VALUES (?, ?)`,
					id, userIDs[strings.ToLower(e)]); err != nil {
					return err
				}
			}
			for _, code := range c.Subjects {
				if _, err := tx.ExecContext(ctx, `INSERT IGNORE INTO class_subjects (class_id, subject_id) VALUES (?, ?)`,
					id, subjectIDs[code]); err != nil {
					return err
				}
			}
		}
		logger.Infof("seeded %d users, %d subjects, %d classes", len(f.Users), len(f.Subjects), len(f.Classes))
		return nil
	})
}

// ensureRow: lookup で見つかればその id、無ければ新しい id で insert（insertArgs の先頭に id を足す）
func ensureRow(ctx context.Context, tx db.DBTX, gen ids.IDGen, lookup string, key any, insert string, insertArgs ...any) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, lookup, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if id, err = gen.New(); err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, insert, append([]any{id}, insertArgs...)...); err != nil {
		return "", err
	}
	return id, nil
}
