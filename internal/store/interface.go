package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

type AttendanceStore interface {
	Close() error
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	CreateStudent(ctx context.Context, student *models.Student) (int64, error)
	ListStudents(ctx context.Context) ([]models.Student, error)

	UpsertMark(ctx context.Context, mark models.AttendanceMark) error
	GetMark(ctx context.Context, studentID int64, day time.Time) (*models.AttendanceMark, error)
	DailyReport(ctx context.Context, day time.Time) ([]models.RosterEntry, error)
}

// BaseStore provides common functionality for different DB implementations.
// Every operation checks out its own connection from the pool and returns it before exiting.
type BaseStore struct {
	DB           *sqlx.DB
	Converter    func(string) string
	TranslateSQL func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *BaseStore) Ping(ctx context.Context) error {
	return s.withConn(ctx, "ping", func(conn *sqlx.Conn) error {
		return conn.PingContext(ctx)
	})
}

func (s *BaseStore) withConn(ctx context.Context, op string, fn func(conn *sqlx.Conn) error) error {
	conn, err := s.DB.Connx(ctx)
	if err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("failed to acquire connection: %w", err)}
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

// EnsureSchema creates the tables if they are missing. Safe to call any number of times.
func (s *BaseStore) EnsureSchema(ctx context.Context) error {
	return s.ApplyMigrations(ctx, migrations, "migrations")
}

// ApplyMigrations runs every .sql file under dir in name order, translating dialect if needed
func (s *BaseStore) ApplyMigrations(ctx context.Context, fsys fs.FS, dir string) error {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	return s.withConn(ctx, "ensure schema", func(conn *sqlx.Conn) error {
		for _, file := range files {
			if !strings.HasSuffix(file.Name(), ".sql") {
				continue
			}

			content, err := fs.ReadFile(fsys, dir+"/"+file.Name())
			if err != nil {
				return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
			}

			sql := string(content)
			if s.TranslateSQL != nil {
				sql = s.TranslateSQL(sql)
			}

			logger.Debug.Printf("Applying migration: %s", file.Name())
			if _, err := conn.ExecContext(ctx, sql); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
			}
		}
		return nil
	})
}

func (s *BaseStore) CreateStudent(ctx context.Context, student *models.Student) (int64, error) {
	query := s.Converter(`
		INSERT INTO students (first_name, last_name, phone, registered_on)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)

	var id int64
	err := s.withConn(ctx, "create student", func(conn *sqlx.Conn) error {
		return conn.GetContext(ctx, &id, query,
			student.FirstName,
			student.LastName,
			student.Phone,
			models.FormatDay(student.RegisteredOn),
		)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *BaseStore) ListStudents(ctx context.Context) ([]models.Student, error) {
	students := []models.Student{}
	err := s.withConn(ctx, "list students", func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, &students, `
			SELECT id, first_name, last_name, phone, registered_on
			FROM students
			ORDER BY last_name, first_name, id
		`)
	})
	if err != nil {
		return nil, err
	}
	return students, nil
}

func (s *BaseStore) UpsertMark(ctx context.Context, mark models.AttendanceMark) error {
	query := s.Converter(`
		INSERT INTO attendance_marks (student_id, class_date, present)
		VALUES (?, ?, ?)
		ON CONFLICT (student_id, class_date) DO UPDATE SET
		present = excluded.present
	`)

	return s.withConn(ctx, "upsert mark", func(conn *sqlx.Conn) error {
		_, err := conn.ExecContext(ctx, query, mark.StudentID, models.FormatDay(mark.ClassDate), mark.Present)
		return err
	})
}

func (s *BaseStore) GetMark(ctx context.Context, studentID int64, day time.Time) (*models.AttendanceMark, error) {
	query := s.Converter(`
		SELECT student_id, class_date, present
		FROM attendance_marks
		WHERE student_id = ?
		AND class_date = ?
	`)

	var mark models.AttendanceMark
	found := true
	err := s.withConn(ctx, "get mark", func(conn *sqlx.Conn) error {
		err := conn.GetContext(ctx, &mark, query, studentID, models.FormatDay(day))
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &mark, nil
}

type reportRow struct {
	models.Student
	Present sql.NullBool `db:"present"`
}

// DailyReport lists every student exactly once with their status on day.
func (s *BaseStore) DailyReport(ctx context.Context, day time.Time) ([]models.RosterEntry, error) {
	query := s.Converter(`
		SELECT
			s.id,
			s.first_name,
			s.last_name,
			s.phone,
			s.registered_on,
			am.present
		FROM students s
		LEFT JOIN attendance_marks am
			ON am.student_id = s.id
			AND am.class_date = ?
		ORDER BY s.last_name, s.first_name, s.id
	`)

	var rows []reportRow
	err := s.withConn(ctx, "daily report", func(conn *sqlx.Conn) error {
		return conn.SelectContext(ctx, &rows, query, models.FormatDay(day))
	})
	if err != nil {
		return nil, err
	}

	entries := make([]models.RosterEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, models.RosterEntry{
			Student: r.Student,
			Status:  models.StatusFromMark(r.Present),
		})
	}
	return entries, nil
}
