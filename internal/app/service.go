package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/metrics"
	"github.com/shrimpsizemoose/yogaroll/internal/models"
	"github.com/shrimpsizemoose/yogaroll/internal/store"
)

// Source labels where a mark came from in metrics.
type Source string

const (
	SourceWeb    Source = "web"
	SourceBot    Source = "bot"
	SourceDirect Source = "direct"
)

type Service struct {
	Config *Config
	Store  store.AttendanceStore
	Now    func() time.Time

	ensureOnWrite bool
}

type Roster struct {
	Students        []models.Student `json:"students"`
	RegisteredToday int              `json:"registered_today"`
}

// NewService loads the config, connects the store and ensures the schema.
// Errors are *StartupError.
func NewService(ctx context.Context, configPath string) (*Service, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, &StartupError{Stage: "config", Err: err}
	}

	st, err := OpenStore(ctx, config.Database.DSN)
	if err != nil {
		return nil, err
	}

	return NewServiceWithStore(config, st), nil
}

func NewServiceWithStore(config *Config, st store.AttendanceStore) *Service {
	return &Service{
		Config:        config,
		Store:         st,
		Now:           time.Now,
		ensureOnWrite: config.EnsureSchemaOnWrite(),
	}
}

// Today is the current calendar date at the studio.
func (s *Service) Today() time.Time {
	return models.Day(s.Now().In(s.Config.Location()))
}

func (s *Service) beforeWrite(ctx context.Context) error {
	if !s.ensureOnWrite {
		return nil
	}
	return s.Store.EnsureSchema(ctx)
}

func (s *Service) RegisterStudent(ctx context.Context, firstName, lastName, phone string) (int64, error) {
	student := models.NewStudent(firstName, lastName, phone)
	if err := student.Validate(); err != nil {
		return 0, newValidationError(err)
	}
	student.RegisteredOn = s.Today()

	if err := s.beforeWrite(ctx); err != nil {
		return 0, s.storeFailure(err)
	}

	id, err := s.Store.CreateStudent(ctx, student)
	if err != nil {
		return 0, s.storeFailure(err)
	}

	metrics.StudentsRegisteredTotal.Inc()
	logger.Info.Printf("Registered student %d: %s", id, student.FullName())
	return id, nil
}

func (s *Service) ListStudents(ctx context.Context) ([]models.Student, error) {
	students, err := s.Store.ListStudents(ctx)
	if err != nil {
		return nil, s.storeFailure(err)
	}
	return students, nil
}

// RosterSummary is the roster plus how many of those students signed up today.
func (s *Service) RosterSummary(ctx context.Context) (*Roster, error) {
	students, err := s.ListStudents(ctx)
	if err != nil {
		return nil, err
	}

	today := models.FormatDay(s.Today())
	roster := &Roster{Students: students}
	for _, st := range students {
		if models.FormatDay(st.RegisteredOn) == today {
			roster.RegisteredToday++
		}
	}
	return roster, nil
}

func (s *Service) ListTodayAttendance(ctx context.Context) ([]models.RosterEntry, error) {
	return s.DailyReport(ctx, s.Today())
}

func (s *Service) DailyReport(ctx context.Context, day time.Time) ([]models.RosterEntry, error) {
	entries, err := s.Store.DailyReport(ctx, models.Day(day))
	if err != nil {
		return nil, s.storeFailure(err)
	}
	return entries, nil
}

func (s *Service) SetAttendance(ctx context.Context, studentID int64, day time.Time, present bool) error {
	return s.setAttendance(ctx, studentID, day, present, SourceDirect)
}

// SetAttendanceFrom is SetAttendance with the calling front-end recorded in metrics.
func (s *Service) SetAttendanceFrom(ctx context.Context, source Source, studentID int64, day time.Time, present bool) error {
	return s.setAttendance(ctx, studentID, day, present, source)
}

func (s *Service) setAttendance(ctx context.Context, studentID int64, day time.Time, present bool, source Source) error {
	if err := s.beforeWrite(ctx); err != nil {
		return s.storeFailure(err)
	}

	mark := models.AttendanceMark{
		StudentID: studentID,
		ClassDate: models.Day(day),
		Present:   present,
	}
	if err := s.Store.UpsertMark(ctx, mark); err != nil {
		return s.storeFailure(err)
	}

	status := models.StatusAbsent
	if present {
		status = models.StatusPresent
	}
	metrics.AttendanceMarksTotal.WithLabelValues(string(status), string(source)).Inc()
	logger.Debug.Printf("Marked student %d %s on %s", studentID, status, models.FormatDay(mark.ClassDate))
	return nil
}

// ToggleToday flips today's mark for a student: unmarked and absent become present, present becomes absent.
func (s *Service) ToggleToday(ctx context.Context, source Source, studentID int64) (models.Status, error) {
	today := s.Today()

	mark, err := s.Store.GetMark(ctx, studentID, today)
	if err != nil {
		return "", s.storeFailure(err)
	}

	next := models.MarkStatus(mark).Toggled()
	if err := s.setAttendance(ctx, studentID, today, next == models.StatusPresent, source); err != nil {
		return "", err
	}
	return next, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.Store.Ping(ctx)
}

func (s *Service) storeFailure(err error) error {
	var storageErr *store.StorageError
	if errors.As(err, &storageErr) {
		metrics.StoreErrorsTotal.WithLabelValues(storageErr.Op).Inc()
		logger.Error.Printf("Store failure: %v", err)
		return err
	}
	return fmt.Errorf("store: %w", err)
}

func (s *Service) Close() error {
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
