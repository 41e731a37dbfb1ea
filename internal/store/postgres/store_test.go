package postgres

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shrimpsizemoose/yogaroll/internal/models"
	"github.com/shrimpsizemoose/yogaroll/internal/store"
)

// setupTestDB starts a throwaway Postgres container and initializes schema
func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	postgres, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_DB":       "testdb",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	dsn, err := postgres.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgresStore(dsn)
	require.NoError(t, err, "Failed to create store")

	err = s.EnsureSchema(ctx)
	require.NoError(t, err, "Failed to create schema")

	cleanup := func() {
		s.Close()
		postgres.Terminate(ctx)
	}

	return s, cleanup
}

type testData struct {
	store *PostgresStore
	ctx   context.Context
	today time.Time
	ana   int64
	beto  int64
}

func setupTestData(t *testing.T) (*testData, func()) {
	s, cleanup := setupTestDB(t)
	ctx := context.Background()
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	ana, err := s.CreateStudent(ctx, &models.Student{FirstName: "Ana", LastName: "Gómez", RegisteredOn: today})
	require.NoError(t, err, "Failed to insert test data")
	beto, err := s.CreateStudent(ctx, &models.Student{FirstName: "Beto", LastName: "Alvarez", RegisteredOn: today})
	require.NoError(t, err, "Failed to insert test data")

	return &testData{
		store: s,
		ctx:   ctx,
		today: today,
		ana:   ana,
		beto:  beto,
	}, cleanup
}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		log.Println("Skipping Postgres integration tests. Use -short=false to run them.")
		os.Exit(0)
	}
	log.Println("Starting Postgres store tests...")
	code := m.Run()
	log.Println("Finished Postgres store tests")
	os.Exit(code)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, s.EnsureSchema(context.Background()))

	var tables int
	err := s.DB.Get(&tables, `
		SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name IN ('students', 'attendance_marks')
	`)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)
}

func TestStudentsAndMarks(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	t.Run("roster is sorted by last name", func(t *testing.T) {
		students, err := td.store.ListStudents(td.ctx)
		require.NoError(t, err)
		require.Len(t, students, 2)
		assert.Equal(t, "Alvarez", students[0].LastName)
		assert.Equal(t, "Gómez", students[1].LastName)
		assert.Equal(t, "2024-01-15", models.FormatDay(students[0].RegisteredOn))
	})

	t.Run("upsert keeps one row per day", func(t *testing.T) {
		require.NoError(t, td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: td.ana, ClassDate: td.today, Present: true}))
		require.NoError(t, td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: td.ana, ClassDate: td.today, Present: false}))

		var n int
		err := td.store.DB.Get(&n, `SELECT COUNT(*) FROM attendance_marks WHERE student_id = $1 AND class_date = $2`,
			td.ana, models.FormatDay(td.today))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		mark, err := td.store.GetMark(td.ctx, td.ana, td.today)
		require.NoError(t, err)
		require.NotNil(t, mark)
		assert.False(t, mark.Present)
	})

	t.Run("report separates absent from unmarked", func(t *testing.T) {
		report, err := td.store.DailyReport(td.ctx, td.today)
		require.NoError(t, err)
		require.Len(t, report, 2)
		assert.Equal(t, td.beto, report[0].Student.ID)
		assert.Equal(t, models.StatusUnmarked, report[0].Status)
		assert.Equal(t, td.ana, report[1].Student.ID)
		assert.Equal(t, models.StatusAbsent, report[1].Status)
	})

	t.Run("unknown student", func(t *testing.T) {
		err := td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: 9999, ClassDate: td.today, Present: true})
		var storageErr *store.StorageError
		require.True(t, errors.As(err, &storageErr))
	})
}
