// internal/store/sqlite/store_test.go
package sqlite

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrimpsizemoose/yogaroll/internal/models"
	"github.com/shrimpsizemoose/yogaroll/internal/store"
)

// setupTestDB creates an in-memory SQLite database and initializes schema
func setupTestDB(t *testing.T) (*SQLiteStore, func()) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err, "Failed to create store")

	err = s.EnsureSchema(context.Background())
	require.NoError(t, err, "Failed to create schema")

	cleanup := func() {
		err := s.Close()
		require.NoError(t, err, "Failed to close database")
	}

	return s, cleanup
}

type testData struct {
	store *SQLiteStore
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

func countMarks(t *testing.T, s *SQLiteStore, studentID int64, day time.Time) int {
	var n int
	err := s.DB.Get(&n, `SELECT COUNT(*) FROM attendance_marks WHERE student_id = ? AND class_date = ?`,
		studentID, models.FormatDay(day))
	require.NoError(t, err)
	return n
}

func TestMain(m *testing.M) {
	log.Println("Starting SQLite store tests...")
	code := m.Run()
	log.Println("Finished SQLite store tests")
	os.Exit(code)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	require.NoError(t, s.EnsureSchema(context.Background()))
	require.NoError(t, s.EnsureSchema(context.Background()))

	var tables int
	err := s.DB.Get(&tables, `
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name IN ('students', 'attendance_marks')
	`)
	require.NoError(t, err)
	assert.Equal(t, 2, tables)
}

func TestTranslateToSQLite(t *testing.T) {
	got := translateToSQLite("id SERIAL PRIMARY KEY, name VARCHAR(100) NOT NULL, present BOOLEAN NOT NULL DEFAULT FALSE")
	assert.Equal(t, "id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, present BOOLEAN NOT NULL DEFAULT 0", got)
}

func TestWithForeignKeys(t *testing.T) {
	assert.Equal(t, ":memory:?_foreign_keys=on", withForeignKeys(":memory:"))
	assert.Equal(t, "file:yoga.db?cache=shared&_foreign_keys=on", withForeignKeys("file:yoga.db?cache=shared"))
	assert.Equal(t, "yoga.db?_fk=1", withForeignKeys("yoga.db?_fk=1"))
}

func TestCreateAndListStudents(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	t.Run("sorted by last name", func(t *testing.T) {
		students, err := td.store.ListStudents(td.ctx)
		require.NoError(t, err)
		require.Len(t, students, 2)
		assert.Equal(t, "Alvarez", students[0].LastName)
		assert.Equal(t, "Gómez", students[1].LastName)
		assert.Equal(t, td.beto, students[0].ID)
	})

	t.Run("phone and registration date", func(t *testing.T) {
		phone := "555-0101"
		id, err := td.store.CreateStudent(td.ctx, &models.Student{
			FirstName:    "Carla",
			LastName:     "Zapata",
			Phone:        &phone,
			RegisteredOn: td.today,
		})
		require.NoError(t, err)

		students, err := td.store.ListStudents(td.ctx)
		require.NoError(t, err)
		require.Len(t, students, 3)

		got := students[2]
		assert.Equal(t, id, got.ID)
		require.NotNil(t, got.Phone)
		assert.Equal(t, phone, *got.Phone)
		assert.Equal(t, "2024-01-15", models.FormatDay(got.RegisteredOn))
		assert.Nil(t, students[0].Phone)
	})

	t.Run("first name breaks ties", func(t *testing.T) {
		_, err := td.store.CreateStudent(td.ctx, &models.Student{FirstName: "Aaron", LastName: "Alvarez", RegisteredOn: td.today})
		require.NoError(t, err)

		students, err := td.store.ListStudents(td.ctx)
		require.NoError(t, err)
		assert.Equal(t, "Aaron", students[0].FirstName)
		assert.Equal(t, "Beto", students[1].FirstName)
	})
}

func TestListStudentsEmpty(t *testing.T) {
	s, cleanup := setupTestDB(t)
	defer cleanup()

	students, err := s.ListStudents(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, students)
	assert.Empty(t, students)
}

func TestUpsertMark(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	t.Run("second write replaces the first", func(t *testing.T) {
		err := td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: td.ana, ClassDate: td.today, Present: true})
		require.NoError(t, err)
		err = td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: td.ana, ClassDate: td.today, Present: false})
		require.NoError(t, err)

		assert.Equal(t, 1, countMarks(t, td.store, td.ana, td.today))

		mark, err := td.store.GetMark(td.ctx, td.ana, td.today)
		require.NoError(t, err)
		require.NotNil(t, mark)
		assert.False(t, mark.Present)
		assert.Equal(t, "2024-01-15", models.FormatDay(mark.ClassDate))
	})

	t.Run("other days are separate rows", func(t *testing.T) {
		tomorrow := td.today.AddDate(0, 0, 1)
		err := td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: td.ana, ClassDate: tomorrow, Present: true})
		require.NoError(t, err)

		assert.Equal(t, 1, countMarks(t, td.store, td.ana, td.today))
		assert.Equal(t, 1, countMarks(t, td.store, td.ana, tomorrow))
	})

	t.Run("missing mark", func(t *testing.T) {
		mark, err := td.store.GetMark(td.ctx, td.beto, td.today)
		require.NoError(t, err)
		assert.Nil(t, mark)
	})

	t.Run("unknown student", func(t *testing.T) {
		err := td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: 9999, ClassDate: td.today, Present: true})
		require.Error(t, err)

		var storageErr *store.StorageError
		require.True(t, errors.As(err, &storageErr))
		assert.Equal(t, "upsert mark", storageErr.Op)
	})
}

func TestConcurrentUpsertKeepsOneRow(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(present bool) {
			defer wg.Done()
			err := td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: td.beto, ClassDate: td.today, Present: present})
			assert.NoError(t, err)
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, countMarks(t, td.store, td.beto, td.today))
}

func TestDailyReport(t *testing.T) {
	td, cleanup := setupTestData(t)
	defer cleanup()

	t.Run("nobody marked", func(t *testing.T) {
		report, err := td.store.DailyReport(td.ctx, td.today)
		require.NoError(t, err)
		require.Len(t, report, 2)
		for _, row := range report {
			assert.Equal(t, models.StatusUnmarked, row.Status)
		}
	})

	t.Run("present, absent and unmarked stay distinct", func(t *testing.T) {
		carla, err := td.store.CreateStudent(td.ctx, &models.Student{FirstName: "Carla", LastName: "Zapata", RegisteredOn: td.today})
		require.NoError(t, err)

		require.NoError(t, td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: td.ana, ClassDate: td.today, Present: true}))
		require.NoError(t, td.store.UpsertMark(td.ctx, models.AttendanceMark{StudentID: carla, ClassDate: td.today, Present: false}))

		report, err := td.store.DailyReport(td.ctx, td.today)
		require.NoError(t, err)
		require.Len(t, report, 3)

		assert.Equal(t, "Alvarez", report[0].Student.LastName)
		assert.Equal(t, models.StatusUnmarked, report[0].Status)
		assert.Equal(t, "Gómez", report[1].Student.LastName)
		assert.Equal(t, models.StatusPresent, report[1].Status)
		assert.Equal(t, "Zapata", report[2].Student.LastName)
		assert.Equal(t, models.StatusAbsent, report[2].Status)
	})

	t.Run("marks on other days do not leak", func(t *testing.T) {
		report, err := td.store.DailyReport(td.ctx, td.today.AddDate(0, 0, -1))
		require.NoError(t, err)
		require.Len(t, report, 3)
		for _, row := range report {
			assert.Equal(t, models.StatusUnmarked, row.Status)
		}
	})
}

func TestClosedStoreReturnsStorageError(t *testing.T) {
	s, cleanup := setupTestDB(t)
	cleanup()

	_, err := s.ListStudents(context.Background())
	var storageErr *store.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "list students", storageErr.Op)
}
