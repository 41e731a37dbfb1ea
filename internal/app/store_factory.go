package app

import (
	"context"
	"fmt"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/store"
	"github.com/shrimpsizemoose/yogaroll/internal/store/postgres"
	"github.com/shrimpsizemoose/yogaroll/internal/store/sqlite"
)

func NewStore(dsn string) (store.AttendanceStore, error) {
	switch dbType := store.DetectType(dsn); dbType {
	case store.DBTypePostgres:
		return postgres.NewPostgresStore(dsn)
	case store.DBTypeSQLite:
		return sqlite.NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", dsn)
	}
}

// OpenStore connects and makes sure the schema exists; both failures are fatal at startup.
func OpenStore(ctx context.Context, dsn string) (store.AttendanceStore, error) {
	s, err := NewStore(dsn)
	if err != nil {
		return nil, &StartupError{Stage: "connect", Err: err}
	}

	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, &StartupError{Stage: "schema", Err: err}
	}

	logger.Info.Printf("Connected to %s store", store.DetectType(dsn))
	return s, nil
}
