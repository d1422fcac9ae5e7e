package bunexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open opens dsn with driver and wraps it in a bun.DB using the matching dialect.
func Open(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite serializes writers; a single connection also keeps in-memory
		// databases alive and shared
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

// LogHook is a bun.QueryHook writing executed statements to a logrus logger at
// debug level, and failures at warn level.
type LogHook struct {
	Logger logrus.FieldLogger
}

var _ bun.QueryHook = (*LogHook)(nil)

// NewLogHook creates a LogHook.
func NewLogHook(logger logrus.FieldLogger) *LogHook {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogHook{Logger: logger}
}

// BeforeQuery implements bun.QueryHook.
func (h *LogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements bun.QueryHook.
func (h *LogHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	entry := h.Logger.WithFields(logrus.Fields{
		"query":    event.Query,
		"duration": time.Since(event.StartTime),
	})
	if event.Err != nil && event.Err != sql.ErrNoRows {
		entry.WithError(event.Err).Warn("query failed")
		return
	}
	entry.Debug("query executed")
}
