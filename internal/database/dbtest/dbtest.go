// Package dbtest swaps database.DB for a sqlmock-backed gorm handle.
package dbtest

import (
	"testing"

	"housing-backend/internal/database"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New installs a mocked database for the duration of the test. Expectations
// use regular expressions and are checked on cleanup.
func New(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		require.NoError(t, mock.ExpectationsWereMet())
		_ = sqlDB.Close()
	})
	return mock
}

// IDRow is the RETURNING "id" result of an INSERT.
func IDRow(id uint) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"}).AddRow(id)
}
