package houses

import (
	"errors"
	"testing"

	"housing-backend/internal/audit"
	"housing-backend/internal/database/dbtest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logCols = []string{"id", "user_id", "user_name", "entity_type", "entity_id", "action", "description", "before_data", "after_data", "is_undone"}

func undoConflict(t *testing.T, err error) string {
	t.Helper()
	var fe *fiber.Error
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, fiber.StatusConflict, fe.Code)
	return fe.Message
}

func TestUndoCreateKeepsOccupiedHouse(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(30, 1, "Kim", "house", 3, "create", "House created", "null", `{"id":3}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(2))
	mock.ExpectRollback()

	msg := undoConflict(t, audit.UndoLog(30, 2, "Ari"))
	assert.Equal(t, "house still has active residents", msg)
}

func TestUndoCreateDeletesEmptyHouse(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(31, 1, "Kim", "house", 3, "create", "House created", "null", `{"id":3}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(0))
	mock.ExpectExec(`DELETE FROM "houses"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "audit_logs"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(32))
	mock.ExpectCommit()

	require.NoError(t, audit.UndoLog(31, 2, "Ari"))
}

func TestUndoUpdateRefusesCapacityBelowOccupancy(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(33, 1, "Kim", "house", 3, "update", "House updated",
			`{"id":3,"name":"Banksia","capacity":2,"status":"active"}`, `{"id":3,"name":"Banksia","capacity":4,"status":"active"}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(3))
	mock.ExpectRollback()

	msg := undoConflict(t, audit.UndoLog(33, 2, "Ari"))
	assert.Equal(t, "previous capacity 2 is below current occupancy (3)", msg)
}

func TestUndoUpdateRefusesClosingOccupiedHouse(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(34, 1, "Kim", "house", 3, "update", "House updated",
			`{"id":3,"name":"Banksia","capacity":4,"status":"inactive"}`, `{"id":3,"name":"Banksia","capacity":4,"status":"active"}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(1))
	mock.ExpectRollback()

	undoConflict(t, audit.UndoLog(34, 2, "Ari"))
}
