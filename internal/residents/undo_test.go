package residents

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

func requireStatus(t *testing.T, err error, code int) {
	t.Helper()
	var fe *fiber.Error
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, code, fe.Code)
}

func TestUndoExitRefusedWhenHouseFull(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(20, 1, "Kim", "resident", 7, "update", "Resident updated",
			`{"id":7,"house_id":3,"status":"active"}`, `{"id":7,"house_id":3,"status":"exited"}`, false))
	mock.ExpectQuery(`SELECT \* FROM "houses"`).
		WillReturnRows(sqlmock.NewRows(houseCols).AddRow(3, "Banksia", 2, "active"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(2))
	mock.ExpectRollback()

	err := audit.UndoLog(20, 2, "Ari")
	requireStatus(t, err, fiber.StatusConflict)
	assert.Contains(t, err.Error(), "is full")
}

func TestUndoExitRestoresWhenRoomLeft(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(21, 1, "Kim", "resident", 7, "update", "Resident updated",
			`{"id":7,"house_id":3,"status":"active"}`, `{"id":7,"house_id":3,"status":"exited"}`, false))
	mock.ExpectQuery(`SELECT \* FROM "houses"`).
		WillReturnRows(sqlmock.NewRows(houseCols).AddRow(3, "Banksia", 2, "active"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(1))
	mock.ExpectExec(`UPDATE "residents"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "audit_logs"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(22))
	mock.ExpectCommit()

	require.NoError(t, audit.UndoLog(21, 2, "Ari"))
}

func TestUndoDeleteRecreatesActiveResidentOnlyWithRoom(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(23, 1, "Kim", "resident", 7, "delete", "Resident deleted",
			`{"id":7,"house_id":3,"status":"active"}`, "null", false))
	mock.ExpectQuery(`SELECT \* FROM "houses"`).
		WillReturnRows(sqlmock.NewRows(houseCols).AddRow(3, "Banksia", 1, "active"))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(1))
	mock.ExpectRollback()

	requireStatus(t, audit.UndoLog(23, 2, "Ari"), fiber.StatusConflict)
}

func TestUndoExitedResidentSkipsCapacity(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(24, 1, "Kim", "resident", 7, "update", "Resident updated",
			`{"id":7,"house_id":3,"status":"exited"}`, `{"id":7,"house_id":3,"status":"exited","room":"2"}`, false))
	mock.ExpectExec(`UPDATE "residents"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "audit_logs"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(25))
	mock.ExpectCommit()

	require.NoError(t, audit.UndoLog(24, 2, "Ari"))
}

func TestUndoCreateResidentWithContracts(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(26, 1, "Kim", "resident", 7, "create", "Resident created",
			"null", `{"id":7}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "funding_contracts"`).WillReturnRows(countRow(1))
	mock.ExpectRollback()

	requireStatus(t, audit.UndoLog(26, 2, "Ari"), fiber.StatusConflict)
}
