package directory

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

func TestUndoOwnerCreateWithHouses(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(40, 1, "Kim", "owner", 2, "create", "Owner created", "null", `{"id":2}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "houses"`).WillReturnRows(countRow(1))
	mock.ExpectRollback()

	var fe *fiber.Error
	require.True(t, errors.As(audit.UndoLog(40, 2, "Ari"), &fe))
	assert.Equal(t, fiber.StatusConflict, fe.Code)
	assert.Equal(t, "owner still owns 1 house(s)", fe.Message)
}

func TestUndoPlanManagerCreateWithResidents(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(41, 1, "Kim", "plan_manager", 4, "create", "Plan manager created", "null", `{"id":4}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(3))
	mock.ExpectRollback()

	var fe *fiber.Error
	require.True(t, errors.As(audit.UndoLog(41, 2, "Ari"), &fe))
	assert.Equal(t, fiber.StatusConflict, fe.Code)
}

func TestUndoUnusedPlanManagerCreate(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "audit_logs"`).
		WillReturnRows(sqlmock.NewRows(logCols).AddRow(42, 1, "Kim", "plan_manager", 4, "create", "Plan manager created", "null", `{"id":4}`, false))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "residents"`).WillReturnRows(countRow(0))
	mock.ExpectExec(`DELETE FROM "plan_managers"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "audit_logs"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(43))
	mock.ExpectCommit()

	require.NoError(t, audit.UndoLog(42, 2, "Ari"))
}
