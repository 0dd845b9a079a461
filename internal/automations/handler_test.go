package automations

import (
	"testing"
	"time"

	"housing-backend/internal/apitest"
	"housing-backend/internal/database"
	"housing-backend/internal/database/dbtest"
	"housing-backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func automationRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "type", "is_enabled", "frequency", "time_of_day", "timezone"}).
		AddRow(3, "Daily support", "recurring_transaction", true, "daily", "09:00", "UTC")
}

func TestCreateAutomationNeedsWeekday(t *testing.T) {
	dbtest.New(t)
	app := apitest.NewApp(apitest.Admin)
	app.Post("/automations", CreateAutomationHandler())

	status, env := apitest.Do(t, app, apitest.JSON("POST", "/automations",
		`{"name":"Weekly billing","type":"contract_billing","frequency":"weekly"}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "day_of_week", env.Details[0].Field)
}

func TestCreateRecurringNeedsContract(t *testing.T) {
	dbtest.New(t)
	app := apitest.NewApp(apitest.Admin)
	app.Post("/automations", CreateAutomationHandler())

	status, env := apitest.Do(t, app, apitest.JSON("POST", "/automations",
		`{"name":"Daily support","type":"recurring_transaction","frequency":"daily","quantity":1}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "contract_id", env.Details[0].Field)
}

func TestCreateRecurringRejectsCancelledContract(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).
		WillReturnRows(addContract(contractRows(), 8, "NDIS-001", "cancelled", 1000))

	app := apitest.NewApp(apitest.Admin)
	app.Post("/automations", CreateAutomationHandler())

	status, env := apitest.Do(t, app, apitest.JSON("POST", "/automations",
		`{"name":"Daily support","type":"recurring_transaction","frequency":"daily","contract_id":8,"quantity":1}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "contract is cancelled", env.Details[0].Message)
}

func TestCreateAutomationDefaults(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`INSERT INTO "automations"`).WillReturnRows(dbtest.IDRow(5))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Post("/automations", CreateAutomationHandler())

	var got models.Automation
	status, _ := apitest.Do(t, app, apitest.JSON("POST", "/automations",
		`{"name":"Monthly billing","type":"contract_billing","frequency":"monthly","day_of_month":31}`), &got)
	assert.Equal(t, 201, status)
	assert.Equal(t, uint(5), got.ID)
	assert.Equal(t, "Australia/Sydney", got.Timezone)
	assert.Equal(t, "00:00", got.TimeOfDay)
	assert.True(t, got.IsEnabled)
	require.NotNil(t, got.NextRunAt)
}

func TestCreateDisabledAutomation(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`INSERT INTO "automations"`).WillReturnRows(dbtest.IDRow(5))
	mock.ExpectExec(`UPDATE "automations" SET "is_enabled"=\$1`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Post("/automations", CreateAutomationHandler())

	var got models.Automation
	status, _ := apitest.Do(t, app, apitest.JSON("POST", "/automations",
		`{"name":"Cron billing","type":"contract_billing","frequency":"cron","cron_expression":"0 6 * * 1","is_enabled":false}`), &got)
	assert.Equal(t, 201, status)
	assert.False(t, got.IsEnabled)
}

func TestUpdateAutomationRevalidatesSchedule(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "automations"`).WillReturnRows(automationRow())

	app := apitest.NewApp(apitest.Admin)
	app.Put("/automations/:id", UpdateAutomationHandler())

	status, env := apitest.Do(t, app, apitest.JSON("PUT", "/automations/3", `{"frequency":"monthly"}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "day_of_month", env.Details[0].Field)
}

func TestUpdateAutomationLeavesLastRunAlone(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "automations"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "is_enabled", "frequency", "time_of_day", "timezone", "last_run_at"}).
			AddRow(3, "Billing", "contract_billing", true, "daily", "09:00", "UTC", time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)))
	mock.ExpectExec(`UPDATE "automations" SET "name"=\$1,"next_run_at"=\$2,"updated_at"=\$3 WHERE`).
		WithArgs("Weekly billing", sqlmock.AnyArg(), sqlmock.AnyArg(), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Put("/automations/:id", UpdateAutomationHandler())

	var got models.Automation
	status, _ := apitest.Do(t, app, apitest.JSON("PUT", "/automations/3", `{"name":"Weekly billing"}`), &got)
	assert.Equal(t, 200, status)
	assert.Equal(t, "Weekly billing", got.Name)
	require.NotNil(t, got.NextRunAt)
}

func TestRunAutomationNow(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "automations"`).WillReturnRows(automationRow())
	expectRunRecorded(mock)

	r := NewRunner(database.DB, zap.NewNop(), "* * * * *", 1)
	app := apitest.NewApp(apitest.Admin)
	app.Post("/automations/:id/run", RunAutomationHandler(r))

	var got models.AutomationRun
	status, _ := apitest.Do(t, app, apitest.JSON("POST", "/automations/3/run", ""), &got)
	assert.Equal(t, 200, status)
	assert.Equal(t, models.AutomationRunFailed, got.Status)
	assert.Equal(t, uint(3), got.AutomationID)
}

func TestListRuns(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "automations"`).WillReturnRows(automationRow())
	mock.ExpectQuery(`SELECT count\(\*\) FROM "automation_runs" WHERE automation_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT \* FROM "automation_runs" WHERE automation_id = \$1 ORDER BY started_at desc`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "automation_id", "status"}).
			AddRow(41, 3, "success").
			AddRow(40, 3, "skipped"))

	app := apitest.NewApp(apitest.Admin)
	app.Get("/automations/:id/runs", ListRunsHandler())

	var got []models.AutomationRun
	status, env := apitest.Do(t, app, apitest.JSON("GET", "/automations/3/runs", ""), &got)
	assert.Equal(t, 200, status)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(2), env.Pagination.Total)
}

func TestDeleteAutomationUnlinksTransactions(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "automations"`).WillReturnRows(automationRow())
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "transactions" SET "automation_id"=\$1`).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM "automation_runs" WHERE automation_id = \$1`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "automations"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Delete("/automations/:id", DeleteAutomationHandler())

	status, _ := apitest.Do(t, app, apitest.JSON("DELETE", "/automations/3", ""), nil)
	assert.Equal(t, 204, status)
}
