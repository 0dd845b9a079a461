package funding

import (
	"testing"
	"time"

	"housing-backend/internal/apitest"
	"housing-backend/internal/database"
	"housing-backend/internal/database/dbtest"
	"housing-backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var contractCols = []string{"id", "resident_id", "contract_number", "funding_type", "start_date", "end_date",
	"original_amount", "current_balance", "drawdown_rate", "status"}

func contractRow(id uint, status string, balance float64) *sqlmock.Rows {
	return sqlmock.NewRows(contractCols).AddRow(id, 5, "NDIS-001", "sil",
		date(2025, 1, 1), date(2025, 12, 31), 3650.0, balance, "daily", status)
}

func countRow(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func TestCreateContractEndBeforeStart(t *testing.T) {
	dbtest.New(t)
	app := apitest.NewApp(apitest.Admin)
	app.Post("/contracts", CreateContractHandler())

	status, env := apitest.Do(t, app, apitest.JSON("POST", "/contracts",
		`{"resident_id":5,"contract_number":"NDIS-001","funding_type":"sil","start_date":"2025-06-01","end_date":"2025-01-01","original_amount":1000}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "end_date", env.Details[0].Field)
}

func TestCreateContractBalanceAboveOriginal(t *testing.T) {
	dbtest.New(t)
	app := apitest.NewApp(apitest.Admin)
	app.Post("/contracts", CreateContractHandler())

	status, env := apitest.Do(t, app, apitest.JSON("POST", "/contracts",
		`{"resident_id":5,"contract_number":"NDIS-001","funding_type":"sil","start_date":"2025-01-01","end_date":"2025-12-31","original_amount":1000,"current_balance":1200}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "current_balance", env.Details[0].Field)
}

func TestCreateContractUnknownResident(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "residents"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	app := apitest.NewApp(apitest.Admin)
	app.Post("/contracts", CreateContractHandler())

	status, env := apitest.Do(t, app, apitest.JSON("POST", "/contracts",
		`{"resident_id":5,"contract_number":"NDIS-001","funding_type":"sil","start_date":"2025-01-01","end_date":"2025-12-31","original_amount":1000}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "resident_id", env.Details[0].Field)
}

func TestCreateContractDefaultsBalance(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "residents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "house_id"}).AddRow(5, 3))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "funding_contracts"`).WillReturnRows(countRow(0))
	mock.ExpectQuery(`INSERT INTO "funding_contracts"`).WillReturnRows(dbtest.IDRow(8))
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Post("/contracts", CreateContractHandler())

	var got models.FundingContract
	status, _ := apitest.Do(t, app, apitest.JSON("POST", "/contracts",
		`{"resident_id":5,"contract_number":" NDIS-001 ","funding_type":"sil","start_date":"2025-01-01","end_date":"2025-12-31","original_amount":1000.456}`), &got)
	assert.Equal(t, 201, status)
	assert.Equal(t, uint(8), got.ID)
	assert.Equal(t, "NDIS-001", got.ContractNumber)
	assert.Equal(t, 1000.46, got.OriginalAmount)
	assert.Equal(t, 1000.46, got.CurrentBalance)
	assert.Equal(t, models.ContractStatusDraft, got.Status)
	assert.Equal(t, models.DrawdownWeekly, got.DrawdownRate)
}

func TestCreateContractDuplicateNumber(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "residents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "house_id"}).AddRow(5, 3))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "funding_contracts"`).WillReturnRows(countRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Post("/contracts", CreateContractHandler())

	status, _ := apitest.Do(t, app, apitest.JSON("POST", "/contracts",
		`{"resident_id":5,"contract_number":"NDIS-001","funding_type":"sil","start_date":"2025-01-01","end_date":"2025-12-31","original_amount":1000}`), nil)
	assert.Equal(t, 409, status)
}

func TestUpdateContractRejectsInvalidTransition(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow(8, "cancelled", 3650))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts" .* FOR UPDATE`).WillReturnRows(contractRow(8, "cancelled", 3650))
	mock.ExpectRollback()

	app := apitest.NewApp(apitest.Admin)
	app.Put("/contracts/:id", UpdateContractHandler())

	status, env := apitest.Do(t, app, apitest.JSON("PUT", "/contracts/8", `{"status":"active"}`), nil)
	assert.Equal(t, 400, status)
	assert.Equal(t, "cannot change contract status from cancelled to active", env.Error)
}

func TestUpdateContractShiftsBalance(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow(8, "active", 3000))
	mock.ExpectBegin()
	// a post landed after the first read; the shift applies to the locked balance
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts" .* FOR UPDATE`).WillReturnRows(contractRow(8, "active", 2900))
	mock.ExpectExec(`UPDATE "funding_contracts" SET "current_balance"=\$1,"original_amount"=\$2,"updated_at"=\$3 WHERE`).
		WithArgs(3250.0, 4000.0, sqlmock.AnyArg(), 8).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Put("/contracts/:id", UpdateContractHandler())

	var got models.FundingContract
	status, _ := apitest.Do(t, app, apitest.JSON("PUT", "/contracts/8", `{"original_amount":4000}`), &got)
	assert.Equal(t, 200, status)
	assert.Equal(t, 4000.0, got.OriginalAmount)
	assert.Equal(t, 3250.0, got.CurrentBalance)
}

func TestUpdateContractNotesLeavesBalanceAlone(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow(8, "active", 3650))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts" .* FOR UPDATE`).WillReturnRows(contractRow(8, "active", 3400))
	mock.ExpectExec(`UPDATE "funding_contracts" SET "notes"=\$1,"updated_at"=\$2 WHERE`).
		WithArgs("phone call", sqlmock.AnyArg(), 8).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Put("/contracts/:id", UpdateContractHandler())

	var got models.FundingContract
	status, _ := apitest.Do(t, app, apitest.JSON("PUT", "/contracts/8", `{"notes":"phone call"}`), &got)
	assert.Equal(t, 200, status)
	assert.Equal(t, "phone call", got.Notes)
	assert.Equal(t, 3400.0, got.CurrentBalance)
}

func TestGetContractOutsideManagerScope(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow(8, "active", 3650))
	mock.ExpectQuery(`SELECT \* FROM "residents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "house_id"}).AddRow(5, 3))

	app := apitest.NewApp(apitest.Manager(4))
	app.Get("/contracts/:id", GetContractHandler())

	status, _ := apitest.Do(t, app, apitest.JSON("GET", "/contracts/8", ""), nil)
	assert.Equal(t, 403, status)
}

func TestDrawdownSummaryAsOf(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow(8, "active", 3450))

	app := apitest.NewApp(apitest.Admin)
	app.Get("/contracts/:id/drawdown", DrawdownSummaryHandler())

	var got Summary
	status, _ := apitest.Do(t, app, apitest.JSON("GET", "/contracts/8/drawdown?as_of=2025-01-10", ""), &got)
	assert.Equal(t, 200, status)
	assert.Equal(t, "2025-01-10", got.AsOf)
	assert.Equal(t, 100.0, got.ExpectedDrawn)
	assert.Equal(t, 200.0, got.DrawnAmount)
}

func TestDrawdownSummaryBadDate(t *testing.T) {
	dbtest.New(t)
	app := apitest.NewApp(apitest.Admin)
	app.Get("/contracts/:id/drawdown", DrawdownSummaryHandler())

	status, _ := apitest.Do(t, app, apitest.JSON("GET", "/contracts/8/drawdown?as_of=10/01/2025", ""), nil)
	assert.Equal(t, 400, status)
}

func TestDeleteActiveContractWithTransactions(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow(8, "active", 3450))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "transactions"`).WillReturnRows(countRow(3))

	app := apitest.NewApp(apitest.Admin)
	app.Delete("/contracts/:id", DeleteContractHandler())

	status, _ := apitest.Do(t, app, apitest.JSON("DELETE", "/contracts/8", ""), nil)
	assert.Equal(t, 409, status)
}

func TestDeleteDraftContract(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow(8, "draft", 3650))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "transactions"`).WillReturnRows(countRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "transactions"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "funding_contracts"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnRows(dbtest.IDRow(1))

	app := apitest.NewApp(apitest.Admin)
	app.Delete("/contracts/:id", DeleteContractHandler())

	status, _ := apitest.Do(t, app, apitest.JSON("DELETE", "/contracts/8", ""), nil)
	assert.Equal(t, 204, status)
}

func TestExpireEnded(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectExec(`UPDATE "funding_contracts" SET "status"=\$1`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := ExpireEnded(database.DB, time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
