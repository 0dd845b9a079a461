package transactions

import (
	"errors"
	"testing"
	"time"

	"housing-backend/internal/database"
	"housing-backend/internal/database/dbtest"
	"housing-backend/internal/funding"
	"housing-backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	txCols       = []string{"id", "resident_id", "contract_id", "service_date", "quantity", "unit_price", "amount", "status", "drawdown_applied"}
	contractCols = []string{"id", "resident_id", "contract_number", "start_date", "end_date", "original_amount", "current_balance", "drawdown_rate", "unit_price", "status"}
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func txRow(id uint, status string, amount float64, applied bool) *sqlmock.Rows {
	return sqlmock.NewRows(txCols).AddRow(id, 5, 8, day(2025, 3, 3), 1.0, amount, amount, status, applied)
}

func contractRow(status string, balance float64) *sqlmock.Rows {
	return sqlmock.NewRows(contractCols).AddRow(8, 5, "NDIS-001", day(2025, 1, 1), day(2025, 12, 31), 1000.0, balance, "weekly", 250.0, status)
}

func TestAmount(t *testing.T) {
	assert.Equal(t, 301.5, Amount(1.5, 201))
	assert.Equal(t, 33.33, Amount(1.0/3.0, 100))
}

func TestCreateFallsBackToContractDefaults(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectQuery(`INSERT INTO "transactions"`).WillReturnRows(dbtest.IDRow(21))

	fc := &models.FundingContract{ID: 8, ResidentID: 5, UnitPrice: 250, SupportItemNumber: "01_821_0115_1_1", Status: models.ContractStatusActive}
	tx, err := Create(database.DB, fc, Input{ServiceDate: day(2025, 3, 3).Add(9 * time.Hour), Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, uint(21), tx.ID)
	assert.Equal(t, uint(5), tx.ResidentID)
	assert.Equal(t, 500.0, tx.Amount)
	assert.Equal(t, "01_821_0115_1_1", tx.SupportItemNumber)
	assert.Equal(t, day(2025, 3, 3), tx.ServiceDate)
	assert.Equal(t, models.TransactionStatusDraft, tx.Status)
}

func TestCreateRejectsCancelledContract(t *testing.T) {
	dbtest.New(t)
	fc := &models.FundingContract{ID: 8, Status: models.ContractStatusCancelled}
	_, err := Create(database.DB, fc, Input{Quantity: 1, UnitPrice: 10})
	assert.True(t, errors.Is(err, funding.ErrContractNotActive))
}

func TestCreateRejectsMissingPrice(t *testing.T) {
	dbtest.New(t)
	fc := &models.FundingContract{ID: 8, Status: models.ContractStatusActive}
	_, err := Create(database.DB, fc, Input{Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPostAppliesDrawdown(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions" .* FOR UPDATE`).WillReturnRows(txRow(21, "draft", 250, false))
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts" .* FOR UPDATE`).WillReturnRows(contractRow("active", 1000))
	mock.ExpectExec(`UPDATE "funding_contracts" SET "current_balance"=\$1`).
		WithArgs(750.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, fc, err := Post(database.DB, 21)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPosted, tx.Status)
	assert.True(t, tx.DrawdownApplied)
	assert.Equal(t, 750.0, fc.CurrentBalance)
}

func TestPostInsufficientBalanceRollsBack(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).WillReturnRows(txRow(21, "draft", 250, false))
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow("active", 100))
	mock.ExpectRollback()

	_, _, err := Post(database.DB, 21)
	assert.ErrorIs(t, err, funding.ErrInsufficientBalance)
	assert.True(t, IsRuleError(err))
}

func TestPostRejectsNonDraft(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).WillReturnRows(txRow(21, "posted", 250, true))
	mock.ExpectRollback()

	_, _, err := Post(database.DB, 21)
	assert.ErrorIs(t, err, ErrNotDraft)
}

func TestVoidRestoresBalance(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).WillReturnRows(txRow(21, "posted", 250, true))
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts"`).WillReturnRows(contractRow("active", 750))
	mock.ExpectExec(`UPDATE "funding_contracts" SET "current_balance"=\$1`).
		WithArgs(1000.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := Void(database.DB, 21, "entered twice")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusVoided, tx.Status)
	assert.False(t, tx.DrawdownApplied)
	assert.Equal(t, "entered twice", tx.Note)
}

func TestVoidRefusesClaimed(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).WillReturnRows(txRow(21, "claimed", 250, true))
	mock.ExpectRollback()

	_, err := Void(database.DB, 21, "")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}
