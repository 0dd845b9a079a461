package claims

import (
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"housing-backend/internal/database"
	"housing-backend/internal/database/dbtest"
	"housing-backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now    = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	txCols = []string{"id", "resident_id", "contract_id", "service_date", "quantity", "unit_price", "amount",
		"status", "drawdown_applied", "claim_id", "claim_reference"}
)

func line(id uint, status string, amount float64, claimID any, ref string) []driver.Value {
	return []driver.Value{id, 5, 8, time.Date(2025, 3, int(id%28)+1, 0, 0, 0, 0, time.UTC), 1.0, amount, amount, status, true, claimID, ref}
}

func rows(lines ...[]driver.Value) *sqlmock.Rows {
	r := sqlmock.NewRows(txCols)
	for _, l := range lines {
		r.AddRow(l...)
	}
	return r
}

func TestNewClaimNumber(t *testing.T) {
	n := NewClaimNumber(now)
	assert.Regexp(t, regexp.MustCompile(`^CLM-20250401-[0-9A-F]{8}$`), n)
	assert.NotEqual(t, n, NewClaimNumber(now))
	assert.Equal(t, "CLM-20250401-ABCD1234-007", Reference("CLM-20250401-ABCD1234", 7))
}

func TestSettle(t *testing.T) {
	paid := models.Transaction{Status: models.TransactionStatusPaid, PaidAmount: 100}
	rejected := models.Transaction{Status: models.TransactionStatusRejected}
	pending := models.Transaction{Status: models.TransactionStatusClaimed}

	tests := []struct {
		name  string
		lines []models.Transaction
		want  models.ClaimStatus
		total float64
	}{
		{"all paid", []models.Transaction{paid, paid}, models.ClaimStatusPaid, 200},
		{"paid and rejected", []models.Transaction{paid, rejected}, models.ClaimStatusPartiallyPaid, 100},
		{"paid and pending", []models.Transaction{paid, pending}, models.ClaimStatusPartiallyPaid, 100},
		{"all rejected", []models.Transaction{rejected, rejected}, models.ClaimStatusRejected, 0},
		{"rejected and pending", []models.Transaction{rejected, pending}, models.ClaimStatusSubmitted, 0},
		{"nothing back", []models.Transaction{pending}, models.ClaimStatusSubmitted, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, total := Settle(models.ClaimStatusSubmitted, tt.lines)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.total, total)
		})
	}
}

func TestCanSetStatus(t *testing.T) {
	assert.True(t, CanSetStatus(models.ClaimStatusDraft, models.ClaimStatusSubmitted))
	assert.True(t, CanSetStatus(models.ClaimStatusSubmitted, models.ClaimStatusPaid))
	assert.False(t, CanSetStatus(models.ClaimStatusDraft, models.ClaimStatusPaid))
	assert.False(t, CanSetStatus(models.ClaimStatusPaid, models.ClaimStatusSubmitted))
}

func TestBuildFromTransactionIDs(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions" WHERE id IN \(\$1,\$2\) .* FOR UPDATE`).
		WillReturnRows(rows(line(21, "posted", 250, nil, ""), line(22, "posted", 125.5, nil, "")))
	mock.ExpectQuery(`INSERT INTO "claims"`).WillReturnRows(dbtest.IDRow(3))
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim, err := Build(database.DB, BuildInput{TransactionIDs: []uint{21, 22, 22}}, now)
	require.NoError(t, err)
	assert.Equal(t, uint(3), claim.ID)
	assert.Equal(t, models.ClaimStatusDraft, claim.Status)
	assert.Equal(t, 375.5, claim.TotalAmount)
	require.Len(t, claim.Transactions, 2)
	assert.Equal(t, claim.ClaimNumber+"-001", claim.Transactions[0].ClaimReference)
	assert.Equal(t, claim.ClaimNumber+"-002", claim.Transactions[1].ClaimReference)
	assert.Equal(t, models.TransactionStatusClaimed, claim.Transactions[1].Status)
	assert.Equal(t, "2025-03-22", claim.PeriodFrom.Format("2006-01-02"))
	assert.Equal(t, "2025-03-23", claim.PeriodTo.Format("2006-01-02"))
}

func TestBuildRefusesAlreadyClaimed(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).
		WillReturnRows(rows(line(21, "posted", 250, nil, ""), line(22, "claimed", 100, 2, "CLM-X-001")))
	mock.ExpectRollback()

	_, err := Build(database.DB, BuildInput{TransactionIDs: []uint{21, 22}}, now)
	assert.ErrorIs(t, err, ErrNotClaimable)
	assert.True(t, IsRuleError(err))
}

func TestBuildForEmptyPeriod(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions" WHERE status = \$1 AND claim_id IS NULL AND service_date >= \$2 AND service_date <= \$3`).
		WillReturnRows(rows())
	mock.ExpectRollback()

	from, to := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	_, err := Build(database.DB, BuildInput{PeriodFrom: &from, PeriodTo: &to}, now)
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestDeleteReleasesTransactions(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "transactions" SET "claim_id"=\$1,"claim_reference"=\$2,"status"=\$3`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM "claims"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, Delete(database.DB, &models.Claim{ID: 3, Status: models.ClaimStatusDraft}))
}

func TestDeleteRefusesSubmitted(t *testing.T) {
	dbtest.New(t)
	err := Delete(database.DB, &models.Claim{ID: 3, Status: models.ClaimStatusSubmitted})
	assert.ErrorIs(t, err, ErrNotDraft)
}

func TestReconcile(t *testing.T) {
	mock := dbtest.New(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "transactions" WHERE claim_id = \$1 ORDER BY id FOR UPDATE`).
		WillReturnRows(rows(
			line(21, "claimed", 250, 3, "CLM-1-001"),
			line(22, "claimed", 125.5, 3, "CLM-1-002"),
		))
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "funding_contracts" .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "original_amount", "current_balance"}).AddRow(8, 1000.0, 624.5))
	mock.ExpectExec(`UPDATE "funding_contracts" SET "current_balance"=\$1`).
		WithArgs(750.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "claims"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claim := &models.Claim{ID: 3, ClaimNumber: "CLM-1", Status: models.ClaimStatusSubmitted}
	res, err := Reconcile(database.DB, claim, []ResponseRow{
		{Line: 2, Reference: "clm-1-001", Outcome: OutcomeSuccess},
		{Line: 3, Reference: "CLM-1-002", Outcome: OutcomeError, ErrorMessage: "Plan ended"},
		{Line: 4, Reference: "CLM-9-001", Outcome: OutcomeSuccess},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Paid)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, models.ClaimStatusPartiallyPaid, res.ClaimStatus)
	assert.Equal(t, 250.0, res.PaidAmount)
	assert.Equal(t, "Plan ended", res.Rows[1].Message)
	assert.Equal(t, "unmatched", res.Rows[2].Outcome)
	assert.Equal(t, models.ClaimStatusPartiallyPaid, claim.Status)
	require.NotNil(t, claim.PaidAt)
}

func TestReconcileDraftRefused(t *testing.T) {
	dbtest.New(t)
	_, err := Reconcile(database.DB, &models.Claim{ID: 3, Status: models.ClaimStatusDraft}, nil, now)
	assert.ErrorIs(t, err, ErrNotSubmitted)
}
