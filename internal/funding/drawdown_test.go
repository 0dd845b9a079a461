package funding

import (
	"errors"
	"testing"
	"time"

	"housing-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func contract(original, balance float64, rate models.DrawdownRate, start, end time.Time) *models.FundingContract {
	return &models.FundingContract{
		ID:             1,
		OriginalAmount: original,
		CurrentBalance: balance,
		DrawdownRate:   rate,
		StartDate:      start,
		EndDate:        end,
		Status:         models.ContractStatusActive,
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.13, Round2(10.126))
	assert.Equal(t, 10.12, Round2(10.124))
	assert.Equal(t, 0.0, Round2(0.001))
}

func TestDaysInclusive(t *testing.T) {
	assert.Equal(t, 31, DaysInclusive(date(2025, 1, 1), date(2025, 1, 31)))
	assert.Equal(t, 1, DaysInclusive(date(2025, 1, 1), date(2025, 1, 1)))
	assert.Equal(t, 0, DaysInclusive(date(2025, 1, 2), date(2025, 1, 1)))
	assert.Equal(t, 366, DaysInclusive(date(2024, 1, 1), date(2024, 12, 31)))
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	assert.Equal(t, date(2025, 2, 28), AddMonths(date(2025, 1, 31), 1))
	assert.Equal(t, date(2024, 2, 29), AddMonths(date(2024, 1, 31), 1))
	assert.Equal(t, date(2025, 3, 31), AddMonths(date(2025, 1, 31), 2))
	assert.Equal(t, date(2026, 1, 15), AddMonths(date(2025, 12, 15), 1))
}

func TestPeriodCount(t *testing.T) {
	tests := []struct {
		name       string
		rate       models.DrawdownRate
		start, end time.Time
		want       int
	}{
		{"daily", models.DrawdownDaily, date(2025, 1, 1), date(2025, 1, 31), 31},
		{"weekly exact", models.DrawdownWeekly, date(2025, 1, 1), date(2025, 1, 14), 2},
		{"weekly partial", models.DrawdownWeekly, date(2025, 1, 1), date(2025, 1, 15), 3},
		{"fortnightly year", models.DrawdownFortnightly, date(2025, 1, 1), date(2025, 12, 31), 27},
		{"monthly year", models.DrawdownMonthly, date(2025, 1, 1), date(2025, 12, 31), 12},
		{"monthly from 31st", models.DrawdownMonthly, date(2025, 1, 31), date(2025, 4, 30), 4},
		{"reversed", models.DrawdownWeekly, date(2025, 2, 1), date(2025, 1, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodCount(tt.rate, tt.start, tt.end))
		})
	}
}

func TestPeriodAmountAndDailyRate(t *testing.T) {
	weekly := contract(5200, 5200, models.DrawdownWeekly, date(2025, 1, 1), date(2025, 12, 30))
	assert.Equal(t, 100.0, PeriodAmount(weekly))

	year := contract(3650, 3650, models.DrawdownDaily, date(2025, 1, 1), date(2025, 12, 31))
	assert.Equal(t, 10.0, DailyRate(year))
	assert.Equal(t, 10.0, PeriodAmount(year))
}

func TestElapsedPeriods(t *testing.T) {
	c := contract(5200, 5200, models.DrawdownWeekly, date(2025, 1, 1), date(2025, 12, 30))
	assert.Equal(t, 0, ElapsedPeriods(c, date(2024, 12, 31)))
	assert.Equal(t, 1, ElapsedPeriods(c, date(2025, 1, 7)))
	assert.Equal(t, 2, ElapsedPeriods(c, date(2025, 1, 8)))
	assert.Equal(t, 52, ElapsedPeriods(c, date(2026, 6, 1)))
}

func TestExpectedDrawn(t *testing.T) {
	c := contract(3650, 3650, models.DrawdownDaily, date(2025, 1, 1), date(2025, 12, 31))
	assert.Equal(t, 0.0, ExpectedDrawn(c, date(2024, 12, 1)))
	assert.Equal(t, 100.0, ExpectedDrawn(c, date(2025, 1, 10)))
	assert.Equal(t, 3650.0, ExpectedDrawn(c, date(2025, 12, 31)))
	assert.Equal(t, 3650.0, ExpectedDrawn(c, date(2026, 3, 1)))
}

func TestSummarize(t *testing.T) {
	c := contract(3650, 3450, models.DrawdownDaily, date(2025, 1, 1), date(2025, 12, 31))
	asOf := date(2025, 1, 10)
	s := Summarize(c, asOf.Add(15*time.Hour))

	assert.Equal(t, "2025-01-10", s.AsOf)
	assert.Equal(t, 365, s.TotalPeriods)
	assert.Equal(t, 10, s.ElapsedPeriods)
	assert.Equal(t, 200.0, s.DrawnAmount)
	assert.Equal(t, 100.0, s.ExpectedDrawn)
	assert.Equal(t, 100.0, s.Variance)
	assert.Equal(t, 5.48, s.UtilisationPercent)
	assert.Equal(t, 355, s.DaysRemaining)
	require.NotNil(t, s.ProjectedExhaustion)
	assert.Equal(t, asOf.AddDate(0, 0, 173), *s.ProjectedExhaustion)
}

func TestSummarizeUntouchedContractHasNoProjection(t *testing.T) {
	c := contract(1000, 1000, models.DrawdownMonthly, date(2025, 1, 1), date(2025, 12, 31))
	s := Summarize(c, date(2025, 6, 1))
	assert.Nil(t, s.ProjectedExhaustion)
	assert.Equal(t, 0.0, s.UtilisationPercent)
	assert.Negative(t, s.Variance)
}

func TestCheckDrawdown(t *testing.T) {
	c := contract(1000, 150, models.DrawdownWeekly, date(2025, 1, 1), date(2025, 6, 30))

	assert.NoError(t, CheckDrawdown(c, 150, date(2025, 3, 1)))
	assert.True(t, errors.Is(CheckDrawdown(c, 0, date(2025, 3, 1)), ErrInvalidAmount))
	assert.True(t, errors.Is(CheckDrawdown(c, 150.01, date(2025, 3, 1)), ErrInsufficientBalance))
	assert.True(t, errors.Is(CheckDrawdown(c, 10, date(2025, 7, 1)), ErrOutsidePeriod))
	assert.True(t, errors.Is(CheckDrawdown(c, 10, date(2024, 12, 31)), ErrOutsidePeriod))

	c.Status = models.ContractStatusExpired
	err := CheckDrawdown(c, 10, date(2025, 3, 1))
	assert.True(t, errors.Is(err, ErrContractNotActive))
	assert.Contains(t, err.Error(), "expired")
}

func TestPreview(t *testing.T) {
	c := contract(1000, 150, models.DrawdownWeekly, date(2025, 1, 1), date(2025, 6, 30))

	p := Preview(c, 100, date(2025, 3, 1))
	assert.True(t, p.CanPost)
	assert.Equal(t, 50.0, p.BalanceAfter)
	assert.Equal(t, []string{"balance will fall below 10% of the contract amount"}, p.Warnings)

	p = Preview(c, 200, date(2025, 8, 1))
	assert.False(t, p.CanPost)
	assert.False(t, p.Sufficient)
	assert.False(t, p.WithinPeriod)
	assert.Len(t, p.Warnings, 2)
	assert.Equal(t, -50.0, p.BalanceAfter)

	c.Status = models.ContractStatusDraft
	p = Preview(c, 10, date(2025, 3, 1))
	assert.False(t, p.CanPost)
	assert.Contains(t, p.Warnings, "contract status is draft")
}

func TestAdjustOriginalAmount(t *testing.T) {
	c := contract(1000, 400, models.DrawdownWeekly, date(2025, 1, 1), date(2025, 6, 30))
	AdjustOriginalAmount(c, 1200)
	assert.Equal(t, 1200.0, c.OriginalAmount)
	assert.Equal(t, 600.0, c.CurrentBalance)

	AdjustOriginalAmount(c, 500)
	assert.Equal(t, 500.0, c.OriginalAmount)
	assert.Equal(t, 0.0, c.CurrentBalance)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.ContractStatusDraft, models.ContractStatusActive))
	assert.True(t, CanTransition(models.ContractStatusExpired, models.ContractStatusActive))
	assert.True(t, CanTransition(models.ContractStatusActive, models.ContractStatusActive))
	assert.False(t, CanTransition(models.ContractStatusCancelled, models.ContractStatusActive))
	assert.False(t, CanTransition(models.ContractStatusActive, models.ContractStatusDraft))
}
