// Package funding manages NDIS funding contracts and the drawdown of their
// balance as services are billed.
package funding

import (
	"errors"
	"fmt"
	"math"
	"time"

	"housing-backend/internal/models"
)

var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrContractNotActive   = errors.New("contract is not active")
	ErrOutsidePeriod       = errors.New("service date is outside the contract period")
	ErrInsufficientBalance = errors.New("insufficient contract balance")
)

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DateOnly drops the clock, keeping the calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysInclusive counts calendar days from start to end, both included.
func DaysInclusive(start, end time.Time) int {
	s, e := DateOnly(start), DateOnly(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// AddMonths moves t by n months, clamping the day to the target month's
// length so Jan 31 + 1 month is Feb 28/29.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// PeriodStart is the first day of the k-th (zero based) drawdown period.
func PeriodStart(rate models.DrawdownRate, start time.Time, k int) time.Time {
	start = DateOnly(start)
	switch rate {
	case models.DrawdownDaily:
		return start.AddDate(0, 0, k)
	case models.DrawdownWeekly:
		return start.AddDate(0, 0, 7*k)
	case models.DrawdownFortnightly:
		return start.AddDate(0, 0, 14*k)
	default:
		return AddMonths(start, k)
	}
}

// PeriodCount is the number of drawdown periods that start within
// [start, end]. A trailing partial period counts as a full one.
func PeriodCount(rate models.DrawdownRate, start, end time.Time) int {
	days := DaysInclusive(start, end)
	if days == 0 {
		return 0
	}
	switch rate {
	case models.DrawdownDaily:
		return days
	case models.DrawdownWeekly:
		return (days + 6) / 7
	case models.DrawdownFortnightly:
		return (days + 13) / 14
	default:
		return periodsStartedBy(rate, start, DateOnly(end))
	}
}

// periodsStartedBy counts periods whose start is on or before asOf.
func periodsStartedBy(rate models.DrawdownRate, start, asOf time.Time) int {
	n := 0
	for !PeriodStart(rate, start, n).After(asOf) {
		n++
	}
	return n
}

// PeriodAmount is the even share of the original amount per period.
func PeriodAmount(c *models.FundingContract) float64 {
	n := PeriodCount(c.DrawdownRate, c.StartDate, c.EndDate)
	if n == 0 {
		return 0
	}
	return Round2(c.OriginalAmount / float64(n))
}

// DailyRate spreads the original amount over every day of the contract.
func DailyRate(c *models.FundingContract) float64 {
	days := DaysInclusive(c.StartDate, c.EndDate)
	if days == 0 {
		return 0
	}
	return Round2(c.OriginalAmount / float64(days))
}

// ElapsedPeriods counts periods started on or before asOf, capped at the total.
func ElapsedPeriods(c *models.FundingContract, asOf time.Time) int {
	asOf = DateOnly(asOf)
	if asOf.Before(DateOnly(c.StartDate)) {
		return 0
	}
	total := PeriodCount(c.DrawdownRate, c.StartDate, c.EndDate)
	if asOf.After(DateOnly(c.EndDate)) {
		return total
	}
	var n int
	switch c.DrawdownRate {
	case models.DrawdownDaily:
		n = DaysInclusive(c.StartDate, asOf)
	case models.DrawdownWeekly:
		n = (DaysInclusive(c.StartDate, asOf) + 6) / 7
	case models.DrawdownFortnightly:
		n = (DaysInclusive(c.StartDate, asOf) + 13) / 14
	default:
		n = periodsStartedBy(c.DrawdownRate, c.StartDate, asOf)
	}
	if n > total {
		n = total
	}
	return n
}

// ExpectedDrawn is what a linear drawdown would have consumed by asOf.
func ExpectedDrawn(c *models.FundingContract, asOf time.Time) float64 {
	asOf = DateOnly(asOf)
	if asOf.Before(DateOnly(c.StartDate)) {
		return 0
	}
	if !asOf.Before(DateOnly(c.EndDate)) {
		return Round2(c.OriginalAmount)
	}
	total := DaysInclusive(c.StartDate, c.EndDate)
	elapsed := DaysInclusive(c.StartDate, asOf)
	return Round2(c.OriginalAmount * float64(elapsed) / float64(total))
}

// Drawn is the amount already taken from the contract.
func Drawn(c *models.FundingContract) float64 {
	return Round2(c.OriginalAmount - c.CurrentBalance)
}

type Summary struct {
	ContractID          uint       `json:"contract_id"`
	AsOf                string     `json:"as_of"`
	OriginalAmount      float64    `json:"original_amount"`
	CurrentBalance      float64    `json:"current_balance"`
	DrawdownRate        string     `json:"drawdown_rate"`
	TotalPeriods        int        `json:"total_periods"`
	ElapsedPeriods      int        `json:"elapsed_periods"`
	PeriodAmount        float64    `json:"period_amount"`
	DailyRate           float64    `json:"daily_rate"`
	DrawnAmount         float64    `json:"drawn_amount"`
	ExpectedDrawn       float64    `json:"expected_drawn"`
	Variance            float64    `json:"variance"` // drawn - expected, positive means ahead of schedule
	UtilisationPercent  float64    `json:"utilisation_percent"`
	DaysRemaining       int        `json:"days_remaining"`
	ProjectedExhaustion *time.Time `json:"projected_exhaustion"`
}

// Summarize reports where the contract stands against a linear drawdown.
func Summarize(c *models.FundingContract, asOf time.Time) Summary {
	asOf = DateOnly(asOf)
	drawn := Drawn(c)
	expected := ExpectedDrawn(c, asOf)

	s := Summary{
		ContractID:     c.ID,
		AsOf:           asOf.Format("2006-01-02"),
		OriginalAmount: Round2(c.OriginalAmount),
		CurrentBalance: Round2(c.CurrentBalance),
		DrawdownRate:   string(c.DrawdownRate),
		TotalPeriods:   PeriodCount(c.DrawdownRate, c.StartDate, c.EndDate),
		ElapsedPeriods: ElapsedPeriods(c, asOf),
		PeriodAmount:   PeriodAmount(c),
		DailyRate:      DailyRate(c),
		DrawnAmount:    drawn,
		ExpectedDrawn:  expected,
		Variance:       Round2(drawn - expected),
	}
	if c.OriginalAmount > 0 {
		s.UtilisationPercent = Round2(drawn / c.OriginalAmount * 100)
	}

	switch {
	case asOf.Before(DateOnly(c.StartDate)):
		s.DaysRemaining = DaysInclusive(c.StartDate, c.EndDate)
	case asOf.After(DateOnly(c.EndDate)):
		s.DaysRemaining = 0
	default:
		s.DaysRemaining = DaysInclusive(asOf, c.EndDate) - 1
	}

	// burn rate so far, projected forward
	elapsedDays := DaysInclusive(c.StartDate, asOf)
	if drawn > 0 && elapsedDays > 0 && c.CurrentBalance > 0 {
		perDay := drawn / float64(elapsedDays)
		days := int(math.Ceil(c.CurrentBalance / perDay))
		at := asOf.AddDate(0, 0, days)
		s.ProjectedExhaustion = &at
	}
	return s
}

// CheckDrawdown validates that amount can be drawn from c for a service on date.
func CheckDrawdown(c *models.FundingContract, amount float64, date time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if c.Status != models.ContractStatusActive {
		return fmt.Errorf("%w (status %s)", ErrContractNotActive, c.Status)
	}
	if !WithinPeriod(c, date) {
		return fmt.Errorf("%w (%s to %s)", ErrOutsidePeriod,
			c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"))
	}
	if Round2(amount) > Round2(c.CurrentBalance) {
		return fmt.Errorf("%w: balance %.2f, requested %.2f", ErrInsufficientBalance, c.CurrentBalance, amount)
	}
	return nil
}

func WithinPeriod(c *models.FundingContract, date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(c.StartDate)) && !d.After(DateOnly(c.EndDate))
}

type BalancePreview struct {
	ContractID     uint     `json:"contract_id"`
	CurrentBalance float64  `json:"current_balance"`
	Amount         float64  `json:"amount"`
	BalanceAfter   float64  `json:"balance_after"`
	Sufficient     bool     `json:"sufficient"`
	WithinPeriod   bool     `json:"within_period"`
	Active         bool     `json:"active"`
	CanPost        bool     `json:"can_post"`
	Warnings       []string `json:"warnings"`
}

// Preview computes the effect of drawing amount from c without changing it.
func Preview(c *models.FundingContract, amount float64, date time.Time) BalancePreview {
	amount = Round2(amount)
	p := BalancePreview{
		ContractID:     c.ID,
		CurrentBalance: Round2(c.CurrentBalance),
		Amount:         amount,
		BalanceAfter:   Round2(c.CurrentBalance - amount),
		Sufficient:     amount <= Round2(c.CurrentBalance),
		WithinPeriod:   WithinPeriod(c, date),
		Active:         c.Status == models.ContractStatusActive,
		Warnings:       []string{},
	}
	if !p.Active {
		p.Warnings = append(p.Warnings, fmt.Sprintf("contract status is %s", c.Status))
	}
	if !p.WithinPeriod {
		p.Warnings = append(p.Warnings, "service date is outside the contract period")
	}
	if !p.Sufficient {
		p.Warnings = append(p.Warnings, fmt.Sprintf("amount exceeds balance by %.2f", Round2(amount-c.CurrentBalance)))
	} else if c.OriginalAmount > 0 && p.BalanceAfter < c.OriginalAmount*0.1 {
		p.Warnings = append(p.Warnings, "balance will fall below 10% of the contract amount")
	}
	p.CanPost = p.Active && p.WithinPeriod && p.Sufficient && amount > 0
	return p
}
