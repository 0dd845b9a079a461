package dashboard

import (
	"fmt"
	"strconv"
	"time"

	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/funding"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
)

type DrawdownChartPoint struct {
	Label  string             `json:"label"` // bucket start date
	ByType map[string]float64 `json:"by_type"`
	Total  float64            `json:"total"`
}

type DrawdownChartResponse struct {
	HouseID    *uint                `json:"house_id,omitempty"`
	Period     string               `json:"period"` // daily | weekly | monthly
	From       string               `json:"from"`
	To         string               `json:"to"`
	Points     []DrawdownChartPoint `json:"points"`
	ByType     map[string]float64   `json:"by_type"`
	GrandTotal float64              `json:"grand_total"`
}

// chartRange returns the first and last bucket start and the last covered day.
func chartRange(period string, count int, now time.Time) (first, last, to time.Time) {
	today := funding.DateOnly(now)
	switch period {
	case "weekly":
		// date_trunc('week') starts on Monday
		offset := (int(today.Weekday()) + 6) % 7
		last = today.AddDate(0, 0, -offset)
		first = last.AddDate(0, 0, -7*(count-1))
		to = last.AddDate(0, 0, 6)
	case "monthly":
		last = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		first = last.AddDate(0, -(count - 1), 0)
		to = last.AddDate(0, 1, -1)
	default:
		last = today
		first = today.AddDate(0, 0, -(count - 1))
		to = today
	}
	return first, last, to
}

func nextBucket(period string, t time.Time) time.Time {
	switch period {
	case "weekly":
		return t.AddDate(0, 0, 7)
	case "monthly":
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// GET /api/dashboard/drawdown-chart?period=daily&count=7&house_id=1
// Sums drawn transaction amounts per bucket and funding type. Empty buckets
// are returned with zero totals.
func DrawdownChartHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		houseID, err := houseFilter(c)
		if err != nil {
			return err
		}

		period := c.Query("period", "daily")
		var count int
		switch period {
		case "weekly":
			count = 8
		case "monthly":
			count = 12
		case "daily":
			count = 7
		default:
			return respond.Invalid("period", "must be daily, weekly or monthly")
		}
		if s := c.Query("count"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 366 {
				return respond.Invalid("count", "must be between 1 and 366")
			}
			count = n
		}

		first, last, to := chartRange(period, count, time.Now())

		bucketExpr := "t.service_date::date"
		switch period {
		case "weekly":
			bucketExpr = "date_trunc('week', t.service_date)::date"
		case "monthly":
			bucketExpr = "date_trunc('month', t.service_date)::date"
		}

		args := []any{first, to}
		scope := ""
		if houseID != nil {
			scope = "AND r.house_id = ?"
			args = append(args, *houseID)
		}
		sql := fmt.Sprintf(`
			SELECT %s AS bucket,
				   fc.funding_type AS funding_type,
				   SUM(t.amount) AS total
			FROM transactions t
			JOIN funding_contracts fc ON fc.id = t.contract_id
			JOIN residents r ON r.id = t.resident_id
			WHERE t.drawdown_applied = true AND t.service_date >= ? AND t.service_date <= ? %s
			GROUP BY bucket, fc.funding_type
			ORDER BY bucket ASC`, bucketExpr, scope)

		type row struct {
			Bucket      time.Time `gorm:"column:bucket"`
			FundingType string    `gorm:"column:funding_type"`
			Total       float64   `gorm:"column:total"`
		}
		var rows []row
		if err := database.DB.Raw(sql, args...).Scan(&rows).Error; err != nil {
			return respond.Internal("could not load drawdown chart", err)
		}

		index := make(map[string]int)
		points := make([]DrawdownChartPoint, 0, count)
		for b := first; !b.After(last); b = nextBucket(period, b) {
			label := b.Format("2006-01-02")
			index[label] = len(points)
			points = append(points, DrawdownChartPoint{Label: label, ByType: map[string]float64{}})
		}

		resp := DrawdownChartResponse{
			HouseID: houseID,
			Period:  period,
			From:    first.Format("2006-01-02"),
			To:      to.Format("2006-01-02"),
			ByType:  map[string]float64{},
		}
		for _, r := range rows {
			i, ok := index[r.Bucket.Format("2006-01-02")]
			if !ok {
				continue
			}
			p := &points[i]
			p.ByType[r.FundingType] = funding.Round2(p.ByType[r.FundingType] + r.Total)
			p.Total = funding.Round2(p.Total + r.Total)
			resp.ByType[r.FundingType] = funding.Round2(resp.ByType[r.FundingType] + r.Total)
			resp.GrandTotal = funding.Round2(resp.GrandTotal + r.Total)
		}
		resp.Points = points

		return respond.OK(c, resp)
	}
}

// houseFilter resolves the house a dashboard is limited to: the manager's
// own house, or the optional house_id query for admins.
func houseFilter(c *fiber.Ctx) (*uint, error) {
	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, err
	}
	houseID, err := respond.QueryUint(c, "house_id")
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if houseID != nil && *houseID != *scope {
			return nil, fiber.NewError(fiber.StatusForbidden, "this record belongs to another house")
		}
		return scope, nil
	}
	return houseID, nil
}
