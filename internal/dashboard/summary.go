// Package dashboard serves the aggregate figures of the landing page.
package dashboard

import (
	"time"

	"housing-backend/internal/database"
	"housing-backend/internal/funding"
	"housing-backend/internal/models"
	"housing-backend/internal/residents"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ClaimStatusTotal struct {
	Count int64   `json:"count"`
	Total float64 `json:"total"`
}

type SummaryResponse struct {
	HouseID            *uint                       `json:"house_id,omitempty"`
	Houses             int64                       `json:"houses"`
	Capacity           int64                       `json:"capacity"`
	ActiveResidents    int64                       `json:"active_residents"`
	OccupancyRate      float64                     `json:"occupancy_rate"` // percent
	ActiveContracts    int64                       `json:"active_contracts"`
	TotalBalance       float64                     `json:"total_balance"`
	DrawnThisMonth     float64                     `json:"drawn_this_month"`
	ClaimsByStatus     map[string]ClaimStatusTotal `json:"claims_by_status,omitempty"`
	UnpaidExpenses     int64                       `json:"unpaid_expenses"`
	UnpaidExpenseTotal float64                     `json:"unpaid_expense_total"`
}

// OccupancyRate is active residents over capacity as a percentage.
func OccupancyRate(active, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	return funding.Round2(float64(active) / float64(capacity) * 100)
}

func byResidentHouse(db *gorm.DB, houseID *uint) *gorm.DB {
	if houseID == nil {
		return db
	}
	return db.Where("resident_id IN (?)", residents.InHouse(database.DB, *houseID))
}

// GET /api/dashboard/summary?house_id=
// Claims span houses, so claim totals are only reported without a house filter.
func SummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		houseID, err := houseFilter(c)
		if err != nil {
			return err
		}
		resp := SummaryResponse{HouseID: houseID}

		var houses struct {
			Count    int64
			Capacity int64
		}
		hq := database.DB.Model(&models.House{}).
			Select("COUNT(*) AS count, COALESCE(SUM(capacity), 0) AS capacity").
			Where("status = ?", models.HouseStatusActive)
		if houseID != nil {
			hq = hq.Where("id = ?", *houseID)
		}
		if err := hq.Scan(&houses).Error; err != nil {
			return respond.Internal("could not load houses", err)
		}
		resp.Houses, resp.Capacity = houses.Count, houses.Capacity

		rq := database.DB.Model(&models.Resident{}).Where("status = ?", models.ResidentStatusActive)
		if houseID != nil {
			rq = rq.Where("house_id = ?", *houseID)
		}
		if err := rq.Count(&resp.ActiveResidents).Error; err != nil {
			return respond.Internal("could not count residents", err)
		}
		resp.OccupancyRate = OccupancyRate(resp.ActiveResidents, resp.Capacity)

		var contracts struct {
			Count   int64
			Balance float64
		}
		cq := database.DB.Model(&models.FundingContract{}).
			Select("COUNT(*) AS count, COALESCE(SUM(current_balance), 0) AS balance").
			Where("status = ?", models.ContractStatusActive)
		if err := byResidentHouse(cq, houseID).Scan(&contracts).Error; err != nil {
			return respond.Internal("could not load contracts", err)
		}
		resp.ActiveContracts = contracts.Count
		resp.TotalBalance = funding.Round2(contracts.Balance)

		today := funding.DateOnly(time.Now())
		monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		tq := database.DB.Model(&models.Transaction{}).
			Select("COALESCE(SUM(amount), 0)").
			Where("drawdown_applied = ? AND service_date >= ? AND service_date <= ?",
				true, monthStart, monthStart.AddDate(0, 1, -1))
		if err := byResidentHouse(tq, houseID).Scan(&resp.DrawnThisMonth).Error; err != nil {
			return respond.Internal("could not load drawdowns", err)
		}
		resp.DrawnThisMonth = funding.Round2(resp.DrawnThisMonth)

		if houseID == nil {
			var rows []struct {
				Status string
				Count  int64
				Total  float64
			}
			if err := database.DB.Model(&models.Claim{}).
				Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS total").
				Group("status").
				Scan(&rows).Error; err != nil {
				return respond.Internal("could not load claims", err)
			}
			resp.ClaimsByStatus = make(map[string]ClaimStatusTotal, len(rows))
			for _, r := range rows {
				resp.ClaimsByStatus[r.Status] = ClaimStatusTotal{Count: r.Count, Total: funding.Round2(r.Total)}
			}
		}

		var expenses struct {
			Count int64
			Total float64
		}
		eq := database.DB.Model(&models.Expense{}).
			Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
			Where("status = ?", models.ExpenseStatusUnpaid)
		if houseID != nil {
			eq = eq.Where("house_id = ?", *houseID)
		}
		if err := eq.Scan(&expenses).Error; err != nil {
			return respond.Internal("could not load expenses", err)
		}
		resp.UnpaidExpenses = expenses.Count
		resp.UnpaidExpenseTotal = funding.Round2(expenses.Total)

		return respond.OK(c, resp)
	}
}
