package expense

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/funding"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"
	"housing-backend/internal/suppliers"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type CreateExpenseRequest struct {
	HouseID     *uint   `json:"house_id"`
	SupplierID  *uint   `json:"supplier_id"`
	Category    string  `json:"category" validate:"required,max=50"`
	ExpenseDate string  `json:"expense_date" validate:"required,date"`
	Amount      float64 `json:"amount" validate:"gt=0"`
	GSTAmount   float64 `json:"gst_amount" validate:"gte=0"`
	Description string  `json:"description" validate:"max=255"`
}

type UpdateExpenseRequest struct {
	HouseID     *uint    `json:"house_id"`
	SupplierID  *uint    `json:"supplier_id"`
	Category    *string  `json:"category" validate:"omitempty,min=1,max=50"`
	ExpenseDate *string  `json:"expense_date" validate:"omitempty,date"`
	Amount      *float64 `json:"amount" validate:"omitempty,gt=0"`
	GSTAmount   *float64 `json:"gst_amount" validate:"omitempty,gte=0"`
	Description *string  `json:"description" validate:"omitempty,max=255"`
}

type PayExpenseRequest struct {
	PaidDate *string `json:"paid_date" validate:"omitempty,date"`
}

type MonthlyExpenseSummaryItem struct {
	Category string  `json:"category"`
	Count    int64   `json:"count"`
	Total    float64 `json:"total"`
	GST      float64 `json:"gst"`
}

type MonthlyExpenseSummaryResponse struct {
	HouseID    *uint                       `json:"house_id,omitempty"`
	Year       int                         `json:"year"`
	Month      int                         `json:"month"`
	Items      []MonthlyExpenseSummaryItem `json:"items"`
	GrandTotal float64                     `json:"grand_total"`
	GSTTotal   float64                     `json:"gst_total"`
}

// -------------------------
// Helpers
// -------------------------

// resolveHouse picks the house an expense is booked against. House managers
// are pinned to their own house.
func resolveHouse(c *fiber.Ctx, requested *uint) (*uint, error) {
	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if requested != nil && *requested != *scope {
			return nil, fiber.NewError(fiber.StatusForbidden, "this record belongs to another house")
		}
		return scope, nil
	}
	if requested == nil {
		return nil, nil
	}
	var n int64
	if err := database.DB.Model(&models.House{}).Where("id = ?", *requested).Count(&n).Error; err != nil {
		return nil, respond.Internal("could not load house", err)
	}
	if n == 0 {
		return nil, respond.Invalid("house_id", "house not found")
	}
	return requested, nil
}

func checkGST(amount, gst float64) error {
	if gst > amount {
		return respond.Invalid("gst_amount", "must not exceed amount")
	}
	return nil
}

// findAccessible loads an expense the current user may see. Expenses without
// a house are visible to admins only.
func findAccessible(c *fiber.Ctx) (*models.Expense, error) {
	id, err := respond.ParamID(c)
	if err != nil {
		return nil, err
	}
	var e models.Expense
	if err := database.DB.First(&e, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "expense not found")
	}
	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, err
	}
	if scope != nil && (e.HouseID == nil || *e.HouseID != *scope) {
		return nil, fiber.NewError(fiber.StatusForbidden, "this record belongs to another house")
	}
	return &e, nil
}

// scoped applies the house filter of the request to an expenses query.
func scoped(c *fiber.Ctx, dbq *gorm.DB) (*gorm.DB, *uint, error) {
	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, nil, err
	}
	houseID, err := respond.QueryUint(c, "house_id")
	if err != nil {
		return nil, nil, err
	}
	if scope != nil {
		if houseID != nil && *houseID != *scope {
			return nil, nil, fiber.NewError(fiber.StatusForbidden, "this record belongs to another house")
		}
		houseID = scope
	}
	if houseID != nil {
		dbq = dbq.Where("house_id = ?", *houseID)
	}
	return dbq, houseID, nil
}

// -------------------------
// Expense CRUD
// -------------------------

// POST /api/expenses
func CreateExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateExpenseRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		if err := checkGST(body.Amount, body.GSTAmount); err != nil {
			return err
		}
		houseID, err := resolveHouse(c, body.HouseID)
		if err != nil {
			return err
		}
		if err := suppliers.Check(database.DB, body.SupplierID); err != nil {
			return err
		}
		date, _ := respond.ParseDate(body.ExpenseDate)

		e := models.Expense{
			HouseID:     houseID,
			SupplierID:  body.SupplierID,
			Category:    strings.ToLower(strings.TrimSpace(body.Category)),
			ExpenseDate: date,
			Amount:      funding.Round2(body.Amount),
			GSTAmount:   funding.Round2(body.GSTAmount),
			Description: strings.TrimSpace(body.Description),
			Status:      models.ExpenseStatusUnpaid,
		}
		if err := database.DB.Create(&e).Error; err != nil {
			return respond.Internal("could not create expense", err)
		}

		audit.Record(c, "expense", e.ID, models.AuditActionCreate,
			fmt.Sprintf("Expense created: %s %.2f", e.Category, e.Amount), nil, e)
		return respond.Created(c, e)
	}
}

// GET /api/expenses?house_id=&supplier_id=&category=&status=&from=&to=
func ListExpensesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)
		dbq, _, err := scoped(c, database.DB.Model(&models.Expense{}))
		if err != nil {
			return err
		}

		supplierID, err := respond.QueryUint(c, "supplier_id")
		if err != nil {
			return err
		}
		if supplierID != nil {
			dbq = dbq.Where("supplier_id = ?", *supplierID)
		}
		if cat := c.Query("category"); cat != "" {
			dbq = dbq.Where("category = ?", strings.ToLower(cat))
		}
		switch st := models.ExpenseStatus(c.Query("status")); st {
		case "":
		case models.ExpenseStatusUnpaid, models.ExpenseStatusPaid:
			dbq = dbq.Where("status = ?", st)
		default:
			return respond.Invalid("status", "must be unpaid or paid")
		}
		from, err := respond.QueryDate(c, "from")
		if err != nil {
			return err
		}
		to, err := respond.QueryDate(c, "to")
		if err != nil {
			return err
		}
		if from != nil {
			dbq = dbq.Where("expense_date >= ?", *from)
		}
		if to != nil {
			dbq = dbq.Where("expense_date <= ?", *to)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count expenses", err)
		}
		var out []models.Expense
		if err := page.Apply(dbq).Order("expense_date desc, id desc").Find(&out).Error; err != nil {
			return respond.Internal("could not list expenses", err)
		}
		return respond.List(c, out, page, total)
	}
}

// GET /api/expenses/:id
func GetExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := findAccessible(c)
		if err != nil {
			return err
		}
		return respond.OK(c, e)
	}
}

// PUT /api/expenses/:id
func UpdateExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := findAccessible(c)
		if err != nil {
			return err
		}
		var body UpdateExpenseRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *e
		if body.HouseID != nil {
			houseID, err := resolveHouse(c, body.HouseID)
			if err != nil {
				return err
			}
			e.HouseID = houseID
		}
		if body.SupplierID != nil && (e.SupplierID == nil || *e.SupplierID != *body.SupplierID) {
			if err := suppliers.Check(database.DB, body.SupplierID); err != nil {
				return err
			}
			e.SupplierID = body.SupplierID
		}
		if body.Category != nil {
			e.Category = strings.ToLower(strings.TrimSpace(*body.Category))
		}
		if body.ExpenseDate != nil {
			e.ExpenseDate, _ = respond.ParseDate(*body.ExpenseDate)
		}
		if body.Amount != nil {
			e.Amount = funding.Round2(*body.Amount)
		}
		if body.GSTAmount != nil {
			e.GSTAmount = funding.Round2(*body.GSTAmount)
		}
		if body.Description != nil {
			e.Description = strings.TrimSpace(*body.Description)
		}
		if err := checkGST(e.Amount, e.GSTAmount); err != nil {
			return err
		}

		if err := database.DB.Save(e).Error; err != nil {
			return respond.Internal("could not update expense", err)
		}

		audit.Record(c, "expense", e.ID, models.AuditActionUpdate,
			fmt.Sprintf("Expense updated: %s %.2f", e.Category, e.Amount), before, e)
		return respond.OK(c, e)
	}
}

// DELETE /api/expenses/:id
func DeleteExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := findAccessible(c)
		if err != nil {
			return err
		}
		if err := database.DB.Delete(&models.Expense{}, e.ID).Error; err != nil {
			return respond.Internal("could not delete expense", err)
		}
		audit.Record(c, "expense", e.ID, models.AuditActionDelete,
			fmt.Sprintf("Expense deleted: %s %.2f", e.Category, e.Amount), e, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// POST /api/expenses/:id/pay
func PayExpenseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		e, err := findAccessible(c)
		if err != nil {
			return err
		}
		var body PayExpenseRequest
		if len(c.Body()) > 0 {
			if err := respond.ParseBody(c, &body); err != nil {
				return err
			}
		}
		if e.Status == models.ExpenseStatusPaid {
			return fiber.NewError(fiber.StatusConflict, "expense is already paid")
		}

		paidAt := time.Now()
		if body.PaidDate != nil {
			paidAt, _ = respond.ParseDate(*body.PaidDate)
		}

		before := *e
		e.Status = models.ExpenseStatusPaid
		e.PaidAt = &paidAt
		if err := database.DB.Model(e).Updates(map[string]any{
			"status":  e.Status,
			"paid_at": paidAt,
		}).Error; err != nil {
			return respond.Internal("could not mark expense paid", err)
		}

		audit.Record(c, "expense", e.ID, models.AuditActionUpdate,
			fmt.Sprintf("Expense paid: %s %.2f", e.Category, e.Amount), before, e)
		return respond.OK(c, e)
	}
}

// -------------------------
// Monthly summary
// -------------------------

// GET /api/expenses/summary/monthly?year=&month=&house_id=
func MonthlyExpenseSummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		yearStr := c.Query("year")
		monthStr := c.Query("month")
		if yearStr == "" || monthStr == "" {
			return fiber.NewError(fiber.StatusBadRequest, "year and month are required")
		}
		year, err := strconv.Atoi(yearStr)
		if err != nil || year < 2000 || year > 9999 {
			return respond.Invalid("year", "invalid year")
		}
		month, err := strconv.Atoi(monthStr)
		if err != nil || month < 1 || month > 12 {
			return respond.Invalid("month", "must be between 1 and 12")
		}

		dbq, houseID, err := scoped(c, database.DB.Model(&models.Expense{}))
		if err != nil {
			return err
		}

		firstDay := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		lastDay := firstDay.AddDate(0, 1, -1)

		type row struct {
			Category string  `gorm:"column:category"`
			Count    int64   `gorm:"column:count"`
			Total    float64 `gorm:"column:total"`
			GST      float64 `gorm:"column:gst"`
		}
		var rows []row
		if err := dbq.
			Select("category, COUNT(*) as count, SUM(amount) as total, SUM(gst_amount) as gst").
			Where("expense_date >= ? AND expense_date <= ?", firstDay, lastDay).
			Group("category").
			Order("category").
			Scan(&rows).Error; err != nil {
			return respond.Internal("could not summarise expenses", err)
		}

		resp := MonthlyExpenseSummaryResponse{
			HouseID: houseID,
			Year:    year,
			Month:   month,
			Items:   make([]MonthlyExpenseSummaryItem, 0, len(rows)),
		}
		for _, r := range rows {
			resp.Items = append(resp.Items, MonthlyExpenseSummaryItem{
				Category: r.Category,
				Count:    r.Count,
				Total:    funding.Round2(r.Total),
				GST:      funding.Round2(r.GST),
			})
			resp.GrandTotal += r.Total
			resp.GSTTotal += r.GST
		}
		resp.GrandTotal = funding.Round2(resp.GrandTotal)
		resp.GSTTotal = funding.Round2(resp.GSTTotal)

		return respond.OK(c, resp)
	}
}
