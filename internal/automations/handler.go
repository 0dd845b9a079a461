package automations

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"housing-backend/internal/audit"
	"housing-backend/internal/database"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type CreateAutomationRequest struct {
	Name              string  `json:"name" validate:"required,max=150"`
	Type              string  `json:"type" validate:"required,oneof=recurring_transaction contract_billing"`
	IsEnabled         *bool   `json:"is_enabled"`
	Frequency         string  `json:"frequency" validate:"required,oneof=daily weekly monthly cron"`
	DayOfWeek         *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	DayOfMonth        *int    `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	TimeOfDay         string  `json:"time_of_day" validate:"omitempty,timeofday"`
	CronExpression    string  `json:"cron_expression" validate:"max=100"`
	Timezone          string  `json:"timezone" validate:"max=50"`
	ContractID        *uint   `json:"contract_id"`
	Quantity          float64 `json:"quantity" validate:"gte=0"`
	UnitPrice         float64 `json:"unit_price" validate:"gte=0"`
	SupportItemNumber string  `json:"support_item_number" validate:"max=30"`
	Description       string  `json:"description" validate:"max=500"`
	AutoPost          bool    `json:"auto_post"`
}

type UpdateAutomationRequest struct {
	Name              *string  `json:"name" validate:"omitempty,min=1,max=150"`
	IsEnabled         *bool    `json:"is_enabled"`
	Frequency         *string  `json:"frequency" validate:"omitempty,oneof=daily weekly monthly cron"`
	DayOfWeek         *int     `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	DayOfMonth        *int     `json:"day_of_month" validate:"omitempty,min=1,max=31"`
	TimeOfDay         *string  `json:"time_of_day" validate:"omitempty,timeofday"`
	CronExpression    *string  `json:"cron_expression" validate:"omitempty,max=100"`
	Timezone          *string  `json:"timezone" validate:"omitempty,max=50"`
	ContractID        *uint    `json:"contract_id"`
	Quantity          *float64 `json:"quantity" validate:"omitempty,gte=0"`
	UnitPrice         *float64 `json:"unit_price" validate:"omitempty,gte=0"`
	SupportItemNumber *string  `json:"support_item_number" validate:"omitempty,max=30"`
	Description       *string  `json:"description" validate:"omitempty,max=500"`
	AutoPost          *bool    `json:"auto_post"`
}

const defaultTimezone = "Australia/Sydney"

// -------------------------
// Helpers
// -------------------------

func find(c *fiber.Ctx) (*models.Automation, error) {
	id, err := respond.ParamID(c)
	if err != nil {
		return nil, err
	}
	var a models.Automation
	if err := database.DB.First(&a, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "automation not found")
	}
	return &a, nil
}

// checkTemplate validates the transaction template of recurring automations.
func checkTemplate(a *models.Automation) error {
	if a.Type != models.AutomationRecurringTransaction {
		return nil
	}
	if a.ContractID == nil {
		return respond.Invalid("contract_id", "is required for recurring transactions")
	}
	if a.Quantity <= 0 {
		return respond.Invalid("quantity", "must be greater than zero")
	}
	var fc models.FundingContract
	if err := database.DB.First(&fc, *a.ContractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respond.Invalid("contract_id", "contract not found")
		}
		return respond.Internal("could not load contract", err)
	}
	if fc.Status == models.ContractStatusCancelled || fc.Status == models.ContractStatusExpired {
		return respond.Invalid("contract_id", fmt.Sprintf("contract is %s", fc.Status))
	}
	if a.UnitPrice <= 0 && fc.UnitPrice <= 0 {
		return respond.Invalid("unit_price", "is required when the contract has no unit price")
	}
	return nil
}

// schedule validates a and sets its next run time.
func schedule(a *models.Automation, now time.Time) error {
	next, err := NextRun(a, now)
	if err != nil {
		return err
	}
	a.NextRunAt = &next
	return nil
}

// -------------------------
// Automation CRUD
// -------------------------

// POST /api/automations
func CreateAutomationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateAutomationRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		a := models.Automation{
			Name:              strings.TrimSpace(body.Name),
			Type:              models.AutomationType(body.Type),
			IsEnabled:         true,
			Frequency:         models.Frequency(body.Frequency),
			DayOfWeek:         body.DayOfWeek,
			DayOfMonth:        body.DayOfMonth,
			TimeOfDay:         body.TimeOfDay,
			CronExpression:    strings.TrimSpace(body.CronExpression),
			Timezone:          strings.TrimSpace(body.Timezone),
			ContractID:        body.ContractID,
			Quantity:          body.Quantity,
			UnitPrice:         body.UnitPrice,
			SupportItemNumber: strings.TrimSpace(body.SupportItemNumber),
			Description:       strings.TrimSpace(body.Description),
			AutoPost:          body.AutoPost,
		}
		if a.TimeOfDay == "" {
			a.TimeOfDay = "00:00"
		}
		if a.Timezone == "" {
			a.Timezone = defaultTimezone
		}
		if err := schedule(&a, time.Now()); err != nil {
			return err
		}
		if err := checkTemplate(&a); err != nil {
			return err
		}

		if err := database.DB.Create(&a).Error; err != nil {
			return respond.Internal("could not create automation", err)
		}
		if body.IsEnabled != nil && !*body.IsEnabled {
			if err := database.DB.Model(&a).Update("is_enabled", false).Error; err != nil {
				return respond.Internal("could not create automation", err)
			}
			a.IsEnabled = false
		}

		audit.Record(c, "automation", a.ID, models.AuditActionCreate,
			fmt.Sprintf("Automation created: %s (%s, %s)", a.Name, a.Type, a.Frequency), nil, a)
		return respond.Created(c, a)
	}
}

// GET /api/automations?type=&enabled=
func ListAutomationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)
		dbq := database.DB.Model(&models.Automation{})
		if t := c.Query("type"); t != "" {
			dbq = dbq.Where("type = ?", t)
		}
		switch c.Query("enabled") {
		case "":
		case "true", "1":
			dbq = dbq.Where("is_enabled = ?", true)
		case "false", "0":
			dbq = dbq.Where("is_enabled = ?", false)
		default:
			return respond.Invalid("enabled", "must be true or false")
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count automations", err)
		}
		var out []models.Automation
		if err := page.Apply(dbq).Order("name asc").Find(&out).Error; err != nil {
			return respond.Internal("could not list automations", err)
		}
		return respond.List(c, out, page, total)
	}
}

// GET /api/automations/:id
func GetAutomationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := find(c)
		if err != nil {
			return err
		}
		return respond.OK(c, a)
	}
}

// PUT /api/automations/:id
func UpdateAutomationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := find(c)
		if err != nil {
			return err
		}
		var body UpdateAutomationRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *a
		// only edited columns are written; the runner owns last_run_at
		updates := map[string]any{}
		if body.Name != nil {
			a.Name = strings.TrimSpace(*body.Name)
			updates["name"] = a.Name
		}
		if body.IsEnabled != nil {
			a.IsEnabled = *body.IsEnabled
			updates["is_enabled"] = a.IsEnabled
		}
		if body.Frequency != nil {
			a.Frequency = models.Frequency(*body.Frequency)
			updates["frequency"] = a.Frequency
		}
		if body.DayOfWeek != nil {
			a.DayOfWeek = body.DayOfWeek
			updates["day_of_week"] = *body.DayOfWeek
		}
		if body.DayOfMonth != nil {
			a.DayOfMonth = body.DayOfMonth
			updates["day_of_month"] = *body.DayOfMonth
		}
		if body.TimeOfDay != nil {
			a.TimeOfDay = *body.TimeOfDay
			updates["time_of_day"] = a.TimeOfDay
		}
		if body.CronExpression != nil {
			a.CronExpression = strings.TrimSpace(*body.CronExpression)
			updates["cron_expression"] = a.CronExpression
		}
		if body.Timezone != nil {
			a.Timezone = strings.TrimSpace(*body.Timezone)
			updates["timezone"] = a.Timezone
		}
		if body.ContractID != nil {
			a.ContractID = body.ContractID
			updates["contract_id"] = *body.ContractID
		}
		if body.Quantity != nil {
			a.Quantity = *body.Quantity
			updates["quantity"] = a.Quantity
		}
		if body.UnitPrice != nil {
			a.UnitPrice = *body.UnitPrice
			updates["unit_price"] = a.UnitPrice
		}
		if body.SupportItemNumber != nil {
			a.SupportItemNumber = strings.TrimSpace(*body.SupportItemNumber)
			updates["support_item_number"] = a.SupportItemNumber
		}
		if body.Description != nil {
			a.Description = strings.TrimSpace(*body.Description)
			updates["description"] = a.Description
		}
		if body.AutoPost != nil {
			a.AutoPost = *body.AutoPost
			updates["auto_post"] = a.AutoPost
		}

		if err := schedule(a, time.Now()); err != nil {
			return err
		}
		if err := checkTemplate(a); err != nil {
			return err
		}
		updates["next_run_at"] = a.NextRunAt

		if err := database.DB.Model(&models.Automation{ID: a.ID}).Updates(updates).Error; err != nil {
			return respond.Internal("could not update automation", err)
		}

		audit.Record(c, "automation", a.ID, models.AuditActionUpdate,
			fmt.Sprintf("Automation updated: %s", a.Name), before, a)
		return respond.OK(c, a)
	}
}

// DELETE /api/automations/:id
// Transactions it created are kept and lose the link.
func DeleteAutomationHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := find(c)
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Transaction{}).
				Where("automation_id = ?", a.ID).
				Update("automation_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("automation_id = ?", a.ID).Delete(&models.AutomationRun{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.Automation{}, a.ID).Error
		})
		if err != nil {
			return respond.Internal("could not delete automation", err)
		}

		audit.Record(c, "automation", a.ID, models.AuditActionDelete,
			fmt.Sprintf("Automation deleted: %s", a.Name), a, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// -------------------------
// Runs
// -------------------------

// POST /api/automations/:id/run
// Runs regardless of schedule and enabled flag.
func RunAutomationHandler(r *Runner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := find(c)
		if err != nil {
			return err
		}
		if err := ValidateConfig(a); err != nil {
			return err
		}

		run, err := r.Execute(a)
		if errors.Is(err, ErrAlreadyRunning) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return respond.Internal("could not run automation", err)
		}
		return respond.OK(c, run)
	}
}

// GET /api/automations/:id/runs
func ListRunsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := find(c)
		if err != nil {
			return err
		}
		page := respond.ParsePage(c)
		dbq := database.DB.Model(&models.AutomationRun{}).Where("automation_id = ?", a.ID)

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count runs", err)
		}
		var out []models.AutomationRun
		if err := page.Apply(dbq).Order("started_at desc").Find(&out).Error; err != nil {
			return respond.Internal("could not list runs", err)
		}
		return respond.List(c, out, page, total)
	}
}
