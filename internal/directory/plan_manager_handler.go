package directory

import (
	"fmt"
	"strings"

	"housing-backend/internal/audit"
	"housing-backend/internal/database"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
)

type PlanManagerRequest struct {
	Name         string `json:"name" validate:"required,max=150"`
	Organisation string `json:"organisation" validate:"max=150"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone" validate:"max=50"`
	InvoiceEmail string `json:"invoice_email" validate:"omitempty,email"`
}

func (r PlanManagerRequest) apply(pm *models.PlanManager) {
	pm.Name = strings.TrimSpace(r.Name)
	pm.Organisation = strings.TrimSpace(r.Organisation)
	pm.Email = strings.ToLower(strings.TrimSpace(r.Email))
	pm.Phone = strings.TrimSpace(r.Phone)
	pm.InvoiceEmail = strings.ToLower(strings.TrimSpace(r.InvoiceEmail))
}

func findPlanManager(c *fiber.Ctx) (*models.PlanManager, error) {
	id, err := respond.ParamID(c)
	if err != nil {
		return nil, err
	}
	var pm models.PlanManager
	if err := database.DB.First(&pm, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "plan manager not found")
	}
	return &pm, nil
}

// POST /api/plan-managers
func CreatePlanManagerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body PlanManagerRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		var pm models.PlanManager
		body.apply(&pm)
		if err := database.DB.Create(&pm).Error; err != nil {
			return respond.Internal("could not create plan manager", err)
		}

		audit.Record(c, "plan_manager", pm.ID, models.AuditActionCreate,
			fmt.Sprintf("Plan manager created: %s", pm.Name), nil, pm)
		return respond.Created(c, pm)
	}
}

// GET /api/plan-managers?search=
func ListPlanManagersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)
		dbq := database.DB.Model(&models.PlanManager{})
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			like := "%" + search + "%"
			dbq = dbq.Where("name ILIKE ? OR organisation ILIKE ?", like, like)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count plan managers", err)
		}
		var pms []models.PlanManager
		if err := page.Apply(dbq).Order("name asc").Find(&pms).Error; err != nil {
			return respond.Internal("could not list plan managers", err)
		}
		return respond.List(c, pms, page, total)
	}
}

// GET /api/plan-managers/:id
func GetPlanManagerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		pm, err := findPlanManager(c)
		if err != nil {
			return err
		}
		return respond.OK(c, pm)
	}
}

// PUT /api/plan-managers/:id
func UpdatePlanManagerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		pm, err := findPlanManager(c)
		if err != nil {
			return err
		}
		var body PlanManagerRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *pm
		body.apply(pm)
		if err := database.DB.Save(pm).Error; err != nil {
			return respond.Internal("could not update plan manager", err)
		}

		audit.Record(c, "plan_manager", pm.ID, models.AuditActionUpdate,
			fmt.Sprintf("Plan manager updated: %s", pm.Name), before, pm)
		return respond.OK(c, pm)
	}
}

// DELETE /api/plan-managers/:id
func DeletePlanManagerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		pm, err := findPlanManager(c)
		if err != nil {
			return err
		}

		n, err := assignedResidents(database.DB, pm.ID)
		if err != nil {
			return respond.Internal("could not check residents", err)
		}
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("plan manager is assigned to %d resident(s)", n))
		}

		if err := database.DB.Delete(&models.PlanManager{}, pm.ID).Error; err != nil {
			return respond.Internal("could not delete plan manager", err)
		}

		audit.Record(c, "plan_manager", pm.ID, models.AuditActionDelete,
			fmt.Sprintf("Plan manager deleted: %s", pm.Name), pm, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
