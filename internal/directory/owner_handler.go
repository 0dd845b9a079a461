// Package directory holds the people and organisations around a house:
// owners, plan managers and contacts.
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

type OwnerRequest struct {
	Name    string `json:"name" validate:"required,max=150"`
	Company string `json:"company" validate:"max=150"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	ABN     string `json:"abn" validate:"abn"`
	Notes   string `json:"notes" validate:"max=1000"`
}

func (r OwnerRequest) apply(o *models.Owner) {
	o.Name = strings.TrimSpace(r.Name)
	o.Company = strings.TrimSpace(r.Company)
	o.Email = strings.ToLower(strings.TrimSpace(r.Email))
	o.Phone = strings.TrimSpace(r.Phone)
	o.ABN = r.ABN
	o.Notes = r.Notes
}

func findOwner(c *fiber.Ctx) (*models.Owner, error) {
	id, err := respond.ParamID(c)
	if err != nil {
		return nil, err
	}
	var o models.Owner
	if err := database.DB.First(&o, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "owner not found")
	}
	return &o, nil
}

// POST /api/owners
func CreateOwnerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body OwnerRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		var owner models.Owner
		body.apply(&owner)
		if err := database.DB.Create(&owner).Error; err != nil {
			return respond.Internal("could not create owner", err)
		}

		audit.Record(c, "owner", owner.ID, models.AuditActionCreate,
			fmt.Sprintf("Owner created: %s", owner.Name), nil, owner)
		return respond.Created(c, owner)
	}
}

// GET /api/owners?search=
func ListOwnersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)
		dbq := database.DB.Model(&models.Owner{})
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			like := "%" + search + "%"
			dbq = dbq.Where("name ILIKE ? OR company ILIKE ?", like, like)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count owners", err)
		}
		var owners []models.Owner
		if err := page.Apply(dbq).Order("name asc").Find(&owners).Error; err != nil {
			return respond.Internal("could not list owners", err)
		}
		return respond.List(c, owners, page, total)
	}
}

// GET /api/owners/:id
func GetOwnerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner, err := findOwner(c)
		if err != nil {
			return err
		}
		return respond.OK(c, owner)
	}
}

// PUT /api/owners/:id
func UpdateOwnerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner, err := findOwner(c)
		if err != nil {
			return err
		}
		var body OwnerRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *owner
		body.apply(owner)
		if err := database.DB.Save(owner).Error; err != nil {
			return respond.Internal("could not update owner", err)
		}

		audit.Record(c, "owner", owner.ID, models.AuditActionUpdate,
			fmt.Sprintf("Owner updated: %s", owner.Name), before, owner)
		return respond.OK(c, owner)
	}
}

// DELETE /api/owners/:id
func DeleteOwnerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner, err := findOwner(c)
		if err != nil {
			return err
		}

		n, err := ownedHouses(database.DB, owner.ID)
		if err != nil {
			return respond.Internal("could not check houses", err)
		}
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("owner still owns %d house(s)", n))
		}

		if err := database.DB.Delete(&models.Owner{}, owner.ID).Error; err != nil {
			return respond.Internal("could not delete owner", err)
		}

		audit.Record(c, "owner", owner.ID, models.AuditActionDelete,
			fmt.Sprintf("Owner deleted: %s", owner.Name), owner, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
