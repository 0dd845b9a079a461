package suppliers

import (
	"fmt"
	"strings"

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

type CreateSupplierRequest struct {
	Name     string `json:"name" validate:"required,max=150"`
	ABN      string `json:"abn" validate:"abn"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"max=50"`
	Category string `json:"category" validate:"max=50"`
	IsActive *bool  `json:"is_active"`
}

type UpdateSupplierRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=150"`
	ABN      *string `json:"abn" validate:"omitempty,abn"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,max=50"`
	Category *string `json:"category" validate:"omitempty,max=50"`
	IsActive *bool   `json:"is_active"`
}

type DeleteResponse struct {
	Deactivated bool             `json:"deactivated"`
	Supplier    *models.Supplier `json:"supplier"`
}

// Check returns a validation error when supplierID does not name an active
// supplier.
func Check(db *gorm.DB, supplierID *uint) error {
	if supplierID == nil {
		return nil
	}
	var s models.Supplier
	if err := db.First(&s, *supplierID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return respond.Invalid("supplier_id", "supplier not found")
		}
		return respond.Internal("could not load supplier", err)
	}
	if !s.IsActive {
		return respond.Invalid("supplier_id", "supplier is inactive")
	}
	return nil
}

func find(c *fiber.Ctx) (*models.Supplier, error) {
	id, err := respond.ParamID(c)
	if err != nil {
		return nil, err
	}
	var s models.Supplier
	if err := database.DB.First(&s, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "supplier not found")
	}
	return &s, nil
}

// -------------------------
// Supplier CRUD
// -------------------------

// POST /api/suppliers
func CreateSupplierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateSupplierRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		s := models.Supplier{
			Name:     strings.TrimSpace(body.Name),
			ABN:      body.ABN,
			Email:    strings.ToLower(strings.TrimSpace(body.Email)),
			Phone:    strings.TrimSpace(body.Phone),
			Category: strings.ToLower(strings.TrimSpace(body.Category)),
			IsActive: true,
		}
		if err := database.DB.Create(&s).Error; err != nil {
			return respond.Internal("could not create supplier", err)
		}
		// is_active has a column default, so false is only written by an update
		if body.IsActive != nil && !*body.IsActive {
			if err := database.DB.Model(&s).Update("is_active", false).Error; err != nil {
				return respond.Internal("could not create supplier", err)
			}
			s.IsActive = false
		}

		audit.Record(c, "supplier", s.ID, models.AuditActionCreate,
			fmt.Sprintf("Supplier created: %s", s.Name), nil, s)
		return respond.Created(c, s)
	}
}

// GET /api/suppliers?category=&active=&search=
func ListSuppliersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)
		dbq := database.DB.Model(&models.Supplier{})
		if cat := c.Query("category"); cat != "" {
			dbq = dbq.Where("category = ?", strings.ToLower(cat))
		}
		switch c.Query("active") {
		case "":
		case "true", "1":
			dbq = dbq.Where("is_active = ?", true)
		case "false", "0":
			dbq = dbq.Where("is_active = ?", false)
		default:
			return respond.Invalid("active", "must be true or false")
		}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			like := "%" + search + "%"
			dbq = dbq.Where("name ILIKE ? OR abn LIKE ?", like, like)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count suppliers", err)
		}
		var out []models.Supplier
		if err := page.Apply(dbq).Order("name asc").Find(&out).Error; err != nil {
			return respond.Internal("could not list suppliers", err)
		}
		return respond.List(c, out, page, total)
	}
}

// GET /api/suppliers/:id
func GetSupplierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := find(c)
		if err != nil {
			return err
		}
		return respond.OK(c, s)
	}
}

// PUT /api/suppliers/:id
func UpdateSupplierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := find(c)
		if err != nil {
			return err
		}
		var body UpdateSupplierRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *s
		if body.Name != nil {
			s.Name = strings.TrimSpace(*body.Name)
		}
		if body.ABN != nil {
			s.ABN = *body.ABN
		}
		if body.Email != nil {
			s.Email = strings.ToLower(strings.TrimSpace(*body.Email))
		}
		if body.Phone != nil {
			s.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Category != nil {
			s.Category = strings.ToLower(strings.TrimSpace(*body.Category))
		}
		if body.IsActive != nil {
			s.IsActive = *body.IsActive
		}

		if err := database.DB.Save(s).Error; err != nil {
			return respond.Internal("could not update supplier", err)
		}

		audit.Record(c, "supplier", s.ID, models.AuditActionUpdate,
			fmt.Sprintf("Supplier updated: %s", s.Name), before, s)
		return respond.OK(c, s)
	}
}

// DELETE /api/suppliers/:id
// Suppliers with expenses are deactivated instead.
func DeleteSupplierHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := find(c)
		if err != nil {
			return err
		}

		n, err := expenseCount(database.DB, s.ID)
		if err != nil {
			return respond.Internal("could not check expenses", err)
		}

		if n > 0 {
			before := *s
			s.IsActive = false
			if err := database.DB.Model(s).Update("is_active", false).Error; err != nil {
				return respond.Internal("could not deactivate supplier", err)
			}
			audit.Record(c, "supplier", s.ID, models.AuditActionUpdate,
				fmt.Sprintf("Supplier deactivated: %s (%d expenses)", s.Name, n), before, s)
			return respond.OK(c, DeleteResponse{Deactivated: true, Supplier: s})
		}

		if err := database.DB.Delete(&models.Supplier{}, s.ID).Error; err != nil {
			return respond.Internal("could not delete supplier", err)
		}
		audit.Record(c, "supplier", s.ID, models.AuditActionDelete,
			fmt.Sprintf("Supplier deleted: %s", s.Name), s, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
