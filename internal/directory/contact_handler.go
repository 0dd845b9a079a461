package directory

import (
	"fmt"
	"strings"

	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/models"
	"housing-backend/internal/residents"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
)

type ContactRequest struct {
	Name       string `json:"name" validate:"required,max=150"`
	Type       string `json:"type" validate:"required,oneof=family guardian support_coordinator medical other"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone" validate:"max=50"`
	ResidentID *uint  `json:"resident_id"`
	HouseID    *uint  `json:"house_id"`
	Notes      string `json:"notes" validate:"max=1000"`
}

// checkLinks verifies the contact's resident and house exist and are within
// the user's scope.
func checkLinks(c *fiber.Ctx, residentID, houseID *uint) error {
	if residentID != nil {
		if _, err := residents.FindAccessible(c, *residentID); err != nil {
			return err
		}
	}
	if houseID != nil {
		if err := auth.CanAccessHouse(c, *houseID); err != nil {
			return err
		}
		var n int64
		if err := database.DB.Model(&models.House{}).Where("id = ?", *houseID).Count(&n).Error; err != nil {
			return respond.Internal("could not check house", err)
		}
		if n == 0 {
			return respond.Invalid("house_id", "house not found")
		}
	}
	if residentID == nil && houseID == nil {
		scope, err := auth.HouseScope(c)
		if err != nil {
			return err
		}
		if scope != nil {
			return respond.Invalid("house_id", "house managers must link contacts to a resident or house")
		}
	}
	return nil
}

func findContact(c *fiber.Ctx) (*models.Contact, error) {
	id, err := respond.ParamID(c)
	if err != nil {
		return nil, err
	}
	var ct models.Contact
	if err := database.DB.First(&ct, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "contact not found")
	}

	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if ct.HouseID == nil && ct.ResidentID == nil {
			return nil, fiber.NewError(fiber.StatusForbidden, "this record belongs to another house")
		}
		if err := checkLinks(c, ct.ResidentID, ct.HouseID); err != nil {
			return nil, err
		}
	}
	return &ct, nil
}

func (r ContactRequest) apply(ct *models.Contact) {
	ct.Name = strings.TrimSpace(r.Name)
	ct.Type = models.ContactType(r.Type)
	ct.Email = strings.ToLower(strings.TrimSpace(r.Email))
	ct.Phone = strings.TrimSpace(r.Phone)
	ct.ResidentID = r.ResidentID
	ct.HouseID = r.HouseID
	ct.Notes = r.Notes
}

// POST /api/contacts
func CreateContactHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ContactRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		if err := checkLinks(c, body.ResidentID, body.HouseID); err != nil {
			return err
		}

		var ct models.Contact
		body.apply(&ct)
		if err := database.DB.Create(&ct).Error; err != nil {
			return respond.Internal("could not create contact", err)
		}

		audit.Record(c, "contact", ct.ID, models.AuditActionCreate,
			fmt.Sprintf("Contact created: %s (%s)", ct.Name, ct.Type), nil, ct)
		return respond.Created(c, ct)
	}
}

// GET /api/contacts?resident_id=&house_id=&type=&search=
func ListContactsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.HouseScope(c)
		if err != nil {
			return err
		}
		page := respond.ParsePage(c)

		dbq := database.DB.Model(&models.Contact{})
		if scope != nil {
			dbq = dbq.Where("house_id = ? OR resident_id IN (?)", *scope, residents.InHouse(database.DB, *scope))
		}
		for _, key := range []string{"resident_id", "house_id"} {
			v, err := respond.QueryUint(c, key)
			if err != nil {
				return err
			}
			if v != nil {
				dbq = dbq.Where(key+" = ?", *v)
			}
		}
		if typ := c.Query("type"); typ != "" {
			dbq = dbq.Where("type = ?", typ)
		}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			dbq = dbq.Where("name ILIKE ?", "%"+search+"%")
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count contacts", err)
		}
		var contacts []models.Contact
		if err := page.Apply(dbq).Order("name asc").Find(&contacts).Error; err != nil {
			return respond.Internal("could not list contacts", err)
		}
		return respond.List(c, contacts, page, total)
	}
}

// GET /api/contacts/:id
func GetContactHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ct, err := findContact(c)
		if err != nil {
			return err
		}
		return respond.OK(c, ct)
	}
}

// PUT /api/contacts/:id
func UpdateContactHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ct, err := findContact(c)
		if err != nil {
			return err
		}
		var body ContactRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		if err := checkLinks(c, body.ResidentID, body.HouseID); err != nil {
			return err
		}

		before := *ct
		body.apply(ct)
		if err := database.DB.Save(ct).Error; err != nil {
			return respond.Internal("could not update contact", err)
		}

		audit.Record(c, "contact", ct.ID, models.AuditActionUpdate,
			fmt.Sprintf("Contact updated: %s", ct.Name), before, ct)
		return respond.OK(c, ct)
	}
}

// DELETE /api/contacts/:id
func DeleteContactHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ct, err := findContact(c)
		if err != nil {
			return err
		}
		if err := database.DB.Delete(&models.Contact{}, ct.ID).Error; err != nil {
			return respond.Internal("could not delete contact", err)
		}

		audit.Record(c, "contact", ct.ID, models.AuditActionDelete,
			fmt.Sprintf("Contact deleted: %s", ct.Name), ct, nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
