package houses

import (
	"fmt"
	"strings"

	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type CreateHouseRequest struct {
	Name     string `json:"name" validate:"required,max=150"`
	Address  string `json:"address" validate:"max=255"`
	Suburb   string `json:"suburb" validate:"max=100"`
	State    string `json:"state" validate:"omitempty,oneof=NSW VIC QLD SA WA TAS NT ACT"`
	Postcode string `json:"postcode" validate:"omitempty,len=4,numeric"`
	Capacity int    `json:"capacity" validate:"required,gte=1,lte=50"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
	OwnerID  *uint  `json:"owner_id"`
	Notes    string `json:"notes" validate:"max=1000"`
}

type UpdateHouseRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=150"`
	Address  *string `json:"address" validate:"omitempty,max=255"`
	Suburb   *string `json:"suburb" validate:"omitempty,max=100"`
	State    *string `json:"state" validate:"omitempty,oneof=NSW VIC QLD SA WA TAS NT ACT"`
	Postcode *string `json:"postcode" validate:"omitempty,len=4,numeric"`
	Capacity *int    `json:"capacity" validate:"omitempty,gte=1,lte=50"`
	Status   *string `json:"status" validate:"omitempty,oneof=active inactive"`
	OwnerID  *uint   `json:"owner_id"`
	Notes    *string `json:"notes" validate:"omitempty,max=1000"`
}

type HouseResponse struct {
	models.House
	Occupancy int64 `json:"occupancy"` // active residents
	Vacancies int64 `json:"vacancies"`
}

func toResponse(h models.House, occupancy int64) HouseResponse {
	vacancies := int64(h.Capacity) - occupancy
	if vacancies < 0 {
		vacancies = 0
	}
	return HouseResponse{House: h, Occupancy: occupancy, Vacancies: vacancies}
}

// -------------------------
// Helpers
// -------------------------

// ActiveResidentCount counts residents currently living in a house.
func ActiveResidentCount(db *gorm.DB, houseID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Resident{}).
		Where("house_id = ? AND status = ?", houseID, models.ResidentStatusActive).
		Count(&n).Error
	return n, err
}

func occupancyByHouse(ids []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	type row struct {
		HouseID uint  `gorm:"column:house_id"`
		Total   int64 `gorm:"column:total"`
	}
	var rows []row
	if err := database.DB.Model(&models.Resident{}).
		Select("house_id, COUNT(*) AS total").
		Where("house_id IN ? AND status = ?", ids, models.ResidentStatusActive).
		Group("house_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.HouseID] = r.Total
	}
	return out, nil
}

func checkOwner(ownerID *uint) error {
	if ownerID == nil {
		return nil
	}
	var n int64
	if err := database.DB.Model(&models.Owner{}).Where("id = ?", *ownerID).Count(&n).Error; err != nil {
		return respond.Internal("could not check owner", err)
	}
	if n == 0 {
		return respond.Invalid("owner_id", "owner not found")
	}
	return nil
}

// -------------------------
// House CRUD
// -------------------------

// POST /api/houses
func CreateHouseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateHouseRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		if err := checkOwner(body.OwnerID); err != nil {
			return err
		}

		house := models.House{
			Name:     strings.TrimSpace(body.Name),
			Address:  strings.TrimSpace(body.Address),
			Suburb:   strings.TrimSpace(body.Suburb),
			State:    body.State,
			Postcode: body.Postcode,
			Capacity: body.Capacity,
			Status:   models.HouseStatusActive,
			OwnerID:  body.OwnerID,
			Notes:    body.Notes,
		}
		if body.Status != "" {
			house.Status = models.HouseStatus(body.Status)
		}

		if err := database.DB.Create(&house).Error; err != nil {
			return respond.Internal("could not create house", err)
		}

		audit.Record(c, "house", house.ID, models.AuditActionCreate,
			fmt.Sprintf("House created: %s", house.Name), nil, house)

		return respond.Created(c, toResponse(house, 0))
	}
}

// GET /api/houses?status=active&search=banksia&page=1&page_size=20
func ListHousesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.HouseScope(c)
		if err != nil {
			return err
		}
		page := respond.ParsePage(c)

		dbq := database.DB.Model(&models.House{})
		if scope != nil {
			dbq = dbq.Where("id = ?", *scope)
		}
		if status := c.Query("status"); status != "" {
			dbq = dbq.Where("status = ?", status)
		}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			like := "%" + search + "%"
			dbq = dbq.Where("name ILIKE ? OR address ILIKE ? OR suburb ILIKE ?", like, like, like)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count houses", err)
		}

		var houses []models.House
		if err := page.Apply(dbq).Order("name asc").Find(&houses).Error; err != nil {
			return respond.Internal("could not list houses", err)
		}

		ids := make([]uint, 0, len(houses))
		for _, h := range houses {
			ids = append(ids, h.ID)
		}
		occ, err := occupancyByHouse(ids)
		if err != nil {
			return respond.Internal("could not load occupancy", err)
		}

		resp := make([]HouseResponse, 0, len(houses))
		for _, h := range houses {
			resp = append(resp, toResponse(h, occ[h.ID]))
		}
		return respond.List(c, resp, page, total)
	}
}

// GET /api/houses/:id
func GetHouseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		if err := auth.CanAccessHouse(c, id); err != nil {
			return err
		}

		var house models.House
		if err := database.DB.First(&house, id).Error; err != nil {
			return respond.NotFoundOr(err, "house not found")
		}
		occupancy, err := ActiveResidentCount(database.DB, house.ID)
		if err != nil {
			return respond.Internal("could not load occupancy", err)
		}
		return respond.OK(c, toResponse(house, occupancy))
	}
}

// PUT /api/houses/:id
func UpdateHouseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		if err := auth.CanAccessHouse(c, id); err != nil {
			return err
		}

		var house models.House
		if err := database.DB.First(&house, id).Error; err != nil {
			return respond.NotFoundOr(err, "house not found")
		}

		var body UpdateHouseRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := house
		occupancy, err := ActiveResidentCount(database.DB, house.ID)
		if err != nil {
			return respond.Internal("could not load occupancy", err)
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return respond.Invalid("name", "is required")
			}
			house.Name = name
		}
		if body.Address != nil {
			house.Address = strings.TrimSpace(*body.Address)
		}
		if body.Suburb != nil {
			house.Suburb = strings.TrimSpace(*body.Suburb)
		}
		if body.State != nil {
			house.State = *body.State
		}
		if body.Postcode != nil {
			house.Postcode = *body.Postcode
		}
		if body.Capacity != nil {
			if int64(*body.Capacity) < occupancy {
				return respond.Invalid("capacity", fmt.Sprintf("cannot be below current occupancy (%d)", occupancy))
			}
			house.Capacity = *body.Capacity
		}
		if body.Status != nil {
			if *body.Status == string(models.HouseStatusInactive) && occupancy > 0 {
				return fiber.NewError(fiber.StatusConflict, "house still has active residents")
			}
			house.Status = models.HouseStatus(*body.Status)
		}
		if body.OwnerID != nil {
			if err := checkOwner(body.OwnerID); err != nil {
				return err
			}
			house.OwnerID = body.OwnerID
		}
		if body.Notes != nil {
			house.Notes = *body.Notes
		}

		if err := database.DB.Save(&house).Error; err != nil {
			return respond.Internal("could not update house", err)
		}

		audit.Record(c, "house", house.ID, models.AuditActionUpdate,
			fmt.Sprintf("House updated: %s", house.Name), before, house)

		return respond.OK(c, toResponse(house, occupancy))
	}
}

// DELETE /api/houses/:id
func DeleteHouseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}

		var house models.House
		if err := database.DB.First(&house, id).Error; err != nil {
			return respond.NotFoundOr(err, "house not found")
		}

		occupancy, err := ActiveResidentCount(database.DB, house.ID)
		if err != nil {
			return respond.Internal("could not load occupancy", err)
		}
		if occupancy > 0 {
			return fiber.NewError(fiber.StatusConflict, "house still has active residents")
		}

		if err := database.DB.Delete(&models.House{}, house.ID).Error; err != nil {
			return respond.Internal("could not delete house", err)
		}

		audit.Record(c, "house", house.ID, models.AuditActionDelete,
			fmt.Sprintf("House deleted: %s", house.Name), house, nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/houses/:id/residents
func ListHouseResidentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		if err := auth.CanAccessHouse(c, id); err != nil {
			return err
		}

		dbq := database.DB.Where("house_id = ?", id)
		if status := c.Query("status"); status != "" {
			dbq = dbq.Where("status = ?", status)
		}

		var residents []models.Resident
		if err := dbq.Order("last_name asc, first_name asc").Find(&residents).Error; err != nil {
			return respond.Internal("could not list residents", err)
		}
		return respond.OK(c, residents)
	}
}
