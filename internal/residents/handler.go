package residents

import (
	"fmt"
	"strings"
	"time"

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

type CreateResidentRequest struct {
	FirstName     string  `json:"first_name" validate:"required,max=100"`
	LastName      string  `json:"last_name" validate:"required,max=100"`
	NDISNumber    string  `json:"ndis_number" validate:"required,ndis"`
	DateOfBirth   *string `json:"date_of_birth" validate:"omitempty,date"`
	HouseID       uint    `json:"house_id" validate:"required"`
	Room          string  `json:"room" validate:"max=50"`
	MoveInDate    string  `json:"move_in_date" validate:"required,date"`
	MoveOutDate   *string `json:"move_out_date" validate:"omitempty,date"`
	Status        string  `json:"status" validate:"omitempty,oneof=active inactive exited"`
	PlanManagerID *uint   `json:"plan_manager_id"`
	Phone         string  `json:"phone" validate:"max=50"`
	Email         string  `json:"email" validate:"omitempty,email"`
	Notes         string  `json:"notes" validate:"max=1000"`
}

type UpdateResidentRequest struct {
	FirstName     *string `json:"first_name" validate:"omitempty,min=1,max=100"`
	LastName      *string `json:"last_name" validate:"omitempty,min=1,max=100"`
	NDISNumber    *string `json:"ndis_number" validate:"omitempty,ndis"`
	DateOfBirth   *string `json:"date_of_birth" validate:"omitempty,date"`
	HouseID       *uint   `json:"house_id"`
	Room          *string `json:"room" validate:"omitempty,max=50"`
	MoveInDate    *string `json:"move_in_date" validate:"omitempty,date"`
	MoveOutDate   *string `json:"move_out_date" validate:"omitempty,date"`
	Status        *string `json:"status" validate:"omitempty,oneof=active inactive exited"`
	PlanManagerID *uint   `json:"plan_manager_id"`
	Phone         *string `json:"phone" validate:"omitempty,max=50"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Notes         *string `json:"notes" validate:"omitempty,max=1000"`
}

// -------------------------
// Helpers
// -------------------------

// FindAccessible loads a resident and checks the request may see its house.
func FindAccessible(c *fiber.Ctx, id uint) (*models.Resident, error) {
	var r models.Resident
	if err := database.DB.First(&r, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "resident not found")
	}
	if err := auth.CanAccessHouse(c, r.HouseID); err != nil {
		return nil, err
	}
	return &r, nil
}

// InHouse is a subquery of the ids of residents living in houseID, for
// filtering records that hang off a resident.
func InHouse(db *gorm.DB, houseID uint) *gorm.DB {
	return db.Model(&models.Resident{}).Select("id").Where("house_id = ?", houseID)
}

// EnsureCapacity fails when the house is inactive or already holds as many
// active residents as it has rooms. exclude skips the resident being moved.
func EnsureCapacity(db *gorm.DB, houseID uint, exclude uint) error {
	var house models.House
	if err := db.First(&house, houseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return respond.Invalid("house_id", "house not found")
		}
		return respond.Internal("could not load house", err)
	}
	if house.Status != models.HouseStatusActive {
		return fiber.NewError(fiber.StatusConflict, "house is not active")
	}

	var n int64
	q := db.Model(&models.Resident{}).
		Where("house_id = ? AND status = ?", houseID, models.ResidentStatusActive)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Count(&n).Error; err != nil {
		return respond.Internal("could not count residents", err)
	}
	if n >= int64(house.Capacity) {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("house %s is full (%d/%d)", house.Name, n, house.Capacity))
	}
	return nil
}

func checkNDISUnique(ndis string, exclude uint) error {
	var n int64
	q := database.DB.Model(&models.Resident{}).Where("ndis_number = ?", ndis)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Count(&n).Error; err != nil {
		return respond.Internal("could not check NDIS number", err)
	}
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, "a resident with this NDIS number already exists")
	}
	return nil
}

func checkPlanManager(id *uint) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := database.DB.Model(&models.PlanManager{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return respond.Internal("could not check plan manager", err)
	}
	if n == 0 {
		return respond.Invalid("plan_manager_id", "plan manager not found")
	}
	return nil
}

func checkDates(moveIn time.Time, moveOut *time.Time) error {
	if moveOut != nil && moveOut.Before(moveIn) {
		return respond.Invalid("move_out_date", "must be on or after move_in_date")
	}
	return nil
}

// -------------------------
// Resident CRUD
// -------------------------

// POST /api/residents
func CreateResidentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateResidentRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		moveIn, _ := respond.ParseDate(body.MoveInDate)
		moveOut, _ := respond.ParseOptionalDate(body.MoveOutDate)
		dob, _ := respond.ParseOptionalDate(body.DateOfBirth)
		if err := checkDates(moveIn, moveOut); err != nil {
			return err
		}
		if err := auth.CanAccessHouse(c, body.HouseID); err != nil {
			return err
		}

		status := models.ResidentStatusActive
		if body.Status != "" {
			status = models.ResidentStatus(body.Status)
		}
		if status == models.ResidentStatusExited && moveOut == nil {
			return respond.Invalid("move_out_date", "is required for exited residents")
		}

		if err := checkNDISUnique(body.NDISNumber, 0); err != nil {
			return err
		}
		if err := checkPlanManager(body.PlanManagerID); err != nil {
			return err
		}
		if status == models.ResidentStatusActive {
			if err := EnsureCapacity(database.DB, body.HouseID, 0); err != nil {
				return err
			}
		}

		resident := models.Resident{
			FirstName:     strings.TrimSpace(body.FirstName),
			LastName:      strings.TrimSpace(body.LastName),
			NDISNumber:    body.NDISNumber,
			DateOfBirth:   dob,
			HouseID:       body.HouseID,
			Room:          strings.TrimSpace(body.Room),
			MoveInDate:    moveIn,
			MoveOutDate:   moveOut,
			Status:        status,
			PlanManagerID: body.PlanManagerID,
			Phone:         strings.TrimSpace(body.Phone),
			Email:         strings.TrimSpace(body.Email),
			Notes:         body.Notes,
		}

		if err := database.DB.Create(&resident).Error; err != nil {
			return respond.Internal("could not create resident", err)
		}

		audit.Record(c, "resident", resident.ID, models.AuditActionCreate,
			fmt.Sprintf("Resident created: %s", resident.FullName()), nil, resident)

		return respond.Created(c, resident)
	}
}

// GET /api/residents?house_id=&status=&search=
func ListResidentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.HouseScope(c)
		if err != nil {
			return err
		}
		page := respond.ParsePage(c)

		dbq := database.DB.Model(&models.Resident{})
		if scope != nil {
			dbq = dbq.Where("house_id = ?", *scope)
		}
		houseID, err := respond.QueryUint(c, "house_id")
		if err != nil {
			return err
		}
		if houseID != nil {
			dbq = dbq.Where("house_id = ?", *houseID)
		}
		if status := c.Query("status"); status != "" {
			dbq = dbq.Where("status = ?", status)
		}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			like := "%" + search + "%"
			dbq = dbq.Where("first_name ILIKE ? OR last_name ILIKE ? OR ndis_number LIKE ?", like, like, like)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count residents", err)
		}

		var residents []models.Resident
		if err := page.Apply(dbq).Order("last_name asc, first_name asc").Find(&residents).Error; err != nil {
			return respond.Internal("could not list residents", err)
		}
		return respond.List(c, residents, page, total)
	}
}

// GET /api/residents/:id
func GetResidentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		r, err := FindAccessible(c, id)
		if err != nil {
			return err
		}
		return respond.OK(c, r)
	}
}

// PUT /api/residents/:id
func UpdateResidentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		r, err := FindAccessible(c, id)
		if err != nil {
			return err
		}

		var body UpdateResidentRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *r
		wasActive := r.Status == models.ResidentStatusActive

		if body.FirstName != nil {
			r.FirstName = strings.TrimSpace(*body.FirstName)
		}
		if body.LastName != nil {
			r.LastName = strings.TrimSpace(*body.LastName)
		}
		if body.NDISNumber != nil && *body.NDISNumber != r.NDISNumber {
			if err := checkNDISUnique(*body.NDISNumber, r.ID); err != nil {
				return err
			}
			r.NDISNumber = *body.NDISNumber
		}
		if body.DateOfBirth != nil {
			r.DateOfBirth, _ = respond.ParseOptionalDate(body.DateOfBirth)
		}
		if body.Room != nil {
			r.Room = strings.TrimSpace(*body.Room)
		}
		if body.MoveInDate != nil {
			r.MoveInDate, _ = respond.ParseDate(*body.MoveInDate)
		}
		if body.MoveOutDate != nil {
			r.MoveOutDate, _ = respond.ParseOptionalDate(body.MoveOutDate)
		}
		if body.Status != nil {
			r.Status = models.ResidentStatus(*body.Status)
		}
		if r.Status == models.ResidentStatusExited && r.MoveOutDate == nil {
			today := time.Now().UTC().Truncate(24 * time.Hour)
			r.MoveOutDate = &today
		}
		if err := checkDates(r.MoveInDate, r.MoveOutDate); err != nil {
			return err
		}
		if body.PlanManagerID != nil {
			if err := checkPlanManager(body.PlanManagerID); err != nil {
				return err
			}
			r.PlanManagerID = body.PlanManagerID
		}
		if body.Phone != nil {
			r.Phone = strings.TrimSpace(*body.Phone)
		}
		if body.Email != nil {
			r.Email = strings.TrimSpace(*body.Email)
		}
		if body.Notes != nil {
			r.Notes = *body.Notes
		}

		houseChanged := body.HouseID != nil && *body.HouseID != r.HouseID
		if houseChanged {
			if err := auth.CanAccessHouse(c, *body.HouseID); err != nil {
				return err
			}
			r.HouseID = *body.HouseID
		}
		if r.Status == models.ResidentStatusActive && (houseChanged || !wasActive) {
			if err := EnsureCapacity(database.DB, r.HouseID, r.ID); err != nil {
				return err
			}
		}

		if err := database.DB.Save(r).Error; err != nil {
			return respond.Internal("could not update resident", err)
		}

		audit.Record(c, "resident", r.ID, models.AuditActionUpdate,
			fmt.Sprintf("Resident updated: %s", r.FullName()), before, r)

		return respond.OK(c, r)
	}
}

// DELETE /api/residents/:id
func DeleteResidentHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		r, err := FindAccessible(c, id)
		if err != nil {
			return err
		}

		n, err := contractCount(database.DB, r.ID)
		if err != nil {
			return respond.Internal("could not check contracts", err)
		}
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, "resident has funding contracts, mark the resident as exited instead")
		}

		if err := database.DB.Delete(&models.Resident{}, r.ID).Error; err != nil {
			return respond.Internal("could not delete resident", err)
		}

		audit.Record(c, "resident", r.ID, models.AuditActionDelete,
			fmt.Sprintf("Resident deleted: %s", r.FullName()), r, nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}
