package directory

import (
	"fmt"

	"housing-backend/internal/audit"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func init() {
	audit.RegisterUndoGuard("owner", ownerUndoGuard)
	audit.RegisterUndoGuard("plan_manager", planManagerUndoGuard)
}

func ownedHouses(db *gorm.DB, ownerID uint) (int64, error) {
	var n int64
	err := db.Model(&models.House{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, err
}

func assignedResidents(db *gorm.DB, planManagerID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Resident{}).Where("plan_manager_id = ?", planManagerID).Count(&n).Error
	return n, err
}

// Undoing a create deletes the record, so the delete rules apply.

func ownerUndoGuard(tx *gorm.DB, id uint, restored any) error {
	if restored != nil {
		return nil
	}
	n, err := ownedHouses(tx, id)
	if err != nil {
		return respond.Internal("could not check houses", err)
	}
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("owner still owns %d house(s)", n))
	}
	return nil
}

func planManagerUndoGuard(tx *gorm.DB, id uint, restored any) error {
	if restored != nil {
		return nil
	}
	n, err := assignedResidents(tx, id)
	if err != nil {
		return respond.Internal("could not check residents", err)
	}
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("plan manager is assigned to %d resident(s)", n))
	}
	return nil
}
