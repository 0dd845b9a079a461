package residents

import (
	"housing-backend/internal/audit"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func init() {
	audit.RegisterUndoGuard("resident", undoGuard)
}

func contractCount(db *gorm.DB, residentID uint) (int64, error) {
	var n int64
	err := db.Model(&models.FundingContract{}).Where("resident_id = ?", residentID).Count(&n).Error
	return n, err
}

// undoGuard applies the delete and capacity rules to an undo. A resident
// brought back as active must fit in its house.
func undoGuard(tx *gorm.DB, id uint, restored any) error {
	if restored == nil {
		n, err := contractCount(tx, id)
		if err != nil {
			return respond.Internal("could not check contracts", err)
		}
		if n > 0 {
			return fiber.NewError(fiber.StatusConflict, "resident has funding contracts, mark the resident as exited instead")
		}
		return nil
	}

	r, ok := restored.(*models.Resident)
	if !ok || r.Status != models.ResidentStatusActive {
		return nil
	}
	return EnsureCapacity(tx, r.HouseID, id)
}
