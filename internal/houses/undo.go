package houses

import (
	"fmt"

	"housing-backend/internal/audit"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func init() {
	audit.RegisterUndoGuard("house", undoGuard)
}

// undoGuard refuses to remove, close or shrink a house below the residents
// living in it now.
func undoGuard(tx *gorm.DB, id uint, restored any) error {
	occupancy, err := ActiveResidentCount(tx, id)
	if err != nil {
		return respond.Internal("could not load occupancy", err)
	}
	if occupancy == 0 {
		return nil
	}

	h, ok := restored.(*models.House)
	if !ok || h.Status == models.HouseStatusInactive {
		return fiber.NewError(fiber.StatusConflict, "house still has active residents")
	}
	if int64(h.Capacity) < occupancy {
		return fiber.NewError(fiber.StatusConflict,
			fmt.Sprintf("previous capacity %d is below current occupancy (%d)", h.Capacity, occupancy))
	}
	return nil
}
