package suppliers

import (
	"fmt"

	"housing-backend/internal/audit"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func init() {
	audit.RegisterUndoGuard("supplier", undoGuard)
}

func expenseCount(db *gorm.DB, supplierID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Expense{}).Where("supplier_id = ?", supplierID).Count(&n).Error
	return n, err
}

// undoGuard keeps a supplier that expenses point at. Only undoing its
// create would remove it.
func undoGuard(tx *gorm.DB, id uint, restored any) error {
	if restored != nil {
		return nil
	}
	n, err := expenseCount(tx, id)
	if err != nil {
		return respond.Internal("could not check expenses", err)
	}
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("supplier is used by %d expense(s), deactivate it instead", n))
	}
	return nil
}
