package audit

import (
	"errors"

	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
)

// GET /api/audit-logs?entity_type=resident&entity_id=1&user_id=2
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)

		dbq := database.DB.Model(&models.AuditLog{})

		if entityType := c.Query("entity_type"); entityType != "" {
			dbq = dbq.Where("entity_type = ?", entityType)
		}
		entityID, err := respond.QueryUint(c, "entity_id")
		if err != nil {
			return err
		}
		if entityID != nil {
			dbq = dbq.Where("entity_id = ?", *entityID)
		}
		userID, err := respond.QueryUint(c, "user_id")
		if err != nil {
			return err
		}
		if userID != nil {
			dbq = dbq.Where("user_id = ?", *userID)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count logs", err)
		}

		var logs []models.AuditLog
		if err := page.Apply(dbq).Order("created_at DESC").Find(&logs).Error; err != nil {
			return respond.Internal("could not list logs", err)
		}

		return respond.List(c, logs, page, total)
	}
}

// POST /api/audit-logs/:id/undo
func UndoAuditLogHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		logID, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}

		if err := UndoLog(logID, actor.UserID, actor.Name); err != nil {
			var fe *fiber.Error
			var ve *respond.ValidationError
			var ie *respond.InternalError
			switch {
			case errors.Is(err, ErrNotUndoable):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, ErrAlreadyUndone), errors.Is(err, ErrUndoOfUndo):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.As(err, &fe), errors.As(err, &ve), errors.As(err, &ie):
				return err
			default:
				return respond.Internal("could not undo change", err)
			}
		}

		return respond.OK(c, fiber.Map{"message": "change undone"})
	}
}
