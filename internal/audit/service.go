package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/logging"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LogOptions struct {
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

var (
	ErrNotUndoable   = errors.New("this record type cannot be undone")
	ErrAlreadyUndone = errors.New("this change has already been undone")
	ErrUndoOfUndo    = errors.New("an undo cannot be undone")
)

// UndoGuard checks an undo against the rules the entity's handlers enforce.
// restored is the record about to be written back, or nil when the undo
// deletes the record.
type UndoGuard func(tx *gorm.DB, entityID uint, restored any) error

var undoGuards = map[string]UndoGuard{}

// RegisterUndoGuard installs the guard for an entity type. Packages owning
// an undoable entity register theirs from init.
func RegisterUndoGuard(entityType string, g UndoGuard) {
	undoGuards[entityType] = g
}

func guardUndo(tx *gorm.DB, entityType string, entityID uint, restored any) error {
	g, ok := undoGuards[entityType]
	if !ok {
		return nil
	}
	return g(tx, entityID, restored)
}

// undoable maps entity types to a constructor for their model. Records with
// balance side effects (contracts, transactions, claims) are logged but not
// undoable.
var undoable = map[string]func() any{
	"house":        func() any { return &models.House{} },
	"resident":     func() any { return &models.Resident{} },
	"contact":      func() any { return &models.Contact{} },
	"owner":        func() any { return &models.Owner{} },
	"plan_manager": func() any { return &models.PlanManager{} },
	"supplier":     func() any { return &models.Supplier{} },
	"expense":      func() any { return &models.Expense{} },
}

func WriteLog(db *gorm.DB, opts LogOptions) error {
	// jsonb needs "null" rather than an empty string
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	log := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := db.Create(&log).Error; err != nil {
		return fmt.Errorf("could not write audit log: %w", err)
	}
	return nil
}

// Record writes a log entry on behalf of the request's user. Failures are
// logged and never fail the request.
func Record(c *fiber.Ctx, entityType string, entityID uint, action models.AuditAction, description string, before, after any) {
	actor, err := auth.CurrentActor(c)
	if err != nil {
		return
	}
	if err := WriteLog(database.DB, LogOptions{
		UserID:      actor.UserID,
		UserName:    actor.Name,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Description: description,
		Before:      before,
		After:       after,
	}); err != nil {
		logging.Log.Warn("audit log write failed",
			zap.String("entity_type", entityType),
			zap.Uint("entity_id", entityID),
			zap.Error(err),
		)
	}
}

// UndoLog reverts the change recorded by logID and writes an undo entry.
func UndoLog(logID uint, userID uint, userName string) error {
	return database.DB.Transaction(func(tx *gorm.DB) error {
		var log models.AuditLog
		if err := tx.First(&log, "id = ?", logID).Error; err != nil {
			return respond.NotFoundOr(err, "audit log not found")
		}
		if log.IsUndone {
			return ErrAlreadyUndone
		}
		if log.Action == models.AuditActionUndo {
			return ErrUndoOfUndo
		}

		newModel, ok := undoable[log.EntityType]
		if !ok {
			return ErrNotUndoable
		}

		switch log.Action {
		case models.AuditActionCreate:
			if err := guardUndo(tx, log.EntityType, log.EntityID, nil); err != nil {
				return err
			}
			if err := tx.Delete(newModel(), "id = ?", log.EntityID).Error; err != nil {
				return fmt.Errorf("could not delete record: %w", err)
			}

		case models.AuditActionUpdate:
			m := newModel()
			if err := json.Unmarshal([]byte(log.BeforeData), m); err != nil {
				return fmt.Errorf("could not decode previous state: %w", err)
			}
			if err := guardUndo(tx, log.EntityType, log.EntityID, m); err != nil {
				return err
			}
			if err := tx.Save(m).Error; err != nil {
				return fmt.Errorf("could not restore record: %w", err)
			}

		case models.AuditActionDelete:
			m := newModel()
			if err := json.Unmarshal([]byte(log.BeforeData), m); err != nil {
				return fmt.Errorf("could not decode deleted record: %w", err)
			}
			if err := guardUndo(tx, log.EntityType, log.EntityID, m); err != nil {
				return err
			}
			// keeps the original id so references stay valid
			if err := tx.Create(m).Error; err != nil {
				return fmt.Errorf("could not recreate record: %w", err)
			}

		default:
			return ErrNotUndoable
		}

		now := time.Now()
		log.IsUndone = true
		log.UndoneBy = &userID
		log.UndoneAt = &now
		if err := tx.Save(&log).Error; err != nil {
			return fmt.Errorf("could not update log: %w", err)
		}

		return WriteLog(tx, LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  log.EntityType,
			EntityID:    log.EntityID,
			Action:      models.AuditActionUndo,
			Description: fmt.Sprintf("Undone: %s", log.Description),
			Before:      json.RawMessage(log.AfterData),
			After:       json.RawMessage(log.BeforeData),
		})
	})
}
