package transactions

import (
	"errors"
	"fmt"
	"strings"

	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/funding"
	"housing-backend/internal/logging"
	"housing-backend/internal/models"
	"housing-backend/internal/residents"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type CreateTransactionRequest struct {
	ContractID        uint    `json:"contract_id" validate:"required"`
	ResidentID        *uint   `json:"resident_id"`
	ServiceDate       string  `json:"service_date" validate:"required,date"`
	Quantity          float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice         float64 `json:"unit_price" validate:"gte=0"`
	SupportItemNumber string  `json:"support_item_number" validate:"max=30"`
	Description       string  `json:"description" validate:"max=500"`
	Note              string  `json:"note" validate:"max=500"`
	Post              bool    `json:"post"` // post straight away
}

type UpdateTransactionRequest struct {
	ServiceDate       *string  `json:"service_date" validate:"omitempty,date"`
	Quantity          *float64 `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice         *float64 `json:"unit_price" validate:"omitempty,gt=0"`
	SupportItemNumber *string  `json:"support_item_number" validate:"omitempty,max=30"`
	Description       *string  `json:"description" validate:"omitempty,max=500"`
	Note              *string  `json:"note" validate:"omitempty,max=500"`
}

type PreviewRequest struct {
	ContractID  uint    `json:"contract_id" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
	ServiceDate string  `json:"service_date" validate:"required,date"`
}

type VoidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type BulkPostRequest struct {
	IDs []uint `json:"ids" validate:"required,min=1,max=200,dive,required"`
}

type BulkPostResult struct {
	ID      uint    `json:"id"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Balance float64 `json:"balance_after,omitempty"`
}

type BulkPostResponse struct {
	Posted  int              `json:"posted"`
	Failed  int              `json:"failed"`
	Results []BulkPostResult `json:"results"`
}

type PostResponse struct {
	Transaction    *models.Transaction `json:"transaction"`
	ContractID     uint                `json:"contract_id"`
	BalanceAfter   float64             `json:"balance_after"`
	OriginalAmount float64             `json:"original_amount"`
}

// -------------------------
// Helpers
// -------------------------

// FindAccessible loads a transaction the request's user may see.
func FindAccessible(c *fiber.Ctx, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := database.DB.First(&t, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "transaction not found")
	}
	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if _, err := residents.FindAccessible(c, t.ResidentID); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// toHTTP maps service errors onto responses.
func toHTTP(err error, msg string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, "transaction not found")
	case errors.Is(err, funding.ErrInsufficientBalance):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case IsRuleError(err):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return respond.Internal(msg, err)
}

func userID(c *fiber.Ctx) *uint {
	a, err := auth.CurrentActor(c)
	if err != nil {
		return nil
	}
	return &a.UserID
}

// -------------------------
// Transaction CRUD
// -------------------------

// POST /api/transactions
func CreateTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTransactionRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		serviceDate, _ := respond.ParseDate(body.ServiceDate)

		fc, err := funding.FindAccessible(c, body.ContractID)
		if err != nil {
			return err
		}
		if body.ResidentID != nil && *body.ResidentID != fc.ResidentID {
			return respond.Invalid("resident_id", "contract belongs to another resident")
		}

		t, err := Create(database.DB, fc, Input{
			ServiceDate:       serviceDate,
			Quantity:          body.Quantity,
			UnitPrice:         body.UnitPrice,
			SupportItemNumber: body.SupportItemNumber,
			Description:       body.Description,
			Note:              body.Note,
			CreatedBy:         userID(c),
		})
		if err != nil {
			return toHTTP(err, "could not create transaction")
		}

		audit.Record(c, "transaction", t.ID, models.AuditActionCreate,
			fmt.Sprintf("Transaction created: %.2f on contract %s", t.Amount, fc.ContractNumber), nil, t)

		if body.Post {
			posted, contract, err := Post(database.DB, t.ID)
			if err != nil {
				return toHTTP(err, "could not post transaction")
			}
			audit.Record(c, "transaction", t.ID, models.AuditActionUpdate,
				fmt.Sprintf("Transaction posted: %.2f drawn from %s", t.Amount, contract.ContractNumber), t, posted)
			t = posted
		}

		return respond.Created(c, t)
	}
}

func applyFilters(c *fiber.Ctx, dbq *gorm.DB) (*gorm.DB, error) {
	for _, key := range []string{"resident_id", "contract_id", "claim_id"} {
		v, err := respond.QueryUint(c, key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			dbq = dbq.Where(key+" = ?", *v)
		}
	}
	houseID, err := respond.QueryUint(c, "house_id")
	if err != nil {
		return nil, err
	}
	if houseID != nil {
		dbq = dbq.Where("resident_id IN (?)", residents.InHouse(database.DB, *houseID))
	}
	if status := c.Query("status"); status != "" {
		dbq = dbq.Where("status IN ?", strings.Split(status, ","))
	}
	from, err := respond.QueryDate(c, "from")
	if err != nil {
		return nil, err
	}
	if from != nil {
		dbq = dbq.Where("service_date >= ?", *from)
	}
	to, err := respond.QueryDate(c, "to")
	if err != nil {
		return nil, err
	}
	if to != nil {
		dbq = dbq.Where("service_date <= ?", *to)
	}
	return dbq, nil
}

func list(c *fiber.Ctx, dbq *gorm.DB) error {
	dbq, err := applyFilters(c, dbq)
	if err != nil {
		return err
	}
	page := respond.ParsePage(c)

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return respond.Internal("could not count transactions", err)
	}

	var txs []models.Transaction
	if err := page.Apply(dbq).Order("service_date desc, id desc").Find(&txs).Error; err != nil {
		return respond.Internal("could not list transactions", err)
	}
	return respond.List(c, txs, page, total)
}

// GET /api/transactions?resident_id=&contract_id=&house_id=&claim_id=&status=&from=&to=
func ListTransactionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := auth.HouseScope(c)
		if err != nil {
			return err
		}
		dbq := database.DB.Model(&models.Transaction{})
		if scope != nil {
			dbq = dbq.Where("resident_id IN (?)", residents.InHouse(database.DB, *scope))
		}
		return list(c, dbq)
	}
}

// GET /api/residents/:id/transactions
func ListResidentTransactionsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		r, err := residents.FindAccessible(c, id)
		if err != nil {
			return err
		}
		return list(c, database.DB.Model(&models.Transaction{}).Where("resident_id = ?", r.ID))
	}
}

// GET /api/transactions/:id
func GetTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		t, err := FindAccessible(c, id)
		if err != nil {
			return err
		}
		return respond.OK(c, t)
	}
}

// PUT /api/transactions/:id
func UpdateTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		t, err := FindAccessible(c, id)
		if err != nil {
			return err
		}
		if t.Status != models.TransactionStatusDraft {
			return fiber.NewError(fiber.StatusBadRequest, ErrNotDraft.Error())
		}

		var body UpdateTransactionRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *t
		if body.ServiceDate != nil {
			d, _ := respond.ParseDate(*body.ServiceDate)
			t.ServiceDate = d
		}
		if body.Quantity != nil {
			t.Quantity = *body.Quantity
		}
		if body.UnitPrice != nil {
			t.UnitPrice = funding.Round2(*body.UnitPrice)
		}
		t.Amount = Amount(t.Quantity, t.UnitPrice)
		if body.SupportItemNumber != nil {
			t.SupportItemNumber = strings.TrimSpace(*body.SupportItemNumber)
		}
		if body.Description != nil {
			t.Description = strings.TrimSpace(*body.Description)
		}
		if body.Note != nil {
			t.Note = *body.Note
		}

		if err := database.DB.Save(t).Error; err != nil {
			return respond.Internal("could not update transaction", err)
		}

		audit.Record(c, "transaction", t.ID, models.AuditActionUpdate,
			fmt.Sprintf("Transaction updated: %.2f", t.Amount), before, t)

		return respond.OK(c, t)
	}
}

// DELETE /api/transactions/:id
func DeleteTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		t, err := FindAccessible(c, id)
		if err != nil {
			return err
		}
		if t.Status != models.TransactionStatusDraft {
			return fiber.NewError(fiber.StatusBadRequest, ErrNotDraft.Error())
		}

		if err := database.DB.Delete(&models.Transaction{}, t.ID).Error; err != nil {
			return respond.Internal("could not delete transaction", err)
		}

		audit.Record(c, "transaction", t.ID, models.AuditActionDelete,
			fmt.Sprintf("Transaction deleted: %.2f", t.Amount), t, nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// -------------------------
// Drawdown
// -------------------------

// POST /api/transactions/:id/post
func PostTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		before, err := FindAccessible(c, id)
		if err != nil {
			return err
		}

		t, fc, err := Post(database.DB, id)
		if err != nil {
			return toHTTP(err, "could not post transaction")
		}

		audit.Record(c, "transaction", t.ID, models.AuditActionUpdate,
			fmt.Sprintf("Transaction posted: %.2f drawn from %s", t.Amount, fc.ContractNumber), before, t)

		return respond.OK(c, PostResponse{
			Transaction:    t,
			ContractID:     fc.ID,
			BalanceAfter:   fc.CurrentBalance,
			OriginalAmount: fc.OriginalAmount,
		})
	}
}

// POST /api/transactions/:id/void
func VoidTransactionHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		before, err := FindAccessible(c, id)
		if err != nil {
			return err
		}

		var body VoidRequest
		if len(c.Body()) > 0 {
			if err := respond.ParseBody(c, &body); err != nil {
				return err
			}
		}

		t, err := Void(database.DB, id, body.Reason)
		if err != nil {
			return toHTTP(err, "could not void transaction")
		}

		audit.Record(c, "transaction", t.ID, models.AuditActionUpdate,
			fmt.Sprintf("Transaction voided: %.2f returned to contract", t.Amount), before, t)

		return respond.OK(c, t)
	}
}

// POST /api/transactions/preview
func PreviewHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body PreviewRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		serviceDate, _ := respond.ParseDate(body.ServiceDate)

		fc, err := funding.FindAccessible(c, body.ContractID)
		if err != nil {
			return err
		}
		price := body.UnitPrice
		if price == 0 {
			price = fc.UnitPrice
		}
		return respond.OK(c, funding.Preview(fc, Amount(body.Quantity, price), serviceDate))
	}
}

// POST /api/transactions/bulk-post
func BulkPostHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body BulkPostRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		out := BulkPostResponse{Results: make([]BulkPostResult, 0, len(body.IDs))}
		for _, id := range body.IDs {
			res := BulkPostResult{ID: id}
			before, err := FindAccessible(c, id)
			if err == nil {
				var t *models.Transaction
				var fc *models.FundingContract
				t, fc, err = Post(database.DB, id)
				if err == nil {
					res.Success = true
					res.Balance = fc.CurrentBalance
					audit.Record(c, "transaction", t.ID, models.AuditActionUpdate,
						fmt.Sprintf("Transaction posted: %.2f drawn from %s", t.Amount, fc.ContractNumber), before, t)
				}
			}
			if err != nil {
				res.Error = bulkError(err)
				out.Failed++
			} else {
				out.Posted++
			}
			out.Results = append(out.Results, res)
		}
		return respond.OK(c, out)
	}
}

func bulkError(err error) string {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Message
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "transaction not found"
	case IsRuleError(err):
		return err.Error()
	}
	logging.Log.Error("bulk post failed", zap.Error(err))
	return "could not post transaction"
}
