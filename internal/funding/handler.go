package funding

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/models"
	"housing-backend/internal/residents"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// -------------------------
// Request/Response Types
// -------------------------

type CreateContractRequest struct {
	ResidentID        uint     `json:"resident_id" validate:"required"`
	ContractNumber    string   `json:"contract_number" validate:"required,max=50"`
	FundingType       string   `json:"funding_type" validate:"required,oneof=sil sda core capacity_building other"`
	SupportItemNumber string   `json:"support_item_number" validate:"max=30"`
	StartDate         string   `json:"start_date" validate:"required,date"`
	EndDate           string   `json:"end_date" validate:"required,date"`
	OriginalAmount    float64  `json:"original_amount" validate:"required,gt=0"`
	CurrentBalance    *float64 `json:"current_balance" validate:"omitempty,gte=0"`
	DrawdownRate      string   `json:"drawdown_rate" validate:"omitempty,oneof=daily weekly fortnightly monthly"`
	UnitPrice         float64  `json:"unit_price" validate:"gte=0"`
	AutoDrawdown      bool     `json:"auto_drawdown"`
	Status            string   `json:"status" validate:"omitempty,oneof=draft active"`
	Notes             string   `json:"notes" validate:"max=1000"`
}

type UpdateContractRequest struct {
	ContractNumber    *string  `json:"contract_number" validate:"omitempty,min=1,max=50"`
	FundingType       *string  `json:"funding_type" validate:"omitempty,oneof=sil sda core capacity_building other"`
	SupportItemNumber *string  `json:"support_item_number" validate:"omitempty,max=30"`
	StartDate         *string  `json:"start_date" validate:"omitempty,date"`
	EndDate           *string  `json:"end_date" validate:"omitempty,date"`
	OriginalAmount    *float64 `json:"original_amount" validate:"omitempty,gt=0"`
	DrawdownRate      *string  `json:"drawdown_rate" validate:"omitempty,oneof=daily weekly fortnightly monthly"`
	UnitPrice         *float64 `json:"unit_price" validate:"omitempty,gte=0"`
	AutoDrawdown      *bool    `json:"auto_drawdown"`
	Status            *string  `json:"status" validate:"omitempty,oneof=draft active expired cancelled"`
	Notes             *string  `json:"notes" validate:"omitempty,max=1000"`
}

type ContractResponse struct {
	models.FundingContract
	Drawdown Summary `json:"drawdown"`
}

// allowed status moves; cancelled is final
var transitions = map[models.ContractStatus][]models.ContractStatus{
	models.ContractStatusDraft:   {models.ContractStatusActive, models.ContractStatusCancelled},
	models.ContractStatusActive:  {models.ContractStatusExpired, models.ContractStatusCancelled},
	models.ContractStatusExpired: {models.ContractStatusActive},
}

// CanTransition reports whether a contract may move from one status to another.
func CanTransition(from, to models.ContractStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// -------------------------
// Helpers
// -------------------------

// FindAccessible loads a contract the request's user may see.
func FindAccessible(c *fiber.Ctx, id uint) (*models.FundingContract, error) {
	var fc models.FundingContract
	if err := database.DB.First(&fc, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "funding contract not found")
	}
	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, err
	}
	if scope != nil {
		if _, err := residents.FindAccessible(c, fc.ResidentID); err != nil {
			return nil, err
		}
	}
	return &fc, nil
}

func checkContractNumber(number string, exclude uint) error {
	var n int64
	q := database.DB.Model(&models.FundingContract{}).Where("contract_number = ?", number)
	if exclude != 0 {
		q = q.Where("id <> ?", exclude)
	}
	if err := q.Count(&n).Error; err != nil {
		return respond.Internal("could not check contract number", err)
	}
	if n > 0 {
		return fiber.NewError(fiber.StatusConflict, "contract number already in use")
	}
	return nil
}

func checkPeriod(start, end time.Time) error {
	if !end.After(start) {
		return respond.Invalid("end_date", "must be after start_date")
	}
	return nil
}

// -------------------------
// Contract CRUD
// -------------------------

// POST /api/funding-contracts
func CreateContractHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateContractRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		start, _ := respond.ParseDate(body.StartDate)
		end, _ := respond.ParseDate(body.EndDate)
		if err := checkPeriod(start, end); err != nil {
			return err
		}

		balance := body.OriginalAmount
		if body.CurrentBalance != nil {
			if *body.CurrentBalance > body.OriginalAmount {
				return respond.Invalid("current_balance", "cannot exceed original_amount")
			}
			balance = *body.CurrentBalance
		}

		if _, err := residents.FindAccessible(c, body.ResidentID); err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code == fiber.StatusNotFound {
				return respond.Invalid("resident_id", "resident not found")
			}
			return err
		}
		number := strings.TrimSpace(body.ContractNumber)
		if err := checkContractNumber(number, 0); err != nil {
			return err
		}

		rate := models.DrawdownWeekly
		if body.DrawdownRate != "" {
			rate = models.DrawdownRate(body.DrawdownRate)
		}
		status := models.ContractStatusDraft
		if body.Status != "" {
			status = models.ContractStatus(body.Status)
		}

		contract := models.FundingContract{
			ResidentID:        body.ResidentID,
			ContractNumber:    number,
			FundingType:       models.FundingType(body.FundingType),
			SupportItemNumber: strings.TrimSpace(body.SupportItemNumber),
			StartDate:         start,
			EndDate:           end,
			OriginalAmount:    Round2(body.OriginalAmount),
			CurrentBalance:    Round2(balance),
			DrawdownRate:      rate,
			UnitPrice:         Round2(body.UnitPrice),
			AutoDrawdown:      body.AutoDrawdown,
			Status:            status,
			Notes:             body.Notes,
		}

		if err := database.DB.Create(&contract).Error; err != nil {
			return respond.Internal("could not create funding contract", err)
		}

		audit.Record(c, "funding_contract", contract.ID, models.AuditActionCreate,
			fmt.Sprintf("Funding contract created: %s (%.2f)", contract.ContractNumber, contract.OriginalAmount), nil, contract)

		return respond.Created(c, contract)
	}
}

func listQuery(c *fiber.Ctx) (*gorm.DB, error) {
	scope, err := auth.HouseScope(c)
	if err != nil {
		return nil, err
	}

	dbq := database.DB.Model(&models.FundingContract{})
	if scope != nil {
		dbq = dbq.Where("resident_id IN (?)", residents.InHouse(database.DB, *scope))
	}
	houseID, err := respond.QueryUint(c, "house_id")
	if err != nil {
		return nil, err
	}
	if houseID != nil {
		dbq = dbq.Where("resident_id IN (?)", residents.InHouse(database.DB, *houseID))
	}
	residentID, err := respond.QueryUint(c, "resident_id")
	if err != nil {
		return nil, err
	}
	if residentID != nil {
		dbq = dbq.Where("resident_id = ?", *residentID)
	}
	if status := c.Query("status"); status != "" {
		dbq = dbq.Where("status = ?", status)
	}
	if ft := c.Query("funding_type"); ft != "" {
		dbq = dbq.Where("funding_type = ?", ft)
	}
	return dbq, nil
}

// GET /api/funding-contracts?resident_id=&house_id=&status=&funding_type=
func ListContractsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		dbq, err := listQuery(c)
		if err != nil {
			return err
		}
		page := respond.ParsePage(c)

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count funding contracts", err)
		}

		var contracts []models.FundingContract
		if err := page.Apply(dbq).Order("end_date asc, id asc").Find(&contracts).Error; err != nil {
			return respond.Internal("could not list funding contracts", err)
		}
		return respond.List(c, contracts, page, total)
	}
}

// GET /api/residents/:id/contracts
func ListResidentContractsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		r, err := residents.FindAccessible(c, id)
		if err != nil {
			return err
		}

		var contracts []models.FundingContract
		if err := database.DB.Where("resident_id = ?", r.ID).
			Order("start_date desc").Find(&contracts).Error; err != nil {
			return respond.Internal("could not list funding contracts", err)
		}

		today := time.Now()
		out := make([]ContractResponse, 0, len(contracts))
		for i := range contracts {
			out = append(out, ContractResponse{FundingContract: contracts[i], Drawdown: Summarize(&contracts[i], today)})
		}
		return respond.OK(c, out)
	}
}

// GET /api/funding-contracts/:id
func GetContractHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		fc, err := FindAccessible(c, id)
		if err != nil {
			return err
		}
		return respond.OK(c, ContractResponse{FundingContract: *fc, Drawdown: Summarize(fc, time.Now())})
	}
}

// GET /api/funding-contracts/:id/drawdown?as_of=YYYY-MM-DD
func DrawdownSummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		asOf, err := respond.QueryDate(c, "as_of")
		if err != nil {
			return err
		}
		fc, err := FindAccessible(c, id)
		if err != nil {
			return err
		}

		at := time.Now()
		if asOf != nil {
			at = *asOf
		}
		return respond.OK(c, Summarize(fc, at))
	}
}

// applyUpdate copies the request onto fc and returns the changed columns.
// current_balance is only written when original_amount changes.
func applyUpdate(fc *models.FundingContract, body UpdateContractRequest) (map[string]any, error) {
	updates := map[string]any{}

	if body.Status != nil {
		to := models.ContractStatus(*body.Status)
		if !CanTransition(fc.Status, to) {
			return nil, fiber.NewError(fiber.StatusBadRequest,
				fmt.Sprintf("cannot change contract status from %s to %s", fc.Status, to))
		}
		fc.Status = to
		updates["status"] = to
	}
	if body.ContractNumber != nil {
		fc.ContractNumber = strings.TrimSpace(*body.ContractNumber)
		updates["contract_number"] = fc.ContractNumber
	}
	if body.FundingType != nil {
		fc.FundingType = models.FundingType(*body.FundingType)
		updates["funding_type"] = fc.FundingType
	}
	if body.SupportItemNumber != nil {
		fc.SupportItemNumber = strings.TrimSpace(*body.SupportItemNumber)
		updates["support_item_number"] = fc.SupportItemNumber
	}
	if body.StartDate != nil {
		fc.StartDate, _ = respond.ParseDate(*body.StartDate)
		updates["start_date"] = fc.StartDate
	}
	if body.EndDate != nil {
		fc.EndDate, _ = respond.ParseDate(*body.EndDate)
		updates["end_date"] = fc.EndDate
	}
	if err := checkPeriod(fc.StartDate, fc.EndDate); err != nil {
		return nil, err
	}
	if body.OriginalAmount != nil {
		AdjustOriginalAmount(fc, *body.OriginalAmount)
		updates["original_amount"] = fc.OriginalAmount
		updates["current_balance"] = fc.CurrentBalance
	}
	if body.DrawdownRate != nil {
		fc.DrawdownRate = models.DrawdownRate(*body.DrawdownRate)
		updates["drawdown_rate"] = fc.DrawdownRate
	}
	if body.UnitPrice != nil {
		fc.UnitPrice = Round2(*body.UnitPrice)
		updates["unit_price"] = fc.UnitPrice
	}
	if body.AutoDrawdown != nil {
		fc.AutoDrawdown = *body.AutoDrawdown
		updates["auto_drawdown"] = fc.AutoDrawdown
	}
	if body.Notes != nil {
		fc.Notes = *body.Notes
		updates["notes"] = fc.Notes
	}
	return updates, nil
}

// PUT /api/funding-contracts/:id
func UpdateContractHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		current, err := FindAccessible(c, id)
		if err != nil {
			return err
		}

		var body UpdateContractRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		if body.ContractNumber != nil {
			number := strings.TrimSpace(*body.ContractNumber)
			if number != current.ContractNumber {
				if err := checkContractNumber(number, current.ID); err != nil {
					return err
				}
			}
		}

		// the balance may move under us through posts and voids
		var before, after models.FundingContract
		err = database.DB.Transaction(func(tx *gorm.DB) error {
			fc, err := LockContract(tx, id)
			if err != nil {
				return respond.NotFoundOr(err, "funding contract not found")
			}
			before = *fc

			updates, err := applyUpdate(fc, body)
			if err != nil {
				return err
			}
			if len(updates) > 0 {
				if err := tx.Model(fc).Updates(updates).Error; err != nil {
					return respond.Internal("could not update funding contract", err)
				}
			}
			after = *fc
			return nil
		})
		if err != nil {
			return err
		}

		audit.Record(c, "funding_contract", after.ID, models.AuditActionUpdate,
			fmt.Sprintf("Funding contract updated: %s", after.ContractNumber), before, after)

		return respond.OK(c, after)
	}
}

// DELETE /api/funding-contracts/:id
func DeleteContractHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		fc, err := FindAccessible(c, id)
		if err != nil {
			return err
		}

		var used int64
		if err := database.DB.Model(&models.Transaction{}).
			Where("contract_id = ? AND status <> ?", fc.ID, models.TransactionStatusDraft).
			Count(&used).Error; err != nil {
			return respond.Internal("could not check transactions", err)
		}
		if fc.Status != models.ContractStatusDraft && used > 0 {
			return fiber.NewError(fiber.StatusConflict, "contract has transactions, cancel it instead")
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("contract_id = ? AND status = ?", fc.ID, models.TransactionStatusDraft).
				Delete(&models.Transaction{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.FundingContract{}, fc.ID).Error
		})
		if err != nil {
			return respond.Internal("could not delete funding contract", err)
		}

		audit.Record(c, "funding_contract", fc.ID, models.AuditActionDelete,
			fmt.Sprintf("Funding contract deleted: %s", fc.ContractNumber), fc, nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}
