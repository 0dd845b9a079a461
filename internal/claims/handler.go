package claims

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/config"
	"housing-backend/internal/database"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/residents"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
)

// -------------------------
// Request/Response Types
// -------------------------

type CreateClaimRequest struct {
	TransactionIDs []uint  `json:"transaction_ids" validate:"omitempty,max=1000,dive,required"`
	PeriodFrom     *string `json:"period_from" validate:"omitempty,date"`
	PeriodTo       *string `json:"period_to" validate:"omitempty,date"`
	HouseID        *uint   `json:"house_id"`
	Notes          string  `json:"notes" validate:"max=1000"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=submitted paid"`
}

type ClaimDetail struct {
	models.Claim
	Lines []models.Transaction `json:"lines"`
}

// -------------------------
// Helpers
// -------------------------

func findClaim(id uint) (*models.Claim, error) {
	var claim models.Claim
	if err := database.DB.First(&claim, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "claim not found")
	}
	return &claim, nil
}

func lines(claimID uint, withResident bool) ([]models.Transaction, error) {
	q := database.DB.Where("claim_id = ?", claimID)
	if withResident {
		q = q.Preload("Resident")
	}
	var txs []models.Transaction
	err := q.Order("claim_reference asc").Find(&txs).Error
	return txs, err
}

func toHTTP(err error, msg string) error {
	if IsRuleError(err) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return respond.Internal(msg, err)
}

// -------------------------
// Claim CRUD
// -------------------------

// POST /api/claims
func CreateClaimHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateClaimRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}
		from, _ := respond.ParseOptionalDate(body.PeriodFrom)
		to, _ := respond.ParseOptionalDate(body.PeriodTo)

		if len(body.TransactionIDs) == 0 && (from == nil || to == nil) {
			return respond.Invalid("transaction_ids", "give transaction_ids or both period_from and period_to")
		}
		if from != nil && to != nil && to.Before(*from) {
			return respond.Invalid("period_to", "must be on or after period_from")
		}

		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		in := BuildInput{
			TransactionIDs: body.TransactionIDs,
			PeriodFrom:     from,
			PeriodTo:       to,
			Notes:          body.Notes,
			CreatedBy:      &actor.UserID,
		}
		if body.HouseID != nil {
			in.ResidentIDs = residents.InHouse(database.DB, *body.HouseID)
		}

		claim, err := Build(database.DB, in, time.Now())
		if err != nil {
			return toHTTP(err, "could not create claim")
		}

		audit.Record(c, "claim", claim.ID, models.AuditActionCreate,
			fmt.Sprintf("Claim %s created: %d lines, %.2f", claim.ClaimNumber, len(claim.Transactions), claim.TotalAmount),
			nil, claim)

		return respond.Created(c, ClaimDetail{Claim: *claim, Lines: claim.Transactions})
	}
}

// GET /api/claims?status=&from=&to=
func ListClaimsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)

		dbq := database.DB.Model(&models.Claim{})
		if status := c.Query("status"); status != "" {
			dbq = dbq.Where("status = ?", status)
		}
		from, err := respond.QueryDate(c, "from")
		if err != nil {
			return err
		}
		if from != nil {
			dbq = dbq.Where("created_at >= ?", *from)
		}
		to, err := respond.QueryDate(c, "to")
		if err != nil {
			return err
		}
		if to != nil {
			dbq = dbq.Where("created_at < ?", to.AddDate(0, 0, 1))
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count claims", err)
		}

		var claims []models.Claim
		if err := page.Apply(dbq).Order("created_at desc").Find(&claims).Error; err != nil {
			return respond.Internal("could not list claims", err)
		}
		return respond.List(c, claims, page, total)
	}
}

// GET /api/claims/:id
func GetClaimHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		claim, err := findClaim(id)
		if err != nil {
			return err
		}
		txs, err := lines(claim.ID, false)
		if err != nil {
			return respond.Internal("could not load claim lines", err)
		}
		return respond.OK(c, ClaimDetail{Claim: *claim, Lines: txs})
	}
}

// DELETE /api/claims/:id
func DeleteClaimHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		claim, err := findClaim(id)
		if err != nil {
			return err
		}

		if err := Delete(database.DB, claim); err != nil {
			return toHTTP(err, "could not delete claim")
		}

		audit.Record(c, "claim", claim.ID, models.AuditActionDelete,
			fmt.Sprintf("Claim %s deleted, transactions released", claim.ClaimNumber), claim, nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PUT /api/claims/:id/status
func UpdateClaimStatusHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		claim, err := findClaim(id)
		if err != nil {
			return err
		}

		var body StatusRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := *claim
		if err := SetStatus(database.DB, claim, models.ClaimStatus(body.Status), time.Now()); err != nil {
			return toHTTP(err, "could not update claim status")
		}

		audit.Record(c, "claim", claim.ID, models.AuditActionUpdate,
			fmt.Sprintf("Claim %s marked %s", claim.ClaimNumber, claim.Status), before, claim)

		return respond.OK(c, claim)
	}
}

// -------------------------
// Export / Response
// -------------------------

// GET|POST /api/claims/:id/export?format=csv|xlsx
func ExportClaimHandler(cfg *config.Config) fiber.Handler {
	provider := Provider{RegistrationNumber: cfg.ClaimRegistrationNumber, ABN: cfg.ClaimProviderABN}

	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		format := strings.ToLower(c.Query("format", "csv"))
		if format != "csv" && format != "xlsx" {
			return respond.Invalid("format", "must be csv or xlsx")
		}

		claim, err := findClaim(id)
		if err != nil {
			return err
		}
		txs, err := lines(claim.ID, true)
		if err != nil {
			return respond.Internal("could not load claim lines", err)
		}
		if len(txs) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "claim has no lines")
		}

		var buf bytes.Buffer
		rows := RequestRows(provider, txs)
		contentType := "text/csv; charset=utf-8"
		if format == "xlsx" {
			err = WriteXLSX(&buf, rows)
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		} else {
			err = WriteCSV(&buf, rows)
		}
		if err != nil {
			return respond.Internal("could not build export file", err)
		}

		wasDraft := claim.Status == models.ClaimStatusDraft
		if err := MarkSubmitted(database.DB, claim, time.Now()); err != nil {
			return respond.Internal("could not submit claim", err)
		}
		if wasDraft {
			audit.Record(c, "claim", claim.ID, models.AuditActionUpdate,
				fmt.Sprintf("Claim %s exported and submitted", claim.ClaimNumber), nil, claim)
		}
		metrics.RecordClaimExport(format)

		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.%s"`, claim.ClaimNumber, format))
		return c.Send(buf.Bytes())
	}
}

// POST /api/claims/:id/response
// Accepts a multipart "file" field (.csv or .xlsx) or a raw CSV body.
func UploadResponseHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := respond.ParamID(c)
		if err != nil {
			return err
		}
		claim, err := findClaim(id)
		if err != nil {
			return err
		}

		var (
			r    io.Reader
			xlsx bool
		)
		if fh, ferr := c.FormFile("file"); ferr == nil {
			name := strings.ToLower(fh.Filename)
			if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".xlsx") {
				return respond.Invalid("file", "must be a .csv or .xlsx file")
			}
			f, err := fh.Open()
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "could not open uploaded file")
			}
			defer f.Close()
			r, xlsx = f, strings.HasSuffix(name, ".xlsx")
		} else if len(c.Body()) > 0 && !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
			r = bytes.NewReader(c.Body())
		} else {
			return respond.Invalid("file", "no response file uploaded")
		}

		rows, err := ParseResponse(r, xlsx)
		if err != nil {
			if errors.Is(err, ErrMissingReferenceColumn) {
				return respond.Invalid("file", err.Error())
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		before := *claim
		result, err := Reconcile(database.DB, claim, rows, time.Now())
		if err != nil {
			return toHTTP(err, "could not reconcile claim response")
		}

		audit.Record(c, "claim", claim.ID, models.AuditActionUpdate,
			fmt.Sprintf("Claim %s response: %d paid, %d rejected, %d unmatched",
				claim.ClaimNumber, result.Paid, result.Rejected, result.Unmatched), before, claim)

		return respond.OK(c, result)
	}
}
