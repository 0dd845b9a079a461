// Package respond holds the JSON envelope, pagination, request validation and
// the fiber error handler shared by every route.
package respond

import (
	"errors"
	"math"

	"housing-backend/internal/logging"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Envelope struct {
	Success    bool         `json:"success"`
	Data       any          `json:"data,omitempty"`
	Error      string       `json:"error,omitempty"`
	Details    []FieldError `json:"details,omitempty"`
	Pagination *Pagination  `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func OK(c *fiber.Ctx, data any) error {
	return c.JSON(Envelope{Success: true, Data: data})
}

func Created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(Envelope{Success: true, Data: data})
}

func List(c *fiber.Ctx, data any, page Page, total int64) error {
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(page.Size)))
	}
	return c.JSON(Envelope{
		Success: true,
		Data:    data,
		Pagination: &Pagination{
			Page:       page.Number,
			PageSize:   page.Size,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Internal wraps an unexpected error. The cause is logged by ErrorHandler and
// the client only sees msg.
func Internal(msg string, cause error) error {
	return &InternalError{Msg: msg, Cause: cause}
}

type InternalError struct {
	Msg   string
	Cause error
}

func (e *InternalError) Error() string {
	if e.Cause == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Cause.Error()
}

func (e *InternalError) Unwrap() error { return e.Cause }

// NotFoundOr maps gorm.ErrRecordNotFound to a 404 and anything else to a 500.
func NotFoundOr(err error, notFoundMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFoundMsg)
	}
	return Internal("database error", err)
}

// ErrorHandler renders every error as a failure envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(Envelope{
			Success: false,
			Error:   verr.Error(),
			Details: verr.Fields,
		})
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(Envelope{Success: false, Error: fe.Message})
	}

	msg := "unexpected server error"
	var ie *InternalError
	if errors.As(err, &ie) {
		msg = ie.Msg
	}
	logging.Log.Error("unhandled error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(Envelope{Success: false, Error: msg})
}
