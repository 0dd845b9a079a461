package respond

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// ParamID reads the :id route parameter.
func ParamID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// QueryUint reads an optional positive integer query parameter.
func QueryUint(c *fiber.Ctx, key string) (*uint, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" is invalid")
	}
	u := uint(n)
	return &u, nil
}

// QueryDate reads an optional YYYY-MM-DD query parameter.
func QueryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	s := c.Query(key)
	if s == "" {
		return nil, nil
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" must be YYYY-MM-DD")
	}
	return &d, nil
}
