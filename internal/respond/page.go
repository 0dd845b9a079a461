package respond

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Page struct {
	Number int
	Size   int
}

// ParsePage reads ?page=&page_size=. Bad or missing values fall back to the
// defaults instead of failing the request.
func ParsePage(c *fiber.Ctx) Page {
	p := Page{Number: 1, Size: DefaultPageSize}
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(c.Query("page_size")); err == nil && n > 0 {
		p.Size = n
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Apply adds LIMIT/OFFSET to a query.
func (p Page) Apply(db *gorm.DB) *gorm.DB {
	return db.Limit(p.Size).Offset(p.Offset())
}
