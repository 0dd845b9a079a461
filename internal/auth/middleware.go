package auth

import (
	"strings"

	"housing-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxUserRoleKey = "user_role"
	CtxHouseIDKey  = "house_id"
)

func JWTMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		SetActor(c, Actor{
			UserID:  claims.UserID,
			Name:    claims.Name,
			Role:    claims.Role,
			HouseID: claims.HouseID,
		})
		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "missing role")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "you are not allowed to do this")
	}
}

// Actor is the authenticated user of a request.
type Actor struct {
	UserID  uint
	Name    string
	Role    models.UserRole
	HouseID *uint
}

func SetActor(c *fiber.Ctx, a Actor) {
	c.Locals(CtxUserIDKey, a.UserID)
	c.Locals(CtxUserNameKey, a.Name)
	c.Locals(CtxUserRoleKey, a.Role)
	c.Locals(CtxHouseIDKey, a.HouseID)
}

func CurrentActor(c *fiber.Ctx) (Actor, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return Actor{}, fiber.NewError(fiber.StatusForbidden, "missing user")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return Actor{}, fiber.NewError(fiber.StatusForbidden, "missing role")
	}
	name, _ := c.Locals(CtxUserNameKey).(string)
	houseID, _ := c.Locals(CtxHouseIDKey).(*uint)
	return Actor{UserID: userID, Name: name, Role: role, HouseID: houseID}, nil
}

// HouseScope returns the house a house manager is limited to, or nil for
// admins who see every house.
func HouseScope(c *fiber.Ctx) (*uint, error) {
	a, err := CurrentActor(c)
	if err != nil {
		return nil, err
	}
	if a.Role == models.RoleAdmin {
		return nil, nil
	}
	if a.HouseID == nil {
		return nil, fiber.NewError(fiber.StatusForbidden, "no house assigned to this user")
	}
	return a.HouseID, nil
}

// CanAccessHouse reports whether the request may touch houseID.
func CanAccessHouse(c *fiber.Ctx, houseID uint) error {
	scope, err := HouseScope(c)
	if err != nil {
		return err
	}
	if scope != nil && *scope != houseID {
		return fiber.NewError(fiber.StatusForbidden, "this record belongs to another house")
	}
	return nil
}
