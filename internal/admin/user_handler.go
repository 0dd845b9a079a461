package admin

import (
	"errors"
	"fmt"
	"strings"

	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/database"
	"housing-backend/internal/models"
	"housing-backend/internal/respond"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin house_manager"`
	HouseID  *uint  `json:"house_id"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email    *string `json:"email" validate:"omitempty,email,max=100"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin house_manager"`
	HouseID  *uint   `json:"house_id"`
}

// ----------------------------------------
// Helpers
// ----------------------------------------

func findUser(c *fiber.Ctx) (*models.User, error) {
	id, err := respond.ParamID(c)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := database.DB.First(&u, id).Error; err != nil {
		return nil, respond.NotFoundOr(err, "user not found")
	}
	return &u, nil
}

func checkEmail(email string, exclude uint) error {
	var exist models.User
	err := database.DB.Where("email = ? AND id <> ?", email, exclude).First(&exist).Error
	if err == nil {
		return fiber.NewError(fiber.StatusConflict, "email is already registered")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return respond.Internal("could not check email", err)
	}
	return nil
}

// checkRoleHouse enforces that house managers have a house and admins none.
func checkRoleHouse(u *models.User) error {
	if u.Role == models.RoleAdmin {
		u.HouseID = nil
		return nil
	}
	if u.HouseID == nil {
		return respond.Invalid("house_id", "is required for house managers")
	}
	var n int64
	if err := database.DB.Model(&models.House{}).Where("id = ?", *u.HouseID).Count(&n).Error; err != nil {
		return respond.Internal("could not load house", err)
	}
	if n == 0 {
		return respond.Invalid("house_id", "house not found")
	}
	return nil
}

// lastAdmin reports whether u is the only remaining admin.
func lastAdmin(u *models.User) (bool, error) {
	if u.Role != models.RoleAdmin {
		return false, nil
	}
	var n int64
	if err := database.DB.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&n).Error; err != nil {
		return false, respond.Internal("could not count admins", err)
	}
	return n <= 1, nil
}

// ----------------------------------------
// User CRUD
// ----------------------------------------

// POST /api/admin/users
func CreateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateUserRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		user := models.User{
			Name:    strings.TrimSpace(body.Name),
			Email:   strings.ToLower(strings.TrimSpace(body.Email)),
			Role:    models.UserRole(body.Role),
			HouseID: body.HouseID,
		}
		if err := checkRoleHouse(&user); err != nil {
			return err
		}
		if err := checkEmail(user.Email, 0); err != nil {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return respond.Internal("could not hash password", err)
		}
		user.PasswordHash = string(hash)

		if err := database.DB.Create(&user).Error; err != nil {
			return respond.Internal("could not create user", err)
		}

		audit.Record(c, "user", user.ID, models.AuditActionCreate,
			fmt.Sprintf("User created: %s (%s)", user.Email, user.Role), nil, auth.ToUserResponse(user))
		return respond.Created(c, auth.ToUserResponse(user))
	}
}

// GET /api/admin/users?role=&house_id=
func ListUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := respond.ParsePage(c)
		dbq := database.DB.Model(&models.User{})
		if role := c.Query("role"); role != "" {
			dbq = dbq.Where("role = ?", role)
		}
		houseID, err := respond.QueryUint(c, "house_id")
		if err != nil {
			return err
		}
		if houseID != nil {
			dbq = dbq.Where("house_id = ?", *houseID)
		}

		var total int64
		if err := dbq.Count(&total).Error; err != nil {
			return respond.Internal("could not count users", err)
		}
		var users []models.User
		if err := page.Apply(dbq).Order("created_at DESC").Find(&users).Error; err != nil {
			return respond.Internal("could not list users", err)
		}

		res := make([]auth.UserResponse, 0, len(users))
		for _, u := range users {
			res = append(res, auth.ToUserResponse(u))
		}
		return respond.List(c, res, page, total)
	}
}

// PUT /api/admin/users/:id
func UpdateUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := findUser(c)
		if err != nil {
			return err
		}
		var body UpdateUserRequest
		if err := respond.ParseBody(c, &body); err != nil {
			return err
		}

		before := auth.ToUserResponse(*user)
		if body.Role != nil && models.UserRole(*body.Role) != user.Role {
			last, err := lastAdmin(user)
			if err != nil {
				return err
			}
			if last {
				return fiber.NewError(fiber.StatusConflict, "cannot demote the last admin")
			}
			user.Role = models.UserRole(*body.Role)
		}
		if body.Name != nil {
			user.Name = strings.TrimSpace(*body.Name)
		}
		if body.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*body.Email))
			if email != user.Email {
				if err := checkEmail(email, user.ID); err != nil {
					return err
				}
				user.Email = email
			}
		}
		if body.HouseID != nil {
			user.HouseID = body.HouseID
		}
		if err := checkRoleHouse(user); err != nil {
			return err
		}
		if body.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*body.Password), bcrypt.DefaultCost)
			if err != nil {
				return respond.Internal("could not hash password", err)
			}
			user.PasswordHash = string(hash)
		}

		if err := database.DB.Save(user).Error; err != nil {
			return respond.Internal("could not update user", err)
		}

		audit.Record(c, "user", user.ID, models.AuditActionUpdate,
			fmt.Sprintf("User updated: %s", user.Email), before, auth.ToUserResponse(*user))
		return respond.OK(c, auth.ToUserResponse(*user))
	}
}

// DELETE /api/admin/users/:id
func DeleteUserHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := findUser(c)
		if err != nil {
			return err
		}
		actor, err := auth.CurrentActor(c)
		if err != nil {
			return err
		}
		if actor.UserID == user.ID {
			return fiber.NewError(fiber.StatusBadRequest, "you cannot delete your own account")
		}
		last, err := lastAdmin(user)
		if err != nil {
			return err
		}
		if last {
			return fiber.NewError(fiber.StatusConflict, "cannot delete the last admin")
		}

		if err := database.DB.Delete(&models.User{}, user.ID).Error; err != nil {
			return respond.Internal("could not delete user", err)
		}

		audit.Record(c, "user", user.ID, models.AuditActionDelete,
			fmt.Sprintf("User deleted: %s", user.Email), auth.ToUserResponse(*user), nil)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
