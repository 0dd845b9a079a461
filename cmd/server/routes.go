package main

import (
	"context"
	"strings"
	"time"

	"housing-backend/internal/admin"
	"housing-backend/internal/audit"
	"housing-backend/internal/auth"
	"housing-backend/internal/automations"
	"housing-backend/internal/claims"
	"housing-backend/internal/config"
	"housing-backend/internal/dashboard"
	"housing-backend/internal/database"
	"housing-backend/internal/directory"
	"housing-backend/internal/expense"
	"housing-backend/internal/funding"
	"housing-backend/internal/houses"
	"housing-backend/internal/logging"
	"housing-backend/internal/metrics"
	"housing-backend/internal/models"
	"housing-backend/internal/residents"
	"housing-backend/internal/respond"
	"housing-backend/internal/suppliers"
	"housing-backend/internal/transactions"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// newApp builds the fiber app with every route. runner serves the run-now
// endpoint of automations.
func newApp(cfg *config.Config, runner *automations.Runner) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: respond.ErrorHandler,
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logging.RequestLogger())
	app.Use(metrics.Middleware())

	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.CORSOriginList(), ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: "Content-Disposition",
	}))

	app.Get("/metrics", metrics.Handler())
	app.Get("/healthz", healthHandler())

	api := app.Group("/api")

	// Public auth
	loginLimiter := auth.NewRateLimiter(cfg.LoginRatePerMinute)
	api.Post("/auth/register-admin", loginLimiter.Handler(), auth.RegisterAdminHandler())
	api.Post("/auth/login", loginLimiter.Handler(), auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("", auth.JWTMiddleware(cfg.JWTSecret))
	adminOnly := auth.RequireRole(models.RoleAdmin)

	protected.Get("/auth/me", auth.MeHandler())

	// User management
	users := protected.Group("/admin", adminOnly)
	users.Post("/users", admin.CreateUserHandler())
	users.Get("/users", admin.ListUsersHandler())
	users.Put("/users/:id", admin.UpdateUserHandler())
	users.Delete("/users/:id", admin.DeleteUserHandler())

	// Houses
	protected.Get("/houses", houses.ListHousesHandler())
	protected.Get("/houses/:id", houses.GetHouseHandler())
	protected.Get("/houses/:id/residents", houses.ListHouseResidentsHandler())
	protected.Post("/houses", adminOnly, houses.CreateHouseHandler())
	protected.Put("/houses/:id", adminOnly, houses.UpdateHouseHandler())
	protected.Delete("/houses/:id", adminOnly, houses.DeleteHouseHandler())

	// Residents
	protected.Post("/residents", residents.CreateResidentHandler())
	protected.Get("/residents", residents.ListResidentsHandler())
	protected.Get("/residents/:id", residents.GetResidentHandler())
	protected.Put("/residents/:id", residents.UpdateResidentHandler())
	protected.Delete("/residents/:id", residents.DeleteResidentHandler())
	protected.Get("/residents/:id/contracts", funding.ListResidentContractsHandler())
	protected.Get("/residents/:id/transactions", transactions.ListResidentTransactionsHandler())

	// Owners, plan managers, contacts
	protected.Get("/owners", directory.ListOwnersHandler())
	protected.Get("/owners/:id", directory.GetOwnerHandler())
	protected.Post("/owners", adminOnly, directory.CreateOwnerHandler())
	protected.Put("/owners/:id", adminOnly, directory.UpdateOwnerHandler())
	protected.Delete("/owners/:id", adminOnly, directory.DeleteOwnerHandler())

	protected.Get("/plan-managers", directory.ListPlanManagersHandler())
	protected.Get("/plan-managers/:id", directory.GetPlanManagerHandler())
	protected.Post("/plan-managers", adminOnly, directory.CreatePlanManagerHandler())
	protected.Put("/plan-managers/:id", adminOnly, directory.UpdatePlanManagerHandler())
	protected.Delete("/plan-managers/:id", adminOnly, directory.DeletePlanManagerHandler())

	protected.Post("/contacts", directory.CreateContactHandler())
	protected.Get("/contacts", directory.ListContactsHandler())
	protected.Get("/contacts/:id", directory.GetContactHandler())
	protected.Put("/contacts/:id", directory.UpdateContactHandler())
	protected.Delete("/contacts/:id", directory.DeleteContactHandler())

	// Funding contracts
	protected.Post("/funding-contracts", funding.CreateContractHandler())
	protected.Get("/funding-contracts", funding.ListContractsHandler())
	protected.Get("/funding-contracts/:id", funding.GetContractHandler())
	protected.Get("/funding-contracts/:id/drawdown", funding.DrawdownSummaryHandler())
	protected.Put("/funding-contracts/:id", funding.UpdateContractHandler())
	protected.Delete("/funding-contracts/:id", funding.DeleteContractHandler())

	// Transactions
	protected.Post("/transactions/preview", transactions.PreviewHandler())
	protected.Post("/transactions/bulk-post", transactions.BulkPostHandler())
	protected.Post("/transactions", transactions.CreateTransactionHandler())
	protected.Get("/transactions", transactions.ListTransactionsHandler())
	protected.Get("/transactions/:id", transactions.GetTransactionHandler())
	protected.Put("/transactions/:id", transactions.UpdateTransactionHandler())
	protected.Delete("/transactions/:id", transactions.DeleteTransactionHandler())
	protected.Post("/transactions/:id/post", transactions.PostTransactionHandler())
	protected.Post("/transactions/:id/void", transactions.VoidTransactionHandler())

	// Claims span houses
	claimRoutes := protected.Group("/claims", adminOnly)
	claimRoutes.Post("/", claims.CreateClaimHandler())
	claimRoutes.Get("/", claims.ListClaimsHandler())
	claimRoutes.Get("/:id", claims.GetClaimHandler())
	claimRoutes.Delete("/:id", claims.DeleteClaimHandler())
	claimRoutes.Put("/:id/status", claims.UpdateClaimStatusHandler())
	claimRoutes.Get("/:id/export", claims.ExportClaimHandler(cfg))
	claimRoutes.Post("/:id/export", claims.ExportClaimHandler(cfg))
	claimRoutes.Post("/:id/response", claims.UploadResponseHandler())

	// Suppliers
	protected.Get("/suppliers", suppliers.ListSuppliersHandler())
	protected.Get("/suppliers/:id", suppliers.GetSupplierHandler())
	protected.Post("/suppliers", adminOnly, suppliers.CreateSupplierHandler())
	protected.Put("/suppliers/:id", adminOnly, suppliers.UpdateSupplierHandler())
	protected.Delete("/suppliers/:id", adminOnly, suppliers.DeleteSupplierHandler())

	// Expenses
	protected.Get("/expenses/summary/monthly", expense.MonthlyExpenseSummaryHandler())
	protected.Post("/expenses", expense.CreateExpenseHandler())
	protected.Get("/expenses", expense.ListExpensesHandler())
	protected.Get("/expenses/:id", expense.GetExpenseHandler())
	protected.Put("/expenses/:id", expense.UpdateExpenseHandler())
	protected.Delete("/expenses/:id", expense.DeleteExpenseHandler())
	protected.Post("/expenses/:id/pay", expense.PayExpenseHandler())

	// Automations
	autoRoutes := protected.Group("/automations", adminOnly)
	autoRoutes.Post("/", automations.CreateAutomationHandler())
	autoRoutes.Get("/", automations.ListAutomationsHandler())
	autoRoutes.Get("/:id", automations.GetAutomationHandler())
	autoRoutes.Put("/:id", automations.UpdateAutomationHandler())
	autoRoutes.Delete("/:id", automations.DeleteAutomationHandler())
	autoRoutes.Post("/:id/run", automations.RunAutomationHandler(runner))
	autoRoutes.Get("/:id/runs", automations.ListRunsHandler())

	// Dashboard
	protected.Get("/dashboard/summary", dashboard.SummaryHandler())
	protected.Get("/dashboard/drawdown-chart", dashboard.DrawdownChartHandler())

	// Audit logs
	protected.Get("/audit-logs", adminOnly, audit.ListAuditLogsHandler())
	protected.Post("/audit-logs/:id/undo", adminOnly, audit.UndoAuditLogHandler())

	return app
}

// GET /healthz
func healthHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if database.DB == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "no database"})
		}
		sqlDB, err := database.DB.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "database unreachable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
