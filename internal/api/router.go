package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/handlers"
	"github.com/covecrm/covecrm/internal/middleware"
	"github.com/covecrm/covecrm/internal/models"
	"github.com/covecrm/covecrm/internal/services"
)

// Deps bundles everything the router needs. All services are required; the
// rate store and CORS origins are optional.
type Deps struct {
	DB        *gorm.DB
	JWT       *iauth.JWTService
	Sessions  *iauth.SessionService
	Login     *services.LoginService
	TwoFactor *services.TwoFactorService
	Recovery  *services.RecoveryService
	Companies *services.CompanyService
	FollowUps *services.FollowUpService
	Staff     *services.StaffService
	Dashboard *services.DashboardService
	Users     *services.UserService
	Audit     *services.AuditService
	Reports   *services.ReportService

	RateStore   middleware.RateStore
	CORSOrigins []string
}

func (d Deps) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("router: database handle must be provided")
	case d.JWT == nil:
		return fmt.Errorf("router: jwt service must be provided")
	case d.Sessions == nil:
		return fmt.Errorf("router: session service must be provided")
	case d.Login == nil:
		return fmt.Errorf("router: login service must be provided")
	case d.TwoFactor == nil:
		return fmt.Errorf("router: twofactor service must be provided")
	case d.Recovery == nil:
		return fmt.Errorf("router: recovery service must be provided")
	case d.Companies == nil:
		return fmt.Errorf("router: company service must be provided")
	case d.FollowUps == nil:
		return fmt.Errorf("router: followup service must be provided")
	case d.Staff == nil:
		return fmt.Errorf("router: staff service must be provided")
	case d.Dashboard == nil:
		return fmt.Errorf("router: dashboard service must be provided")
	case d.Users == nil:
		return fmt.Errorf("router: user service must be provided")
	case d.Audit == nil:
		return fmt.Errorf("router: audit service must be provided")
	case d.Reports == nil:
		return fmt.Errorf("router: report service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(deps.CORSOrigins))
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimit(deps.RateStore, 100, time.Minute))

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Login, deps.Sessions)
	twoFactorHandler := handlers.NewTwoFactorHandler(deps.TwoFactor)
	recoveryHandler := handlers.NewRecoveryHandler(deps.Recovery, deps.Sessions)

	// Public auth routes
	r.POST("/api/login", authHandler.Login)
	r.POST("/api/refresh", authHandler.Refresh)

	// Public backup channel: these serve users locked out of their
	// authenticator, so they cannot sit behind Auth.
	backup := r.Group("/api/2fa")
	{
		backup.POST("/backup-otp/send", recoveryHandler.SendBackupOTP)
		backup.POST("/backup-otp/verify", recoveryHandler.VerifyBackupOTP)
		backup.GET("/disable-confirm", recoveryHandler.ConfirmDisable)
	}

	requireAuth := middleware.Auth(deps.JWT)
	requireAdmin := middleware.RequireRole(deps.DB, models.AdminRoleID)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.POST("/logout", authHandler.Logout)
	api.GET("/me", authHandler.Me)

	// Two-factor lifecycle
	twofa := api.Group("/2fa")
	{
		twofa.POST("/generate", twoFactorHandler.Generate)
		twofa.POST("/enable", twoFactorHandler.Enable)
		twofa.POST("/disable", twoFactorHandler.Disable)
		twofa.GET("/status", twoFactorHandler.Status)
		twofa.POST("/disable-request", recoveryHandler.RequestDisable)
		twofa.POST("/enforce", requireAdmin, twoFactorHandler.Enforce)
	}

	// Companies
	companyHandler := handlers.NewCompanyHandler(deps.Companies)
	staffHandler := handlers.NewStaffHandler(deps.Staff)
	companies := api.Group("/companies")
	{
		companies.GET("", companyHandler.List)
		companies.GET("/types", companyHandler.Types)
		companies.GET("/cities", companyHandler.Cities)
		companies.GET("/:id", companyHandler.Get)
		companies.GET("/:id/staff", staffHandler.ListByCompany)
		companies.POST("", companyHandler.Create)
		companies.POST("/bulk-delete", companyHandler.BulkDelete)
		companies.PUT("/:id", companyHandler.Update)
		companies.PATCH("/:id/status", companyHandler.UpdateStatus)
		companies.DELETE("/:id", companyHandler.Delete)
	}

	// Follow-ups
	followUpHandler := handlers.NewFollowUpHandler(deps.FollowUps)
	followUps := api.Group("/follow-ups")
	{
		followUps.GET("", followUpHandler.List)
		followUps.GET("/today", followUpHandler.DueToday)
		followUps.GET("/:id", followUpHandler.Get)
		followUps.POST("", followUpHandler.Create)
		followUps.PUT("/:id", followUpHandler.Update)
		followUps.POST("/:id/complete", followUpHandler.Complete)
		followUps.POST("/:id/cancel", followUpHandler.Cancel)
		followUps.DELETE("/:id", followUpHandler.Delete)
	}

	// Staff contacts
	staff := api.Group("/staff")
	{
		staff.GET("/:id", staffHandler.Get)
		staff.POST("", staffHandler.Create)
		staff.PUT("/:id", staffHandler.Update)
		staff.DELETE("/:id", staffHandler.Delete)
	}

	// Dashboard
	dashboardHandler := handlers.NewDashboardHandler(deps.Dashboard)
	api.GET("/dashboard", dashboardHandler.Summary)

	// Account administration
	userHandler := handlers.NewUserHandler(deps.Users)
	users := api.Group("/users", requireAdmin)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", userHandler.Create)
		users.PUT("/:id", userHandler.Update)
	}

	// Activity log
	activityHandler := handlers.NewActivityLogHandler(deps.Audit, deps.Reports)
	api.GET("/activity-logs", requireAdmin, activityHandler.List)
	api.POST("/activity-logs/send-report", requireAdmin, activityHandler.SendReport)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
