package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/covecrm/covecrm/internal/api"
	"github.com/covecrm/covecrm/internal/app"
	"github.com/covecrm/covecrm/internal/app/maintenance"
	iauth "github.com/covecrm/covecrm/internal/auth"
	"github.com/covecrm/covecrm/internal/auth/twofactor"
	"github.com/covecrm/covecrm/internal/cache"
	"github.com/covecrm/covecrm/internal/database"
	"github.com/covecrm/covecrm/internal/middleware"
	"github.com/covecrm/covecrm/internal/services"
	"github.com/covecrm/covecrm/pkg/logger"
	"github.com/covecrm/covecrm/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      cache.Store
	SessionSvc *iauth.SessionService
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services, background jobs
// and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	// Redis when available, the database-backed store otherwise.
	var store cache.Store = dbStore
	if stack.Redis != nil {
		store = stack.Redis
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	sessionCfg := cfg.Auth.SessionServiceConfig()
	sessionCfg.Cache = iauth.NewSessionStoreCache(store)

	stack.SessionSvc, err = iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	enforcement, err := services.NewEnforcementPolicy(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise enforcement policy: %w", err)
	}

	engine := twofactor.NewEngine(cfg.TwoFactor.EngineOptions()...)

	signer, err := twofactor.NewLinkSigner(cfg.TwoFactor.LinkSignerConfig(cfg.Server.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("initialise link signer: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	loginSvc, err := services.NewLoginService(stack.DB, engine, stack.SessionSvc, enforcement, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise login service: %w", err)
	}

	twoFactorSvc, err := services.NewTwoFactorService(stack.DB, engine, enforcement, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise two-factor service: %w", err)
	}

	recoverySvc, err := services.NewRecoveryService(stack.DB, engine, signer, store, mailer, auditSvc, twoFactorSvc, cfg.TwoFactor.RecoveryServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise recovery service: %w", err)
	}

	companySvc, err := services.NewCompanyService(stack.DB, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise company service: %w", err)
	}

	followUpSvc, err := services.NewFollowUpService(stack.DB, companySvc, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise follow-up service: %w", err)
	}

	staffSvc, err := services.NewStaffService(stack.DB, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise staff service: %w", err)
	}

	dashboardSvc, err := services.NewDashboardService(stack.DB, followUpSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise dashboard service: %w", err)
	}

	userSvc, err := services.NewUserService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	reportSvc, err := services.NewReportService(auditSvc, userSvc, mailer)
	if err != nil {
		return nil, fmt.Errorf("initialise report service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.SessionSvc, auditSvc, reportSvc,
		maintenance.WithAuditRetentionDays(cfg.Reports.AuditRetentionDays),
		maintenance.WithReportSchedule(cfg.Reports.DailySchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = middleware.NewCacheRateStore(store)

	stack.Router, err = api.NewRouter(api.Deps{
		DB:          stack.DB,
		JWT:         jwtSvc,
		Sessions:    stack.SessionSvc,
		Login:       loginSvc,
		TwoFactor:   twoFactorSvc,
		Recovery:    recoverySvc,
		Companies:   companySvc,
		FollowUps:   followUpSvc,
		Staff:       staffSvc,
		Dashboard:   dashboardSvc,
		Users:       userSvc,
		Audit:       auditSvc,
		Reports:     reportSvc,
		RateStore:   stack.RateStore,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		// Stop returns a context that completes once running jobs finish.
		if stopCtx := s.Cleaner.Stop(); stopCtx != nil {
			<-stopCtx.Done()
		}
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOpenConfig()

	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
