package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/bharatinvest/catalog"
	"github.com/cppla/bharatinvest/config"
	"github.com/cppla/bharatinvest/controllers"
	"github.com/cppla/bharatinvest/middleware"
	"github.com/cppla/bharatinvest/store"
	"github.com/cppla/bharatinvest/utils"
	"github.com/cppla/bharatinvest/wallet"
)

// Dependencies are the services the handlers are built from.
type Dependencies struct {
	Wallet   *wallet.Service
	Users    store.UserStore
	Reporter store.Reporter
	Catalog  *catalog.Catalog
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(deps Dependencies) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))
	r.Use(middleware.Maintenance())

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(deps.Users, deps.Wallet)
	walletController := controllers.NewWalletController(deps.Wallet)
	rewardsController := controllers.NewRewardsController(deps.Wallet)
	adminController := controllers.NewAdminController(deps.Wallet, deps.Users)
	statsController := controllers.NewStatsController(deps.Reporter)
	configController := controllers.NewConfigController(deps.Catalog)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/password", middleware.AuthRequired(), authController.UpdatePassword)

	// Public endpoints
	api.GET("/stats", statsController.GetStats)
	api.GET("/catalog/plans", configController.GetPlans)
	api.GET("/catalog/deposit-amounts", configController.GetDepositAmounts)
	api.GET("/config/notice", configController.GetNotice)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.GET("/account/stream", walletController.Stream)

	limited := protected.Group("")
	limited.Use(middleware.UserRateLimit(cfg.RateLimitPerMinute))
	limited.GET("/account", walletController.Account)
	limited.GET("/transactions", walletController.ListTransactions)
	limited.GET("/transactions/export", walletController.ExportTransactions)
	limited.GET("/transactions/:id", walletController.GetTransaction)
	limited.DELETE("/transactions/:id", walletController.CancelTransaction)
	limited.GET("/investments", walletController.ListInvestments)
	limited.POST("/investments", walletController.Invest)
	limited.POST("/deposits", walletController.RequestDeposit)
	limited.POST("/withdrawals", walletController.RequestWithdrawal)
	limited.POST("/bank-account", walletController.BindBankAccount)
	limited.POST("/withdrawal-pin", walletController.SetWithdrawalPin)

	limited.POST("/promo", rewardsController.ApplyPromo)
	limited.POST("/checkin", rewardsController.CheckIn)
	limited.GET("/checkin/status", rewardsController.CheckInStatus)
	limited.GET("/achievements", rewardsController.ListAchievements)
	limited.POST("/achievements/claim", rewardsController.ClaimAchievement)
	limited.POST("/treasure/open", rewardsController.OpenTreasure)

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminRequired())
	admin.GET("/users", adminController.ListUsers)
	admin.POST("/transactions/:uid/:id/resolve", adminController.Resolve)
	admin.POST("/accounts/:uid/credit", adminController.Credit)
	admin.POST("/accounts/:uid/ban", adminController.SetBanned)
	admin.GET("/accounts/:uid/audit", adminController.Audit)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40400, "not found")
	})

	return r
}
