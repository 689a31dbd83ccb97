package main

import (
	"log"

	_ "fxdesk/api/swagger" // swagger docs
	"fxdesk/internal/config"
	"fxdesk/internal/database"
	"fxdesk/internal/handler"
	"fxdesk/internal/middleware"
	"fxdesk/internal/repository"
	"fxdesk/internal/service"
	"fxdesk/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           FX Margin API
// @version         1.0
// @description     Manages margin validity intervals and their links to historical exchange rates.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logWriter := cfg.LogWriter()
	log.SetOutput(logWriter)
	gin.SetMode(cfg.GinMode)
	gin.DefaultWriter = logWriter
	middleware.SetJWTSecret([]byte(cfg.JWTSecret))

	db, err := database.NewConnection(cfg.DSN())
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	marginRepo := repository.NewMarginRepository(db, cfg.TimelineLockKey)
	rateRepo := repository.NewExchangeRateRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	marginService := service.NewMarginService(marginRepo, rateRepo, auditRepo, txManager, wsHub)
	rateService := service.NewRateService(rateRepo)
	auditService := service.NewAuditService(auditRepo)

	marginHandler := handler.NewMarginHandler(marginService, auditService)
	rateHandler := handler.NewRateHandler(rateService)

	router := gin.Default()
	router.Use(middleware.Metrics())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(503, gin.H{"status": "DB_UNAVAILABLE"})
			return
		}
		c.JSON(200, gin.H{"status": "OK"})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	marginHandler.RegisterRoutes(router.Group(""))
	rateHandler.RegisterRoutes(router.Group(""))

	log.Printf("Server listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
