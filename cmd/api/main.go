package main

import (
	"log"
	"os"
	"time"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/database"
	"backend/internal/gateway"
	"backend/internal/handler"
	"backend/internal/idempotency"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Warp Queue API
// @version         1.0
// @description     Venue shout-out queue backend: paid warp transactions, display queue, song requests and settlement.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	dbHost := envOr("DB_HOST", "localhost")
	dbPort := envOr("DB_PORT", "5432")
	dbUser := envOr("DB_USER", "postgres")
	dbPassword := envOr("DB_PASSWORD", "postgres")
	dbName := envOr("DB_NAME", "postgres")
	dbSslMode := envOr("DB_SSLMODE", "disable")

	dsn := "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode

	db, err := database.NewConnection(dsn)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Connected to PostgreSQL successfully.")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	callbackGuard := idempotency.NewGuard(redisClient, 24*time.Hour)

	// Payment gateways come from env credentials; unconfigured providers
	// surface a configuration error at call time.
	gateways := gateway.NewRegistryFromEnv()
	log.Printf("Configured payment gateways: %v", gateways.Providers())

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	txRepo := repository.NewTransactionRepository(db)
	songRepo := repository.NewSongRequestRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	taxProfileRepo := repository.NewTaxProfileRepository(db)
	packageRepo := repository.NewPackageRepository(db)

	reconcileService := service.NewReconcileService(txRepo, songRepo, activityRepo, txManager, wsHub)
	txService := service.NewTransactionService(txRepo, activityRepo, txManager, gateways, reconcileService)
	queueService := service.NewQueueService(txRepo, activityRepo, txManager, wsHub)
	songService := service.NewSongRequestService(songRepo, gateways, wsHub)
	settlementService := service.NewSettlementService(txRepo, songRepo, taxProfileRepo)
	taxProfileService := service.NewTaxProfileService(taxProfileRepo)
	leaderboardService := service.NewLeaderboardService(db)
	catalogService := service.NewCatalogService(packageRepo)

	// Paid song requests self-demote to playing 60s after confirmation.
	songService.StartSweeper(10 * time.Second)

	// Initialize Handlers
	txHandler := handler.NewTransactionHandler(txService)
	callbackHandler := handler.NewCallbackHandler(gateways, reconcileService, callbackGuard)
	displayHandler := handler.NewDisplayHandler(queueService, leaderboardService, wsHub)
	songHandler := handler.NewSongRequestHandler(songService)
	settlementHandler := handler.NewSettlementHandler(settlementService, taxProfileService)
	catalogHandler := handler.NewCatalogHandler(catalogService, leaderboardService)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:5174"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// Register API Routes
	txHandler.RegisterRoutes(router.Group(""))
	callbackHandler.RegisterRoutes(router.Group(""))
	displayHandler.RegisterRoutes(router.Group(""))
	songHandler.RegisterRoutes(router.Group(""))
	settlementHandler.RegisterRoutes(router.Group(""))
	catalogHandler.RegisterRoutes(router.Group(""))

	port := envOr("PORT", "8080")

	log.Printf("Server listening on :%s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
