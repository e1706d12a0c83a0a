package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"permabay/p120/internal/api/handlers"
	"permabay/p120/internal/api/middleware"
	"permabay/p120/internal/config"
	"permabay/p120/internal/services"
	"permabay/p120/internal/store"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, st store.Store, notifier services.Notifier) *gin.Engine {
	// Initialize services needed by API handlers here.
	registryService := services.NewSlotRegistryService(st)
	queueService := services.NewQueueService(st)
	feeService := services.NewFeeService(cfg)
	lifecycleService := services.NewLifecycleService(st, registryService, queueService, feeService, notifier, cfg)
	assignmentService := services.NewAssignmentService(st, registryService, queueService, notifier, cfg)
	sweeperService := services.NewSweeperService(st, lifecycleService, queueService)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	r.Use(middleware.CORSMiddleware())
	r.Use(rateLimiter.Limit())

	restListingHandler := handlers.NewRestListingHandler(lifecycleService)
	restAdminHandler := handlers.NewRestAdminHandler(lifecycleService, assignmentService, registryService, queueService, sweeperService)
	permalinkHandler := handlers.NewPermalinkHandler(assignmentService)

	// /P1 is an opaque single-segment path; a :param sibling would conflict
	// with the static route table, so permalinks resolve through NoRoute.
	r.NoRoute(permalinkHandler.Resolve)

	v1 := r.Group("/v1")
	{
		// Public routes (rate limiting already applied globally)
		v1.POST("/listing", restListingHandler.CreateListing)
		v1.GET("/listing", restListingHandler.ListListings)
		v1.GET("/listing/:id", restListingHandler.GetListingByID)
		v1.POST("/listing/:id/relist", restListingHandler.RelistListing)
		v1.POST("/listing/:id/withdraw", restListingHandler.WithdrawListing)

		v1.GET("/ping", func(c *gin.Context) {
			if err := st.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
				return
			}
			c.String(http.StatusOK, "pong")
		})

		// Admin routes
		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/listing/:id/approve", restAdminHandler.ApproveListing)
			adminRequired.POST("/listing/:id/reject", restAdminHandler.RejectListing)
			adminRequired.PUT("/slot/:number", restAdminHandler.AssignSlot)
			adminRequired.GET("/slot/:number", restAdminHandler.GetSlot)
			adminRequired.GET("/slots", restAdminHandler.ListSlots)
			adminRequired.GET("/queue/:partition", restAdminHandler.GetQueue)
			adminRequired.POST("/sweep", restAdminHandler.TriggerSweep)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine used by
// deployment tooling and end-to-end tests. Requires the Redis client for the
// getTestEmail endpoint.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Println("Shutdown channel already signaled or blocked.")
			}

		case "getTestEmail":
			var args []string // Expect ["kind", "email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
				return
			}
			kind := args[0]
			emailAddr := args[1]
			redisKey := fmt.Sprintf("mockemail:%s:%s", emailAddr, kind)

			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ {
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey)
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})

	return r
}
