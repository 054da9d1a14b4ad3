package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/zapcampanha/console/internal/api/handler"
	"github.com/zapcampanha/console/internal/api/middleware"
)

type Options struct {
	Env                 string
	HealthHandler       *handler.HealthHandler
	SessionHandler      *handler.SessionHandler
	AccountHandler      *handler.AccountHandler
	CampaignHandler     *handler.CampaignHandler
	AnalyticsHandler    *handler.AnalyticsHandler
	NotificationHandler *handler.NotificationHandler
}

func NewRouter(opts Options) *gin.Engine {
	if opts.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		MaxAge:       12 * time.Hour,
	}))

	api := router.Group("/api")

	opts.HealthHandler.Register(api)
	opts.SessionHandler.Register(api)
	opts.AccountHandler.Register(api)
	opts.CampaignHandler.Register(api)
	opts.AnalyticsHandler.Register(api)
	opts.NotificationHandler.Register(api)

	return router
}
