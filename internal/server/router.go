package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/gamepulse/churn-backend/internal/handlers"
)

type RouterConfig struct {
	CORSOrigins   []string
	PlayerHandler *handlers.PlayerHandler
	ChatHandler   *handlers.ChatHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api/v1")
	{
		players := api.Group("/players")
		{
			players.GET("", cfg.PlayerHandler.Search)
			players.GET("/games", cfg.PlayerHandler.ListGames)
			players.GET("/models", cfg.PlayerHandler.ListModels)
			players.GET("/summary", cfg.PlayerHandler.Summary)
			players.GET("/:platform/:player_id", cfg.PlayerHandler.Analytics)
		}
		api.POST("/chat", cfg.ChatHandler.Chat)
	}

	return router
}
