package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gamepulse/churn-backend/internal/artifacts"
	"github.com/gamepulse/churn-backend/internal/clients/openai"
	"github.com/gamepulse/churn-backend/internal/config"
	"github.com/gamepulse/churn-backend/internal/handlers"
	"github.com/gamepulse/churn-backend/internal/logger"
	"github.com/gamepulse/churn-backend/internal/registry"
	"github.com/gamepulse/churn-backend/internal/server"
	"github.com/gamepulse/churn-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	cfg := config.Load(log)

	// Registry
	reg, err := registry.New(cfg.RegistryPath, cfg.DefaultModel, log)
	if err != nil {
		log.Error("Could not init registry", "error", err)
		os.Exit(1)
	}

	// Artifact store
	store := artifacts.NewStore(cfg.FeaturesPath, cfg.ModelsDir, reg, log)

	// Clients
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services from main...")
	dataService := services.NewDataService(store, log)
	predictionService := services.NewPredictionService(store, reg, cfg, log)
	explanationService := services.NewExplanationService(store, log)
	retentionService := services.NewRetentionService(explanationService, cfg.ShapTopFeatures, log)
	chatService := services.NewChatService(
		openaiClient,
		dataService,
		predictionService,
		explanationService,
		retentionService,
		cfg.ShapTopFeatures,
		log,
	)

	// Artifact warmup. Failures only log; artifacts load lazily on the
	// first request that needs them.
	go func() {
		ctx := context.Background()
		if _, err := store.Features(ctx); err != nil {
			log.Warn("Feature table warmup failed", "error", err)
		}
		if _, err := store.Model(ctx, reg.DefaultModel()); err != nil {
			log.Warn("Default model warmup failed", "model_id", reg.DefaultModel(), "error", err)
		}
	}()

	// Handlers
	log.Info("Setting up handlers from main...")
	playerHandler := handlers.NewPlayerHandler(
		reg,
		dataService,
		predictionService,
		explanationService,
		cfg.ListPlayersMax,
		log,
	)
	chatHandler := handlers.NewChatHandler(chatService, log)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		CORSOrigins:   cfg.CORSOrigins,
		PlayerHandler: playerHandler,
		ChatHandler:   chatHandler,
	})

	fmt.Printf("Server listening on :%s\n", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
