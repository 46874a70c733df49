package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"homeai/internal/ai"
	"homeai/internal/app"
	"homeai/internal/bootstrap"
	"homeai/internal/cache"
	"homeai/internal/platform/rabbitmq"
	"homeai/internal/repository"
	"homeai/internal/transport/http/handler"
	"homeai/internal/transport/http/middleware"
)

// NewRouter wires repositories, services and handlers onto a gin engine.
func NewRouter(a *bootstrap.App) *gin.Engine {
	cfg := a.Config
	gin.SetMode(cfg.App.GinMode)

	userRepo := repository.NewUserRepository(a.DB)
	conversationRepo := repository.NewConversationRepository(a.DB)
	messageRepo := repository.NewMessageRepository(a.DB)
	documentRepo := repository.NewDocumentRepository(a.DB)

	llmClient := ai.NewOllamaClient()
	llmConfig := ai.Config{
		BaseURL:        cfg.Ollama.URL,
		Model:          cfg.Ollama.Model,
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
	}

	publisher := rabbitmq.NewMessagePublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue)
	historyCache := cache.NewHistoryCache(
		a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	authService := app.NewAuthService(
		userRepo,
		a.JWTSecret,
		cfg.Auth.Algorithm,
		time.Duration(cfg.Auth.AccessTokenExpireMinute)*time.Minute,
	)
	conversationService := app.NewConversationService(
		conversationRepo, messageRepo, documentRepo,
		publisher, historyCache, llmClient, a.Vectors, llmConfig,
	)
	documentService := app.NewDocumentService(
		documentRepo, conversationRepo, a.Vectors, llmClient, llmConfig,
		cfg.Storage.DocumentsDirectory,
	)

	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(authService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	documentHandler := handler.NewDocumentHandler(documentService)
	healthHandler := handler.NewHealthHandler(a)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "Home AI API"})
	})
	r.GET("/healthz", healthHandler.Check)

	auth := r.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	api := r.Group("/")
	api.Use(middleware.AuthJWT(a.JWTSecret))
	{
		users := api.Group("/users")
		{
			users.GET("/me/details", userHandler.MyDetails)
			users.PUT("/me/profile", userHandler.UpdateMyProfile)
			users.PUT("/me/password", userHandler.ChangeMyPassword)

			admin := users.Group("/", middleware.RequireAdmin())
			{
				admin.PUT("/:user_id/profile", userHandler.UpdateProfile)
				admin.PUT("/:user_id/password", userHandler.ChangePassword)
			}
		}

		conversations := api.Group("/conversations")
		{
			conversations.POST("", conversationHandler.Create)
			conversations.GET("/me", conversationHandler.ListMine)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.GET("/:id/messages", conversationHandler.GetMessages)
			conversations.POST("/:id/continue", conversationHandler.Continue)
		}

		documents := api.Group("/documents")
		{
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("/me", documentHandler.ListMine)
			documents.GET("/:id", documentHandler.Get)
			documents.DELETE("/:id", documentHandler.Delete)
		}
	}

	return r
}
