package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/samber/do/v2"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/gonasi/gonasi-sub007/docs"
	"github.com/gonasi/gonasi-sub007/internal/config"
	"github.com/gonasi/gonasi-sub007/internal/handlers"
	"github.com/gonasi/gonasi-sub007/internal/middleware"
	"github.com/gonasi/gonasi-sub007/internal/services"
)

const shutdownTimeout = 10 * time.Second

// @title           Gonasi Live Sessions API
// @version         1.0
// @description     Live interactive sessions: authoring, presenter control, participant play and real-time fan-out
// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "db_driver", cfg.DBDriver)

	injector := setupDI(cfg)

	control := do.MustInvoke[*services.ControlService](injector)
	if err := control.RestoreTimers(); err != nil {
		slog.Error("failed to restore block timers", "error", err)
		os.Exit(1)
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: newRouter(cfg, injector),
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	do.MustInvoke[*services.BlockTimers](injector).Stop()
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}

func newRouter(cfg *config.Config, injector do.Injector) *gin.Engine {
	authService := do.MustInvoke[*services.AuthService](injector)
	participantService := do.MustInvoke[*services.ParticipantService](injector)

	authHandler := do.MustInvoke[*handlers.AuthHandler](injector)
	orgHandler := do.MustInvoke[*handlers.OrganizationHandler](injector)
	sessionHandler := do.MustInvoke[*handlers.SessionHandler](injector)
	controlHandler := do.MustInvoke[*handlers.ControlHandler](injector)
	participantHandler := do.MustInvoke[*handlers.ParticipantHandler](injector)
	courseHandler := do.MustInvoke[*handlers.CourseHandler](injector)
	uploadHandler := do.MustInvoke[*handlers.UploadHandler](injector)
	wsHandler := do.MustInvoke[*handlers.WSHandler](injector)

	jwtAuth := middleware.JWTAuth(authService)
	participantAuth := middleware.ParticipantAuth(participantService)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Participant-Token"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/ws/sessions/:id", jwtAuth, wsHandler.PresenterSocket)
	r.GET("/ws/play/:code", participantAuth, wsHandler.ParticipantSocket)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		orgs := api.Group("/organizations")
		orgs.Use(jwtAuth)
		{
			orgs.POST("", orgHandler.CreateOrganization)
			orgs.GET("", orgHandler.ListOrganizations)
			orgs.GET("/:id", orgHandler.GetOrganization)
			orgs.GET("/:id/members", orgHandler.ListMembers)
			orgs.POST("/:id/members", orgHandler.AddMember)
			orgs.GET("/:id/sessions", sessionHandler.ListSessions)
			orgs.POST("/:id/sessions", sessionHandler.CreateSession)
			orgs.GET("/:id/courses", courseHandler.ListCourses)
			orgs.POST("/:id/courses", courseHandler.CreateCourse)
			orgs.GET("/:id/storage", uploadHandler.GetStorage)
			orgs.GET("/:id/files", uploadHandler.ListFiles)
			orgs.POST("/:id/files/prepare", uploadHandler.PrepareUpload)
		}

		sessions := api.Group("/sessions")
		sessions.Use(jwtAuth)
		{
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.PUT("/:id", sessionHandler.UpdateSettings)
			sessions.GET("/:id/export", sessionHandler.ExportSession)
			sessions.POST("/:id/import", sessionHandler.ImportSession)
			sessions.POST("/:id/editors", sessionHandler.AddEditor)
			sessions.DELETE("/:id/editors/:userId", sessionHandler.RemoveEditor)

			sessions.POST("/:id/blocks", sessionHandler.AddBlock)
			sessions.PUT("/:id/blocks/reorder", sessionHandler.ReorderBlocks)
			sessions.PUT("/:id/blocks/:blockId", sessionHandler.UpdateBlock)
			sessions.DELETE("/:id/blocks/:blockId", sessionHandler.DeleteBlock)

			sessions.GET("/:id/control", controlHandler.GetControl)
			sessions.GET("/:id/leaderboard", controlHandler.GetLeaderboard)
			sessions.POST("/:id/start", controlHandler.StartSession)
			sessions.POST("/:id/pause", controlHandler.PauseSession)
			sessions.POST("/:id/resume", controlHandler.ResumeSession)
			sessions.POST("/:id/end", controlHandler.EndSession)
			sessions.POST("/:id/navigate/:direction", controlHandler.Navigate)
			sessions.POST("/:id/jump/:index", controlHandler.JumpTo)
			sessions.POST("/:id/blocks/:blockId/:action", controlHandler.BlockAction)
		}

		courses := api.Group("/courses")
		courses.Use(jwtAuth)
		{
			courses.GET("/:id/tiers", courseHandler.ListTiers)
			courses.POST("/:id/tiers", courseHandler.AddTier)
			courses.GET("/:id/pricing/summary", courseHandler.GetPricingSummary)
		}

		api.POST("/files/confirm", uploadHandler.ConfirmUpload)

		play := api.Group("/play")
		{
			play.POST("/join", participantHandler.Join)
			play.GET("/state", participantAuth, participantHandler.GetState)
			play.POST("/leave", participantAuth, participantHandler.Leave)
			play.POST("/responses", participantAuth, participantHandler.SubmitResponse)
			play.POST("/chat", participantAuth, participantHandler.SendChat)
			play.POST("/reactions", participantAuth, participantHandler.SendReaction)
			play.GET("/leaderboard", participantAuth, participantHandler.GetLeaderboard)
		}
	}

	return r
}
