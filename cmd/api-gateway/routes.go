package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/cbta-eval-api/internal/handler"
	"github.com/noah-isme/cbta-eval-api/internal/middleware"
	"github.com/noah-isme/cbta-eval-api/internal/models"
	"github.com/noah-isme/cbta-eval-api/internal/service"
	"github.com/noah-isme/cbta-eval-api/pkg/config"
	"github.com/noah-isme/cbta-eval-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cbta-eval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cbta-eval-api/pkg/middleware/requestid"
)

type routeDeps struct {
	cfg     *config.Config
	logger  *zap.Logger
	auth    middleware.TokenValidator
	metrics *service.MetricsService

	auths    *handler.AuthHandler
	users    *handler.UserHandler
	catalog  *handler.CatalogHandler
	sessions *handler.SessionHandler
	exercise *handler.ExerciseHandler
	reports  *handler.ReportHandler
	health   *handler.MetricsHandler
}

func newRouter(d routeDeps) *gin.Engine {
	if d.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	r.GET("/health", d.health.Health)
	r.GET("/metrics", d.health.Prometheus)
	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	api.POST("/auth/login", d.auths.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(d.auth))
	secured.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor))
	secured.GET("/auth/me", d.auths.Me)
	secured.POST("/users", middleware.RequireRoles(models.RoleAdmin), d.users.Create)

	secured.GET("/competences", d.catalog.ListCompetences)
	secured.GET("/competences/:code/behaviors", d.catalog.Behaviors)

	secured.POST("/sessions", d.sessions.Create)
	secured.GET("/sessions", d.sessions.List)
	secured.GET("/sessions/:id", d.sessions.Get)
	secured.POST("/sessions/:id/exercises", d.sessions.CreateExercise)
	secured.GET("/sessions/:id/report", d.sessions.Report)
	secured.POST("/sessions/:id/report", d.sessions.ReportWithRatings)

	secured.PUT("/exercises/:id/observations/:observationId", d.exercise.ToggleObservation)
	secured.PUT("/exercises/:id/complete", d.exercise.Complete)

	if d.reports != nil {
		secured.POST("/reports/generate", d.reports.GenerateReport)
		secured.GET("/reports/status/:id", d.reports.ReportStatus)
		// The signed token authorises the download.
		api.GET("/export/:token", d.reports.DownloadReport)
	}

	return r
}
