package app

import (
	"visual_experiment/docs"
	"visual_experiment/internal/config"
	"visual_experiment/internal/middleware"
	"visual_experiment/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/api/health", c.health.HealthCheck)

	if cfg.Server.StaticDir != "" {
		router.Static("/static", cfg.Server.StaticDir)
	}

	// 1. 参与者页面（依赖会话）
	a.registerExperimentRoutes(router, c)

	// 2. 调试页面
	debug := router.Group("/debug")
	debug.Use(middleware.DebugAuthMiddleware(&cfg.Debug))
	{
		debug.GET("", c.debug.Dump)
		debug.GET("/live", c.debug.Live)
	}
}

func (a *App) registerExperimentRoutes(router *gin.Engine, c *controllers) {
	pages := router.Group("/")
	pages.Use(middleware.SessionMiddleware(a.Sessions))
	{
		pages.GET("/", c.experiment.Index)
		pages.POST("/demographic", c.experiment.Demographic)
		pages.POST("/start_experiment", c.experiment.StartExperiment)
		pages.POST("/assign_group", c.experiment.AssignGroup)

		// 试验组
		pages.GET("/experiment/:trial", c.experiment.ExperimentPhase)
		pages.POST("/submit_instruction", c.experiment.SubmitInstruction)
		pages.GET("/evaluation/:trial", c.experiment.EvaluationPhase)
		pages.POST("/submit_evaluation", c.experiment.SubmitEvaluation)

		// 控制组
		pages.GET("/control_group", c.experiment.ControlGroup)
		pages.GET("/control/:trial", c.experiment.ControlPhase)
		pages.POST("/submit_control_evaluation", c.experiment.SubmitControlEvaluation)

		pages.GET("/thank_you", c.experiment.ThankYou)
	}
}
