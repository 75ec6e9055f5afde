package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"pressroom/internal/activity"
	"pressroom/internal/handler/api"
	"pressroom/internal/middleware"
	"pressroom/internal/pipeline"
	"pressroom/internal/repository"
)

// Deps carries everything the route tree needs.
type Deps struct {
	Workspaces *repository.WorkspaceRepository
	Jobs       *repository.JobRepository
	Executions *repository.ExecutionRepository
	Runner     *pipeline.Runner
	Feed       *activity.Feed
	Logger     *zap.Logger
	APIKey     string
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, deps Deps) {
	e.Use(echomw.Recover())
	e.Use(middleware.CORS())

	jobHandler := api.NewJobHandler(deps.Workspaces, deps.Jobs, deps.Executions, deps.Runner, deps.Logger)
	workspaceHandler := api.NewWorkspaceHandler(deps.Workspaces, deps.Feed, deps.Logger)

	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(deps.APIKey))

	apiGroup.POST("/workspaces", workspaceHandler.Create)
	apiGroup.GET("/workspaces", workspaceHandler.List)
	apiGroup.GET("/workspaces/:workspace_id", workspaceHandler.Get)
	apiGroup.GET("/workspaces/:workspace_id/activities", workspaceHandler.Activities)
	apiGroup.GET("/workspaces/:workspace_id/executions/:execution_id", jobHandler.GetExecution)

	jobs := apiGroup.Group("/workspaces/:workspace_id/jobs")
	jobs.POST("", jobHandler.Create)
	jobs.GET("", jobHandler.List)
	jobs.GET("/:id", jobHandler.Get)
	jobs.PUT("/:id", jobHandler.Update)
	jobs.DELETE("/:id", jobHandler.Delete)
	jobs.POST("/:id/pause", jobHandler.Pause)
	jobs.POST("/:id/resume", jobHandler.Resume)
	jobs.POST("/:id/run-now", jobHandler.RunNow)
	jobs.GET("/:id/history", jobHandler.History)
	jobs.GET("/:id/stats", jobHandler.Stats)

	// Health check, unauthenticated for load balancers.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
