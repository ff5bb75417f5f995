// Package routesはroutingを行います。
package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"mini-task-manager/internal/config"
	"mini-task-manager/internal/handlers"
	"mini-task-manager/internal/repositories"
	"mini-task-manager/internal/services"
	"mini-task-manager/internal/session"
	"mini-task-manager/web"
)

// SetupRouter はデータベースに接続したリポジトリでGinルーターをセットアップします。
func SetupRouter(db *sqlx.DB, cfg *config.Config) (*gin.Engine, error) {
	return NewRouter(repositories.NewSQLTaskRepo(db), cfg)
}

// NewRouter は任意のTaskRepositoryを使ってすべてのエンドポイントを登録します。
func NewRouter(taskRepo repositories.TaskRepository, cfg *config.Config) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	sessions, err := session.NewManager(cfg.SecretKey, cfg.Lifetime(), cfg.SecureCookies)
	if err != nil {
		return nil, err
	}

	// サービス
	taskService := services.NewTaskService(taskRepo, cfg.TasksPerPage)

	// ハンドラー
	taskHandler := handlers.NewTaskHandler(taskService)
	pageHandler := handlers.NewPageHandler(taskService, sessions)

	r := gin.New()
	r.Use(gin.Logger(), gin.CustomRecovery(RecoveryHandler))

	// CORS対策
	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	r.Use(cors.New(corsConfig))

	r.SetHTMLTemplate(tmpl)
	r.StaticFS("/static", web.Static())
	r.NoRoute(NotFoundHandler)

	// JSON API
	api := r.Group("/api")
	{
		api.GET("/dbcheck", func(c *gin.Context) {
			if err := taskService.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Database connection failed", "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Database connection is healthy"})
		})
		api.GET("/tasks", taskHandler.GetTasksHandler)
		api.POST("/tasks", taskHandler.CreateTaskHandler)
		api.GET("/task/:id", taskHandler.GetTaskByIDHandler)
		api.PUT("/task/:id", taskHandler.UpdateTaskHandler)
		api.DELETE("/task/:id", taskHandler.DeleteTaskHandler)
	}

	// HTML画面 (セッションとCSRF保護付き)
	pages := r.Group("/")
	pages.Use(sessions.Middleware(), sessions.CSRFProtect(CSRFFailureHandler))
	{
		pages.GET("/", pageHandler.IndexHandler)
		pages.GET("/add", pageHandler.AddFormHandler)
		pages.POST("/add", pageHandler.AddTaskHandler)
		pages.GET("/edit/:id", pageHandler.EditFormHandler)
		pages.POST("/edit/:id", pageHandler.EditTaskHandler)
		pages.POST("/delete/:id", pageHandler.DeleteTaskHandler)
		pages.POST("/toggle/:id", pageHandler.ToggleTaskHandler)
	}

	return r, nil
}
