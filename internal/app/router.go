package app

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/middleware"
	"assessment_backend/internal/model"
	"assessment_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		a.registerStudentRoutes(authGroup, c)
		a.registerTeacherRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	assessment := rg.Group("/courses/:courseId/assessments/:assessmentId")
	{
		assessment.POST("/generate", c.session.Generate)
		assessment.POST("/answer", c.session.Answer)
		assessment.GET("/state", c.session.GetState)
	}
}

func (a *App) registerTeacherRoutes(rg *gin.RouterGroup, c *controllers) {
	course := rg.Group("/teacher/courses/:courseId")
	course.Use(middleware.RoleMiddleware(model.Teacher))
	course.GET("/gradebook/dead-letters", c.teacher.ListDeadLetters)

	teacher := course.Group("/assessments/:assessmentId")
	{
		teacher.PUT("/config", c.teacher.PutConfig)
		teacher.POST("/questions", c.teacher.AddQuestions)
		teacher.GET("/questions", c.teacher.ListQuestions)
		teacher.GET("/submissions", c.teacher.ListSubmissions)
		teacher.GET("/grades", c.teacher.ListGrades)
		teacher.GET("/students/:studentKey/answer-key", c.teacher.GetAnswerKey)
		teacher.POST("/students/:studentKey/grade", c.teacher.Grade)
	}
}
