package app

import (
	"english_exam_backend/docs"
	"english_exam_backend/internal/config"
	"english_exam_backend/internal/middleware"
	"english_exam_backend/internal/model"
	"english_exam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, ctrls *controllers, repos *repositories, cfg *config.Config) {
	// Swagger文档
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	// Prometheus指标
	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共接口
	public := router.Group("/api")
	{
		public.GET("/health", ctrls.health.HealthCheck)
		public.POST("/register", ctrls.auth.Register)
		public.POST("/login", ctrls.auth.Login)
		public.GET("/subscription/plans", ctrls.subscription.ListPlans)
		public.POST("/payment/webhook", ctrls.subscription.Webhook)
	}

	// 考试会话接口：允许匿名访问，但登录用户携带身份
	session := router.Group("/api")
	session.Use(middleware.TryAuthMiddleware(cfg))
	{
		session.GET("/exams", ctrls.session.ListExams)
		session.POST("/exams/:id/sessions", ctrls.session.StartSession)

		session.GET("/sessions/:attemptId", ctrls.session.GetSession)
		session.DELETE("/sessions/:attemptId", ctrls.session.CloseSession)
		session.POST("/sessions/:attemptId/answers", ctrls.session.RecordAnswer)
		session.POST("/sessions/:attemptId/next", ctrls.session.Next)
		session.POST("/sessions/:attemptId/prev", ctrls.session.Prev)
		session.POST("/sessions/:attemptId/finalize", ctrls.session.Finalize)

		session.POST("/sessions/:attemptId/audio/play", ctrls.session.Play)
		session.POST("/sessions/:attemptId/audio/autoplay-failed", ctrls.session.AutoplayFailed)
		session.POST("/sessions/:attemptId/audio/progress", ctrls.session.AudioProgress)
		session.POST("/sessions/:attemptId/audio/pause", ctrls.session.AudioPause)
		session.POST("/sessions/:attemptId/audio/seek", ctrls.session.AudioSeek)
		session.POST("/sessions/:attemptId/audio/ended", ctrls.session.AudioEnded)
	}

	// 需要认证的接口
	auth := router.Group("/api")
	auth.Use(middleware.AuthMiddleware(cfg))
	auth.Use(middleware.ActivityMiddleware(repos.user))
	{
		auth.GET("/profile", ctrls.auth.GetProfile)
		auth.GET("/attempts", ctrls.session.ListAttempts)
		auth.GET("/attempts/:id/review", ctrls.session.GetReview)
		auth.GET("/subscription/status", ctrls.subscription.GetStatus)
		auth.POST("/subscription/checkout", ctrls.subscription.Checkout)
	}

	// 管理员接口
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.RoleMiddleware(model.Admin))
	{
		admin.POST("/exams", ctrls.exam.CreateExam)
		admin.GET("/exams", ctrls.exam.ListExams)
		admin.GET("/exams/:id", ctrls.exam.GetExamTree)
		admin.PUT("/exams/:id", ctrls.exam.UpdateExam)
		admin.DELETE("/exams/:id", ctrls.exam.DeleteExam)
		admin.PUT("/exams/:id/published", ctrls.exam.SetPublished)
		admin.POST("/exams/import", ctrls.exam.ImportExam)
		admin.GET("/exams/:id/attempts", ctrls.session.ListExamAttempts)

		admin.POST("/exams/:id/chapters", ctrls.exam.CreateChapter)
		admin.PUT("/chapters/:id", ctrls.exam.UpdateChapter)
		admin.DELETE("/chapters/:id", ctrls.exam.DeleteChapter)

		admin.POST("/chapters/:id/pieces", ctrls.exam.CreatePiece)
		admin.PUT("/pieces/:id", ctrls.exam.UpdatePiece)
		admin.DELETE("/pieces/:id", ctrls.exam.DeletePiece)

		admin.POST("/chapters/:id/questions", ctrls.exam.CreateQuestion)
		admin.PUT("/questions/:id", ctrls.exam.UpdateQuestion)
		admin.DELETE("/questions/:id", ctrls.exam.DeleteQuestion)

		admin.POST("/audio", ctrls.exam.UploadAudio)
	}
}
