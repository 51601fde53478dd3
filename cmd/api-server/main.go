package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/stefanovp/faculty-api/api/swagger"
	"github.com/stefanovp/faculty-api/internal/handler"
	"github.com/stefanovp/faculty-api/internal/middleware"
	"github.com/stefanovp/faculty-api/internal/models"
	"github.com/stefanovp/faculty-api/internal/repository"
	"github.com/stefanovp/faculty-api/internal/service"
	"github.com/stefanovp/faculty-api/pkg/cache"
	"github.com/stefanovp/faculty-api/pkg/config"
	"github.com/stefanovp/faculty-api/pkg/database"
	"github.com/stefanovp/faculty-api/pkg/logger"
	corsmiddleware "github.com/stefanovp/faculty-api/pkg/middleware/cors"
	reqidmiddleware "github.com/stefanovp/faculty-api/pkg/middleware/requestid"
	"github.com/stefanovp/faculty-api/pkg/storage"
)

// @title Faculty API
// @version 1.0.0
// @description Role-scoped academic records service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, catalog caching disabled", zap.Error(err))
		redisClient = nil
	}

	files, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Fatal("failed to init upload storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "faculty-api",
		Audience:           []string{"faculty-api"},
	})
	userSvc := service.NewUserService(userRepo, teacherRepo, studentRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, courseRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, teacherRepo, cacheRepo, validate, logr, cfg.Catalog.CacheTTL)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, studentRepo, files, validate, logr, service.EnrollmentServiceConfig{
		MaxAttachmentSize: cfg.Uploads.MaxFileSizeBytes,
	})
	exportSvc := service.NewExportService(enrollmentRepo, courseRepo, studentRepo, logr)
	metricsSvc := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, files, signer)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("")
		authed.Use(middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.PUT("/password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	protected.GET("/metrics/summary", adminOnly, metricsHandler.Summary)

	users := protected.Group("/users", adminOnly)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", middleware.Audit(userRepo, models.AuditActionUserCreate, "users"), userHandler.Create)
		users.PUT("/:id", middleware.Audit(userRepo, models.AuditActionUserUpdate, "users"), userHandler.Update)
	}

	teachers := protected.Group("/teachers")
	{
		teachers.GET("", teacherHandler.List)
		teachers.GET("/:id", teacherHandler.Get)
		teachers.GET("/:id/courses", teacherHandler.Courses)
		teachers.POST("", adminOnly, teacherHandler.Create)
		teachers.PUT("/:id", adminOnly, teacherHandler.Update)
		teachers.DELETE("/:id", adminOnly, teacherHandler.Delete)
	}

	students := protected.Group("/students")
	{
		students.GET("", staff, studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.GET("/:id/transcript/export", exportHandler.StudentTranscript)
		students.POST("", adminOnly, studentHandler.Create)
		students.PUT("/:id", adminOnly, studentHandler.Update)
		students.DELETE("/:id", adminOnly, studentHandler.Delete)
	}

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.GET("/:id/enrollments", staff, enrollmentHandler.Roster)
		courses.GET("/:id/roster/export", staff, exportHandler.CourseRoster)
		courses.POST("", adminOnly, courseHandler.Create)
		courses.PUT("/:id", adminOnly, courseHandler.Update)
		courses.DELETE("/:id", adminOnly, courseHandler.Delete)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", adminOnly, enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", adminOnly, enrollmentHandler.Create)
		enrollments.PUT("/:id", staff, enrollmentHandler.Update)
		enrollments.PUT("/:id/coursework", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), enrollmentHandler.SubmitCoursework)
		enrollments.DELETE("/:id", adminOnly, enrollmentHandler.Delete)
		enrollments.GET("/:id/attachment", enrollmentHandler.AttachmentURL)
	}

	// signed token downloads carry their own authorization
	api.GET("/files/download", enrollmentHandler.DownloadAttachment)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
