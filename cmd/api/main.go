package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ministrylabs/attendance-api/api/swagger"
	"github.com/ministrylabs/attendance-api/internal/handler"
	"github.com/ministrylabs/attendance-api/internal/middleware"
	"github.com/ministrylabs/attendance-api/internal/repository"
	"github.com/ministrylabs/attendance-api/internal/service"
	"github.com/ministrylabs/attendance-api/pkg/cache"
	"github.com/ministrylabs/attendance-api/pkg/config"
	"github.com/ministrylabs/attendance-api/pkg/database"
	"github.com/ministrylabs/attendance-api/pkg/logger"
	corsmiddleware "github.com/ministrylabs/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/ministrylabs/attendance-api/pkg/middleware/requestid"
)

// @title Ministry Attendance API
// @version 1.0.0
// @description Multi-tenant attendance and membership backend
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	cacheRepo := repository.NewCacheRepository(nil)
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, session list cache disabled", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient)
		}
	}

	userRepo := repository.NewUserRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	programRepo := repository.NewProgramRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	metricsSvc := service.NewMetricsService()
	accessSvc := service.NewAccessService(userRepo, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, departmentRepo, accessSvc, nil, logr)
	departmentSvc := service.NewDepartmentService(departmentRepo, nil, logr)
	programSvc := service.NewProgramService(programRepo, departmentRepo, accessSvc, nil, logr)
	studentSvc := service.NewStudentService(studentRepo, departmentRepo, accessSvc, nil, logr)
	attendanceSvc := service.NewAttendanceService(
		attendanceRepo,
		studentRepo,
		programRepo,
		departmentRepo,
		accessSvc,
		cacheRepo,
		cfg.Cache.SessionListTTL,
		metricsSvc,
		nil,
		logr,
	)

	handlers := handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc),
		Users:      handler.NewUserHandler(userSvc),
		Department: handler.NewDepartmentHandler(departmentSvc),
		Program:    handler.NewProgramHandler(programSvc),
		Student:    handler.NewStudentHandler(studentSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc, cfg.Export.Enabled),
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r, handlers, authSvc, userRepo)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
