package app

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/controller"
	"assessment_backend/internal/repository"
	"assessment_backend/internal/service"
	"assessment_backend/pkg/configwatcher"
	"assessment_backend/pkg/database"
	"assessment_backend/pkg/logger"
	"assessment_backend/pkg/monitoring"
	"assessment_backend/pkg/security"
	"assessment_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.Limiter
	tracer          *sdktrace.TracerProvider
	stopWatch       context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	attempt   *repository.AttemptStateRepository
	answerKey *repository.AnswerKeyRepository
	pool      *repository.QuestionPoolRepository
	setting   *repository.AssessmentSettingRepository
	grade     *repository.GradeRecordRepository
	gradebook *repository.GradebookRepository
}

type services struct {
	storage    *service.StorageService
	archive    *service.ArchiveService
	policy     *service.PolicyService
	dispatcher *service.GradebookDispatcher
	session    *service.SessionService
	grading    *service.GradingService
	admin      *service.AssessmentAdminService
}

type controllers struct {
	session *controller.SessionController
	teacher *controller.TeacherController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		attempt:   repository.NewAttemptStateRepository(db),
		answerKey: repository.NewAnswerKeyRepository(db),
		pool:      repository.NewQuestionPoolRepository(db),
		setting:   repository.NewAssessmentSettingRepository(db),
		grade:     repository.NewGradeRecordRepository(db),
		gradebook: repository.NewGradebookRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.archive = service.NewArchiveService(s.storage)
	s.policy = service.NewPolicyService(repos.setting, cfg.Assessment)
	s.dispatcher = service.NewGradebookDispatcher(service.NewLocalGradebook(repos.gradebook), repos.gradebook, cfg.Gradebook)

	var locker service.KeyLocker
	if rdb != nil {
		locker = service.NewRedisKeyLocker(rdb, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second)
	} else {
		locker = service.NewLocalKeyLocker()
	}

	s.session = service.NewSessionService(repos.attempt, repos.pool, s.policy, s.archive, repos.grade, s.dispatcher, locker)
	s.grading = service.NewGradingService(repos.grade, repos.answerKey, s.archive, s.dispatcher, repos.gradebook)
	s.admin = service.NewAssessmentAdminService(repos.setting, repos.pool)

	// 配置热更新只影响策略默认值
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.policy.Update(newCfg.Assessment)
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		session: controller.NewSessionController(s.session),
		teacher: controller.NewTeacherController(s.admin, s.grading),
		health:  controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	a.limiter = security.NewLimiter(cfg.RateLimit.MaxRequests, window)
	router.Use(security.RateLimiter(a.limiter, security.ClientIP))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// Build 基于已建立的连接装配路由与服务，rdb 可为 nil
func Build(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	app.services = app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(app.services, db, rdb)

	// 监控初始化
	monitoring.Init()

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")
	gin.SetMode(cfg.Server.Mode)

	// release 模式默认不迁移，除非显式指定
	migrate := cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate
	db, err := database.InitDB(&cfg.Database, migrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	if rdb == nil {
		logger.Log.Info("Redis not configured, using in-process session locks")
	}

	app := Build(cfg, db, rdb)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("assessment-session", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.startConfigWatcher()

	return app
}

func (a *App) startConfigWatcher() {
	if a.Config.ConfigFile == "" {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel
	go func() {
		err := configwatcher.WatchConfig(ctx, a.Config.ConfigFile, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()
}

// Close 释放后台资源，成绩册队列会先处理完
func (a *App) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.services != nil && a.services.dispatcher != nil {
		a.services.dispatcher.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Println("Server forced to shutdown:", err)
	}

	a.Close()
	log.Println("Server exiting")
}
