package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	"visual_experiment/internal/config"
	"visual_experiment/internal/controller"
	"visual_experiment/internal/repository"
	"visual_experiment/internal/service"
	"visual_experiment/internal/session"
	"visual_experiment/internal/util"
	"visual_experiment/internal/web"
	"visual_experiment/pkg/configwatcher"
	"visual_experiment/pkg/database"
	"visual_experiment/pkg/logger"
	"visual_experiment/pkg/monitoring"
	"visual_experiment/pkg/security"
	"visual_experiment/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	Store           repository.ExperimentStore
	Sessions        session.Store
	Redis           *redis.Client
	Hub             *service.ProgressHub
	tracer          *sdktrace.TracerProvider
	stopHub         context.CancelFunc
	configCallbacks []func(*config.Config)
}

type services struct {
	experiment *service.ExperimentService
	archive    *service.ArchiveService
}

type controllers struct {
	experiment *controller.ExperimentController
	debug      *controller.DebugController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// initStore 按 database.driver 选择 JSON 文件或 gorm 实现，并建表/建文件
func (a *App) initStore(cfg *config.Config) (repository.ExperimentStore, error) {
	var store repository.ExperimentStore

	switch cfg.Database.Driver {
	case util.DriverJSON:
		store = repository.NewJSONStore(cfg.Database.JSONPath)
	case util.DriverSQLite, util.DriverMySQL:
		db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
		if err != nil {
			return nil, err
		}
		store = repository.NewGormStore(db)
	default:
		return nil, fmt.Errorf("%w: %s", util.ErrUnsupportedDriver, cfg.Database.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}

	logger.Log.Info("数据存储初始化完成", zap.String("driver", cfg.Database.Driver))
	return store, nil
}

func (a *App) initSessions(cfg *config.Config) (session.Store, error) {
	opts := session.OptionsFromConfig(&cfg.Session, cfg.Server.Mode)

	switch cfg.Session.Store {
	case util.SessionRedis:
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.Redis = rdb
		return session.NewRedisStore(rdb, opts), nil
	case util.SessionCookie:
		return session.NewCookieStore(cfg.Session.Secret, opts), nil
	default:
		return session.NewMemoryStore(opts), nil
	}
}

func (a *App) initServices(cfg *config.Config, store repository.ExperimentStore) (*services, error) {
	provider, err := service.NewArchiveProvider(&cfg.Archive)
	if err != nil {
		return nil, err
	}

	s := &services{}
	s.archive = service.NewArchiveService(provider)
	s.experiment = service.NewExperimentService(store, s.archive, config.DefaultTrials())
	s.experiment.SetNotifier(a.Hub)
	return s, nil
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		experiment: controller.NewExperimentController(s.experiment, a.Sessions),
		debug:      controller.NewDebugController(s.experiment, a.Hub),
		health:     controller.NewHealthController(a.Store),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.NewRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute).Middleware())

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// New 组装应用；失败时返回错误，由 NewApp 决定是否退出进程
func New(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.initStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.Store = store

	if cfg.InitOnly {
		return a, nil
	}

	sessions, err := a.initSessions(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init sessions: %w", err)
	}
	a.Sessions = sessions

	// 进度推送：使用 Redis 会话时跨实例转发
	a.Hub = service.NewProgressHub(a.Redis)
	hubCtx, stopHub := context.WithCancel(context.Background())
	a.stopHub = stopHub
	go a.Hub.Run(hubCtx)

	svcs, err := a.initServices(cfg, store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init services: %w", err)
	}
	ctrls := a.initControllers(svcs)

	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			a.tracer = tp
		}
	}

	switch cfg.Server.Mode {
	case gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode != gin.TestMode {
		router.Use(gin.Logger())
	}

	tmpl, err := web.Templates()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	a.setupMiddlewares(router, cfg)
	a.registerRoutes(router, ctrls, cfg)
	a.Router = router

	a.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Server.Mode)
	})

	return a, nil
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	a, err := New(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize application", zap.Error(err))
		log.Fatalf("Failed to initialize application: %v", err)
	}
	return a
}

// Close 释放存储、Redis 与 tracer
func (a *App) Close() {
	if a.stopHub != nil {
		a.stopHub()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logger.Log.Error("Failed to close store", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// 启动服务器
	g.Go(func() error {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if a.Config.Server.WatchConfig {
		g.Go(func() error {
			return configwatcher.WatchConfig(gctx, a.Config.ConfigFile, func(newCfg *config.Config) {
				for _, cb := range a.configCallbacks {
					cb(newCfg)
				}
			})
		})
	}

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error("Server stopped with error", zap.Error(err))
	}

	a.Close()
	logger.Log.Info("Server exiting")
}
