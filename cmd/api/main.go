package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/warehouse-task-service/internal/application"
	"github.com/wms-platform/warehouse-task-service/internal/domain"
	"github.com/wms-platform/warehouse-task-service/internal/infrastructure/memory"
	mongoRepo "github.com/wms-platform/warehouse-task-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/warehouse-task-service/internal/spatial"
	"github.com/wms-platform/warehouse-task-service/pkg/config"
	"github.com/wms-platform/warehouse-task-service/pkg/events"
	"github.com/wms-platform/warehouse-task-service/pkg/kafka"
	"github.com/wms-platform/warehouse-task-service/pkg/logging"
	"github.com/wms-platform/warehouse-task-service/pkg/metrics"
	"github.com/wms-platform/warehouse-task-service/pkg/middleware"
	"github.com/wms-platform/warehouse-task-service/pkg/mongodb"
)

const serviceName = "warehouse-task-service"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		// Logger is not up yet
		panic(err)
	}

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(cfg.Logging.Level)
	logConfig.Environment = cfg.Logging.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting warehouse-task-service API")

	ctx := context.Background()

	// Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(serviceName))
	taskMetrics := middleware.NewTaskMetrics(m)

	// Task store backend
	var repo domain.TaskRepository
	var readyCheck func() error

	switch cfg.Storage.Backend {
	case "mongodb":
		mongoConfig := mongodb.DefaultConfig()
		mongoConfig.URI = cfg.Mongo.URI
		mongoConfig.Database = cfg.Mongo.Database

		mongoClient, err := mongodb.NewClient(ctx, mongoConfig)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to MongoDB")
			os.Exit(1)
		}
		defer mongoClient.Close(ctx)
		logger.Info("Connected to MongoDB", "database", cfg.Mongo.Database)

		repo = mongoRepo.NewTaskRepository(mongoClient.Database())
		readyCheck = func() error { return mongoClient.HealthCheck(ctx) }
	default:
		repo = memory.NewTaskStore()
		readyCheck = func() error { return nil }
		logger.Info("Using in-memory task store")
	}

	// Kafka producer, optional
	var publisher application.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = cfg.Kafka.Brokers

		producer := kafka.NewProducer(kafkaConfig)
		cbProducer := kafka.NewCircuitBreakerProducer(producer, m, logger)
		defer cbProducer.Close()
		publisher = cbProducer
		logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)
	}

	eventFactory := events.NewEventFactory(serviceName)

	// Spatial registry and stock view
	registry := spatial.NewRegistry(spatial.Metric(cfg.Routing.Metric))
	stock := application.NewStockView()

	// Application components
	planner := application.NewTaskPlanner(repo, registry, stock, application.PlannerConfig{
		DuePressureHours: cfg.Planner.DuePressureHours,
		QueueReliefDepth: cfg.Planner.QueueReliefDepth,
	}, logger)

	engine := application.NewAssignmentEngine(repo, application.AssignmentConfig{
		ClaimAttempts:      cfg.Assignment.ClaimAttempts,
		AllowParallelTasks: cfg.Assignment.AllowParallelTasks,
	}, logger)
	engine.SetMetricHooks(
		func(warehouseID string, workerType domain.WorkerType) {
			taskMetrics.RecordTaskClaimed(warehouseID, string(workerType))
		},
		taskMetrics.RecordClaimConflict,
	)

	optimizer := application.NewRouteOptimizer(cfg.Routing.TwoOptMaxStops)

	service := application.NewTaskService(application.TaskServiceDeps{
		Repo:         repo,
		Planner:      planner,
		Engine:       engine,
		Optimizer:    optimizer,
		Registry:     registry,
		Stock:        stock,
		Publisher:    publisher,
		EventFactory: eventFactory,
		TaskMetrics:  taskMetrics,
		Logger:       logger,
	})

	// Stale assignment sweeper
	sweeper := application.NewSweeper(repo, registry, application.SweeperConfig{
		StaleTimeout:  cfg.Assignment.StaleTimeout,
		SweepInterval: cfg.Assignment.SweepInterval,
	}, logger)
	sweeper.SetMetricHook(func(warehouseID string) {
		taskMetrics.RecordTaskRequeued(warehouseID, "stale")
	})
	sweeper.Start()
	defer sweeper.Stop()

	// Gin router with the standard middleware chain
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readyCheck))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	api := router.Group("/api/v1")
	{
		warehouses := api.Group("/warehouses/:warehouseId")
		{
			warehouses.GET("/work-tasks", listTasksHandler(service, logger))
			warehouses.POST("/work-tasks/plan", planHandler(service, logger))
			warehouses.POST("/work-tasks/assign", assignBatchHandler(service, logger))
			warehouses.POST("/work-tasks/next", nextTaskHandler(service, logger))

			warehouses.POST("/routes/optimize", optimizeRouteHandler(service, logger))
			warehouses.PUT("/map", installMapHandler(service, logger))
			warehouses.PUT("/stock", installStockHandler(service, logger))
		}

		tasks := api.Group("/work-tasks/:taskId")
		{
			tasks.GET("", getTaskHandler(service, logger))
			tasks.POST("/start", startTaskHandler(service, logger))
			tasks.POST("/complete", completeTaskHandler(service, logger))
			tasks.POST("/cancel", cancelTaskHandler(service, logger))
			tasks.POST("/unassign", unassignTaskHandler(service, logger))
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.Server.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
