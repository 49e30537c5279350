package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/SwiftCourier/SwiftCourier/internal/activeorder"
	"github.com/SwiftCourier/SwiftCourier/internal/common/config"
	"github.com/SwiftCourier/SwiftCourier/internal/common/db"
	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/common/middleware"
	"github.com/SwiftCourier/SwiftCourier/internal/common/server"
	"github.com/SwiftCourier/SwiftCourier/internal/common/tracing"
)

var (
	configPath = flag.String("config", "configs/activeorder-service.json", "配置文件路径")
)

func main() {
	// 本地开发允许 .env 覆盖环境变量，文件不存在时忽略
	_ = godotenv.Load()
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 活跃订单存储（Redis，TTL 兜底过期）
	redisClient, err := db.NewRedis(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		log.Fatalf("failed to init redis: %v", err)
	}
	repo := activeorder.NewRedisRepository(redisClient)

	// 已完成订单归档（MySQL）。未配置数据库时跳过归档，仅做活跃存储。
	var archive activeorder.Archive
	if cfg.Database.Host != "" {
		gormDB, err := db.NewMySQL(
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.Database,
			cfg.Database.MaxIdle,
			cfg.Database.MaxOpen,
		)
		if err != nil {
			log.Fatalf("failed to init mysql: %v", err)
		}
		archive, err = activeorder.NewMySQLArchive(gormDB)
		if err != nil {
			log.Fatalf("failed to init order archive: %v", err)
		}
	} else {
		log.Warn("database not configured, completed orders will not be archived")
	}

	svc := activeorder.NewService(repo, archive, cfg.Tracking.ActiveOrderTTL(), log)

	r := chi.NewRouter()
	r.Use(server.Recovery(log))
	r.Use(server.AccessLog(log))
	r.Use(server.Tracing(cfg.Server.Name))
	r.Use(middleware.RateLimit(middleware.NewSlidingWindow(time.Minute, 6000)))
	if cfg.Auth.Enabled {
		r.Use(server.JWTAuth(cfg.Auth, log))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	activeorder.NewHandler(svc, log).Register(r)

	if err := server.RunHTTPServer(cfg, log, r); err != nil {
		log.Fatalf("activeorder-service exited with error: %v", err)
	}
}
