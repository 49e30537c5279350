package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/SwiftCourier/SwiftCourier/internal/common/config"
	"github.com/SwiftCourier/SwiftCourier/internal/common/discovery"
	"github.com/SwiftCourier/SwiftCourier/internal/common/logger"
	"github.com/SwiftCourier/SwiftCourier/internal/common/middleware"
	"github.com/SwiftCourier/SwiftCourier/internal/common/server"
	"github.com/SwiftCourier/SwiftCourier/internal/common/tracing"
	"github.com/SwiftCourier/SwiftCourier/internal/driver"
	"github.com/SwiftCourier/SwiftCourier/internal/ordersync"
	"github.com/SwiftCourier/SwiftCourier/internal/realtime"
	"github.com/SwiftCourier/SwiftCourier/internal/route"
	"github.com/SwiftCourier/SwiftCourier/internal/session"
	"github.com/SwiftCourier/SwiftCourier/internal/store"
	"github.com/SwiftCourier/SwiftCourier/internal/tracking"
)

var (
	configPath = flag.String("config", "configs/tracking-service.json", "配置文件路径")
)

func main() {
	// 本地开发允许 .env 覆盖环境变量，文件不存在时忽略
	_ = godotenv.Load()
	flag.Parse()

	// 加载配置：优先 Consul KV（配置中心），否则读本地文件
	var cfg *config.Config
	var err error
	if key := os.Getenv("CONFIG_CONSUL_KEY"); key != "" {
		cfg, err = config.LoadConfigFromConsulKV(os.Getenv("CONSUL_HOST"), 8500, key)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
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

	// 活跃订单服务地址：未显式配置时从 Consul 按健康实例解析
	activeOrderAPI := cfg.Backend.ActiveOrderAPI
	if activeOrderAPI == "" {
		if consulClient, cerr := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port); cerr == nil {
			if addrs, rerr := discovery.Resolve(consulClient, "activeorder-service"); rerr == nil && len(addrs) > 0 {
				activeOrderAPI = "http://" + addrs[0]
				log.Infof("resolved activeorder-service via consul: %s", activeOrderAPI)
			}
		}
	}

	// 订单状态存储：活跃订单服务打底，本地缓存兜底
	durable := store.NewActiveOrderClient(activeOrderAPI, cfg.Backend.ServiceToken, cfg.Backend.Timeout())
	st := store.New(durable, log)

	// 路径规划客户端（带熔断）
	breaker := middleware.NewCircuitBreaker(
		"directions",
		cfg.Directions.BreakerMaxFailures,
		time.Duration(cfg.Directions.BreakerResetSeconds)*time.Second,
	)
	directions := route.NewHTTPDirections(
		cfg.Directions.BaseURL,
		cfg.Directions.TravelMode,
		time.Duration(cfg.Directions.TimeoutSeconds)*time.Second,
		breaker,
	)

	// 司机目录 / 订单回写客户端
	directory := driver.NewClient(cfg.Backend.DriverAPI, cfg.Backend.ServiceToken, cfg.Backend.Timeout())
	syncer := ordersync.New(cfg.Backend.OrderAPI, cfg.Backend.ServiceToken, cfg.Backend.Timeout())

	bus := session.NewBus()
	manager := tracking.NewManager(
		st,
		directions,
		directory,
		syncer,
		func() tracking.EventSource {
			return realtime.NewListener(cfg.Backend.RealtimeURL, 0, 0, log)
		},
		bus,
		tracking.ManagerConfig{
			PollInterval:   cfg.Tracking.PollInterval(),
			MaxFailures:    cfg.Tracking.MaxFailures(),
			ActiveOrderTTL: cfg.Tracking.ActiveOrderTTL(),
			CleanupDelay:   cfg.Tracking.CleanupDelay(),
		},
		log,
	)
	defer manager.Close()

	r := chi.NewRouter()
	r.Use(server.Recovery(log))
	r.Use(server.AccessLog(log))
	r.Use(server.Tracing(cfg.Server.Name))
	r.Use(middleware.RateLimit(middleware.NewTokenBucket(200, 100)))
	if cfg.Auth.Enabled {
		r.Use(server.JWTAuth(cfg.Auth, log))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tracking.NewHandler(manager, log).Register(r)

	// 会话失效通知（登出/互踢），广播后停掉该用户的追踪
	r.Post("/api/sessions/{userId}/invalidate", func(w http.ResponseWriter, req *http.Request) {
		userID := chi.URLParam(req, "userId")
		bus.Publish(session.TopicSessionInvalidated, userID)
		w.WriteHeader(http.StatusAccepted)
	})

	if err := server.RunHTTPServer(cfg, log, r); err != nil {
		log.Fatalf("tracking-service exited with error: %v", err)
	}
}
