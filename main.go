package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"campus-backend/internal/attendance"
	"campus-backend/internal/directory"
	"campus-backend/internal/notify"
	"campus-backend/internal/platform/apierr"
	"campus-backend/internal/platform/auth"
	"campus-backend/internal/platform/db"
	"campus-backend/internal/platform/logger"
	"campus-backend/internal/platform/reqid"
)

//go:embed api/openapi.yaml
var openapiSpec []byte

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config.yaml")
	seedPath := flag.String("seed", "", "seed YAML (users, subjects, classes); overrides config seed")
	flag.Parse()

	// 設定読み込み
	cfg, err := db.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println("Usage: APP_MODE=[dev|release] go run . -config config/config.yaml")
		fmt.Println(err)
		return
	}

	logger.Init(cfg.Rollbar.Token, cfg.Rollbar.Environment, cfg.Version)
	defer logger.Close()
	logger.Infof("mode:%s version:%s", cfg.Mode, cfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.DB); err != nil {
		panic(err)
	}
	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	logger.Infof("connected to DB: %s", cfg.DB.DBName)

	authSvc := auth.NewService(auth.NewStore(conn), []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	dirStore := directory.NewStore(conn)

	if p := firstNonEmpty(*seedPath, cfg.Seed); p != "" {
		seed, err := directory.LoadSeed(p)
		if err != nil {
			panic(err)
		}
		if err := directory.Seed(ctx, conn, seed, authSvc); err != nil {
			panic(err)
		}
	}

	// 通知: Redis があればインスタンス間で配る
	registry := notify.NewRegistry()
	var pub notify.Publisher = notify.LocalPublisher{Registry: registry}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			panic(fmt.Errorf("redis ping: %w", err))
		}
		fanout := notify.NewRedisFanout(rdb, registry)
		pub = fanout
		go func() {
			if err := fanout.Run(ctx); err != nil {
				logger.Errorf("notify fanout stopped: %v", err)
			}
		}()
		logger.Infof("connected to Redis: %s", cfg.Redis.Addr)
	}
	notifications := notify.NewSQLStore(conn)
	dispatcher := notify.NewDispatcher(notifications, pub, notify.DefaultQueueSize)

	if err := attendance.RegisterValidators(); err != nil {
		panic(err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(reqid.Middleware(), gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		origins := cfg.Server.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", reqid.Header},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", reqid.Header},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// API ドキュメント
	r.GET("/api/v1/openapi.yaml", func(c *gin.Context) { c.Data(http.StatusOK, "application/yaml", openapiSpec) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/v1/openapi.yaml")))

	// /api/v1
	api := r.Group("/api/v1")
	auth.RegisterPublicRoutes(api, authSvc)

	authed := api.Group("", auth.RequireAuth(authSvc.Secret()))
	auth.RegisterRoutes(authed, authSvc)
	directory.RegisterRoutes(authed, directory.NewService(dirStore))
	attendance.RegisterRoutes(authed, attendance.NewService(attendance.NewSQLStore(conn), dirStore, dispatcher))
	notify.RegisterRoutes(authed, notify.NewService(notifications, registry))

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			apierr.Write(c, apierr.NotFound("route not found"))
			return
		}
		c.Status(http.StatusNotFound)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// SSE ストリームは Shutdown を待たせるので先に閉じる
	srv.RegisterOnShutdown(registry.CloseAll)

	go func() {
		var err error
		if cfg.Server.TLS.Cert != "" && cfg.Server.TLS.Key != "" {
			// TLS設定
			certFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Server.TLS.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Server.TLS.Key)
			logger.Infof("listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logger.Infof("listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server: %v", err)
			stop()
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	logger.Infof("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	dispatcher.Close()
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
