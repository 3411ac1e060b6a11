package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"

	"github.com/UrielCuriel/prueba-backend/internal/auth"
	"github.com/UrielCuriel/prueba-backend/internal/config"
	"github.com/UrielCuriel/prueba-backend/internal/logging"
	"github.com/UrielCuriel/prueba-backend/internal/posts"
	"github.com/UrielCuriel/prueba-backend/internal/store"
	"github.com/UrielCuriel/prueba-backend/internal/users"
)

// app はサーバーと、停止時に閉じるリソースをまとめます。
type app struct {
	server  *http.Server
	cleanup []func() error
	logger  *slog.Logger
}

// deps はルーティングに必要な依存関係です。
type deps struct {
	authHandler *auth.Handler
	gate        *auth.Gate
	users       *users.Service
	posts       *posts.Service
	db          *bun.DB
	logger      *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	db, err := store.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, db.Close)

	if err := store.EnsureSchema(ctx, db); err != nil {
		a.close()
		return nil, err
	}

	router, err := newRouter(ctx, cfg, db, logger, a)
	if err != nil {
		a.close()
		return nil, err
	}

	a.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// newRouter はミドルウェアとルートを設定した gin.Engine を返します。
// 停止時に閉じる必要があるリソースは a.cleanup に登録します。
func newRouter(ctx context.Context, cfg *config.Config, db *bun.DB, logger *slog.Logger, a *app) (*gin.Engine, error) {
	jwtSecret, err := secretOrEphemeral(cfg.JWTSecret, "JWT_SECRET", logger)
	if err != nil {
		return nil, err
	}
	sessionSecret, err := secretOrEphemeral(cfg.SessionSecret, "SESSION_SECRET", logger)
	if err != nil {
		return nil, err
	}

	sessionStore, err := auth.NewSessionStore(auth.SessionOptions{
		Kind:   cfg.SessionStore,
		Secret: sessionSecret,
		TTL:    cfg.SessionTTL,
		Secure: cfg.IsRelease(),
	})
	if err != nil {
		return nil, err
	}

	limiter, err := setupLimiter(ctx, cfg, logger, a)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(db)
	codec := auth.NewTokenCodec(jwtSecret, cfg.JWTExpiresIn, cfg.JWTIssuer)
	authn := auth.NewAuthenticator(userRepo, codec, logger)

	d := deps{
		authHandler: auth.NewHandler(authn, limiter, cfg.SessionTTL, logger),
		gate:        auth.NewGate(codec, cfg.SessionTTL, logger),
		users:       users.NewService(userRepo, cfg.BcryptCost, logger),
		posts:       posts.NewService(store.NewPostRepository(db), logger),
		db:          db,
		logger:      logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.Middleware(logger))

	// CORS はセッションより前に処理する（プリフライトにはセッションが不要）
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	corsConfig.ExposeHeaders = []string{"Retry-After"}
	router.Use(cors.New(corsConfig))

	router.Use(auth.SessionMiddleware(sessionStore))

	setupRoutes(router, d)
	return router, nil
}

// setupLimiter はログイン試行制限を作成します。LOGIN_REDIS_URL があれば Redis を使います。
func setupLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger, a *app) (auth.Limiter, error) {
	policy := auth.LimiterPolicy{
		MaxAttempts:  cfg.LoginMaxAttempts,
		Window:       cfg.LoginWindow,
		LockDuration: cfg.LoginLockDuration,
	}
	if cfg.LoginRedisURL == "" {
		return auth.NewMemoryLimiter(policy), nil
	}

	limiter, err := auth.NewRedisLimiterFromURL(ctx, cfg.LoginRedisURL, policy)
	if err != nil {
		return nil, fmt.Errorf("login limiter: %w", err)
	}
	a.cleanup = append(a.cleanup, limiter.Close)
	logger.Info("login limiter uses redis")
	return limiter, nil
}

// secretOrEphemeral は value が空のとき一時的な鍵を生成します。
// release モードでは config.Validate が空の鍵を拒否するため、ここに来るのは開発時のみです。
func secretOrEphemeral(value, name string, logger *slog.Logger) ([]byte, error) {
	if value != "" {
		return []byte(value), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate %s: %w", name, err)
	}
	logger.Warn(name+" is not set; using an ephemeral key (tokens and sessions reset on restart)")
	return key, nil
}

func (a *app) run() error {
	a.logger.Info("starting API server", "addr", a.server.Addr, "mode", gin.Mode())
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	return errors.Join(err, a.close())
}

func (a *app) close() error {
	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanup = nil
	return errors.Join(errs...)
}
