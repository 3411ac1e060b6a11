package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/UrielCuriel/prueba-backend/internal/posts"
	"github.com/UrielCuriel/prueba-backend/internal/users"
)

// setupRoutes はヘルスチェックと各機能のルートを登録します。
func setupRoutes(router *gin.Engine, d deps) {
	router.GET("/health", healthHandler(d))

	d.authHandler.RegisterRoutes(router, d.gate)
	users.RegisterRoutes(router, d.users, d.gate, d.logger)
	posts.RegisterRoutes(router, d.posts, d.gate, d.logger)
}

// healthHandler はヘルスチェックエンドポイントのハンドラーを返します。
func healthHandler(d deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := d.db.PingContext(ctx); err != nil {
			d.logger.Error("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": "prueba-backend",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "prueba-backend",
			"version": "0.1.0",
		})
	}
}
