package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"call-platform/internal/auth"
	"call-platform/internal/calls"
	"call-platform/internal/httpapi"
	"call-platform/internal/reporting"
	"call-platform/internal/signaling"
	"call-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	auth      *auth.Manager
	db        *sql.DB
	rdb       *redis.Client
	calls     *calls.Service
	users     calls.UserDirectory
	reports   *reporting.Service
	signaling *signaling.Handler
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := utils.HealthCheck(ctx, d.db, time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Browsers cannot set headers on a websocket upgrade, so the token may
	// also come from the query string here.
	r.GET("/ws", auth.RequireAccessTokenOrQuery(d.auth), d.signaling.Serve)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
		})

		httpapi.Handlers{Calls: d.calls, Users: d.users, Reports: d.reports}.Register(v1)
	}
}
