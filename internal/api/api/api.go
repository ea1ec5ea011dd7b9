package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"studioBooker/cmd/middleware"
	"studioBooker/internal/metrics"
	"studioBooker/internal/service"
)

type Routers struct {
	Service        service.Service
	Log            *zerolog.Logger
	Mode           string
	CORSOrigins    []string
	BookRatePerMin int
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.Mode
	if mode == "" {
		mode = "release"
	}
	log := r.Log
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	metrics.Register()

	app := ginext.New(mode)

	app.Use(gin.Recovery())
	app.Use(middleware.LoggingMiddleware(log))
	app.Use(cors.New(corsConfig(r.CORSOrigins)))

	app.GET("/health", r.Service.Health)
	app.GET("/availability", r.Service.Availability)
	app.POST("/book", middleware.RateLimit(r.BookRatePerMin), r.Service.Book)
	app.GET("/approve/:token", r.Service.Approve)
	app.GET("/reject/:token", r.Service.Reject)
	app.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return app
}

// corsConfig allows every origin when the list is empty.
func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader}
	cfg.ExposeHeaders = []string{middleware.RequestIDHeader}

	var allowed []string
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowed
	return cfg
}
