package router

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/field-service/api"
	"github.com/psds-microservice/field-service/internal/handler"
	"github.com/psds-microservice/helpy/paths"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Ticket *handler.TicketHandler
	Chat   *handler.ChatHandler
	Report *handler.ReportHandler
	// Ready проверяет зависимости (БД) для /ready.
	Ready func(ctx context.Context) error
}

type Options struct {
	APIPrefix   string
	CORSOrigins []string
	Gatherer    prometheus.Gatherer
}

func New(h Handlers, opts Options) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, handler.Ready(h.Ready))
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	prefix := "/" + strings.Trim(opts.APIPrefix, "/")
	if prefix == "/" {
		prefix = ""
	}
	v1 := r.Group(prefix)
	{
		v1.GET("/tickets", h.Ticket.List)
		v1.POST("/tickets", h.Ticket.Create)
		v1.GET("/tickets/:id", h.Ticket.Get)
		v1.PUT("/tickets/:id", h.Ticket.Close)
		v1.PATCH("/tickets/:id", h.Ticket.Update)
		v1.POST("/tickets/:id/images", h.Ticket.AddImage)
		v1.POST("/tickets/similar/:id", h.Ticket.Similar)

		v1.POST("/chat", h.Chat.Chat)
		v1.POST("/lang_chat", h.Chat.LangChat)
		v1.POST("/lang_chat_stream", h.Chat.LangChatStream)
		v1.POST("/session/cleanup", h.Chat.Cleanup)
		v1.GET("/sessions/:id/messages", h.Chat.Messages)

		v1.POST("/report/generation", h.Report.Generate)
		v1.POST("/telemetry/analyze", h.Report.AnalyzeTelemetry)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.ExposeHeaders = []string{"X-Session-ID", "X-Total-Count"}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == paths.PathHealth || path == paths.PathReady || path == "/metrics" {
			return
		}
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
