// Package api exposes the media service over HTTP using gin.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	uuid "github.com/hashicorp/go-uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	yall "yall.in"

	"tangl.es/code/media"
)

// multipartSlack is allowed on top of MaxUploadSize for multipart
// boundaries and headers.
const multipartSlack = 1 << 20

// NewRouter returns a gin engine serving the upload, listing, deletion and
// static routes for d. Request-scoped loggers derived from logger are put
// in each request's context. /metrics is only mounted when gatherer is
// not nil.
func NewRouter(d media.Dependencies, logger *yall.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	engine.MaxMultipartMemory = d.Config.MaxUploadSize + multipartSlack

	h := &Handler{deps: d}
	group := engine.Group("/api")
	group.POST("/upload-image", h.UploadImage)
	group.GET("/uploaded-images", h.ListImages)
	group.DELETE("/uploaded-images/:id", h.DeleteImage)

	prefix := "/" + strings.Trim(d.Config.PublicPrefix, "/")
	engine.GET(prefix+"/:key", h.ServeImage)
	engine.HEAD(prefix+"/:key", h.ServeImage)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return engine
}

func requestLogger(base *yall.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID, err := uuid.GenerateUUID()
		if err != nil {
			requestID = "unknown"
		}
		logger := base.WithField("request_id", requestID)
		logger = logger.WithField("method", c.Request.Method)
		logger = logger.WithField("path", c.Request.URL.Path)
		c.Request = c.Request.WithContext(yall.InContext(c.Request.Context(), logger))
		c.Header("X-Request-Id", requestID)

		c.Next()

		logger.WithField("status", c.Writer.Status()).WithField("duration", time.Since(start).String()).Debug("handled request")
	}
}
